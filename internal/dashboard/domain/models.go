package domain

import (
	"context"
	"time"
)

// KPIs are the headline quality indicators for the whole registry.
type KPIs struct {
	SchoolMatchRate  float64 `json:"schoolMatchRate"`
	StudentMatchRate float64 `json:"studentMatchRate"`
	ParentMatchRate  float64 `json:"parentMatchRate"`
	DQRulePassRate   float64 `json:"dqRulePassRate"`
	TotalRecords     int64   `json:"totalRecords"`
	OpenIssues       int64   `json:"openIssues"`
	ResolvedIssues   int64   `json:"resolvedIssues"`
}

// TrendPoint is one day of batch activity.
type TrendPoint struct {
	Date       time.Time `json:"date"`
	BatchCount int64     `json:"batchCount"`
}

// RegionStat aggregates registry coverage per region.
type RegionStat struct {
	Region       string `json:"region"`
	SchoolCount  int64  `json:"schoolCount"`
	StudentCount int64  `json:"studentCount"`
}

type Service interface {
	KPIs(ctx context.Context) (KPIs, error)
	Trends(ctx context.Context, days int) ([]TrendPoint, error)
	RegionalCoverage(ctx context.Context) ([]RegionStat, error)
}
