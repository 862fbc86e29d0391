package service

import (
	"context"
	"time"

	batchdomain "github.com/madaris/dq/internal/batch/domain"
	"github.com/madaris/dq/internal/dashboard/domain"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("dashboard.service"),
	}
}

func (s *Service) KPIs(ctx context.Context) (domain.KPIs, error) {
	var kpis domain.KPIs
	db := s.db.WithContext(ctx)

	var totalSchools, totalStudents, totalParents int64
	if err := db.Model(&registrydomain.School{}).Count(&totalSchools).Error; err != nil {
		return kpis, err
	}
	if err := db.Model(&registrydomain.Student{}).Count(&totalStudents).Error; err != nil {
		return kpis, err
	}
	if err := db.Model(&registrydomain.Parent{}).Count(&totalParents).Error; err != nil {
		return kpis, err
	}

	if err := db.Model(&issuedomain.DQIssue{}).
		Where("status = ?", issuedomain.StatusOpen).
		Count(&kpis.OpenIssues).Error; err != nil {
		return kpis, err
	}
	if err := db.Model(&issuedomain.DQIssue{}).
		Where("status = ?", issuedomain.StatusResolved).
		Count(&kpis.ResolvedIssues).Error; err != nil {
		return kpis, err
	}

	var licensed, validStudents, validParents int64
	if err := db.Model(&registrydomain.School{}).
		Where("license_number <> ''").
		Count(&licensed).Error; err != nil {
		return kpis, err
	}
	if err := db.Model(&registrydomain.Student{}).
		Where("LENGTH(national_id) = 10").
		Count(&validStudents).Error; err != nil {
		return kpis, err
	}
	if err := db.Model(&registrydomain.Parent{}).
		Where("LENGTH(national_id) = 10").
		Count(&validParents).Error; err != nil {
		return kpis, err
	}

	kpis.SchoolMatchRate = ratio(licensed, totalSchools)
	kpis.StudentMatchRate = ratio(validStudents, totalStudents)
	kpis.ParentMatchRate = ratio(validParents, totalParents)
	kpis.TotalRecords = totalSchools + totalStudents + totalParents

	// Pass rate defaults to 1 while no rule has ever fired.
	if decided := kpis.OpenIssues + kpis.ResolvedIssues; decided > 0 {
		kpis.DQRulePassRate = float64(kpis.ResolvedIssues) / float64(decided)
	} else {
		kpis.DQRulePassRate = 1.0
	}
	return kpis, nil
}

func (s *Service) Trends(ctx context.Context, days int) ([]domain.TrendPoint, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var batches []*batchdomain.Batch
	if err := s.db.WithContext(ctx).
		Where("uploaded_at_utc >= ?", cutoff).
		Order("uploaded_at_utc").
		Find(&batches).Error; err != nil {
		return nil, err
	}

	byDay := map[time.Time]int64{}
	for _, b := range batches {
		day := b.UploadedAtUtc.UTC().Truncate(24 * time.Hour)
		byDay[day]++
	}

	points := make([]domain.TrendPoint, 0, len(byDay))
	seen := map[time.Time]bool{}
	for _, b := range batches {
		day := b.UploadedAtUtc.UTC().Truncate(24 * time.Hour)
		if seen[day] {
			continue
		}
		seen[day] = true
		points = append(points, domain.TrendPoint{Date: day, BatchCount: byDay[day]})
	}
	return points, nil
}

func (s *Service) RegionalCoverage(ctx context.Context) ([]domain.RegionStat, error) {
	var stats []domain.RegionStat
	err := s.db.WithContext(ctx).
		Model(&registrydomain.School{}).
		Select("COALESCE(NULLIF(schools.region, ''), 'Unknown') AS region, COUNT(DISTINCT schools.id) AS school_count, COUNT(students.id) AS student_count").
		Joins("LEFT JOIN students ON students.current_school_id = schools.id").
		Group("COALESCE(NULLIF(schools.region, ''), 'Unknown')").
		Order("school_count DESC").
		Scan(&stats).Error
	return stats, err
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
