package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"gorm.io/gorm"
)

type Method string

const (
	MethodExactCR        Method = "ExactCR"
	MethodFuzzyName      Method = "FuzzyName"
	MethodNationalID     Method = "NationalID"
	MethodTarkheesBridge Method = "TarkheesBridge"
)

type Disposition string

const (
	DispositionAutoAccept Disposition = "AutoAccept"
	DispositionReview     Disposition = "Review"
	DispositionReject     Disposition = "Reject"
)

// MatchCandidate is one proposed link between a new record and an existing
// or reference record. Candidates are created and never mutated; a re-run
// supersedes earlier rows by adding newer ones.
type MatchCandidate struct {
	ID              snowflake.ID              `gorm:"primaryKey" json:"id"`
	EntityType      registrydomain.EntityType `gorm:"index" json:"entity_type"`
	SourceEntityID  snowflake.ID              `gorm:"index" json:"source_entity_id"`
	TargetEntityID  snowflake.ID              `json:"target_entity_id"`
	LeftSource      string                    `json:"left_source,omitempty"`
	RightSource     string                    `json:"right_source,omitempty"`
	ConfidenceScore float64                   `json:"confidence_score"`
	MatchMethod     Method                    `json:"match_method"`
	Reason          string                    `json:"reason,omitempty"`
	Disposition     Disposition               `json:"disposition"`
	CreatedAt       time.Time                 `gorm:"not null" json:"created_at"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, candidate *MatchCandidate) error
	BySource(ctx context.Context, db *gorm.DB, entityType registrydomain.EntityType, sourceID snowflake.ID) ([]*MatchCandidate, error)
}

// Service runs one matching pass over a batch's new record set.
type Service interface {
	RunMatching(ctx context.Context, batchID snowflake.ID) (snowflake.ID, error)
	Candidates(ctx context.Context, entityType registrydomain.EntityType, sourceID snowflake.ID) ([]*MatchCandidate, error)
}
