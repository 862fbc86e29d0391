package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"gorm.io/gorm"
)

// Severity is an explicit ordered enumeration; ordering goes through Rank,
// never through string comparison.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type Status string

const (
	StatusOpen      Status = "Open"
	StatusResolved  Status = "Resolved"
	StatusDismissed Status = "Dismissed"
)

const (
	TypeInvalidNationalID  = "InvalidNationalId"
	TypeInvalidDOB         = "InvalidDOB"
	TypeNoMatch            = "NoMatch"
	TypeLowConfidenceMatch = "LowConfidenceMatch"
	TypePotentialDuplicate = "PotentialDuplicate"
)

// SeverityForType derives severity from the issue type: validity problems are
// High, everything else Medium. Low is reserved for manual downgrades.
func SeverityForType(issueType string) Severity {
	if strings.Contains(issueType, "Invalid") {
		return SeverityHigh
	}
	return SeverityMedium
}

// DQIssue is one detected data-quality problem tied to one entity.
// Issues are append-only; resolution mutates status, never deletes.
type DQIssue struct {
	ID           snowflake.ID              `gorm:"primaryKey" json:"id"`
	EntityType   registrydomain.EntityType `gorm:"index" json:"entity_type"`
	EntityID     snowflake.ID              `gorm:"index" json:"entity_id"`
	IssueType    string                    `gorm:"index" json:"issue_type"`
	Severity     Severity                  `json:"severity"`
	SeverityRank int                       `gorm:"index" json:"-"`
	Status       Status                    `gorm:"index" json:"status"`
	Description  string                    `json:"description,omitempty"`
	CreatedAt    time.Time                 `gorm:"not null" json:"created_at"`
	ResolvedAt   *time.Time                `json:"resolved_at,omitempty"`
	ResolvedBy   string                    `json:"resolved_by,omitempty"`
	Resolution   string                    `json:"resolution,omitempty"`
}

type Action string

const (
	ActionAccept  Action = "accept"
	ActionCorrect Action = "correct"
	ActionIgnore  Action = "ignore"
)

var (
	ErrNotFound        = errors.New("issue_not_found")
	ErrAlreadyResolved = errors.New("issue_already_resolved")
	ErrInvalidAction   = errors.New("invalid_action")
	ErrInvalidValue    = errors.New("invalid_correction_value")
)

type QueuePage struct {
	Items    []DQIssue `json:"items"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

type Statistics struct {
	TotalIssues     int64            `json:"totalIssues"`
	OpenIssues      int64            `json:"openIssues"`
	ResolvedIssues  int64            `json:"resolvedIssues"`
	DismissedIssues int64            `json:"dismissedIssues"`
	ResolutionRate  float64          `json:"resolutionRate"`
	ByType          map[string]int64 `json:"byType"`
	BySeverity      map[string]int64 `json:"bySeverity"`
	ByEntity        map[string]int64 `json:"byEntity"`
}

type ListFilter struct {
	EntityType registrydomain.EntityType
	Status     Status
	Offset     int
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, issue *DQIssue) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DQIssue, error)
	Update(ctx context.Context, db *gorm.DB, issue *DQIssue) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]DQIssue, int64, error)
	CountOpen(ctx context.Context, db *gorm.DB) (int64, error)
	CountOpenBySeverity(ctx context.Context, db *gorm.DB, severity Severity) (int64, error)
	HasOpen(ctx context.Context, db *gorm.DB, entityType registrydomain.EntityType, entityID snowflake.ID, issueType string) (bool, error)
	Statistics(ctx context.Context, db *gorm.DB) (Statistics, error)
}

type Service interface {
	Raise(ctx context.Context, entityType registrydomain.EntityType, entityID snowflake.ID, issueType, description string) (*DQIssue, error)
	Resolve(ctx context.Context, issueID snowflake.ID, resolved bool, resolvedBy string) error
	ResolveWithAction(ctx context.Context, issueID snowflake.ID, action Action, resolution, resolvedBy string) (*DQIssue, error)
	Get(ctx context.Context, issueID snowflake.ID) (*DQIssue, error)
	Queue(ctx context.Context, entityType registrydomain.EntityType, page, pageSize int) (QueuePage, error)
	Statistics(ctx context.Context) (Statistics, error)
	OpenCounts(ctx context.Context) (open int64, high int64, err error)
}
