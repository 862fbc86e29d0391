package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Action string

const (
	ActionCreated   Action = "Created"
	ActionDataMerge Action = "DataMerge"
	ActionError     Action = "Error"
)

// AuditEntry is an immutable record of one state change during injection:
// before/after field snapshots, the actor and the moment. Entries are never
// updated or deleted.
type AuditEntry struct {
	ID         snowflake.ID              `gorm:"primaryKey" json:"id"`
	EntityType registrydomain.EntityType `gorm:"index" json:"entity_type"`
	EntityID   snowflake.ID              `gorm:"index" json:"entity_id"`
	Action     Action                    `gorm:"index" json:"action"`
	Before     datatypes.JSONMap         `gorm:"type:jsonb" json:"before,omitempty"`
	After      datatypes.JSONMap         `gorm:"type:jsonb" json:"after,omitempty"`
	Actor      string                    `json:"actor,omitempty"`
	CreatedAt  time.Time                 `gorm:"not null;index" json:"created_at"`
}

var ErrInvalidAction = errors.New("invalid_audit_action")

type ListFilter struct {
	EntityType registrydomain.EntityType
	EntityID   snowflake.ID
	Action     Action
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditEntry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditEntry, error)
}

type Service interface {
	Record(ctx context.Context, entityType registrydomain.EntityType, entityID snowflake.ID, action Action, before, after map[string]any, actor string) error
	RecordTx(ctx context.Context, tx *gorm.DB, entityType registrydomain.EntityType, entityID snowflake.ID, action Action, before, after map[string]any, actor string) error
	List(ctx context.Context, filter ListFilter) ([]*AuditEntry, error)
}
