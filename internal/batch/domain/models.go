package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusStaged            Status = "Staged"
	StatusMatchingCompleted Status = "MatchingCompleted"
	StatusInjected          Status = "Injected"
	StatusPartiallyInjected Status = "PartiallyInjected"
)

// Batch is one ingestion/processing run. Records are scoped to a batch by an
// explicit BatchID column on each entity row, not by timestamp windows, so
// concurrent batches never see each other's rows.
type Batch struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Source        string       `json:"source,omitempty"`
	FileName      string       `json:"file_name,omitempty"`
	FileHash      string       `gorm:"uniqueIndex" json:"file_hash,omitempty"`
	UploadedBy    string       `json:"uploaded_by,omitempty"`
	UploadedAtUtc time.Time    `gorm:"not null" json:"uploaded_at_utc"`
	Status        Status       `gorm:"not null" json:"status"`
}

var (
	ErrNotFound      = errors.New("batch_not_found")
	ErrDuplicateFile = errors.New("duplicate_file")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, batch *Batch) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Batch, error)
	List(ctx context.Context, db *gorm.DB, limit int) ([]*Batch, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status) error
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Batch, error)
	List(ctx context.Context, limit int) ([]*Batch, error)
	MarkStatus(ctx context.Context, id snowflake.ID, status Status) error
}
