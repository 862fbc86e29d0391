package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/madaris/dq/internal/batch/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, batch *domain.Batch) error {
	return db.WithContext(ctx).Create(batch).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Batch, error) {
	var batch domain.Batch
	err := db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]*domain.Batch, error) {
	var batches []*domain.Batch
	stmt := db.WithContext(ctx).Order("uploaded_at_utc desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	err := stmt.Find(&batches).Error
	return batches, err
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status) error {
	return db.WithContext(ctx).Model(&domain.Batch{}).Where("id = ?", id).Update("status", status).Error
}
