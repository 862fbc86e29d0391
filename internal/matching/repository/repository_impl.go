package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/madaris/dq/internal/matching/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, candidate *domain.MatchCandidate) error {
	return db.WithContext(ctx).Create(candidate).Error
}

func (r *repo) BySource(ctx context.Context, db *gorm.DB, entityType registrydomain.EntityType, sourceID snowflake.ID) ([]*domain.MatchCandidate, error) {
	var candidates []*domain.MatchCandidate
	err := db.WithContext(ctx).
		Where("entity_type = ? AND source_entity_id = ?", entityType, sourceID).
		Order("confidence_score desc, id").
		Find(&candidates).Error
	return candidates, err
}
