package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/madaris/dq/internal/batch/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("batch.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Batch, error) {
	batch, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	return batch, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*domain.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, s.db, limit)
}

func (s *Service) MarkStatus(ctx context.Context, id snowflake.ID, status domain.Status) error {
	batch, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if batch == nil {
		return domain.ErrNotFound
	}
	return s.repo.UpdateStatus(ctx, s.db, id, status)
}
