package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/madaris/dq/internal/audit/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func New(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entityType registrydomain.EntityType, entityID snowflake.ID, action auditdomain.Action, before, after map[string]any, actor string) error {
	return s.RecordTx(ctx, s.db, entityType, entityID, action, before, after, actor)
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, entityType registrydomain.EntityType, entityID snowflake.ID, action auditdomain.Action, before, after map[string]any, actor string) error {
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	if actor == "" {
		actor = "system"
	}

	entry := &auditdomain.AuditEntry{
		ID:         s.genID.Generate(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Before:     datatypes.JSONMap(before),
		After:      datatypes.JSONMap(after),
		Actor:      actor,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		s.log.Warn("failed to write audit entry",
			zap.String("action", string(action)),
			zap.String("entity_id", entityID.String()),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]*auditdomain.AuditEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, s.db, filter)
}
