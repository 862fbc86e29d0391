package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/madaris/dq/internal/config"
	"github.com/madaris/dq/internal/issue/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"github.com/madaris/dq/pkg/validate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Registry registrydomain.Repository
}

type Service struct {
	cfg      config.Config
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	registry registrydomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		cfg:      p.Cfg,
		db:       p.DB,
		log:      p.Log.Named("issue.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		registry: p.Registry,
	}
}

// Raise records a new Open issue against an entity. Severity is derived from
// the issue type. When the dedup policy is enabled an existing Open issue of
// the same type for the same entity suppresses the new one.
func (s *Service) Raise(ctx context.Context, entityType registrydomain.EntityType, entityID snowflake.ID, issueType, description string) (*domain.DQIssue, error) {
	if s.cfg.DQIssueDedup {
		exists, err := s.repo.HasOpen(ctx, s.db, entityType, entityID, issueType)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
	}

	severity := domain.SeverityForType(issueType)
	issue := &domain.DQIssue{
		ID:           s.genID.Generate(),
		EntityType:   entityType,
		EntityID:     entityID,
		IssueType:    issueType,
		Severity:     severity,
		SeverityRank: severity.Rank(),
		Status:       domain.StatusOpen,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *Service) Resolve(ctx context.Context, issueID snowflake.ID, resolved bool, resolvedBy string) error {
	issue, err := s.openIssue(ctx, issueID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if resolved {
		issue.Status = domain.StatusResolved
	} else {
		issue.Status = domain.StatusDismissed
	}
	issue.ResolvedAt = &now
	issue.ResolvedBy = resolvedBy
	return s.repo.Update(ctx, s.db, issue)
}

// ResolveWithAction transitions an issue with an explicit disposition:
// accept marks it Resolved as-is, ignore dismisses it, correct applies a
// narrow field correction to the underlying entity before resolving. The
// correction value is carried in the resolution text.
func (s *Service) ResolveWithAction(ctx context.Context, issueID snowflake.ID, action domain.Action, resolution, resolvedBy string) (*domain.DQIssue, error) {
	issue, err := s.openIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	switch action {
	case domain.ActionAccept:
		issue.Status = domain.StatusResolved
	case domain.ActionIgnore:
		issue.Status = domain.StatusDismissed
	case domain.ActionCorrect:
		if err := s.applyCorrection(ctx, issue, resolution); err != nil {
			return nil, err
		}
		issue.Status = domain.StatusResolved
	default:
		return nil, domain.ErrInvalidAction
	}

	now := time.Now().UTC()
	issue.ResolvedAt = &now
	issue.ResolvedBy = resolvedBy
	issue.Resolution = resolution
	if err := s.repo.Update(ctx, s.db, issue); err != nil {
		return nil, err
	}
	s.log.Info("issue resolved",
		zap.String("issue_id", issue.ID.String()),
		zap.String("action", string(action)),
		zap.String("status", string(issue.Status)))
	return issue, nil
}

func (s *Service) Get(ctx context.Context, issueID snowflake.ID) (*domain.DQIssue, error) {
	issue, err := s.repo.FindByID(ctx, s.db, issueID)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, domain.ErrNotFound
	}
	return issue, nil
}

func (s *Service) Queue(ctx context.Context, entityType registrydomain.EntityType, page, pageSize int) (domain.QueuePage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, total, err := s.repo.List(ctx, s.db, domain.ListFilter{
		EntityType: entityType,
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	})
	if err != nil {
		return domain.QueuePage{}, err
	}
	return domain.QueuePage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *Service) Statistics(ctx context.Context) (domain.Statistics, error) {
	return s.repo.Statistics(ctx, s.db)
}

func (s *Service) OpenCounts(ctx context.Context) (int64, int64, error) {
	open, err := s.repo.CountOpen(ctx, s.db)
	if err != nil {
		return 0, 0, err
	}
	high, err := s.repo.CountOpenBySeverity(ctx, s.db, domain.SeverityHigh)
	if err != nil {
		return 0, 0, err
	}
	return open, high, nil
}

func (s *Service) openIssue(ctx context.Context, issueID snowflake.ID) (*domain.DQIssue, error) {
	issue, err := s.repo.FindByID(ctx, s.db, issueID)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, domain.ErrNotFound
	}
	if issue.Status != domain.StatusOpen {
		return nil, domain.ErrAlreadyResolved
	}
	return issue, nil
}

func (s *Service) applyCorrection(ctx context.Context, issue *domain.DQIssue, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.ErrInvalidValue
	}

	switch issue.IssueType {
	case domain.TypeInvalidNationalID:
		if !validate.NationalID(value) {
			return domain.ErrInvalidValue
		}
		return s.replaceNationalID(ctx, issue.EntityType, issue.EntityID, value)
	case domain.TypeInvalidDOB:
		dob, err := parseDOB(value)
		if err != nil {
			return domain.ErrInvalidValue
		}
		return s.replaceDOB(ctx, issue.EntityID, dob)
	case domain.TypeNoMatch, domain.TypeLowConfidenceMatch:
		if issue.EntityType != registrydomain.EntitySchool {
			return domain.ErrInvalidAction
		}
		return s.replaceCR(ctx, issue.EntityID, value)
	default:
		return domain.ErrInvalidAction
	}
}

func (s *Service) replaceNationalID(ctx context.Context, entityType registrydomain.EntityType, entityID snowflake.ID, value string) error {
	switch entityType {
	case registrydomain.EntityStudent:
		student, err := s.registry.FindStudentByID(ctx, s.db, entityID)
		if err != nil {
			return err
		}
		if student == nil {
			return fmt.Errorf("student %s: %w", entityID, domain.ErrNotFound)
		}
		student.NationalID = value
		student.LastUpdated = time.Now().UTC()
		return s.registry.SaveStudent(ctx, s.db, student)
	case registrydomain.EntityParent:
		parent, err := s.registry.FindParentByID(ctx, s.db, entityID)
		if err != nil {
			return err
		}
		if parent == nil {
			return fmt.Errorf("parent %s: %w", entityID, domain.ErrNotFound)
		}
		parent.NationalID = value
		parent.LastUpdated = time.Now().UTC()
		return s.registry.SaveParent(ctx, s.db, parent)
	default:
		return domain.ErrInvalidAction
	}
}

func (s *Service) replaceDOB(ctx context.Context, entityID snowflake.ID, dob time.Time) error {
	student, err := s.registry.FindStudentByID(ctx, s.db, entityID)
	if err != nil {
		return err
	}
	if student == nil {
		return fmt.Errorf("student %s: %w", entityID, domain.ErrNotFound)
	}
	student.DOB = &dob
	student.LastUpdated = time.Now().UTC()
	return s.registry.SaveStudent(ctx, s.db, student)
}

func (s *Service) replaceCR(ctx context.Context, entityID snowflake.ID, value string) error {
	school, err := s.registry.FindSchoolByID(ctx, s.db, entityID)
	if err != nil {
		return err
	}
	if school == nil {
		return fmt.Errorf("school %s: %w", entityID, domain.ErrNotFound)
	}
	school.CRNumber = value
	school.LastUpdated = time.Now().UTC()
	return s.registry.SaveSchool(ctx, s.db, school)
}

func parseDOB(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02/01/2006", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, domain.ErrInvalidValue
}
