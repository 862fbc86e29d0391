package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/madaris/dq/internal/audit/domain"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	"github.com/madaris/dq/internal/injection/domain"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	"github.com/madaris/dq/internal/metrics"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Registry registrydomain.Repository
	Batches  batchdomain.Repository
	Issues   issuedomain.Service
	Audit    auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	registry registrydomain.Repository
	batches  batchdomain.Repository
	issues   issuedomain.Service
	audit    auditdomain.Service
	metrics  *metrics.Metrics

	// Serializes live injections so two batches racing on the same natural
	// keys cannot both see "not found" and double-create.
	injectMu sync.Mutex
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("injection.service"),
		genID:    p.GenID,
		registry: p.Registry,
		batches:  p.Batches,
		issues:   p.Issues,
		audit:    p.Audit,
		metrics:  p.Metrics,
	}
}

// PreviewImpact classifies every record in the batch as create or update
// using the same natural-key lookups Inject uses, without persisting
// anything, and reports whether open high-severity issues block injection.
func (s *Service) PreviewImpact(ctx context.Context, batchID snowflake.ID) (domain.ImpactReport, error) {
	report := domain.ImpactReport{BatchID: batchID, Warnings: []string{}}

	batch, err := s.batches.FindByID(ctx, s.db, batchID)
	if err != nil {
		return report, err
	}
	if batch == nil {
		return report, batchdomain.ErrNotFound
	}

	schools, err := s.registry.SchoolsByBatch(ctx, s.db, batchID)
	if err != nil {
		return report, err
	}
	for _, school := range schools {
		existing, err := s.registry.FindSchoolByNaturalKey(ctx, s.db, school.CRNumber, school.MinistrySchoolID, school.ID)
		if err != nil {
			return report, err
		}
		if laterPeerSchool(school, existing) {
			existing = nil
		}
		switch {
		case existing != nil:
			report.Schools.ToUpdate++
		case school.MasterSchoolID != "":
			// Already injected in a previous run.
		default:
			report.Schools.ToCreate++
		}
	}

	students, err := s.registry.StudentsByBatch(ctx, s.db, batchID)
	if err != nil {
		return report, err
	}
	for _, student := range students {
		existing, err := s.registry.FindStudentByNaturalKey(ctx, s.db, student.MinistryStudentID, student.NationalID, student.ID)
		if err != nil {
			return report, err
		}
		if laterPeerStudent(student, existing) {
			existing = nil
		}
		switch {
		case existing != nil:
			report.Students.ToUpdate++
		case student.MasterStudentID != "":
		default:
			report.Students.ToCreate++
		}
	}

	parents, err := s.registry.ParentsByBatch(ctx, s.db, batchID)
	if err != nil {
		return report, err
	}
	for _, parent := range parents {
		existing, err := s.registry.FindParentByNaturalKey(ctx, s.db, parent.MinistryParentID, parent.NationalID, parent.ID)
		if err != nil {
			return report, err
		}
		if laterPeerParent(parent, existing) {
			existing = nil
		}
		switch {
		case existing != nil:
			report.Parents.ToUpdate++
		case parent.MasterParentID != "":
		default:
			report.Parents.ToCreate++
		}
	}

	report.TotalChanges = report.Schools.ToCreate + report.Schools.ToUpdate +
		report.Students.ToCreate + report.Students.ToUpdate +
		report.Parents.ToCreate + report.Parents.ToUpdate

	open, high, err := s.issues.OpenCounts(ctx)
	if err != nil {
		return report, err
	}
	report.OpenIssues = open
	report.HighSeverityIssues = high
	report.ReadyForInjection = high == 0
	if high > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d open high-severity issues must be resolved before live injection", high))
	}

	return report, nil
}

// Inject executes (or simulates) the create/update decision per record.
// A live run is refused outright while open high-severity issues remain;
// after that, one failing record never aborts the batch. It is counted,
// audited with an Error action and processing continues.
func (s *Service) Inject(ctx context.Context, batchID snowflake.ID, simulate bool) (domain.InjectionReport, error) {
	report := domain.InjectionReport{BatchID: batchID, Simulated: simulate}

	batch, err := s.batches.FindByID(ctx, s.db, batchID)
	if err != nil {
		return report, err
	}
	if batch == nil {
		return report, batchdomain.ErrNotFound
	}

	if !simulate {
		_, high, err := s.issues.OpenCounts(ctx)
		if err != nil {
			return report, err
		}
		if high > 0 {
			if s.metrics != nil {
				s.metrics.InjectionBlocked.Inc()
			}
			return report, &domain.BlockedError{HighSeverityCount: high}
		}

		s.injectMu.Lock()
		defer s.injectMu.Unlock()
	}

	actor := batch.UploadedBy
	if err := s.injectSchools(ctx, batchID, simulate, actor, &report.Schools); err != nil {
		return report, err
	}
	if err := s.injectStudents(ctx, batchID, simulate, actor, &report.Students); err != nil {
		return report, err
	}
	if err := s.injectParents(ctx, batchID, simulate, actor, &report.Parents); err != nil {
		return report, err
	}

	if simulate {
		report.Status = domain.StatusSimulated
		return report, nil
	}

	status := batchdomain.StatusInjected
	report.Status = domain.StatusInjected
	if report.TotalErrors() > 0 {
		status = batchdomain.StatusPartiallyInjected
		report.Status = domain.StatusPartiallyInjected
	}
	if err := s.batches.UpdateStatus(ctx, s.db, batchID, status); err != nil {
		return report, err
	}

	s.log.Info("injection completed",
		zap.String("batch_id", batchID.String()),
		zap.String("status", string(report.Status)),
		zap.Int("errors", report.TotalErrors()))
	return report, nil
}

func (s *Service) injectSchools(ctx context.Context, batchID snowflake.ID, simulate bool, actor string, outcome *domain.EntityOutcome) error {
	schools, err := s.registry.SchoolsByBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}
	for _, school := range schools {
		s.injectOne(ctx, registrydomain.EntitySchool, school.ID, simulate, actor, outcome, func() (auditdomain.Action, map[string]any, map[string]any, error) {
			existing, err := s.registry.FindSchoolByNaturalKey(ctx, s.db, school.CRNumber, school.MinistrySchoolID, school.ID)
			if err != nil {
				return "", nil, nil, err
			}
			if laterPeerSchool(school, existing) {
				existing = nil
			}
			if existing != nil {
				before, after := mergeSchool(existing, school)
				if !simulate {
					existing.LastUpdated = time.Now().UTC()
					if err := s.registry.SaveSchool(ctx, s.db, existing); err != nil {
						return "", nil, nil, err
					}
				}
				return auditdomain.ActionDataMerge, before, after, nil
			}
			if school.MasterSchoolID != "" {
				return "", nil, nil, nil
			}
			if !simulate {
				school.MasterSchoolID = uuid.NewString()
				school.LastUpdated = time.Now().UTC()
				if err := s.registry.SaveSchool(ctx, s.db, school); err != nil {
					return "", nil, nil, err
				}
			}
			return auditdomain.ActionCreated, nil, snapshotSchool(school), nil
		})
	}
	return nil
}

func (s *Service) injectStudents(ctx context.Context, batchID snowflake.ID, simulate bool, actor string, outcome *domain.EntityOutcome) error {
	students, err := s.registry.StudentsByBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}
	for _, student := range students {
		s.injectOne(ctx, registrydomain.EntityStudent, student.ID, simulate, actor, outcome, func() (auditdomain.Action, map[string]any, map[string]any, error) {
			existing, err := s.registry.FindStudentByNaturalKey(ctx, s.db, student.MinistryStudentID, student.NationalID, student.ID)
			if err != nil {
				return "", nil, nil, err
			}
			if laterPeerStudent(student, existing) {
				existing = nil
			}
			if existing != nil {
				before, after := mergeStudent(existing, student)
				if !simulate {
					existing.LastUpdated = time.Now().UTC()
					if err := s.registry.SaveStudent(ctx, s.db, existing); err != nil {
						return "", nil, nil, err
					}
				}
				return auditdomain.ActionDataMerge, before, after, nil
			}
			if student.MasterStudentID != "" {
				return "", nil, nil, nil
			}
			if !simulate {
				student.MasterStudentID = uuid.NewString()
				student.LastUpdated = time.Now().UTC()
				if err := s.registry.SaveStudent(ctx, s.db, student); err != nil {
					return "", nil, nil, err
				}
			}
			return auditdomain.ActionCreated, nil, snapshotStudent(student), nil
		})
	}
	return nil
}

func (s *Service) injectParents(ctx context.Context, batchID snowflake.ID, simulate bool, actor string, outcome *domain.EntityOutcome) error {
	parents, err := s.registry.ParentsByBatch(ctx, s.db, batchID)
	if err != nil {
		return err
	}
	for _, parent := range parents {
		s.injectOne(ctx, registrydomain.EntityParent, parent.ID, simulate, actor, outcome, func() (auditdomain.Action, map[string]any, map[string]any, error) {
			existing, err := s.registry.FindParentByNaturalKey(ctx, s.db, parent.MinistryParentID, parent.NationalID, parent.ID)
			if err != nil {
				return "", nil, nil, err
			}
			if laterPeerParent(parent, existing) {
				existing = nil
			}
			if existing != nil {
				before, after := mergeParent(existing, parent)
				if !simulate {
					existing.LastUpdated = time.Now().UTC()
					if err := s.registry.SaveParent(ctx, s.db, existing); err != nil {
						return "", nil, nil, err
					}
				}
				return auditdomain.ActionDataMerge, before, after, nil
			}
			if parent.MasterParentID != "" {
				return "", nil, nil, nil
			}
			if !simulate {
				parent.MasterParentID = uuid.NewString()
				parent.LastUpdated = time.Now().UTC()
				if err := s.registry.SaveParent(ctx, s.db, parent); err != nil {
					return "", nil, nil, err
				}
			}
			return auditdomain.ActionCreated, nil, snapshotParent(parent), nil
		})
	}
	return nil
}

// injectOne runs the per-record decision with panic containment. Any failure
// is counted and audited as an Error entry; the batch keeps going.
func (s *Service) injectOne(ctx context.Context, entityType registrydomain.EntityType, entityID snowflake.ID, simulate bool, actor string, outcome *domain.EntityOutcome, fn func() (auditdomain.Action, map[string]any, map[string]any, error)) {
	action, before, after, err := s.runGuarded(fn)
	if err != nil {
		outcome.Errors++
		if s.metrics != nil {
			s.metrics.InjectionErrors.WithLabelValues(string(entityType)).Inc()
		}
		s.log.Warn("record injection failed",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID.String()),
			zap.Error(err))
		if !simulate {
			if auditErr := s.audit.Record(ctx, entityType, entityID, auditdomain.ActionError,
				nil, map[string]any{"error": err.Error()}, actor); auditErr != nil {
				s.log.Warn("audit write failed",
					zap.String("entity_id", entityID.String()),
					zap.Error(auditErr))
			}
		}
		return
	}

	var label string
	switch action {
	case auditdomain.ActionCreated:
		outcome.Created++
		label = "created"
	case auditdomain.ActionDataMerge:
		outcome.Updated++
		label = "updated"
	default:
		return
	}
	if s.metrics != nil {
		s.metrics.RecordsInjected.WithLabelValues(string(entityType), label).Inc()
	}
	if !simulate {
		// A record without its trail entry counts as a failure so the report
		// shows the audit log is incomplete.
		if auditErr := s.audit.Record(ctx, entityType, entityID, action, before, after, actor); auditErr != nil {
			outcome.Errors++
			if s.metrics != nil {
				s.metrics.InjectionErrors.WithLabelValues(string(entityType)).Inc()
			}
			s.log.Warn("audit write failed",
				zap.String("entity_type", string(entityType)),
				zap.String("entity_id", entityID.String()),
				zap.Error(auditErr))
		}
	}
}

// Two un-mastered rows of one batch can reach each other through a shared
// natural key. The earliest row takes the create path and every later row
// merges into it, so each key converges on a single master record.
func laterPeerSchool(cur, hit *registrydomain.School) bool {
	return hit != nil && hit.BatchID == cur.BatchID && hit.MasterSchoolID == "" && hit.ID > cur.ID
}

func laterPeerStudent(cur, hit *registrydomain.Student) bool {
	return hit != nil && hit.BatchID == cur.BatchID && hit.MasterStudentID == "" && hit.ID > cur.ID
}

func laterPeerParent(cur, hit *registrydomain.Parent) bool {
	return hit != nil && hit.BatchID == cur.BatchID && hit.MasterParentID == "" && hit.ID > cur.ID
}

func (s *Service) runGuarded(fn func() (auditdomain.Action, map[string]any, map[string]any, error)) (action auditdomain.Action, before, after map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during record injection: %v", r)
		}
	}()
	return fn()
}
