package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/madaris/dq/internal/audit/domain"
	auditrepository "github.com/madaris/dq/internal/audit/repository"
	auditservice "github.com/madaris/dq/internal/audit/service"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	batchrepository "github.com/madaris/dq/internal/batch/repository"
	"github.com/madaris/dq/internal/config"
	"github.com/madaris/dq/internal/injection/domain"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	issuerepository "github.com/madaris/dq/internal/issue/repository"
	issueservice "github.com/madaris/dq/internal/issue/service"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	registryrepository "github.com/madaris/dq/internal/registry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type injectionFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      domain.Service
	issues   issuedomain.Service
	audit    auditdomain.Service
	registry registrydomain.Repository
	batches  batchdomain.Repository
	batchID  snowflake.ID
}

func newInjectionFixture(t *testing.T) *injectionFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&registrydomain.School{},
		&registrydomain.Student{},
		&registrydomain.Parent{},
		&batchdomain.Batch{},
		&issuedomain.DQIssue{},
		&auditdomain.AuditEntry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()

	registryRepo := registryrepository.Provide()
	batchRepo := batchrepository.Provide()
	issues := issueservice.New(issueservice.Params{
		Cfg:      config.Config{},
		DB:       db,
		Log:      logger,
		GenID:    node,
		Repo:     issuerepository.Provide(),
		Registry: registryRepo,
	})
	audit := auditservice.New(auditservice.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	svc := New(Params{
		DB:       db,
		Log:      logger,
		GenID:    node,
		Registry: registryRepo,
		Batches:  batchRepo,
		Issues:   issues,
		Audit:    audit,
	})

	batchID := node.Generate()
	require.NoError(t, batchRepo.Insert(context.Background(), db, &batchdomain.Batch{
		ID:            batchID,
		Source:        "Madaris",
		UploadedBy:    "tester",
		UploadedAtUtc: time.Now().UTC(),
		Status:        batchdomain.StatusMatchingCompleted,
	}))

	return &injectionFixture{
		db:       db,
		node:     node,
		svc:      svc,
		issues:   issues,
		audit:    audit,
		registry: registryRepo,
		batches:  batchRepo,
		batchID:  batchID,
	}
}

func TestInject_CreatesRecordAndAudits(t *testing.T) {
	f := newInjectionFixture(t)
	ctx := context.Background()

	school := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "1010101010",
		NameAr:      "مدرسة النور",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, school))

	report, err := f.svc.Inject(ctx, f.batchID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInjected, report.Status)
	assert.Equal(t, 1, report.Schools.Created)
	assert.Zero(t, report.Schools.Updated)
	assert.Zero(t, report.TotalErrors())

	var saved registrydomain.School
	require.NoError(t, f.db.First(&saved, "id = ?", school.ID).Error)
	assert.NotEmpty(t, saved.MasterSchoolID)

	var entries []auditdomain.AuditEntry
	require.NoError(t, f.db.Where("entity_id = ?", school.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, auditdomain.ActionCreated, entries[0].Action)
	assert.Equal(t, "tester", entries[0].Actor)

	var b batchdomain.Batch
	require.NoError(t, f.db.First(&b, "id = ?", f.batchID).Error)
	assert.Equal(t, batchdomain.StatusInjected, b.Status)

	// A second preview sees the assigned master id and reports nothing left
	// to create.
	impact, err := f.svc.PreviewImpact(ctx, f.batchID)
	require.NoError(t, err)
	assert.Zero(t, impact.Schools.ToCreate)
	assert.Zero(t, impact.Schools.ToUpdate)
}

func TestInject_MergesIntoExistingRecord(t *testing.T) {
	f := newInjectionFixture(t)
	ctx := context.Background()

	existing := &registrydomain.School{
		ID:             f.node.Generate(),
		MasterSchoolID: "master-1",
		CRNumber:       "2020202020",
		NameAr:         "مدرسة الفجر",
		BatchID:        f.node.Generate(),
		LastUpdated:    time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, existing))

	incoming := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "2020202020",
		NameAr:      "مدرسة الفجر الأهلية",
		City:        "الرياض",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, incoming))

	impact, err := f.svc.PreviewImpact(ctx, f.batchID)
	require.NoError(t, err)
	assert.Equal(t, 1, impact.Schools.ToUpdate)
	assert.Zero(t, impact.Schools.ToCreate)

	report, err := f.svc.Inject(ctx, f.batchID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Schools.Updated)

	var saved registrydomain.School
	require.NoError(t, f.db.First(&saved, "id = ?", existing.ID).Error)
	assert.Equal(t, "مدرسة الفجر الأهلية", saved.NameAr)
	assert.Equal(t, "الرياض", saved.City)
	assert.Equal(t, "master-1", saved.MasterSchoolID)

	var entries []auditdomain.AuditEntry
	require.NoError(t, f.db.Where("entity_id = ? AND action = ?", incoming.ID, auditdomain.ActionDataMerge).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Before, "name_ar")
	assert.Contains(t, entries[0].After, "city")
}

func TestInject_BlockedByOpenHighSeverityIssue(t *testing.T) {
	f := newInjectionFixture(t)
	ctx := context.Background()

	student := &registrydomain.Student{
		ID:          f.node.Generate(),
		NationalID:  "bad",
		FullNameAr:  "طالب",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertStudent(ctx, f.db, student))

	_, err := f.issues.Raise(ctx, registrydomain.EntityStudent, student.ID,
		issuedomain.TypeInvalidNationalID, "national id is malformed")
	require.NoError(t, err)

	_, err = f.svc.Inject(ctx, f.batchID, false)
	require.ErrorIs(t, err, domain.ErrInjectionBlocked)

	var blocked *domain.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, int64(1), blocked.HighSeverityCount)

	// Nothing was written.
	var saved registrydomain.Student
	require.NoError(t, f.db.First(&saved, "id = ?", student.ID).Error)
	assert.Empty(t, saved.MasterStudentID)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditEntry{}).Count(&audits).Error)
	assert.Zero(t, audits)

	var b batchdomain.Batch
	require.NoError(t, f.db.First(&b, "id = ?", f.batchID).Error)
	assert.Equal(t, batchdomain.StatusMatchingCompleted, b.Status)
}

func TestInject_SimulateSkipsGateAndWrites(t *testing.T) {
	f := newInjectionFixture(t)
	ctx := context.Background()

	school := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "3030303030",
		NameAr:      "مدرسة الأمل",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, school))

	_, err := f.issues.Raise(ctx, registrydomain.EntitySchool, school.ID,
		issuedomain.TypeInvalidNationalID, "synthetic high-severity blocker")
	require.NoError(t, err)

	report, err := f.svc.Inject(ctx, f.batchID, true)
	require.NoError(t, err)
	assert.True(t, report.Simulated)
	assert.Equal(t, domain.StatusSimulated, report.Status)
	assert.Equal(t, 1, report.Schools.Created)

	var saved registrydomain.School
	require.NoError(t, f.db.First(&saved, "id = ?", school.ID).Error)
	assert.Empty(t, saved.MasterSchoolID)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditEntry{}).Count(&audits).Error)
	assert.Zero(t, audits)

	var b batchdomain.Batch
	require.NoError(t, f.db.First(&b, "id = ?", f.batchID).Error)
	assert.Equal(t, batchdomain.StatusMatchingCompleted, b.Status)
}

func TestInject_ConvergesDuplicateKeyWithinBatch(t *testing.T) {
	f := newInjectionFixture(t)
	ctx := context.Background()

	// Two rows of the same batch share one CR: the first must become the
	// master and the second must merge into it.
	first := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "7070707070",
		NameAr:      "مدرسة الروضة",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, first))
	second := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "7070707070",
		NameAr:      "مدرسة الروضة الأهلية",
		City:        "جدة",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, second))

	impact, err := f.svc.PreviewImpact(ctx, f.batchID)
	require.NoError(t, err)
	assert.Equal(t, 1, impact.Schools.ToCreate)
	assert.Equal(t, 1, impact.Schools.ToUpdate)

	report, err := f.svc.Inject(ctx, f.batchID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInjected, report.Status)
	assert.Equal(t, 1, report.Schools.Created)
	assert.Equal(t, 1, report.Schools.Updated)
	assert.Zero(t, report.TotalErrors())

	// Exactly one master record survives for the key; the duplicate's fields
	// were folded into it.
	var master, duplicate registrydomain.School
	require.NoError(t, f.db.First(&master, "id = ?", first.ID).Error)
	require.NoError(t, f.db.First(&duplicate, "id = ?", second.ID).Error)
	assert.NotEmpty(t, master.MasterSchoolID)
	assert.Empty(t, duplicate.MasterSchoolID)
	assert.Equal(t, "مدرسة الروضة الأهلية", master.NameAr)
	assert.Equal(t, "جدة", master.City)

	var created, merged int64
	require.NoError(t, f.db.Model(&auditdomain.AuditEntry{}).
		Where("action = ?", auditdomain.ActionCreated).Count(&created).Error)
	require.NoError(t, f.db.Model(&auditdomain.AuditEntry{}).
		Where("action = ?", auditdomain.ActionDataMerge).Count(&merged).Error)
	assert.Equal(t, int64(1), created)
	assert.Equal(t, int64(1), merged)
}

type failingSaveRegistry struct {
	registrydomain.Repository
	failID snowflake.ID
}

func (r *failingSaveRegistry) SaveSchool(ctx context.Context, db *gorm.DB, school *registrydomain.School) error {
	if school.ID == r.failID {
		return errors.New("save rejected")
	}
	return r.Repository.SaveSchool(ctx, db, school)
}

func TestInject_DegradesPerRecordFailures(t *testing.T) {
	f := newInjectionFixture(t)
	ctx := context.Background()

	healthy := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "5050505050",
		NameAr:      "مدرسة السلام",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, healthy))
	broken := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "6060606060",
		NameAr:      "مدرسة الوفاء",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, broken))

	svc := New(Params{
		DB:       f.db,
		Log:      zap.NewNop(),
		GenID:    f.node,
		Registry: &failingSaveRegistry{Repository: f.registry, failID: broken.ID},
		Batches:  f.batches,
		Issues:   f.issues,
		Audit:    f.audit,
	})

	report, err := svc.Inject(ctx, f.batchID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyInjected, report.Status)
	assert.Equal(t, 1, report.Schools.Created)
	assert.Equal(t, 1, report.Schools.Errors)

	var saved registrydomain.School
	require.NoError(t, f.db.First(&saved, "id = ?", healthy.ID).Error)
	assert.NotEmpty(t, saved.MasterSchoolID)
	var savedBroken registrydomain.School
	require.NoError(t, f.db.First(&savedBroken, "id = ?", broken.ID).Error)
	assert.Empty(t, savedBroken.MasterSchoolID)

	var entries []auditdomain.AuditEntry
	require.NoError(t, f.db.Where("entity_id = ? AND action = ?", broken.ID, auditdomain.ActionError).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].After, "error")

	var b batchdomain.Batch
	require.NoError(t, f.db.First(&b, "id = ?", f.batchID).Error)
	assert.Equal(t, batchdomain.StatusPartiallyInjected, b.Status)
}

type failingAudit struct {
	auditdomain.Service
}

func (a *failingAudit) Record(ctx context.Context, entityType registrydomain.EntityType, entityID snowflake.ID, action auditdomain.Action, before, after map[string]any, actor string) error {
	return errors.New("audit store unavailable")
}

func TestInject_CountsFailedAuditWrites(t *testing.T) {
	f := newInjectionFixture(t)
	ctx := context.Background()

	school := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "8080808080",
		NameAr:      "مدرسة البيان",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, school))

	svc := New(Params{
		DB:       f.db,
		Log:      zap.NewNop(),
		GenID:    f.node,
		Registry: f.registry,
		Batches:  f.batches,
		Issues:   f.issues,
		Audit:    &failingAudit{Service: f.audit},
	})

	report, err := svc.Inject(ctx, f.batchID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyInjected, report.Status)
	assert.Equal(t, 1, report.Schools.Created)
	assert.Equal(t, 1, report.Schools.Errors)

	// The record itself was still written.
	var saved registrydomain.School
	require.NoError(t, f.db.First(&saved, "id = ?", school.ID).Error)
	assert.NotEmpty(t, saved.MasterSchoolID)
}

func TestPreviewImpact_ReportsBlockingIssues(t *testing.T) {
	f := newInjectionFixture(t)
	ctx := context.Background()

	school := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "4040404040",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, school))

	_, err := f.issues.Raise(ctx, registrydomain.EntitySchool, school.ID,
		issuedomain.TypeInvalidDOB, "synthetic")
	require.NoError(t, err)
	_, err = f.issues.Raise(ctx, registrydomain.EntitySchool, school.ID,
		issuedomain.TypeNoMatch, "synthetic")
	require.NoError(t, err)

	impact, err := f.svc.PreviewImpact(ctx, f.batchID)
	require.NoError(t, err)
	assert.Equal(t, 1, impact.Schools.ToCreate)
	assert.Equal(t, int64(2), impact.OpenIssues)
	assert.Equal(t, int64(1), impact.HighSeverityIssues)
	assert.False(t, impact.ReadyForInjection)
	assert.NotEmpty(t, impact.Warnings)
}
