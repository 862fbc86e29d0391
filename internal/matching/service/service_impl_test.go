package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	batchrepository "github.com/madaris/dq/internal/batch/repository"
	"github.com/madaris/dq/internal/config"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	issuerepository "github.com/madaris/dq/internal/issue/repository"
	issueservice "github.com/madaris/dq/internal/issue/service"
	matchingdomain "github.com/madaris/dq/internal/matching/domain"
	"github.com/madaris/dq/internal/matching/repository"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	registryrepository "github.com/madaris/dq/internal/registry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type matchingFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      matchingdomain.Service
	registry registrydomain.Repository
	batchID  snowflake.ID
}

func newMatchingFixture(t *testing.T) *matchingFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&registrydomain.School{},
		&registrydomain.Student{},
		&registrydomain.Parent{},
		&registrydomain.License{},
		&batchdomain.Batch{},
		&issuedomain.DQIssue{},
		&matchingdomain.MatchCandidate{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	cfg := config.Config{
		FuzzyMatchFloor:     0.70,
		AutoApplyConfidence: 0.95,
		ReviewConfidence:    0.75,
	}

	registryRepo := registryrepository.Provide()
	batchRepo := batchrepository.Provide()
	issues := issueservice.New(issueservice.Params{
		Cfg:      cfg,
		DB:       db,
		Log:      logger,
		GenID:    node,
		Repo:     issuerepository.Provide(),
		Registry: registryRepo,
	})

	svc := New(Params{
		Cfg:      cfg,
		DB:       db,
		Log:      logger,
		GenID:    node,
		Repo:     repository.Provide(),
		Registry: registryRepo,
		Batches:  batchRepo,
		Issues:   issues,
	})

	batchID := node.Generate()
	require.NoError(t, batchRepo.Insert(context.Background(), db, &batchdomain.Batch{
		ID:            batchID,
		Source:        "Madaris",
		UploadedAtUtc: time.Now().UTC(),
		Status:        batchdomain.StatusStaged,
	}))

	return &matchingFixture{
		db:       db,
		node:     node,
		svc:      svc,
		registry: registryRepo,
		batchID:  batchID,
	}
}

func TestRunMatching_ExactCR(t *testing.T) {
	f := newMatchingFixture(t)
	ctx := context.Background()

	license := &registrydomain.License{
		ID:               f.node.Generate(),
		MinistrySchoolID: "MIN-5001",
		CRNumber:         "1010101010",
		LicenseNumber:    "LIC-22",
		InstitutionName:  "مدرسة النور الأهلية",
	}
	require.NoError(t, f.registry.InsertLicense(ctx, f.db, license))

	school := &registrydomain.School{
		ID:          f.node.Generate(),
		CRNumber:    "1010101010",
		NameAr:      "مدرسة النور الاهليه",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, school))

	token, err := f.svc.RunMatching(ctx, f.batchID)
	require.NoError(t, err)
	assert.Equal(t, f.batchID, token)

	var candidates []matchingdomain.MatchCandidate
	require.NoError(t, f.db.Where("source_entity_id = ?", school.ID).Find(&candidates).Error)
	require.Len(t, candidates, 1)
	assert.Equal(t, matchingdomain.MethodExactCR, candidates[0].MatchMethod)
	assert.Equal(t, 0.99, candidates[0].ConfidenceScore)
	assert.Equal(t, matchingdomain.DispositionAutoAccept, candidates[0].Disposition)

	var saved registrydomain.School
	require.NoError(t, f.db.First(&saved, "id = ?", school.ID).Error)
	assert.Equal(t, "LIC-22", saved.LicenseNumber)
	assert.Equal(t, "MIN-5001", saved.MinistrySchoolID)

	var issueCount int64
	require.NoError(t, f.db.Model(&issuedomain.DQIssue{}).Count(&issueCount).Error)
	assert.Zero(t, issueCount)

	var b batchdomain.Batch
	require.NoError(t, f.db.First(&b, "id = ?", f.batchID).Error)
	assert.Equal(t, batchdomain.StatusMatchingCompleted, b.Status)
}

func TestRunMatching_NoMatchRaisesMediumIssue(t *testing.T) {
	f := newMatchingFixture(t)
	ctx := context.Background()

	license := &registrydomain.License{
		ID:              f.node.Generate(),
		CRNumber:        "2020202020",
		InstitutionName: "مدرسة الفجر",
	}
	require.NoError(t, f.registry.InsertLicense(ctx, f.db, license))

	school := &registrydomain.School{
		ID:          f.node.Generate(),
		NameAr:      "روضة المستقبل العالمية",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, school))

	_, err := f.svc.RunMatching(ctx, f.batchID)
	require.NoError(t, err)

	var candidates int64
	require.NoError(t, f.db.Model(&matchingdomain.MatchCandidate{}).
		Where("source_entity_id = ?", school.ID).Count(&candidates).Error)
	assert.Zero(t, candidates)

	var issues []issuedomain.DQIssue
	require.NoError(t, f.db.Where("entity_id = ?", school.ID).Find(&issues).Error)
	require.Len(t, issues, 1)
	assert.Equal(t, issuedomain.TypeNoMatch, issues[0].IssueType)
	assert.Equal(t, issuedomain.SeverityMedium, issues[0].Severity)
	assert.Equal(t, issuedomain.StatusOpen, issues[0].Status)
}

func TestRunMatching_FuzzyAutoApply(t *testing.T) {
	f := newMatchingFixture(t)
	ctx := context.Background()

	// Same name modulo diacritics and letter variants: similarity 1.0 after
	// normalization, which clears the auto-apply threshold.
	license := &registrydomain.License{
		ID:               f.node.Generate(),
		MinistrySchoolID: "MIN-7007",
		CRNumber:         "3030303030",
		LicenseNumber:    "LIC-77",
		InstitutionName:  "مَدرسة الأمل",
	}
	require.NoError(t, f.registry.InsertLicense(ctx, f.db, license))

	school := &registrydomain.School{
		ID:          f.node.Generate(),
		NameAr:      "مدرسة الامل",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertSchool(ctx, f.db, school))

	_, err := f.svc.RunMatching(ctx, f.batchID)
	require.NoError(t, err)

	var candidates []matchingdomain.MatchCandidate
	require.NoError(t, f.db.Where("source_entity_id = ?", school.ID).Find(&candidates).Error)
	require.Len(t, candidates, 1)
	assert.Equal(t, matchingdomain.MethodFuzzyName, candidates[0].MatchMethod)
	assert.InDelta(t, 1.0, candidates[0].ConfidenceScore, 1e-9)

	var saved registrydomain.School
	require.NoError(t, f.db.First(&saved, "id = ?", school.ID).Error)
	assert.Equal(t, "LIC-77", saved.LicenseNumber)
	assert.Equal(t, "3030303030", saved.CRNumber)
}

func TestRunMatching_DuplicateStudentNationalID(t *testing.T) {
	f := newMatchingFixture(t)
	ctx := context.Background()

	dob := time.Now().UTC().AddDate(-10, 0, 0)
	existing := &registrydomain.Student{
		ID:          f.node.Generate(),
		NationalID:  "1234567890",
		FullNameAr:  "محمد عبدالله",
		DOB:         &dob,
		BatchID:     f.node.Generate(),
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertStudent(ctx, f.db, existing))

	incoming := &registrydomain.Student{
		ID:          f.node.Generate(),
		NationalID:  "1234567890",
		FullNameAr:  "محمد عبد الله",
		DOB:         &dob,
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertStudent(ctx, f.db, incoming))

	_, err := f.svc.RunMatching(ctx, f.batchID)
	require.NoError(t, err)

	var candidates []matchingdomain.MatchCandidate
	require.NoError(t, f.db.Where("source_entity_id = ?", incoming.ID).Find(&candidates).Error)
	require.Len(t, candidates, 1)
	assert.Equal(t, matchingdomain.MethodNationalID, candidates[0].MatchMethod)
	assert.Equal(t, existing.ID, candidates[0].TargetEntityID)

	var issues []issuedomain.DQIssue
	require.NoError(t, f.db.Where("entity_id = ?", incoming.ID).Find(&issues).Error)
	require.Len(t, issues, 1)
	assert.Equal(t, issuedomain.TypePotentialDuplicate, issues[0].IssueType)
	assert.Equal(t, issuedomain.SeverityMedium, issues[0].Severity)
}

func TestRunMatching_InvalidStudentFields(t *testing.T) {
	f := newMatchingFixture(t)
	ctx := context.Background()

	student := &registrydomain.Student{
		ID:          f.node.Generate(),
		NationalID:  "12345",
		FullNameAr:  "سارة أحمد",
		BatchID:     f.batchID,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, f.registry.InsertStudent(ctx, f.db, student))

	_, err := f.svc.RunMatching(ctx, f.batchID)
	require.NoError(t, err)

	var issues []issuedomain.DQIssue
	require.NoError(t, f.db.Where("entity_id = ?", student.ID).Order("issue_type").Find(&issues).Error)
	require.Len(t, issues, 2)

	types := map[string]issuedomain.Severity{}
	for _, issue := range issues {
		types[issue.IssueType] = issue.Severity
	}
	assert.Equal(t, issuedomain.SeverityHigh, types[issuedomain.TypeInvalidNationalID])
	assert.Equal(t, issuedomain.SeverityHigh, types[issuedomain.TypeInvalidDOB])
}

func TestRunMatching_UnknownBatch(t *testing.T) {
	f := newMatchingFixture(t)

	_, err := f.svc.RunMatching(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, batchdomain.ErrNotFound)
}
