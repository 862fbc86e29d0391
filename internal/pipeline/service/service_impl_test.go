package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	batchrepository "github.com/madaris/dq/internal/batch/repository"
	"github.com/madaris/dq/internal/config"
	exportdomain "github.com/madaris/dq/internal/export/domain"
	exportservice "github.com/madaris/dq/internal/export/service"
	ingestdomain "github.com/madaris/dq/internal/ingest/domain"
	ingestservice "github.com/madaris/dq/internal/ingest/service"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	issuerepository "github.com/madaris/dq/internal/issue/repository"
	issueservice "github.com/madaris/dq/internal/issue/service"
	matchingdomain "github.com/madaris/dq/internal/matching/domain"
	matchingrepository "github.com/madaris/dq/internal/matching/repository"
	matchingservice "github.com/madaris/dq/internal/matching/service"
	pipelinedomain "github.com/madaris/dq/internal/pipeline/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	registryrepository "github.com/madaris/dq/internal/registry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newPipelineService(t *testing.T) (pipelinedomain.Service, *gorm.DB, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&registrydomain.School{},
		&registrydomain.Student{},
		&registrydomain.Parent{},
		&registrydomain.License{},
		&registrydomain.Enrollment{},
		&batchdomain.Batch{},
		&issuedomain.DQIssue{},
		&matchingdomain.MatchCandidate{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	exportDir := t.TempDir()
	cfg := config.Config{
		FuzzyMatchFloor:     0.70,
		AutoApplyConfidence: 0.95,
		ReviewConfidence:    0.75,
		ExportDir:           exportDir,
	}

	registryRepo := registryrepository.Provide()
	batchRepo := batchrepository.Provide()
	issues := issueservice.New(issueservice.Params{
		Cfg: cfg, DB: db, Log: logger, GenID: node,
		Repo:     issuerepository.Provide(),
		Registry: registryRepo,
	})
	matching := matchingservice.New(matchingservice.Params{
		Cfg: cfg, DB: db, Log: logger, GenID: node,
		Repo:     matchingrepository.Provide(),
		Registry: registryRepo,
		Batches:  batchRepo,
		Issues:   issues,
	})
	ingest := ingestservice.New(ingestservice.Params{
		DB: db, Log: logger, GenID: node,
		Registry: registryRepo,
		Batches:  batchRepo,
	})
	export := exportservice.New(exportservice.Params{Cfg: cfg, Log: logger})

	svc := New(Params{
		DB: db, Log: logger, GenID: node,
		Batches:  batchRepo,
		Ingest:   ingest,
		Matching: matching,
		Export:   export,
	})
	return svc, db, exportDir
}

func TestRun_BridgesRosterToMadaris(t *testing.T) {
	svc, db, _ := newPipelineService(t)
	ctx := context.Background()

	in := pipelinedomain.Input{
		TarkheesRows: []ingestdomain.Row{
			{"unified_cr_number": "1010101010", "ministry_school_id": "MIN-1", "license_number": "LIC-1", "institution_name": "مدرسة النور"},
			{"unified_cr_number": "2020202020", "ministry_school_id": "MIN-2", "license_number": "LIC-2", "institution_name": "مدرسة الفجر"},
		},
		MadarisRows: []ingestdomain.Row{
			{"cr": "1010101010", "madaris_school_id": "MAD-1", "school_name_ar": "مدرسة النور"},
			{"cr": "2020202020", "madaris_school_id": "MAD-2", "school_name_ar": "مدرسة الفجر"},
		},
		NoorRows: []ingestdomain.Row{
			{
				"ministry_student_id": "S-1", "fullname_ar": "محمد أحمد",
				"national_id": "1234567890", "dob": "2014-03-15",
				"ministry_school_id": "MIN-1",
				"ministry_parent_id": "P-1", "parent_name": "أحمد عبدالله",
			},
			{
				"ministry_student_id": "S-2", "fullname_ar": "نورة خالد",
				"national_id": "1234567891", "dob": "2013-05-20",
				"ministry_school_id": "MIN-2",
				"ministry_parent_id": "P-2", "parent_name": "خالد سعد",
			},
		},
		FileNames:  [3]string{"tarkhees.csv", "noor.csv", "madaris.csv"},
		UploadedBy: "tester",
	}

	result, err := svc.Run(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, 2, result.SchoolsMatched)
	assert.Equal(t, 2, result.StudentsPrepared)
	assert.Equal(t, 2, result.ParentsPrepared)
	assert.Zero(t, result.Exceptions)
	assert.InDelta(t, 1.0, result.OverallDqScore, 1e-9)
	assert.NotZero(t, result.JobID)

	// All three files landed in one batch and matching ran over it.
	var batch batchdomain.Batch
	require.NoError(t, db.First(&batch, "id = ?", result.BatchID).Error)
	assert.Equal(t, "PipelineRun", batch.Source)
	assert.Equal(t, "tarkhees.csv|noor.csv|madaris.csv", batch.FileName)
	assert.Equal(t, batchdomain.StatusMatchingCompleted, batch.Status)

	var candidates []matchingdomain.MatchCandidate
	require.NoError(t, db.Where("entity_type = ?", registrydomain.EntitySchool).Find(&candidates).Error)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.Equal(t, matchingdomain.MethodExactCR, c.MatchMethod)
	}

	workbook := filepath.Join(result.ExportDir, exportdomain.WorkbookName)
	_, err = os.Stat(workbook)
	assert.NoError(t, err)
	summary := filepath.Join(result.ExportDir, exportdomain.SummaryName)
	_, err = os.Stat(summary)
	assert.NoError(t, err)
}

func TestRun_CountsExceptions(t *testing.T) {
	svc, _, _ := newPipelineService(t)
	ctx := context.Background()

	in := pipelinedomain.Input{
		TarkheesRows: []ingestdomain.Row{
			{"unified_cr_number": "1010101010", "ministry_school_id": "MIN-1"},
		},
		MadarisRows: []ingestdomain.Row{
			// MIN-1's CR is absent here, so its roster rows take the
			// CRNotInMadaris path.
			{"cr": "9999999999", "madaris_school_id": "MAD-9", "school_name_ar": "مدرسة أخرى"},
		},
		NoorRows: []ingestdomain.Row{
			{
				"ministry_student_id": "S-1", "fullname_ar": "محمد أحمد",
				"national_id": "1234567890", "dob": "2014-03-15",
				"ministry_school_id": "MIN-1",
			},
			{
				// No ministry school id at all.
				"ministry_student_id": "S-2", "fullname_ar": "نورة خالد",
				"national_id": "1234567891", "dob": "2013-05-20",
			},
		},
		FileNames:  [3]string{"t.csv", "n.csv", "m.csv"},
		UploadedBy: "tester",
	}

	result, err := svc.Run(ctx, in)
	require.NoError(t, err)

	assert.Zero(t, result.SchoolsMatched)
	assert.Equal(t, 2, result.StudentsPrepared)
	assert.Equal(t, 2, result.Exceptions)
	assert.InDelta(t, 0.0, result.OverallDqScore, 1e-9)
}
