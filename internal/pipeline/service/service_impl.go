package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	exportdomain "github.com/madaris/dq/internal/export/domain"
	ingestdomain "github.com/madaris/dq/internal/ingest/domain"
	matchingdomain "github.com/madaris/dq/internal/matching/domain"
	"github.com/madaris/dq/internal/pipeline/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Batches  batchdomain.Repository
	Ingest   ingestdomain.Service
	Matching matchingdomain.Service
	Export   exportdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	batches  batchdomain.Repository
	ingest   ingestdomain.Service
	matching matchingdomain.Service
	export   exportdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pipeline.service"),
		genID:    p.GenID,
		batches:  p.Batches,
		ingest:   p.Ingest,
		matching: p.Matching,
		export:   p.Export,
	}
}

// Run lands all three source files under one batch, maps every roster row to
// a Madaris school through the licensing bridge, writes the consolidated
// workbook and summary, then hands the batch to the matching engine.
func (s *Service) Run(ctx context.Context, in domain.Input) (domain.Result, error) {
	id := s.genID.Generate()
	batch := &batchdomain.Batch{
		ID:     id,
		Source: "PipelineRun",
		// Pipeline runs are always distinct, so the hash is salted with the
		// run id rather than derived from file contents.
		FileHash:      runHash(id, in.FileNames),
		FileName:      strings.Join(in.FileNames[:], "|"),
		UploadedBy:    in.UploadedBy,
		UploadedAtUtc: time.Now().UTC(),
		Status:        batchdomain.StatusStaged,
	}
	if err := s.batches.Insert(ctx, s.db, batch); err != nil {
		return domain.Result{}, err
	}
	result := domain.Result{JobID: batch.ID, BatchID: batch.ID}

	if err := s.ingest.StageInto(ctx, batch.ID, ingestdomain.SourceTarkhees, in.TarkheesRows); err != nil {
		return result, err
	}
	if err := s.ingest.StageInto(ctx, batch.ID, ingestdomain.SourceMadaris, in.MadarisRows); err != nil {
		return result, err
	}
	if err := s.ingest.StageInto(ctx, batch.ID, ingestdomain.SourceNoor, in.NoorRows); err != nil {
		return result, err
	}

	rows := s.bridge(in, &result)

	dir, err := s.export.WriteRun(batch.ID.String(), rows, exportdomain.Summary{
		SchoolsMatched:   result.SchoolsMatched,
		StudentsPrepared: result.StudentsPrepared,
		ParentsPrepared:  result.ParentsPrepared,
		Exceptions:       result.Exceptions,
	})
	if err != nil {
		return result, err
	}
	result.ExportDir = dir

	if _, err := s.matching.RunMatching(ctx, batch.ID); err != nil {
		return result, err
	}

	if total := result.StudentsPrepared + result.ParentsPrepared; total > 0 {
		score := 1.0 - float64(result.Exceptions)/float64(total)
		if score < 0 {
			score = 0
		}
		result.OverallDqScore = score
	}

	s.log.Info("pipeline run completed",
		zap.String("job_id", batch.ID.String()),
		zap.Int("schools_matched", result.SchoolsMatched),
		zap.Int("students_prepared", result.StudentsPrepared),
		zap.Int("parents_prepared", result.ParentsPrepared),
		zap.Int("exceptions", result.Exceptions))
	return result, nil
}

func runHash(id snowflake.ID, fileNames [3]string) string {
	h := sha256.New()
	fmt.Fprint(h, id, strings.Join(fileNames[:], "|"))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// bridge resolves each roster row to a school: ministry school id -> CR via
// the licensing extract, CR -> Madaris school via the directory. Emits one
// consolidated row per student and per distinct parent.
func (s *Service) bridge(in domain.Input, result *domain.Result) []exportdomain.ConsolidatedRow {
	minSchoolToCR := map[string]string{}
	for _, row := range in.TarkheesRows {
		minID := row.Get("ministry_school_id", "school_id")
		cr := row.Get("unified_cr_number", "cr", "cr_number")
		if minID != "" && cr != "" {
			minSchoolToCR[strings.ToLower(minID)] = cr
		}
	}

	type madarisSchool struct {
		id   string
		name string
	}
	crToMadaris := map[string]madarisSchool{}
	for _, row := range in.MadarisRows {
		cr := row.Get("cr", "cr_number", "commercial_registration", "unified_cr_number")
		if cr == "" {
			continue
		}
		crToMadaris[strings.ToLower(cr)] = madarisSchool{
			id:   row.Get("madaris_school_id", "school_id"),
			name: row.Get("school_name_ar", "name_ar"),
		}
	}

	var rows []exportdomain.ConsolidatedRow
	seenParents := map[string]bool{}

	for _, row := range in.NoorRows {
		minSch := row.Get("ministry_school_id", "school_id")

		var method, issues, mappedCR, mappedID, mappedName string
		var confidence float64
		if cr, ok := minSchoolToCR[strings.ToLower(minSch)]; minSch != "" && ok {
			mappedCR = cr
			if school, ok := crToMadaris[strings.ToLower(cr)]; ok {
				mappedID, mappedName = school.id, school.name
				method, confidence = domain.MethodTarkheesBridge, domain.ConfidenceBridge
				result.SchoolsMatched++
			} else {
				method, confidence = domain.MethodCRNotInMadaris, domain.ConfidenceCROnly
				issues = "CR missing in Madaris extract"
				result.Exceptions++
			}
		} else {
			method, confidence = domain.MethodNoBridge, domain.ConfidenceNoBridge
			issues = "Missing or unmapped Ministry School ID"
			result.Exceptions++
		}

		if studID := row.Get("ministry_student_id", "student_id"); studID != "" {
			rows = append(rows, exportdomain.ConsolidatedRow{
				RecordType:              "Student",
				MinistryID:              studID,
				Name:                    row.Get("fullname_ar", "student_name"),
				MappedCR:                mappedCR,
				MappedMadarisSchoolID:   mappedID,
				MappedMadarisSchoolName: mappedName,
				MinistrySchoolID:        minSch,
				Grade:                   row.Get("grade", "class"),
				ParentPhone:             row.Get("parent_phone", "phone"),
				MatchMethod:             method,
				Confidence:              confidence,
				Issues:                  issues,
			})
			result.StudentsPrepared++
		}

		if parentID := row.Get("ministry_parent_id", "parent_id"); parentID != "" && !seenParents[parentID] {
			seenParents[parentID] = true
			rows = append(rows, exportdomain.ConsolidatedRow{
				RecordType:              "Parent",
				MinistryID:              parentID,
				Name:                    row.Get("parent_name", "fullname_parent_ar"),
				MappedCR:                mappedCR,
				MappedMadarisSchoolID:   mappedID,
				MappedMadarisSchoolName: mappedName,
				MinistrySchoolID:        minSch,
				ParentPhone:             row.Get("parent_phone", "phone"),
				MatchMethod:             method,
				Confidence:              confidence,
				Issues:                  issues,
			})
			result.ParentsPrepared++
		}
	}
	return rows
}
