package service

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	"github.com/madaris/dq/internal/ingest/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	pkgdb "github.com/madaris/dq/pkg/db"
	"github.com/xuri/excelize/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dateFormats = []string{"2006-01-02", "02/01/2006", time.RFC3339}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Registry registrydomain.Repository
	Batches  batchdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	registry registrydomain.Repository
	batches  batchdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ingest.service"),
		genID:    p.GenID,
		registry: p.Registry,
		batches:  p.Batches,
	}
}

func (s *Service) ReadRows(fileName string, r io.Reader) ([]domain.Row, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(fileName), ".csv"):
		return readCSV(r)
	case strings.HasSuffix(strings.ToLower(fileName), ".xlsx"):
		return readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFile, fileName)
	}
}

func readCSV(r io.Reader) ([]domain.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrEmptySpreadsheet
	}
	return rowsFromRecords(records), nil
}

func readXLSX(r io.Reader) ([]domain.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.ErrEmptySpreadsheet
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrEmptySpreadsheet
	}
	return rowsFromRecords(records), nil
}

func rowsFromRecords(records [][]string) []domain.Row {
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = domain.NormalizeHeader(h)
	}

	rows := make([]domain.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := domain.Row{}
		for i, cell := range record {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			row[headers[i]] = strings.TrimSpace(cell)
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func (s *Service) Ingest(ctx context.Context, source domain.Source, fileName string, rows []domain.Row, uploadedBy string) (snowflake.ID, error) {
	batch := &batchdomain.Batch{
		ID:            s.genID.Generate(),
		Source:        string(source),
		FileName:      fileName,
		FileHash:      fileHash(string(source), fileName, len(rows)),
		UploadedBy:    uploadedBy,
		UploadedAtUtc: time.Now().UTC(),
		Status:        batchdomain.StatusStaged,
	}
	if err := s.batches.Insert(ctx, s.db, batch); err != nil {
		// The file hash is deterministic over source, name and row count, so
		// re-uploading the same extract trips the unique index.
		if pkgdb.IsDuplicateKeyErr(err) {
			return 0, batchdomain.ErrDuplicateFile
		}
		return 0, err
	}

	if err := s.StageInto(ctx, batch.ID, source, rows); err != nil {
		return 0, err
	}

	s.log.Info("batch staged",
		zap.String("batch_id", batch.ID.String()),
		zap.String("source", string(source)),
		zap.Int("rows", len(rows)))
	return batch.ID, nil
}

func (s *Service) StageInto(ctx context.Context, batchID snowflake.ID, source domain.Source, rows []domain.Row) error {
	switch source {
	case domain.SourceTarkhees:
		return s.stageLicenses(ctx, batchID, rows)
	case domain.SourceNoor:
		return s.stageRoster(ctx, batchID, rows)
	case domain.SourceMadaris:
		return s.stageSchools(ctx, batchID, rows)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownSource, source)
	}
}

func (s *Service) stageLicenses(ctx context.Context, batchID snowflake.ID, rows []domain.Row) error {
	for _, row := range rows {
		cr := row.Get("unified_cr_number", "cr", "cr_number")
		ministrySchoolID := row.Get("ministry_school_id", "school_id")
		if cr == "" && ministrySchoolID == "" {
			continue
		}
		license := &registrydomain.License{
			ID:               s.genID.Generate(),
			MinistrySchoolID: ministrySchoolID,
			CRNumber:         cr,
			LicenseNumber:    row.Get("license_number"),
			InstitutionName:  row.Get("institution_name", "school_name_ar"),
			LicenseStatus:    row.Get("license_status", "status"),
			LicenseType:      row.Get("license_type"),
			IssueDate:        parseDate(row.Get("issue_date")),
			ExpiryDate:       parseDate(row.Get("expiry_date")),
			BatchID:          batchID,
		}
		if err := s.registry.InsertLicense(ctx, s.db, license); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) stageRoster(ctx context.Context, batchID snowflake.ID, rows []domain.Row) error {
	now := time.Now().UTC()
	// One parent row per distinct ministry parent id; the roster repeats the
	// parent on every child row.
	seenParents := map[string]bool{}
	schoolCache := map[string]*registrydomain.School{}

	for _, row := range rows {
		school, err := s.schoolForMinistryID(ctx, schoolCache, row.Get("ministry_school_id", "school_id"))
		if err != nil {
			return err
		}

		studentID := row.Get("ministry_student_id", "student_id")
		studentName := row.Get("fullname_ar", "student_name")
		if studentID != "" || studentName != "" {
			student := &registrydomain.Student{
				ID:                s.genID.Generate(),
				MinistryStudentID: studentID,
				NationalID:        row.Get("national_id", "student_national_id"),
				FullNameAr:        studentName,
				FullNameEn:        row.Get("fullname_en", "student_name_en"),
				DOB:               parseDate(row.Get("dob", "date_of_birth", "birth_date")),
				Gender:            row.Get("gender"),
				Nationality:       row.Get("nationality"),
				Grade:             row.Get("grade", "class"),
				PhonesCsv:         row.Get("parent_phone", "phone"),
				EmailsCsv:         row.Get("email", "student_email"),
				Address:           row.Get("address"),
				MinistrySchoolID:  row.Get("ministry_school_id", "school_id"),
				BatchID:           batchID,
				LastUpdated:       now,
			}
			if school != nil {
				student.CurrentSchoolID = &school.ID
			}
			if err := s.registry.InsertStudent(ctx, s.db, student); err != nil {
				return err
			}
			if school != nil {
				enrollment := &registrydomain.Enrollment{
					ID:           s.genID.Generate(),
					StudentID:    student.ID,
					SchoolID:     school.ID,
					AcademicYear: row.Get("academic_year", "year"),
					Grade:        student.Grade,
					Class:        row.Get("class_name", "section"),
					Status:       "Active",
					BatchID:      batchID,
				}
				if err := s.registry.InsertEnrollment(ctx, s.db, enrollment); err != nil {
					return err
				}
			}
		}

		parentID := row.Get("ministry_parent_id", "parent_id")
		if parentID == "" || seenParents[parentID] {
			continue
		}
		seenParents[parentID] = true
		parent := &registrydomain.Parent{
			ID:               s.genID.Generate(),
			MinistryParentID: parentID,
			NationalID:       row.Get("parent_national_id"),
			FullNameAr:       row.Get("parent_name", "fullname_parent_ar"),
			PhonesCsv:        row.Get("parent_phone", "phone"),
			EmailsCsv:        row.Get("parent_email"),
			Address:          row.Get("address"),
			BatchID:          batchID,
			LastUpdated:      now,
		}
		if err := s.registry.InsertParent(ctx, s.db, parent); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) stageSchools(ctx context.Context, batchID snowflake.ID, rows []domain.Row) error {
	now := time.Now().UTC()
	for _, row := range rows {
		cr := row.Get("cr", "cr_number", "commercial_registration", "unified_cr_number")
		name := row.Get("school_name_ar", "name_ar")
		if cr == "" && name == "" {
			continue
		}
		school := &registrydomain.School{
			ID:               s.genID.Generate(),
			MadarisSchoolID:  row.Get("madaris_school_id", "school_id"),
			MinistrySchoolID: row.Get("ministry_school_id"),
			CRNumber:         cr,
			NameAr:           name,
			NameEn:           row.Get("school_name_en", "name_en"),
			Region:           row.Get("region"),
			City:             row.Get("city"),
			District:         row.Get("district"),
			StagesCsv:        row.Get("stages", "school_stages"),
			Status:           row.Get("status"),
			BatchID:          batchID,
			LastUpdated:      now,
		}
		if err := s.registry.InsertSchool(ctx, s.db, school); err != nil {
			return err
		}
	}
	return nil
}

// schoolForMinistryID resolves a roster row's school reference against the
// registry, one lookup per distinct id. Returns nil for blank or unknown
// ids; the bridge reports those rows, staging does not.
func (s *Service) schoolForMinistryID(ctx context.Context, cache map[string]*registrydomain.School, ministrySchoolID string) (*registrydomain.School, error) {
	if ministrySchoolID == "" {
		return nil, nil
	}
	if school, ok := cache[ministrySchoolID]; ok {
		return school, nil
	}
	school, err := s.registry.FindSchoolByNaturalKey(ctx, s.db, "", ministrySchoolID, 0)
	if err != nil {
		return nil, err
	}
	cache[ministrySchoolID] = school
	return school, nil
}

func parseDate(v string) *time.Time {
	if v == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func fileHash(parts ...any) string {
	h := sha256.New()
	fmt.Fprint(h, parts...)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
