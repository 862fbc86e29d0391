package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/madaris/dq/internal/config"
	"github.com/madaris/dq/internal/export/domain"
	"github.com/xuri/excelize/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var workbookHeaders = []string{
	"Record_Type", "Ministry_ID", "Name", "Mapped_CR",
	"Mapped_Madaris_School_ID", "Mapped_Madaris_School_Name",
	"Ministry_School_ID", "Grade", "Parent_Phone",
	"Match_Method", "Confidence", "Issues",
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

type Service struct {
	exportDir string
	log       *zap.Logger
}

func New(p Params) domain.Service {
	return &Service{
		exportDir: p.Cfg.ExportDir,
		log:       p.Log.Named("export.service"),
	}
}

func (s *Service) WriteRun(jobID string, rows []domain.ConsolidatedRow, summary domain.Summary) (string, error) {
	dir := filepath.Join(s.exportDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if err := s.writeWorkbook(filepath.Join(dir, domain.WorkbookName), rows); err != nil {
		return "", err
	}
	if err := writeSummary(filepath.Join(dir, domain.SummaryName), summary); err != nil {
		return "", err
	}

	s.log.Info("run exports written",
		zap.String("job_id", jobID),
		zap.Int("rows", len(rows)))
	return dir, nil
}

func (s *Service) writeWorkbook(path string, rows []domain.ConsolidatedRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), domain.SheetName); err != nil {
		return err
	}
	for i, h := range workbookHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(domain.SheetName, cell, h); err != nil {
			return err
		}
	}

	for i, row := range rows {
		values := []any{
			row.RecordType,
			sanitizeCell(row.MinistryID),
			sanitizeCell(row.Name),
			sanitizeCell(row.MappedCR),
			sanitizeCell(row.MappedMadarisSchoolID),
			sanitizeCell(row.MappedMadarisSchoolName),
			sanitizeCell(row.MinistrySchoolID),
			sanitizeCell(row.Grade),
			sanitizeCell(row.ParentPhone),
			row.MatchMethod,
			row.Confidence,
			sanitizeCell(row.Issues),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(domain.SheetName, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(domain.SheetName, "A", "L", 24); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeSummary(path string, summary domain.Summary) error {
	var b strings.Builder
	b.WriteString("metric,value\n")
	fmt.Fprintf(&b, "schools_matched,%d\n", summary.SchoolsMatched)
	fmt.Fprintf(&b, "students_prepared,%d\n", summary.StudentsPrepared)
	fmt.Fprintf(&b, "parents_prepared,%d\n", summary.ParentsPrepared)
	fmt.Fprintf(&b, "exceptions,%d\n", summary.Exceptions)
	fmt.Fprintf(&b, "total_records,%d\n", summary.TotalRecords())
	fmt.Fprintf(&b, "success_rate,%.2f%%\n", summary.SuccessRate())
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// sanitizeCell defangs formula injection: a leading = + - or @ gets an
// apostrophe prefix so spreadsheet tools render it as text.
func sanitizeCell(v string) string {
	if v == "" {
		return ""
	}
	switch v[0] {
	case '=', '+', '-', '@':
		return "'" + v
	}
	return v
}

func (s *Service) Path(jobID, exportName string) (string, error) {
	// Reject anything that could step outside the run directory.
	if exportName != filepath.Base(exportName) || strings.HasPrefix(exportName, ".") {
		return "", domain.ErrExportNotFound
	}
	path := filepath.Join(s.exportDir, jobID, exportName)
	if _, err := os.Stat(path); err != nil {
		return "", domain.ErrExportNotFound
	}
	return path, nil
}
