package domain

import "errors"

const (
	WorkbookName = "madaris_injection_data.xlsx"
	SummaryName  = "processing_summary.csv"
	SheetName    = "Students_and_Parents"
)

var ErrExportNotFound = errors.New("export_not_found")

// ConsolidatedRow is one line of the injection-ready workbook: a student or
// parent with the school mapping the pipeline resolved for it.
type ConsolidatedRow struct {
	RecordType              string
	MinistryID              string
	Name                    string
	MappedCR                string
	MappedMadarisSchoolID   string
	MappedMadarisSchoolName string
	MinistrySchoolID        string
	Grade                   string
	ParentPhone             string
	MatchMethod             string
	Confidence              float64
	Issues                  string
}

// Summary holds the per-run metrics written next to the workbook.
type Summary struct {
	SchoolsMatched   int
	StudentsPrepared int
	ParentsPrepared  int
	Exceptions       int
}

func (s Summary) TotalRecords() int {
	return s.StudentsPrepared + s.ParentsPrepared
}

// SuccessRate is the share of prepared records without an exception, as a
// percentage rounded to two decimals.
func (s Summary) SuccessRate() float64 {
	total := s.TotalRecords()
	if total == 0 {
		return 0
	}
	rate := float64(total-s.Exceptions) / float64(total) * 100
	return float64(int(rate*100+0.5)) / 100
}

type Service interface {
	// WriteRun writes the consolidated workbook and the summary CSV into the
	// run's export directory and returns that directory.
	WriteRun(jobID string, rows []ConsolidatedRow, summary Summary) (string, error)

	// Path resolves a previously written export file for download.
	Path(jobID, exportName string) (string, error)
}
