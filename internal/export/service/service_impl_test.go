package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/madaris/dq/internal/config"
	"github.com/madaris/dq/internal/export/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func newExportService(t *testing.T) (domain.Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc := New(Params{
		Cfg: config.Config{ExportDir: dir},
		Log: zap.NewNop(),
	})
	return svc, dir
}

func TestWriteRun(t *testing.T) {
	svc, _ := newExportService(t)

	rows := []domain.ConsolidatedRow{
		{
			RecordType:              "Student",
			MinistryID:              "S-1",
			Name:                    "محمد أحمد",
			MappedCR:                "1010101010",
			MappedMadarisSchoolID:   "MAD-1",
			MappedMadarisSchoolName: "مدرسة النور",
			MinistrySchoolID:        "MIN-1",
			Grade:                   "3",
			MatchMethod:             "TarkheesBridge",
			Confidence:              0.99,
		},
		{
			RecordType:  "Parent",
			MinistryID:  "=cmd()",
			Name:        "+966500000000",
			MatchMethod: "TarkheesBridge",
			Confidence:  0.99,
		},
	}
	summary := domain.Summary{
		SchoolsMatched:   1,
		StudentsPrepared: 1,
		ParentsPrepared:  1,
		Exceptions:       0,
	}

	dir, err := svc.WriteRun("job-1", rows, summary)
	require.NoError(t, err)

	f, err := excelize.OpenFile(filepath.Join(dir, domain.WorkbookName))
	require.NoError(t, err)
	defer f.Close()

	records, err := f.GetRows(domain.SheetName)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Record_Type", records[0][0])
	assert.Equal(t, "Issues", records[0][11])
	assert.Equal(t, "Student", records[1][0])
	assert.Equal(t, "محمد أحمد", records[1][2])

	// Formula-looking cells are defanged with a leading apostrophe.
	assert.Equal(t, "'=cmd()", records[2][1])
	assert.Equal(t, "'+966500000000", records[2][2])

	summaryData, err := os.ReadFile(filepath.Join(dir, domain.SummaryName))
	require.NoError(t, err)
	content := string(summaryData)
	assert.True(t, strings.HasPrefix(content, "metric,value\n"))
	assert.Contains(t, content, "schools_matched,1\n")
	assert.Contains(t, content, "total_records,2\n")
	assert.Contains(t, content, "success_rate,100.00%\n")
}

func TestSummarySuccessRate(t *testing.T) {
	s := domain.Summary{StudentsPrepared: 3, ParentsPrepared: 1, Exceptions: 1}
	assert.Equal(t, 4, s.TotalRecords())
	assert.InDelta(t, 75.0, s.SuccessRate(), 1e-9)

	assert.Zero(t, domain.Summary{}.SuccessRate())
}

func TestPath(t *testing.T) {
	svc, _ := newExportService(t)

	_, err := svc.WriteRun("job-2", nil, domain.Summary{})
	require.NoError(t, err)

	path, err := svc.Path("job-2", domain.SummaryName)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = svc.Path("job-2", "missing.csv")
	assert.ErrorIs(t, err, domain.ErrExportNotFound)

	_, err = svc.Path("job-2", "../"+domain.SummaryName)
	assert.ErrorIs(t, err, domain.ErrExportNotFound)
}
