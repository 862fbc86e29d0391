package domain

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Source identifies which upstream system a batch file came from. The source
// decides which entity type the rows are staged as.
type Source string

const (
	SourceTarkhees Source = "Tarkhees"
	SourceNoor     Source = "Noor"
	SourceMadaris  Source = "Madaris"
)

var (
	ErrUnknownSource    = errors.New("unknown_ingest_source")
	ErrUnsupportedFile  = errors.New("unsupported_file_format")
	ErrEmptySpreadsheet = errors.New("empty_spreadsheet")
)

// Row is one spreadsheet row keyed by normalized header name (lower-cased,
// trimmed, spaces folded to underscores).
type Row map[string]string

// Get returns the first non-empty value among the aliased column names.
// Upstream extracts are inconsistent about headers, so every lookup carries
// its known fallbacks.
func (r Row) Get(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// NormalizeHeader canonicalizes a spreadsheet column name for Row lookups.
func NormalizeHeader(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

type Service interface {
	// ReadRows parses a CSV or XLSX stream into header-keyed rows. The file
	// name picks the parser.
	ReadRows(fileName string, r io.Reader) ([]Row, error)

	// Ingest registers a Staged batch and stages every row as the entity
	// type the source implies. Returns the new batch id.
	Ingest(ctx context.Context, source Source, fileName string, rows []Row, uploadedBy string) (snowflake.ID, error)

	// StageInto stages rows under an existing batch. The pipeline uses this
	// to land all three source files in one batch.
	StageInto(ctx context.Context, batchID snowflake.ID, source Source, rows []Row) error
}
