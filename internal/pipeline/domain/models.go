package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ingestdomain "github.com/madaris/dq/internal/ingest/domain"
)

// Bridge outcomes for one roster row. TarkheesBridge is the happy path:
// ministry school id resolved to a CR through the licensing extract and the
// CR exists in the Madaris directory.
const (
	MethodTarkheesBridge = "TarkheesBridge"
	MethodCRNotInMadaris = "CRNotInMadaris"
	MethodNoBridge       = "NoMinistrySchoolIdOrNoBridge"
)

const (
	ConfidenceBridge   = 0.99
	ConfidenceCROnly   = 0.8
	ConfidenceNoBridge = 0.5
)

// Result summarizes one end-to-end pipeline run.
type Result struct {
	JobID            snowflake.ID `json:"jobId"`
	BatchID          snowflake.ID `json:"batchId"`
	SchoolsMatched   int          `json:"schoolsMatched"`
	StudentsPrepared int          `json:"studentsPrepared"`
	ParentsPrepared  int          `json:"parentsPrepared"`
	Exceptions       int          `json:"exceptions"`
	OverallDqScore   float64      `json:"overallDqScore"`
	ExportDir        string       `json:"exportDir,omitempty"`
}

// Input carries the three parsed source files for one run.
type Input struct {
	TarkheesRows []ingestdomain.Row
	NoorRows     []ingestdomain.Row
	MadarisRows  []ingestdomain.Row
	FileNames    [3]string
	UploadedBy   string
}

type Service interface {
	Run(ctx context.Context, in Input) (Result, error)
}
