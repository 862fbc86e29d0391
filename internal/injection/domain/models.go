package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// EntityImpact is the create/update split the preview computed for one
// entity type.
type EntityImpact struct {
	ToCreate int `json:"toCreate"`
	ToUpdate int `json:"toUpdate"`
}

// ImpactReport is the full dry-run result for a batch. ReadyForInjection is
// false while any high-severity issue remains open.
type ImpactReport struct {
	BatchID            snowflake.ID `json:"batchId"`
	Schools            EntityImpact `json:"schools"`
	Students           EntityImpact `json:"students"`
	Parents            EntityImpact `json:"parents"`
	TotalChanges       int          `json:"totalChanges"`
	OpenIssues         int64        `json:"openIssues"`
	HighSeverityIssues int64        `json:"highSeverityIssues"`
	ReadyForInjection  bool         `json:"readyForInjection"`
	Warnings           []string     `json:"warnings"`
}

type EntityOutcome struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

type Status string

const (
	StatusSimulated         Status = "Simulated"
	StatusInjected          Status = "Injected"
	StatusPartiallyInjected Status = "PartiallyInjected"
)

// InjectionReport records per-entity-type outcomes. Injection is sequential
// per entity type and not transactional across them, so a partially injected
// batch is a legitimate terminal state the consumer must be able to see.
type InjectionReport struct {
	BatchID   snowflake.ID  `json:"batchId"`
	Simulated bool          `json:"simulated"`
	Status    Status        `json:"status"`
	Schools   EntityOutcome `json:"schools"`
	Students  EntityOutcome `json:"students"`
	Parents   EntityOutcome `json:"parents"`
}

func (r InjectionReport) TotalErrors() int {
	return r.Schools.Errors + r.Students.Errors + r.Parents.Errors
}

var ErrInjectionBlocked = errors.New("injection_blocked")

// BlockedError reports why a live injection was refused.
type BlockedError struct {
	HighSeverityCount int64
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("injection blocked: %d open high-severity issues", e.HighSeverityCount)
}

func (e *BlockedError) Unwrap() error { return ErrInjectionBlocked }

type Service interface {
	PreviewImpact(ctx context.Context, batchID snowflake.ID) (ImpactReport, error)
	Inject(ctx context.Context, batchID snowflake.ID, simulate bool) (InjectionReport, error)
}
