package migration

import (
	auditdomain "github.com/madaris/dq/internal/audit/domain"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	matchingdomain "github.com/madaris/dq/internal/matching/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// All tables are created automatically on startup so the service is usable
// out of the box for local and self-hosted environments.
var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

func Run(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&registrydomain.School{},
		&registrydomain.Student{},
		&registrydomain.Parent{},
		&registrydomain.License{},
		&registrydomain.Enrollment{},
		&batchdomain.Batch{},
		&issuedomain.DQIssue{},
		&matchingdomain.MatchCandidate{},
		&auditdomain.AuditEntry{},
	)
}
