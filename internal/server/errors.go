package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	batchdomain "github.com/madaris/dq/internal/batch/domain"
	exportdomain "github.com/madaris/dq/internal/export/domain"
	ingestdomain "github.com/madaris/dq/internal/ingest/domain"
	injectiondomain "github.com/madaris/dq/internal/injection/domain"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type               string `json:"type"`
	Message            string `json:"message"`
	HighSeverityIssues int64  `json:"highSeverityIssues,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var blocked *injectiondomain.BlockedError
	if errors.As(err, &blocked) {
		return http.StatusConflict, errorPayload{
			Type:               "injection_blocked",
			Message:            blocked.Error(),
			HighSeverityIssues: blocked.HighSeverityCount,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, issuedomain.ErrAlreadyResolved),
		errors.Is(err, batchdomain.ErrDuplicateFile):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, issuedomain.ErrInvalidAction),
		errors.Is(err, issuedomain.ErrInvalidValue),
		errors.Is(err, ingestdomain.ErrUnknownSource),
		errors.Is(err, ingestdomain.ErrUnsupportedFile),
		errors.Is(err, ingestdomain.ErrEmptySpreadsheet):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, batchdomain.ErrNotFound),
		errors.Is(err, issuedomain.ErrNotFound),
		errors.Is(err, exportdomain.ErrExportNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
