package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/madaris/dq/internal/audit/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
)

func (s *Server) ListAudit(c *gin.Context) {
	filter := auditdomain.ListFilter{
		EntityType: registrydomain.EntityType(strings.TrimSpace(c.Query("entityType"))),
		Action:     auditdomain.Action(strings.TrimSpace(c.Query("action"))),
	}
	if raw := c.Query("entityId"); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.EntityID = id
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil {
		filter.Limit = limit
	}

	entries, err := s.auditSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}
