package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	issuedomain "github.com/madaris/dq/internal/issue/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
)

func (s *Server) ExceptionQueue(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	entityType := registrydomain.EntityType(strings.TrimSpace(c.Query("entityType")))

	queue, err := s.issueSvc.Queue(c.Request.Context(), entityType, page, pageSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, queue)
}

func (s *Server) ExceptionStatistics(c *gin.Context) {
	stats, err := s.issueSvc.Statistics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) GetException(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	issue, err := s.issueSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

type resolveExceptionRequest struct {
	Resolved   bool   `json:"resolved"`
	ResolvedBy string `json:"resolvedBy"`
}

func (s *Server) ResolveException(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req resolveExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.issueSvc.Resolve(c.Request.Context(), id, req.Resolved, strings.TrimSpace(req.ResolvedBy)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type exceptionActionRequest struct {
	Action     string `json:"action"`
	Resolution string `json:"resolution"`
	ResolvedBy string `json:"resolvedBy"`
}

func (s *Server) ExceptionAction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req exceptionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	issue, err := s.issueSvc.ResolveWithAction(c.Request.Context(), id,
		issuedomain.Action(strings.ToLower(strings.TrimSpace(req.Action))),
		strings.TrimSpace(req.Resolution),
		strings.TrimSpace(req.ResolvedBy))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}
