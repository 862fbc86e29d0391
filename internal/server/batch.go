package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
)

func (s *Server) ListBatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	batches, err := s.batchSvc.List(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": batches})
}

func (s *Server) GetBatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := s.batchSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

func (s *Server) RunMatching(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	token, err := s.matchingSvc.RunMatching(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batchId": id, "matchingToken": token.String()})
}

func (s *Server) GetImpact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	report, err := s.injectionSvc.PreviewImpact(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) Inject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	simulate, _ := strconv.ParseBool(c.DefaultQuery("simulate", "false"))

	report, err := s.injectionSvc.Inject(c.Request.Context(), id, simulate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) MatchCandidates(c *gin.Context) {
	entityType := registrydomain.EntityType(c.Param("entityType"))
	switch entityType {
	case registrydomain.EntitySchool, registrydomain.EntityStudent, registrydomain.EntityParent:
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sourceID, ok := pathID(c, "sourceId")
	if !ok {
		return
	}

	candidates, err := s.matchingSvc.Candidates(c.Request.Context(), entityType, sourceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": candidates})
}

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}
