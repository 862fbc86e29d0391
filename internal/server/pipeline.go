package server

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ingestdomain "github.com/madaris/dq/internal/ingest/domain"
	pipelinedomain "github.com/madaris/dq/internal/pipeline/domain"
)

func (s *Server) RunPipeline(c *gin.Context) {
	tarkheesRows, tarkheesName, ok := s.formFileRows(c, "tarkheesLicense")
	if !ok {
		return
	}
	noorRows, noorName, ok := s.formFileRows(c, "noorRoster")
	if !ok {
		return
	}
	madarisRows, madarisName, ok := s.formFileRows(c, "madarisSchools")
	if !ok {
		return
	}

	uploadedBy := strings.TrimSpace(c.PostForm("uploadedBy"))
	if uploadedBy == "" {
		uploadedBy = "system"
	}

	result, err := s.pipelineSvc.Run(c.Request.Context(), pipelinedomain.Input{
		TarkheesRows: tarkheesRows,
		NoorRows:     noorRows,
		MadarisRows:  madarisRows,
		FileNames:    [3]string{tarkheesName, noorName, madarisName},
		UploadedBy:   uploadedBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) IngestFile(c *gin.Context) {
	source := ingestdomain.Source(strings.TrimSpace(c.Param("source")))

	rows, fileName, ok := s.formFileRows(c, "file")
	if !ok {
		return
	}

	uploadedBy := strings.TrimSpace(c.PostForm("uploadedBy"))
	if uploadedBy == "" {
		uploadedBy = "system"
	}

	batchID, err := s.ingestSvc.Ingest(c.Request.Context(), source, fileName, rows, uploadedBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batchId": batchID, "rows": len(rows)})
}

func (s *Server) DownloadExport(c *gin.Context) {
	path, err := s.exportSvc.Path(c.Param("jobId"), c.Param("name"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.FileAttachment(path, c.Param("name"))
}

func (s *Server) formFileRows(c *gin.Context, field string) ([]ingestdomain.Row, string, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return nil, "", false
	}

	rows, err := s.readMultipart(header)
	if err != nil {
		AbortWithError(c, err)
		return nil, "", false
	}
	return rows, header.Filename, true
}

func (s *Server) readMultipart(header *multipart.FileHeader) ([]ingestdomain.Row, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.ingestSvc.ReadRows(header.Filename, f)
}
