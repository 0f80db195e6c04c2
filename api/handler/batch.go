package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/maprank/jobs"
	"github.com/use-agent/maprank/models"
	"github.com/use-agent/maprank/report"
	"github.com/use-agent/maprank/tabular"
)

// PostBatch returns a handler for POST /api/v1/batch.
// It validates the request, registers a job, and resolves the pairs in the
// background. Pairs are taken as given; duplicates are resolved twice.
func PostBatch(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewRankError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		accept(c, s, req.Pairs, req.Options)
	}
}

// PostBatchCSV returns a handler for POST /api/v1/batch/csv.
// The multipart field "file" holds the input table; batch options come from
// the remaining form fields. Duplicate pairs are dropped.
func PostBatchCSV(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var opts models.BatchOptions
		if err := c.ShouldBind(&opts); err != nil {
			respondError(c, models.NewRankError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		fh, err := c.FormFile("file")
		if err != nil {
			respondError(c, models.NewRankError(models.ErrCodeInvalidInput, "multipart field \"file\" is required", err))
			return
		}
		f, err := fh.Open()
		if err != nil {
			respondError(c, models.NewRankError(models.ErrCodeInvalidInput, "cannot read uploaded file", err))
			return
		}
		defer f.Close()

		pairs, err := tabular.ReadPairs(f)
		if err != nil {
			respondError(c, err)
			return
		}
		accept(c, s, pairs, opts)
	}
}

func accept(c *gin.Context, s *Service, pairs []models.Pair, opts models.BatchOptions) {
	if err := s.validatePairs(pairs); err != nil {
		respondError(c, err)
		return
	}
	job, err := s.startBatch(pairs, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.BatchResponse{
		ID:     job.ID,
		Status: models.StatusProcessing,
		Total:  len(pairs),
	})
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := lookupJob(c, s)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, job.Status(true))
	}
}

// CancelBatch returns a handler for DELETE /api/v1/batch/:id. The job stops
// before its next pair and keeps the rows resolved so far.
func CancelBatch(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := lookupJob(c, s)
		if !ok {
			return
		}
		if !job.Cancel() {
			respondError(c, models.NewRankError(models.ErrCodeJobRunning, "batch has already finished", nil))
			return
		}
		c.JSON(http.StatusAccepted, job.Status(false))
	}
}

// ExportBatch returns a handler for GET /api/v1/batch/:id/export, which
// downloads the rows as a BOM-prefixed CSV file.
func ExportBatch(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := finishedJob(c, s)
		if !ok {
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".csv"))
		c.Status(http.StatusOK)
		if err := tabular.WriteResults(c.Writer, job.Rows()); err != nil {
			_ = c.Error(err)
		}
	}
}

// BatchReport returns a handler for GET /api/v1/batch/:id/report.
// format is json (default), html or markdown.
func BatchReport(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := finishedJob(c, s)
		if !ok {
			return
		}
		rep := report.Build(job.Rows())

		switch format := c.DefaultQuery("format", "json"); format {
		case "json":
			c.JSON(http.StatusOK, rep)
		case "html":
			c.Header("Content-Type", "text/html; charset=utf-8")
			c.Status(http.StatusOK)
			if err := s.Renderer.HTML(c.Writer, rep); err != nil {
				_ = c.Error(err)
			}
		case "markdown":
			md, err := s.Renderer.Markdown(rep)
			if err != nil {
				respondError(c, models.NewRankError(models.ErrCodeInternal, "rendering report failed", err))
				return
			}
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
		default:
			respondError(c, models.NewRankError(models.ErrCodeInvalidInput,
				fmt.Sprintf("unknown report format %q: use json, html or markdown", format), nil))
		}
	}
}

// Template returns a handler for GET /api/v1/template.csv.
func Template() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="pairs.csv"`)
		c.Status(http.StatusOK)
		if err := tabular.WritePairsTemplate(c.Writer); err != nil {
			_ = c.Error(err)
		}
	}
}

func lookupJob(c *gin.Context, s *Service) (*jobs.Job, bool) {
	job, ok := s.Jobs.Get(c.Param("id"))
	if !ok {
		respondError(c, models.NewRankError(models.ErrCodeJobNotFound, "batch job not found", nil))
		return nil, false
	}
	return job, true
}

func finishedJob(c *gin.Context, s *Service) (*jobs.Job, bool) {
	job, ok := lookupJob(c, s)
	if !ok {
		return nil, false
	}
	if !job.Done() {
		respondError(c, models.NewRankError(models.ErrCodeJobRunning, "batch is still processing", nil))
		return nil, false
	}
	return job, true
}
