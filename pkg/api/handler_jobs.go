package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garethmul/newsmill/pkg/models"
)

func (s *Server) createJob(c *gin.Context) {
	var req models.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	job, err := s.jobs.CreateJob(c.Request.Context(), accountID(c), req)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) listJobs(c *gin.Context) {
	params := models.ListJobsParams{
		AccountID: accountID(c),
		Status:    models.JobStatus(c.Query("status")),
		JobType:   models.JobType(c.Query("type")),
		Page:      intQuery(c, "page", 1),
		PageSize:  intQuery(c, "page_size", 20),
	}

	list, err := s.jobs.ListJobs(c.Request.Context(), params)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) jobStats(c *gin.Context) {
	stats, err := s.jobs.JobStats(c.Request.Context(), accountID(c))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getJob(c *gin.Context) {
	ctx := c.Request.Context()

	job, err := s.jobs.GetJob(ctx, accountID(c), c.Param("id"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	if c.Query("logs") != "true" {
		c.JSON(http.StatusOK, job)
		return
	}

	logs, err := s.jobs.ListJobLogs(ctx, job.JobID)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "logs": logs})
}

func (s *Server) cancelJob(c *gin.Context) {
	job, err := s.jobs.CancelJob(c.Request.Context(), accountID(c), c.Param("id"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	// Nudge an in-process worker so it does not wait for the next
	// cancellation poll.
	if s.canceller != nil {
		s.canceller.CancelJob(job.JobID)
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) retryJob(c *gin.Context) {
	job, err := s.jobs.RetryJob(c.Request.Context(), accountID(c), c.Param("id"))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// intQuery parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
