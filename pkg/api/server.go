// Package api is a thin HTTP adapter over the service layer: JSON in and
// out, account scoping via the X-Account-ID header, no business logic of its
// own.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garethmul/newsmill/pkg/database"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/pkg/version"
)

// JobCanceller lets the API short-cut cooperative cancellation for jobs
// running in this process. The worker pool satisfies this.
type JobCanceller interface {
	CancelJob(jobID string) bool
}

// Server holds the handler dependencies.
type Server struct {
	db        *database.Client
	jobs      *services.JobService
	sources   *services.SourceService
	articles  *services.ArticleService
	generated *services.GeneratedService
	templates *services.TemplateService
	canceller JobCanceller
	logger    *slog.Logger
}

// NewServer creates the API server. canceller may be nil when no worker pool
// runs in this process.
func NewServer(
	db *database.Client,
	jobs *services.JobService,
	sources *services.SourceService,
	articles *services.ArticleService,
	generated *services.GeneratedService,
	templates *services.TemplateService,
	canceller JobCanceller,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:        db,
		jobs:      jobs,
		sources:   sources,
		articles:  articles,
		generated: generated,
		templates: templates,
		canceller: canceller,
		logger:    logger.With("component", "api"),
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.health)

	v1 := router.Group("/api/v1", requireAccount())
	{
		v1.POST("/jobs", s.createJob)
		v1.GET("/jobs", s.listJobs)
		v1.GET("/jobs/stats", s.jobStats)
		v1.GET("/jobs/:id", s.getJob)
		v1.POST("/jobs/:id/cancel", s.cancelJob)
		v1.POST("/jobs/:id/retry", s.retryJob)

		v1.GET("/sources", s.listSources)
		v1.POST("/sources", s.createSource)

		v1.GET("/articles", s.listArticles)

		v1.GET("/generated", s.listGenerated)
		v1.POST("/generated/:id/approve", s.approveGenerated)
		v1.POST("/generated/:id/publish", s.publishGenerated)

		v1.GET("/templates", s.listTemplates)
		v1.POST("/templates/:id/versions", s.createTemplateVersion)
	}

	return router
}

// health reports liveness plus a bounded database ping.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := s.db.Health(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"version":  version.Full(),
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"database": dbHealth,
	})
}
