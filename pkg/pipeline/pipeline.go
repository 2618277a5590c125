// Package pipeline wires the content automation flows into the job queue:
// one handler per job type, each reporting progress checkpoints and writing
// its phase boundaries to the job's log trail.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/garethmul/newsmill/pkg/analysis"
	"github.com/garethmul/newsmill/pkg/fetcher"
	"github.com/garethmul/newsmill/pkg/generator"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/queue"
	"github.com/garethmul/newsmill/pkg/services"
)

// Articles selected when an ai_analysis payload names neither articles nor a
// limit.
const defaultAnalysisLimit = 20

// Pipeline owns the job-type handlers.
type Pipeline struct {
	fetcher   *fetcher.Fetcher
	analyzer  *analysis.Analyzer
	generator *generator.Generator
	articles  *services.ArticleService
	sources   *services.SourceService
	logger    *slog.Logger
}

// New creates the pipeline over the domain components.
func New(f *fetcher.Fetcher, a *analysis.Analyzer, g *generator.Generator, articles *services.ArticleService, sources *services.SourceService, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   f,
		analyzer:  a,
		generator: g,
		articles:  articles,
		sources:   sources,
		logger:    logger.With("component", "pipeline"),
	}
}

// Register binds every handler to its job type.
func (p *Pipeline) Register(pool *queue.WorkerPool) {
	pool.Register(models.JobTypeNewsAggregation, p.handleNewsAggregation)
	pool.Register(models.JobTypeAIAnalysis, p.handleAIAnalysis)
	pool.Register(models.JobTypeURLAnalysis, p.handleURLAnalysis)
	pool.Register(models.JobTypeContentGeneration, p.handleContentGeneration)
	pool.Register(models.JobTypeFullCycle, p.handleFullCycle)
}

// decodePayload re-validates the job payload. CreateJob already validated
// it, but jobs can sit queued across deploys, so handlers never trust a
// stored payload blindly.
func decodePayload[T any](run *queue.JobRun) (*T, error) {
	payload, err := models.ValidateJobPayload(run.Job.JobType, run.Job.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	typed, ok := payload.(*T)
	if !ok {
		return nil, fmt.Errorf("payload for %s decoded to unexpected type %T", run.Job.JobType, payload)
	}
	return typed, nil
}
