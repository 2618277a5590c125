package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/garethmul/newsmill/pkg/config"
)

// CallRecord is the provenance of one provider attempt, successful or not:
// the request knobs that were sent, the response, and how it ended.
type CallRecord struct {
	AccountID         string
	JobID             *string
	Provider          string
	Model             string
	PromptText        string
	SystemInstruction string
	Temperature       float64
	MaxOutputTokens   int
	ResponseText      string
	TokensInput       int
	TokensOutput      int
	TokensTotal       int
	Duration          time.Duration
	StopReason        string
	Complete          bool
	Truncated         bool
	SafetyRatings     json.RawMessage
	Success           bool
	ErrorMessage      *string
	Warning           *string
}

// Recorder persists provider call provenance.
type Recorder interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}

// Call is one model invocation attributed to an account and, when running
// inside a job, to that job.
type Call struct {
	AccountID string
	JobID     *string
	Request
}

// Client wraps a Provider with the operational envelope every caller needs:
// rate limiting, per-attempt timeout, retry of transient failures, and an
// audit record handed to the Recorder for every attempt made.
type Client struct {
	provider    Provider
	recorder    Recorder
	limiter     *rate.Limiter
	timeout     time.Duration
	maxAttempts int
	model       string
	temperature float64
	maxTokens   int32
	logger      *slog.Logger
}

// NewClient assembles a Client around the given provider. recorder may be nil
// when call provenance is not wanted.
func NewClient(provider Provider, recorder Recorder, cfg *config.LLMConfig, logger *slog.Logger) *Client {
	model := cfg.GeminiModel
	if provider.Name() == config.ProviderClaude {
		model = cfg.ClaudeModel
	}
	return &Client{
		provider:    provider,
		recorder:    recorder,
		limiter:     newLimiter(cfg.RequestsPerSecond, cfg.Burst),
		timeout:     cfg.CallTimeout,
		maxAttempts: cfg.MaxAttempts,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
		logger:      logger.With("component", "llm"),
	}
}

// Provider returns the name of the wrapped provider.
func (c *Client) Provider() string { return c.provider.Name() }

// Generate runs one model call through the rate limiter with retries.
// Zero-valued Request fields are filled from the configured defaults. Every
// attempt is recorded, including the ones that fail.
func (c *Client) Generate(ctx context.Context, call Call) (*Response, error) {
	req := c.applyDefaults(call.Request)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.attempt(ctx, req)
		c.record(call, req, resp, err, time.Since(start))
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetriable(err) || attempt == c.maxAttempts {
			break
		}

		delay := retryDelayFor(err, attempt)
		c.logger.Warn("retrying AI call",
			"provider", c.provider.Name(),
			"attempt", attempt,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (c *Client) applyDefaults(req Request) Request {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}
	if req.MaxOutputTokens == 0 {
		req.MaxOutputTokens = c.maxTokens
	}
	return req
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.provider.Generate(callCtx, req)
}

// record persists one attempt's provenance. Uses a fresh context so audit
// rows land even when the call itself was cancelled, and never fails the
// business operation.
func (c *Client) record(call Call, req Request, resp *Response, callErr error, duration time.Duration) {
	if c.recorder == nil {
		return
	}

	rec := CallRecord{
		AccountID:         call.AccountID,
		JobID:             call.JobID,
		Provider:          c.provider.Name(),
		Model:             req.Model,
		PromptText:        req.Prompt,
		SystemInstruction: req.SystemInstruction,
		Temperature:       req.Temperature,
		MaxOutputTokens:   int(req.MaxOutputTokens),
		Duration:          duration,
		Success:           callErr == nil,
	}
	if resp != nil {
		rec.ResponseText = resp.Text
		rec.TokensInput = int(resp.TokensInput)
		rec.TokensOutput = int(resp.TokensOutput)
		rec.TokensTotal = int(resp.TokensTotal)
		rec.StopReason = resp.StopReason
		rec.Complete = resp.Complete
		rec.Truncated = resp.Truncated
		rec.SafetyRatings = resp.SafetyRatings
		if resp.Truncated {
			warning := "response truncated at the output token limit"
			rec.Warning = &warning
		}
	}
	if callErr != nil {
		msg := callErr.Error()
		rec.ErrorMessage = &msg
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.recorder.RecordCall(recordCtx, rec); err != nil {
		c.logger.Warn("failed to record AI call",
			"provider", c.provider.Name(),
			"account_id", call.AccountID,
			"error", err)
	}
}
