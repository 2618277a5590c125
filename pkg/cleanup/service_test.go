package cleanup

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/database"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/test/util"
)

const cleanupAccount = "acct-cleanup"

func setupCleanup(t *testing.T) (*Service, *services.JobService, *database.Client) {
	t.Helper()
	client := util.SetupTestDatabase(t)
	jobService := services.NewJobService(client, 3)
	aiLogService := services.NewAILogService(client)
	accountService := services.NewAccountService(client)

	_, err := accountService.CreateAccount(context.Background(), models.CreateAccountRequest{
		AccountID: cleanupAccount,
		Name:      "Cleanup Test",
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultRetentionConfig()
	return NewService(cfg, jobService, aiLogService, logger), jobService, client
}

// terminalJob creates a job, drives it terminal, and backdates its
// completion by the given number of days.
func terminalJob(t *testing.T, jobs *services.JobService, client *database.Client, status models.JobStatus, ageDays int) string {
	t.Helper()
	ctx := context.Background()
	job, err := jobs.CreateJob(ctx, cleanupAccount, models.CreateJobRequest{JobType: models.JobTypeNewsAggregation})
	require.NoError(t, err)
	_, err = jobs.ClaimJob(ctx, job.JobID, "test-worker")
	require.NoError(t, err)

	switch status {
	case models.JobStatusCompleted:
		_, err = jobs.CompleteJob(ctx, job.JobID, "")
	case models.JobStatusFailed:
		_, err = jobs.FailJob(ctx, job.JobID, "broke")
	case models.JobStatusCancelled:
		_, err = jobs.CancelFinalize(ctx, job.JobID)
	default:
		t.Fatalf("unsupported terminal status %s", status)
	}
	require.NoError(t, err)

	_, err = client.DB().ExecContext(ctx,
		`UPDATE jobs SET completed_at = now() - make_interval(days => $2) WHERE job_id = $1`,
		job.JobID, ageDays)
	require.NoError(t, err)
	return job.JobID
}

func TestRunAllSweepsByRetentionClass(t *testing.T) {
	svc, jobs, client := setupCleanup(t)
	ctx := context.Background()

	oldCompleted := terminalJob(t, jobs, client, models.JobStatusCompleted, 45)
	freshCompleted := terminalJob(t, jobs, client, models.JobStatusCompleted, 5)
	oldCancelled := terminalJob(t, jobs, client, models.JobStatusCancelled, 45)
	// Failed jobs get the longer retention window: 45 days old survives.
	agingFailed := terminalJob(t, jobs, client, models.JobStatusFailed, 45)
	expiredFailed := terminalJob(t, jobs, client, models.JobStatusFailed, 120)

	svc.RunAll()

	_, err := jobs.GetJob(ctx, cleanupAccount, oldCompleted)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = jobs.GetJob(ctx, cleanupAccount, oldCancelled)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = jobs.GetJob(ctx, cleanupAccount, expiredFailed)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = jobs.GetJob(ctx, cleanupAccount, freshCompleted)
	assert.NoError(t, err)
	_, err = jobs.GetJob(ctx, cleanupAccount, agingFailed)
	assert.NoError(t, err, "failed jobs survive the shorter window")
}

func TestRunAllSweepsOldAILogs(t *testing.T) {
	svc, _, client := setupCleanup(t)
	ctx := context.Background()

	aiLogs := services.NewAILogService(client)
	old, err := aiLogs.Record(ctx, services.RecordParams{
		AccountID: cleanupAccount,
		Provider:  "gemini",
		Model:     "m",
	})
	require.NoError(t, err)
	fresh, err := aiLogs.Record(ctx, services.RecordParams{
		AccountID: cleanupAccount,
		Provider:  "gemini",
		Model:     "m",
	})
	require.NoError(t, err)

	_, err = client.DB().ExecContext(ctx,
		`UPDATE ai_response_logs SET created_at = now() - interval '200 days' WHERE id = $1`, old.ID)
	require.NoError(t, err)

	svc.RunAll()

	remaining, err := aiLogs.ListForAccount(ctx, cleanupAccount, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}

func TestRunAllKeepsNonTerminalJobs(t *testing.T) {
	svc, jobs, client := setupCleanup(t)
	ctx := context.Background()

	job, err := jobs.CreateJob(ctx, cleanupAccount, models.CreateJobRequest{JobType: models.JobTypeAIAnalysis})
	require.NoError(t, err)
	_, err = client.DB().ExecContext(ctx,
		`UPDATE jobs SET created_at = now() - interval '400 days' WHERE job_id = $1`, job.JobID)
	require.NoError(t, err)

	svc.RunAll()

	got, err := jobs.GetJob(ctx, cleanupAccount, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
}
