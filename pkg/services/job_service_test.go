package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
	"github.com/garethmul/newsmill/test/util"
)

const jobsAccount = "acct-jobs"

func setupJobService(t *testing.T) *services.JobService {
	t.Helper()
	client := util.SetupTestDatabase(t)
	accounts := services.NewAccountService(client)
	_, err := accounts.CreateAccount(context.Background(), models.CreateAccountRequest{
		AccountID: jobsAccount,
		Name:      "Jobs Test",
	})
	require.NoError(t, err)
	return services.NewJobService(client, 3)
}

func createQueued(t *testing.T, svc *services.JobService, req models.CreateJobRequest) *models.Job {
	t.Helper()
	if req.JobType == "" {
		req.JobType = models.JobTypeNewsAggregation
	}
	job, err := svc.CreateJob(context.Background(), jobsAccount, req)
	require.NoError(t, err)
	return job
}

func claimProcessing(t *testing.T, svc *services.JobService, jobID string) *models.Job {
	t.Helper()
	job, err := svc.ClaimJob(context.Background(), jobID, "worker-test")
	require.NoError(t, err)
	return job
}

func TestCreateJobDefaults(t *testing.T) {
	svc := setupJobService(t)

	job := createQueued(t, svc, models.CreateJobRequest{})
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Priority)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Equal(t, json.RawMessage(`{}`), job.Payload)
	assert.Nil(t, job.WorkerID)
	assert.Nil(t, job.StartedAt)
}

func TestCreateJobValidation(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, jobsAccount, models.CreateJobRequest{JobType: "bogus"})
	assert.True(t, services.IsValidationError(err))

	_, err = svc.CreateJob(ctx, jobsAccount, models.CreateJobRequest{
		JobType: models.JobTypeAIAnalysis,
		Payload: json.RawMessage(`{"articleIds": "not-a-list"}`),
	})
	assert.True(t, services.IsValidationError(err))

	_, err = svc.CreateJob(ctx, "", models.CreateJobRequest{JobType: models.JobTypeNewsAggregation})
	assert.True(t, services.IsValidationError(err))
}

func TestClaimExactlyOneWinner(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan string, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		workerID := "racer-" + string(rune('a'+i))
		go func() {
			defer wg.Done()
			claimed, err := svc.ClaimJob(ctx, job.JobID, workerID)
			if err == nil {
				wins <- *claimed.WorkerID
			} else {
				assert.ErrorIs(t, err, services.ErrJobNotClaimable)
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)

	got, err := svc.GetJob(ctx, jobsAccount, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
	assert.Equal(t, winners[0], *got.WorkerID)
	assert.NotNil(t, got.StartedAt)
}

func TestQueueOrderPriorityThenFIFO(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()

	low := createQueued(t, svc, models.CreateJobRequest{Priority: 1})
	highOld := createQueued(t, svc, models.CreateJobRequest{Priority: 5})
	highNew := createQueued(t, svc, models.CreateJobRequest{Priority: 5})

	var drained []string
	for i := 0; i < 3; i++ {
		next, err := svc.NextQueuedJob(ctx)
		require.NoError(t, err)
		claimProcessing(t, svc, next.JobID)
		drained = append(drained, next.JobID)
	}

	assert.Equal(t, []string{highOld.JobID, highNew.JobID, low.JobID}, drained)

	_, err := svc.NextQueuedJob(ctx)
	assert.ErrorIs(t, err, services.ErrNoJobsAvailable)
}

func TestProgressClampAndMonotonic(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})
	claimProcessing(t, svc, job.JobID)

	require.NoError(t, svc.UpdateProgress(ctx, job.JobID, 150, "over"))
	got, err := svc.GetJob(ctx, jobsAccount, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 99, got.ProgressPct, "100 is reserved for completion")

	// Progress never goes backwards; the detail still updates.
	require.NoError(t, svc.UpdateProgress(ctx, job.JobID, 40, "behind"))
	got, err = svc.GetJob(ctx, jobsAccount, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 99, got.ProgressPct)
	assert.Equal(t, "behind", got.ProgressDetail)
}

func TestProgressIgnoredOnQueuedJob(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})

	require.NoError(t, svc.UpdateProgress(ctx, job.JobID, 50, "early"))
	got, err := svc.GetJob(ctx, jobsAccount, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ProgressPct)
}

func TestCompleteSetsHundredAndKeepsDetail(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})
	claimProcessing(t, svc, job.JobID)
	require.NoError(t, svc.UpdateProgress(ctx, job.JobID, 60, "working"))

	done, err := svc.CompleteJob(ctx, job.JobID, "")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.ProgressPct)
	assert.Equal(t, "working", done.ProgressDetail, "empty detail keeps the last value")
	assert.NotNil(t, done.CompletedAt)
}

func TestCompleteWithSummaryDetail(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})
	claimProcessing(t, svc, job.JobID)

	done, err := svc.CompleteJob(ctx, job.JobID, "analyzed 8, failed 2")
	require.NoError(t, err)
	assert.Equal(t, "analyzed 8, failed 2", done.ProgressDetail)
}

func TestTerminalTransitionsIdempotent(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})
	claimProcessing(t, svc, job.JobID)

	_, err := svc.CompleteJob(ctx, job.JobID, "done")
	require.NoError(t, err)

	// A late failure report against a completed job does not flip it.
	got, err := svc.FailJob(ctx, job.JobID, "late error")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorMessage)

	got, err = svc.CompleteJob(ctx, job.JobID, "again")
	require.NoError(t, err)
	assert.Equal(t, "done", got.ProgressDetail)
}

func TestFinishQueuedJobIsInvalidTransition(t *testing.T) {
	svc := setupJobService(t)
	job := createQueued(t, svc, models.CreateJobRequest{})

	_, err := svc.CompleteJob(context.Background(), job.JobID, "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
}

func TestCancelQueuedJobDirect(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})

	cancelled, err := svc.CancelJob(ctx, jobsAccount, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.CancelRequested)

	_, err = svc.CancelJob(ctx, jobsAccount, job.JobID)
	assert.ErrorIs(t, err, services.ErrJobNotCancellable)
}

func TestCancelProcessingJobIsCooperative(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})
	claimProcessing(t, svc, job.JobID)

	got, err := svc.CancelJob(ctx, jobsAccount, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status, "processing jobs only get a request flag")
	assert.True(t, got.CancelRequested)

	requested, err := svc.CancelRequested(ctx, job.JobID)
	require.NoError(t, err)
	assert.True(t, requested)

	final, err := svc.CancelFinalize(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, final.Status)
}

func TestRetryJobRules(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})

	_, err := svc.RetryJob(ctx, jobsAccount, job.JobID)
	assert.ErrorIs(t, err, services.ErrJobNotRetryable)

	claimProcessing(t, svc, job.JobID)
	_, err = svc.FailJob(ctx, job.JobID, "boom")
	require.NoError(t, err)

	retried, err := svc.RetryJob(ctx, jobsAccount, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Nil(t, retried.ErrorMessage)
	assert.Nil(t, retried.CompletedAt)
}

func TestRetryExhausted(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	zero := 0
	job := createQueued(t, svc, models.CreateJobRequest{MaxRetries: &zero})

	claimProcessing(t, svc, job.JobID)
	_, err := svc.FailJob(ctx, job.JobID, "boom")
	require.NoError(t, err)

	_, err = svc.RetryJob(ctx, jobsAccount, job.JobID)
	assert.ErrorIs(t, err, services.ErrRetryExhausted)
}

func TestReclaimStaleJobsKeepsRetryCount(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	stuck := createQueued(t, svc, models.CreateJobRequest{})
	claimProcessing(t, svc, stuck.JobID)
	fresh := createQueued(t, svc, models.CreateJobRequest{})

	ids, err := svc.ReclaimStaleJobs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{stuck.JobID}, ids)

	got, err := svc.GetJob(ctx, jobsAccount, stuck.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, services.StaleJobErrorMessage, *got.ErrorMessage)
	assert.Equal(t, 0, got.RetryCount, "reclaim is not a retry")
	assert.Nil(t, got.WorkerID)

	// Queued jobs are untouched.
	queued, err := svc.GetJob(ctx, jobsAccount, fresh.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, queued.Status)
}

func TestListJobsFilterAndPaginate(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createQueued(t, svc, models.CreateJobRequest{})
	}
	other := createQueued(t, svc, models.CreateJobRequest{JobType: models.JobTypeAIAnalysis})
	claimProcessing(t, svc, other.JobID)

	list, err := svc.ListJobs(ctx, models.ListJobsParams{
		AccountID: jobsAccount,
		Status:    models.JobStatusQueued,
		Page:      1,
		PageSize:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	assert.Len(t, list.Jobs, 2)

	list, err = svc.ListJobs(ctx, models.ListJobsParams{
		AccountID: jobsAccount,
		JobType:   models.JobTypeAIAnalysis,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}

func TestJobStats(t *testing.T) {
	client := util.SetupTestDatabase(t)
	accounts := services.NewAccountService(client)
	_, err := accounts.CreateAccount(context.Background(), models.CreateAccountRequest{
		AccountID: jobsAccount,
		Name:      "Jobs Test",
	})
	require.NoError(t, err)
	svc := services.NewJobService(client, 3)
	ctx := context.Background()

	createQueued(t, svc, models.CreateJobRequest{})
	createQueued(t, svc, models.CreateJobRequest{JobType: models.JobTypeAIAnalysis})
	done := createQueued(t, svc, models.CreateJobRequest{})
	claimProcessing(t, svc, done.JobID)
	_, err = svc.CompleteJob(ctx, done.JobID, "")
	require.NoError(t, err)

	stats, err := svc.JobStats(ctx, jobsAccount)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 1, stats.Completed)
	assert.GreaterOrEqual(t, stats.AvgDurationMs, 0.0)
	assert.Equal(t, 2, stats.ByType[models.JobTypeNewsAggregation])
	assert.Equal(t, 1, stats.ByType[models.JobTypeAIAnalysis])

	// Jobs older than the trailing 24 hours drop out of the window.
	old := createQueued(t, svc, models.CreateJobRequest{})
	_, err = client.DB().ExecContext(ctx,
		`UPDATE jobs SET created_at = now() - interval '25 hours' WHERE job_id = $1`, old.JobID)
	require.NoError(t, err)

	stats, err = svc.JobStats(ctx, jobsAccount)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Queued)
}

func TestJobTenantIsolation(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})

	_, err := svc.GetJob(ctx, "acct-other", job.JobID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = svc.CancelJob(ctx, "acct-other", job.JobID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	list, err := svc.ListJobs(ctx, models.ListJobsParams{AccountID: "acct-other"})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
}

func TestJobLogsRoundTrip(t *testing.T) {
	svc := setupJobService(t)
	ctx := context.Background()
	job := createQueued(t, svc, models.CreateJobRequest{})

	require.NoError(t, svc.AppendJobLog(ctx, job.JobID, models.LogLevelInfo, "first", nil))
	require.NoError(t, svc.AppendJobLog(ctx, job.JobID, models.LogLevelError, "second",
		json.RawMessage(`{"source_id": 4}`)))

	logs, err := svc.ListJobLogs(ctx, job.JobID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "first", logs[0].Message)
	assert.Equal(t, models.LogLevelError, logs[1].Level)
	assert.JSONEq(t, `{"source_id": 4}`, string(logs[1].Detail))
}
