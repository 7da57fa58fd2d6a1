package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/llm/mock"
	"github.com/promptlab/promptlab/internal/store"
	"github.com/promptlab/promptlab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory store ---

type schedStore struct {
	store.Store

	mu        sync.Mutex
	templates map[uuid.UUID]*models.Template
	jobs      map[uuid.UUID]*models.Job
}

func newSchedStore() *schedStore {
	return &schedStore{
		templates: make(map[uuid.UUID]*models.Template),
		jobs:      make(map[uuid.UUID]*models.Job),
	}
}

func (s *schedStore) GetTemplate(_ context.Context, id uuid.UUID) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return tmpl, nil
}

func (s *schedStore) ListRunnableJobs(_ context.Context, now time.Time, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, job := range s.jobs {
		if job.Status == models.JobStatusQueued && !job.NextAttemptAt.After(now) {
			out = append(out, job)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *schedStore) ClaimJob(_ context.Context, id uuid.UUID, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != models.JobStatusQueued {
		return nil, store.ErrNotClaimed
	}
	job.Status = models.JobStatusRunning
	job.Attempts++
	if job.StartedAt == nil {
		started := now
		job.StartedAt = &started
	}
	job.UpdatedAt = now
	copied := *job
	return &copied, nil
}

func (s *schedStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}

	update := store.ApplyJobUpdateOptions(opts...)
	job.Status = status
	if update.Output != nil {
		job.Output = update.Output
	}
	if update.ErrorMessage != nil {
		job.Error = update.ErrorMessage
	}
	if update.Usage != nil {
		job.Model = &update.Usage.Model
		job.InputTokens = &update.Usage.InputTokens
		job.OutputTokens = &update.Usage.OutputTokens
		job.TotalTokens = &update.Usage.TotalTokens
		job.EstimatedCostUSD = &update.Usage.EstimatedCostUSD
	}
	if update.NextAttemptAt != nil {
		job.NextAttemptAt = *update.NextAttemptAt
	}
	if models.TerminalStatus(status) {
		finished := time.Now().UTC()
		job.FinishedAt = &finished
	}
	return nil
}

func (s *schedStore) job(t *testing.T, id uuid.UUID) models.Job {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		t.Fatalf("job %s not found", id)
	}
	return *job
}

// --- helpers ---

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		Concurrency:  2,
		MaxAttempts:  3,
		Backoff:      []time.Duration{time.Second, 3 * time.Second, 10 * time.Second},
	}
}

func seedJob(st *schedStore, tmpl *models.Template, provider string) *models.Job {
	now := time.Now().UTC().Add(-time.Minute)
	job := &models.Job{
		ID:            uuid.New(),
		TemplateID:    tmpl.ID,
		Provider:      provider,
		Input:         "quarterly revenue numbers",
		InputHash:     "deadbeef",
		Status:        models.JobStatusQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	st.jobs[job.ID] = job
	return job
}

func seedSchedTemplate(st *schedStore) *models.Template {
	tmpl := &models.Template{
		ID:           uuid.New(),
		Name:         "summarizer",
		SystemPrompt: "You are a summarizer.",
		UserPrompt:   "Summarize: {{input}}",
		Version:      1,
	}
	st.templates[tmpl.ID] = tmpl
	return tmpl
}

func newTestScheduler(st *schedStore, providers ...models.GenerationProvider) *Scheduler {
	return NewScheduler(st, llm.NewRegistryWith(providers...), testWorkerConfig(), time.Second)
}

// --- backoffDelay ---

func TestBackoffDelay_Schedule(t *testing.T) {
	schedule := []time.Duration{time.Second, 3 * time.Second, 10 * time.Second}

	assert.Equal(t, time.Second, backoffDelay(schedule, 1))
	assert.Equal(t, 3*time.Second, backoffDelay(schedule, 2))
	assert.Equal(t, 10*time.Second, backoffDelay(schedule, 3))
}

func TestBackoffDelay_SaturatesAtLastEntry(t *testing.T) {
	schedule := []time.Duration{time.Second, 3 * time.Second, 10 * time.Second}

	assert.Equal(t, 10*time.Second, backoffDelay(schedule, 7))
}

func TestBackoffDelay_Degenerate(t *testing.T) {
	assert.Equal(t, time.Duration(0), backoffDelay(nil, 1))
	assert.Equal(t, time.Second, backoffDelay([]time.Duration{time.Second}, 0))
}

// --- process ---

func TestProcess_Success(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "mock")

	var gotReq models.GenerateRequest
	provider := &mock.MockProvider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
			gotReq = req
			return &models.GenerateResponse{
				Text:  "A summary.",
				Model: "mock-v1",
				Usage: models.UsageMetrics{InputTokens: 100, OutputTokens: 50, TotalTokens: 150, EstimatedCostUSD: 0.002},
			}, nil
		},
	}

	s := newTestScheduler(st, provider)
	s.process(context.Background(), job)

	assert.Equal(t, "You are a summarizer.", gotReq.SystemPrompt)
	assert.Equal(t, "Summarize: quarterly revenue numbers", gotReq.UserPrompt,
		"input should be substituted into the template")

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.Output)
	assert.Equal(t, "A summary.", *got.Output)
	require.NotNil(t, got.TotalTokens)
	assert.Equal(t, int64(150), *got.TotalTokens)
	require.NotNil(t, got.EstimatedCostUSD)
	assert.InDelta(t, 0.002, *got.EstimatedCostUSD, 1e-9)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)
}

func TestProcess_RetryableFailureRequeues(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "mock-failing")

	provider := mock.NewFailingProvider(&models.ProviderError{
		Provider: "mock-failing", Message: "overloaded", Retryable: true,
	})

	s := newTestScheduler(st, provider)
	before := time.Now().UTC()
	s.process(context.Background(), job)

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "overloaded")
	// First retry waits a second.
	assert.False(t, got.NextAttemptAt.Before(before.Add(time.Second)))
}

func TestProcess_RetryBudgetExhausted(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "mock-failing")
	st.jobs[job.ID].Attempts = 2 // claim makes it 3 == MaxAttempts

	provider := mock.NewFailingProvider(&models.ProviderError{
		Provider: "mock-failing", Message: "overloaded", Retryable: true,
	})

	s := newTestScheduler(st, provider)
	s.process(context.Background(), job)

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)
	require.NotNil(t, got.Error)
	assert.NotNil(t, got.FinishedAt)
}

func TestProcess_NonRetryableFailsImmediately(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "mock-failing")

	provider := mock.NewFailingProvider(&models.ProviderError{
		Provider: "mock-failing", Message: "invalid api key", Retryable: false,
	})

	s := newTestScheduler(st, provider)
	s.process(context.Background(), job)

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts, "non-retryable failure should not burn further attempts")
}

func TestProcess_UnknownProviderFails(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "bedrock")

	s := newTestScheduler(st, mock.NewMockProvider())
	s.process(context.Background(), job)

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "bedrock")
}

func TestProcess_MissingTemplateFails(t *testing.T) {
	st := newSchedStore()
	tmpl := &models.Template{ID: uuid.New()} // never stored
	job := seedJob(st, tmpl, "mock")

	s := newTestScheduler(st, mock.NewMockProvider())
	s.process(context.Background(), job)

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}

func TestProcess_AlreadyClaimedIsSkipped(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "mock")
	st.jobs[job.ID].Status = models.JobStatusRunning

	s := newTestScheduler(st, mock.NewMockProvider())
	s.process(context.Background(), job)

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, 0, got.Attempts, "skipped job should be untouched")
}

func TestProcess_StartedAtSurvivesRetry(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "mock-failing")

	provider := mock.NewFailingProvider(&models.ProviderError{
		Provider: "mock-failing", Message: "overloaded", Retryable: true,
	})
	s := newTestScheduler(st, provider)

	s.process(context.Background(), job)
	first := st.job(t, job.ID)
	require.NotNil(t, first.StartedAt)

	// Make the retry due and claim again.
	st.mu.Lock()
	st.jobs[job.ID].NextAttemptAt = time.Now().UTC().Add(-time.Second)
	st.mu.Unlock()
	s.process(context.Background(), job)

	second := st.job(t, job.ID)
	assert.Equal(t, 2, second.Attempts)
	assert.Equal(t, *first.StartedAt, *second.StartedAt,
		"started_at marks the first claim only")
}

func TestProcess_GenerationTimeout(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "mock-timeout")

	s := NewScheduler(st, llm.NewRegistryWith(mock.NewTimeoutProvider()), testWorkerConfig(), 20*time.Millisecond)
	s.process(context.Background(), job)

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusQueued, got.Status, "timeout should be retried")
	assert.Equal(t, 1, got.Attempts)
}

// --- poll / Run ---

func TestPoll_OneBadJobDoesNotStopTheBatch(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	good := seedJob(st, tmpl, "mock")
	bad := seedJob(st, tmpl, "mock-failing")

	failing := mock.NewFailingProvider(&models.ProviderError{
		Provider: "mock-failing", Message: "invalid request", Retryable: false,
	})

	s := newTestScheduler(st, mock.NewMockProvider(), failing)
	s.poll(context.Background())
	s.wg.Wait()

	assert.Equal(t, models.JobStatusCompleted, st.job(t, good.ID).Status)
	assert.Equal(t, models.JobStatusFailed, st.job(t, bad.ID).Status)
}

func TestRun_ShutdownDrainsInFlightJob(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	job := seedJob(st, tmpl, "mock-slow")

	started := make(chan struct{})
	provider := &mock.MockProvider{
		Name_: "mock-slow",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (*models.GenerateResponse, error) {
			close(started)
			select {
			case <-ctx.Done():
				return nil, &models.ProviderError{Provider: "mock-slow", Message: "request timeout", Retryable: true}
			case <-time.After(100 * time.Millisecond):
				return &models.GenerateResponse{
					Text:  "finished after shutdown began",
					Model: "mock-v1",
					Usage: models.UsageMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
				}, nil
			}
		},
	}

	s := newTestScheduler(st, provider)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("generation never started")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not drain the in-flight job")
	}

	got := st.job(t, job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status,
		"a claimed job finishes even when shutdown begins mid-generation")
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.Output)
	assert.Equal(t, "finished after shutdown began", *got.Output)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	st := newSchedStore()
	tmpl := seedSchedTemplate(st)
	seedJob(st, tmpl, "mock")

	s := newTestScheduler(st, mock.NewMockProvider())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
}
