// Package worker polls the store for runnable jobs and executes them
// against the configured generation providers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/store"
	"github.com/promptlab/promptlab/pkg/models"
)

// ProviderSource resolves a provider name to a backend. *llm.Registry
// satisfies this.
type ProviderSource interface {
	Get(name string) (models.GenerationProvider, error)
}

// Scheduler drives the job loop: claim a queued job, render its prompt,
// call the provider, and record the outcome. Retryable failures go back
// to queued with a backoff; everything else is terminal.
type Scheduler struct {
	store      store.Store
	providers  ProviderSource
	cfg        config.WorkerConfig
	genTimeout time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewScheduler(st store.Store, providers ProviderSource, cfg config.WorkerConfig, genTimeout time.Duration) *Scheduler {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		store:      st,
		providers:  providers,
		cfg:        cfg,
		genTimeout: genTimeout,
		sem:        make(chan struct{}, concurrency),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight jobs to
// finish before returning.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started",
		"poll_interval", s.cfg.PollInterval,
		"batch_size", s.cfg.BatchSize,
		"concurrency", cap(s.sem),
		"max_attempts", s.cfg.MaxAttempts)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping, draining in-flight jobs")
			s.wg.Wait()
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll claims and dispatches one batch of runnable jobs. Dispatch blocks
// on the concurrency semaphore so a batch never outruns the worker pool.
func (s *Scheduler) poll(ctx context.Context) {
	jobs, err := s.store.ListRunnableJobs(ctx, time.Now().UTC(), s.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("listing runnable jobs failed", "error", err)
		}
		return
	}

	for _, job := range jobs {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		s.wg.Add(1)
		go func(job *models.Job) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.process(ctx, job)
		}(job)
	}
}

// process runs a single job end to end. One job's failure never affects
// the rest of the batch.
func (s *Scheduler) process(ctx context.Context, job *models.Job) {
	claimed, err := s.store.ClaimJob(ctx, job.ID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotClaimed) {
			// Another scheduler got there first.
			slog.Debug("job already claimed", "job_id", job.ID)
			return
		}
		slog.Error("claiming job failed", "job_id", job.ID, "error", err)
		return
	}

	logger := slog.With("job_id", claimed.ID, "provider", claimed.Provider, "attempt", claimed.Attempts)
	logger.Info("job started")

	// A claimed job runs to completion even while the poller is shutting
	// down; the drain in Run waits for it and the generation timeout
	// still bounds the provider call.
	jobCtx := context.WithoutCancel(ctx)

	tmpl, err := s.store.GetTemplate(jobCtx, claimed.TemplateID)
	if err != nil {
		s.fail(jobCtx, logger, claimed, fmt.Errorf("loading template %s: %w", claimed.TemplateID, err))
		return
	}

	provider, err := s.providers.Get(claimed.Provider)
	if err != nil {
		s.fail(jobCtx, logger, claimed, err)
		return
	}

	genCtx, cancel := context.WithTimeout(jobCtx, s.genTimeout)
	defer cancel()

	resp, err := provider.Generate(genCtx, models.GenerateRequest{
		SystemPrompt: tmpl.SystemPrompt,
		UserPrompt:   strings.ReplaceAll(tmpl.UserPrompt, models.InputPlaceholder, claimed.Input),
	})
	if err != nil {
		s.handleFailure(jobCtx, logger, claimed, err)
		return
	}

	err = s.store.UpdateJobStatus(jobCtx, claimed.ID, models.JobStatusCompleted,
		store.WithOutput(resp.Text),
		store.WithUsage(resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens,
			resp.Usage.TotalTokens, resp.Usage.EstimatedCostUSD),
	)
	if err != nil {
		logger.Error("recording job completion failed", "error", err)
		return
	}

	logger.Info("job completed",
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens,
		"estimated_cost_usd", resp.Usage.EstimatedCostUSD)
}

// handleFailure decides between retry and terminal failure. Attempts was
// already incremented by the claim, so it counts the call that just failed.
func (s *Scheduler) handleFailure(ctx context.Context, logger *slog.Logger, job *models.Job, genErr error) {
	if models.IsRetryableError(genErr) && job.Attempts < s.cfg.MaxAttempts {
		delay := backoffDelay(s.cfg.Backoff, job.Attempts)
		err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusQueued,
			store.WithErrorMessage(genErr.Error()),
			store.WithNextAttemptAt(time.Now().UTC().Add(delay)),
		)
		if err != nil {
			logger.Error("re-queueing job failed", "error", err)
			return
		}
		logger.Warn("job failed, retrying", "error", genErr, "retry_in", delay)
		return
	}

	s.fail(ctx, logger, job, genErr)
}

func (s *Scheduler) fail(ctx context.Context, logger *slog.Logger, job *models.Job, cause error) {
	err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithErrorMessage(cause.Error()),
	)
	if err != nil {
		logger.Error("recording job failure failed", "error", err)
		return
	}
	logger.Error("job failed", "error", cause)
}

var _ ProviderSource = (*llm.Registry)(nil)
