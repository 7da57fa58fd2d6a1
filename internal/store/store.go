package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/promptlab/promptlab/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrNotClaimed is returned by ClaimJob when the job was no longer queued,
// typically because another scheduler claimed it in the same poll cycle.
var ErrNotClaimed = errors.New("job not claimed")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateTemplate(ctx context.Context, tmpl *models.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// FindJobByHash returns the oldest job with the given content hash whose
	// status is in the given set, or ErrNotFound.
	FindJobByHash(ctx context.Context, inputHash string, statuses ...string) (*models.Job, error)
	// ListRunnableJobs returns queued jobs whose next_attempt_at has passed,
	// oldest first.
	ListRunnableJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
	// ClaimJob atomically transitions a job from queued to running,
	// incrementing attempts and setting started_at if unset. Returns
	// ErrNotClaimed if the job was no longer queued.
	ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

// JobUpdate collects the optional fields of an UpdateJobStatus call.
// Store implementations (and test doubles) resolve the options with
// ApplyJobUpdateOptions.
type JobUpdate struct {
	Output        *string
	ErrorMessage  *string
	Usage         *JobUsage
	NextAttemptAt *time.Time
}

type JobUsage struct {
	Model            string
	InputTokens      int64
	OutputTokens     int64
	TotalTokens      int64
	EstimatedCostUSD float64
}

type JobUpdateOption func(*JobUpdate)

// ApplyJobUpdateOptions folds opts into a JobUpdate.
func ApplyJobUpdateOptions(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithOutput(output string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.Output = &output
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.ErrorMessage = &msg
	}
}

func WithUsage(model string, inputTokens, outputTokens, totalTokens int64, costUSD float64) JobUpdateOption {
	return func(p *JobUpdate) {
		p.Usage = &JobUsage{
			Model:            model,
			InputTokens:      inputTokens,
			OutputTokens:     outputTokens,
			TotalTokens:      totalTokens,
			EstimatedCostUSD: costUSD,
		}
	}
}

// WithNextAttemptAt delays re-pickup of a queued job until t.
func WithNextAttemptAt(t time.Time) JobUpdateOption {
	return func(p *JobUpdate) {
		p.NextAttemptAt = &t
	}
}
