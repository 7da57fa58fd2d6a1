package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promptlab/promptlab/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, template_id, user_id, provider, input, input_hash, status, attempts,
	 output, error, model, input_tokens, output_tokens, total_tokens, estimated_cost_usd,
	 next_attempt_at, started_at, finished_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.TemplateID, &j.UserID, &j.Provider, &j.Input, &j.InputHash,
		&j.Status, &j.Attempts, &j.Output, &j.Error, &j.Model, &j.InputTokens,
		&j.OutputTokens, &j.TotalTokens, &j.EstimatedCostUSD, &j.NextAttemptAt,
		&j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// --- Templates ---

func (s *PostgresStore) CreateTemplate(ctx context.Context, tmpl *models.Template) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO templates (id, name, system_prompt, user_prompt, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tmpl.ID, tmpl.Name, tmpl.SystemPrompt, tmpl.UserPrompt, tmpl.Version,
		tmpl.CreatedAt, tmpl.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var t models.Template
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, system_prompt, user_prompt, version, created_at, updated_at
		 FROM templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.SystemPrompt, &t.UserPrompt, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, system_prompt, user_prompt, version, created_at, updated_at
		 FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.SystemPrompt, &t.UserPrompt, &t.Version,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, template_id, user_id, provider, input, input_hash, status,
		   attempts, next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.TemplateID, job.UserID, job.Provider, job.Input, job.InputHash,
		job.Status, job.Attempts, job.NextAttemptAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) FindJobByHash(ctx context.Context, inputHash string, statuses ...string) (*models.Job, error) {
	if len(statuses) == 0 {
		return nil, ErrNotFound
	}
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE input_hash = $1 AND status = ANY($2)
		 ORDER BY created_at ASC LIMIT 1`, inputHash, statuses))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by hash: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListRunnableJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = 'queued' AND next_attempt_at <= $1
		 ORDER BY created_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list runnable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ClaimJob performs the queued -> running transition as a single conditional
// update, so two schedulers polling the same store cannot both win a job.
// started_at survives retries: COALESCE keeps the first value.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'running', attempts = attempts + 1,
		   started_at = COALESCE(started_at, $2), updated_at = $2
		 WHERE id = $1 AND status = 'queued'
		 RETURNING `+jobColumns, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

// transitionsInto maps a target status to the statuses the row may hold
// for the update to apply. Terminal statuses appear in no value here, so
// a completed or failed row can never be mutated again.
var transitionsInto = map[string][]string{
	models.JobStatusRunning:   {models.JobStatusQueued},
	models.JobStatusQueued:    {models.JobStatusRunning},
	models.JobStatusCompleted: {models.JobStatusRunning},
	models.JobStatusFailed:    {models.JobStatusRunning},
}

// UpdateJobStatus applies a status transition as a single conditional
// update: the row must still be in a status the transition is allowed
// from, so the state machine is enforced by the store rather than by
// caller discipline.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := ApplyJobUpdateOptions(opts...)

	from, ok := transitionsInto[status]
	if !ok {
		return fmt.Errorf("invalid job status %q", status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if models.TerminalStatus(status) {
		query += fmt.Sprintf(", finished_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted {
		// output and error are mutually exclusive
		query += ", error = NULL"
	}
	if params.Output != nil {
		query += fmt.Sprintf(", output = $%d", argIdx)
		args = append(args, *params.Output)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.Usage != nil {
		query += fmt.Sprintf(", model = $%d, input_tokens = $%d, output_tokens = $%d, total_tokens = $%d, estimated_cost_usd = $%d",
			argIdx, argIdx+1, argIdx+2, argIdx+3, argIdx+4)
		args = append(args, params.Usage.Model, params.Usage.InputTokens,
			params.Usage.OutputTokens, params.Usage.TotalTokens, params.Usage.EstimatedCostUSD)
		argIdx += 5
	}
	if params.NextAttemptAt != nil {
		query += fmt.Sprintf(", next_attempt_at = $%d", argIdx)
		args = append(args, *params.NextAttemptAt)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = ANY($%d)", argIdx)
	args = append(args, from)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get job status: %w", err)
		}
		return fmt.Errorf("invalid job status transition: %s -> %s", current, status)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
