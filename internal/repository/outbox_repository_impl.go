package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencydesk/contentflow/internal/model"
)

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL. The
// lifecycle guards live in the WHERE clauses, so a stray update against a row
// in the wrong status changes nothing.
type OutboxRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(pool *pgxpool.Pool) OutboxRepository {
	return &OutboxRepositoryImpl{pool: pool}
}

const outboxColumns = `id, tenant_id, type, payload, status, attempts,
	COALESCE(last_error, ''), created_at, updated_at`

func scanOutboxJob(row pgx.Row) (*model.OutboxJob, error) {
	var job model.OutboxJob
	err := row.Scan(
		&job.ID, &job.TenantID, &job.Type, &job.Payload, &job.Status,
		&job.Attempts, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}

		return nil, err
	}

	return &job, nil
}

// Create stages a new outbox job in queued status with zero attempts.
func (r *OutboxRepositoryImpl) Create(ctx context.Context, params *model.CreateOutboxJobParams) (*model.OutboxJob, error) {
	q := querierFrom(ctx, r.pool)

	row := q.QueryRow(ctx, `
		INSERT INTO outbox_jobs (id, tenant_id, type, payload, status, attempts)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING `+outboxColumns,
		params.ID, params.TenantID, params.Type, params.Payload, model.JobStatusQueued,
	)

	job, err := scanOutboxJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert outbox job: %w", err)
	}

	return job, nil
}

// GetByID retrieves an outbox job by ID.
func (r *OutboxRepositoryImpl) GetByID(ctx context.Context, id string) (*model.OutboxJob, error) {
	q := querierFrom(ctx, r.pool)

	row := q.QueryRow(ctx, `SELECT `+outboxColumns+` FROM outbox_jobs WHERE id = $1`, id)

	return scanOutboxJob(row)
}

// MarkProcessing claims the job for a worker. Re-claiming a row already in
// processing is allowed so queue redelivery after a crash can proceed.
func (r *OutboxRepositoryImpl) MarkProcessing(ctx context.Context, id string) (bool, error) {
	q := querierFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE outbox_jobs SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $2)`,
		id, model.JobStatusProcessing, model.JobStatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark outbox job processing: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkCompleted records a successful external call.
func (r *OutboxRepositoryImpl) MarkCompleted(ctx context.Context, id string) error {
	q := querierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE outbox_jobs SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, model.JobStatusCompleted, model.JobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox job completed: %w", err)
	}

	return nil
}

// MarkFailed records the error text and increments the attempt counter.
func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id, lastError string) error {
	q := querierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE outbox_jobs
		SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, model.JobStatusFailed, lastError, model.JobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox job failed: %w", err)
	}

	return nil
}

// Requeue moves a failed job back to queued for an automatic retry.
func (r *OutboxRepositoryImpl) Requeue(ctx context.Context, id string) error {
	q := querierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE outbox_jobs SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, model.JobStatusQueued, model.JobStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue outbox job: %w", err)
	}

	return nil
}

// ResetForRetry is the operator retry path. Any non-completed job goes back
// to queued with attempts+1 and a cleared error.
func (r *OutboxRepositoryImpl) ResetForRetry(ctx context.Context, id string) (*model.OutboxJob, error) {
	q := querierFrom(ctx, r.pool)

	row := q.QueryRow(ctx, `
		UPDATE outbox_jobs
		SET status = $2, attempts = attempts + 1, last_error = NULL, updated_at = now()
		WHERE id = $1 AND status <> $3
		RETURNING `+outboxColumns,
		id, model.JobStatusQueued, model.JobStatusCompleted,
	)

	job, err := scanOutboxJob(row)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("failed to reset outbox job: %w", err)
		}

		// Either the row is absent or it is completed; tell them apart.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}

		return nil, model.ErrAlreadyCompleted
	}

	return job, nil
}

// ListUnsubmitted returns queued jobs that have not moved since the cutoff.
func (r *OutboxRepositoryImpl) ListUnsubmitted(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboxJob, error) {
	q := querierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT `+outboxColumns+` FROM outbox_jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`,
		model.JobStatusQueued, olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsubmitted outbox jobs: %w", err)
	}

	return collectOutboxJobs(rows)
}

// List returns recent jobs for a tenant, optionally filtered by status.
func (r *OutboxRepositoryImpl) List(ctx context.Context, tenantID string, status model.JobStatus, limit int) ([]*model.OutboxJob, error) {
	q := querierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT `+outboxColumns+` FROM outbox_jobs
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY updated_at DESC
		LIMIT $3`,
		tenantID, string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox jobs: %w", err)
	}

	return collectOutboxJobs(rows)
}

func collectOutboxJobs(rows pgx.Rows) ([]*model.OutboxJob, error) {
	defer rows.Close()

	var jobs []*model.OutboxJob

	for rows.Next() {
		job, err := scanOutboxJob(rows)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}
