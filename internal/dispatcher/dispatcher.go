// Package dispatcher writes outbox rows and hands the matching jobs to the
// durable queue, keeping write-ahead semantics: the row always exists before
// the queue ever sees the job.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/queue"
	"github.com/agencydesk/contentflow/internal/repository"
)

// Dispatcher stages and submits outbox jobs.
type Dispatcher struct {
	outboxRepo repository.OutboxRepository
	auditRepo  repository.AuditRepository
	queue      queue.Queue
	logger     *slog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	outboxRepo repository.OutboxRepository,
	auditRepo repository.AuditRepository,
	q queue.Queue,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		outboxRepo: outboxRepo,
		auditRepo:  auditRepo,
		queue:      q,
		logger:     logger,
	}
}

// StagePublish writes a queued publish job row. Call inside the transaction
// that changes the content status; Submit after it commits.
func (d *Dispatcher) StagePublish(ctx context.Context, tenantID string, p model.PublishPayload) (*model.OutboxJob, error) {
	return d.stage(ctx, tenantID, model.JobTypePublish, p)
}

// StageDeleteRemote writes a queued delete_remote job row.
func (d *Dispatcher) StageDeleteRemote(ctx context.Context, tenantID string, p model.DeleteRemotePayload) (*model.OutboxJob, error) {
	return d.stage(ctx, tenantID, model.JobTypeDeleteRemote, p)
}

// StageSyncComments writes a queued sync_comments job row.
func (d *Dispatcher) StageSyncComments(ctx context.Context, tenantID string, p model.SyncCommentsPayload) (*model.OutboxJob, error) {
	return d.stage(ctx, tenantID, model.JobTypeSyncComments, p)
}

func (d *Dispatcher) stage(ctx context.Context, tenantID string, t model.JobType, payload any) (*model.OutboxJob, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}

	job, err := d.outboxRepo.Create(ctx, &model.CreateOutboxJobParams{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Type:     t,
		Payload:  payloadJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stage %s job: %w", t, err)
	}

	return job, nil
}

// Submit hands staged jobs to the queue. A submission failure is logged, not
// returned: the committed outbox row stays queued and the relay re-submits
// it, so the caller's transition must not be failed retroactively.
func (d *Dispatcher) Submit(ctx context.Context, jobs ...*model.OutboxJob) {
	for _, job := range jobs {
		err := d.queue.Submit(ctx, queue.Job{
			OutboxID: job.ID,
			TenantID: job.TenantID,
			Type:     job.Type,
			Payload:  job.Payload,
			Attempt:  job.Attempts,
		})
		if err != nil {
			d.logger.Warn("queue submission failed, row left for relay",
				slog.String("outbox_id", job.ID),
				slog.String("type", string(job.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// EnqueuePublish stages and immediately submits a publish job, for callers
// outside a status transaction.
func (d *Dispatcher) EnqueuePublish(ctx context.Context, tenantID string, p model.PublishPayload) (*model.OutboxJob, error) {
	job, err := d.StagePublish(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}

	d.Submit(ctx, job)

	return job, nil
}

// EnqueueDeleteRemote stages and immediately submits a delete_remote job.
func (d *Dispatcher) EnqueueDeleteRemote(ctx context.Context, tenantID string, p model.DeleteRemotePayload) (*model.OutboxJob, error) {
	job, err := d.StageDeleteRemote(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}

	d.Submit(ctx, job)

	return job, nil
}

// EnqueueSyncComments stages and immediately submits a sync_comments job.
func (d *Dispatcher) EnqueueSyncComments(ctx context.Context, tenantID string, p model.SyncCommentsPayload) (*model.OutboxJob, error) {
	job, err := d.StageSyncComments(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}

	d.Submit(ctx, job)

	return job, nil
}

// Retry is the operator path for a stuck or failed job. Only an agency actor
// scoped to the owning tenant may retry; completed jobs are rejected.
func (d *Dispatcher) Retry(ctx context.Context, actor model.Actor, outboxID string) (*model.OutboxJob, error) {
	job, err := d.outboxRepo.GetByID(ctx, outboxID)
	if err != nil {
		return nil, err
	}

	if !actor.CanManageTenant() || !actor.MemberOf(job.TenantID) {
		return nil, model.ErrForbidden
	}

	job, err = d.outboxRepo.ResetForRetry(ctx, outboxID)
	if err != nil {
		return nil, err
	}

	if err := d.auditRepo.Append(ctx, job.TenantID, model.AuditActionOutboxRetried,
		"outbox_job", job.ID, map[string]any{"attempts": job.Attempts, "actor_id": actor.UserID},
	); err != nil {
		return nil, fmt.Errorf("failed to audit outbox retry: %w", err)
	}

	d.Submit(ctx, job)

	return job, nil
}

// Relay re-submits queued rows that have not moved since the cutoff,
// recovering from queue submissions that failed after the row committed.
func (d *Dispatcher) Relay(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	jobs, err := d.outboxRepo.ListUnsubmitted(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		d.logger.Info("relaying unsubmitted outbox job",
			slog.String("outbox_id", job.ID),
			slog.String("type", string(job.Type)),
		)
	}

	d.Submit(ctx, jobs...)

	return len(jobs), nil
}
