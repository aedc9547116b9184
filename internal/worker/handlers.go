// Package worker consumes outbox jobs from the queue and performs the
// external operations, mirroring every step onto the outbox row.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/network"
	"github.com/agencydesk/contentflow/internal/queue"
	"github.com/agencydesk/contentflow/internal/repository"
)

// PublishCompleter moves a content item to published once one of its publish
// jobs has succeeded. Implemented by the workflow service.
type PublishCompleter interface {
	CompletePublish(ctx context.Context, contentID string) error
}

// Handlers executes delivered jobs through the outbox lifecycle:
// queued -> processing -> completed, or -> failed with the error recorded and
// an automatic delayed retry while attempts remain under the type's policy.
type Handlers struct {
	outboxRepo  repository.OutboxRepository
	channelRepo repository.ChannelRepository
	completer   PublishCompleter
	network     network.Client
	queue       queue.Queue
	logger      *slog.Logger
}

// NewHandlers creates the worker handler set.
func NewHandlers(
	outboxRepo repository.OutboxRepository,
	channelRepo repository.ChannelRepository,
	completer PublishCompleter,
	client network.Client,
	q queue.Queue,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		outboxRepo:  outboxRepo,
		channelRepo: channelRepo,
		completer:   completer,
		network:     client,
		queue:       q,
		logger:      logger,
	}
}

// Handle runs one delivered job. The returned error means the infrastructure
// itself failed (store unreachable); external-call failures are absorbed into
// the outbox row and never propagate.
func (h *Handlers) Handle(ctx context.Context, job queue.Job) error {
	claimed, err := h.outboxRepo.MarkProcessing(ctx, job.OutboxID)
	if err != nil {
		return err
	}

	// Already completed or reset elsewhere; duplicate delivery, drop it.
	if !claimed {
		h.logger.Debug("skipping unclaimable job", slog.String("outbox_id", job.OutboxID))

		return nil
	}

	var runErr error

	switch job.Type {
	case model.JobTypePublish:
		runErr = h.handlePublish(ctx, job)
	case model.JobTypeDeleteRemote:
		runErr = h.handleDeleteRemote(ctx, job)
	case model.JobTypeSyncComments:
		runErr = h.handleSyncComments(ctx, job)
	default:
		runErr = fmt.Errorf("unknown job type %q", job.Type)
	}

	if runErr == nil {
		return h.outboxRepo.MarkCompleted(ctx, job.OutboxID)
	}

	return h.handleFailure(ctx, job, runErr)
}

func (h *Handlers) handleFailure(ctx context.Context, job queue.Job, runErr error) error {
	h.logger.Warn("job failed",
		slog.String("outbox_id", job.OutboxID),
		slog.String("type", string(job.Type)),
		slog.Int("attempt", job.Attempt),
		slog.String("error", runErr.Error()),
	)

	if err := h.outboxRepo.MarkFailed(ctx, job.OutboxID, runErr.Error()); err != nil {
		return err
	}

	policy := queue.PolicyFor(job.Type)
	nextAttempt := job.Attempt + 1

	if nextAttempt >= policy.MaxAttempts {
		h.logger.Error("job attempts exhausted, awaiting manual retry",
			slog.String("outbox_id", job.OutboxID),
			slog.String("type", string(job.Type)),
		)

		return nil
	}

	if err := h.outboxRepo.Requeue(ctx, job.OutboxID); err != nil {
		return err
	}

	retry := job
	retry.Attempt = nextAttempt

	return h.queue.SubmitAfter(ctx, retry, policy.Backoff.SleepDuration(job.Attempt))
}

func (h *Handlers) handlePublish(ctx context.Context, job queue.Job) error {
	var p model.PublishPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("corrupt publish payload: %w", err)
	}

	result, err := h.network.Publish(ctx, network.PublishRequest{
		ContentID:      p.ContentID,
		ChannelID:      p.ChannelID,
		Network:        p.Network,
		IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		if setErr := h.channelRepo.SetError(ctx, p.BindingID, err.Error()); setErr != nil {
			h.logger.Error("failed to record binding error", slog.String("error", setErr.Error()))
		}

		return err
	}

	if err := h.channelRepo.MarkPublished(ctx, p.BindingID, p.IdempotencyKey, result.RemoteID, result.RemoteURL); err != nil {
		return err
	}

	return h.completer.CompletePublish(ctx, p.ContentID)
}

func (h *Handlers) handleDeleteRemote(ctx context.Context, job queue.Job) error {
	var p model.DeleteRemotePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("corrupt delete_remote payload: %w", err)
	}

	// Nothing was ever published for this binding; the retraction is just a
	// local cleanup.
	if p.RemoteID != "" {
		err := h.network.Delete(ctx, network.DeleteRequest{
			ChannelID: p.ChannelID,
			Network:   p.Network,
			RemoteID:  p.RemoteID,
		})
		if err != nil {
			if setErr := h.channelRepo.SetError(ctx, p.BindingID, err.Error()); setErr != nil {
				h.logger.Error("failed to record binding error", slog.String("error", setErr.Error()))
			}

			return err
		}
	}

	return h.channelRepo.ClearRemote(ctx, p.BindingID)
}

func (h *Handlers) handleSyncComments(ctx context.Context, job queue.Job) error {
	var p model.SyncCommentsPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("corrupt sync_comments payload: %w", err)
	}

	// Comment import is not modeled yet; the lifecycle contract still holds.
	return h.network.SyncComments(ctx, network.SyncRequest{
		ContentID: p.ContentID,
		ChannelID: p.ChannelID,
		Network:   p.Network,
	})
}
