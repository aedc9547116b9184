package worker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/queue"
)

const (
	consumerGroup     = "workers"
	redisBlockTimeout = 1000 // milliseconds
	errorRetryDelay   = 1 * time.Second
)

// Consumer pulls jobs of one type from its Redis stream and feeds them to
// Handlers, one job at a time. Horizontal scaling means more consumers in
// the same group. Unacked messages stay in the group's pending list and are
// not swept here; their outbox rows sit in processing, recoverable through
// the operator retry path.
type Consumer struct {
	client   rueidis.Client
	handlers *Handlers
	jobType  model.JobType
	name     string
	logger   *slog.Logger
}

// NewConsumer creates a consumer for one job type.
func NewConsumer(client rueidis.Client, handlers *Handlers, jobType model.JobType, name string, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:   client,
		handlers: handlers,
		jobType:  jobType,
		name:     name,
		logger:   logger,
	}
}

// EnsureGroup creates the consumer group for the stream if needed.
func (c *Consumer) EnsureGroup(ctx context.Context) {
	streamKey := queue.StreamFor(c.jobType)

	cmd := c.client.B().XgroupCreate().Key(streamKey).Group(consumerGroup).Id("0").Mkstream().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Info("consumer group creation result (may already exist)",
			slog.String("stream", streamKey),
			slog.String("error", err.Error()),
		)
	}
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	streamKey := queue.StreamFor(c.jobType)

	c.logger.Info("consumer started",
		slog.String("stream", streamKey),
		slog.String("consumer", c.name),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped", slog.String("stream", streamKey))

			return
		default:
			if err := c.consumeOnce(ctx, streamKey); err != nil {
				c.logger.Error("error consuming messages",
					slog.String("stream", streamKey),
					slog.String("error", err.Error()),
				)
				time.Sleep(errorRetryDelay)
			}
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, streamKey string) error {
	readCmd := c.client.B().Xreadgroup().Group(consumerGroup, c.name).
		Count(1).
		Block(redisBlockTimeout).
		Streams().
		Key(streamKey).
		Id(">").
		Build()

	result := c.client.Do(ctx, readCmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil // block timeout, nothing pending
		}

		return err
	}

	streams, err := result.AsXRead()
	if err != nil {
		return err
	}

	for _, messages := range streams {
		for _, message := range messages {
			c.processMessage(ctx, streamKey, message)
		}
	}

	return nil
}

func (c *Consumer) processMessage(ctx context.Context, streamKey string, message rueidis.XRangeEntry) {
	job, err := decodeJob(message)
	if err != nil {
		// A message we cannot even decode would be redelivered forever;
		// ack it and rely on the outbox row for visibility.
		c.logger.Error("dropping undecodable message",
			slog.String("message_id", message.ID),
			slog.String("error", err.Error()),
		)
		c.acknowledge(ctx, streamKey, message.ID)

		return
	}

	if err := c.handlers.Handle(ctx, job); err != nil {
		// Infrastructure failure: leave the message unacked so the group
		// redelivers it, and let the outbox row keep its current state.
		c.logger.Error("failed to handle job",
			slog.String("message_id", message.ID),
			slog.String("outbox_id", job.OutboxID),
			slog.String("error", err.Error()),
		)

		return
	}

	c.acknowledge(ctx, streamKey, message.ID)
}

func (c *Consumer) acknowledge(ctx context.Context, streamKey, messageID string) {
	ackCmd := c.client.B().Xack().Key(streamKey).Group(consumerGroup).Id(messageID).Build()
	if err := c.client.Do(ctx, ackCmd).Error(); err != nil {
		c.logger.Error("failed to ACK message",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}
}

func decodeJob(message rueidis.XRangeEntry) (queue.Job, error) {
	fields := message.FieldValues

	outboxID, ok := fields[queue.FieldOutboxID]
	if !ok {
		return queue.Job{}, errors.New("missing outbox_id in message")
	}

	jobType, ok := fields[queue.FieldType]
	if !ok {
		return queue.Job{}, errors.New("missing type in message")
	}

	payload, ok := fields[queue.FieldPayload]
	if !ok {
		return queue.Job{}, errors.New("missing payload in message")
	}

	attempt := 0
	if raw, ok := fields[queue.FieldAttempt]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			attempt = n
		}
	}

	return queue.Job{
		OutboxID: outboxID,
		TenantID: fields[queue.FieldTenantID],
		Type:     model.JobType(jobType),
		Payload:  []byte(payload),
		Attempt:  attempt,
	}, nil
}
