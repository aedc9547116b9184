package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/agencydesk/contentflow/internal/model"
)

const moveDueBatch = 100

// Message field names on the job streams.
const (
	FieldOutboxID = "outbox_id"
	FieldTenantID = "tenant_id"
	FieldType     = "type"
	FieldPayload  = "payload"
	FieldAttempt  = "attempt"
)

// RedisQueue implements Queue on Redis Streams. Immediate jobs go straight
// onto the per-type stream; delayed jobs wait in a sorted set scored by their
// ready time until MoveDue promotes them.
type RedisQueue struct {
	client rueidis.Client
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(client rueidis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Submit makes the job available to workers immediately.
func (q *RedisQueue) Submit(ctx context.Context, job Job) error {
	cmd := q.client.B().Xadd().Key(StreamFor(job.Type)).Id("*").
		FieldValue().
		FieldValue(FieldOutboxID, job.OutboxID).
		FieldValue(FieldTenantID, job.TenantID).
		FieldValue(FieldType, string(job.Type)).
		FieldValue(FieldPayload, string(job.Payload)).
		FieldValue(FieldAttempt, strconv.Itoa(job.Attempt)).
		Build()

	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to submit job %s: %w", job.OutboxID, err)
	}

	return nil
}

// SubmitAfter parks the job in the delayed set until the delay has elapsed.
func (q *RedisQueue) SubmitAfter(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Submit(ctx, job)
	}

	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal delayed job %s: %w", job.OutboxID, err)
	}

	readyAt := float64(time.Now().Add(delay).UnixMilli())

	cmd := q.client.B().Zadd().Key(delayedSetFor(job.Type)).
		ScoreMember().ScoreMember(readyAt, string(member)).
		Build()

	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to park delayed job %s: %w", job.OutboxID, err)
	}

	return nil
}

// MoveDue promotes delayed jobs of every type whose ready time has passed.
func (q *RedisQueue) MoveDue(ctx context.Context, now time.Time) (int, error) {
	types := []model.JobType{model.JobTypePublish, model.JobTypeDeleteRemote, model.JobTypeSyncComments}
	moved := 0

	for _, t := range types {
		n, err := q.moveDueForType(ctx, t, now)
		if err != nil {
			return moved, err
		}

		moved += n
	}

	return moved, nil
}

func (q *RedisQueue) moveDueForType(ctx context.Context, t model.JobType, now time.Time) (int, error) {
	setKey := delayedSetFor(t)
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)

	rangeCmd := q.client.B().Zrangebyscore().Key(setKey).
		Min("-inf").Max(maxScore).
		Limit(0, moveDueBatch).
		Build()

	members, err := q.client.Do(ctx, rangeCmd).AsStrSlice()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed set %s: %w", setKey, err)
	}

	moved := 0

	for _, member := range members {
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			return moved, fmt.Errorf("corrupt delayed job in %s: %w", setKey, err)
		}

		if err := q.Submit(ctx, job); err != nil {
			return moved, err
		}

		remCmd := q.client.B().Zrem().Key(setKey).Member(member).Build()
		if err := q.client.Do(ctx, remCmd).Error(); err != nil {
			return moved, fmt.Errorf("failed to remove promoted job from %s: %w", setKey, err)
		}

		moved++
	}

	return moved, nil
}
