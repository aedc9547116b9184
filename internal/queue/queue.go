// Package queue provides the durable job queue used to hand outbox jobs to
// background workers, with per-type retry policies.
package queue

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/agencydesk/contentflow/internal/model"
)

// Job is the message handed to a worker. OutboxID correlates the message
// with its durable outbox row; Attempt counts deliveries of this intent so
// backoff grows across automatic retries.
type Job struct {
	OutboxID string          `json:"outbox_id"`
	TenantID string          `json:"tenant_id"`
	Type     model.JobType   `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempt  int             `json:"attempt"`
}

// Queue submits jobs for asynchronous execution.
type Queue interface {
	// Submit makes the job available to workers immediately.
	Submit(ctx context.Context, job Job) error
	// SubmitAfter makes the job available once the delay has elapsed.
	SubmitAfter(ctx context.Context, job Job, delay time.Duration) error
	// MoveDue promotes delayed jobs whose ready time has passed and returns
	// how many were promoted.
	MoveDue(ctx context.Context, now time.Time) (int, error)
}

// BackoffStrategy decides how long to wait before the next retry attempt.
// The attempt index starts at 0, incrementing after each failure.
type BackoffStrategy interface {
	SleepDuration(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Factor each attempt, capped at Max.
type ExponentialBackoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// SleepDuration implements an exponential backoff with a cap at Max.
func (e ExponentialBackoff) SleepDuration(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(e.Base) * math.Pow(e.Factor, float64(attempt))
	if e.Max > 0 && time.Duration(delay) > e.Max {
		return e.Max
	}

	return time.Duration(delay)
}

// FixedBackoff waits the same delay between every attempt.
type FixedBackoff struct {
	Delay time.Duration
}

// SleepDuration returns the fixed delay.
func (f FixedBackoff) SleepDuration(_ int) time.Duration {
	return f.Delay
}

// RetryPolicy bounds the automatic retries of one job type.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffStrategy
}

var policies = map[model.JobType]RetryPolicy{
	model.JobTypePublish: {
		MaxAttempts: 5,
		Backoff:     ExponentialBackoff{Base: 5 * time.Second, Factor: 2, Max: 5 * time.Minute},
	},
	model.JobTypeDeleteRemote: {
		MaxAttempts: 5,
		Backoff:     ExponentialBackoff{Base: 5 * time.Second, Factor: 2, Max: 5 * time.Minute},
	},
	model.JobTypeSyncComments: {
		MaxAttempts: 3,
		Backoff:     FixedBackoff{Delay: 60 * time.Second},
	},
}

// PolicyFor returns the retry policy for a job type. Unknown types get a
// single attempt and no backoff.
func PolicyFor(t model.JobType) RetryPolicy {
	if p, ok := policies[t]; ok {
		return p
	}

	return RetryPolicy{MaxAttempts: 1, Backoff: FixedBackoff{}}
}

// StreamFor returns the Redis stream key for a job type.
func StreamFor(t model.JobType) string {
	return "outbox:" + string(t)
}

// delayedSetFor returns the sorted-set key holding delayed jobs of a type.
func delayedSetFor(t model.JobType) string {
	return "outbox:" + string(t) + ":delayed"
}
