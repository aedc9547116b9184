package model

import (
	"encoding/json"
	"time"
)

// JobType identifies the external side effect an outbox job performs.
type JobType string

const (
	// JobTypePublish pushes a content item to one channel.
	JobTypePublish JobType = "publish"
	// JobTypeDeleteRemote retracts previously published remote content.
	JobTypeDeleteRemote JobType = "delete_remote"
	// JobTypeSyncComments imports comments from the remote channel.
	JobTypeSyncComments JobType = "sync_comments"
)

// JobStatus is the lifecycle state of an outbox job as observed by workers.
// Legal moves: queued -> processing -> {completed | failed}, and
// failed -> queued via explicit retry.
type JobStatus string

const (
	// JobStatusQueued means the job is written but not yet picked up.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing means a worker holds the job right now.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted means the external call succeeded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed means the external call failed; last_error is set.
	JobStatusFailed JobStatus = "failed"
)

// OutboxJob is the durable record of one intended side effect. The row is
// written before the queue ever sees the job, so a crash between the two
// leaves a detectable queued row rather than a lost side effect.
type OutboxJob struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateOutboxJobParams represents parameters for staging a new outbox job.
type CreateOutboxJobParams struct {
	ID       string
	TenantID string
	Type     JobType
	Payload  json.RawMessage
}

// PublishPayload is carried by publish jobs. It holds everything the worker
// needs so no lookup back into the workflow service is required.
type PublishPayload struct {
	ContentID      string     `json:"content_id"`
	BindingID      string     `json:"binding_id"`
	ChannelID      string     `json:"channel_id"`
	Network        string     `json:"network"`
	IdempotencyKey string     `json:"idempotency_key"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

// DeleteRemotePayload is carried by delete_remote jobs.
type DeleteRemotePayload struct {
	ContentID string `json:"content_id"`
	BindingID string `json:"binding_id"`
	ChannelID string `json:"channel_id"`
	Network   string `json:"network"`
	RemoteID  string `json:"remote_id"`
}

// SyncCommentsPayload is carried by sync_comments jobs.
type SyncCommentsPayload struct {
	ContentID string `json:"content_id"`
	BindingID string `json:"binding_id"`
	ChannelID string `json:"channel_id"`
	Network   string `json:"network"`
}
