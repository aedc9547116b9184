// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/agencydesk/contentflow/internal/model"
)

// ContentRepository defines methods for content item data access.
type ContentRepository interface {
	Create(ctx context.Context, params *model.CreateContentParams) (*model.ContentItem, error)
	GetByID(ctx context.Context, id string) (*model.ContentItem, error)
	// UpdateStatus moves the item from -> to and reports whether a row
	// changed. A false return means the item was no longer in the expected
	// status (stale transition).
	UpdateStatus(ctx context.Context, id string, from, to model.Status) (bool, error)
	// SetSchedule is UpdateStatus plus recording the publish time.
	SetSchedule(ctx context.Context, id string, from, to model.Status, at time.Time) (bool, error)
	// MarkPublishRequested claims a scheduled item for publish dispatch and
	// reports whether the claim succeeded. A false return means another
	// scheduler already dispatched it, or the item left scheduled.
	MarkPublishRequested(ctx context.Context, id string) (bool, error)
	// ListDue returns scheduled items whose publish time has passed and that
	// have not been dispatched yet.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ContentItem, error)
}

// ChannelRepository defines methods for channel binding data access.
type ChannelRepository interface {
	Attach(ctx context.Context, contentID string, params *model.AttachChannelParams) (*model.ChannelBinding, error)
	GetByID(ctx context.Context, id string) (*model.ChannelBinding, error)
	ListByContent(ctx context.Context, contentID string) ([]*model.ChannelBinding, error)
	// MarkPublished records a successful publish on the binding and clears
	// any prior error.
	MarkPublished(ctx context.Context, id, idempotencyKey, remoteID, remoteURL string) error
	// ClearRemote wipes the remote identifiers after a retraction. The
	// binding row itself persists.
	ClearRemote(ctx context.Context, id string) error
	SetError(ctx context.Context, id, lastError string) error
}

// OutboxRepository defines methods for outbox job data access. Status moves
// are guarded in SQL so an out-of-order update cannot corrupt the lifecycle.
type OutboxRepository interface {
	Create(ctx context.Context, params *model.CreateOutboxJobParams) (*model.OutboxJob, error)
	GetByID(ctx context.Context, id string) (*model.OutboxJob, error)
	// MarkProcessing claims a queued (or redelivered in-processing) job and
	// reports whether the claim succeeded.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string) error
	// MarkFailed records the error and increments the attempt counter.
	MarkFailed(ctx context.Context, id, lastError string) error
	// Requeue moves a failed job back to queued for an automatic retry,
	// keeping attempts and last_error visible.
	Requeue(ctx context.Context, id string) error
	// ResetForRetry is the manual retry path: any non-completed job goes back
	// to queued with attempts+1 and a cleared error. Returns
	// model.ErrAlreadyCompleted for completed jobs.
	ResetForRetry(ctx context.Context, id string) (*model.OutboxJob, error)
	// ListUnsubmitted returns queued jobs that have not moved since the
	// cutoff, i.e. rows whose queue submission likely never happened.
	ListUnsubmitted(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboxJob, error)
	// List returns recent jobs for a tenant, optionally filtered by status
	// (empty status means all).
	List(ctx context.Context, tenantID string, status model.JobStatus, limit int) ([]*model.OutboxJob, error)
}

// AuditRepository defines methods for appending audit log entries.
type AuditRepository interface {
	Append(ctx context.Context, tenantID, action, entityType, entityID string, payload any) error
}

// NotificationRepository defines methods for inbox notification upserts.
type NotificationRepository interface {
	// Upsert creates or refreshes the single unresolved notification for
	// (spaceID, entityKey) in one atomic statement.
	Upsert(ctx context.Context, spaceID, entityKey, message string) error
	Resolve(ctx context.Context, spaceID, entityKey string) error
}

// CommentRepository defines methods for content comment data access.
type CommentRepository interface {
	Create(ctx context.Context, contentID, authorID, body string) (*model.Comment, error)
	ListByContent(ctx context.Context, contentID string) ([]*model.Comment, error)
}

// TransactionManager defines methods for database transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
