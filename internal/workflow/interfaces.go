package workflow

import (
	"context"
	"time"

	"github.com/agencydesk/contentflow/internal/model"
)

// ModuleSocialPublishing is the feature flag gating the whole workflow.
const ModuleSocialPublishing = "social_publishing"

// ModuleChecker answers tenant feature-flag lookups. The real implementation
// lives in the surrounding platform; tests and the bundled binaries use a
// static allow-all.
type ModuleChecker interface {
	HasModule(ctx context.Context, spaceID, moduleName string) (bool, error)
}

// Service defines the content approval workflow operations. Every status
// mutation in the system goes through here.
type Service interface {
	CreateContent(ctx context.Context, actor model.Actor, params *model.CreateContentParams) (*model.ContentItem, error)
	GetContent(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error)
	AttachChannel(ctx context.Context, actor model.Actor, contentID string, params *model.AttachChannelParams) (*model.ChannelBinding, error)

	// RequestTransition is the generic transition surface: role gate plus
	// state machine plus transactional persist with an audit entry.
	RequestTransition(ctx context.Context, actor model.Actor, contentID string, target model.Status) (*model.ContentItem, error)

	// SendForApproval moves draft or changes_requested content to
	// pending_client and notifies the client. Agency only.
	SendForApproval(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error)

	// Approve moves pending_client content to approved. Client only.
	Approve(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error)

	// RequestChanges moves pending_client content to changes_requested,
	// persisting the client's comment. Client only.
	RequestChanges(ctx context.Context, actor model.Actor, contentID, comment string) (*model.ContentItem, error)

	// Schedule moves approved content to scheduled with a future publish
	// time. Agency only.
	Schedule(ctx context.Context, actor model.Actor, contentID string, at time.Time) (*model.ContentItem, error)

	// ArchiveAndRetract archives the item and enqueues one delete_remote job
	// per channel binding. Having no bindings is not an error.
	ArchiveAndRetract(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error)

	// SyncComments enqueues one sync_comments job per published binding and
	// returns how many were enqueued. Agency only.
	SyncComments(ctx context.Context, actor model.Actor, contentID string) (int, error)

	// EnqueueDuePublishes is the time trigger: every scheduled item whose
	// publish time has passed is claimed once and gets one publish job per
	// binding, staged in the same transaction. The item stays scheduled
	// until a publish succeeds. Returns how many items were dispatched.
	EnqueueDuePublishes(ctx context.Context, now time.Time, limit int) (int, error)

	// CompletePublish is the worker callback after a successful publish:
	// scheduled moves to published. A sibling job having already flipped the
	// item is not an error.
	CompletePublish(ctx context.Context, contentID string) error
}
