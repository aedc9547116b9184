package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agencydesk/contentflow/internal/dispatcher"
	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/repository"
)

// ServiceImpl implements Service. Status changes and their audit entries are
// committed as one transaction; outbox rows are staged inside that same
// transaction and submitted to the queue only after it commits.
type ServiceImpl struct {
	contentRepo      repository.ContentRepository
	channelRepo      repository.ChannelRepository
	commentRepo      repository.CommentRepository
	auditRepo        repository.AuditRepository
	notificationRepo repository.NotificationRepository
	transactionMgr   repository.TransactionManager
	dispatcher       *dispatcher.Dispatcher
	modules          ModuleChecker
	logger           *slog.Logger
}

// NewServiceImpl creates a new workflow Service implementation.
func NewServiceImpl(
	contentRepo repository.ContentRepository,
	channelRepo repository.ChannelRepository,
	commentRepo repository.CommentRepository,
	auditRepo repository.AuditRepository,
	notificationRepo repository.NotificationRepository,
	transactionMgr repository.TransactionManager,
	d *dispatcher.Dispatcher,
	modules ModuleChecker,
	logger *slog.Logger,
) Service {
	return &ServiceImpl{
		contentRepo:      contentRepo,
		channelRepo:      channelRepo,
		commentRepo:      commentRepo,
		auditRepo:        auditRepo,
		notificationRepo: notificationRepo,
		transactionMgr:   transactionMgr,
		dispatcher:       d,
		modules:          modules,
		logger:           logger,
	}
}

func transitionError(from, to model.Status) error {
	return fmt.Errorf("%w: cannot move from %q to %q", model.ErrInvalidTransition, from, to)
}

func contentKey(contentID string) string {
	return "content:" + contentID
}

// loadAuthorized fetches the item and runs the tenant and feature-flag gates
// shared by every operation. No write happens before these pass.
func (s *ServiceImpl) loadAuthorized(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error) {
	item, err := s.contentRepo.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	if !actor.MemberOf(item.TenantID) {
		return nil, model.ErrForbidden
	}

	enabled, err := s.modules.HasModule(ctx, item.TenantID, ModuleSocialPublishing)
	if err != nil {
		return nil, fmt.Errorf("module check failed: %w", err)
	}

	if !enabled {
		return nil, model.ErrModuleDisabled
	}

	return item, nil
}

// applyTransition runs the role gate and the transition table, then commits
// the status change, an audit entry, and whatever extra writes the caller
// needs in one transaction. Staged outbox jobs returned by extra are
// submitted to the queue after the commit.
func (s *ServiceImpl) applyTransition(
	ctx context.Context,
	actor model.Actor,
	item *model.ContentItem,
	target model.Status,
	extra func(txCtx context.Context) ([]*model.OutboxJob, error),
) (*model.ContentItem, error) {
	if !actor.MayRequest(target) {
		return nil, transitionError(item.Status, target)
	}

	if !model.CanTransition(item.Status, target) {
		return nil, transitionError(item.Status, target)
	}

	var staged []*model.OutboxJob

	err := s.transactionMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		moved, err := s.contentRepo.UpdateStatus(txCtx, item.ID, item.Status, target)
		if err != nil {
			return err
		}

		// Someone moved the item since we read it; reject rather than
		// silently overwrite.
		if !moved {
			return transitionError(item.Status, target)
		}

		if err := s.auditRepo.Append(txCtx, item.TenantID, model.AuditActionStatusChanged,
			"content", item.ID,
			model.StatusChangePayload{From: item.Status, To: target, ActorID: actor.UserID},
		); err != nil {
			return err
		}

		if extra != nil {
			staged, err = extra(txCtx)

			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(staged) > 0 {
		s.dispatcher.Submit(ctx, staged...)
	}

	s.logger.Info("content transitioned",
		slog.String("content_id", item.ID),
		slog.String("from", string(item.Status)),
		slog.String("to", string(target)),
		slog.String("actor_id", actor.UserID),
	)

	updated := *item
	updated.Status = target
	updated.UpdatedAt = time.Now()

	return &updated, nil
}

// CreateContent creates a new draft content item. Agency only.
func (s *ServiceImpl) CreateContent(ctx context.Context, actor model.Actor, params *model.CreateContentParams) (*model.ContentItem, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if !actor.CanManageTenant() {
		return nil, model.ErrForbidden
	}

	if !actor.MemberOf(params.TenantID) {
		return nil, model.ErrForbidden
	}

	enabled, err := s.modules.HasModule(ctx, params.TenantID, ModuleSocialPublishing)
	if err != nil {
		return nil, fmt.Errorf("module check failed: %w", err)
	}

	if !enabled {
		return nil, model.ErrModuleDisabled
	}

	return s.contentRepo.Create(ctx, params)
}

// GetContent retrieves a content item the actor is allowed to see.
func (s *ServiceImpl) GetContent(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error) {
	return s.loadAuthorized(ctx, actor, contentID)
}

// AttachChannel binds a content item to a publishing destination.
func (s *ServiceImpl) AttachChannel(ctx context.Context, actor model.Actor, contentID string, params *model.AttachChannelParams) (*model.ChannelBinding, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if !actor.CanManageTenant() {
		return nil, model.ErrForbidden
	}

	item, err := s.loadAuthorized(ctx, actor, contentID)
	if err != nil {
		return nil, err
	}

	return s.channelRepo.Attach(ctx, item.ID, params)
}

// RequestTransition is the generic transition surface. Archival routes
// through ArchiveAndRetract so retraction is never skipped.
func (s *ServiceImpl) RequestTransition(ctx context.Context, actor model.Actor, contentID string, target model.Status) (*model.ContentItem, error) {
	if target == model.StatusArchived {
		return s.ArchiveAndRetract(ctx, actor, contentID)
	}

	item, err := s.loadAuthorized(ctx, actor, contentID)
	if err != nil {
		return nil, err
	}

	// Entering scheduled requires an already-set future publish time; use
	// Schedule to set one.
	if target == model.StatusScheduled && !CanSchedule(item.Status, item.ScheduledAt, time.Now()) {
		return nil, transitionError(item.Status, target)
	}

	return s.applyTransition(ctx, actor, item, target, nil)
}

// SendForApproval moves the item to pending_client and notifies the client
// space. The notification is an upsert, so resending while the first request
// is unresolved updates it in place instead of duplicating.
func (s *ServiceImpl) SendForApproval(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error) {
	if !actor.CanManageTenant() {
		return nil, model.ErrForbidden
	}

	item, err := s.loadAuthorized(ctx, actor, contentID)
	if err != nil {
		return nil, err
	}

	return s.applyTransition(ctx, actor, item, model.StatusPendingClient,
		func(txCtx context.Context) ([]*model.OutboxJob, error) {
			msg := fmt.Sprintf("%q is awaiting your approval", item.Title)

			return nil, s.notificationRepo.Upsert(txCtx, item.TenantID, contentKey(item.ID), msg)
		})
}

// Approve moves pending_client content to approved. Client only.
func (s *ServiceImpl) Approve(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error) {
	if !actor.CanActOnBehalfOfClient() {
		return nil, model.ErrForbidden
	}

	item, err := s.loadAuthorized(ctx, actor, contentID)
	if err != nil {
		return nil, err
	}

	return s.applyTransition(ctx, actor, item, model.StatusApproved,
		func(txCtx context.Context) ([]*model.OutboxJob, error) {
			msg := fmt.Sprintf("%q was approved", item.Title)

			return nil, s.notificationRepo.Upsert(txCtx, item.TenantID, contentKey(item.ID), msg)
		})
}

// RequestChanges moves pending_client content to changes_requested and
// persists the client's comment. Client only.
func (s *ServiceImpl) RequestChanges(ctx context.Context, actor model.Actor, contentID, comment string) (*model.ContentItem, error) {
	if !actor.CanActOnBehalfOfClient() {
		return nil, model.ErrForbidden
	}

	if comment == "" {
		return nil, model.ErrInvalidComment
	}

	item, err := s.loadAuthorized(ctx, actor, contentID)
	if err != nil {
		return nil, err
	}

	return s.applyTransition(ctx, actor, item, model.StatusChangesRequested,
		func(txCtx context.Context) ([]*model.OutboxJob, error) {
			if _, err := s.commentRepo.Create(txCtx, item.ID, actor.UserID, comment); err != nil {
				return nil, err
			}

			msg := fmt.Sprintf("changes requested on %q", item.Title)

			return nil, s.notificationRepo.Upsert(txCtx, item.TenantID, contentKey(item.ID), msg)
		})
}

// Schedule moves approved content to scheduled with a future publish time.
func (s *ServiceImpl) Schedule(ctx context.Context, actor model.Actor, contentID string, at time.Time) (*model.ContentItem, error) {
	if !actor.CanManageTenant() {
		return nil, model.ErrForbidden
	}

	item, err := s.loadAuthorized(ctx, actor, contentID)
	if err != nil {
		return nil, err
	}

	if !CanSchedule(item.Status, &at, time.Now()) {
		return nil, transitionError(item.Status, model.StatusScheduled)
	}

	err = s.transactionMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		moved, err := s.contentRepo.SetSchedule(txCtx, item.ID, item.Status, model.StatusScheduled, at)
		if err != nil {
			return err
		}

		if !moved {
			return transitionError(item.Status, model.StatusScheduled)
		}

		return s.auditRepo.Append(txCtx, item.TenantID, model.AuditActionStatusChanged,
			"content", item.ID,
			model.StatusChangePayload{From: item.Status, To: model.StatusScheduled, ActorID: actor.UserID},
		)
	})
	if err != nil {
		return nil, err
	}

	updated := *item
	updated.Status = model.StatusScheduled
	updated.ScheduledAt = &at
	updated.UpdatedAt = time.Now()

	return &updated, nil
}

// ArchiveAndRetract archives the item and enqueues one delete_remote job per
// channel binding, whatever state the binding is in. No bindings, no jobs.
func (s *ServiceImpl) ArchiveAndRetract(ctx context.Context, actor model.Actor, contentID string) (*model.ContentItem, error) {
	item, err := s.loadAuthorized(ctx, actor, contentID)
	if err != nil {
		return nil, err
	}

	bindings, err := s.channelRepo.ListByContent(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	return s.applyTransition(ctx, actor, item, model.StatusArchived,
		func(txCtx context.Context) ([]*model.OutboxJob, error) {
			staged := make([]*model.OutboxJob, 0, len(bindings))

			for _, b := range bindings {
				job, err := s.dispatcher.StageDeleteRemote(txCtx, item.TenantID, model.DeleteRemotePayload{
					ContentID: item.ID,
					BindingID: b.ID,
					ChannelID: b.ChannelID,
					Network:   b.Network,
					RemoteID:  b.RemoteID,
				})
				if err != nil {
					return nil, err
				}

				staged = append(staged, job)
			}

			return staged, nil
		})
}

// SyncComments enqueues one sync_comments job per published binding.
func (s *ServiceImpl) SyncComments(ctx context.Context, actor model.Actor, contentID string) (int, error) {
	if !actor.CanManageTenant() {
		return 0, model.ErrForbidden
	}

	item, err := s.loadAuthorized(ctx, actor, contentID)
	if err != nil {
		return 0, err
	}

	bindings, err := s.channelRepo.ListByContent(ctx, item.ID)
	if err != nil {
		return 0, err
	}

	enqueued := 0

	for _, b := range bindings {
		if b.RemoteID == "" {
			continue
		}

		_, err := s.dispatcher.EnqueueSyncComments(ctx, item.TenantID, model.SyncCommentsPayload{
			ContentID: item.ID,
			BindingID: b.ID,
			ChannelID: b.ChannelID,
			Network:   b.Network,
		})
		if err != nil {
			return enqueued, err
		}

		enqueued++
	}

	return enqueued, nil
}

// EnqueueDuePublishes dispatches every scheduled item whose publish time has
// passed. The dispatch claim and the staged publish jobs commit together;
// with the claim's optimistic check this makes dispatch exactly-once even
// with concurrent schedulers. The item stays scheduled until a worker reports
// success through CompletePublish. The queue submission happens after commit
// and is covered by the relay if it fails.
func (s *ServiceImpl) EnqueueDuePublishes(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.contentRepo.ListDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	dispatched := 0

	for _, item := range due {
		if err := s.dispatchPublish(ctx, item); err != nil {
			s.logger.Error("failed to dispatch due publish",
				slog.String("content_id", item.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		dispatched++
	}

	return dispatched, nil
}

func (s *ServiceImpl) dispatchPublish(ctx context.Context, item *model.ContentItem) error {
	bindings, err := s.channelRepo.ListByContent(ctx, item.ID)
	if err != nil {
		return err
	}

	var staged []*model.OutboxJob

	err = s.transactionMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		claimed, err := s.contentRepo.MarkPublishRequested(txCtx, item.ID)
		if err != nil {
			return err
		}

		// Another scheduler instance got here first.
		if !claimed {
			return nil
		}

		for _, b := range bindings {
			job, err := s.dispatcher.StagePublish(txCtx, item.TenantID, model.PublishPayload{
				ContentID:      item.ID,
				BindingID:      b.ID,
				ChannelID:      b.ChannelID,
				Network:        b.Network,
				IdempotencyKey: BuildIdempotencyKey(item.ID, b.ChannelID, item.ScheduledAt),
				ScheduledAt:    item.ScheduledAt,
			})
			if err != nil {
				return err
			}

			staged = append(staged, job)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if len(staged) > 0 {
		s.dispatcher.Submit(ctx, staged...)
	}

	return nil
}

// CompletePublish moves a scheduled item to published after a worker's
// publish call succeeded. With several bindings the first successful job
// flips the status and the rest find it already flipped; that is not an
// error. A failed or still-pending publish leaves the item scheduled.
func (s *ServiceImpl) CompletePublish(ctx context.Context, contentID string) error {
	item, err := s.contentRepo.GetByID(ctx, contentID)
	if err != nil {
		return err
	}

	if item.Status != model.StatusScheduled {
		return nil
	}

	err = s.transactionMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		moved, err := s.contentRepo.UpdateStatus(txCtx, contentID, model.StatusScheduled, model.StatusPublished)
		if err != nil {
			return err
		}

		// A sibling job flipped it between our read and the update.
		if !moved {
			return nil
		}

		return s.auditRepo.Append(txCtx, item.TenantID, model.AuditActionStatusChanged,
			"content", contentID,
			model.StatusChangePayload{From: model.StatusScheduled, To: model.StatusPublished},
		)
	})
	if err != nil {
		return err
	}

	s.logger.Info("content published",
		slog.String("content_id", contentID),
		slog.String("tenant_id", item.TenantID),
	)

	return nil
}
