// Package testutil provides in-memory fakes for the store, the queue, and
// the external network so workflow logic is testable without Postgres or
// Redis.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/network"
	"github.com/agencydesk/contentflow/internal/queue"
)

// FakeContentRepo is an in-memory ContentRepository.
type FakeContentRepo struct {
	mu    sync.Mutex
	Items map[string]*model.ContentItem
}

// NewFakeContentRepo creates an empty fake content repository.
func NewFakeContentRepo() *FakeContentRepo {
	return &FakeContentRepo{Items: make(map[string]*model.ContentItem)}
}

// Create inserts a draft content item.
func (r *FakeContentRepo) Create(_ context.Context, params *model.CreateContentParams) (*model.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	item := &model.ContentItem{
		ID:        uuid.New().String(),
		TenantID:  params.TenantID,
		Title:     params.Title,
		Body:      params.Body,
		Status:    model.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Items[item.ID] = item

	copied := *item

	return &copied, nil
}

// GetByID returns a copy of the stored item.
func (r *FakeContentRepo) GetByID(_ context.Context, id string) (*model.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.Items[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	copied := *item

	return &copied, nil
}

// UpdateStatus applies the optimistic status move.
func (r *FakeContentRepo) UpdateStatus(_ context.Context, id string, from, to model.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.Items[id]
	if !ok || item.Status != from {
		return false, nil
	}

	item.Status = to
	item.UpdatedAt = time.Now()

	return true, nil
}

// SetSchedule applies the optimistic status move plus the publish time.
func (r *FakeContentRepo) SetSchedule(_ context.Context, id string, from, to model.Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.Items[id]
	if !ok || item.Status != from {
		return false, nil
	}

	item.Status = to
	item.ScheduledAt = &at
	item.UpdatedAt = time.Now()

	return true, nil
}

// MarkPublishRequested claims a scheduled item for publish dispatch.
func (r *FakeContentRepo) MarkPublishRequested(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.Items[id]
	if !ok || item.Status != model.StatusScheduled || item.PublishRequestedAt != nil {
		return false, nil
	}

	now := time.Now()
	item.PublishRequestedAt = &now
	item.UpdatedAt = now

	return true, nil
}

// ListDue returns undispatched scheduled items whose publish time has passed.
func (r *FakeContentRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*model.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*model.ContentItem

	for _, item := range r.Items {
		if len(due) >= limit {
			break
		}

		if item.Status == model.StatusScheduled && item.PublishRequestedAt == nil &&
			item.ScheduledAt != nil && !item.ScheduledAt.After(now) {
			copied := *item
			due = append(due, &copied)
		}
	}

	return due, nil
}

// FakeChannelRepo is an in-memory ChannelRepository.
type FakeChannelRepo struct {
	mu       sync.Mutex
	Bindings map[string]*model.ChannelBinding
}

// NewFakeChannelRepo creates an empty fake channel repository.
func NewFakeChannelRepo() *FakeChannelRepo {
	return &FakeChannelRepo{Bindings: make(map[string]*model.ChannelBinding)}
}

// Attach creates a binding, or returns the existing one for the same triple.
func (r *FakeChannelRepo) Attach(_ context.Context, contentID string, params *model.AttachChannelParams) (*model.ChannelBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.Bindings {
		if b.ContentID == contentID && b.Network == params.Network && b.ChannelID == params.ChannelID {
			copied := *b

			return &copied, nil
		}
	}

	now := time.Now()
	binding := &model.ChannelBinding{
		ID:        uuid.New().String(),
		ContentID: contentID,
		Network:   params.Network,
		ChannelID: params.ChannelID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Bindings[binding.ID] = binding

	copied := *binding

	return &copied, nil
}

// GetByID returns a copy of the stored binding.
func (r *FakeChannelRepo) GetByID(_ context.Context, id string) (*model.ChannelBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, ok := r.Bindings[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	copied := *binding

	return &copied, nil
}

// ListByContent returns copies of all bindings for a content item.
func (r *FakeChannelRepo) ListByContent(_ context.Context, contentID string) ([]*model.ChannelBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bindings []*model.ChannelBinding

	for _, b := range r.Bindings {
		if b.ContentID == contentID {
			copied := *b
			bindings = append(bindings, &copied)
		}
	}

	return bindings, nil
}

// MarkPublished records a successful publish.
func (r *FakeChannelRepo) MarkPublished(_ context.Context, id, idempotencyKey, remoteID, remoteURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, ok := r.Bindings[id]
	if !ok {
		return model.ErrNotFound
	}

	binding.IdempotencyKey = idempotencyKey
	binding.RemoteID = remoteID
	binding.RemoteURL = remoteURL
	binding.LastError = ""
	binding.UpdatedAt = time.Now()

	return nil
}

// ClearRemote wipes the remote fields.
func (r *FakeChannelRepo) ClearRemote(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, ok := r.Bindings[id]
	if !ok {
		return model.ErrNotFound
	}

	binding.RemoteID = ""
	binding.RemoteURL = ""
	binding.LastError = ""
	binding.UpdatedAt = time.Now()

	return nil
}

// SetError records an external failure.
func (r *FakeChannelRepo) SetError(_ context.Context, id, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, ok := r.Bindings[id]
	if !ok {
		return model.ErrNotFound
	}

	binding.LastError = lastError
	binding.UpdatedAt = time.Now()

	return nil
}

// FakeOutboxRepo is an in-memory OutboxRepository with the same lifecycle
// guards as the SQL implementation.
type FakeOutboxRepo struct {
	mu   sync.Mutex
	Jobs map[string]*model.OutboxJob
}

// NewFakeOutboxRepo creates an empty fake outbox repository.
func NewFakeOutboxRepo() *FakeOutboxRepo {
	return &FakeOutboxRepo{Jobs: make(map[string]*model.OutboxJob)}
}

// Create stages a queued job.
func (r *FakeOutboxRepo) Create(_ context.Context, params *model.CreateOutboxJobParams) (*model.OutboxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	job := &model.OutboxJob{
		ID:        params.ID,
		TenantID:  params.TenantID,
		Type:      params.Type,
		Payload:   params.Payload,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Jobs[job.ID] = job

	copied := *job

	return &copied, nil
}

// GetByID returns a copy of the stored job.
func (r *FakeOutboxRepo) GetByID(_ context.Context, id string) (*model.OutboxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.Jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	copied := *job

	return &copied, nil
}

// MarkProcessing claims a queued or redelivered job.
func (r *FakeOutboxRepo) MarkProcessing(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.Jobs[id]
	if !ok {
		return false, nil
	}

	if job.Status != model.JobStatusQueued && job.Status != model.JobStatusProcessing {
		return false, nil
	}

	job.Status = model.JobStatusProcessing
	job.UpdatedAt = time.Now()

	return true, nil
}

// MarkCompleted finishes a processing job.
func (r *FakeOutboxRepo) MarkCompleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.Jobs[id]; ok && job.Status == model.JobStatusProcessing {
		job.Status = model.JobStatusCompleted
		job.UpdatedAt = time.Now()
	}

	return nil
}

// MarkFailed fails a processing job, incrementing attempts.
func (r *FakeOutboxRepo) MarkFailed(_ context.Context, id, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.Jobs[id]; ok && job.Status == model.JobStatusProcessing {
		job.Status = model.JobStatusFailed
		job.Attempts++
		job.LastError = lastError
		job.UpdatedAt = time.Now()
	}

	return nil
}

// Requeue moves a failed job back to queued.
func (r *FakeOutboxRepo) Requeue(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.Jobs[id]; ok && job.Status == model.JobStatusFailed {
		job.Status = model.JobStatusQueued
		job.UpdatedAt = time.Now()
	}

	return nil
}

// ResetForRetry implements the manual retry reset.
func (r *FakeOutboxRepo) ResetForRetry(_ context.Context, id string) (*model.OutboxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.Jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	if job.Status == model.JobStatusCompleted {
		return nil, model.ErrAlreadyCompleted
	}

	job.Status = model.JobStatusQueued
	job.Attempts++
	job.LastError = ""
	job.UpdatedAt = time.Now()

	copied := *job

	return &copied, nil
}

// ListUnsubmitted returns queued jobs last touched before the cutoff.
func (r *FakeOutboxRepo) ListUnsubmitted(_ context.Context, olderThan time.Time, limit int) ([]*model.OutboxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []*model.OutboxJob

	for _, job := range r.Jobs {
		if len(jobs) >= limit {
			break
		}

		if job.Status == model.JobStatusQueued && job.UpdatedAt.Before(olderThan) {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}

	return jobs, nil
}

// List returns jobs for a tenant, optionally filtered by status.
func (r *FakeOutboxRepo) List(_ context.Context, tenantID string, status model.JobStatus, limit int) ([]*model.OutboxJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []*model.OutboxJob

	for _, job := range r.Jobs {
		if len(jobs) >= limit {
			break
		}

		if job.TenantID == tenantID && (status == "" || job.Status == status) {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}

	return jobs, nil
}

// ByType returns copies of all jobs of one type, for assertions.
func (r *FakeOutboxRepo) ByType(t model.JobType) []*model.OutboxJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []*model.OutboxJob

	for _, job := range r.Jobs {
		if job.Type == t {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}

	return jobs
}

// FakeAuditRepo records audit entries in memory.
type FakeAuditRepo struct {
	mu      sync.Mutex
	Entries []model.AuditEntry
}

// NewFakeAuditRepo creates an empty fake audit repository.
func NewFakeAuditRepo() *FakeAuditRepo {
	return &FakeAuditRepo{}
}

// Append records one audit entry. The payload is not marshalled.
func (r *FakeAuditRepo) Append(_ context.Context, tenantID, action, entityType, entityID string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Entries = append(r.Entries, model.AuditEntry{
		TenantID:   tenantID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  time.Now(),
	})

	return nil
}

// Actions returns the recorded audit actions in order.
func (r *FakeAuditRepo) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	actions := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		actions[i] = e.Action
	}

	return actions
}

// FakeNotificationRepo upserts notifications keyed by (space, entity).
type FakeNotificationRepo struct {
	mu            sync.Mutex
	Notifications map[string]*model.Notification
}

// NewFakeNotificationRepo creates an empty fake notification repository.
func NewFakeNotificationRepo() *FakeNotificationRepo {
	return &FakeNotificationRepo{Notifications: make(map[string]*model.Notification)}
}

func notificationKey(spaceID, entityKey string) string {
	return spaceID + "|" + entityKey
}

// Upsert creates or refreshes the unresolved notification for the key.
func (r *FakeNotificationRepo) Upsert(_ context.Context, spaceID, entityKey, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := notificationKey(spaceID, entityKey)
	if n, ok := r.Notifications[key]; ok && !n.Resolved {
		n.Message = message
		n.UpdatedAt = time.Now()

		return nil
	}

	now := time.Now()
	r.Notifications[key] = &model.Notification{
		ID:        uuid.New().String(),
		SpaceID:   spaceID,
		EntityKey: entityKey,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return nil
}

// Resolve marks the open notification for the key as handled.
func (r *FakeNotificationRepo) Resolve(_ context.Context, spaceID, entityKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.Notifications[notificationKey(spaceID, entityKey)]; ok {
		n.Resolved = true
	}

	return nil
}

// Get returns the notification for the key, if any.
func (r *FakeNotificationRepo) Get(spaceID, entityKey string) (*model.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.Notifications[notificationKey(spaceID, entityKey)]
	if !ok {
		return nil, false
	}

	copied := *n

	return &copied, true
}

// FakeCommentRepo records comments in memory.
type FakeCommentRepo struct {
	mu       sync.Mutex
	Comments []*model.Comment
}

// NewFakeCommentRepo creates an empty fake comment repository.
func NewFakeCommentRepo() *FakeCommentRepo {
	return &FakeCommentRepo{}
}

// Create records a comment.
func (r *FakeCommentRepo) Create(_ context.Context, contentID, authorID, body string) (*model.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &model.Comment{
		ID:        uuid.New().String(),
		ContentID: contentID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now(),
	}
	r.Comments = append(r.Comments, c)

	copied := *c

	return &copied, nil
}

// ListByContent returns comments for one content item.
func (r *FakeCommentRepo) ListByContent(_ context.Context, contentID string) ([]*model.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var comments []*model.Comment

	for _, c := range r.Comments {
		if c.ContentID == contentID {
			copied := *c
			comments = append(comments, &copied)
		}
	}

	return comments, nil
}

// FakeTxManager runs the closure directly; the fakes have no transactions.
type FakeTxManager struct{}

// WithTransaction executes fn with the given context.
func (FakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// FakeQueue collects submitted and delayed jobs.
type FakeQueue struct {
	mu        sync.Mutex
	Submitted []queue.Job
	Delayed   []DelayedJob
	FailNext  bool
}

// DelayedJob is a job parked by SubmitAfter.
type DelayedJob struct {
	Job   queue.Job
	Delay time.Duration
}

// NewFakeQueue creates an empty fake queue.
func NewFakeQueue() *FakeQueue {
	return &FakeQueue{}
}

// Submit records the job, or fails once when FailNext is set.
func (q *FakeQueue) Submit(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.FailNext {
		q.FailNext = false

		return context.DeadlineExceeded
	}

	q.Submitted = append(q.Submitted, job)

	return nil
}

// SubmitAfter records the job with its delay.
func (q *FakeQueue) SubmitAfter(_ context.Context, job queue.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.Delayed = append(q.Delayed, DelayedJob{Job: job, Delay: delay})

	return nil
}

// MoveDue promotes every delayed job regardless of delay.
func (q *FakeQueue) MoveDue(_ context.Context, _ time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	moved := len(q.Delayed)
	for _, d := range q.Delayed {
		q.Submitted = append(q.Submitted, d.Job)
	}

	q.Delayed = nil

	return moved, nil
}

// FakeNetwork is a scriptable network.Client.
type FakeNetwork struct {
	mu           sync.Mutex
	PublishErr   error
	DeleteErr    error
	SyncErr      error
	PublishCalls []network.PublishRequest
	DeleteCalls  []network.DeleteRequest
	SyncCalls    []network.SyncRequest
}

// NewFakeNetwork creates a fake network client that succeeds by default.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{}
}

// Publish records the call and fabricates deterministic remote identifiers.
func (n *FakeNetwork) Publish(_ context.Context, req network.PublishRequest) (*model.PublishResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.PublishCalls = append(n.PublishCalls, req)

	if n.PublishErr != nil {
		return nil, n.PublishErr
	}

	return &model.PublishResult{
		RemoteID:  "remote-" + req.ContentID,
		RemoteURL: "https://" + req.Network + ".example.com/posts/remote-" + req.ContentID,
	}, nil
}

// Delete records the call.
func (n *FakeNetwork) Delete(_ context.Context, req network.DeleteRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.DeleteCalls = append(n.DeleteCalls, req)

	return n.DeleteErr
}

// SyncComments records the call.
func (n *FakeNetwork) SyncComments(_ context.Context, req network.SyncRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.SyncCalls = append(n.SyncCalls, req)

	return n.SyncErr
}

// FakeCompleter records publish completions.
type FakeCompleter struct {
	mu        sync.Mutex
	Completed []string
	Err       error
}

// CompletePublish records the content id, or fails when Err is set.
func (c *FakeCompleter) CompletePublish(_ context.Context, contentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}

	c.Completed = append(c.Completed, contentID)

	return nil
}

// StaticModules is a ModuleChecker answering the same for every tenant.
type StaticModules struct {
	Enabled bool
}

// HasModule returns the static answer.
func (m StaticModules) HasModule(_ context.Context, _, _ string) (bool, error) {
	return m.Enabled, nil
}
