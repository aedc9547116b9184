package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencydesk/contentflow/internal/dispatcher"
	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/testutil"
	"github.com/agencydesk/contentflow/internal/worker"
)

const testTenant = "tenant-1"

type fixture struct {
	contentRepo      *testutil.FakeContentRepo
	channelRepo      *testutil.FakeChannelRepo
	commentRepo      *testutil.FakeCommentRepo
	auditRepo        *testutil.FakeAuditRepo
	notificationRepo *testutil.FakeNotificationRepo
	outboxRepo       *testutil.FakeOutboxRepo
	queue            *testutil.FakeQueue
	dispatcher       *dispatcher.Dispatcher
	svc              Service
}

func newFixture() *fixture {
	f := &fixture{
		contentRepo:      testutil.NewFakeContentRepo(),
		channelRepo:      testutil.NewFakeChannelRepo(),
		commentRepo:      testutil.NewFakeCommentRepo(),
		auditRepo:        testutil.NewFakeAuditRepo(),
		notificationRepo: testutil.NewFakeNotificationRepo(),
		outboxRepo:       testutil.NewFakeOutboxRepo(),
		queue:            testutil.NewFakeQueue(),
	}

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.dispatcher = dispatcher.NewDispatcher(f.outboxRepo, f.auditRepo, f.queue, discard)
	f.svc = NewServiceImpl(
		f.contentRepo, f.channelRepo, f.commentRepo, f.auditRepo, f.notificationRepo,
		testutil.FakeTxManager{}, f.dispatcher, testutil.StaticModules{Enabled: true}, discard,
	)

	return f
}

// seedContent plants an item directly in the store at the given status.
func (f *fixture) seedContent(status model.Status, scheduledAt *time.Time) *model.ContentItem {
	item := &model.ContentItem{
		ID:          uuid.New().String(),
		TenantID:    testTenant,
		Title:       "Summer launch",
		Body:        "body",
		Status:      status,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.contentRepo.Items[item.ID] = item

	return item
}

func (f *fixture) seedBinding(contentID, channelID string) *model.ChannelBinding {
	binding, _ := f.channelRepo.Attach(context.Background(), contentID, &model.AttachChannelParams{
		Network:   "mastodon",
		ChannelID: channelID,
	})

	return binding
}

func agencyActor() model.Actor {
	return model.Actor{UserID: "agency-user", Role: model.RoleAgency, TenantIDs: []string{testTenant}}
}

func clientActor() model.Actor {
	return model.Actor{UserID: "client-user", Role: model.RoleClient, TenantIDs: []string{testTenant}}
}

func TestSendForApproval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	item := f.seedContent(model.StatusDraft, nil)

	updated, err := f.svc.SendForApproval(ctx, agencyActor(), item.ID)

	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingClient, updated.Status)

	n, ok := f.notificationRepo.Get(testTenant, "content:"+item.ID)
	require.True(t, ok)
	assert.Contains(t, n.Message, "awaiting your approval")

	assert.Equal(t, []string{model.AuditActionStatusChanged}, f.auditRepo.Actions())
}

func TestSendForApprovalClientForbidden(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusDraft, nil)

	_, err := f.svc.SendForApproval(context.Background(), clientActor(), item.ID)

	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestSendForApprovalFromApprovedRejected(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusApproved, nil)

	_, err := f.svc.SendForApproval(context.Background(), agencyActor(), item.ID)

	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestApprove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	item := f.seedContent(model.StatusPendingClient, nil)

	updated, err := f.svc.Approve(ctx, clientActor(), item.ID)

	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, updated.Status)

	// Exactly one notification keyed to this content.
	n, ok := f.notificationRepo.Get(testTenant, "content:"+item.ID)
	require.True(t, ok)
	assert.Contains(t, n.Message, "approved")
	assert.Len(t, f.notificationRepo.Notifications, 1)
}

func TestApproveOutsidePendingClientRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, status := range []model.Status{model.StatusDraft, model.StatusApproved, model.StatusPublished, model.StatusArchived} {
		item := f.seedContent(status, nil)

		_, err := f.svc.Approve(ctx, clientActor(), item.ID)

		assert.ErrorIs(t, err, model.ErrInvalidTransition, string(status))
	}
}

func TestApproveByAgencyForbidden(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusPendingClient, nil)

	_, err := f.svc.Approve(context.Background(), agencyActor(), item.ID)

	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestRequestChanges(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	item := f.seedContent(model.StatusPendingClient, nil)

	updated, err := f.svc.RequestChanges(ctx, clientActor(), item.ID, "fix the headline")

	require.NoError(t, err)
	assert.Equal(t, model.StatusChangesRequested, updated.Status)

	comments, err := f.commentRepo.ListByContent(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "fix the headline", comments[0].Body)
	assert.Equal(t, "client-user", comments[0].AuthorID)

	_, ok := f.notificationRepo.Get(testTenant, "content:"+item.ID)
	assert.True(t, ok)
}

func TestRequestChangesRequiresComment(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusPendingClient, nil)

	_, err := f.svc.RequestChanges(context.Background(), clientActor(), item.ID, "")

	assert.ErrorIs(t, err, model.ErrInvalidComment)
}

func TestRequestChangesOutsidePendingClientRejected(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusDraft, nil)

	_, err := f.svc.RequestChanges(context.Background(), clientActor(), item.ID, "nope")

	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestNotificationUpsertsInPlace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	item := f.seedContent(model.StatusDraft, nil)

	_, err := f.svc.SendForApproval(ctx, agencyActor(), item.ID)
	require.NoError(t, err)

	_, err = f.svc.RequestChanges(ctx, clientActor(), item.ID, "tighten the copy")
	require.NoError(t, err)

	_, err = f.svc.SendForApproval(ctx, agencyActor(), item.ID)
	require.NoError(t, err)

	// Three emissions, one unresolved notification row.
	assert.Len(t, f.notificationRepo.Notifications, 1)

	n, ok := f.notificationRepo.Get(testTenant, "content:"+item.ID)
	require.True(t, ok)
	assert.Contains(t, n.Message, "awaiting your approval")
}

func TestArchiveAndRetractWithTwoBindings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	item := f.seedContent(model.StatusPublished, nil)
	first := f.seedBinding(item.ID, "chan-1")
	second := f.seedBinding(item.ID, "chan-2")

	updated, err := f.svc.ArchiveAndRetract(ctx, agencyActor(), item.ID)

	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, updated.Status)

	jobs := f.outboxRepo.ByType(model.JobTypeDeleteRemote)
	require.Len(t, jobs, 2)

	bindingIDs := map[string]bool{}

	for _, job := range jobs {
		assert.Equal(t, model.JobStatusQueued, job.Status)
		assert.Equal(t, 0, job.Attempts)

		var p model.DeleteRemotePayload
		require.NoError(t, json.Unmarshal(job.Payload, &p))
		bindingIDs[p.BindingID] = true
	}

	assert.True(t, bindingIDs[first.ID])
	assert.True(t, bindingIDs[second.ID])

	// Both staged rows were handed to the queue after commit.
	assert.Len(t, f.queue.Submitted, 2)
}

func TestArchiveWithoutBindingsEnqueuesNothing(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusDraft, nil)

	updated, err := f.svc.ArchiveAndRetract(context.Background(), agencyActor(), item.ID)

	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, updated.Status)
	assert.Empty(t, f.outboxRepo.Jobs)
	assert.Empty(t, f.queue.Submitted)
}

func TestRequestTransitionArchivesThroughRetraction(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusPublished, nil)
	f.seedBinding(item.ID, "chan-1")

	updated, err := f.svc.RequestTransition(context.Background(), agencyActor(), item.ID, model.StatusArchived)

	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, updated.Status)
	assert.Len(t, f.outboxRepo.ByType(model.JobTypeDeleteRemote), 1)
}

func TestRequestTransitionRoleGate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Client may not push content to the client queue.
	item := f.seedContent(model.StatusDraft, nil)
	_, err := f.svc.RequestTransition(ctx, clientActor(), item.ID, model.StatusPendingClient)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// Agency may not approve on the client's behalf.
	item = f.seedContent(model.StatusPendingClient, nil)
	_, err = f.svc.RequestTransition(ctx, agencyActor(), item.ID, model.StatusApproved)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestRequestTransitionScheduledNeedsFutureTime(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	item := f.seedContent(model.StatusApproved, nil)
	_, err := f.svc.RequestTransition(ctx, agencyActor(), item.ID, model.StatusScheduled)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	future := time.Now().Add(time.Hour)
	item = f.seedContent(model.StatusApproved, &future)
	updated, err := f.svc.RequestTransition(ctx, agencyActor(), item.ID, model.StatusScheduled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, updated.Status)
}

func TestForbiddenOutsideTenant(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusDraft, nil)

	outsider := model.Actor{UserID: "x", Role: model.RoleAgency, TenantIDs: []string{"other-tenant"}}

	_, err := f.svc.SendForApproval(context.Background(), outsider, item.ID)

	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Approve(context.Background(), clientActor(), "missing")

	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestModuleDisabled(t *testing.T) {
	f := newFixture()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewServiceImpl(
		f.contentRepo, f.channelRepo, f.commentRepo, f.auditRepo, f.notificationRepo,
		testutil.FakeTxManager{}, f.dispatcher, testutil.StaticModules{Enabled: false}, discard,
	)

	item := f.seedContent(model.StatusDraft, nil)

	_, err := svc.SendForApproval(context.Background(), agencyActor(), item.ID)

	assert.ErrorIs(t, err, model.ErrModuleDisabled)
}

func TestSchedule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	item := f.seedContent(model.StatusApproved, nil)
	at := time.Now().Add(time.Hour)

	updated, err := f.svc.Schedule(ctx, agencyActor(), item.ID, at)

	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, updated.Status)
	require.NotNil(t, updated.ScheduledAt)
	assert.True(t, updated.ScheduledAt.Equal(at))
}

func TestScheduleRejectsPastTime(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusApproved, nil)

	_, err := f.svc.Schedule(context.Background(), agencyActor(), item.ID, time.Now().Add(-time.Minute))

	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestScheduleRejectsNonApproved(t *testing.T) {
	f := newFixture()
	item := f.seedContent(model.StatusDraft, nil)

	_, err := f.svc.Schedule(context.Background(), agencyActor(), item.ID, time.Now().Add(time.Hour))

	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestEnqueueDuePublishes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	at := time.Now().Add(-time.Minute)
	item := f.seedContent(model.StatusScheduled, &at)
	binding := f.seedBinding(item.ID, "chan-1")

	dispatched, err := f.svc.EnqueueDuePublishes(ctx, time.Now(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)

	// Dispatch claims the item but does not flip it; publication is only a
	// fact once a worker reports success.
	stored, err := f.contentRepo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, stored.Status)
	assert.NotNil(t, stored.PublishRequestedAt)

	jobs := f.outboxRepo.ByType(model.JobTypePublish)
	require.Len(t, jobs, 1)

	var p model.PublishPayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &p))
	assert.Equal(t, binding.ID, p.BindingID)
	assert.Equal(t, BuildIdempotencyKey(item.ID, binding.ChannelID, &at), p.IdempotencyKey)

	// A second scan finds nothing: the claim consumed the edge.
	dispatched, err = f.svc.EnqueueDuePublishes(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
	assert.Len(t, f.outboxRepo.ByType(model.JobTypePublish), 1)
}

func TestCompletePublish(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	at := time.Now().Add(-time.Minute)
	item := f.seedContent(model.StatusScheduled, &at)

	require.NoError(t, f.svc.CompletePublish(ctx, item.ID))

	stored, err := f.contentRepo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, stored.Status)
	assert.Equal(t, []string{model.AuditActionStatusChanged}, f.auditRepo.Actions())
}

func TestCompletePublishToleratesSiblingFlip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	item := f.seedContent(model.StatusPublished, nil)

	// A second binding's job reporting after the first flipped the item.
	require.NoError(t, f.svc.CompletePublish(ctx, item.ID))

	stored, err := f.contentRepo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, stored.Status)
	assert.Empty(t, f.auditRepo.Actions())
}

func TestCompletePublishLeavesArchivedAlone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	item := f.seedContent(model.StatusArchived, nil)

	require.NoError(t, f.svc.CompletePublish(ctx, item.ID))

	stored, err := f.contentRepo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, stored.Status)
}

// TestPublishFailureLeavesItemScheduled exhausts every publish attempt and
// checks the item never claims to be published while nothing exists remotely.
func TestPublishFailureLeavesItemScheduled(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	at := time.Now().Add(-time.Minute)
	item := f.seedContent(model.StatusScheduled, &at)
	binding := f.seedBinding(item.ID, "chan-1")

	dispatched, err := f.svc.EnqueueDuePublishes(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	fakeNet := testutil.NewFakeNetwork()
	fakeNet.PublishErr = errors.New("channel rejects everything")
	handlers := worker.NewHandlers(f.outboxRepo, f.channelRepo, f.svc, fakeNet, f.queue, discard)

	// Drain the queue through every automatic retry until attempts run out.
	for len(f.queue.Submitted) > 0 {
		job := f.queue.Submitted[0]
		f.queue.Submitted = f.queue.Submitted[1:]

		require.NoError(t, handlers.Handle(ctx, job))

		_, err := f.queue.MoveDue(ctx, time.Now())
		require.NoError(t, err)
	}

	stored, err := f.contentRepo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, stored.Status)

	storedBinding, err := f.channelRepo.GetByID(ctx, binding.ID)
	require.NoError(t, err)
	assert.Empty(t, storedBinding.RemoteID)
	assert.Empty(t, storedBinding.RemoteURL)

	jobs := f.outboxRepo.ByType(model.JobTypePublish)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobStatusFailed, jobs[0].Status)
	assert.Equal(t, 5, jobs[0].Attempts)
}

func TestEnqueueDuePublishesSkipsFutureItems(t *testing.T) {
	f := newFixture()

	at := time.Now().Add(time.Hour)
	f.seedContent(model.StatusScheduled, &at)

	dispatched, err := f.svc.EnqueueDuePublishes(context.Background(), time.Now(), 10)

	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
}

// TestApprovalLifecycleEndToEnd walks the full path from draft to published,
// driving the worker over the jobs the workflow enqueued.
func TestApprovalLifecycleEndToEnd(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	agency := agencyActor()
	client := clientActor()

	item, err := f.svc.CreateContent(ctx, agency, &model.CreateContentParams{
		TenantID: testTenant,
		Title:    "Autumn campaign",
		Body:     "copy",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, item.Status)

	binding, err := f.svc.AttachChannel(ctx, agency, item.ID, &model.AttachChannelParams{
		Network:   "mastodon",
		ChannelID: "chan-9",
	})
	require.NoError(t, err)

	item, err = f.svc.SendForApproval(ctx, agency, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingClient, item.Status)

	_, ok := f.notificationRepo.Get(testTenant, "content:"+item.ID)
	assert.True(t, ok)

	item, err = f.svc.RequestChanges(ctx, client, item.ID, "fix the headline")
	require.NoError(t, err)
	assert.Equal(t, model.StatusChangesRequested, item.Status)

	comments, err := f.commentRepo.ListByContent(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	item, err = f.svc.SendForApproval(ctx, agency, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingClient, item.Status)

	item, err = f.svc.Approve(ctx, client, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, item.Status)

	at := time.Now().Add(time.Hour)
	item, err = f.svc.Schedule(ctx, agency, item.ID, at)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, item.Status)

	// The publish time arrives.
	dispatched, err := f.svc.EnqueueDuePublishes(ctx, at.Add(time.Second), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)

	require.Len(t, f.queue.Submitted, 1)

	// The worker picks up the job; its success flips the item to published.
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	fakeNet := testutil.NewFakeNetwork()
	handlers := worker.NewHandlers(f.outboxRepo, f.channelRepo, f.svc, fakeNet, f.queue, discard)

	require.NoError(t, handlers.Handle(ctx, f.queue.Submitted[0]))

	stored, err := f.channelRepo.GetByID(ctx, binding.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.RemoteID)
	assert.NotEmpty(t, stored.RemoteURL)
	assert.NotEmpty(t, stored.IdempotencyKey)

	jobs := f.outboxRepo.ByType(model.JobTypePublish)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobStatusCompleted, jobs[0].Status)

	final, err := f.contentRepo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, final.Status)

	require.Len(t, fakeNet.PublishCalls, 1)
	assert.Equal(t, BuildIdempotencyKey(item.ID, "chan-9", item.ScheduledAt), fakeNet.PublishCalls[0].IdempotencyKey)
}
