// Package main provides the HTTP API server for the content approval
// workflow.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/rueidis"

	"github.com/agencydesk/contentflow/internal/config"
	"github.com/agencydesk/contentflow/internal/dispatcher"
	"github.com/agencydesk/contentflow/internal/logger"
	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/queue"
	"github.com/agencydesk/contentflow/internal/repository"
	"github.com/agencydesk/contentflow/internal/workflow"
)

const (
	contentTypeJSON = "Content-Type"
	applicationJSON = "application/json"
	exitCode        = 1
)

// allowAllModules stands in for the platform's feature-flag service.
type allowAllModules struct{}

func (allowAllModules) HasModule(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

// APIServer handles HTTP requests for the workflow and the operator outbox
// view.
type APIServer struct {
	workflowSvc workflow.Service
	dispatcher  *dispatcher.Dispatcher
	outboxRepo  repository.OutboxRepository
	pageSize    int
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(workflowSvc workflow.Service, d *dispatcher.Dispatcher, outboxRepo repository.OutboxRepository, pageSize int) *APIServer {
	return &APIServer{
		workflowSvc: workflowSvc,
		dispatcher:  d,
		outboxRepo:  outboxRepo,
		pageSize:    pageSize,
	}
}

// actorFromRequest reads the identity the upstream session layer injected.
// Authentication itself happens outside this service.
func actorFromRequest(r *http.Request) (model.Actor, bool) {
	userID := r.Header.Get("X-User-Id")
	role := model.Role(r.Header.Get("X-User-Role"))

	var tenantIDs []string
	if raw := r.Header.Get("X-Tenant-Ids"); raw != "" {
		tenantIDs = strings.Split(raw, ",")
	}

	if userID == "" || (role != model.RoleAgency && role != model.RoleClient) {
		return model.Actor{}, false
	}

	return model.Actor{UserID: userID, Role: role, TenantIDs: tenantIDs}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrForbidden), errors.Is(err, model.ErrModuleDisabled):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrAlreadyCompleted):
		status = http.StatusConflict
	case errors.Is(err, model.ErrInvalidTenant), errors.Is(err, model.ErrInvalidTitle),
		errors.Is(err, model.ErrInvalidChannel), errors.Is(err, model.ErrInvalidComment):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type contentHandler func(ctx context.Context, actor model.Actor, contentID string, body []byte) (any, error)

// withActor decodes the identity headers and the path id, then delegates.
func (s *APIServer) withActor(h contentHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		actor, ok := actorFromRequest(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid identity headers"})

			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})

			return
		}
		defer r.Body.Close()

		result, err := h(r.Context(), actor, ps.ByName("id"), body)
		if err != nil {
			writeError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// CreateContent handles POST /contents.
func (s *APIServer) CreateContent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid identity headers"})

		return
	}

	var params model.CreateContentParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})

		return
	}

	item, err := s.workflowSvc.CreateContent(r.Context(), actor, &params)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// GetContent handles GET /contents/:id.
func (s *APIServer) GetContent(ctx context.Context, actor model.Actor, contentID string, _ []byte) (any, error) {
	return s.workflowSvc.GetContent(ctx, actor, contentID)
}

// AttachChannel handles POST /contents/:id/channels.
func (s *APIServer) AttachChannel(ctx context.Context, actor model.Actor, contentID string, body []byte) (any, error) {
	var params model.AttachChannelParams
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, model.ErrInvalidChannel
	}

	return s.workflowSvc.AttachChannel(ctx, actor, contentID, &params)
}

// RequestTransition handles POST /contents/:id/transition.
func (s *APIServer) RequestTransition(ctx context.Context, actor model.Actor, contentID string, body []byte) (any, error) {
	var req struct {
		Target string `json:"target"`
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return nil, model.ErrInvalidTransition
	}

	target, ok := model.ParseStatus(req.Target)
	if !ok {
		return nil, model.ErrInvalidTransition
	}

	return s.workflowSvc.RequestTransition(ctx, actor, contentID, target)
}

// SendForApproval handles POST /contents/:id/send-for-approval.
func (s *APIServer) SendForApproval(ctx context.Context, actor model.Actor, contentID string, _ []byte) (any, error) {
	return s.workflowSvc.SendForApproval(ctx, actor, contentID)
}

// Approve handles POST /contents/:id/approve.
func (s *APIServer) Approve(ctx context.Context, actor model.Actor, contentID string, _ []byte) (any, error) {
	return s.workflowSvc.Approve(ctx, actor, contentID)
}

// RequestChanges handles POST /contents/:id/request-changes.
func (s *APIServer) RequestChanges(ctx context.Context, actor model.Actor, contentID string, body []byte) (any, error) {
	var req struct {
		Comment string `json:"comment"`
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return nil, model.ErrInvalidComment
	}

	return s.workflowSvc.RequestChanges(ctx, actor, contentID, req.Comment)
}

// Schedule handles POST /contents/:id/schedule.
func (s *APIServer) Schedule(ctx context.Context, actor model.Actor, contentID string, body []byte) (any, error) {
	var req struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}

	if err := json.Unmarshal(body, &req); err != nil || req.ScheduledAt.IsZero() {
		return nil, model.ErrInvalidTransition
	}

	return s.workflowSvc.Schedule(ctx, actor, contentID, req.ScheduledAt)
}

// Archive handles POST /contents/:id/archive.
func (s *APIServer) Archive(ctx context.Context, actor model.Actor, contentID string, _ []byte) (any, error) {
	return s.workflowSvc.ArchiveAndRetract(ctx, actor, contentID)
}

// SyncComments handles POST /contents/:id/sync-comments.
func (s *APIServer) SyncComments(ctx context.Context, actor model.Actor, contentID string, _ []byte) (any, error) {
	enqueued, err := s.workflowSvc.SyncComments(ctx, actor, contentID)
	if err != nil {
		return nil, err
	}

	return map[string]int{"enqueued": enqueued}, nil
}

// ListOutbox handles GET /outbox: the operator view of recent jobs with
// type, attempts, and last error.
func (s *APIServer) ListOutbox(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := actorFromRequest(r)
	if !ok || !actor.CanManageTenant() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": model.ErrForbidden.Error()})

		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" || !actor.MemberOf(tenantID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": model.ErrForbidden.Error()})

		return
	}

	status := model.JobStatus(r.URL.Query().Get("status"))

	jobs, err := s.outboxRepo.List(r.Context(), tenantID, status, s.pageSize)
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

// RetryOutbox handles POST /outbox/:id/retry.
func (s *APIServer) RetryOutbox(ctx context.Context, actor model.Actor, outboxID string, _ []byte) (any, error) {
	return s.dispatcher.Retry(ctx, actor, outboxID)
}

// HealthCheck handles GET /health.
func (*APIServer) HealthCheck(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) routes() *httprouter.Router {
	router := httprouter.New()

	router.POST("/contents", s.CreateContent)
	router.GET("/contents/:id", s.withActor(s.GetContent))
	router.POST("/contents/:id/channels", s.withActor(s.AttachChannel))
	router.POST("/contents/:id/transition", s.withActor(s.RequestTransition))
	router.POST("/contents/:id/send-for-approval", s.withActor(s.SendForApproval))
	router.POST("/contents/:id/approve", s.withActor(s.Approve))
	router.POST("/contents/:id/request-changes", s.withActor(s.RequestChanges))
	router.POST("/contents/:id/schedule", s.withActor(s.Schedule))
	router.POST("/contents/:id/archive", s.withActor(s.Archive))
	router.POST("/contents/:id/sync-comments", s.withActor(s.SyncComments))
	router.GET("/outbox", s.ListOutbox)
	router.POST("/outbox/:id/retry", s.withActor(s.RetryOutbox))
	router.GET("/health", s.HealthCheck)

	return router
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat, "api")
	slog.SetDefault(loggerInstance)

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	contentRepo := repository.NewContentRepositoryImpl(dbPool)
	channelRepo := repository.NewChannelRepositoryImpl(dbPool)
	commentRepo := repository.NewCommentRepositoryImpl(dbPool)
	auditRepo := repository.NewAuditRepositoryImpl(dbPool)
	notificationRepo := repository.NewNotificationRepositoryImpl(dbPool)
	outboxRepo := repository.NewOutboxRepositoryImpl(dbPool)
	transactionMgr := repository.NewTransactionManagerImpl(dbPool)

	jobQueue := queue.NewRedisQueue(redisClient)
	jobDispatcher := dispatcher.NewDispatcher(outboxRepo, auditRepo, jobQueue, loggerInstance)

	workflowSvc := workflow.NewServiceImpl(
		contentRepo, channelRepo, commentRepo, auditRepo, notificationRepo,
		transactionMgr, jobDispatcher, allowAllModules{}, loggerInstance,
	)

	server := NewAPIServer(workflowSvc, jobDispatcher, outboxRepo, cfg.OperatorPageSize)

	slog.Info("starting API server", slog.String("port", cfg.Port))

	if err := http.ListenAndServe(":"+cfg.Port, server.routes()); err != nil {
		slog.Error("failed to start server", slog.String("error", err.Error()))
	}
}
