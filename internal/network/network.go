// Package network defines the client for the external social networks the
// workers publish to. The platform's real connectors implement Client; the
// bundled binaries use the logging stub.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agencydesk/contentflow/internal/model"
)

// PublishRequest carries one publish attempt. The idempotency key is passed
// through so a replayed attempt is deduplicated remotely.
type PublishRequest struct {
	ContentID      string
	ChannelID      string
	Network        string
	IdempotencyKey string
}

// DeleteRequest retracts previously published remote content.
type DeleteRequest struct {
	ChannelID string
	Network   string
	RemoteID  string
}

// SyncRequest imports comments for published remote content.
type SyncRequest struct {
	ContentID string
	ChannelID string
	Network   string
}

// Client performs the external side effects. All methods are expected to be
// safe to re-run under at-least-once delivery.
type Client interface {
	Publish(ctx context.Context, req PublishRequest) (*model.PublishResult, error)
	Delete(ctx context.Context, req DeleteRequest) error
	SyncComments(ctx context.Context, req SyncRequest) error
}

const simulatedCallDelay = 100 * time.Millisecond

// LogClient is a stand-in Client that logs instead of calling out.
type LogClient struct {
	logger *slog.Logger
}

// NewLogClient creates a new logging stub client.
func NewLogClient(logger *slog.Logger) *LogClient {
	return &LogClient{logger: logger}
}

// Publish simulates a remote publish and fabricates remote identifiers.
func (c *LogClient) Publish(_ context.Context, req PublishRequest) (*model.PublishResult, error) {
	c.logger.Info("publishing to network",
		slog.String("network", req.Network),
		slog.String("channel_id", req.ChannelID),
		slog.String("idempotency_key", req.IdempotencyKey),
	)

	time.Sleep(simulatedCallDelay)

	remoteID := uuid.New().String()

	return &model.PublishResult{
		RemoteID:  remoteID,
		RemoteURL: fmt.Sprintf("https://%s.example.com/posts/%s", req.Network, remoteID),
	}, nil
}

// Delete simulates a remote retraction.
func (c *LogClient) Delete(_ context.Context, req DeleteRequest) error {
	c.logger.Info("deleting from network",
		slog.String("network", req.Network),
		slog.String("remote_id", req.RemoteID),
	)

	time.Sleep(simulatedCallDelay)

	return nil
}

// SyncComments simulates a remote comment import.
func (c *LogClient) SyncComments(_ context.Context, req SyncRequest) error {
	c.logger.Info("syncing comments from network",
		slog.String("network", req.Network),
		slog.String("channel_id", req.ChannelID),
	)

	time.Sleep(simulatedCallDelay)

	return nil
}
