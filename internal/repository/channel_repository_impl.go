package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencydesk/contentflow/internal/model"
)

// ChannelRepositoryImpl implements ChannelRepository using PostgreSQL.
type ChannelRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewChannelRepositoryImpl creates a new ChannelRepository implementation.
func NewChannelRepositoryImpl(pool *pgxpool.Pool) ChannelRepository {
	return &ChannelRepositoryImpl{pool: pool}
}

const channelColumns = `id, content_id, network, channel_id,
	COALESCE(idempotency_key, ''), COALESCE(remote_id, ''), COALESCE(remote_url, ''),
	COALESCE(last_error, ''), created_at, updated_at`

func scanChannel(row pgx.Row) (*model.ChannelBinding, error) {
	var b model.ChannelBinding
	err := row.Scan(
		&b.ID, &b.ContentID, &b.Network, &b.ChannelID,
		&b.IdempotencyKey, &b.RemoteID, &b.RemoteURL,
		&b.LastError, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}

		return nil, err
	}

	return &b, nil
}

// Attach binds a content item to a publishing destination. Attaching the same
// destination twice returns the existing binding.
func (r *ChannelRepositoryImpl) Attach(ctx context.Context, contentID string, params *model.AttachChannelParams) (*model.ChannelBinding, error) {
	q := querierFrom(ctx, r.pool)

	row := q.QueryRow(ctx, `
		INSERT INTO channel_bindings (id, content_id, network, channel_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_id, network, channel_id)
			DO UPDATE SET updated_at = now()
		RETURNING `+channelColumns,
		uuid.New().String(), contentID, params.Network, params.ChannelID,
	)

	binding, err := scanChannel(row)
	if err != nil {
		return nil, fmt.Errorf("failed to attach channel: %w", err)
	}

	return binding, nil
}

// GetByID retrieves a channel binding by ID.
func (r *ChannelRepositoryImpl) GetByID(ctx context.Context, id string) (*model.ChannelBinding, error) {
	q := querierFrom(ctx, r.pool)

	row := q.QueryRow(ctx, `SELECT `+channelColumns+` FROM channel_bindings WHERE id = $1`, id)

	return scanChannel(row)
}

// ListByContent retrieves all channel bindings for a content item.
func (r *ChannelRepositoryImpl) ListByContent(ctx context.Context, contentID string) ([]*model.ChannelBinding, error) {
	q := querierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT `+channelColumns+` FROM channel_bindings
		WHERE content_id = $1 ORDER BY created_at`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*model.ChannelBinding

	for rows.Next() {
		binding, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}

		bindings = append(bindings, binding)
	}

	return bindings, rows.Err()
}

// MarkPublished records a successful publish on the binding.
func (r *ChannelRepositoryImpl) MarkPublished(ctx context.Context, id, idempotencyKey, remoteID, remoteURL string) error {
	q := querierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE channel_bindings
		SET idempotency_key = $2, remote_id = $3, remote_url = $4,
			last_error = NULL, updated_at = now()
		WHERE id = $1`,
		id, idempotencyKey, remoteID, remoteURL,
	)
	if err != nil {
		return fmt.Errorf("failed to mark binding published: %w", err)
	}

	return nil
}

// ClearRemote wipes the remote identifiers after a retraction.
func (r *ChannelRepositoryImpl) ClearRemote(ctx context.Context, id string) error {
	q := querierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE channel_bindings
		SET remote_id = NULL, remote_url = NULL, last_error = NULL, updated_at = now()
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to clear binding remote fields: %w", err)
	}

	return nil
}

// SetError records the latest external failure on the binding.
func (r *ChannelRepositoryImpl) SetError(ctx context.Context, id, lastError string) error {
	q := querierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE channel_bindings SET last_error = $2, updated_at = now()
		WHERE id = $1`,
		id, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to set binding error: %w", err)
	}

	return nil
}
