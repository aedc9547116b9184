package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencydesk/contentflow/internal/model"
)

// ContentRepositoryImpl implements ContentRepository using PostgreSQL.
type ContentRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewContentRepositoryImpl creates a new ContentRepository implementation.
func NewContentRepositoryImpl(pool *pgxpool.Pool) ContentRepository {
	return &ContentRepositoryImpl{pool: pool}
}

const contentColumns = `id, tenant_id, title, body, status, scheduled_at, publish_requested_at, created_at, updated_at`

func scanContent(row pgx.Row) (*model.ContentItem, error) {
	var item model.ContentItem
	err := row.Scan(
		&item.ID, &item.TenantID, &item.Title, &item.Body,
		&item.Status, &item.ScheduledAt, &item.PublishRequestedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}

		return nil, err
	}

	return &item, nil
}

// Create inserts a new content item in draft status.
func (r *ContentRepositoryImpl) Create(ctx context.Context, params *model.CreateContentParams) (*model.ContentItem, error) {
	q := querierFrom(ctx, r.pool)

	row := q.QueryRow(ctx, `
		INSERT INTO content_items (id, tenant_id, title, body, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+contentColumns,
		uuid.New().String(), params.TenantID, params.Title, params.Body, model.StatusDraft,
	)

	item, err := scanContent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert content item: %w", err)
	}

	return item, nil
}

// GetByID retrieves a content item by ID.
func (r *ContentRepositoryImpl) GetByID(ctx context.Context, id string) (*model.ContentItem, error) {
	q := querierFrom(ctx, r.pool)

	row := q.QueryRow(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id = $1`, id)

	return scanContent(row)
}

// UpdateStatus moves the item from -> to with an optimistic status check.
func (r *ContentRepositoryImpl) UpdateStatus(ctx context.Context, id string, from, to model.Status) (bool, error) {
	q := querierFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE content_items SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update content status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// SetSchedule moves the item from -> to and records the publish time.
func (r *ContentRepositoryImpl) SetSchedule(ctx context.Context, id string, from, to model.Status, at time.Time) (bool, error) {
	q := querierFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE content_items SET status = $3, scheduled_at = $4, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to schedule content: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkPublishRequested claims a scheduled item for publish dispatch.
func (r *ContentRepositoryImpl) MarkPublishRequested(ctx context.Context, id string) (bool, error) {
	q := querierFrom(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE content_items SET publish_requested_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2 AND publish_requested_at IS NULL`,
		id, model.StatusScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark publish requested: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListDue returns scheduled items whose publish time has passed and that have
// not been dispatched yet.
func (r *ContentRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ContentItem, error) {
	q := querierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT `+contentColumns+` FROM content_items
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
			AND publish_requested_at IS NULL
		ORDER BY scheduled_at
		LIMIT $3`,
		model.StatusScheduled, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due content: %w", err)
	}
	defer rows.Close()

	var items []*model.ContentItem

	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, rows.Err()
}
