package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepositoryImpl implements NotificationRepository using
// PostgreSQL. The anti-spam rule relies on the partial unique index over
// unresolved rows: concurrent emitters for the same (space, entity) race into
// one atomic upsert instead of read-then-write.
type NotificationRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewNotificationRepositoryImpl creates a new NotificationRepository
// implementation.
func NewNotificationRepositoryImpl(pool *pgxpool.Pool) NotificationRepository {
	return &NotificationRepositoryImpl{pool: pool}
}

// Upsert creates or refreshes the single unresolved notification for
// (spaceID, entityKey). A resolved row is left alone; the insert then creates
// a fresh one.
func (r *NotificationRepositoryImpl) Upsert(ctx context.Context, spaceID, entityKey, message string) error {
	q := querierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO notifications (id, space_id, entity_key, message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (space_id, entity_key) WHERE NOT resolved
			DO UPDATE SET message = EXCLUDED.message, updated_at = now()`,
		uuid.New().String(), spaceID, entityKey, message,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert notification: %w", err)
	}

	return nil
}

// Resolve marks the open notification for (spaceID, entityKey) as handled.
func (r *NotificationRepositoryImpl) Resolve(ctx context.Context, spaceID, entityKey string) error {
	q := querierFrom(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE notifications SET resolved = true, updated_at = now()
		WHERE space_id = $1 AND entity_key = $2 AND NOT resolved`,
		spaceID, entityKey,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve notification: %w", err)
	}

	return nil
}
