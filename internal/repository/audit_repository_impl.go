package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepositoryImpl implements AuditRepository using PostgreSQL.
type AuditRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewAuditRepositoryImpl creates a new AuditRepository implementation.
func NewAuditRepositoryImpl(pool *pgxpool.Pool) AuditRepository {
	return &AuditRepositoryImpl{pool: pool}
}

// Append writes one audit log entry. The payload is marshalled to JSON.
func (r *AuditRepositoryImpl) Append(ctx context.Context, tenantID, action, entityType, entityID string, payload any) error {
	q := querierFrom(ctx, r.pool)

	var payloadJSON []byte
	if payload != nil {
		var err error

		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal audit payload: %w", err)
		}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO audit_log (tenant_id, action, entity_type, entity_id, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		tenantID, action, entityType, entityID, payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}
