package model

import (
	"encoding/json"
	"time"
)

// Audit actions recorded by the workflow service and the dispatcher.
const (
	AuditActionStatusChanged = "content.status_changed"
	AuditActionCommentAdded  = "content.comment_added"
	AuditActionOutboxRetried = "outbox.retried"
)

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID         int64           `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StatusChangePayload is the audit payload for content status transitions.
type StatusChangePayload struct {
	From    Status `json:"from"`
	To      Status `json:"to"`
	ActorID string `json:"actor_id,omitempty"`
}

// Notification is a client- or agency-facing inbox entry. While unresolved it
// is upserted in place per (space, entity key) so repeated sends do not spam.
type Notification struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"space_id"`
	EntityKey string    `json:"entity_key"`
	Message   string    `json:"message"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
