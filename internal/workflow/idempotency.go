// Package workflow orchestrates content status transitions and their
// downstream side effects.
package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/agencydesk/contentflow/internal/model"
)

// noScheduleSentinel stands in for an absent scheduled time so that
// "unscheduled" publishes of the same pair still dedupe against each other.
const noScheduleSentinel = "unscheduled"

// BuildIdempotencyKey returns a deterministic fingerprint of one publish
// intent. Identical (contentID, channelID, scheduledAt) triples always yield
// the same key, across runs, so a replayed publish job is detectable as a
// duplicate by any downstream that honors idempotency keys.
func BuildIdempotencyKey(contentID, channelID string, scheduledAt *time.Time) string {
	at := noScheduleSentinel
	if scheduledAt != nil {
		at = scheduledAt.UTC().Format(time.RFC3339Nano)
	}

	h := sha256.New()
	h.Write([]byte(contentID))
	h.Write([]byte{0})
	h.Write([]byte(channelID))
	h.Write([]byte{0})
	h.Write([]byte(at))

	return hex.EncodeToString(h.Sum(nil))
}

// CanSchedule reports whether a content item may move into scheduled: it must
// be approved and the publish time must lie strictly in the future.
func CanSchedule(status model.Status, scheduledAt *time.Time, now time.Time) bool {
	if status != model.StatusApproved || scheduledAt == nil {
		return false
	}

	return scheduledAt.After(now)
}
