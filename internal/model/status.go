package model

// Status is the approval state of a content item.
type Status string

const (
	// StatusDraft is the initial state of every content item.
	StatusDraft Status = "draft"
	// StatusPendingClient means the item awaits a client decision.
	StatusPendingClient Status = "pending_client"
	// StatusChangesRequested means the client sent the item back for rework.
	StatusChangesRequested Status = "changes_requested"
	// StatusApproved means the client signed the item off.
	StatusApproved Status = "approved"
	// StatusScheduled means the item has a publish time in the future.
	StatusScheduled Status = "scheduled"
	// StatusPublished means the item went out to at least one channel.
	StatusPublished Status = "published"
	// StatusArchived is terminal; archived items never leave it.
	StatusArchived Status = "archived"
)

// transitions is the closed edge set of the approval state machine.
// Unknown statuses have no entry and therefore no legal outgoing edge.
var transitions = map[Status][]Status{
	StatusDraft:            {StatusPendingClient, StatusArchived},
	StatusPendingClient:    {StatusChangesRequested, StatusApproved, StatusArchived},
	StatusChangesRequested: {StatusPendingClient, StatusArchived},
	StatusApproved:         {StatusScheduled, StatusArchived},
	StatusScheduled:        {StatusPublished, StatusArchived},
	StatusPublished:        {StatusArchived},
	StatusArchived:         {},
}

// CanTransition reports whether the edge from -> to exists in the state
// machine. It fails closed: any pair outside the table is denied.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	if _, ok := transitions[s]; !ok {
		return "", false
	}

	return s, true
}
