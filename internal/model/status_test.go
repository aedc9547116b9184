package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusDraft, StatusPendingClient, StatusChangesRequested,
	StatusApproved, StatusScheduled, StatusPublished, StatusArchived,
}

func TestCanTransitionTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusDraft:            {StatusPendingClient, StatusArchived},
		StatusPendingClient:    {StatusChangesRequested, StatusApproved, StatusArchived},
		StatusChangesRequested: {StatusPendingClient, StatusArchived},
		StatusApproved:         {StatusScheduled, StatusArchived},
		StatusScheduled:        {StatusPublished, StatusArchived},
		StatusPublished:        {StatusArchived},
		StatusArchived:         {},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false

			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}

			assert.Equal(t, want, CanTransition(from, to), fmt.Sprintf("%s -> %s", from, to))
		}
	}
}

func TestCanTransitionArchivedIsTerminal(t *testing.T) {
	for _, to := range allStatuses {
		assert.False(t, CanTransition(StatusArchived, to), string(to))
	}
}

func TestCanTransitionUnknownFromFailsClosed(t *testing.T) {
	for _, to := range allStatuses {
		assert.False(t, CanTransition(Status("bogus"), to), string(to))
	}

	assert.False(t, CanTransition(Status(""), StatusDraft))
}

func TestParseStatus(t *testing.T) {
	for _, s := range allStatuses {
		parsed, ok := ParseStatus(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, parsed)
	}

	_, ok := ParseStatus("deleted")
	assert.False(t, ok)
}

func TestActorMayRequest(t *testing.T) {
	agency := Actor{UserID: "u1", Role: RoleAgency}
	client := Actor{UserID: "u2", Role: RoleClient}

	assert.True(t, agency.MayRequest(StatusPendingClient))
	assert.True(t, agency.MayRequest(StatusScheduled))
	assert.True(t, agency.MayRequest(StatusArchived))
	assert.False(t, agency.MayRequest(StatusApproved))
	assert.False(t, agency.MayRequest(StatusChangesRequested))

	assert.True(t, client.MayRequest(StatusApproved))
	assert.True(t, client.MayRequest(StatusChangesRequested))
	assert.False(t, client.MayRequest(StatusPendingClient))
	assert.False(t, client.MayRequest(StatusArchived))

	unknown := Actor{UserID: "u3", Role: Role("viewer")}
	for _, s := range allStatuses {
		assert.False(t, unknown.MayRequest(s), string(s))
	}
}

func TestActorCapabilities(t *testing.T) {
	agency := Actor{Role: RoleAgency, TenantIDs: []string{"t1", "t2"}}

	assert.True(t, agency.CanManageTenant())
	assert.False(t, agency.CanActOnBehalfOfClient())
	assert.True(t, agency.MemberOf("t1"))
	assert.False(t, agency.MemberOf("t3"))

	client := Actor{Role: RoleClient, TenantIDs: []string{"t1"}}

	assert.False(t, client.CanManageTenant())
	assert.True(t, client.CanActOnBehalfOfClient())
}
