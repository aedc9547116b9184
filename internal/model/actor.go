package model

// Role is one of the two authorization domains of the workflow.
type Role string

const (
	// RoleAgency manages content production and operations.
	RoleAgency Role = "agency"
	// RoleClient approves or rejects content produced for it.
	RoleClient Role = "client"
)

// Actor is the authenticated identity invoking a workflow operation, as
// resolved by the external identity provider.
type Actor struct {
	UserID    string   `json:"user_id"`
	Role      Role     `json:"role"`
	TenantIDs []string `json:"tenant_ids"`
}

// MemberOf reports whether the actor belongs to the given tenant.
func (a Actor) MemberOf(tenantID string) bool {
	for _, id := range a.TenantIDs {
		if id == tenantID {
			return true
		}
	}

	return false
}

// CanManageTenant reports whether the actor may run agency operations:
// sending for approval, scheduling, archiving, retrying outbox jobs.
func (a Actor) CanManageTenant() bool {
	return a.Role == RoleAgency
}

// CanActOnBehalfOfClient reports whether the actor may take client
// decisions: approving or requesting changes.
func (a Actor) CanActOnBehalfOfClient() bool {
	return a.Role == RoleClient
}

// roleTargets is the per-role set of statuses a role may request as the
// target of a transition. Physical legality of the edge is checked
// separately by CanTransition; both gates must pass.
var roleTargets = map[Role]map[Status]bool{
	RoleAgency: {
		StatusPendingClient: true,
		StatusScheduled:     true,
		StatusArchived:      true,
	},
	RoleClient: {
		StatusApproved:         true,
		StatusChangesRequested: true,
	},
}

// MayRequest reports whether the actor's role may request the given target
// status. Unknown roles fail closed.
func (a Actor) MayRequest(target Status) bool {
	return roleTargets[a.Role][target]
}
