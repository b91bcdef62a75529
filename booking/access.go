package booking

import (
	"crypto/subtle"
	"strings"
)

// =============================================================================
// ACCESS CONTROL - Flat role capability sets plus per-booking manage access
// =============================================================================
//
// Roles map to capability sets with no inheritance; a plain lookup table
// suffices. Holders of a booking's manage token, the owning requester, and
// a matching external lead email get self-service access to that one
// booking only.

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleApprover Role = "approver"
	RoleMember   Role = "member"
	RoleGuest    Role = "guest"
)

type Capability string

const (
	CapApprove    Capability = "approve"
	CapReject     Capability = "reject"
	CapEditAny    Capability = "edit_any"
	CapViewAny    Capability = "view_any"
	CapComment    Capability = "comment"
	CapManageFees Capability = "manage_fees"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapApprove: true, CapReject: true, CapEditAny: true,
		CapViewAny: true, CapComment: true, CapManageFees: true,
	},
	RoleApprover: {
		CapApprove: true, CapReject: true, CapViewAny: true, CapComment: true,
	},
	RoleMember: {
		CapComment: true,
	},
	RoleGuest: {},
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}

// =============================================================================
// ACCESSOR - Who is performing an operation
// =============================================================================

// Accessor identifies the caller of a lifecycle operation. Either UserID+
// Role (authenticated) or ManageToken/LeadEmail (self-service) is set.
type Accessor struct {
	UserID      UserID
	Role        Role
	ManageToken string
	LeadEmail   string
}

// CanManage reports whether the accessor may view, edit, or comment on this
// specific booking: staff capability, owning requester, valid manage token,
// or matching lead email.
func (a Accessor) CanManage(b *Booking) bool {
	if a.Role.Can(CapEditAny) || a.Role.Can(CapViewAny) {
		return true
	}
	if a.UserID != "" && a.UserID == b.RequestedBy {
		return true
	}
	if a.ManageToken != "" && b.ManageToken != "" &&
		subtle.ConstantTimeCompare([]byte(a.ManageToken), []byte(b.ManageToken)) == 1 {
		return true
	}
	if a.LeadEmail != "" && b.ExternalLeadEmail != "" &&
		strings.EqualFold(strings.TrimSpace(a.LeadEmail), strings.TrimSpace(b.ExternalLeadEmail)) {
		return true
	}
	return false
}
