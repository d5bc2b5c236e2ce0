package domain

import "time"

// Membership links a user to a workspace with a role. Unique per
// (workspace, user). Authorization always reads the live membership row;
// the role claim inside a token is informational only.
type Membership struct {
	WorkspaceID string
	UserID      string
	Role        Role
	InvitedAt   *time.Time // set when created by invite
	JoinedAt    time.Time
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

var rolePrivilege = map[Role]int{
	RoleOwner:  4,
	RoleAdmin:  3,
	RoleUser:   2,
	RoleViewer: 1,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePrivilege[r]
	return ok
}

// AtLeast reports whether r carries at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return rolePrivilege[r] >= rolePrivilege[min]
}

// MostPrivileged returns the membership with the highest-privilege role, or
// nil if the slice is empty. Used to select the primary workspace at login.
func MostPrivileged(ms []*Membership) *Membership {
	var best *Membership
	for _, m := range ms {
		if best == nil || rolePrivilege[m.Role] > rolePrivilege[best.Role] {
			best = m
		}
	}
	return best
}
