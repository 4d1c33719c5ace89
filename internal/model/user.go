// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the closed set of community roles. Anything else is rejected at
// the service boundary (see ParseRole).
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole converts user input into a Role, reporting whether it is valid.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleMember, RoleModerator, RoleAdmin:
		return r, true
	}
	return "", false
}

// CanModerate reports whether the role may ban users and delete other
// people's answers.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

// Ban is the "banned" arm of a user's ban state. A user with a nil *Ban is
// active; there is no way to carry a reason or expiry without the ban itself.
//
// WHY A POINTER AND NOT isBanned/banReason/banExpiration FIELDS?
// Three independent fields can drift apart (a reason left behind after an
// unban, an expiry on an active account). A single optional value cannot.
type Ban struct {
	Reason   string     `json:"reason"`
	BannedAt time.Time  `json:"bannedAt"`
	Expires  *time.Time `json:"expiresAt,omitempty"` // nil = permanent
}

// Expired reports whether a temporary ban has run out at instant now.
func (b *Ban) Expired(now time.Time) bool {
	return b != nil && b.Expires != nil && !now.Before(*b.Expires)
}

// User represents a community member.
//
// SubjectID is the stable identifier issued by the external identity
// provider; ID is our own xid, used by every other table.
type User struct {
	ID                 string    `json:"id"`
	SubjectID          string    `json:"subjectId"`
	Name               string    `json:"name"`
	Username           string    `json:"username"`
	Email              string    `json:"email,omitempty"` // may be empty when the provider hides it
	Picture            string    `json:"picture,omitempty"`
	Bio                string    `json:"bio,omitempty"`
	Location           string    `json:"location,omitempty"`
	PortfolioWebsite   string    `json:"portfolioWebsite,omitempty"`
	Role               Role      `json:"role"`
	Reputation         int       `json:"reputation"`
	Ban                *Ban      `json:"ban,omitempty"`
	NeedsUsernameSetup bool      `json:"needsUsernameSetup"`
	JoinedAt           time.Time `json:"joinedAt"`
}

// IsBanned is the single enforcement check for "currently banned".
// An expired temporary ban counts as not banned even before the sweep job
// clears it from storage.
func (u *User) IsBanned(now time.Time) bool {
	return u.Ban != nil && !u.Ban.Expired(now)
}

// ProfileUpdate carries the self-service editable fields. Nil means
// "leave unchanged".
type ProfileUpdate struct {
	Name             *string `json:"name,omitempty"`
	Bio              *string `json:"bio,omitempty"`
	Location         *string `json:"location,omitempty"`
	PortfolioWebsite *string `json:"portfolioWebsite,omitempty"`
}
