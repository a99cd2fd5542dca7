package model

import (
	"strings"
	"time"
)

// Role is the account-level role of a user.  What a user may do on a given
// reservation is decided from an Actor, see actor.go.
type Role string

const (
	RoleMember     Role = "MEMBER"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdmin      Role = "ADMIN"
)

// ParseRole normalises a role name; unknown names report ok=false.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleMember, RoleInstructor, RoleAdmin:
		return r, true
	}
	return "", false
}

// User represents a club account as stored in the `users` table.  The
// password hash never leaves the repository/service layers.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique, lower-cased email address.
//  DisplayName  – name shown to other members and in notifications.
//  PasswordHash – bcrypt hash.
//  Role         – MEMBER, INSTRUCTOR or ADMIN.
//  IsActive     – inactive users cannot authenticate.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    `json:"id"`           // users.id
	Email        string    `json:"email"`        // users.email
	DisplayName  string    `json:"display_name"` // users.display_name
	PasswordHash string    `json:"-"`            // users.password_hash
	Role         Role      `json:"role"`         // users.role
	IsActive     bool      `json:"is_active"`    // users.is_active
	CreatedAt    time.Time `json:"created_at"`   // users.created_at
	UpdatedAt    time.Time `json:"updated_at"`   // users.updated_at
}
