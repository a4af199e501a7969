package models

import "strings"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// Caller is the authenticated identity attached to a request.
// Identity itself is issued elsewhere; the engine only reads it.
type Caller struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

func (c Caller) IsStaff() bool {
	return c.Role == RoleTeacher || c.Role == RoleAdmin
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// ParseRole maps a role name onto a known role. Unknown names are rejected.
func ParseRole(name string) (UserRole, bool) {
	switch role := UserRole(strings.ToLower(strings.TrimSpace(name))); role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}
