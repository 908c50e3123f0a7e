package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// NormalizeRole strips surrounding whitespace and quote characters and
// lowercases the result, so "'Admin'" and " ADMIN " both read as admin.
func NormalizeRole(raw string) Role {
	r := strings.TrimSpace(raw)
	r = strings.Trim(r, `'"`)
	return Role(strings.ToLower(strings.TrimSpace(r)))
}

// IsAdmin reports whether the role grants administrator access.
func (r Role) IsAdmin() bool {
	return NormalizeRole(string(r)) == RoleAdmin
}

// User is the application profile linked one-to-one with an auth identity.
type User struct {
	ID        string     `json:"id"`
	Username  *string    `json:"username"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}
