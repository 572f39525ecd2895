// Package models defines the identity records shared by stores, services and
// the security pipeline.
package models

import (
	"slices"
	"time"
)

// User is the stored identity record. The security core only reads it;
// registration and admin operations mutate it.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash"`
	Roles        []string  `json:"roles"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity returns the read-only view attached to authenticated requests.
func (u *User) Identity() Identity {
	return Identity{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Roles:       slices.Clone(u.Roles),
		Enabled:     !u.Disabled,
	}
}

// Identity is a resolved principal. Roles is never nil for a loaded
// identity.
type Identity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
	Enabled     bool     `json:"enabled"`
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// NormalizeRoles drops empty and duplicate roles, keeping first-seen order.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}
