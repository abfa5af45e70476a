// Package models defines the database model types for the team directory.
// Each type corresponds to a database table. Models are pure data types;
// business logic belongs in the service layer, query logic in the repositories layer.
package models

import (
	"strings"
	"time"
)

// User represents a registered account in the identity catalog. The directory
// merge consumes the name components and avatar; authentication consumes the
// email and password hash.
type User struct {
	ID           string
	Email        string
	PasswordHash *string // nil for SSO/LDAP-only accounts
	FirstName    string
	MiddleName   string
	LastName     string
	AvatarPath   *string // storage path, resolved to a URL at render time
	LDAPDN       *string // distinguished name when the account is LDAP-synced
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins the non-empty name components in first-middle-last order.
// Directory listings use the configurable composer in internal/directory/nameorder
// instead; this is for log lines and non-directory surfaces.
func (u *User) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.FirstName, u.MiddleName, u.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return u.Email
	}
	return strings.Join(parts, " ")
}
