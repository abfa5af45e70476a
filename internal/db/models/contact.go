// contact.go defines the Contact model, a directory entry that may stand on
// its own, belong to a personal directory, or shadow a registered user account.
package models

import "time"

// ContactEntry is one element of a contact's email/phone/IM collection.
// Collections are stored as ordered JSONB arrays so entry order is preserved.
type ContactEntry struct {
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// Contact represents a contact record.
//
// Scoping rules:
//   - DirectoryID == nil  → team contact, visible in the shared team directory
//   - DirectoryID != nil  → personal contact book entry, never listed in the team view
//   - UserID != nil       → the contact shadows that user account; at most one
//     team contact may exist per user (enforced by a partial unique index)
type Contact struct {
	ID          string
	UserID      *string
	DirectoryID *string
	AvatarPath  *string
	Name        *string // free-form display name; users' contacts derive theirs from the account
	Nickname    string
	Birthdate   *time.Time
	Emails      []ContactEntry
	Phones      []ContactEntry
	IM          []ContactEntry
	Company     string
	Position    string
	HomeAddress string
	WorkAddress string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsTeam reports whether the contact belongs to the shared team directory.
func (c *Contact) IsTeam() bool {
	return c.DirectoryID == nil
}
