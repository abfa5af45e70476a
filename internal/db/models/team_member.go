// team_member.go defines the derived row type produced by the team directory
// merge. TeamMember rows are never persisted; each one is the per-request
// join of an optional contact, an optional user, and the caller's pin state.
package models

import "time"

// TeamMember is one row of the merged team directory. At least one of Contact
// and User is set: a row with only a User is an account with no contact entry
// yet, a row with only a Contact is a team-scoped contact not tied to any
// account.
type TeamMember struct {
	Contact *Contact
	User    *User
	Pinned  bool
}

// TeamMemberView is the flat serialization of a TeamMember.
//
// Null-vs-empty contract: optional identifiers (contact_id, user_id, avatar,
// birthdate) are null when absent, never empty strings; optional scalars
// default to ""; collections are always present, empty rather than null.
type TeamMemberView struct {
	ContactID   *string        `json:"contact_id"`
	UserID      *string        `json:"user_id"`
	Name        string         `json:"name"`
	Avatar      *string        `json:"avatar"`
	Nickname    string         `json:"nickname"`
	Birthdate   *string        `json:"birthdate"`
	Emails      []ContactEntry `json:"emails"`
	Phones      []ContactEntry `json:"phones"`
	IM          []ContactEntry `json:"im"`
	Company     string         `json:"company"`
	Position    string         `json:"position"`
	HomeAddress string         `json:"home_address"`
	WorkAddress string         `json:"work_address"`
	Notes       string         `json:"notes"`
	Pinned      bool           `json:"pinned"`
}

// BirthdateString formats a birthdate pointer for the view, or nil.
func BirthdateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
