// pin.go defines the Pin model, a per-user marker that floats a contact to
// the top of that user's own view of the team directory.
package models

import "time"

// Pin marks a contact as pinned by a user. Existence is the only state: the
// composite primary key (user_id, contact_id) doubles as the uniqueness
// backstop that keeps concurrent pin requests from creating duplicates.
type Pin struct {
	UserID    string
	ContactID string
	CreatedAt time.Time
}
