// directory.go defines the Directory model for personal contact books.
package models

import "time"

// Directory is a personal contact book owned by a user. Contacts attached to a
// directory are private to its owner and excluded from the team view.
type Directory struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
