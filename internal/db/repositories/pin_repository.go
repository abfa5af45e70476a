package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// PinRepository handles pin database operations. The pins table carries a
// composite primary key over (user_id, contact_id), so both operations are
// naturally idempotent under concurrency.
type PinRepository struct {
	db *sql.DB
}

// NewPinRepository creates a new PinRepository
func NewPinRepository(db *sql.DB) *PinRepository {
	return &PinRepository{db: db}
}

// Pin records that a user pinned a contact. Pinning an already pinned
// contact is a no-op.
func (r *PinRepository) Pin(ctx context.Context, userID, contactID string) error {
	query := `
		INSERT INTO pins (user_id, contact_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, contact_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, contactID); err != nil {
		return fmt.Errorf("failed to pin contact: %w", err)
	}
	return nil
}

// Unpin removes a user's pin on a contact. Unpinning a contact that was
// never pinned is a no-op.
func (r *PinRepository) Unpin(ctx context.Context, userID, contactID string) error {
	query := `DELETE FROM pins WHERE user_id = $1 AND contact_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, contactID); err != nil {
		return fmt.Errorf("failed to unpin contact: %w", err)
	}
	return nil
}

// IsPinned reports whether a user has pinned a contact.
func (r *PinRepository) IsPinned(ctx context.Context, userID, contactID string) (bool, error) {
	var pinned bool
	query := `SELECT EXISTS (SELECT 1 FROM pins WHERE user_id = $1 AND contact_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, userID, contactID).Scan(&pinned); err != nil {
		return false, fmt.Errorf("failed to check pin: %w", err)
	}
	return pinned, nil
}
