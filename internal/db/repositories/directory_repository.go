// directory_repository.go implements DirectoryRepository, providing database
// queries for personal contact directories (user-owned folders of contacts
// that never appear in the shared team list).
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/team-directory/team-directory/internal/db/models"
)

// DirectoryRepository handles database operations for contact directories
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Create inserts a directory and fills in the generated id and timestamp.
func (r *DirectoryRepository) Create(ctx context.Context, directory *models.Directory) error {
	query := `
		INSERT INTO directories (user_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, directory.UserID, directory.Name).
		Scan(&directory.ID, &directory.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// GetByID retrieves a directory by ID. Returns nil if not found.
func (r *DirectoryRepository) GetByID(ctx context.Context, id string) (*models.Directory, error) {
	var directory models.Directory
	query := `SELECT id, user_id, name, created_at FROM directories WHERE id = $1`
	err := r.db.GetContext(ctx, &directory, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get directory: %w", err)
	}
	return &directory, nil
}

// ListByOwner retrieves all directories owned by a user, sorted by name.
func (r *DirectoryRepository) ListByOwner(ctx context.Context, userID string) ([]models.Directory, error) {
	directories := make([]models.Directory, 0)
	query := `SELECT id, user_id, name, created_at FROM directories WHERE user_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &directories, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list directories: %w", err)
	}
	return directories, nil
}

// Rename changes a directory's name.
func (r *DirectoryRepository) Rename(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE directories SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("failed to rename directory: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("directory not found: %s", id)
	}
	return nil
}

// Delete removes a directory and its contacts in one transaction.
func (r *DirectoryRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE directory_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete directory contacts: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM directories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("directory not found: %s", id)
	}

	return tx.Commit()
}
