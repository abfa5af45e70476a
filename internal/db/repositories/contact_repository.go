package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/team-directory/team-directory/internal/db/models"
)

// ContactRepository handles contact database operations.
type ContactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new ContactRepository
func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `
	id, user_id, directory_id, avatar_path, name, nickname, birthdate,
	emails, phones, im,
	company, position, home_address, work_address, notes,
	created_at, updated_at`

// Create inserts a contact and fills in the generated id and timestamps.
func (r *ContactRepository) Create(ctx context.Context, contact *models.Contact) error {
	emails, phones, im, err := encodeContactEntries(contact)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO contacts (user_id, directory_id, avatar_path, name, nickname, birthdate,
			emails, phones, im,
			company, position, home_address, work_address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		contact.UserID, contact.DirectoryID, contact.AvatarPath, contact.Name,
		contact.Nickname, contact.Birthdate,
		emails, phones, im,
		contact.Company, contact.Position, contact.HomeAddress, contact.WorkAddress,
		contact.Notes,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	return nil
}

// GetByID retrieves a contact by ID. Returns nil if not found.
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	query := fmt.Sprintf(`SELECT %s FROM contacts WHERE id = $1`, contactColumns)
	return r.queryOne(ctx, query, id)
}

// GetTeamContactForUser retrieves the team-scoped contact bound to a user
// account. Returns nil if the user has no contact card yet.
func (r *ContactRepository) GetTeamContactForUser(ctx context.Context, userID string) (*models.Contact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE user_id = $1 AND directory_id IS NULL`, contactColumns)
	return r.queryOne(ctx, query, userID)
}

// GetOrCreateForUser returns the team contact for a user account, creating a
// bare one when none exists yet. The insert rides on the partial unique index
// over (user_id) for team contacts, so two concurrent callers converge on the
// same row: the loser's insert affects zero rows and the follow-up select
// finds the winner's.
func (r *ContactRepository) GetOrCreateForUser(ctx context.Context, userID string) (*models.Contact, error) {
	contact, err := r.GetTeamContactForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		return contact, nil
	}

	insert := `
		INSERT INTO contacts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) WHERE user_id IS NOT NULL AND directory_id IS NULL
		DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, userID); err != nil {
		return nil, fmt.Errorf("failed to provision contact: %w", err)
	}

	contact, err = r.GetTeamContactForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, fmt.Errorf("provisioned contact for user %s not found", userID)
	}
	return contact, nil
}

// Update persists all mutable contact fields.
func (r *ContactRepository) Update(ctx context.Context, contact *models.Contact) error {
	emails, phones, im, err := encodeContactEntries(contact)
	if err != nil {
		return err
	}

	query := `
		UPDATE contacts
		SET user_id = $2, directory_id = $3, avatar_path = $4, name = $5,
			nickname = $6, birthdate = $7,
			emails = $8, phones = $9, im = $10,
			company = $11, position = $12, home_address = $13, work_address = $14,
			notes = $15, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		contact.ID,
		contact.UserID, contact.DirectoryID, contact.AvatarPath, contact.Name,
		contact.Nickname, contact.Birthdate,
		emails, phones, im,
		contact.Company, contact.Position, contact.HomeAddress, contact.WorkAddress,
		contact.Notes,
	).Scan(&contact.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("contact not found: %s", contact.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}

	return nil
}

// UpdateAvatar sets or clears the contact's avatar path.
func (r *ContactRepository) UpdateAvatar(ctx context.Context, id string, avatarPath *string) error {
	query := `UPDATE contacts SET avatar_path = $2, updated_at = now() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, avatarPath)
	if err != nil {
		return fmt.Errorf("failed to update contact avatar: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("contact not found: %s", id)
	}
	return nil
}

// Delete removes a contact by ID. Pins referencing it cascade away.
func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("contact not found: %s", id)
	}

	return nil
}

// ListByDirectory retrieves all contacts filed under a personal directory.
func (r *ContactRepository) ListByDirectory(ctx context.Context, directoryID string) ([]models.Contact, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE directory_id = $1
		ORDER BY trim(coalesce(name, '')), created_at`, contactColumns)

	rows, err := r.db.QueryContext(ctx, query, directoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *contact)
	}

	return contacts, rows.Err()
}

func (r *ContactRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Contact, error) {
	contact, err := scanContact(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		contact    models.Contact
		emailsJSON []byte
		phonesJSON []byte
		imJSON     []byte
	)

	err := row.Scan(
		&contact.ID, &contact.UserID, &contact.DirectoryID, &contact.AvatarPath,
		&contact.Name, &contact.Nickname, &contact.Birthdate,
		&emailsJSON, &phonesJSON, &imJSON,
		&contact.Company, &contact.Position, &contact.HomeAddress,
		&contact.WorkAddress, &contact.Notes,
		&contact.CreatedAt, &contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if contact.Emails, err = decodeEntries(emailsJSON); err != nil {
		return nil, fmt.Errorf("decode emails: %w", err)
	}
	if contact.Phones, err = decodeEntries(phonesJSON); err != nil {
		return nil, fmt.Errorf("decode phones: %w", err)
	}
	if contact.IM, err = decodeEntries(imJSON); err != nil {
		return nil, fmt.Errorf("decode im: %w", err)
	}

	return &contact, nil
}

// encodeContactEntries marshals the JSONB collections, never as JSON null.
func encodeContactEntries(contact *models.Contact) (emails, phones, im []byte, err error) {
	if emails, err = encodeEntries(contact.Emails); err != nil {
		return nil, nil, nil, fmt.Errorf("encode emails: %w", err)
	}
	if phones, err = encodeEntries(contact.Phones); err != nil {
		return nil, nil, nil, fmt.Errorf("encode phones: %w", err)
	}
	if im, err = encodeEntries(contact.IM); err != nil {
		return nil, nil, nil, fmt.Errorf("encode im: %w", err)
	}
	return emails, phones, im, nil
}

func encodeEntries(entries []models.ContactEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.ContactEntry{}
	}
	return json.Marshal(entries)
}
