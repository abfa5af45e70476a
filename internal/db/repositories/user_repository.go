package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/team-directory/team-directory/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, middle_name, last_name, avatar_path, ldap_dn, created_at, updated_at`

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	query := `
		INSERT INTO users (id, email, password_hash, first_name, middle_name, last_name, avatar_path, ldap_dn, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.MiddleName,
		user.LastName,
		user.AvatarPath,
		user.LDAPDN,
		user.CreatedAt,
		user.UpdatedAt,
	)

	return err
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, userID)
}

// GetUserByEmail retrieves a user by email
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

// GetUserByLDAPDN retrieves a user by LDAP distinguished name
func (r *UserRepository) GetUserByLDAPDN(ctx context.Context, dn string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ldap_dn = $1`
	return r.getOne(ctx, query, dn)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.MiddleName,
		&user.LastName,
		&user.AvatarPath,
		&user.LDAPDN,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateUser updates a user's information
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = $2, password_hash = $3, first_name = $4, middle_name = $5,
			last_name = $6, avatar_path = $7, ldap_dn = $8, updated_at = $9
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.MiddleName,
		user.LastName,
		user.AvatarPath,
		user.LDAPDN,
		user.UpdatedAt,
	)

	return err
}

// UpdateAvatar sets or clears the user's avatar path
func (r *UserRepository) UpdateAvatar(ctx context.Context, userID string, avatarPath *string) error {
	query := `UPDATE users SET avatar_path = $2, updated_at = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, avatarPath)
	return err
}

// DeleteUser deletes a user (cascades to pins and owned directories)
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	query := `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// ListUsers retrieves a paginated list of users with the total count
func (r *UserRepository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM users`
	err := r.db.QueryRowContext(ctx, countQuery).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY last_name, first_name, created_at
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user := &models.User{}
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.PasswordHash,
			&user.FirstName,
			&user.MiddleName,
			&user.LastName,
			&user.AvatarPath,
			&user.LDAPDN,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM users`
	err := r.db.QueryRowContext(ctx, query).Scan(&total)
	return total, err
}

// UpsertFromLDAP creates or refreshes a user record synced from the LDAP
// directory, keyed by distinguished name. Returns the up-to-date user.
func (r *UserRepository) UpsertFromLDAP(ctx context.Context, dn, email, firstName, middleName, lastName string) (*models.User, error) {
	user, err := r.GetUserByLDAPDN(ctx, dn)
	if err != nil {
		return nil, err
	}

	if user != nil {
		if user.Email != email || user.FirstName != firstName ||
			user.MiddleName != middleName || user.LastName != lastName {
			user.Email = email
			user.FirstName = firstName
			user.MiddleName = middleName
			user.LastName = lastName
			if err := r.UpdateUser(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	}

	newUser := &models.User{
		Email:      email,
		FirstName:  firstName,
		MiddleName: middleName,
		LastName:   lastName,
		LDAPDN:     &dn,
	}

	if err := r.CreateUser(ctx, newUser); err != nil {
		return nil, err
	}

	return newUser, nil
}
