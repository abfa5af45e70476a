// Package repositories implements the data access layer (repository pattern)
// for the team directory. Each repository type encapsulates all database
// queries for a domain entity; handlers never issue SQL directly.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/directory/nameorder"
	"github.com/team-directory/team-directory/internal/directory/search"
)

// TeamRepository runs the merged team directory query: contacts full-outer
// joined with users, left-augmented with the requesting user's pins.
type TeamRepository struct {
	db *sql.DB
}

// NewTeamRepository creates a new TeamRepository
func NewTeamRepository(db *sql.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

const teamSelectColumns = `
	c.id, c.user_id, c.avatar_path, c.name, c.nickname, c.birthdate,
	c.emails, c.phones, c.im,
	c.company, c.position, c.home_address, c.work_address, c.notes,
	u.id, u.first_name, u.middle_name, u.last_name, u.avatar_path,
	(p.contact_id IS NOT NULL) AS pinned`

// ListTeam returns the merged team directory for one actor, filtered by the
// supplied search terms and ordered pinned-first, then by the composed name.
//
// The WHERE clause keeps only team-scoped contacts (directory_id IS NULL);
// rows contributed solely by the users side of the full outer join carry a
// NULL directory_id and therefore pass the filter as well. The ORDER BY name
// expression is built from the same component order that drives display-name
// composition, so the list sorts exactly as it reads.
func (r *TeamRepository) ListTeam(ctx context.Context, actorID string, terms search.Terms, cfg models.TeamSettings) ([]models.TeamMember, error) {
	query, args := buildTeamQuery(actorID, terms, cfg)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query team directory: %w", err)
	}
	defer rows.Close()

	members := make([]models.TeamMember, 0)
	for rows.Next() {
		member, err := scanTeamMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team directory: %w", err)
	}

	return members, nil
}

// buildTeamQuery assembles the merge query and its positional arguments.
func buildTeamQuery(actorID string, terms search.Terms, cfg models.TeamSettings) (string, []any) {
	args := []any{actorID}

	where := []string{"c.directory_id IS NULL"}
	if terms.Name != "" {
		// A row matches when any branch does. Empty stripped terms stay out
		// of the OR group so they cannot substring-match every row.
		branches := []string{
			fmt.Sprintf("trim(concat_ws(' ', c.name, u.first_name, u.last_name)) ILIKE $%d", len(args)+1),
			fmt.Sprintf("trim(concat_ws(' ', c.name, u.last_name, u.first_name)) ILIKE $%d", len(args)+2),
		}
		args = append(args, like(terms.Name), like(terms.Name))

		if terms.Phone != "" {
			branches = append(branches, fmt.Sprintf("c.phones::text ILIKE $%d", len(args)+1))
			args = append(args, like(terms.Phone))
		}
		if terms.Email != "" {
			branches = append(branches, fmt.Sprintf("c.emails::text ILIKE $%d", len(args)+1))
			args = append(args, like(terms.Email))
		}

		where = append(where, "("+strings.Join(branches, " OR ")+")")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM contacts c
FULL OUTER JOIN users u ON u.id = c.user_id
LEFT JOIN pins p ON p.user_id = $1 AND p.contact_id = c.id
WHERE %s
ORDER BY (p.contact_id IS NULL), %s`,
		teamSelectColumns,
		strings.Join(where, " AND "),
		orderExpression(cfg),
	)

	return query, args
}

// orderExpression builds the composed-name ordering key. The contact's own
// name always leads (it is the display name for rows without a user account);
// the user name columns follow in the configured composition order.
func orderExpression(cfg models.TeamSettings) string {
	columns := map[nameorder.Component]string{
		nameorder.First:  "u.first_name",
		nameorder.Middle: "u.middle_name",
		nameorder.Last:   "u.last_name",
	}

	cols := []string{"c.name"}
	for _, component := range nameorder.Order(cfg) {
		cols = append(cols, columns[component])
	}
	return fmt.Sprintf("trim(concat_ws(' ', %s))", strings.Join(cols, ", "))
}

func like(term string) string {
	return "%" + term + "%"
}

// scanTeamMember reads one merged row. Contact and user columns are all
// nullable because of the full outer join; a side is materialized only when
// its id column is present.
func scanTeamMember(rows *sql.Rows) (models.TeamMember, error) {
	var (
		contactID   sql.NullString
		userRef     sql.NullString
		cAvatar     sql.NullString
		cName       sql.NullString
		nickname    sql.NullString
		birthdate   sql.NullTime
		emailsJSON  []byte
		phonesJSON  []byte
		imJSON      []byte
		company     sql.NullString
		position    sql.NullString
		homeAddress sql.NullString
		workAddress sql.NullString
		notes       sql.NullString
		userID      sql.NullString
		firstName   sql.NullString
		middleName  sql.NullString
		lastName    sql.NullString
		uAvatar     sql.NullString
		pinned      bool
	)

	err := rows.Scan(
		&contactID, &userRef, &cAvatar, &cName, &nickname, &birthdate,
		&emailsJSON, &phonesJSON, &imJSON,
		&company, &position, &homeAddress, &workAddress, &notes,
		&userID, &firstName, &middleName, &lastName, &uAvatar,
		&pinned,
	)
	if err != nil {
		return models.TeamMember{}, fmt.Errorf("scan team member: %w", err)
	}

	member := models.TeamMember{Pinned: pinned}

	if contactID.Valid {
		contact := &models.Contact{
			ID:          contactID.String,
			Nickname:    nickname.String,
			Company:     company.String,
			Position:    position.String,
			HomeAddress: homeAddress.String,
			WorkAddress: workAddress.String,
			Notes:       notes.String,
		}
		if userRef.Valid {
			contact.UserID = &userRef.String
		}
		if cAvatar.Valid {
			contact.AvatarPath = &cAvatar.String
		}
		if cName.Valid {
			contact.Name = &cName.String
		}
		if birthdate.Valid {
			contact.Birthdate = &birthdate.Time
		}
		if contact.Emails, err = decodeEntries(emailsJSON); err != nil {
			return models.TeamMember{}, fmt.Errorf("decode emails: %w", err)
		}
		if contact.Phones, err = decodeEntries(phonesJSON); err != nil {
			return models.TeamMember{}, fmt.Errorf("decode phones: %w", err)
		}
		if contact.IM, err = decodeEntries(imJSON); err != nil {
			return models.TeamMember{}, fmt.Errorf("decode im: %w", err)
		}
		member.Contact = contact
	}

	if userID.Valid {
		user := &models.User{
			ID:         userID.String,
			FirstName:  firstName.String,
			MiddleName: middleName.String,
			LastName:   lastName.String,
		}
		if uAvatar.Valid {
			user.AvatarPath = &uAvatar.String
		}
		member.User = user
	}

	return member, nil
}

// decodeEntries unmarshals a JSONB collection column, treating NULL as empty.
func decodeEntries(raw []byte) ([]models.ContactEntry, error) {
	if len(raw) == 0 {
		return []models.ContactEntry{}, nil
	}
	entries := make([]models.ContactEntry, 0)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
