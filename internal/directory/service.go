// Package directory implements the team directory domain service: the merged
// team listing and the per-user pin operations, including on-demand contact
// provisioning for user accounts that have no contact card yet.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/directory/nameorder"
	"github.com/team-directory/team-directory/internal/directory/search"
	"github.com/team-directory/team-directory/internal/storage"
)

// UserRefPrefix marks a contact reference that names a user account instead
// of a contact row. Pinning such a reference provisions the user's contact
// card on first use.
const UserRefPrefix = "u_"

// Sentinel errors mapped to HTTP statuses at the API boundary.
var (
	ErrContactNotFound = errors.New("contact not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotTeamContact  = errors.New("contact is not part of the team directory")
)

// Service exposes the team directory operations. An empty actor ID marks an
// unauthenticated caller: reads return an empty list and pin operations are
// silent no-ops, so the anonymous surface leaks neither data nor existence.
type Service struct {
	teams     *repositories.TeamRepository
	contacts  *repositories.ContactRepository
	users     *repositories.UserRepository
	pins      *repositories.PinRepository
	settings  *repositories.SettingsRepository
	storage   storage.Storage
	avatarTTL time.Duration
	logger    *slog.Logger
}

// NewService creates the directory service.
func NewService(
	teams *repositories.TeamRepository,
	contacts *repositories.ContactRepository,
	users *repositories.UserRepository,
	pins *repositories.PinRepository,
	settings *repositories.SettingsRepository,
	store storage.Storage,
	avatarTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		teams:     teams,
		contacts:  contacts,
		users:     users,
		pins:      pins,
		settings:  settings,
		storage:   store,
		avatarTTL: avatarTTL,
		logger:    logger,
	}
}

// ListTeam returns the merged team directory for the actor, filtered by the
// raw search string. Settings are read per request so admin changes apply
// without a restart.
func (s *Service) ListTeam(ctx context.Context, actorID, rawQuery string) ([]models.TeamMemberView, error) {
	views := make([]models.TeamMemberView, 0)
	if actorID == "" {
		return views, nil
	}

	cfg, err := s.settings.GetTeamSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load team settings: %w", err)
	}

	members, err := s.teams.ListTeam(ctx, actorID, search.Normalize(rawQuery), cfg)
	if err != nil {
		return nil, err
	}

	for _, member := range members {
		views = append(views, s.buildView(ctx, member, cfg))
	}
	return views, nil
}

// Pin pins a contact for the actor. A u_<userID> reference provisions the
// user's contact card when it does not exist yet, so accounts are pinnable
// before anyone has edited their card. Pinning twice is a no-op.
func (s *Service) Pin(ctx context.Context, actorID, contactRef string) error {
	if actorID == "" {
		return nil
	}

	contactID, err := s.resolveRef(ctx, contactRef)
	if err != nil {
		return err
	}

	return s.pins.Pin(ctx, actorID, contactID)
}

// Unpin removes the actor's pin on a contact. A u_<userID> reference resolves
// exactly as it does for Pin, provisioning the user's contact card when it
// does not exist yet, so both operations leave the same contact state behind.
// Unpinning twice is a no-op.
func (s *Service) Unpin(ctx context.Context, actorID, contactRef string) error {
	if actorID == "" {
		return nil
	}

	contactID, err := s.resolveRef(ctx, contactRef)
	if err != nil {
		return err
	}

	return s.pins.Unpin(ctx, actorID, contactID)
}

// resolveRef maps a contact reference to a concrete team contact ID. A
// u_<userID> reference always provisions the user's contact card when none
// exists, for unpin as well as pin, so the card a reference names is there
// afterwards either way. Only team contacts are pinnable: personal directory
// entries belong to one user and never appear in the shared list.
func (s *Service) resolveRef(ctx context.Context, contactRef string) (string, error) {
	if userID, ok := strings.CutPrefix(contactRef, UserRefPrefix); ok {
		user, err := s.users.GetUserByID(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("look up user %s: %w", userID, err)
		}
		if user == nil {
			return "", ErrUserNotFound
		}

		contact, err := s.contacts.GetOrCreateForUser(ctx, userID)
		if err != nil {
			return "", err
		}
		return contact.ID, nil
	}

	contact, err := s.contacts.GetByID(ctx, contactRef)
	if err != nil {
		return "", err
	}
	if contact == nil {
		return "", ErrContactNotFound
	}
	if !contact.IsTeam() {
		return "", ErrNotTeamContact
	}
	return contact.ID, nil
}

// buildView flattens one merged row into its wire shape. Optional ids stay
// null when absent, scalars default to empty strings, collections are always
// present.
func (s *Service) buildView(ctx context.Context, member models.TeamMember, cfg models.TeamSettings) models.TeamMemberView {
	view := models.TeamMemberView{
		Name:   displayName(member, cfg),
		Pinned: member.Pinned,
		Emails: []models.ContactEntry{},
		Phones: []models.ContactEntry{},
		IM:     []models.ContactEntry{},
	}

	if contact := member.Contact; contact != nil {
		id := contact.ID
		view.ContactID = &id
		view.Nickname = contact.Nickname
		view.Birthdate = models.BirthdateString(contact.Birthdate)
		view.Company = contact.Company
		view.Position = contact.Position
		view.HomeAddress = contact.HomeAddress
		view.WorkAddress = contact.WorkAddress
		view.Notes = strings.TrimSpace(contact.Notes)
		if contact.Emails != nil {
			view.Emails = contact.Emails
		}
		if contact.Phones != nil {
			view.Phones = contact.Phones
		}
		if contact.IM != nil {
			view.IM = contact.IM
		}
	}

	if user := member.User; user != nil {
		id := user.ID
		view.UserID = &id
	}

	view.Avatar = s.avatarURL(ctx, member)
	return view
}

// displayName composes the row's display name: the account holder's name in
// the configured component order when the row is backed by a user account,
// otherwise the contact's own stored name.
func displayName(member models.TeamMember, cfg models.TeamSettings) string {
	if member.User != nil {
		return nameorder.Compose(cfg, member.User.FirstName, member.User.MiddleName, member.User.LastName)
	}
	if member.Contact != nil && member.Contact.Name != nil {
		return strings.TrimSpace(*member.Contact.Name)
	}
	return ""
}

// avatarURL resolves the row's avatar: the account holder's own picture wins
// over the contact card's. A signing failure degrades to no avatar rather
// than failing the whole listing.
func (s *Service) avatarURL(ctx context.Context, member models.TeamMember) *string {
	var path string
	if member.User != nil && member.User.AvatarPath != nil {
		path = *member.User.AvatarPath
	} else if member.Contact != nil && member.Contact.AvatarPath != nil {
		path = *member.Contact.AvatarPath
	}
	if path == "" {
		return nil
	}

	url, err := s.storage.GetURL(ctx, path, s.avatarTTL)
	if err != nil {
		s.logger.Warn("failed to resolve avatar URL", "path", path, "error", err)
		return nil
	}
	return &url
}
