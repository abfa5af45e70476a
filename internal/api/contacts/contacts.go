// Package contacts implements the contact CRUD handlers. Team contacts
// (directory_id null) are shared and require the contacts:write scope to edit;
// personal contacts live inside a caller-owned directory and are managed under
// the directories:write scope, gated by the general.personal setting.
package contacts

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/team-directory/team-directory/internal/auth"
	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/middleware"
)

// Handlers serves the contact endpoints.
type Handlers struct {
	contacts    *repositories.ContactRepository
	directories *repositories.DirectoryRepository
	settings    *repositories.SettingsRepository
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	contacts *repositories.ContactRepository,
	directories *repositories.DirectoryRepository,
	settings *repositories.SettingsRepository,
) *Handlers {
	return &Handlers{contacts: contacts, directories: directories, settings: settings}
}

// ContactView is the wire shape of a contact. Optional identifiers are null
// when absent; scalars default to empty strings; collections are always
// present.
type ContactView struct {
	ID          string                `json:"id"`
	UserID      *string               `json:"user_id"`
	DirectoryID *string               `json:"directory_id"`
	Name        *string               `json:"name"`
	Nickname    string                `json:"nickname"`
	Birthdate   *string               `json:"birthdate"`
	Emails      []models.ContactEntry `json:"emails"`
	Phones      []models.ContactEntry `json:"phones"`
	IM          []models.ContactEntry `json:"im"`
	Company     string                `json:"company"`
	Position    string                `json:"position"`
	HomeAddress string                `json:"home_address"`
	WorkAddress string                `json:"work_address"`
	Notes       string                `json:"notes"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func viewOf(contact *models.Contact) ContactView {
	view := ContactView{
		ID:          contact.ID,
		UserID:      contact.UserID,
		DirectoryID: contact.DirectoryID,
		Name:        contact.Name,
		Nickname:    contact.Nickname,
		Birthdate:   models.BirthdateString(contact.Birthdate),
		Emails:      contact.Emails,
		Phones:      contact.Phones,
		IM:          contact.IM,
		Company:     contact.Company,
		Position:    contact.Position,
		HomeAddress: contact.HomeAddress,
		WorkAddress: contact.WorkAddress,
		Notes:       contact.Notes,
		CreatedAt:   contact.CreatedAt,
		UpdatedAt:   contact.UpdatedAt,
	}
	if view.Emails == nil {
		view.Emails = []models.ContactEntry{}
	}
	if view.Phones == nil {
		view.Phones = []models.ContactEntry{}
	}
	if view.IM == nil {
		view.IM = []models.ContactEntry{}
	}
	return view
}

// ContactRequest is the create/update payload. DirectoryID is only honored on
// create; a contact never moves between scopes afterwards.
type ContactRequest struct {
	DirectoryID *string               `json:"directory_id"`
	Name        *string               `json:"name"`
	Nickname    string                `json:"nickname"`
	Birthdate   *string               `json:"birthdate"` // YYYY-MM-DD
	Emails      []models.ContactEntry `json:"emails"`
	Phones      []models.ContactEntry `json:"phones"`
	IM          []models.ContactEntry `json:"im"`
	Company     string                `json:"company"`
	Position    string                `json:"position"`
	HomeAddress string                `json:"home_address"`
	WorkAddress string                `json:"work_address"`
	Notes       string                `json:"notes"`
}

// @Summary      Create contact
// @Description  Creates a contact. Without directory_id the contact joins the shared team directory (requires contacts:write). With directory_id it is filed in one of the caller's personal books (requires directories:write and the personal setting enabled).
// @Tags         Contacts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ContactRequest  true  "Contact fields"
// @Success      201  {object}  map[string]interface{}  "contact: ContactView"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      404  {object}  map[string]interface{}  "Directory not found"
// @Router       /api/v1/contacts [post]
// CreateHandler creates a contact
// POST /api/v1/contacts
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ContactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		birthdate, ok := parseBirthdate(c, req.Birthdate)
		if !ok {
			return
		}

		if req.DirectoryID != nil {
			if !h.authorizePersonal(c, *req.DirectoryID) {
				return
			}
		} else if !requireScope(c, auth.ScopeContactsWrite) {
			return
		}

		contact := &models.Contact{
			DirectoryID: req.DirectoryID,
			Name:        req.Name,
			Nickname:    req.Nickname,
			Birthdate:   birthdate,
			Emails:      req.Emails,
			Phones:      req.Phones,
			IM:          req.IM,
			Company:     req.Company,
			Position:    req.Position,
			HomeAddress: req.HomeAddress,
			WorkAddress: req.WorkAddress,
			Notes:       req.Notes,
		}

		if err := h.contacts.Create(c.Request.Context(), contact); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create contact"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"contact": viewOf(contact)})
	}
}

// @Summary      Get contact
// @Description  Retrieves one contact. Team contacts require contacts:read; personal contacts are visible to their directory owner only.
// @Tags         Contacts
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Contact ID"
// @Success      200  {object}  map[string]interface{}  "contact: ContactView"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      404  {object}  map[string]interface{}  "Contact not found"
// @Router       /api/v1/contacts/{id} [get]
// GetHandler retrieves a contact by ID
// GET /api/v1/contacts/:id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contact := h.loadContact(c)
		if contact == nil {
			return
		}

		if contact.IsTeam() {
			if !requireScope(c, auth.ScopeContactsRead) {
				return
			}
		} else if !h.requireDirectoryOwner(c, *contact.DirectoryID, auth.ScopeDirectoriesRead) {
			return
		}

		c.JSON(http.StatusOK, gin.H{"contact": viewOf(contact)})
	}
}

// @Summary      Update contact
// @Description  Updates a contact's fields. The scope a contact lives in (team vs personal directory) never changes on update.
// @Tags         Contacts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string          true  "Contact ID"
// @Param        body  body  ContactRequest  true  "Contact fields"
// @Success      200  {object}  map[string]interface{}  "contact: ContactView"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      404  {object}  map[string]interface{}  "Contact not found"
// @Router       /api/v1/contacts/{id} [put]
// UpdateHandler updates a contact
// PUT /api/v1/contacts/:id
func (h *Handlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ContactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		birthdate, ok := parseBirthdate(c, req.Birthdate)
		if !ok {
			return
		}

		contact := h.loadContact(c)
		if contact == nil {
			return
		}

		if contact.IsTeam() {
			if !requireScope(c, auth.ScopeContactsWrite) {
				return
			}
		} else if !h.requireDirectoryOwner(c, *contact.DirectoryID, auth.ScopeDirectoriesWrite) {
			return
		}

		contact.Name = req.Name
		contact.Nickname = req.Nickname
		contact.Birthdate = birthdate
		contact.Emails = req.Emails
		contact.Phones = req.Phones
		contact.IM = req.IM
		contact.Company = req.Company
		contact.Position = req.Position
		contact.HomeAddress = req.HomeAddress
		contact.WorkAddress = req.WorkAddress
		contact.Notes = req.Notes

		if err := h.contacts.Update(c.Request.Context(), contact); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update contact"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"contact": viewOf(contact)})
	}
}

// @Summary      Delete contact
// @Description  Deletes a personal contact. Team contacts cannot be hard-deleted; they shadow accounts and shared history.
// @Tags         Contacts
// @Security     Bearer
// @Param        id  path  string  true  "Contact ID"
// @Success      204  "Deleted"
// @Failure      400  {object}  map[string]interface{}  "Team contacts cannot be deleted"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      404  {object}  map[string]interface{}  "Contact not found"
// @Router       /api/v1/contacts/{id} [delete]
// DeleteHandler deletes a personal contact
// DELETE /api/v1/contacts/:id
func (h *Handlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contact := h.loadContact(c)
		if contact == nil {
			return
		}

		if contact.IsTeam() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Team contacts cannot be deleted"})
			return
		}
		if !h.requireDirectoryOwner(c, *contact.DirectoryID, auth.ScopeDirectoriesWrite) {
			return
		}

		if err := h.contacts.Delete(c.Request.Context(), contact.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contact"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// loadContact fetches the contact from the path parameter, writing the 404 or
// 500 response itself. Returns nil when the request is already answered.
func (h *Handlers) loadContact(c *gin.Context) *models.Contact {
	contact, err := h.contacts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contact"})
		return nil
	}
	if contact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return nil
	}
	return contact
}

// authorizePersonal checks everything a personal-contact write needs: the
// personal setting enabled, the directories:write scope, and ownership of the
// target directory.
func (h *Handlers) authorizePersonal(c *gin.Context, directoryID string) bool {
	general, err := h.settings.GetGeneralSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return false
	}
	if !general.Personal {
		c.JSON(http.StatusForbidden, gin.H{"error": "Personal contact books are disabled"})
		return false
	}
	return h.requireDirectoryOwner(c, directoryID, auth.ScopeDirectoriesWrite)
}

// requireDirectoryOwner verifies the scope and that the caller owns the
// directory. A directory someone else owns reads as not found rather than
// forbidden, so probing cannot confirm its existence.
func (h *Handlers) requireDirectoryOwner(c *gin.Context, directoryID string, scope auth.Scope) bool {
	if !requireScope(c, scope) {
		return false
	}

	dir, err := h.directories.GetByID(c.Request.Context(), directoryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve directory"})
		return false
	}
	if dir == nil || dir.UserID == nil || *dir.UserID != middleware.ActorID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Directory not found"})
		return false
	}
	return true
}

func requireScope(c *gin.Context, scope auth.Scope) bool {
	if !auth.HasScope(middleware.ScopesFromContext(c), scope) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		return false
	}
	return true
}

func parseBirthdate(c *gin.Context, raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid birthdate, expected YYYY-MM-DD"})
		return nil, false
	}
	return &t, true
}
