// Package directories implements the handlers for personal contact books.
// The whole feature is gated by the general.personal setting; when an admin
// turns it off, every endpoint here answers 403 regardless of scopes.
package directories

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/middleware"
)

// Handlers serves the personal directory endpoints.
type Handlers struct {
	directories *repositories.DirectoryRepository
	contacts    *repositories.ContactRepository
	settings    *repositories.SettingsRepository
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	directories *repositories.DirectoryRepository,
	contacts *repositories.ContactRepository,
	settings *repositories.SettingsRepository,
) *Handlers {
	return &Handlers{directories: directories, contacts: contacts, settings: settings}
}

// CreateDirectoryRequest is the create payload.
type CreateDirectoryRequest struct {
	Name string `json:"name" binding:"required"`
}

// @Summary      List personal directories
// @Description  Lists the caller's personal contact books, sorted by name.
// @Tags         Directories
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "directories: []models.Directory"
// @Failure      403  {object}  map[string]interface{}  "Personal contact books are disabled"
// @Router       /api/v1/directories [get]
// ListHandler lists the caller's personal directories
// GET /api/v1/directories
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.personalEnabled(c) {
			return
		}

		dirs, err := h.directories.ListByOwner(c.Request.Context(), middleware.ActorID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list directories"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"directories": dirs})
	}
}

// @Summary      Create personal directory
// @Description  Creates a personal contact book owned by the caller.
// @Tags         Directories
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateDirectoryRequest  true  "Directory name"
// @Success      201  {object}  map[string]interface{}  "directory: models.Directory"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      403  {object}  map[string]interface{}  "Personal contact books are disabled"
// @Router       /api/v1/directories [post]
// CreateHandler creates a personal directory
// POST /api/v1/directories
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.personalEnabled(c) {
			return
		}

		var req CreateDirectoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Directory name is required"})
			return
		}

		actorID := middleware.ActorID(c)
		dir := &models.Directory{UserID: &actorID, Name: name}
		if err := h.directories.Create(c.Request.Context(), dir); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create directory"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"directory": dir})
	}
}

// @Summary      List directory contacts
// @Description  Lists the contacts filed in one of the caller's personal books.
// @Tags         Directories
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Directory ID"
// @Success      200  {object}  map[string]interface{}  "contacts: []models.Contact"
// @Failure      403  {object}  map[string]interface{}  "Personal contact books are disabled"
// @Failure      404  {object}  map[string]interface{}  "Directory not found"
// @Router       /api/v1/directories/{id}/contacts [get]
// ListContactsHandler lists the contacts in a personal directory
// GET /api/v1/directories/:id/contacts
func (h *Handlers) ListContactsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.personalEnabled(c) {
			return
		}

		dir := h.loadOwnedDirectory(c)
		if dir == nil {
			return
		}

		contacts, err := h.contacts.ListByDirectory(c.Request.Context(), dir.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contacts"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"contacts": contacts})
	}
}

// @Summary      Delete personal directory
// @Description  Deletes one of the caller's personal books together with every contact filed in it.
// @Tags         Directories
// @Security     Bearer
// @Param        id  path  string  true  "Directory ID"
// @Success      204  "Deleted"
// @Failure      403  {object}  map[string]interface{}  "Personal contact books are disabled"
// @Failure      404  {object}  map[string]interface{}  "Directory not found"
// @Router       /api/v1/directories/{id} [delete]
// DeleteHandler deletes a personal directory and its contacts
// DELETE /api/v1/directories/:id
func (h *Handlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.personalEnabled(c) {
			return
		}

		dir := h.loadOwnedDirectory(c)
		if dir == nil {
			return
		}

		if err := h.directories.Delete(c.Request.Context(), dir.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete directory"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// personalEnabled answers the request with 403 when the feature is off.
func (h *Handlers) personalEnabled(c *gin.Context) bool {
	general, err := h.settings.GetGeneralSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return false
	}
	if !general.Personal {
		c.JSON(http.StatusForbidden, gin.H{"error": "Personal contact books are disabled"})
		return false
	}
	return true
}

// loadOwnedDirectory fetches the directory from the path parameter and
// verifies ownership. Someone else's directory reads as not found.
func (h *Handlers) loadOwnedDirectory(c *gin.Context) *models.Directory {
	dir, err := h.directories.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve directory"})
		return nil
	}
	if dir == nil || dir.UserID == nil || *dir.UserID != middleware.ActorID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Directory not found"})
		return nil
	}
	return dir
}
