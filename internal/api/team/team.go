// Package team implements the handlers for the merged team directory listing
// and the per-actor pin operations.
package team

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/team-directory/team-directory/internal/directory"
	"github.com/team-directory/team-directory/internal/middleware"
	"github.com/team-directory/team-directory/internal/telemetry"
)

// Handlers serves the team listing and pin endpoints on top of the directory
// service.
type Handlers struct {
	service *directory.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *directory.Service) *Handlers {
	return &Handlers{service: service}
}

// @Summary      List team directory
// @Description  Returns the merged team directory for the caller, pinned entries first. An optional q parameter filters by name, phone, or email.
// @Tags         Team
// @Security     Bearer
// @Produce      json
// @Param        q  query  string  false  "Search string"
// @Success      200  {object}  map[string]interface{}  "team: []models.TeamMemberView"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/team [get]
// ListHandler lists the merged team directory
// GET /api/v1/team?q=<term>
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		query := c.Query("q")

		members, err := h.service.ListTeam(c.Request.Context(), middleware.ActorID(c), query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list team directory",
			})
			return
		}

		telemetry.TeamListDuration.Observe(time.Since(start).Seconds())
		filtered := "false"
		if strings.TrimSpace(query) != "" {
			filtered = "true"
		}
		telemetry.TeamListRequestsTotal.WithLabelValues(filtered).Inc()

		c.JSON(http.StatusOK, gin.H{
			"team": members,
		})
	}
}

// @Summary      Pin a contact
// @Description  Pins a contact for the caller so it sorts to the top of the team listing. A u_<userID> reference pins a user account, provisioning its contact card on first use. Pinning twice is a no-op.
// @Tags         Team
// @Security     Bearer
// @Param        contactRef  path  string  true  "Contact ID or u_<userID> reference"
// @Success      204  "Pinned"
// @Failure      400  {object}  map[string]interface{}  "Contact is not a team contact"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Contact or user not found"
// @Router       /api/v1/pin/{contactRef} [post]
// PinHandler pins a contact for the calling user
// POST /api/v1/pin/:contactRef
func (h *Handlers) PinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Param("contactRef")
		if !validContactRef(ref) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}

		err := h.service.Pin(c.Request.Context(), middleware.ActorID(c), ref)
		if !writePinResult(c, err) {
			return
		}

		telemetry.PinOperationsTotal.WithLabelValues("pin").Inc()
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Unpin a contact
// @Description  Removes the caller's pin on a contact. Unpinning a contact that was never pinned is a no-op.
// @Tags         Team
// @Security     Bearer
// @Param        contactRef  path  string  true  "Contact ID or u_<userID> reference"
// @Success      204  "Unpinned"
// @Failure      400  {object}  map[string]interface{}  "Contact is not a team contact"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Contact or user not found"
// @Router       /api/v1/pin/{contactRef} [delete]
// UnpinHandler removes the caller's pin on a contact
// DELETE /api/v1/pin/:contactRef
func (h *Handlers) UnpinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Param("contactRef")
		if !validContactRef(ref) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}

		err := h.service.Unpin(c.Request.Context(), middleware.ActorID(c), ref)
		if !writePinResult(c, err) {
			return
		}

		telemetry.PinOperationsTotal.WithLabelValues("unpin").Inc()
		c.Status(http.StatusNoContent)
	}
}

// validContactRef reports whether a reference could name a stored row. Both
// the raw form and the payload of a u_<userID> reference are UUID columns, so
// anything else reads as a missing row without touching the database.
func validContactRef(ref string) bool {
	id, ok := strings.CutPrefix(ref, directory.UserRefPrefix)
	if !ok {
		id = ref
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// writePinResult maps service errors to HTTP responses. Returns true when the
// mutation succeeded.
func writePinResult(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, directory.ErrContactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
	case errors.Is(err, directory.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, directory.ErrNotTeamContact):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Contact is not part of the team directory"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Pin operation failed"})
	}
	return false
}
