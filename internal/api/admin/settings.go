// settings.go implements the runtime settings admin handlers. Settings are
// read per request by the directory service, so a PUT here takes effect on
// the very next listing without a restart.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/db/repositories"
)

// SettingsHandlers handles the settings admin endpoints.
type SettingsHandlers struct {
	settings *repositories.SettingsRepository
}

// NewSettingsHandlers creates a new SettingsHandlers instance.
func NewSettingsHandlers(settings *repositories.SettingsRepository) *SettingsHandlers {
	return &SettingsHandlers{settings: settings}
}

// @Summary      Get settings catalog
// @Description  Returns the settings stored under one catalog with defaults applied. Catalogs: team (name sorting and composition), general (feature switches). Requires settings:manage scope.
// @Tags         Settings
// @Security     Bearer
// @Produce      json
// @Param        catalog  path  string  true  "Catalog name (team or general)"
// @Success      200  {object}  map[string]interface{}  "settings"
// @Failure      404  {object}  map[string]interface{}  "Unknown catalog"
// @Router       /api/v1/admin/settings/{catalog} [get]
// GetSettingsHandler returns one settings catalog
// GET /api/v1/admin/settings/:catalog
func (h *SettingsHandlers) GetSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Param("catalog") {
		case repositories.CatalogTeam:
			settings, err := h.settings.GetTeamSettings(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"settings": settings})

		case repositories.CatalogGeneral:
			settings, err := h.settings.GetGeneralSettings(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"settings": settings})

		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown settings catalog"})
		}
	}
}

// @Summary      Update settings catalog
// @Description  Replaces the settings stored under one catalog. Requires settings:manage scope.
// @Tags         Settings
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        catalog  path  string  true  "Catalog name (team or general)"
// @Param        body     body  object  true  "Catalog settings"
// @Success      200  {object}  map[string]interface{}  "settings"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      404  {object}  map[string]interface{}  "Unknown catalog"
// @Router       /api/v1/admin/settings/{catalog} [put]
// UpdateSettingsHandler replaces one settings catalog
// PUT /api/v1/admin/settings/:catalog
func (h *SettingsHandlers) UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Param("catalog") {
		case repositories.CatalogTeam:
			var settings models.TeamSettings
			if err := c.ShouldBindJSON(&settings); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
				return
			}
			if err := h.settings.SetTeamSettings(c.Request.Context(), settings); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store settings"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"settings": settings})

		case repositories.CatalogGeneral:
			var settings models.GeneralSettings
			if err := c.ShouldBindJSON(&settings); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
				return
			}
			if err := h.settings.SetGeneralSettings(c.Request.Context(), settings); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store settings"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"settings": settings})

		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown settings catalog"})
		}
	}
}
