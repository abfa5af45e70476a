// Package avatars implements avatar image upload and serving. Uploaded images
// go to the configured storage backend under avatars/users/<id> or
// avatars/contacts/<id>; listings resolve them to URLs (signed for cloud
// backends, served by this package's file handler for local storage).
package avatars

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/team-directory/team-directory/internal/auth"
	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/middleware"
	"github.com/team-directory/team-directory/internal/storage"
	"github.com/team-directory/team-directory/internal/telemetry"
)

// allowedExtensions maps the accepted upload extensions. Anything else is
// rejected before touching the storage backend.
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Handlers serves avatar upload and file-serving endpoints.
type Handlers struct {
	store       storage.Storage
	users       *repositories.UserRepository
	contacts    *repositories.ContactRepository
	directories *repositories.DirectoryRepository
	maxSize     int64
	urlTTL      time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	store storage.Storage,
	users *repositories.UserRepository,
	contacts *repositories.ContactRepository,
	directories *repositories.DirectoryRepository,
	maxSize int64,
	urlTTL time.Duration,
) *Handlers {
	return &Handlers{
		store:       store,
		users:       users,
		contacts:    contacts,
		directories: directories,
		maxSize:     maxSize,
		urlTTL:      urlTTL,
	}
}

// @Summary      Upload own avatar
// @Description  Stores a new avatar image for the calling user. Accepts a multipart form with an "avatar" file field (png, jpg, jpeg, gif, or webp).
// @Tags         Avatars
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        avatar  formData  file  true  "Avatar image"
// @Success      200  {object}  map[string]interface{}  "avatar: URL"
// @Failure      400  {object}  map[string]interface{}  "Invalid or oversized image"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/profile/avatar [post]
// UploadUserAvatarHandler stores the calling user's avatar
// POST /api/v1/profile/avatar
func (h *Handlers) UploadUserAvatarHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := middleware.ActorID(c)

		var oldPath *string
		if v, exists := c.Get(middleware.ContextUser); exists {
			if user, ok := v.(*models.User); ok {
				oldPath = user.AvatarPath
			}
		}

		storagePath, ok := h.storeUpload(c, "avatars/users/"+actorID)
		if !ok {
			return
		}

		if err := h.users.UpdateAvatar(c.Request.Context(), actorID, &storagePath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save avatar"})
			return
		}
		h.discardReplaced(c, oldPath, storagePath)

		telemetry.AvatarUploadsTotal.WithLabelValues("user").Inc()
		h.respondWithURL(c, storagePath)
	}
}

// @Summary      Upload contact avatar
// @Description  Stores a new avatar image for a contact. Team contacts require the contacts:write scope; personal contacts must belong to one of the caller's directories.
// @Tags         Avatars
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        id      path      string  true  "Contact ID"
// @Param        avatar  formData  file    true  "Avatar image"
// @Success      200  {object}  map[string]interface{}  "avatar: URL"
// @Failure      400  {object}  map[string]interface{}  "Invalid or oversized image"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      404  {object}  map[string]interface{}  "Contact not found"
// @Router       /api/v1/contacts/{id}/avatar [post]
// UploadContactAvatarHandler stores a contact's avatar
// POST /api/v1/contacts/:id/avatar
func (h *Handlers) UploadContactAvatarHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contact, err := h.contacts.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contact"})
			return
		}
		if contact == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}
		if !h.authorizeContactWrite(c, contact) {
			return
		}

		storagePath, ok := h.storeUpload(c, "avatars/contacts/"+contact.ID)
		if !ok {
			return
		}

		if err := h.contacts.UpdateAvatar(c.Request.Context(), contact.ID, &storagePath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save avatar"})
			return
		}
		h.discardReplaced(c, contact.AvatarPath, storagePath)

		telemetry.AvatarUploadsTotal.WithLabelValues("contact").Inc()
		h.respondWithURL(c, storagePath)
	}
}

// @Summary      Serve stored file
// @Description  Streams a stored file. Backs the URLs the local storage backend hands out; cloud backends sign their own URLs and never hit this route.
// @Tags         Avatars
// @Param        filepath  path  string  true  "Storage path"
// @Success      200  "File content"
// @Failure      404  {object}  map[string]interface{}  "File not found"
// @Router       /api/v1/files/{filepath} [get]
// ServeFileHandler streams a file from the storage backend
// GET /api/v1/files/*filepath
func (h *Handlers) ServeFileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filePath := strings.TrimPrefix(c.Param("filepath"), "/")
		// Reject traversal before the path reaches the backend.
		if filePath == "" || path.Clean("/"+filePath) != "/"+filePath {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}

		reader, err := h.store.Download(c.Request.Context(), filePath)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		defer reader.Close()

		contentType := mime.TypeByExtension(path.Ext(filePath))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("Content-Type", contentType)
		c.Header("Cache-Control", "private, max-age=300")
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, reader)
	}
}

// storeUpload validates the multipart upload and writes it to the storage
// backend under pathPrefix plus the original extension. It answers the request
// itself on failure.
func (h *Handlers) storeUpload(c *gin.Context, pathPrefix string) (string, bool) {
	header, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing avatar file"})
		return "", false
	}

	if header.Size > h.maxSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Avatar exceeds maximum size"})
		return "", false
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	if !allowedExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported image type"})
		return "", false
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read avatar file"})
		return "", false
	}
	defer file.Close()

	storagePath := pathPrefix + ext
	if _, err := h.store.Upload(c.Request.Context(), storagePath, file, header.Size); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store avatar"})
		return "", false
	}

	return storagePath, true
}

// discardReplaced removes the previous avatar file when the new upload landed
// on a different path (the extension changed). Removal is best effort; a stale
// file never fails the request.
func (h *Handlers) discardReplaced(c *gin.Context, oldPath *string, newPath string) {
	if oldPath == nil || *oldPath == newPath {
		return
	}
	_ = h.store.Delete(c.Request.Context(), *oldPath)
}

// authorizeContactWrite applies the same write rules as the contact update
// endpoint: team contacts need contacts:write, personal contacts belong to
// their directory owner.
func (h *Handlers) authorizeContactWrite(c *gin.Context, contact *models.Contact) bool {
	scopes := middleware.ScopesFromContext(c)

	if contact.IsTeam() {
		if !auth.HasScope(scopes, auth.ScopeContactsWrite) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return false
		}
		return true
	}

	if !auth.HasScope(scopes, auth.ScopeDirectoriesWrite) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		return false
	}

	dir, err := h.directories.GetByID(c.Request.Context(), *contact.DirectoryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve directory"})
		return false
	}
	if dir == nil || dir.UserID == nil || *dir.UserID != middleware.ActorID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return false
	}
	return true
}

// respondWithURL resolves the stored path to a URL for the response body.
// Resolution failure still reports success: the avatar is stored and will
// resolve on the next listing.
func (h *Handlers) respondWithURL(c *gin.Context, storagePath string) {
	url, err := h.store.GetURL(c.Request.Context(), storagePath, h.urlTTL)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"path": storagePath})
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar": url, "path": storagePath})
}
