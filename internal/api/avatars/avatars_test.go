package avatars

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/middleware"
	"github.com/team-directory/team-directory/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// fakeStore keeps uploads in memory so serving can be tested end to end.
type fakeStore struct {
	files map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string][]byte{}}
}

func (f *fakeStore) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	f.files[path] = data
	return &storage.UploadResult{Path: path, Size: int64(len(data))}, nil
}

func (f *fakeStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) Delete(ctx context.Context, path string) error {
	delete(f.files, path)
	return nil
}

func (f *fakeStore) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "/api/v1/files/" + path, nil
}

func (f *fakeStore) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

var contactCols = []string{
	"id", "user_id", "directory_id", "avatar_path", "name", "nickname", "birthdate",
	"emails", "phones", "im",
	"company", "position", "home_address", "work_address", "notes",
	"created_at", "updated_at",
}

func newAvatarRouter(t *testing.T, scopes []string) (*gin.Engine, sqlmock.Sqlmock, *fakeStore) {
	return newAvatarRouterForUser(t, scopes, nil)
}

// newAvatarRouterForUser also seeds the authenticated user record, the way the
// auth middleware does after validating a token.
func newAvatarRouterForUser(t *testing.T, scopes []string, user *models.User) (*gin.Engine, sqlmock.Sqlmock, *fakeStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := newFakeStore()
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	handlers := NewHandlers(
		store,
		repositories.NewUserRepository(db),
		repositories.NewContactRepository(db),
		repositories.NewDirectoryRepository(sqlxDB),
		1<<20, // 1 MiB
		15*time.Minute,
	)

	router := gin.New()
	router.GET("/api/v1/files/*filepath", handlers.ServeFileHandler())
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "actor-1")
		c.Set(middleware.ContextScopes, scopes)
		if user != nil {
			c.Set(middleware.ContextUser, user)
		}
	})
	router.POST("/api/v1/profile/avatar", handlers.UploadUserAvatarHandler())
	router.POST("/api/v1/contacts/:id/avatar", handlers.UploadContactAvatarHandler())
	return router, mock, store
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("avatar", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func doUpload(router *gin.Engine, target, filename string, content []byte, t *testing.T) *httptest.ResponseRecorder {
	body, contentType := multipartUpload(t, filename, content)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Own avatar
// ---------------------------------------------------------------------------

func TestUploadUserAvatar(t *testing.T) {
	router, mock, store := newAvatarRouter(t, nil)

	mock.ExpectExec("UPDATE users SET avatar_path").
		WithArgs("actor-1", "avatars/users/actor-1.png").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doUpload(router, "/api/v1/profile/avatar", "me.png", []byte("png-bytes"), t)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if _, ok := store.files["avatars/users/actor-1.png"]; !ok {
		t.Error("avatar was not written to storage")
	}
	if !strings.Contains(w.Body.String(), "/api/v1/files/avatars/users/actor-1.png") {
		t.Errorf("body %s does not carry the avatar URL", w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUploadUserAvatar_MissingFile(t *testing.T) {
	router, _, _ := newAvatarRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/avatar", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUploadUserAvatar_UnsupportedType(t *testing.T) {
	router, _, store := newAvatarRouter(t, nil)

	w := doUpload(router, "/api/v1/profile/avatar", "script.svg", []byte("<svg/>"), t)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(store.files) != 0 {
		t.Error("rejected upload must not reach storage")
	}
}

func TestUploadUserAvatar_Oversized(t *testing.T) {
	router, _, store := newAvatarRouter(t, nil)

	w := doUpload(router, "/api/v1/profile/avatar", "huge.png", bytes.Repeat([]byte("x"), 2<<20), t)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(store.files) != 0 {
		t.Error("rejected upload must not reach storage")
	}
}

func TestUploadUserAvatar_ReplacementDeletesOldFile(t *testing.T) {
	oldPath := "avatars/users/actor-1.gif"
	router, mock, store := newAvatarRouterForUser(t, nil, &models.User{
		ID:         "actor-1",
		AvatarPath: &oldPath,
	})
	store.files[oldPath] = []byte("gif-bytes")

	mock.ExpectExec("UPDATE users SET avatar_path").
		WithArgs("actor-1", "avatars/users/actor-1.png").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doUpload(router, "/api/v1/profile/avatar", "me.png", []byte("png-bytes"), t)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if _, ok := store.files["avatars/users/actor-1.png"]; !ok {
		t.Error("new avatar was not written to storage")
	}
	if _, ok := store.files[oldPath]; ok {
		t.Error("replaced avatar file was not removed from storage")
	}
}

// ---------------------------------------------------------------------------
// Contact avatar
// ---------------------------------------------------------------------------

func TestUploadContactAvatar(t *testing.T) {
	router, mock, store := newAvatarRouter(t, []string{"contacts:write"})

	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WithArgs("contact-1").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("contact-1", nil, nil, nil, "Ada", "", nil,
				[]byte(`[]`), []byte(`[]`), []byte(`[]`),
				"", "", "", "", "",
				time.Now(), time.Now()))
	mock.ExpectExec("UPDATE contacts SET avatar_path").
		WithArgs("contact-1", "avatars/contacts/contact-1.jpg").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doUpload(router, "/api/v1/contacts/contact-1/avatar", "photo.jpg", []byte("jpg-bytes"), t)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if _, ok := store.files["avatars/contacts/contact-1.jpg"]; !ok {
		t.Error("avatar was not written to storage")
	}
}

func TestUploadContactAvatar_ReplacementDeletesOldFile(t *testing.T) {
	router, mock, store := newAvatarRouter(t, []string{"contacts:write"})
	store.files["avatars/contacts/contact-1.png"] = []byte("png-bytes")

	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WithArgs("contact-1").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("contact-1", nil, nil, "avatars/contacts/contact-1.png", "Ada", "", nil,
				[]byte(`[]`), []byte(`[]`), []byte(`[]`),
				"", "", "", "", "",
				time.Now(), time.Now()))
	mock.ExpectExec("UPDATE contacts SET avatar_path").
		WithArgs("contact-1", "avatars/contacts/contact-1.jpg").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doUpload(router, "/api/v1/contacts/contact-1/avatar", "photo.jpg", []byte("jpg-bytes"), t)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if _, ok := store.files["avatars/contacts/contact-1.jpg"]; !ok {
		t.Error("new avatar was not written to storage")
	}
	if _, ok := store.files["avatars/contacts/contact-1.png"]; ok {
		t.Error("replaced avatar file was not removed from storage")
	}
}

func TestUploadContactAvatar_ScopeDenied(t *testing.T) {
	router, mock, _ := newAvatarRouter(t, []string{"contacts:read"})

	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WithArgs("contact-1").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("contact-1", nil, nil, nil, "Ada", "", nil,
				[]byte(`[]`), []byte(`[]`), []byte(`[]`),
				"", "", "", "", "",
				time.Now(), time.Now()))

	w := doUpload(router, "/api/v1/contacts/contact-1/avatar", "photo.jpg", []byte("jpg"), t)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestUploadContactAvatar_UnknownContact(t *testing.T) {
	router, mock, _ := newAvatarRouter(t, []string{"contacts:write"})

	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(contactCols))

	w := doUpload(router, "/api/v1/contacts/missing/avatar", "photo.jpg", []byte("jpg"), t)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Serving
// ---------------------------------------------------------------------------

func TestServeFile(t *testing.T) {
	router, _, store := newAvatarRouter(t, nil)
	store.files["avatars/users/actor-1.png"] = []byte("png-bytes")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/avatars/users/actor-1.png", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "png-bytes" {
		t.Errorf("body = %q, want the stored bytes", got)
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "private, max-age=300" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestServeFile_NotFound(t *testing.T) {
	router, _, _ := newAvatarRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/avatars/users/ghost.png", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestServeFile_TraversalRejected(t *testing.T) {
	router, _, store := newAvatarRouter(t, nil)
	store.files["secret.txt"] = []byte("secret")

	// Encoded dot segments decode into the wildcard parameter; the handler
	// must reject them before they reach the backend.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/avatars/%2e%2e/secret.txt", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w.Body.String() == "secret" {
		t.Error("traversal path must not reach stored files")
	}
}
