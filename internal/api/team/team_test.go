package team

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/directory"
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

type fakeStorage struct{}

func (f *fakeStorage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	return &storage.UploadResult{Path: path, Size: size}, nil
}

func (f *fakeStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStorage) Delete(ctx context.Context, path string) error { return nil }

func (f *fakeStorage) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "https://files.example.com/" + path, nil
}

func (f *fakeStorage) Exists(ctx context.Context, path string) (bool, error) { return true, nil }

var teamCols = []string{
	"id", "user_id", "avatar_path", "name", "nickname", "birthdate",
	"emails", "phones", "im",
	"company", "position", "home_address", "work_address", "notes",
	"u_id", "first_name", "middle_name", "last_name", "u_avatar_path",
	"pinned",
}

var contactCols = []string{
	"id", "user_id", "directory_id", "avatar_path", "name", "nickname", "birthdate",
	"emails", "phones", "im",
	"company", "position", "home_address", "work_address", "notes",
	"created_at", "updated_at",
}

var userCols = []string{
	"id", "email", "password_hash", "first_name", "middle_name", "last_name",
	"avatar_path", "ldap_dn", "created_at", "updated_at",
}

// newTeamRouter builds the team routes behind a stub identity so the tests
// exercise the handlers, not the JWT plumbing (covered in middleware tests).
func newTeamRouter(t *testing.T, scopes []string) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	svc := directory.NewService(
		repositories.NewTeamRepository(db),
		repositories.NewContactRepository(db),
		repositories.NewUserRepository(db),
		repositories.NewPinRepository(db),
		repositories.NewSettingsRepository(sqlxDB),
		&fakeStorage{},
		15*time.Minute,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	handlers := NewHandlers(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "actor-1")
		c.Set(middleware.ContextScopes, scopes)
	})
	router.GET("/api/v1/team", handlers.ListHandler())
	router.POST("/api/v1/pin/:contactRef", handlers.PinHandler())
	router.DELETE("/api/v1/pin/:contactRef", handlers.UnpinHandler())
	return router, mock
}

func doRequest(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	router.ServeHTTP(w, req)
	return w
}

func expectDefaultSettings(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT name, value FROM settings").
		WithArgs(repositories.CatalogTeam).
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}))
}

// ---------------------------------------------------------------------------
// Authentication boundary
// ---------------------------------------------------------------------------

func TestListTeam_RequiresAuth(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	router := gin.New()
	router.GET("/api/v1/team",
		middleware.AuthMiddleware(repositories.NewUserRepository(db)),
		func(c *gin.Context) { t.Error("handler must not run without a token") })

	w := doRequest(router, http.MethodGet, "/api/v1/team")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

func TestListTeam_JSONContract(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	expectDefaultSettings(mock)
	rows := sqlmock.NewRows(teamCols).
		AddRow("contact-1", nil, nil, "Front Desk", "", nil,
			[]byte(`[{"value":"desk@example.com","tag":"work"}]`), []byte(`[]`), []byte(`[]`),
			"", "", "", "", "",
			nil, nil, nil, nil, nil,
			true)
	mock.ExpectQuery("SELECT.*FROM contacts c.*FULL OUTER JOIN users u").
		WithArgs("actor-1").
		WillReturnRows(rows)

	w := doRequest(router, http.MethodGet, "/api/v1/team")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}

	var body struct {
		Team []map[string]json.RawMessage `json:"team"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Team) != 1 {
		t.Fatalf("len(team) = %d, want 1", len(body.Team))
	}

	row := body.Team[0]
	if string(row["contact_id"]) != `"contact-1"` {
		t.Errorf("contact_id = %s, want \"contact-1\"", row["contact_id"])
	}
	// Optional ids are null, never empty strings.
	if string(row["user_id"]) != "null" {
		t.Errorf("user_id = %s, want null", row["user_id"])
	}
	if string(row["avatar"]) != "null" {
		t.Errorf("avatar = %s, want null", row["avatar"])
	}
	// Collections are always arrays, never null.
	if string(row["phones"]) != "[]" {
		t.Errorf("phones = %s, want []", row["phones"])
	}
	if string(row["emails"]) == "null" {
		t.Errorf("emails = %s, want an array", row["emails"])
	}
	if string(row["pinned"]) != "true" {
		t.Errorf("pinned = %s, want true", row["pinned"])
	}
	if string(row["name"]) != `"Front Desk"` {
		t.Errorf("name = %s, want \"Front Desk\"", row["name"])
	}
}

func TestListTeam_EmptyDirectoryIsEmptyArray(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	expectDefaultSettings(mock)
	mock.ExpectQuery("SELECT.*FROM contacts c").
		WithArgs("actor-1").
		WillReturnRows(sqlmock.NewRows(teamCols))

	w := doRequest(router, http.MethodGet, "/api/v1/team")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != `{"team":[]}` {
		t.Errorf("body = %s, want {\"team\":[]}", got)
	}
}

func TestListTeam_DBError(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	mock.ExpectQuery("SELECT name, value FROM settings").
		WillReturnError(errors.New("db down"))

	w := doRequest(router, http.MethodGet, "/api/v1/team")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Pin / Unpin
// ---------------------------------------------------------------------------

// Pin references name UUID columns, so the fixtures use real UUIDs.
const (
	teamContactID     = "5f8e1c2a-9b3d-4e6f-8a1b-2c3d4e5f6a7b"
	personalContactID = "7a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d"
	missingContactID  = "0d9c8b7a-6f5e-4d3c-b2a1-09f8e7d6c5b4"
	ghostUserID       = "3c4d5e6f-7a8b-4c9d-8e0f-1a2b3c4d5e6f"
)

func TestPin_NoContent(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	mock.ExpectQuery("SELECT.*FROM contacts.*WHERE id").
		WithArgs(teamContactID).
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow(teamContactID, nil, nil, nil, "Front Desk", "", nil,
				[]byte(`[]`), []byte(`[]`), []byte(`[]`),
				"", "", "", "", "",
				time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO pins").
		WithArgs("actor-1", teamContactID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doRequest(router, http.MethodPost, "/api/v1/pin/"+teamContactID)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204, body %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPin_UnknownContact(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	mock.ExpectQuery("SELECT.*FROM contacts.*WHERE id").
		WithArgs(missingContactID).
		WillReturnRows(sqlmock.NewRows(contactCols))

	w := doRequest(router, http.MethodPost, "/api/v1/pin/"+missingContactID)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPin_UnknownUserRef(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WithArgs(ghostUserID).
		WillReturnRows(sqlmock.NewRows(userCols))

	w := doRequest(router, http.MethodPost, "/api/v1/pin/u_"+ghostUserID)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPin_MalformedRef(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	// Neither form is a UUID; both must 404 before any query runs.
	for _, ref := range []string{"garbage", "u_garbage"} {
		w := doRequest(router, http.MethodPost, "/api/v1/pin/"+ref)
		if w.Code != http.StatusNotFound {
			t.Errorf("POST /pin/%s: status = %d, want 404", ref, w.Code)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("malformed refs must not reach the database: %v", err)
	}
}

func TestPin_PersonalContactRejected(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	mock.ExpectQuery("SELECT.*FROM contacts.*WHERE id").
		WithArgs(personalContactID).
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow(personalContactID, nil, "dir-1", nil, "Private", "", nil,
				[]byte(`[]`), []byte(`[]`), []byte(`[]`),
				"", "", "", "", "",
				time.Now(), time.Now()))

	w := doRequest(router, http.MethodPost, "/api/v1/pin/"+personalContactID)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUnpin_NoContent(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	mock.ExpectQuery("SELECT.*FROM contacts.*WHERE id").
		WithArgs(teamContactID).
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow(teamContactID, nil, nil, nil, "Front Desk", "", nil,
				[]byte(`[]`), []byte(`[]`), []byte(`[]`),
				"", "", "", "", "",
				time.Now(), time.Now()))
	mock.ExpectExec("DELETE FROM pins").
		WithArgs("actor-1", teamContactID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doRequest(router, http.MethodDelete, "/api/v1/pin/"+teamContactID)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestUnpin_MalformedRef(t *testing.T) {
	router, mock := newTeamRouter(t, []string{"team:read"})

	w := doRequest(router, http.MethodDelete, "/api/v1/pin/not-a-uuid")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("malformed refs must not reach the database: %v", err)
	}
}
