package contacts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/middleware"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var contactCols = []string{
	"id", "user_id", "directory_id", "avatar_path", "name", "nickname", "birthdate",
	"emails", "phones", "im",
	"company", "position", "home_address", "work_address", "notes",
	"created_at", "updated_at",
}

var directoryCols = []string{"id", "user_id", "name", "created_at"}

func newContactsRouter(t *testing.T, scopes []string) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	handlers := NewHandlers(
		repositories.NewContactRepository(db),
		repositories.NewDirectoryRepository(sqlxDB),
		repositories.NewSettingsRepository(sqlxDB),
	)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "actor-1")
		c.Set(middleware.ContextScopes, scopes)
	})
	router.POST("/api/v1/contacts", handlers.CreateHandler())
	router.GET("/api/v1/contacts/:id", handlers.GetHandler())
	router.PUT("/api/v1/contacts/:id", handlers.UpdateHandler())
	router.DELETE("/api/v1/contacts/:id", handlers.DeleteHandler())
	return router, mock
}

func doJSON(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func expectContactByID(mock sqlmock.Sqlmock, id string, directoryID any) {
	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow(id, nil, directoryID, nil, "Ada", "", nil,
				[]byte(`[]`), []byte(`[]`), []byte(`[]`),
				"", "", "", "", "",
				time.Now(), time.Now()))
}

func expectOwnedDirectory(mock sqlmock.Sqlmock, id, owner string) {
	mock.ExpectQuery("SELECT id, user_id, name, created_at FROM directories").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(directoryCols).
			AddRow(id, owner, "Clients", time.Now()))
}

func expectGeneralSettings(mock sqlmock.Sqlmock, personal bool) {
	rows := sqlmock.NewRows([]string{"name", "value"})
	if personal {
		rows.AddRow("personal", []byte("true"))
	}
	mock.ExpectQuery("SELECT name, value FROM settings").
		WithArgs(repositories.CatalogGeneral).
		WillReturnRows(rows)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateTeamContact(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"contacts:write"})

	mock.ExpectQuery("INSERT INTO contacts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("contact-1", time.Now(), time.Now()))

	w := doJSON(router, http.MethodPost, "/api/v1/contacts",
		`{"name":"Ada Lovelace","emails":[{"value":"ada@example.com","tag":"work"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", w.Code, w.Body.String())
	}

	var body struct {
		Contact map[string]json.RawMessage `json:"contact"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if string(body.Contact["id"]) != `"contact-1"` {
		t.Errorf("id = %s, want \"contact-1\"", body.Contact["id"])
	}
	if string(body.Contact["directory_id"]) != "null" {
		t.Errorf("directory_id = %s, want null", body.Contact["directory_id"])
	}
	if string(body.Contact["phones"]) != "[]" {
		t.Errorf("phones = %s, want []", body.Contact["phones"])
	}
}

func TestCreateTeamContact_ScopeDenied(t *testing.T) {
	router, _ := newContactsRouter(t, []string{"contacts:read"})

	w := doJSON(router, http.MethodPost, "/api/v1/contacts", `{"name":"Ada"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCreatePersonalContact(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"directories:write"})

	expectGeneralSettings(mock, true)
	expectOwnedDirectory(mock, "dir-1", "actor-1")
	mock.ExpectQuery("INSERT INTO contacts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("contact-9", time.Now(), time.Now()))

	w := doJSON(router, http.MethodPost, "/api/v1/contacts",
		`{"directory_id":"dir-1","name":"Dentist"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreatePersonalContact_FeatureDisabled(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"directories:write"})

	expectGeneralSettings(mock, false)

	w := doJSON(router, http.MethodPost, "/api/v1/contacts",
		`{"directory_id":"dir-1","name":"Dentist"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCreatePersonalContact_ForeignDirectory(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"directories:write"})

	expectGeneralSettings(mock, true)
	expectOwnedDirectory(mock, "dir-2", "someone-else")

	w := doJSON(router, http.MethodPost, "/api/v1/contacts",
		`{"directory_id":"dir-2","name":"Dentist"}`)
	// Not found, not forbidden: the caller must not learn the directory exists.
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateContact_InvalidBirthdate(t *testing.T) {
	router, _ := newContactsRouter(t, []string{"contacts:write"})

	w := doJSON(router, http.MethodPost, "/api/v1/contacts",
		`{"name":"Ada","birthdate":"12/10/1815"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGetTeamContact(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"contacts:read"})

	expectContactByID(mock, "contact-1", nil)

	w := doJSON(router, http.MethodGet, "/api/v1/contacts/contact-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
}

func TestGetContact_NotFound(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"contacts:read"})

	mock.ExpectQuery("SELECT.*FROM contacts WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(contactCols))

	w := doJSON(router, http.MethodGet, "/api/v1/contacts/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetPersonalContact_ForeignDirectoryReadsAsNotFound(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"directories:read"})

	expectContactByID(mock, "contact-9", "dir-2")
	expectOwnedDirectory(mock, "dir-2", "someone-else")

	w := doJSON(router, http.MethodGet, "/api/v1/contacts/contact-9", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUpdateTeamContact(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"contacts:write"})

	expectContactByID(mock, "contact-1", nil)
	mock.ExpectQuery("UPDATE contacts").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	w := doJSON(router, http.MethodPut, "/api/v1/contacts/contact-1",
		`{"name":"Ada Lovelace","company":"Analytical Engines Ltd"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}

	var body struct {
		Contact ContactView `json:"contact"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Contact.Company != "Analytical Engines Ltd" {
		t.Errorf("company = %q, want the updated value", body.Contact.Company)
	}
}

func TestUpdateTeamContact_ScopeDenied(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"contacts:read"})

	expectContactByID(mock, "contact-1", nil)

	w := doJSON(router, http.MethodPut, "/api/v1/contacts/contact-1", `{"name":"Ada"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestDeleteTeamContact_Rejected(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"contacts:write", "directories:write"})

	expectContactByID(mock, "contact-1", nil)

	w := doJSON(router, http.MethodDelete, "/api/v1/contacts/contact-1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeletePersonalContact(t *testing.T) {
	router, mock := newContactsRouter(t, []string{"directories:write"})

	expectContactByID(mock, "contact-9", "dir-1")
	expectOwnedDirectory(mock, "dir-1", "actor-1")
	mock.ExpectExec("DELETE FROM contacts WHERE id").
		WithArgs("contact-9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(router, http.MethodDelete, "/api/v1/contacts/contact-9", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204, body %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
