package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/team-directory/team-directory/internal/config"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("TEAMDIR_JWT_SECRET", "test-secret-0123456789-0123456789-0123456789")
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "local"
	cfg.Storage.Local.BasePath = t.TempDir()
	cfg.Directory.AvatarURLTTL = 15 * time.Minute
	cfg.Directory.AvatarMaxSizeBytes = 1 << 20
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	return cfg
}

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	router, bg := NewRouter(testConfig(t), db)
	t.Cleanup(bg.Shutdown)
	return router, mock
}

func get(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Probes and version
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"ready":true`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestVersion(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/version")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"api_version":"v1"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Route protection
// ---------------------------------------------------------------------------

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	targets := []string{
		"/api/v1/team",
		"/api/v1/auth/me",
		"/api/v1/contacts/contact-1",
		"/api/v1/directories",
		"/api/v1/users",
		"/api/v1/admin/settings/team",
	}
	for _, target := range targets {
		w := get(router, target)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: status = %d, want 401", target, w.Code)
		}
	}
}

func TestAuthEndpointsAreReachableAnonymously(t *testing.T) {
	router, _ := newTestRouter(t)

	// Logout never needs a token.
	w := get(router, "/api/v1/auth/logout")
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/v1/auth/logout: status = %d, want 200", w.Code)
	}

	// SSO is configured off, but the route itself must not 401.
	w = get(router, "/api/v1/auth/sso")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /api/v1/auth/sso: status = %d, want 404 (not configured)", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/team", nil)
	req.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
