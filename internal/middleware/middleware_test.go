package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/IYouKnow/TunnelUI/internal/auth"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	var err error
	database.DB, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	database.DB.AutoMigrate(database.AllModels()...)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	if GetUser(r) != nil {
		w.Header().Set("X-User", GetUser(r).Email)
	}
	w.WriteHeader(http.StatusOK)
}

func TestRequireAuth_NoCookie(t *testing.T) {
	setupTestDB(t)
	config.Cfg.AuthDisabled = false

	h := RequireAuth(auth.NewSessionStore())(http.HandlerFunc(okHandler))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/tunnels", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuth_ValidSession(t *testing.T) {
	setupTestDB(t)
	config.Cfg.AuthDisabled = false

	user := &database.User{Email: "op@example.com", PasswordHash: "x"}
	database.CreateUser(user)
	store := auth.NewSessionStore()
	sid, _ := store.Create(user.ID)

	req := httptest.NewRequest("GET", "/api/tunnels", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: sid})
	w := httptest.NewRecorder()
	RequireAuth(store)(http.HandlerFunc(okHandler)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-User") != "op@example.com" {
		t.Errorf("expected user in context, got %q", w.Header().Get("X-User"))
	}
}

func TestRequireAuth_Disabled(t *testing.T) {
	setupTestDB(t)
	config.Cfg.AuthDisabled = true
	defer func() { config.Cfg.AuthDisabled = false }()

	w := httptest.NewRecorder()
	RequireAuth(auth.NewSessionStore())(http.HandlerFunc(okHandler)).ServeHTTP(w, httptest.NewRequest("GET", "/api/tunnels", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", w.Code)
	}
}

func TestSPAHandler(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":    {Data: []byte("<html>app</html>")},
		"assets/app.js": {Data: []byte("console.log(1)")},
	}
	h := NewSPAHandler(fsys)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/tunnels/3", nil))
	if w.Body.String() != "<html>app</html>" {
		t.Errorf("expected index fallback, got %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/unknown", nil))
	if w.Code != http.StatusNotFound || w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON 404 for api path, got %d %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/assets/app.js", nil))
	if w.Body.String() != "console.log(1)" {
		t.Errorf("expected asset body, got %q", w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("expected immutable caching for hashed assets, got %q", cc)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("index must not be cached, got %q", w.Header().Get("Cache-Control"))
	}
}
