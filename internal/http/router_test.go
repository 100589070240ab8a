package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/placepicker/backend/internal/catalog"
	"github.com/placepicker/backend/internal/config"
	"github.com/placepicker/backend/internal/http/middleware"
	"github.com/placepicker/backend/internal/kv"
	"github.com/placepicker/backend/internal/service"
)

func newTestRouter(t *testing.T, adminKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	places, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	sessions := service.NewSessions(service.SessionsConfig{
		Catalog: places,
		Store:   kv.NewMemory(),
		Logger:  zerolog.Nop(),
	})
	cfg := config.Config{CORSAllowed: "*", RequestTimeout: 5 * time.Second, AdminKey: adminKey}
	return Router(cfg, sessions, places, nil, zerolog.Nop())
}

func TestRouterHealthzSetsRequestID(t *testing.T) {
	r := newTestRouter(t, "")
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRouterCreateSession(t *testing.T) {
	r := newTestRouter(t, "")
	req, _ := http.NewRequest(http.MethodPost, "/api/sessions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRouterAdminRequiresKey(t *testing.T) {
	r := newTestRouter(t, "secret")

	req, _ := http.NewRequest(http.MethodGet, "/api/admin/sessions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req, _ = http.NewRequest(http.MethodGet, "/api/admin/sessions", nil)
	req.Header.Set(middleware.AdminKeyHeader, "secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", w.Code)
	}
}
