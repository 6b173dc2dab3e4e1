package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IYouKnow/TunnelUI/internal/auth"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
)

// With no orchestrator installed, a routed tunnel request reaches its
// handler and gets 503; a method the router does not know gets 405.
func TestRouter_TunnelRouteMethods(t *testing.T) {
	defer setupTestDBMain(t)()
	orchestrator.ResetForTest()
	config.Cfg = config.Settings{AuthDisabled: true}
	t.Cleanup(func() { config.Cfg = config.Settings{} })

	r := newRouter(auth.NewSessionStore())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"POST", "/api/tunnels/1/systemd", http.StatusServiceUnavailable},
		{"DELETE", "/api/tunnels/1/systemd", http.StatusServiceUnavailable},
		{"POST", "/api/tunnels/1/activate-systemd", http.StatusServiceUnavailable},
		{"DELETE", "/api/tunnels/1/deactivate-systemd", http.StatusServiceUnavailable},
		{"POST", "/api/tunnels/1/deactivate-systemd", http.StatusMethodNotAllowed},
		{"POST", "/api/tunnels/1/start", http.StatusServiceUnavailable},
		{"POST", "/api/tunnels/1/stop", http.StatusServiceUnavailable},
		{"POST", "/api/tunnels/1/restart", http.StatusServiceUnavailable},
		{"DELETE", "/api/tunnels/cleanup-temp/6ff42ae2-765d-4adf-8112-31c55c1551ef", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}
