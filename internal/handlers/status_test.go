package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IYouKnow/TunnelUI/internal/status"
)

type fakeReporter struct{ report status.Report }

func (f fakeReporter) Get(ctx context.Context) status.Report { return f.report }

func TestGetStatus(t *testing.T) {
	setupTestDB(t)
	v, latest := "2024.2.1", "2024.3.0"
	Status = fakeReporter{report: status.Report{Installed: true, Version: &v, LatestVersion: &latest, ActiveTunnels: 2}}
	t.Cleanup(func() { Status = nil })

	w := httptest.NewRecorder()
	GetStatus(w, buildRequest(t, "GET", "/api/status", "", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := parseResponse(t, w)
	if resp["version"] != v || resp["latestVersion"] != latest || resp["activeTunnels"] != float64(2) || resp["upToDate"] != false {
		t.Errorf("unexpected status: %v", resp)
	}
}

func TestGetStatus_Unconfigured(t *testing.T) {
	setupTestDB(t)
	Status = nil

	w := httptest.NewRecorder()
	GetStatus(w, buildRequest(t, "GET", "/api/status", "", nil))
	resp := parseResponse(t, w)
	if resp["installed"] != false || resp["upToDate"] != true || resp["version"] != nil {
		t.Errorf("unexpected status: %v", resp)
	}
}
