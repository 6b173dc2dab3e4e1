package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IYouKnow/TunnelUI/internal/config"
)

func TestValidateAPIToken(t *testing.T) {
	setupTestDB(t)

	cases := []struct {
		name  string
		body  string
		code  int
		valid bool
	}{
		{"missing", `{}`, http.StatusBadRequest, false},
		{"too short", `{"token":"abc"}`, http.StatusOK, false},
		{"well formed", `{"token":"` + testToken + `"}`, http.StatusOK, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ValidateAPIToken(w, buildRequest(t, "POST", "/api/validate/api-token", tc.body, nil))
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, w.Code)
			}
			resp := parseResponse(t, w)
			if resp["valid"] != tc.valid {
				t.Errorf("valid = %v, body %v", resp["valid"], resp)
			}
		})
	}
}

func TestValidateAPIToken_LiveCheck(t *testing.T) {
	setupTestDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"errors":[{"code":1000,"message":"Invalid API Token"}]}`))
	}))
	defer srv.Close()
	config.Cfg.CloudflareAPIURL = srv.URL
	config.Cfg.ValidateAPIToken = true

	w := httptest.NewRecorder()
	ValidateAPIToken(w, buildRequest(t, "POST", "/api/validate/api-token", `{"token":"`+testToken+`"}`, nil))
	resp := parseResponse(t, w)
	if resp["valid"] != false || resp["error"] == nil {
		t.Errorf("expected rejection, got %v", resp)
	}
}

func TestValidateZoneID(t *testing.T) {
	setupTestDB(t)

	cases := []struct {
		name  string
		body  string
		code  int
		valid bool
	}{
		{"missing", `{"apiToken":"x"}`, http.StatusBadRequest, false},
		{"wrong length", `{"zoneId":"abc"}`, http.StatusOK, false},
		{"well formed", `{"zoneId":"` + testZoneID + `"}`, http.StatusOK, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ValidateZoneID(w, buildRequest(t, "POST", "/api/validate/zone-id", tc.body, nil))
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, w.Code)
			}
			if resp := parseResponse(t, w); resp["valid"] != tc.valid {
				t.Errorf("valid = %v, body %v", resp["valid"], resp)
			}
		})
	}
}
