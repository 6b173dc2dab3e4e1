package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/cfapi"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/validate"
)

const liveCheckTimeout = 10 * time.Second

// checkTokenLive asks Cloudflare whether token authenticates. It returns
// an operator-facing reason, or "" when the token is accepted.
func checkTokenLive(ctx context.Context, token string) string {
	ctx, cancel := context.WithTimeout(ctx, liveCheckTimeout)
	defer cancel()
	err := cfapi.NewClient(config.Cfg.CloudflareAPIURL, token).VerifyToken(ctx)
	var apiErr *cfapi.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, cfapi.ErrUnauthorized):
		return "Invalid API token - authentication failed"
	case errors.Is(err, cfapi.ErrForbidden):
		return "API token lacks required permissions"
	case errors.As(err, &apiErr):
		return "API token validation failed"
	default:
		return "Network error during API token validation"
	}
}

// checkZoneLive asks Cloudflare whether zoneID is reachable with token.
func checkZoneLive(ctx context.Context, zoneID, token string) string {
	ctx, cancel := context.WithTimeout(ctx, liveCheckTimeout)
	defer cancel()
	_, err := cfapi.NewClient(config.Cfg.CloudflareAPIURL, token).GetZone(ctx, zoneID)
	var apiErr *cfapi.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, cfapi.ErrNotFound):
		return "Zone ID not found"
	case errors.Is(err, cfapi.ErrUnauthorized):
		return "Invalid API token for zone validation"
	case errors.Is(err, cfapi.ErrForbidden):
		return "API token lacks permission to access this zone"
	case errors.As(err, &apiErr):
		return "Zone ID validation failed"
	default:
		return "Network error during zone ID validation"
	}
}

type validationResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func ValidateAPIToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil || strings.TrimSpace(body.Token) == "" {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "API token is required"})
		return
	}
	if err := validate.APIToken(body.Token); err != nil {
		writeJSON(w, http.StatusOK, validationResponse{Error: err.Error()})
		return
	}
	if config.Cfg.ValidateAPIToken {
		if reason := checkTokenLive(r.Context(), body.Token); reason != "" {
			writeJSON(w, http.StatusOK, validationResponse{Error: reason})
			return
		}
	}
	writeJSON(w, http.StatusOK, validationResponse{Valid: true})
}

func ValidateZoneID(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ZoneID   string `json:"zoneId"`
		APIToken string `json:"apiToken"`
	}
	if err := decodeBody(r, &body); err != nil || strings.TrimSpace(body.ZoneID) == "" {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "Zone ID is required"})
		return
	}
	if err := validate.ZoneID(body.ZoneID); err != nil {
		writeJSON(w, http.StatusOK, validationResponse{Error: err.Error()})
		return
	}
	if body.APIToken != "" && config.Cfg.ValidateZoneID {
		if reason := checkZoneLive(r.Context(), body.ZoneID, body.APIToken); reason != "" {
			writeJSON(w, http.StatusOK, validationResponse{Error: reason})
			return
		}
	}
	writeJSON(w, http.StatusOK, validationResponse{Valid: true})
}
