package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeErrorDetails(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func parseID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// requireOrchestrator writes 503 when no orchestrator is configured.
func requireOrchestrator(w http.ResponseWriter) *orchestrator.Orchestrator {
	orch := orchestrator.Get()
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "Tunnel orchestrator not initialized")
	}
	return orch
}

// writeOrchestratorError maps orchestrator errors onto HTTP responses.
// fallback is the message used for unexpected failures.
func writeOrchestratorError(w http.ResponseWriter, err error, fallback string) {
	var (
		ve *orchestrator.ValidationError
		re *orchestrator.RemoteError
		ce *orchestrator.ConflictError
	)
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, "Tunnel not found")
	case errors.Is(err, orchestrator.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Msg)
	case errors.As(err, &ce):
		writeConflict(w, ce.Conflict)
	case errors.As(err, &re):
		writeErrorDetails(w, http.StatusInternalServerError, re.Msg, re.Details)
	default:
		log.Printf("[api] %s: %v", fallback, err)
		writeErrorDetails(w, http.StatusInternalServerError, fallback, err.Error())
	}
}

// writeConflict renders the 409 payload the UI uses to drive its
// confirmation dialogs.
func writeConflict(w http.ResponseWriter, c orchestrator.Conflict) {
	body := map[string]interface{}{"message": c.Message()}
	switch c := c.(type) {
	case orchestrator.NameConflict:
		body["error"] = c.Message()
		body["nameExists"] = true
	case orchestrator.RecordConflict:
		body["dnsRecordExists"] = true
		body["tunnelId"] = c.TunnelID
		body["domain"] = c.Hostname
		if c.OldDomain != "" {
			body["oldDomain"] = c.OldDomain
			body["newDomain"] = c.Hostname
		}
	case orchestrator.OldDomainConflict:
		body["dnsRecordExists"] = false
		body["oldDomainHasDns"] = true
		body["tunnelId"] = c.TunnelID
		body["oldDomain"] = c.OldDomain
		body["newDomain"] = c.NewDomain
	}
	writeJSON(w, http.StatusConflict, body)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
