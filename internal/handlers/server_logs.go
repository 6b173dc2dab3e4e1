package handlers

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/IYouKnow/TunnelUI/internal/logging"
)

const (
	defaultServerLogLines = 200
	maxServerLogLines     = 5000
)

// componentTag matches the bracketed prefixes the panel logs with.
var componentTag = regexp.MustCompile(`^[a-z][a-z0-9-]{0,31}$`)

// GetServerLogs returns the tail of the panel log, optionally narrowed to
// one component with ?component=orchestrator.
func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultServerLogLines
	if q := r.URL.Query().Get("lines"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = min(n, maxServerLogLines)
	}
	component := r.URL.Query().Get("component")
	if component != "" && !componentTag.MatchString(component) {
		writeError(w, http.StatusBadRequest, "Invalid component")
		return
	}

	content, err := logging.ReadTail(lines, component)
	if err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to read server logs", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}

func ClearServerLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to clear server logs", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
