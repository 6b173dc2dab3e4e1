package handlers

import (
	"errors"
	"net/http"
	"os"
)

// GenerateUnit writes the unit file to the local stage directory only.
func GenerateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	path, err := orch.GenerateUnit(id)
	if err != nil {
		writeOrchestratorError(w, err, "Error creating systemd unit file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "unitPath": path})
}

func RemoveUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	err := orch.RemoveStagedUnit(id)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "Unit file not found.")
		return
	}
	if err != nil {
		writeOrchestratorError(w, err, "Error removing systemd unit file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func ActivateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	if err := orch.ActivateUnit(r.Context(), id); err != nil {
		writeOrchestratorError(w, err, "Error activating systemd service")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Systemd service activated and started successfully.",
	})
}

func DeactivateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	if err := orch.DeactivateUnit(r.Context(), id); err != nil {
		writeOrchestratorError(w, err, "Error deactivating systemd service")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Systemd service deactivated, stopped and unit file removed.",
	})
}
