package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/logutil"
	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
	"github.com/go-chi/chi/v5"
)

func ListTunnels(w http.ResponseWriter, r *http.Request) {
	tunnels, err := database.ListTunnels()
	if err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error fetching tunnels", err.Error())
		return
	}
	if tunnels == nil {
		tunnels = []database.Tunnel{}
	}
	writeJSON(w, http.StatusOK, tunnels)
}

func GetTunnel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	t, err := database.GetTunnel(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Tunnel not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type createTunnelRequest struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Service     string `json:"service"`
	AccountID   uint   `json:"account_id"`
	NoTLSVerify bool   `json:"noTLSVerify"`
	IsTemporary bool   `json:"isTemporary"`
	Force       bool   `json:"force"`
	TunnelID    string `json:"tunnelId"`
	ReplaceDNS  bool   `json:"replaceDns"`
}

func CreateTunnel(w http.ResponseWriter, r *http.Request) {
	var body createTunnelRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Name == "" || body.Domain == "" || body.Service == "" || body.AccountID == 0 {
		writeError(w, http.StatusBadRequest, "Required fields: name, domain, service, account_id.")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	log.Printf("[api] create tunnel %s -> %s (force=%v replaceDns=%v temporary=%v)",
		logutil.SanitizeForLog(body.Name), logutil.SanitizeForLog(body.Domain), body.Force, body.ReplaceDNS, body.IsTemporary)

	t, err := orch.Create(r.Context(), orchestrator.CreateRequest{
		AccountID:   body.AccountID,
		Name:        body.Name,
		Hostname:    body.Domain,
		Service:     body.Service,
		NoTLSVerify: body.NoTLSVerify,
		IsTemporary: body.IsTemporary,
		Force:       body.Force,
		TunnelID:    body.TunnelID,
		ReplaceDNS:  body.ReplaceDNS,
	})
	if err != nil {
		writeOrchestratorError(w, err, "Error creating tunnel")
		return
	}
	resp := map[string]interface{}{"success": true, "tunnelId": t.CloudflareID, "id": t.ID}
	if t.DNSWarning != "" {
		resp["dnsWarning"] = t.DNSWarning
	}
	writeJSON(w, http.StatusCreated, resp)
}

type updateTunnelRequest struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Service     string `json:"service"`
	AccountID   uint   `json:"account_id"`
	NoTLSVerify bool   `json:"noTLSVerify"`
	Force       bool   `json:"force"`
	ReplaceDNS  bool   `json:"replaceDns"`
}

func UpdateTunnel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	var body updateTunnelRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Name == "" || body.Domain == "" || body.Service == "" {
		writeError(w, http.StatusBadRequest, "Required fields: name, domain, service.")
		return
	}
	if body.AccountID != 0 {
		if t, err := database.GetTunnel(id); err == nil && t.AccountID != body.AccountID {
			writeError(w, http.StatusBadRequest, "A tunnel cannot be moved to another account")
			return
		}
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}

	t, err := orch.Update(r.Context(), orchestrator.UpdateRequest{
		ID:          id,
		Name:        body.Name,
		Hostname:    body.Domain,
		Service:     body.Service,
		NoTLSVerify: body.NoTLSVerify,
		Force:       body.Force,
		ReplaceDNS:  body.ReplaceDNS,
	})
	if err != nil {
		writeOrchestratorError(w, err, "Error updating tunnel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "tunnel": t})
}

func CheckTunnelName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	accountID, err := strconv.ParseUint(r.URL.Query().Get("account_id"), 10, 64)
	if name == "" || err != nil || accountID == 0 {
		writeError(w, http.StatusBadRequest, "Tunnel name and account ID are required.")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	exists, msg, err := orch.CheckName(r.Context(), name, uint(accountID))
	if err != nil {
		writeOrchestratorError(w, err, "Error checking tunnel name")
		return
	}
	if !exists {
		writeJSON(w, http.StatusOK, map[string]bool{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exists": true, "message": msg})
}

func StartTunnel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	if err := orch.Start(r.Context(), id); err != nil {
		writeOrchestratorError(w, err, "Error starting tunnel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func StopTunnel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	if err := orch.Stop(r.Context(), id); err != nil {
		writeOrchestratorError(w, err, "Error stopping tunnel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func RestartTunnel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	status, err := orch.Restart(r.Context(), id)
	if err != nil {
		writeOrchestratorError(w, err, "Error restarting tunnel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": status})
}

func GetTunnelStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	status, err := orch.Status(r.Context(), id)
	if err != nil {
		writeOrchestratorError(w, err, "Error querying tunnel status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func GetTunnelLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	unit, logs, err := orch.Logs(r.Context(), id)
	if err != nil {
		writeOrchestratorError(w, err, "Error fetching logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"unit": unit, "logs": logs})
}

func GetTunnelHealth(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	unit, active, err := orch.Health(r.Context(), id)
	if err != nil {
		writeOrchestratorError(w, err, "Error checking health")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"unit": unit, "isActive": active})
}

func DeleteTunnel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid tunnel ID")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	res, err := orch.Delete(r.Context(), id)
	if err != nil {
		writeOrchestratorError(w, err, "Error deleting tunnel")
		return
	}
	resp := map[string]interface{}{"success": true, "dnsRecordRemoved": res.DNSRecordRemoved}
	if res.DNSRecordWarning != "" {
		resp["dnsRecordWarning"] = res.DNSRecordWarning
	}
	writeJSON(w, http.StatusOK, resp)
}

// CleanupPendingTunnel discards the remote tunnel left by a create whose
// DNS conflict the operator cancelled.
func CleanupPendingTunnel(w http.ResponseWriter, r *http.Request) {
	tunnelID := chi.URLParam(r, "tunnelId")
	if tunnelID == "" {
		writeError(w, http.StatusBadRequest, "Tunnel ID required")
		return
	}
	orch := requireOrchestrator(w)
	if orch == nil {
		return
	}
	err := orch.CleanupPending(r.Context(), tunnelID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, orchestrator.ErrPersisted):
		writeError(w, http.StatusConflict, "Tunnel is registered; delete it instead")
	default:
		writeOrchestratorError(w, err, "Error cleaning up tunnel")
	}
}
