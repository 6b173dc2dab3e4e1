package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/crypto"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/logutil"
	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
	"github.com/IYouKnow/TunnelUI/internal/validate"
)

type accountResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	APIToken    string `json:"api_token"`
	HasAPIToken bool   `json:"has_api_token"`
	HasCert     bool   `json:"has_cert"`
	CreatedAt   string `json:"created_at"`
}

func accountToResponse(acc database.Account) accountResponse {
	resp := accountResponse{
		ID:          acc.ID,
		Name:        acc.Name,
		Description: acc.Description,
		HasAPIToken: acc.APIToken != "",
		CreatedAt:   formatTimestamp(acc.CreatedAt),
	}
	if acc.APIToken != "" {
		if token, err := crypto.OpenToken(acc.APIToken); err == nil {
			resp.APIToken = crypto.MaskToken(token)
		} else {
			log.Printf("[accounts] decrypt token of %s: %v", logutil.SanitizeForLog(acc.Name), err)
		}
	}
	if orch := orchestrator.Get(); orch != nil {
		resp.HasCert = orch.Layout().HasCert(acc.Name)
	}
	return resp
}

type accountRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	APIToken    string `json:"api_token"`
}

// check validates the request. A masked token echoed back by the UI
// means "unchanged" and skips token validation.
func (req *accountRequest) check(r *http.Request) (int, string) {
	req.Name = strings.TrimSpace(req.Name)
	req.APIToken = strings.TrimSpace(req.APIToken)
	if err := validate.AccountName(req.Name); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	if crypto.IsMaskedToken(req.APIToken) {
		return 0, ""
	}
	if err := validate.APIToken(req.APIToken); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	if req.APIToken != "" && config.Cfg.ValidateAPIToken {
		if reason := checkTokenLive(r.Context(), req.APIToken); reason != "" {
			return http.StatusBadRequest, reason
		}
	}
	return 0, ""
}

func ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := database.ListAccounts()
	if err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error fetching accounts", err.Error())
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, accountToResponse(acc))
	}
	writeJSON(w, http.StatusOK, out)
}

func CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body accountRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if crypto.IsMaskedToken(body.APIToken) {
		body.APIToken = ""
	}
	if status, msg := body.check(r); status != 0 {
		writeError(w, status, msg)
		return
	}
	if _, err := database.GetAccountByName(body.Name); err == nil {
		writeError(w, http.StatusConflict, "An account with this name already exists")
		return
	}

	enc, err := crypto.SealToken(body.APIToken)
	if err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to encrypt API token", err.Error())
		return
	}
	acc := database.Account{Name: body.Name, Description: body.Description, APIToken: enc}
	if err := database.DB.Create(&acc).Error; err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error adding account", err.Error())
		return
	}
	log.Printf("[accounts] created %s", logutil.SanitizeForLog(acc.Name))
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "id": acc.ID})
}

func UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	acc, err := database.GetAccount(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}
	var body accountRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if status, msg := body.check(r); status != 0 {
		writeError(w, status, msg)
		return
	}
	if body.Name != acc.Name {
		// The name is the certificate directory; existing tunnels would
		// lose their files.
		if n, err := countAccountTunnels(acc.ID); err == nil && n > 0 {
			writeError(w, http.StatusConflict, "Cannot rename an account that has tunnels")
			return
		}
		if other, err := database.GetAccountByName(body.Name); err == nil && other.ID != acc.ID {
			writeError(w, http.StatusConflict, "An account with this name already exists")
			return
		}
	}

	updates := map[string]interface{}{
		"name":        body.Name,
		"description": body.Description,
	}
	if !crypto.IsMaskedToken(body.APIToken) {
		enc, err := crypto.SealToken(body.APIToken)
		if err != nil {
			writeErrorDetails(w, http.StatusInternalServerError, "Failed to encrypt API token", err.Error())
			return
		}
		updates["api_token"] = enc
	}
	if err := database.DB.Model(acc).Updates(updates).Error; err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error editing account", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteAccount refuses while domains or tunnels still reference the
// account.
func DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	acc, err := database.GetAccount(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}
	domains, tunnels, err := database.AccountDependents(acc.ID)
	if err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error checking account usage", err.Error())
		return
	}
	if domains > 0 || tunnels > 0 {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   fmt.Sprintf("Account is in use by %d domain(s) and %d tunnel(s). Remove them first.", domains, tunnels),
			"domains": domains,
			"tunnels": tunnels,
		})
		return
	}
	if err := database.DB.Delete(&database.Account{}, acc.ID).Error; err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error deleting account", err.Error())
		return
	}
	log.Printf("[accounts] deleted %s", logutil.SanitizeForLog(acc.Name))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func countAccountTunnels(accountID uint) (int64, error) {
	_, tunnels, err := database.AccountDependents(accountID)
	return tunnels, err
}
