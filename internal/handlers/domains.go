package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/crypto"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/validate"
)

type domainRequest struct {
	AccountID uint   `json:"account_id"`
	Domain    string `json:"domain"`
	ZoneID    string `json:"zone_id"`
}

// check validates the request and returns the HTTP status to reject
// with, or 0.
func (req *domainRequest) check(r *http.Request, exceptID uint) (int, string) {
	req.Domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(req.Domain), "."))
	req.ZoneID = strings.TrimSpace(req.ZoneID)
	if req.AccountID == 0 || req.Domain == "" {
		return http.StatusBadRequest, "account_id and domain are required"
	}
	if err := validate.Domain(req.Domain); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	if err := validate.ZoneID(req.ZoneID); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	acc, err := database.GetAccount(req.AccountID)
	if err != nil {
		return http.StatusNotFound, "Account not found"
	}
	exists, err := database.DomainExists(req.Domain, exceptID)
	if err != nil {
		return http.StatusInternalServerError, "Error checking domain"
	}
	if exists {
		return http.StatusConflict, "Domain already exists"
	}

	if req.ZoneID != "" && config.Cfg.ValidateZoneID && acc.APIToken != "" {
		if token, err := crypto.OpenToken(acc.APIToken); err == nil && token != "" {
			if reason := checkZoneLive(r.Context(), req.ZoneID, token); reason != "" {
				return http.StatusBadRequest, reason
			}
		}
	}
	return 0, ""
}

func ListDomains(w http.ResponseWriter, r *http.Request) {
	var accountID uint
	if q := r.URL.Query().Get("account_id"); q != "" {
		n, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid account_id")
			return
		}
		accountID = uint(n)
	}
	domains, err := database.ListDomains(accountID)
	if err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error fetching domains", err.Error())
		return
	}
	if domains == nil {
		domains = []database.Domain{}
	}
	writeJSON(w, http.StatusOK, domains)
}

func CreateDomain(w http.ResponseWriter, r *http.Request) {
	var body domainRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if status, msg := body.check(r, 0); status != 0 {
		writeError(w, status, msg)
		return
	}
	d := database.Domain{AccountID: body.AccountID, Domain: body.Domain, ZoneID: body.ZoneID}
	if err := database.DB.Create(&d).Error; err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error adding domain", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "id": d.ID})
}

func UpdateDomain(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid domain ID")
		return
	}
	d, err := database.GetDomain(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Domain not found")
		return
	}
	var body domainRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if status, msg := body.check(r, d.ID); status != 0 {
		writeError(w, status, msg)
		return
	}
	if err := database.DB.Model(d).Updates(map[string]interface{}{
		"account_id": body.AccountID,
		"domain":     body.Domain,
		"zone_id":    body.ZoneID,
	}).Error; err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error editing domain", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func DeleteDomain(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid domain ID")
		return
	}
	res := database.DB.Delete(&database.Domain{}, id)
	if res.Error != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Error removing domain", res.Error.Error())
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "Domain not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
