package handlers

import (
	"net/http"

	"github.com/IYouKnow/TunnelUI/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	cliStatus := "missing"
	if Cloudflared != nil {
		if _, ok := Cloudflared.Which(); ok {
			cliStatus = "installed"
		}
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      status,
		"database":    dbStatus,
		"cloudflared": cliStatus,
	})
}
