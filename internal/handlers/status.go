package handlers

import (
	"context"
	"net/http"

	"github.com/IYouKnow/TunnelUI/internal/status"
)

// StatusReporter produces the dashboard summary.
type StatusReporter interface {
	Get(ctx context.Context) status.Report
}

// Status is set from main.go during init.
var Status StatusReporter

func GetStatus(w http.ResponseWriter, r *http.Request) {
	if Status == nil {
		writeJSON(w, http.StatusOK, status.Report{UpToDate: true})
		return
	}
	writeJSON(w, http.StatusOK, Status.Get(r.Context()))
}
