package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/cloudflared"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/logutil"
	"github.com/IYouKnow/TunnelUI/internal/metrics"
	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
	"github.com/IYouKnow/TunnelUI/internal/tunnelfs"
	"github.com/IYouKnow/TunnelUI/internal/validate"
)

// CloudflaredTool is the part of the cloudflared wrapper the package
// management endpoints use.
type CloudflaredTool interface {
	Which() (string, bool)
	PackageStatus(ctx context.Context) cloudflared.PackageStatus
	Install(ctx context.Context) (procrun.Result, error)
	Login(timeout time.Duration, onExit cloudflared.ExitFunc) (string, string, error)
}

// Cloudflared is set from main.go during init.
var Cloudflared CloudflaredTool

// InstallGuard admits one install or update at a time.
var InstallGuard = procrun.NewGuard()

func tunnelLayout() tunnelfs.Layout {
	if orch := orchestrator.Get(); orch != nil {
		return orch.Layout()
	}
	return tunnelfs.New(config.Cfg.CloudflaredHome)
}

func InstallCloudflared(w http.ResponseWriter, r *http.Request) {
	runInstall(w, r, "install", "Installation already in progress.")
}

// UpdateCloudflared reruns the install pipeline; dpkg upgrades in place.
func UpdateCloudflared(w http.ResponseWriter, r *http.Request) {
	runInstall(w, r, "update", "Another install/update is in progress.")
}

func runInstall(w http.ResponseWriter, r *http.Request, op, busyMsg string) {
	if Cloudflared == nil {
		writeError(w, http.StatusServiceUnavailable, "cloudflared wrapper not initialized")
		return
	}
	release, ok := InstallGuard.TryAcquire()
	if !ok {
		writeError(w, http.StatusConflict, busyMsg)
		return
	}
	defer release()
	metrics.InstallInFlight.Inc()
	defer metrics.InstallInFlight.Dec()

	log.Printf("[install] cloudflared %s started", op)
	// A client giving up does not abort dpkg halfway.
	res, err := Cloudflared.Install(context.WithoutCancel(r.Context()))
	if err != nil {
		log.Printf("[install] cloudflared %s failed: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  err.Error(),
			"stdout": res.Stdout,
			"stderr": res.Stderr,
		})
		return
	}
	log.Printf("[install] cloudflared %s finished", op)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stdout":  res.Stdout,
		"stderr":  res.Stderr,
	})
}

func GetPackageStatus(w http.ResponseWriter, r *http.Request) {
	if Cloudflared == nil {
		writeJSON(w, http.StatusOK, cloudflared.PackageStatus{})
		return
	}
	writeJSON(w, http.StatusOK, Cloudflared.PackageStatus(r.Context()))
}

// CloudflaredLogin starts `cloudflared tunnel login` and answers with the
// authorization URL. The certificate is moved into the account
// directory once the process exits.
func CloudflaredLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.AccountName(body.Name); err != nil {
		writeError(w, http.StatusBadRequest, "Account name is required and cannot contain spaces.")
		return
	}
	if Cloudflared == nil {
		writeError(w, http.StatusServiceUnavailable, "cloudflared wrapper not initialized")
		return
	}

	layout := tunnelLayout()
	name := body.Name
	url, output, err := Cloudflared.Login(config.Cfg.LoginTimeout, func(res procrun.Result, err error) {
		if _, statErr := os.Stat(layout.LoginCertPath()); statErr != nil {
			log.Printf("[login] %s: no certificate produced (exit %d)", logutil.SanitizeForLog(name), res.ExitCode)
			return
		}
		dst, err := layout.AdoptLoginCert(name)
		if err != nil {
			log.Printf("[login] %s: %v", logutil.SanitizeForLog(name), err)
			return
		}
		log.Printf("[login] certificate for %s stored at %s", logutil.SanitizeForLog(name), dst)
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"url": url, "output": output})
	case errors.Is(err, cloudflared.ErrLoginTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "Timeout obtaining login URL", "output": output})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error(), "output": output})
	}
}

func GetCertStatus(w http.ResponseWriter, r *http.Request) {
	layout := tunnelLayout()
	path := layout.LoginCertPath()
	if name := r.URL.Query().Get("name"); name != "" {
		if err := validate.AccountName(name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		path = layout.CertPath(name)
	}
	fi, err := os.Stat(path)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exists": true, "mtime": fi.ModTime().UTC()})
}
