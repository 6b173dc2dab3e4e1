package orchestrator

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"github.com/IYouKnow/TunnelUI/internal/cloudflared"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/logutil"
	"github.com/IYouKnow/TunnelUI/internal/metrics"
	"github.com/google/uuid"
)

type CreateRequest struct {
	AccountID   uint
	Name        string
	Hostname    string
	Service     string
	NoTLSVerify bool
	IsTemporary bool

	// Second phase of a RecordConflict: Force with the TunnelID returned
	// by the first attempt, and whether the existing record is replaced.
	Force      bool
	TunnelID   string
	ReplaceDNS bool
}

func (r *CreateRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Hostname = strings.ToLower(strings.TrimSpace(r.Hostname))
	r.Service = strings.TrimSpace(r.Service)
	switch {
	case r.AccountID == 0:
		return invalid("Account is required")
	case r.Name == "":
		return invalid("Tunnel name is required")
	case strings.ContainsAny(r.Name, " \t\n"):
		return invalid("Tunnel name cannot contain spaces")
	case r.Hostname == "":
		return invalid("Domain is required")
	case r.Service == "":
		return invalid("Service is required")
	}
	return nil
}

// Create registers a tunnel with Cloudflare, writes its ingress config,
// routes DNS to it and records it as stopped. Unit installation follows
// asynchronously.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (t *database.Tunnel, err error) {
	defer func() { metrics.TunnelOperations.WithLabelValues("create", outcome(err)).Inc() }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	acc, err := o.loadAccount(req.AccountID)
	if err != nil {
		return nil, err
	}
	cert := o.fs.CertPath(acc.Name)
	if !o.fs.HasCert(acc.Name) {
		return nil, invalid("Account %s has no certificate. Log in with cloudflared first", acc.Name)
	}

	forced := req.Force && req.TunnelID != ""
	var tunnelID string
	if forced {
		tunnelID, err = o.resumeCreate(acc, req)
		if err != nil {
			return nil, err
		}
	} else {
		tunnelID, err = o.cli.Create(ctx, cert, req.Name)
		if errors.Is(err, cloudflared.ErrNameConflict) {
			return nil, &ConflictError{Conflict: NameConflict{Name: req.Name}}
		}
		if err != nil {
			return nil, remote("Failed to create tunnel", err, cloudflared.OutputOf(err))
		}
		log.Printf("[orchestrator] created tunnel %s (%s)", logutil.SanitizeForLog(req.Name), tunnelID)
	}

	configPath, err := o.fs.WriteConfig(acc.Name, tunnelID, req.Hostname, req.Service, req.NoTLSVerify)
	if err != nil {
		return nil, remote("Failed to write tunnel configuration", err, "")
	}

	if forced && req.ReplaceDNS {
		if _, err := o.purgeRecords(ctx, req.Hostname, acc.ID); err != nil {
			return nil, err
		}
	}

	var dnsWarning string
	err = o.cli.RouteDNS(ctx, cert, tunnelID, req.Hostname)
	switch {
	case err == nil:
	case errors.Is(err, cloudflared.ErrRecordExists) && !forced:
		c := RecordConflict{TunnelID: tunnelID, Hostname: req.Hostname}
		o.pending.put(Pending{TunnelID: tunnelID, AccountID: acc.ID, Hostname: req.Hostname, Conflict: c})
		return nil, &ConflictError{Conflict: c}
	case errors.Is(err, cloudflared.ErrRecordExists) && !req.ReplaceDNS:
		dnsWarning = WarnRecordKept
	default:
		if !forced {
			o.abandon(acc.Name, cert, tunnelID)
		}
		return nil, remote("Failed to route DNS to tunnel", err, cloudflared.OutputOf(err))
	}

	t = &database.Tunnel{
		CloudflareID: tunnelID,
		Name:         req.Name,
		Domain:       req.Hostname,
		Service:      req.Service,
		Status:       database.TunnelStopped,
		AccountID:    acc.ID,
		DNSWarning:   dnsWarning,
		NoTLSVerify:  req.NoTLSVerify,
		IsTemporary:  req.IsTemporary,
	}
	if err := database.DB.Create(t).Error; err != nil {
		return nil, err
	}
	o.pending.remove(tunnelID)

	created := *t
	o.async(func() { o.superviseNew(created, configPath) })
	return t, nil
}

// resumeCreate checks the tunnel identifier replayed by a forced create.
// Either a pending conflict or the credentials file written by the first
// attempt must vouch for it.
func (o *Orchestrator) resumeCreate(acc *database.Account, req CreateRequest) (string, error) {
	id, err := uuid.Parse(req.TunnelID)
	if err != nil {
		return "", invalid("Invalid tunnel ID %q", req.TunnelID)
	}
	tunnelID := id.String()

	if _, err := database.GetTunnelByCloudflareID(tunnelID); err == nil {
		return "", invalid("Tunnel %s is already registered", tunnelID)
	}
	if p, ok := o.pending.get(tunnelID); ok {
		if p.AccountID != acc.ID {
			return "", invalid("Tunnel %s belongs to a different account", tunnelID)
		}
		return tunnelID, nil
	}
	if _, err := os.Stat(o.fs.CredentialsPath(acc.Name, tunnelID)); err != nil {
		return "", invalid("No pending tunnel %s for account %s. Start the creation again", tunnelID, acc.Name)
	}
	return tunnelID, nil
}

// abandon rolls back a freshly created remote tunnel whose DNS routing
// failed outright.
func (o *Orchestrator) abandon(account, cert, tunnelID string) {
	o.async(func() {
		if err := o.cli.Delete(context.Background(), cert, tunnelID); err != nil {
			log.Printf("[orchestrator] rollback delete of %s failed: %v", tunnelID, err)
		}
		if err := o.fs.RemoveTunnelFiles(account, tunnelID); err != nil {
			log.Printf("[orchestrator] rollback file cleanup of %s failed: %v", tunnelID, err)
		}
	})
}

// superviseNew installs the unit for a just-persisted tunnel. Temporary
// tunnels are started right away. Failures are logged only; the tunnel
// row already exists.
func (o *Orchestrator) superviseNew(t database.Tunnel, configPath string) {
	ctx := context.Background()
	if _, err := o.sup.InstallUnit(t.CloudflareID, o.serviceUser, configPath); err != nil {
		log.Printf("[orchestrator] install unit for %s: %v", t.CloudflareID, err)
		return
	}
	if err := o.sup.DaemonReload(ctx); err != nil {
		log.Printf("[orchestrator] daemon-reload after installing %s: %v", t.CloudflareID, err)
	}
	if !t.IsTemporary {
		return
	}
	if err := o.sup.Start(ctx, t.CloudflareID); err != nil {
		log.Printf("[orchestrator] start temporary tunnel %s: %v", t.CloudflareID, err)
		return
	}
	now := o.now()
	if err := database.SetTunnelState(t.ID, database.TunnelRunning, &now, now); err != nil {
		log.Printf("[orchestrator] record start of %s: %v", t.CloudflareID, err)
	}
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return "conflict"
	}
	return metrics.Result(err)
}
