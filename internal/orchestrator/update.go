package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/IYouKnow/TunnelUI/internal/cloudflared"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/logutil"
	"github.com/IYouKnow/TunnelUI/internal/metrics"
)

type UpdateRequest struct {
	ID          uint
	Name        string
	Hostname    string
	Service     string
	NoTLSVerify bool

	Force      bool
	ReplaceDNS bool
}

// Update changes a tunnel's label, hostname or target service. A
// hostname change is routed first; an existing record on the new
// hostname or a leftover record on the old one is returned as a conflict
// unless the call is forced.
func (o *Orchestrator) Update(ctx context.Context, req UpdateRequest) (t *database.Tunnel, err error) {
	defer func() { metrics.TunnelOperations.WithLabelValues("update", outcome(err)).Inc() }()

	t, acc, err := o.loadTunnel(req.ID)
	if err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Hostname = strings.ToLower(strings.TrimSpace(req.Hostname))
	req.Service = strings.TrimSpace(req.Service)
	if req.Name == "" {
		req.Name = t.Name
	}
	if req.Hostname == "" {
		return nil, invalid("Domain is required")
	}
	if req.Service == "" {
		return nil, invalid("Service is required")
	}

	cert := o.fs.CertPath(acc.Name)
	oldHost := t.Domain
	dnsWarning := t.DNSWarning

	if req.Hostname != oldHost {
		if !req.Force {
			err := o.cli.RouteDNS(ctx, cert, t.CloudflareID, req.Hostname)
			if errors.Is(err, cloudflared.ErrRecordExists) {
				c := RecordConflict{TunnelID: t.CloudflareID, Hostname: req.Hostname, OldDomain: oldHost}
				o.pending.put(Pending{TunnelID: t.CloudflareID, AccountID: acc.ID, Hostname: req.Hostname, Conflict: c})
				return nil, &ConflictError{Conflict: c}
			}
			if err != nil {
				return nil, remote("Failed to route DNS to tunnel", err, cloudflared.OutputOf(err))
			}
			if o.hasRecords(ctx, oldHost, acc.ID) {
				c := OldDomainConflict{TunnelID: t.CloudflareID, OldDomain: oldHost, NewDomain: req.Hostname}
				o.pending.put(Pending{TunnelID: t.CloudflareID, AccountID: acc.ID, Hostname: req.Hostname, Conflict: c})
				return nil, &ConflictError{Conflict: c}
			}
			dnsWarning = ""
		} else {
			dnsWarning, err = o.forceRoute(ctx, cert, t, acc.ID, oldHost, req)
			if err != nil {
				return nil, err
			}
		}
	}

	if _, err := o.fs.WriteConfig(acc.Name, t.CloudflareID, req.Hostname, req.Service, req.NoTLSVerify); err != nil {
		return nil, remote("Failed to write tunnel configuration", err, "")
	}
	if err := database.DB.Model(t).Updates(map[string]interface{}{
		"name":          req.Name,
		"domain":        req.Hostname,
		"service":       req.Service,
		"no_tls_verify": req.NoTLSVerify,
		"dns_warning":   dnsWarning,
	}).Error; err != nil {
		return nil, err
	}
	o.pending.remove(t.CloudflareID)

	// The row already holds the new settings; only the restart is reported.
	if _, err := o.Restart(ctx, t.ID); err != nil {
		log.Printf("[orchestrator] restart after update of %s: %v", t.CloudflareID, err)
		var re *RemoteError
		if errors.As(err, &re) {
			return nil, re
		}
		return nil, remote("Failed to restart tunnel", err, "")
	}
	return database.GetTunnel(t.ID)
}

// forceRoute applies the operator's decision on a hostname change. With
// ReplaceDNS the old hostname's records are removed before routing, and a
// record already sitting on the new hostname is replaced.
func (o *Orchestrator) forceRoute(ctx context.Context, cert string, t *database.Tunnel, accountID uint, oldHost string, req UpdateRequest) (string, error) {
	if req.ReplaceDNS {
		if _, err := o.purgeRecords(ctx, oldHost, accountID); err != nil {
			log.Printf("[orchestrator] removing records of old hostname %s: %v", logutil.SanitizeForLog(oldHost), err)
		}
	}

	err := o.cli.RouteDNS(ctx, cert, t.CloudflareID, req.Hostname)
	if errors.Is(err, cloudflared.ErrRecordExists) {
		if !req.ReplaceDNS {
			return WarnRecordKept, nil
		}
		if _, err := o.purgeRecords(ctx, req.Hostname, accountID); err != nil {
			return "", err
		}
		err = o.cli.RouteDNS(ctx, cert, t.CloudflareID, req.Hostname)
	}
	if err != nil {
		return "", remote("Failed to route DNS to tunnel", err, cloudflared.OutputOf(err))
	}
	return "", nil
}
