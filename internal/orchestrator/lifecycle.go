package orchestrator

import (
	"context"
	"log"

	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/logutil"
	"github.com/IYouKnow/TunnelUI/internal/metrics"
	"golang.org/x/sync/errgroup"
)

func (o *Orchestrator) Start(ctx context.Context, id uint) (err error) {
	defer func() { metrics.TunnelOperations.WithLabelValues("start", outcome(err)).Inc() }()

	t, _, err := o.loadTunnel(id)
	if err != nil {
		return err
	}
	if err := o.sup.Start(ctx, t.CloudflareID); err != nil {
		return remote("Failed to start tunnel", err, "")
	}
	now := o.now()
	return database.SetTunnelState(t.ID, database.TunnelRunning, &now, now)
}

func (o *Orchestrator) Stop(ctx context.Context, id uint) (err error) {
	defer func() { metrics.TunnelOperations.WithLabelValues("stop", outcome(err)).Inc() }()

	t, _, err := o.loadTunnel(id)
	if err != nil {
		return err
	}
	if err := o.sup.Stop(ctx, t.CloudflareID); err != nil {
		return remote("Failed to stop tunnel", err, "")
	}
	return database.SetTunnelState(t.ID, database.TunnelStopped, nil, o.now())
}

// Restart issues a restart and then asks systemd whether the unit came
// up, since systemctl can succeed while the process fails right away.
func (o *Orchestrator) Restart(ctx context.Context, id uint) (status string, err error) {
	defer func() { metrics.TunnelOperations.WithLabelValues("restart", outcome(err)).Inc() }()

	t, _, err := o.loadTunnel(id)
	if err != nil {
		return "", err
	}
	if err := o.sup.Restart(ctx, t.CloudflareID); err != nil {
		return "", remote("Failed to restart tunnel", err, "")
	}
	now := o.now()
	if o.sup.IsActive(ctx, t.CloudflareID) {
		return database.TunnelRunning, database.SetTunnelState(t.ID, database.TunnelRunning, &now, now)
	}
	return database.TunnelStopped, database.SetTunnelState(t.ID, database.TunnelStopped, nil, now)
}

// Status queries systemd and refreshes the cached status when it differs.
func (o *Orchestrator) Status(ctx context.Context, id uint) (string, error) {
	t, _, err := o.loadTunnel(id)
	if err != nil {
		return "", err
	}
	return o.refreshStatus(ctx, t)
}

func (o *Orchestrator) refreshStatus(ctx context.Context, t *database.Tunnel) (string, error) {
	status := database.TunnelStopped
	if o.sup.IsActive(ctx, t.CloudflareID) {
		status = database.TunnelRunning
	}
	if status == t.Status {
		return status, nil
	}
	now := o.now()
	uptime := t.UptimeStartedAt
	if status == database.TunnelRunning && uptime == nil {
		uptime = &now
	}
	if status == database.TunnelStopped {
		uptime = nil
	}
	return status, database.SetTunnelState(t.ID, status, uptime, now)
}

// SyncStatuses refreshes the cached status of every tunnel and returns
// how many are running.
func (o *Orchestrator) SyncStatuses(ctx context.Context) (int, error) {
	tunnels, err := database.ListTunnels()
	if err != nil {
		return 0, err
	}
	running := 0
	for i := range tunnels {
		status, err := o.refreshStatus(ctx, &tunnels[i])
		if err != nil {
			log.Printf("[status-sync] %s: %v", tunnels[i].CloudflareID, err)
			continue
		}
		if status == database.TunnelRunning {
			running++
		}
	}
	metrics.ActiveTunnels.Set(float64(running))
	return running, nil
}

// CheckName looks for a tunnel name in the database first and then in
// the account's remote tunnel list when a certificate is available.
func (o *Orchestrator) CheckName(ctx context.Context, name string, accountID uint) (bool, string, error) {
	exists, err := database.TunnelNameExists(name, accountID)
	if err != nil {
		return false, "", err
	}
	if exists {
		return true, "A tunnel with this name already exists in this account", nil
	}
	acc, err := o.loadAccount(accountID)
	if err != nil {
		return false, "", err
	}
	if !o.fs.HasCert(acc.Name) {
		return false, "", nil
	}
	remoteExists, err := o.cli.HasTunnelNamed(ctx, o.fs.CertPath(acc.Name), name)
	if err != nil {
		log.Printf("[orchestrator] tunnel list for %s: %v", logutil.SanitizeForLog(acc.Name), err)
		return false, "", nil
	}
	if remoteExists {
		return true, "A tunnel with this name already exists in Cloudflare", nil
	}
	return false, "", nil
}

// Shutdown stops every known unit and kills raw processes of temporary
// tunnels. Individual failures are logged and do not stop the others.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	tunnels, err := database.ListTunnels()
	if err != nil {
		log.Printf("[shutdown] list tunnels: %v", err)
		return
	}
	var g errgroup.Group
	for _, t := range tunnels {
		g.Go(func() error {
			if err := o.sup.Stop(ctx, t.CloudflareID); err != nil {
				log.Printf("[shutdown] stop %s: %v", t.CloudflareID, err)
			}
			return nil
		})
		if t.IsTemporary {
			g.Go(func() error {
				if err := o.sup.KillProcesses(ctx, t.CloudflareID); err != nil {
					log.Printf("[shutdown] kill %s: %v", t.CloudflareID, err)
				}
				return nil
			})
		}
	}
	g.Wait()
	log.Printf("[shutdown] stopped %d tunnel(s)", len(tunnels))
}
