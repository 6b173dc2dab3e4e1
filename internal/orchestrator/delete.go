package orchestrator

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/metrics"
	"github.com/google/uuid"
)

type DeleteResult struct {
	DNSRecordRemoved bool   `json:"dnsRecordRemoved"`
	DNSRecordWarning string `json:"dnsRecordWarning,omitempty"`
}

// teardown is how a tunnel kind is dismantled. Temporary tunnels are
// expendable and cleaned up best-effort; regular tunnels must not leave a
// remote tunnel behind that the panel no longer shows.
type teardown interface {
	name() string
	run(ctx context.Context, o *Orchestrator, t *database.Tunnel, acc *database.Account) (DeleteResult, error)
}

type temporaryTeardown struct{}

type regularTeardown struct{}

func teardownFor(t *database.Tunnel) teardown {
	if t.IsTemporary {
		return temporaryTeardown{}
	}
	return regularTeardown{}
}

func (o *Orchestrator) Delete(ctx context.Context, id uint) (res DeleteResult, err error) {
	defer func() { metrics.TunnelOperations.WithLabelValues("delete", outcome(err)).Inc() }()

	t, acc, err := o.loadTunnel(id)
	if err != nil {
		return DeleteResult{}, err
	}
	strategy := teardownFor(t)
	log.Printf("[orchestrator] deleting %s tunnel %s", strategy.name(), t.CloudflareID)
	res, err = strategy.run(ctx, o, t, acc)
	if err != nil {
		return res, err
	}
	o.pending.remove(t.CloudflareID)
	return res, nil
}

func (temporaryTeardown) name() string { return "temporary" }

func (temporaryTeardown) run(ctx context.Context, o *Orchestrator, t *database.Tunnel, acc *database.Account) (DeleteResult, error) {
	id := t.CloudflareID
	if err := o.sup.KillProcesses(ctx, id); err != nil {
		log.Printf("[orchestrator] kill processes of %s: %v", id, err)
	}
	if err := o.sup.Disable(ctx, id); err != nil {
		log.Printf("[orchestrator] disable unit of %s: %v", id, err)
	}

	cert := o.fs.CertPath(acc.Name)
	o.async(func() {
		if err := o.cli.Delete(context.Background(), cert, id); err != nil {
			log.Printf("[orchestrator] remote delete of temporary tunnel %s: %v", id, err)
		}
	})

	if err := o.fs.RemoveTunnelFiles(acc.Name, id); err != nil {
		log.Printf("[orchestrator] remove files of %s: %v", id, err)
	}
	if err := o.sup.RemoveUnit(id); err != nil {
		log.Printf("[orchestrator] remove unit of %s: %v", id, err)
	}

	removed, warning := o.removeTunnelRecord(ctx, t.Domain)
	if err := database.DB.Delete(&database.Tunnel{}, t.ID).Error; err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{DNSRecordRemoved: removed, DNSRecordWarning: warning}, nil
}

func (regularTeardown) name() string { return "regular" }

func (regularTeardown) run(ctx context.Context, o *Orchestrator, t *database.Tunnel, acc *database.Account) (DeleteResult, error) {
	id := t.CloudflareID
	removed, warning := o.removeTunnelRecord(ctx, t.Domain)

	if err := o.sup.Disable(ctx, id); err != nil {
		log.Printf("[orchestrator] disable unit of %s: %v", id, err)
	}
	if err := o.sup.RemoveUnit(id); err != nil {
		log.Printf("[orchestrator] remove unit of %s: %v", id, err)
	}
	if err := o.fs.RemoveTunnelFiles(acc.Name, id); err != nil {
		log.Printf("[orchestrator] remove files of %s: %v", id, err)
	}

	if err := o.cli.Delete(ctx, o.fs.CertPath(acc.Name), id); err != nil {
		return DeleteResult{DNSRecordRemoved: removed, DNSRecordWarning: warning},
			remote("Failed to delete tunnel from Cloudflare", err, "")
	}
	if err := database.DB.Delete(&database.Tunnel{}, t.ID).Error; err != nil {
		return DeleteResult{}, err
	}
	if err := o.sup.DaemonReload(ctx); err != nil {
		log.Printf("[orchestrator] daemon-reload after deleting %s: %v", id, err)
	}
	return DeleteResult{DNSRecordRemoved: removed, DNSRecordWarning: warning}, nil
}

// ErrPersisted is returned when cleanup targets a tunnel that was saved.
var ErrPersisted = errors.New("tunnel is registered; delete it instead")

// CleanupPending discards a tunnel left behind by an abandoned conflict
// dialog: the remote tunnel, its config and its credentials.
func (o *Orchestrator) CleanupPending(ctx context.Context, tunnelID string) error {
	id, err := uuid.Parse(tunnelID)
	if err != nil {
		return invalid("Invalid tunnel ID %q", tunnelID)
	}
	tunnelID = id.String()
	if _, err := database.GetTunnelByCloudflareID(tunnelID); err == nil {
		return ErrPersisted
	}
	acc, err := o.pendingAccount(tunnelID)
	if err != nil {
		return err
	}
	o.discard(ctx, acc, tunnelID)
	return nil
}

// pendingAccount finds the account a pending tunnel was created under,
// falling back to the credentials file when the pending entry is gone.
func (o *Orchestrator) pendingAccount(tunnelID string) (*database.Account, error) {
	if p, ok := o.pending.get(tunnelID); ok {
		return o.loadAccount(p.AccountID)
	}
	accounts, err := database.ListAccounts()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if _, err := os.Stat(o.fs.CredentialsPath(accounts[i].Name, tunnelID)); err == nil {
			return &accounts[i], nil
		}
	}
	return nil, ErrNotFound
}

func (o *Orchestrator) discard(ctx context.Context, acc *database.Account, tunnelID string) {
	if err := o.cli.Delete(ctx, o.fs.CertPath(acc.Name), tunnelID); err != nil {
		log.Printf("[orchestrator] delete pending tunnel %s: %v", tunnelID, err)
	}
	if err := o.fs.RemoveTunnelFiles(acc.Name, tunnelID); err != nil {
		log.Printf("[orchestrator] remove files of pending tunnel %s: %v", tunnelID, err)
	}
	o.pending.remove(tunnelID)
}

// SweepPending discards create conflicts nobody resolved in time.
// Update conflicts only expire; their tunnel is still registered.
func (o *Orchestrator) SweepPending(ctx context.Context) int {
	swept := 0
	for _, p := range o.pending.takeExpired() {
		if _, err := database.GetTunnelByCloudflareID(p.TunnelID); err == nil {
			continue
		}
		acc, err := o.loadAccount(p.AccountID)
		if err != nil {
			continue
		}
		o.discard(ctx, acc, p.TunnelID)
		swept++
	}
	return swept
}
