package orchestrator

import (
	"context"
	"os"

	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
	"github.com/IYouKnow/TunnelUI/internal/systemd"
)

const journalLines = 200

// Logs returns the unit name and the tail of its journal.
func (o *Orchestrator) Logs(ctx context.Context, id uint) (string, string, error) {
	t, _, err := o.loadTunnel(id)
	if err != nil {
		return "", "", err
	}
	unit := systemd.UnitName(t.CloudflareID)
	logs, err := o.sup.Journal(ctx, t.CloudflareID, journalLines)
	if err != nil {
		return unit, "", remote("Failed to read tunnel logs", err, "")
	}
	return unit, logs, nil
}

// FollowLogs streams the journal of a tunnel's unit until the returned
// handle is killed.
func (o *Orchestrator) FollowLogs(id uint, lines int, onChunk procrun.ChunkFunc) (*procrun.Handle, error) {
	t, _, err := o.loadTunnel(id)
	if err != nil {
		return nil, err
	}
	return o.sup.FollowJournal(t.CloudflareID, lines, onChunk)
}

func (o *Orchestrator) Health(ctx context.Context, id uint) (string, bool, error) {
	t, _, err := o.loadTunnel(id)
	if err != nil {
		return "", false, err
	}
	return systemd.UnitName(t.CloudflareID), o.sup.IsActive(ctx, t.CloudflareID), nil
}

func (o *Orchestrator) configPathFor(id uint) (*database.Tunnel, string, error) {
	t, acc, err := o.loadTunnel(id)
	if err != nil {
		return nil, "", err
	}
	return t, o.fs.ConfigPath(acc.Name, t.CloudflareID), nil
}

// GenerateUnit renders the tunnel's unit into the stage directory without
// touching systemd.
func (o *Orchestrator) GenerateUnit(id uint) (string, error) {
	t, configPath, err := o.configPathFor(id)
	if err != nil {
		return "", err
	}
	path, err := o.sup.StageUnit(t.CloudflareID, o.serviceUser, configPath)
	if err != nil {
		return "", remote("Failed to generate unit file", err, "")
	}
	return path, nil
}

func (o *Orchestrator) RemoveStagedUnit(id uint) error {
	t, _, err := o.loadTunnel(id)
	if err != nil {
		return err
	}
	if err := o.sup.RemoveStagedUnit(t.CloudflareID); err != nil {
		return remote("Failed to remove unit file", err, "")
	}
	return nil
}

// ActivateUnit installs the staged unit (staging it first if needed),
// reloads systemd and enables the unit with --now.
func (o *Orchestrator) ActivateUnit(ctx context.Context, id uint) error {
	t, configPath, err := o.configPathFor(id)
	if err != nil {
		return err
	}
	staged := o.sup.StagedUnitPath(t.CloudflareID)
	if _, err := os.Stat(staged); err != nil {
		if staged, err = o.sup.StageUnit(t.CloudflareID, o.serviceUser, configPath); err != nil {
			return remote("Failed to generate unit file", err, "")
		}
	}
	if _, err := o.sup.PromoteStagedUnit(t.CloudflareID, staged); err != nil {
		return remote("Failed to install unit file", err, "")
	}
	if err := o.sup.DaemonReload(ctx); err != nil {
		return remote("Failed to reload systemd", err, "")
	}
	if err := o.sup.Enable(ctx, t.CloudflareID); err != nil {
		return remote("Failed to enable unit", err, "")
	}
	now := o.now()
	return database.SetTunnelState(t.ID, database.TunnelRunning, &now, now)
}

// DeactivateUnit disables the unit with --now and removes its files.
func (o *Orchestrator) DeactivateUnit(ctx context.Context, id uint) error {
	t, _, err := o.loadTunnel(id)
	if err != nil {
		return err
	}
	if err := o.sup.Disable(ctx, t.CloudflareID); err != nil {
		return remote("Failed to disable unit", err, "")
	}
	if err := o.sup.RemoveUnit(t.CloudflareID); err != nil {
		return remote("Failed to remove unit file", err, "")
	}
	if err := o.sup.DaemonReload(ctx); err != nil {
		return remote("Failed to reload systemd", err, "")
	}
	return database.SetTunnelState(t.ID, database.TunnelStopped, nil, o.now())
}
