package systemd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/procrun"
)

const commandTimeout = 30 * time.Second

// Supervisor drives systemd for tunnel units. Units are rendered into
// StageDir first and then copied into SystemDir.
type Supervisor struct {
	runner    *procrun.Runner
	SystemDir string
	StageDir  string

	// Binaries are overridable so tests can point them at scripts.
	Systemctl  string
	Journalctl string
	Pkill      string
}

func NewSupervisor(runner *procrun.Runner, systemDir, stageDir string) *Supervisor {
	return &Supervisor{
		runner:     runner,
		SystemDir:  systemDir,
		StageDir:   stageDir,
		Systemctl:  "systemctl",
		Journalctl: "journalctl",
		Pkill:      "pkill",
	}
}

func (s *Supervisor) systemctl(ctx context.Context, args ...string) (procrun.Result, error) {
	return s.runner.Run(ctx, procrun.Cmd{Name: s.Systemctl, Args: args, Timeout: commandTimeout})
}

func (s *Supervisor) Start(ctx context.Context, tunnelID string) error {
	_, err := s.systemctl(ctx, "start", UnitName(tunnelID))
	return err
}

func (s *Supervisor) Stop(ctx context.Context, tunnelID string) error {
	_, err := s.systemctl(ctx, "stop", UnitName(tunnelID))
	return err
}

func (s *Supervisor) Restart(ctx context.Context, tunnelID string) error {
	_, err := s.systemctl(ctx, "restart", UnitName(tunnelID))
	return err
}

// IsActive asks systemd for the unit's current state. Any failure to
// answer counts as inactive.
func (s *Supervisor) IsActive(ctx context.Context, tunnelID string) bool {
	res, err := s.systemctl(ctx, "is-active", UnitName(tunnelID))
	if err != nil {
		return false
	}
	return strings.TrimSpace(res.Stdout) == "active"
}

// Enable enables the unit and starts it now.
func (s *Supervisor) Enable(ctx context.Context, tunnelID string) error {
	_, err := s.systemctl(ctx, "enable", "--now", UnitName(tunnelID))
	return err
}

// Disable disables the unit and stops it now.
func (s *Supervisor) Disable(ctx context.Context, tunnelID string) error {
	_, err := s.systemctl(ctx, "disable", "--now", UnitName(tunnelID))
	return err
}

func (s *Supervisor) DaemonReload(ctx context.Context) error {
	_, err := s.systemctl(ctx, "daemon-reload")
	return err
}

// Journal returns the last lines of the unit's journal.
func (s *Supervisor) Journal(ctx context.Context, tunnelID string, lines int) (string, error) {
	res, err := s.runner.Run(ctx, procrun.Cmd{
		Name:    s.Journalctl,
		Args:    []string{"-u", UnitName(tunnelID), "-n", strconv.Itoa(lines), "--no-pager"},
		Timeout: commandTimeout,
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// FollowJournal streams new journal lines until the handle is killed.
func (s *Supervisor) FollowJournal(tunnelID string, lines int, onChunk procrun.ChunkFunc) (*procrun.Handle, error) {
	return s.runner.Start(procrun.Cmd{
		Name: s.Journalctl,
		Args: []string{"-u", UnitName(tunnelID), "-n", strconv.Itoa(lines), "-f", "--no-pager"},
	}, onChunk)
}

// KillProcesses kills raw cloudflared processes started for tunnelID.
// pkill exits 1 when nothing matched, which is not an error here.
func (s *Supervisor) KillProcesses(ctx context.Context, tunnelID string) error {
	_, err := s.runner.Run(ctx, procrun.Cmd{
		Name:    s.Pkill,
		Args:    []string{"-f", "cloudflared.*" + tunnelID},
		Timeout: commandTimeout,
	})
	if ee, ok := procrun.AsExitError(err); ok && ee.ExitCode == 1 {
		return nil
	}
	return err
}

func (s *Supervisor) StagedUnitPath(tunnelID string) string {
	return filepath.Join(s.StageDir, UnitName(tunnelID))
}

func (s *Supervisor) UnitPath(tunnelID string) string {
	return filepath.Join(s.SystemDir, UnitName(tunnelID))
}

// StageUnit renders the unit into the stage directory only.
func (s *Supervisor) StageUnit(tunnelID, user, configPath string) (string, error) {
	if err := os.MkdirAll(s.StageDir, 0755); err != nil {
		return "", fmt.Errorf("create unit stage dir: %w", err)
	}
	path := s.StagedUnitPath(tunnelID)
	if err := os.WriteFile(path, []byte(GenerateUnit(tunnelID, user, configPath)), 0644); err != nil {
		return "", fmt.Errorf("write staged unit: %w", err)
	}
	return path, nil
}

// InstallUnit stages the unit and copies it into the system unit
// directory. A daemon-reload is still required afterwards.
func (s *Supervisor) InstallUnit(tunnelID, user, configPath string) (string, error) {
	staged, err := s.StageUnit(tunnelID, user, configPath)
	if err != nil {
		return "", err
	}
	return s.PromoteStagedUnit(tunnelID, staged)
}

// PromoteStagedUnit copies an already staged unit into SystemDir.
func (s *Supervisor) PromoteStagedUnit(tunnelID, staged string) (string, error) {
	data, err := os.ReadFile(staged)
	if err != nil {
		return "", fmt.Errorf("read staged unit: %w", err)
	}
	dst := s.UnitPath(tunnelID)
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("install unit: %w", err)
	}
	return dst, nil
}

func (s *Supervisor) RemoveStagedUnit(tunnelID string) error {
	return removeIfExists(s.StagedUnitPath(tunnelID))
}

// RemoveUnit deletes both the staged and the installed unit file.
func (s *Supervisor) RemoveUnit(tunnelID string) error {
	return errors.Join(
		removeIfExists(s.StagedUnitPath(tunnelID)),
		removeIfExists(s.UnitPath(tunnelID)),
	)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
