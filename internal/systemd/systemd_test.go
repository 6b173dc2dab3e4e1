package systemd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IYouKnow/TunnelUI/internal/procrun"
)

const testID = "6ff42ae2-765d-4adf-8112-31c55c1551ef"

// fakeBin writes an executable script that appends its arguments to a
// log file and then runs body.
func fakeBin(t *testing.T, dir, name, body string) (path, argLog string) {
	t.Helper()
	argLog = filepath.Join(dir, name+".args")
	path = filepath.Join(dir, name)
	script := "#!/bin/sh\necho \"$@\" >> " + argLog + "\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
	return path, argLog
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func newTestSupervisor(t *testing.T) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewSupervisor(procrun.New(), filepath.Join(dir, "system"), filepath.Join(dir, "stage"))
	os.MkdirAll(s.SystemDir, 0755)
	return s, dir
}

func TestGenerateUnit(t *testing.T) {
	unit := GenerateUnit(testID, "tunnel", "/home/tunnel/.cloudflared/personal/config-"+testID+".yml")
	for _, want := range []string{
		"[Unit]",
		"After=network.target",
		"Type=simple",
		"User=tunnel",
		"ExecStart=/usr/bin/env cloudflared tunnel --config /home/tunnel/.cloudflared/personal/config-" + testID + ".yml run",
		"Restart=always",
		"RestartSec=5",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("unit missing %q:\n%s", want, unit)
		}
	}
	if UnitName(testID) != "cloudflared-tunnel@"+testID+".service" {
		t.Errorf("unexpected unit name %s", UnitName(testID))
	}
}

func TestInstallAndRemoveUnit(t *testing.T) {
	s, _ := newTestSupervisor(t)

	path, err := s.InstallUnit(testID, "root", "/cfg.yml")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if path != s.UnitPath(testID) {
		t.Errorf("unexpected path %s", path)
	}
	if _, err := os.Stat(s.StagedUnitPath(testID)); err != nil {
		t.Errorf("expected staged copy: %v", err)
	}

	if err := s.RemoveUnit(testID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveUnit(testID); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
}

func TestSystemctlCommands(t *testing.T) {
	s, dir := newTestSupervisor(t)
	var argLog string
	s.Systemctl, argLog = fakeBin(t, dir, "systemctl", `[ "$1" = "is-active" ] && echo active; exit 0`)

	ctx := context.Background()
	s.Start(ctx, testID)
	s.Stop(ctx, testID)
	s.Restart(ctx, testID)
	s.Enable(ctx, testID)
	s.Disable(ctx, testID)
	s.DaemonReload(ctx)
	if !s.IsActive(ctx, testID) {
		t.Error("expected unit to be reported active")
	}

	unit := UnitName(testID)
	want := []string{
		"start " + unit,
		"stop " + unit,
		"restart " + unit,
		"enable --now " + unit,
		"disable --now " + unit,
		"daemon-reload",
		"is-active " + unit,
	}
	got := readArgs(t, argLog)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("unexpected invocations:\n got %v\nwant %v", got, want)
	}
}

func TestIsActive_Inactive(t *testing.T) {
	s, dir := newTestSupervisor(t)
	s.Systemctl, _ = fakeBin(t, dir, "systemctl", "echo inactive; exit 3")
	if s.IsActive(context.Background(), testID) {
		t.Error("expected inactive")
	}
}

func TestKillProcesses_NoMatchIsNotAnError(t *testing.T) {
	s, dir := newTestSupervisor(t)
	var argLog string
	s.Pkill, argLog = fakeBin(t, dir, "pkill", "exit 1")
	if err := s.KillProcesses(context.Background(), testID); err != nil {
		t.Fatalf("expected nil for no match, got %v", err)
	}
	if got := readArgs(t, argLog)[0]; got != "-f cloudflared.*"+testID {
		t.Errorf("unexpected pkill args %q", got)
	}

	s.Pkill, _ = fakeBin(t, dir, "pkill2", "exit 2")
	if err := s.KillProcesses(context.Background(), testID); err == nil {
		t.Error("expected error for pkill failure")
	}
}

func TestJournal(t *testing.T) {
	s, dir := newTestSupervisor(t)
	var argLog string
	s.Journalctl, argLog = fakeBin(t, dir, "journalctl", "echo 'INF Registered tunnel connection'")
	out, err := s.Journal(context.Background(), testID, 200)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if !strings.Contains(out, "Registered tunnel connection") {
		t.Errorf("unexpected journal output %q", out)
	}
	if got := readArgs(t, argLog)[0]; got != "-u "+UnitName(testID)+" -n 200 --no-pager" {
		t.Errorf("unexpected journalctl args %q", got)
	}
}
