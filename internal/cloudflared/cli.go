// Package cloudflared wraps the cloudflared command line: tunnel
// create/route/delete/list, interactive login, and package install.
package cloudflared

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/cliparse"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
)

const (
	originCertEnv  = "TUNNEL_ORIGIN_CERT"
	commandTimeout = 2 * time.Minute
)

var (
	ErrNameConflict = errors.New("tunnel name already exists")
	ErrRecordExists = errors.New("dns record already exists for hostname")
	ErrNoTunnelID   = errors.New("tunnel id not found in cloudflared output")
	ErrLoginTimeout = errors.New("timed out waiting for login url")
	ErrLoginExited  = errors.New("cloudflared exited before printing a login url")
)

// OutputError attaches the raw CLI output to one of the sentinel errors
// above.
type OutputError struct {
	Err    error
	Output string
}

func (e *OutputError) Error() string { return e.Err.Error() }
func (e *OutputError) Unwrap() error { return e.Err }

// OutputOf returns whatever command output is attached to err.
func OutputOf(err error) string {
	var oe *OutputError
	if errors.As(err, &oe) {
		return oe.Output
	}
	if ee, ok := procrun.AsExitError(err); ok {
		return ee.Output()
	}
	return ""
}

type CLI struct {
	runner *procrun.Runner
	Bin    string
}

func New(runner *procrun.Runner, bin string) *CLI {
	if bin == "" {
		bin = "cloudflared"
	}
	return &CLI{runner: runner, Bin: bin}
}

func (c *CLI) run(ctx context.Context, certPath string, args ...string) (procrun.Result, error) {
	cmd := procrun.Cmd{Name: c.Bin, Args: args, Timeout: commandTimeout}
	if certPath != "" {
		cmd.Env = []string{originCertEnv + "=" + certPath}
	}
	return c.runner.Run(ctx, cmd)
}

// Create registers a new named tunnel and returns its identifier.
func (c *CLI) Create(ctx context.Context, certPath, name string) (string, error) {
	res, err := c.run(ctx, certPath, "tunnel", "--origincert", certPath, "create", name)
	out := res.Output()
	if cliparse.IsNameConflict(out) {
		return "", &OutputError{Err: ErrNameConflict, Output: out}
	}
	if err != nil {
		return "", err
	}
	id, ok := cliparse.TunnelID(out)
	if !ok {
		return "", &OutputError{Err: ErrNoTunnelID, Output: out}
	}
	return id, nil
}

// RouteDNS points hostname at the tunnel through a CNAME created by
// cloudflared itself. An existing record yields ErrRecordExists.
func (c *CLI) RouteDNS(ctx context.Context, certPath, tunnel, hostname string) error {
	res, err := c.run(ctx, certPath, "tunnel", "route", "dns", tunnel, hostname)
	if out := res.Output(); cliparse.IsDNSRecordExists(out) {
		return &OutputError{Err: ErrRecordExists, Output: out}
	}
	return err
}

// Delete force-deletes the remote tunnel object.
func (c *CLI) Delete(ctx context.Context, certPath, tunnelID string) error {
	_, err := c.run(ctx, certPath, "tunnel", "delete", "-f", tunnelID)
	return err
}

// HasTunnelNamed lists the account's remote tunnels and looks for an
// exact name match.
func (c *CLI) HasTunnelNamed(ctx context.Context, certPath, name string) (bool, error) {
	res, err := c.run(ctx, "", "tunnel", "list", "--origincert", certPath)
	if err != nil {
		return false, err
	}
	return cliparse.TunnelListHasName(res.Stdout, name), nil
}

// Which returns the resolved path of the binary, if any.
func (c *CLI) Which() (string, bool) {
	p, err := exec.LookPath(c.Bin)
	if err != nil {
		return "", false
	}
	return p, true
}

// Version returns the installed version, or "" when it cannot be read.
func (c *CLI) Version(ctx context.Context) string {
	res, err := c.runner.Run(ctx, procrun.Cmd{Name: c.Bin, Args: []string{"--version"}, Timeout: 10 * time.Second})
	if err != nil {
		return ""
	}
	return cliparse.Version(res.Output())
}

// PackageStatus reports how cloudflared is installed. The binary on PATH
// wins; otherwise the dpkg and apt package databases are consulted.
type PackageStatus struct {
	Installed bool   `json:"installed"`
	Path      string `json:"path,omitempty"`
	Info      string `json:"info,omitempty"`
}

func (c *CLI) PackageStatus(ctx context.Context) PackageStatus {
	if p, ok := c.Which(); ok {
		return PackageStatus{Installed: true, Path: p}
	}
	for _, script := range []string{
		"dpkg -l | grep -i cloudflared",
		"apt list --installed 2>/dev/null | grep -i cloudflared",
	} {
		res, err := c.runner.Run(ctx, procrun.Cmd{Name: "sh", Args: []string{"-c", script}, Timeout: 30 * time.Second})
		if err == nil && strings.TrimSpace(res.Stdout) != "" {
			return PackageStatus{Installed: true, Info: strings.TrimSpace(res.Stdout)}
		}
	}
	return PackageStatus{Installed: false}
}
