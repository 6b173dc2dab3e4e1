package cloudflared

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/procrun"
)

const (
	installTimeout = 10 * time.Minute
	releaseBaseURL = "https://github.com/cloudflare/cloudflared/releases/latest/download"
)

// debArch maps GOARCH to the suffix used by the published .deb files.
func debArch(goarch string) string {
	switch goarch {
	case "arm64":
		return "arm64"
	case "arm":
		return "arm"
	case "386":
		return "386"
	default:
		return "amd64"
	}
}

// InstallScript returns the shell pipeline that installs (or upgrades)
// the latest cloudflared .deb. dpkg failures fall back to apt's
// dependency fixer.
func InstallScript(goarch string, asRoot bool) string {
	sudo := "sudo "
	if asRoot {
		sudo = ""
	}
	deb := fmt.Sprintf("%s/cloudflared-linux-%s.deb", releaseBaseURL, debArch(goarch))
	steps := []string{
		sudo + "apt-get update",
		sudo + "apt-get install -y curl ca-certificates",
		"curl -fsSL --output /tmp/cloudflared.deb " + deb,
		"(" + sudo + "dpkg -i /tmp/cloudflared.deb || " + sudo + "apt-get install -f -y)",
		"rm -f /tmp/cloudflared.deb",
	}
	return strings.Join(steps, " && ")
}

// Install runs the install pipeline. Update uses the same pipeline since
// dpkg upgrades in place.
func (c *CLI) Install(ctx context.Context) (procrun.Result, error) {
	return c.runner.Run(ctx, procrun.Cmd{
		Name:    "sh",
		Args:    []string{"-c", InstallScript(runtime.GOARCH, os.Geteuid() == 0)},
		Env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		Timeout: installTimeout,
	})
}
