// Package systemd keeps tunnel processes supervised: it renders one unit
// per tunnel and drives systemctl, journalctl and pkill.
package systemd

import (
	"fmt"
	"strings"
)

const unitPrefix = "cloudflared-tunnel@"

// UnitName is the unit keyed by the tunnel's Cloudflare identifier.
func UnitName(tunnelID string) string {
	return unitPrefix + tunnelID + ".service"
}

// GenerateUnit renders the always-restart unit that runs one tunnel from
// its config file as user.
func GenerateUnit(tunnelID, user, configPath string) string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=Cloudflared Tunnel %s\n", tunnelID)
	b.WriteString("After=network.target\n\n")
	b.WriteString("[Service]\n")
	b.WriteString("Type=simple\n")
	fmt.Fprintf(&b, "User=%s\n", user)
	fmt.Fprintf(&b, "ExecStart=/usr/bin/env cloudflared tunnel --config %s run\n", configPath)
	b.WriteString("Restart=always\n")
	b.WriteString("RestartSec=5\n\n")
	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	return b.String()
}
