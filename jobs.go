package main

import (
	"context"
	"log"

	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
)

// syncTunnelStatuses refreshes the cached tunnel states from systemd and
// discards DNS-conflict creations nobody came back to.
func syncTunnelStatuses(ctx context.Context) {
	orch := orchestrator.Get()
	if orch == nil {
		return
	}
	running, err := orch.SyncStatuses(ctx)
	if err != nil {
		log.Printf("[status-sync] %v", err)
		return
	}
	if swept := orch.SweepPending(ctx); swept > 0 {
		log.Printf("[status-sync] discarded %d abandoned pending tunnel(s)", swept)
	}
	log.Printf("[status-sync] %d tunnel(s) running", running)
}
