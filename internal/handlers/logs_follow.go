package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
	"github.com/coder/websocket"
)

const followBuffer = 256

// FollowTunnelLogs streams `journalctl -f` output of a tunnel's unit over
// a websocket until either side goes away.
func FollowTunnelLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.Error(w, "Invalid tunnel ID", http.StatusBadRequest)
		return
	}
	lines := 100
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n >= 0 {
			lines = n
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[logs] accept websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	orch := orchestrator.Get()
	if orch == nil {
		conn.Close(4500, "Tunnel orchestrator not initialized")
		return
	}

	// Reads are ignored; CloseRead cancels ctx when the client leaves.
	ctx := conn.CloseRead(r.Context())

	chunks := make(chan string, followBuffer)
	h, err := orch.FollowLogs(id, lines, func(_ procrun.Stream, chunk string) {
		select {
		case chunks <- chunk:
		default:
			// Slow client: drop rather than block journalctl.
		}
	})
	if err != nil {
		log.Printf("[logs] follow tunnel %d: %v", id, err)
		conn.Close(4004, "Unable to follow logs")
		return
	}
	defer h.Kill()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Done():
			drain(ctx, conn, chunks)
			conn.Close(websocket.StatusNormalClosure, "journal ended")
			return
		case chunk := <-chunks:
			if err := conn.Write(ctx, websocket.MessageText, []byte(chunk)); err != nil {
				return
			}
		}
	}
}

func drain(ctx context.Context, conn *websocket.Conn, chunks <-chan string) {
	for {
		select {
		case chunk := <-chunks:
			if err := conn.Write(ctx, websocket.MessageText, []byte(chunk)); err != nil {
				return
			}
		default:
			return
		}
	}
}
