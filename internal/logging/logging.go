// Package logging tees the panel's log output into a file so operators
// can read it back from the server-logs page.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/IYouKnow/TunnelUI/internal/config"
)

var (
	mu   sync.Mutex
	sink *os.File
)

// Path is LOG_PATH when set, otherwise tunnelui.log under DATA_PATH.
func Path() string {
	if config.Cfg.LogPath != "" {
		return config.Cfg.LogPath
	}
	return filepath.Join(config.Cfg.DataPath, "tunnelui.log")
}

// Init starts writing the standard logger to stdout and Path. A file that
// cannot be opened leaves logging on stdout only.
func Init() {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("[logging] log directory unavailable, stdout only: %v", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("[logging] cannot open %s, stdout only: %v", path, err)
		return
	}

	mu.Lock()
	sink = f
	mu.Unlock()
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("[logging] writing panel log to %s", path)
}

// Close detaches the file and goes back to stdout.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if sink == nil {
		return
	}
	log.SetOutput(os.Stdout)
	sink.Close()
	sink = nil
}

// ReadTail returns up to n trailing lines of the panel log. A non-empty
// component keeps only lines tagged "[component]", e.g. "orchestrator" or
// "status-sync". A missing file reads as empty.
func ReadTail(n int, component string) (string, error) {
	if n <= 0 {
		return "", nil
	}
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(Path())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open panel log: %w", err)
	}
	defer f.Close()

	tag := ""
	if component != "" {
		tag = "[" + component + "]"
	}
	// ring holds the last n matches; next is the slot to overwrite.
	ring := make([]string, 0, n)
	next := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if tag != "" && !strings.Contains(line, tag) {
			continue
		}
		if len(ring) < n {
			ring = append(ring, line)
			continue
		}
		ring[next] = line
		next = (next + 1) % n
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("scan panel log: %w", err)
	}
	ordered := append(ring[next:len(ring):len(ring)], ring[:next]...)
	return strings.Join(ordered, "\n"), nil
}

// Clear empties the panel log in place so the open file keeps working.
func Clear() error {
	mu.Lock()
	defer mu.Unlock()

	if sink == nil {
		return os.Truncate(Path(), 0)
	}
	if err := sink.Truncate(0); err != nil {
		return fmt.Errorf("truncate panel log: %w", err)
	}
	if _, err := sink.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind panel log: %w", err)
	}
	return nil
}
