package orchestrator

import "sync"

var (
	current *Orchestrator
	mu      sync.RWMutex
)

// Set installs the process-wide orchestrator used by the HTTP handlers.
func Set(o *Orchestrator) {
	mu.Lock()
	defer mu.Unlock()
	current = o
}

func Get() *Orchestrator {
	mu.RLock()
	defer mu.RUnlock()
	return current
}
