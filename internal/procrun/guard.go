package procrun

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Guard admits at most one holder at a time. Callers that lose the race
// are turned away immediately instead of queueing.
type Guard struct {
	sem *semaphore.Weighted
}

func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// TryAcquire returns a release func and true when the slot was free. The
// release func is safe to call more than once, so it can be deferred
// alongside an explicit early release.
func (g *Guard) TryAcquire() (func(), bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { g.sem.Release(1) }) }, true
}

// Busy reports whether the slot is currently held.
func (g *Guard) Busy() bool {
	if g.sem.TryAcquire(1) {
		g.sem.Release(1)
		return false
	}
	return true
}
