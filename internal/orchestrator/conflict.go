package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// Conflict is the outcome of a create or update that needs an explicit
// decision from the operator. The concrete types are NameConflict,
// RecordConflict and OldDomainConflict.
type Conflict interface {
	Message() string
	conflict()
}

// NameConflict: the account already has a remote tunnel with that name.
type NameConflict struct {
	Name string
}

func (c NameConflict) Message() string {
	return fmt.Sprintf("A tunnel named %q already exists in this Cloudflare account", c.Name)
}

// RecordConflict: the target hostname already has an A, AAAA or CNAME
// record. The tunnel exists remotely and is identified by TunnelID; the
// caller resubmits with force and a replace decision.
type RecordConflict struct {
	TunnelID  string
	Hostname  string
	OldDomain string
}

func (c RecordConflict) Message() string {
	return fmt.Sprintf("A DNS record for %s already exists. Replace it with a record for this tunnel, or keep the existing record?", c.Hostname)
}

// OldDomainConflict: an update moved the tunnel to a new hostname and the
// previous hostname still has a DNS record.
type OldDomainConflict struct {
	TunnelID  string
	OldDomain string
	NewDomain string
}

func (c OldDomainConflict) Message() string {
	return fmt.Sprintf("The previous hostname %s still has a DNS record. Remove it?", c.OldDomain)
}

func (NameConflict) conflict()      {}
func (RecordConflict) conflict()    {}
func (OldDomainConflict) conflict() {}

// ConflictError carries a Conflict through the error return.
type ConflictError struct {
	Conflict Conflict
}

func (e *ConflictError) Error() string { return e.Conflict.Message() }

// Pending is a conflict awaiting resolution. For creates it remembers the
// request so the forced replay can be checked against it.
type Pending struct {
	TunnelID  string
	AccountID uint
	Hostname  string
	Conflict  Conflict
	ExpiresAt time.Time
}

type pendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]Pending
}

func newPendingStore(ttl time.Duration, now func() time.Time) *pendingStore {
	return &pendingStore{ttl: ttl, now: now, entries: make(map[string]Pending)}
}

func (s *pendingStore) put(p Pending) {
	p.ExpiresAt = s.now().Add(s.ttl)
	s.mu.Lock()
	s.entries[p.TunnelID] = p
	s.mu.Unlock()
}

// get returns a live entry; expired entries are left for takeExpired.
func (s *pendingStore) get(tunnelID string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[tunnelID]
	if !ok || s.now().After(p.ExpiresAt) {
		return Pending{}, false
	}
	return p, true
}

func (s *pendingStore) remove(tunnelID string) {
	s.mu.Lock()
	delete(s.entries, tunnelID)
	s.mu.Unlock()
}

// takeExpired removes and returns every expired entry.
func (s *pendingStore) takeExpired() []Pending {
	now := s.now()
	var out []Pending
	s.mu.Lock()
	for id, p := range s.entries {
		if now.After(p.ExpiresAt) {
			out = append(out, p)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
	return out
}

// PendingFor returns the unresolved conflict recorded for a tunnel, if any.
func (o *Orchestrator) PendingFor(tunnelID string) (Pending, bool) {
	return o.pending.get(tunnelID)
}
