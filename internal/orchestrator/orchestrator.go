// Package orchestrator coordinates the tunnel lifecycle across the three
// places tunnel state lives: the database, the files under the cloudflared
// home, and Cloudflare itself (remote tunnel objects and DNS records).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/cfapi"
	"github.com/IYouKnow/TunnelUI/internal/crypto"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
	"github.com/IYouKnow/TunnelUI/internal/tunnelfs"
)

// TunnelCLI is the subset of the cloudflared command line used here.
type TunnelCLI interface {
	Create(ctx context.Context, certPath, name string) (string, error)
	RouteDNS(ctx context.Context, certPath, tunnel, hostname string) error
	Delete(ctx context.Context, certPath, tunnelID string) error
	HasTunnelNamed(ctx context.Context, certPath, name string) (bool, error)
}

// Supervisor keeps tunnel processes running under systemd.
type Supervisor interface {
	Start(ctx context.Context, tunnelID string) error
	Stop(ctx context.Context, tunnelID string) error
	Restart(ctx context.Context, tunnelID string) error
	IsActive(ctx context.Context, tunnelID string) bool
	Enable(ctx context.Context, tunnelID string) error
	Disable(ctx context.Context, tunnelID string) error
	DaemonReload(ctx context.Context) error
	KillProcesses(ctx context.Context, tunnelID string) error
	Journal(ctx context.Context, tunnelID string, lines int) (string, error)
	FollowJournal(tunnelID string, lines int, onChunk procrun.ChunkFunc) (*procrun.Handle, error)

	StageUnit(tunnelID, user, configPath string) (string, error)
	InstallUnit(tunnelID, user, configPath string) (string, error)
	PromoteStagedUnit(tunnelID, staged string) (string, error)
	StagedUnitPath(tunnelID string) string
	RemoveStagedUnit(tunnelID string) error
	RemoveUnit(tunnelID string) error
}

// DNSManager finds and removes records in one zone.
type DNSManager interface {
	List(ctx context.Context, hostname, recordType string) ([]cfapi.DNSRecord, error)
	Delete(ctx context.Context, recordID string) error
}

// DNSFactory binds a DNSManager to a zone and API token.
type DNSFactory func(zoneID, apiToken string) DNSManager

// CloudflareDNS returns a DNSFactory backed by the REST API at baseURL.
func CloudflareDNS(baseURL string) DNSFactory {
	return func(zoneID, apiToken string) DNSManager {
		return cfapi.NewClient(baseURL, apiToken).Records(zoneID)
	}
}

var (
	ErrNotFound        = errors.New("tunnel not found")
	ErrAccountNotFound = errors.New("account not found")
)

// ValidationError is a request that was rejected before any side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// RemoteError is a failed cloudflared, systemd or Cloudflare API call.
// Details carries the raw output for the operator.
type RemoteError struct {
	Msg     string
	Details string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

func remote(msg string, err error, details string) error {
	if details == "" && err != nil {
		details = err.Error()
	}
	return &RemoteError{Msg: msg, Details: details, Err: err}
}

type Options struct {
	CLI         TunnelCLI
	Supervisor  Supervisor
	DNS         DNSFactory
	Layout      tunnelfs.Layout
	ServiceUser string
	PendingTTL  time.Duration

	// Async runs trailing best-effort work. Defaults to a new goroutine.
	Async func(func())
	// Now defaults to time.Now.
	Now func() time.Time
}

type Orchestrator struct {
	cli         TunnelCLI
	sup         Supervisor
	dns         DNSFactory
	fs          tunnelfs.Layout
	serviceUser string
	pending     *pendingStore
	async       func(func())
	now         func() time.Time
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		cli:         opts.CLI,
		sup:         opts.Supervisor,
		dns:         opts.DNS,
		fs:          opts.Layout,
		serviceUser: opts.ServiceUser,
		async:       opts.Async,
		now:         opts.Now,
	}
	if o.async == nil {
		o.async = func(f func()) { go f() }
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.serviceUser == "" {
		o.serviceUser = "root"
	}
	ttl := opts.PendingTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	o.pending = newPendingStore(ttl, o.now)
	return o
}

// Layout exposes the filesystem layout for handlers that only read it.
func (o *Orchestrator) Layout() tunnelfs.Layout { return o.fs }

func (o *Orchestrator) loadTunnel(id uint) (*database.Tunnel, *database.Account, error) {
	t, err := database.GetTunnel(id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	acc, err := database.GetAccount(t.AccountID)
	if err != nil {
		if database.IsNotFound(err) {
			return t, nil, ErrAccountNotFound
		}
		return t, nil, err
	}
	return t, acc, nil
}

func (o *Orchestrator) loadAccount(id uint) (*database.Account, error) {
	acc, err := database.GetAccount(id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// accountToken returns the decrypted API token of an account.
func accountToken(acc *database.Account) (string, error) {
	if acc.APIToken == "" {
		return "", nil
	}
	return crypto.OpenToken(acc.APIToken)
}
