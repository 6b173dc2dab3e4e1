package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/cfapi"
	"github.com/IYouKnow/TunnelUI/internal/cloudflared"
	"github.com/IYouKnow/TunnelUI/internal/crypto"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
	"github.com/IYouKnow/TunnelUI/internal/tunnelfs"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testZoneID = "0123456789abcdef0123456789abcdef"
	testToken  = "valid_token_abcdefghijklmnop"
	tunnelA    = "6ff42ae2-765d-4adf-8112-31c55c1551ef"
	tunnelB    = "0f1d5a0a-2b4c-4d3e-9f60-7a8b9c0d1e2f"
)

// fakeZone is an in-memory DNS zone shared by the CLI fake (which routes)
// and the DNS manager fake (which lists and deletes).
type fakeZone struct {
	mu      sync.Mutex
	records map[string]cfapi.DNSRecord
	nextID  int
	listErr error
	deleted []string
}

func newFakeZone() *fakeZone {
	return &fakeZone{records: make(map[string]cfapi.DNSRecord)}
}

func (z *fakeZone) add(typ, name, content string) string {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.nextID++
	id := fmt.Sprintf("rec%d", z.nextID)
	z.records[id] = cfapi.DNSRecord{ID: id, Type: typ, Name: name, Content: content}
	return id
}

func (z *fakeZone) byName(name string) []cfapi.DNSRecord {
	z.mu.Lock()
	defer z.mu.Unlock()
	var out []cfapi.DNSRecord
	for _, r := range z.records {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

func (z *fakeZone) has(id string) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	_, ok := z.records[id]
	return ok
}

type fakeDNS struct {
	zone *fakeZone
}

func (d fakeDNS) List(ctx context.Context, hostname, recordType string) ([]cfapi.DNSRecord, error) {
	if d.zone.listErr != nil {
		return nil, d.zone.listErr
	}
	var out []cfapi.DNSRecord
	for _, r := range d.zone.byName(hostname) {
		if recordType == "" || r.Type == recordType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d fakeDNS) Delete(ctx context.Context, recordID string) error {
	d.zone.mu.Lock()
	defer d.zone.mu.Unlock()
	delete(d.zone.records, recordID)
	d.zone.deleted = append(d.zone.deleted, recordID)
	return nil
}

type fakeCLI struct {
	mu        sync.Mutex
	zone      *fakeZone
	nextIDs   []string
	created   []string
	deleted   []string
	createErr error
	routeErr  error
	deleteErr error
	remote    map[string]bool
}

func (c *fakeCLI) Create(ctx context.Context, certPath, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	id := c.nextIDs[0]
	c.nextIDs = c.nextIDs[1:]
	c.created = append(c.created, name)
	os.WriteFile(filepath.Join(filepath.Dir(certPath), id+".json"), []byte("{}"), 0600)
	return id, nil
}

func (c *fakeCLI) RouteDNS(ctx context.Context, certPath, tunnel, hostname string) error {
	if c.routeErr != nil {
		return c.routeErr
	}
	target := tunnel + ".cfargotunnel.com"
	for _, r := range c.zone.byName(hostname) {
		if routableTypes[r.Type] {
			if r.Content == target {
				return nil
			}
			return &cloudflared.OutputError{Err: cloudflared.ErrRecordExists, Output: "An A, AAAA, or CNAME record with that host already exists."}
		}
	}
	c.zone.add("CNAME", hostname, target)
	return nil
}

func (c *fakeCLI) Delete(ctx context.Context, certPath, tunnelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, tunnelID)
	return c.deleteErr
}

func (c *fakeCLI) HasTunnelNamed(ctx context.Context, certPath, name string) (bool, error) {
	return c.remote[name], nil
}

type fakeSupervisor struct {
	mu              sync.Mutex
	active          map[string]bool
	calls           []string
	installed       map[string]string
	restartComesUp  bool
	startErr        error
	restartErr      error
	stageDir        string
	killedProcesses []string
}

func newFakeSupervisor(stageDir string) *fakeSupervisor {
	return &fakeSupervisor{active: map[string]bool{}, installed: map[string]string{}, restartComesUp: true, stageDir: stageDir}
}

func (s *fakeSupervisor) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *fakeSupervisor) called(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (s *fakeSupervisor) Start(ctx context.Context, id string) error {
	s.record("start " + id)
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.active[id] = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSupervisor) Stop(ctx context.Context, id string) error {
	s.record("stop " + id)
	s.mu.Lock()
	s.active[id] = false
	s.mu.Unlock()
	return nil
}

func (s *fakeSupervisor) Restart(ctx context.Context, id string) error {
	s.record("restart " + id)
	if s.restartErr != nil {
		return s.restartErr
	}
	s.mu.Lock()
	s.active[id] = s.restartComesUp
	s.mu.Unlock()
	return nil
}

func (s *fakeSupervisor) IsActive(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func (s *fakeSupervisor) Enable(ctx context.Context, id string) error {
	s.record("enable " + id)
	s.mu.Lock()
	s.active[id] = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSupervisor) Disable(ctx context.Context, id string) error {
	s.record("disable " + id)
	s.mu.Lock()
	s.active[id] = false
	s.mu.Unlock()
	return nil
}

func (s *fakeSupervisor) DaemonReload(ctx context.Context) error {
	s.record("daemon-reload")
	return nil
}

func (s *fakeSupervisor) KillProcesses(ctx context.Context, id string) error {
	s.record("pkill " + id)
	return nil
}

func (s *fakeSupervisor) Journal(ctx context.Context, id string, lines int) (string, error) {
	return "INF Registered tunnel connection " + id, nil
}

func (s *fakeSupervisor) FollowJournal(id string, lines int, onChunk procrun.ChunkFunc) (*procrun.Handle, error) {
	return nil, errors.New("follow not supported by fake")
}

func (s *fakeSupervisor) StageUnit(id, user, configPath string) (string, error) {
	path := s.StagedUnitPath(id)
	os.MkdirAll(s.stageDir, 0755)
	return path, os.WriteFile(path, []byte(configPath), 0644)
}

func (s *fakeSupervisor) InstallUnit(id, user, configPath string) (string, error) {
	s.record("install " + id)
	s.mu.Lock()
	s.installed[id] = configPath
	s.mu.Unlock()
	return "/etc/systemd/system/" + id, nil
}

func (s *fakeSupervisor) PromoteStagedUnit(id, staged string) (string, error) {
	s.record("promote " + id)
	return "/etc/systemd/system/" + id, nil
}

func (s *fakeSupervisor) StagedUnitPath(id string) string {
	return filepath.Join(s.stageDir, id+".service")
}

func (s *fakeSupervisor) RemoveStagedUnit(id string) error {
	return os.Remove(s.StagedUnitPath(id))
}

func (s *fakeSupervisor) RemoveUnit(id string) error {
	s.record("remove-unit " + id)
	return nil
}

type fixture struct {
	o       *Orchestrator
	cli     *fakeCLI
	sup     *fakeSupervisor
	zone    *fakeZone
	layout  tunnelfs.Layout
	account database.Account
	clock   time.Time
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func setupTestDB(t *testing.T) {
	t.Helper()
	var err error
	database.DB, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	database.DB.AutoMigrate(database.AllModels()...)
}

// newFixture wires an orchestrator over fakes with one account that has
// a certificate, a token, and the domain example.com.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	setupTestDB(t)

	dir := t.TempDir()
	layout := tunnelfs.New(filepath.Join(dir, "cloudflared"))
	zone := newFakeZone()
	f := &fixture{
		cli:    &fakeCLI{zone: zone, nextIDs: []string{tunnelA, tunnelB}, remote: map[string]bool{}},
		sup:    newFakeSupervisor(filepath.Join(dir, "stage")),
		zone:   zone,
		layout: layout,
		clock:  time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
	}
	f.o = New(Options{
		CLI:         f.cli,
		Supervisor:  f.sup,
		DNS:         func(zoneID, token string) DNSManager { return fakeDNS{zone: zone} },
		Layout:      layout,
		ServiceUser: "tunnel",
		Async:       func(fn func()) { fn() },
		Now:         func() time.Time { return f.clock },
	})

	enc, err := crypto.SealToken(testToken)
	if err != nil {
		t.Fatalf("encrypt token: %v", err)
	}
	f.account = database.Account{Name: "personal", APIToken: enc}
	if err := database.DB.Create(&f.account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	database.DB.Create(&database.Domain{AccountID: f.account.ID, Domain: "example.com", ZoneID: testZoneID})

	os.MkdirAll(layout.AccountDir("personal"), 0700)
	os.WriteFile(layout.CertPath("personal"), []byte("PEM"), 0600)
	return f
}

func (f *fixture) createRequest(host string) CreateRequest {
	return CreateRequest{AccountID: f.account.ID, Name: "web", Hostname: host, Service: "http://localhost:8080"}
}

func (f *fixture) mustCreate(t *testing.T, req CreateRequest) *database.Tunnel {
	t.Helper()
	tun, err := f.o.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tun
}
