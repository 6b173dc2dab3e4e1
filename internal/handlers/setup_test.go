package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/auth"
	"github.com/IYouKnow/TunnelUI/internal/cfapi"
	"github.com/IYouKnow/TunnelUI/internal/cloudflared"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/crypto"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
	"github.com/IYouKnow/TunnelUI/internal/tunnelfs"
	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testToken  = "valid_token_abcdefghijklmnop"
	testZoneID = "0123456789abcdef0123456789abcdef"
	tunnelA    = "6ff42ae2-765d-4adf-8112-31c55c1551ef"
)

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

	config.Cfg = config.Settings{CloudflareAPIURL: cfapi.DefaultBaseURL}
	SessionStore = auth.NewSessionStore()
}

func buildRequest(t *testing.T, method, url, body string, chiParams map[string]string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}

	rctx := chi.NewRouteContext()
	for k, v := range chiParams {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("parse response %q: %v", w.Body.String(), err)
	}
	return result
}

func createTestAccount(t *testing.T, name, token string) database.Account {
	t.Helper()
	enc, err := crypto.SealToken(token)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	acc := database.Account{Name: name, APIToken: enc}
	if err := database.DB.Create(&acc).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acc
}

// fakeCLI routes DNS into an in-memory record set shared with fakeDNS.
type fakeCLI struct {
	mu        sync.Mutex
	records   map[string]cfapi.DNSRecord
	ids       []string
	createErr error
	deleteErr error
	deleted   []string
}

func (c *fakeCLI) Create(ctx context.Context, certPath, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	id := c.ids[0]
	c.ids = c.ids[1:]
	os.WriteFile(filepath.Join(filepath.Dir(certPath), id+".json"), []byte("{}"), 0600)
	return id, nil
}

// blocksRoute lists the record types cloudflared refuses to route over.
var blocksRoute = map[string]bool{"A": true, "AAAA": true, "CNAME": true}

func (c *fakeCLI) RouteDNS(ctx context.Context, certPath, tunnel, hostname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := tunnel + ".cfargotunnel.com"
	for _, r := range c.records {
		if r.Name == hostname && blocksRoute[r.Type] {
			if r.Content == target {
				return nil
			}
			return &cloudflared.OutputError{Err: cloudflared.ErrRecordExists, Output: "record with that host already exists"}
		}
	}
	id := fmt.Sprintf("rec-%d", len(c.records)+1)
	c.records[id] = cfapi.DNSRecord{ID: id, Type: "CNAME", Name: hostname, Content: target}
	return nil
}

func (c *fakeCLI) Delete(ctx context.Context, certPath, tunnelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, tunnelID)
	return c.deleteErr
}

func (c *fakeCLI) HasTunnelNamed(ctx context.Context, certPath, name string) (bool, error) {
	return false, nil
}

func (c *fakeCLI) addRecord(typ, name, content string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := fmt.Sprintf("rec-%d", len(c.records)+1)
	c.records[id] = cfapi.DNSRecord{ID: id, Type: typ, Name: name, Content: content}
	return id
}

func (c *fakeCLI) hasRecord(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[id]
	return ok
}

type fakeDNS struct{ cli *fakeCLI }

func (d fakeDNS) List(ctx context.Context, hostname, recordType string) ([]cfapi.DNSRecord, error) {
	d.cli.mu.Lock()
	defer d.cli.mu.Unlock()
	var out []cfapi.DNSRecord
	for _, r := range d.cli.records {
		if r.Name == hostname && (recordType == "" || r.Type == recordType) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d fakeDNS) Delete(ctx context.Context, recordID string) error {
	d.cli.mu.Lock()
	defer d.cli.mu.Unlock()
	delete(d.cli.records, recordID)
	return nil
}

type fakeSupervisor struct {
	mu       sync.Mutex
	active   map[string]bool
	stageDir string
}

func (s *fakeSupervisor) set(id string, on bool) error {
	s.mu.Lock()
	s.active[id] = on
	s.mu.Unlock()
	return nil
}

func (s *fakeSupervisor) Start(ctx context.Context, id string) error { return s.set(id, true) }
func (s *fakeSupervisor) Stop(ctx context.Context, id string) error { return s.set(id, false) }
func (s *fakeSupervisor) Restart(ctx context.Context, id string) error { return s.set(id, true) }
func (s *fakeSupervisor) Enable(ctx context.Context, id string) error { return s.set(id, true) }
func (s *fakeSupervisor) Disable(ctx context.Context, id string) error { return s.set(id, false) }
func (s *fakeSupervisor) IsActive(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}
func (s *fakeSupervisor) DaemonReload(ctx context.Context) error { return nil }
func (s *fakeSupervisor) KillProcesses(ctx context.Context, id string) error { return nil }
func (s *fakeSupervisor) Journal(ctx context.Context, id string, n int) (string, error) {
	return "journal of " + id, nil
}
func (s *fakeSupervisor) FollowJournal(id string, n int, onChunk procrun.ChunkFunc) (*procrun.Handle, error) {
	return nil, errors.New("not supported")
}
func (s *fakeSupervisor) StagedUnitPath(id string) string {
	return filepath.Join(s.stageDir, id+".service")
}
func (s *fakeSupervisor) StageUnit(id, user, configPath string) (string, error) {
	os.MkdirAll(s.stageDir, 0755)
	return s.StagedUnitPath(id), os.WriteFile(s.StagedUnitPath(id), []byte(configPath), 0644)
}
func (s *fakeSupervisor) InstallUnit(id, user, configPath string) (string, error) { return id, nil }
func (s *fakeSupervisor) PromoteStagedUnit(id, staged string) (string, error) { return id, nil }
func (s *fakeSupervisor) RemoveStagedUnit(id string) error { return os.Remove(s.StagedUnitPath(id)) }
func (s *fakeSupervisor) RemoveUnit(id string) error { return nil }

type testEnv struct {
	cli     *fakeCLI
	sup     *fakeSupervisor
	layout  tunnelfs.Layout
	account database.Account
}

// setupOrchestrator installs an orchestrator over fakes with one account
// ("personal") holding a certificate, a token and the domain example.com.
func setupOrchestrator(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		cli:    &fakeCLI{records: map[string]cfapi.DNSRecord{}, ids: []string{tunnelA, "0f1d5a0a-2b4c-4d3e-9f60-7a8b9c0d1e2f"}},
		sup:    &fakeSupervisor{active: map[string]bool{}, stageDir: filepath.Join(dir, "stage")},
		layout: tunnelfs.New(filepath.Join(dir, "cloudflared")),
	}
	orchestrator.SetForTest(orchestrator.New(orchestrator.Options{
		CLI:        env.cli,
		Supervisor: env.sup,
		DNS:        func(zoneID, token string) orchestrator.DNSManager { return fakeDNS{cli: env.cli} },
		Layout:     env.layout,
		Async:      func(f func()) { f() },
		Now:        func() time.Time { return time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC) },
	}))
	t.Cleanup(orchestrator.ResetForTest)

	env.account = createTestAccount(t, "personal", testToken)
	database.DB.Create(&database.Domain{AccountID: env.account.ID, Domain: "example.com", ZoneID: testZoneID})
	os.MkdirAll(env.layout.AccountDir("personal"), 0700)
	os.WriteFile(env.layout.CertPath("personal"), []byte("PEM"), 0600)
	return env
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("parse response %q: %v", w.Body.String(), err)
	}
}
