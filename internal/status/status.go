// Package status reports whether cloudflared is installed, which version
// runs, whether a newer release exists, and how many tunnels are up.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/cliparse"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"golang.org/x/sync/singleflight"
)

// Inspector reports on the local cloudflared installation.
type Inspector interface {
	Which() (string, bool)
	Version(ctx context.Context) string
}

type Report struct {
	Installed     bool    `json:"installed"`
	Version       *string `json:"version"`
	LatestVersion *string `json:"latestVersion"`
	UpToDate      bool    `json:"upToDate"`
	ActiveTunnels int64   `json:"activeTunnels"`
}

const defaultCacheTTL = 10 * time.Minute

type Aggregator struct {
	inspector  Inspector
	releaseURL string
	client     *http.Client
	cacheTTL   time.Duration
	now        func() time.Time

	group     singleflight.Group
	mu        sync.Mutex
	latest    string
	fetchedAt time.Time
}

// New builds an aggregator. The release lookup is bounded by timeout and
// successful answers are reused for a few minutes.
func New(inspector Inspector, releaseURL string, timeout time.Duration) *Aggregator {
	return &Aggregator{
		inspector:  inspector,
		releaseURL: releaseURL,
		client:     &http.Client{Timeout: timeout},
		cacheTTL:   defaultCacheTTL,
		now:        time.Now,
	}
}

func (a *Aggregator) Get(ctx context.Context) Report {
	var r Report
	_, r.Installed = a.inspector.Which()
	if r.Installed {
		if v := a.inspector.Version(ctx); v != "" {
			r.Version = &v
		}
	}
	if latest, err := a.Latest(ctx); err != nil {
		log.Printf("[status] latest version lookup: %v", err)
	} else if latest != "" {
		r.LatestVersion = &latest
	}

	var current, latest string
	if r.Version != nil {
		current = *r.Version
	}
	if r.LatestVersion != nil {
		latest = *r.LatestVersion
	}
	r.UpToDate = IsUpToDate(current, latest)

	if n, err := database.CountRunningTunnels(); err != nil {
		log.Printf("[status] count running tunnels: %v", err)
	} else {
		r.ActiveTunnels = n
	}
	return r
}

// Latest returns the newest released version. Concurrent callers share
// one upstream request.
func (a *Aggregator) Latest(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.latest != "" && a.now().Sub(a.fetchedAt) < a.cacheTTL {
		v := a.latest
		a.mu.Unlock()
		return v, nil
	}
	a.mu.Unlock()

	v, err, _ := a.group.Do("latest", func() (interface{}, error) {
		return a.fetchLatest(ctx)
	})
	if err != nil {
		return "", err
	}
	latest := v.(string)
	a.mu.Lock()
	a.latest, a.fetchedAt = latest, a.now()
	a.mu.Unlock()
	return latest, nil
}

func (a *Aggregator) fetchLatest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.releaseURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release endpoint returned %s", resp.Status)
	}
	var body struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode release: %w", err)
	}
	tag := strings.TrimPrefix(strings.TrimSpace(body.TagName), "v")
	if tag == "" {
		return "", fmt.Errorf("release has no tag")
	}
	return tag, nil
}

// IsUpToDate compares two YYYY.M.D versions by year, month and day.
//
// When either side is unknown or unparsable the answer is true. The
// panel never raises an update alarm it cannot back with data.
func IsUpToDate(current, latest string) bool {
	cur, ok := parseVersion(current)
	if !ok {
		return true
	}
	lat, ok := parseVersion(latest)
	if !ok {
		return true
	}
	for i := range cur {
		if cur[i] != lat[i] {
			return cur[i] > lat[i]
		}
	}
	return true
}

func parseVersion(s string) ([3]int, bool) {
	var out [3]int
	v := cliparse.Version(s)
	if v == "" {
		return out, false
	}
	parts := strings.Split(v, ".")
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
