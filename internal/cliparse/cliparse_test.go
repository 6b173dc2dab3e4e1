package cliparse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

func TestTunnelID(t *testing.T) {
	id, ok := TunnelID(fixture(t, "create.txt"))
	require.True(t, ok)
	assert.Equal(t, "6ff42ae2-765d-4adf-8112-31c55c1551ef", id)

	id, ok = TunnelID("Created tunnel web with id 0f1d5a0a-2b4c-4d3e-9f60-7a8b9c0d1e2f")
	require.True(t, ok)
	assert.Equal(t, "0f1d5a0a-2b4c-4d3e-9f60-7a8b9c0d1e2f", id)

	_, ok = TunnelID("Tunnel credentials written to /tmp/abc.json")
	assert.False(t, ok, "non-uuid identifiers are rejected")

	_, ok = TunnelID(fixture(t, "create_conflict.txt"))
	assert.False(t, ok)
}

func TestLoginURL(t *testing.T) {
	u, ok := LoginURL(fixture(t, "login.txt"))
	require.True(t, ok)
	assert.Equal(t, "https://dash.cloudflare.com/argotunnel?aud=&callback=https%3A%2F%2Flogin.cloudflareaccess.org%2FyWq3", u)

	_, ok = LoginURL("waiting for login...")
	assert.False(t, ok)
}

func TestConflictMarkers(t *testing.T) {
	assert.True(t, IsNameConflict(fixture(t, "create_conflict.txt")))
	assert.False(t, IsNameConflict(fixture(t, "create.txt")))
	assert.True(t, IsDNSRecordExists(fixture(t, "route_conflict.txt")))
	assert.False(t, IsDNSRecordExists("Added CNAME app.example.com which will route to this tunnel"))
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "2024.1.5", Version("cloudflared version 2024.1.5 (built 2024-01-18-1234 UTC)"))
	assert.Equal(t, "", Version("command not found"))
}

func TestTunnelListHasName(t *testing.T) {
	out := fixture(t, "list.txt")
	assert.True(t, TunnelListHasName(out, "web"))
	assert.True(t, TunnelListHasName(out, "web-api"))
	assert.False(t, TunnelListHasName(out, "we"))
	assert.False(t, TunnelListHasName(out, "NAME"))
}
