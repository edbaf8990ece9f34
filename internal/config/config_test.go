package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Auction.BidTimeout)
	assert.True(t, cfg.Auction.RejectSelfOutbid)
	assert.Equal(t, 256, cfg.Realtime.MemberBuffer)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
storage:
  driver: sqlite
  sqlite_path: /tmp/a.db
auction:
  bid_timeout: 500ms
  reject_self_outbid: false
realtime:
  allowed_origins: ["example.com"]
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.Auction.BidTimeout)
	assert.False(t, cfg.Auction.RejectSelfOutbid)
	assert.Equal(t, []string{"example.com"}, cfg.Realtime.AllowedOrigins)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Auction.SaveTimeout)
	assert.Equal(t, 256, cfg.Realtime.MemberBuffer)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Storage.Driver = "mongo"
	cfg.Realtime.BidderHeader = "X-Bidder-Id"
	cfg.Realtime.AllowedOrigins = []string{"auctions.example.com"}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AUCTIOND_HTTP_ADDR", ":7070")
	t.Setenv("AUCTIOND_STORE", "sqlite")
	t.Setenv("AUCTIOND_REJECT_SELF_OUTBID", "false")
	t.Setenv("AUCTIOND_SWEEP_INTERVAL", "250ms")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.False(t, cfg.Auction.RejectSelfOutbid)
	assert.Equal(t, 250*time.Millisecond, cfg.Auction.SweepInterval)

	t.Setenv("AUCTIOND_SWEEP_INTERVAL", "soon")
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Realtime.MemberBuffer = 0
	assert.Error(t, cfg.Validate())
}
