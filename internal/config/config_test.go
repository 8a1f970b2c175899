package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Match.SessionTimeout)
	assert.Equal(t, 50, cfg.Match.BonusCap)
	assert.InDelta(t, 0.10, cfg.Match.BonusProbability, 1e-9)
	assert.Equal(t, 50, cfg.Match.HistoryLimit)
	assert.Contains(t, cfg.Rank.Tiers, "SSL")
	assert.Equal(t, []string{"GC1", "GC3"}, cfg.Rank.Adjacency["GC2"])
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "sekret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
postgres:
  host: db.internal
  password: ${TEST_PG_PASSWORD}
match:
  bonus_cap: 25
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "sekret", cfg.Postgres.Password)
	assert.Equal(t, 25, cfg.Match.BonusCap)
	assert.Equal(t, 30*time.Minute, cfg.Match.SessionTimeout)

	// Untouched sections still get defaults
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 1_000_000, int(cfg.Match.MaxStake))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	cfg := &PostgresConfig{
		Host: "localhost", Port: 5432,
		User: "app", Password: "pw", Database: "arena",
	}
	assert.Equal(t, "postgres://app:pw@localhost:5432/arena?sslmode=disable", cfg.ConnectionString())
}

func TestRankConfigAllowed(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Rank.Allowed("Gold", "Gold"))
	assert.False(t, cfg.Rank.Allowed("Gold", "Silver"))
	assert.True(t, cfg.Rank.Allowed("SSL", "GC3"))
	assert.False(t, cfg.Rank.Allowed("SSL", "GC2"))
}
