package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 3000, c.Server.Port)
	assert.Equal(t, "redis", c.Store.Type)
	assert.Equal(t, 15*24*time.Hour, c.Grid.Retention)
	assert.Equal(t, 30*time.Second, c.Fanout.HeartbeatInterval)
	assert.Equal(t, "Asia/Kolkata", c.Session.Timezone)
	assert.Equal(t, []string{"saturday", "sunday"}, c.Session.RestDays)
	assert.Equal(t, 5*time.Minute, c.News.PollInterval)
	assert.Equal(t, 25, c.Importer.BatchSize)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
server:
  port: 8081
store:
  type: clickhouse
  clickhouse:
    host: ch
session:
  open: "09:15"
`))
	require.NoError(t, err)
	assert.Equal(t, 8081, c.Server.Port)
	assert.Equal(t, "clickhouse", c.Store.Type)
	assert.Equal(t, "ch", c.Store.ClickHouse.Host)
	assert.Equal(t, "09:15", c.Session.Open)
	assert.Equal(t, "15:30", c.Session.Close)
}

func TestParseRejectsUnknownStore(t *testing.T) {
	_, err := Parse([]byte("store:\n  type: dynamo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.type")
}

func TestLoadWithEnvMissingFileUsesEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "cache.local:6380")
	t.Setenv("MARKETAUX_API_KEY", "k")
	t.Setenv("KAFKA_BROKERS", "b1:9092,b2:9092")

	c, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "cache.local", c.Store.Redis.Host)
	assert.Equal(t, 6380, c.Store.Redis.Port)
	assert.Equal(t, "k", c.News.APIKey)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, c.Kafka.Brokers)
}

func TestLoadWithEnvBadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("server: ["), 0o600))
	_, err := LoadWithEnv(p)
	require.Error(t, err)
}
