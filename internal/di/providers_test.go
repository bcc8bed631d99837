package di

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGrid/pkg/config"
	"SignalGrid/pkg/metrics"
)

type errorCounter struct {
	metrics.Nop
	mu    sync.Mutex
	kinds []string
}

func (c *errorCounter) RecordError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
}

// deadRedisConfig points the store at a port nothing listens on.
func deadRedisConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Kafka.Enabled = false
	cfg.Log.Output = "stderr"
	cfg.Store.Type = "redis"
	cfg.Store.Redis.Host = "127.0.0.1"
	cfg.Store.Redis.Port = 1
	return cfg
}

func TestInitializeAppWithUnreachableStore(t *testing.T) {
	app, err := InitializeApp(deadRedisConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Error(t, app.Store.Health(context.Background()))
	assert.Zero(t, app.Engine.LoadFromStore(context.Background()))
	assert.NoError(t, app.Store.Close())
}

func TestProvideGridStoreCountsUnreachableStore(t *testing.T) {
	cfg := deadRedisConfig(t)
	m := &errorCounter{}
	l, err := ProvideLogger(cfg, nil)
	require.NoError(t, err)

	store, err := ProvideGridStore(cfg, m, l)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, []string{"store_connect"}, m.kinds)
}

func TestOpenGridStoreFailsOnUnreachableStore(t *testing.T) {
	_, err := OpenGridStore(deadRedisConfig(t))
	assert.Error(t, err)
}
