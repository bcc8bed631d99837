package logger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishLogs(_ context.Context, topic string, entries []AggregatedLogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, entries)
	return nil
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
}

func TestNewFileOutputUsesRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	l.Info("hello", String("k", "v"))
}

func TestCollectorAggregatesDuplicateErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		l.Error("persist failed", String("key", "XYZ-2024-01-01"), Error(boom))
	}
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "logs", pub.topic)
	require.Len(t, pub.batches[0], 1)
	assert.Equal(t, 3, pub.batches[0][0].Count)
	assert.Equal(t, "persist failed", pub.batches[0][0].Message)
}

func TestCollectorFlushesAtThresholdInFirstSeenOrder(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})

	c.AddLog("error", "first", nil, "a.go:1")
	c.AddLog("error", "first", nil, "a.go:1")
	c.AddLog("error", "second", map[string]interface{}{"key": "XYZ"}, "b.go:2")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)
	assert.Equal(t, "first", pub.batches[0][0].Message)
	assert.Equal(t, 2, pub.batches[0][0].Count)
	assert.Equal(t, "second", pub.batches[0][1].Message)
}

func TestCollectorDropsEntriesAfterClose(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})
	c.Close()
	c.AddLog("error", "late", nil, "c.go:3")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Empty(t, pub.batches)
}

func TestWarnIsNotCollected(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})
	l.With(String("component", "test")).Warn("slow")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Empty(t, pub.batches)
}
