package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGrid/pkg/metrics"
)

type countingTask struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (c *countingTask) Start() { c.mu.Lock(); c.starts++; c.mu.Unlock() }
func (c *countingTask) Stop()  { c.mu.Lock(); c.stops++; c.mu.Unlock() }

func (c *countingTask) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}

func istWindow(t *testing.T) SessionWindow {
	t.Helper()
	w, err := NewSessionWindow("Asia/Kolkata", "09:00", "15:30", []string{"saturday", "sunday"})
	require.NoError(t, err)
	return w
}

func ist(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestSessionWindowBoundaries(t *testing.T) {
	w := istWindow(t)
	// 2024-01-15 is a Monday.
	cases := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"before open", ist(t, 2024, 1, 15, 8, 59), false},
		{"at open", ist(t, 2024, 1, 15, 9, 0), true},
		{"midday", ist(t, 2024, 1, 15, 12, 0), true},
		{"last minute", ist(t, 2024, 1, 15, 15, 29), true},
		{"at close", ist(t, 2024, 1, 15, 15, 30), false},
		{"saturday", ist(t, 2024, 1, 13, 11, 0), false},
		{"sunday", ist(t, 2024, 1, 14, 11, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.open, w.IsOpen(tc.at))
		})
	}
}

func TestSessionWindowUsesMarketCalendar(t *testing.T) {
	w := istWindow(t)
	// Monday 04:00 UTC is 09:30 IST.
	assert.True(t, w.IsOpen(time.Date(2024, 1, 15, 4, 0, 0, 0, time.UTC)))
	// Friday 22:00 UTC is already Saturday in IST.
	assert.False(t, w.IsOpen(time.Date(2024, 1, 19, 22, 0, 0, 0, time.UTC)))
}

func TestNewSessionWindowRejectsBadInput(t *testing.T) {
	_, err := NewSessionWindow("Mars/Olympus", "09:00", "15:30", nil)
	assert.Error(t, err)
	_, err = NewSessionWindow("UTC", "9am", "15:30", nil)
	assert.Error(t, err)
	_, err = NewSessionWindow("UTC", "15:30", "09:00", nil)
	assert.Error(t, err)
	_, err = NewSessionWindow("UTC", "09:00", "15:30", []string{"funday"})
	assert.Error(t, err)

	w, err := NewSessionWindow("UTC", "09:00", "15:30", []string{"Sat", "sun"})
	require.NoError(t, err)
	assert.True(t, w.RestDays[time.Saturday])
	assert.True(t, w.RestDays[time.Sunday])
}

func TestSchedulerStartsAndStopsOncePerTransition(t *testing.T) {
	task := &countingTask{}
	s := NewSessionScheduler(istWindow(t), task, metrics.Nop{})

	assert.Equal(t, SessionIdle, s.Evaluate(ist(t, 2024, 1, 15, 8, 0)))
	assert.Equal(t, SessionPolling, s.Evaluate(ist(t, 2024, 1, 15, 9, 0)))
	assert.Equal(t, SessionPolling, s.Evaluate(ist(t, 2024, 1, 15, 9, 1)))
	assert.Equal(t, SessionPolling, s.Evaluate(ist(t, 2024, 1, 15, 12, 0)))
	starts, stops := task.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	assert.Equal(t, SessionIdle, s.Evaluate(ist(t, 2024, 1, 15, 15, 30)))
	assert.Equal(t, SessionIdle, s.Evaluate(ist(t, 2024, 1, 15, 16, 0)))
	starts, stops = task.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestSchedulerWeekendStaysIdle(t *testing.T) {
	task := &countingTask{}
	s := NewSessionScheduler(istWindow(t), task, metrics.Nop{})
	for h := 0; h < 24; h++ {
		s.Evaluate(ist(t, 2024, 1, 13, h, 0))
	}
	starts, _ := task.counts()
	assert.Zero(t, starts)
	assert.Equal(t, SessionIdle, s.State())
}

func TestSchedulerRunEvaluatesImmediatelyAndStopsOnExit(t *testing.T) {
	task := &countingTask{}
	open := ist(t, 2024, 1, 15, 10, 0)
	s := NewSessionScheduler(istWindow(t), task, metrics.Nop{},
		WithCheckInterval(time.Hour),
		WithSchedulerClock(func() time.Time { return open }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.State() == SessionPolling }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	starts, stops := task.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, SessionIdle, s.State())
}
