package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"SignalGrid/internal/domain/repository"
	applogger "SignalGrid/pkg/logger"
)

// SessionState is the scheduler state.
type SessionState string

const (
	SessionIdle    SessionState = "IDLE"
	SessionPolling SessionState = "POLLING"
)

// PollingTask is started when the market opens and stopped when it closes.
// Both calls must be safe to repeat.
type PollingTask interface {
	Start()
	Stop()
}

// SessionWindow is the weekly trading window of one market, in its own zone.
type SessionWindow struct {
	Location *time.Location
	Open     time.Duration // offset from local midnight, inclusive
	Close    time.Duration // offset from local midnight, exclusive
	RestDays map[time.Weekday]bool
}

// NewSessionWindow parses a zone name, "HH:MM" bounds and rest-day names.
func NewSessionWindow(zone, open, close string, restDays []string) (SessionWindow, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return SessionWindow{}, fmt.Errorf("session zone %q: %w", zone, err)
	}
	o, err := parseClock(open)
	if err != nil {
		return SessionWindow{}, fmt.Errorf("session open: %w", err)
	}
	c, err := parseClock(close)
	if err != nil {
		return SessionWindow{}, fmt.Errorf("session close: %w", err)
	}
	if c <= o {
		return SessionWindow{}, fmt.Errorf("session close %s must be after open %s", close, open)
	}
	rest := make(map[time.Weekday]bool, len(restDays))
	for _, d := range restDays {
		wd, err := parseWeekday(d)
		if err != nil {
			return SessionWindow{}, err
		}
		rest[wd] = true
	}
	return SessionWindow{Location: loc, Open: o, Close: c, RestDays: rest}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// IsOpen reports whether now falls inside the window, on the market's own calendar.
func (w SessionWindow) IsOpen(now time.Time) bool {
	local := now.In(w.Location)
	if w.RestDays[local.Weekday()] {
		return false
	}
	y, m, d := local.Date()
	since := local.Sub(time.Date(y, m, d, 0, 0, 0, 0, w.Location))
	return since >= w.Open && since < w.Close
}

// SessionScheduler runs a polling task only while the market session is open.
type SessionScheduler struct {
	mu       sync.Mutex
	state    SessionState
	window   SessionWindow
	task     PollingTask
	interval time.Duration
	metrics  repository.Metrics
	log      *applogger.Logger
	now      func() time.Time
}

type SchedulerOption func(*SessionScheduler)

// WithCheckInterval sets how often the session is re-evaluated.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *SessionScheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *applogger.Logger) SchedulerOption {
	return func(s *SessionScheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSchedulerClock replaces time.Now.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *SessionScheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSessionScheduler(window SessionWindow, task PollingTask, metrics repository.Metrics, opts ...SchedulerOption) *SessionScheduler {
	s := &SessionScheduler{
		state:    SessionIdle,
		window:   window,
		task:     task,
		interval: time.Minute,
		metrics:  metrics,
		log:      applogger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSessionOpen reports whether the market is open at now.
func (s *SessionScheduler) IsSessionOpen(now time.Time) bool {
	return s.window.IsOpen(now)
}

// State returns the current state.
func (s *SessionScheduler) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Evaluate moves the scheduler to the state implied by now, starting or
// stopping the task on a transition only.
func (s *SessionScheduler) Evaluate(now time.Time) SessionState {
	open := s.window.IsOpen(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case open && s.state == SessionIdle:
		s.log.Info("market open, starting news polling", applogger.Time("at", now))
		s.task.Start()
		s.state = SessionPolling
		s.metrics.RecordSessionState(true)
	case !open && s.state == SessionPolling:
		s.log.Info("market closed, stopping news polling", applogger.Time("at", now))
		s.task.Stop()
		s.state = SessionIdle
		s.metrics.RecordSessionState(false)
	}
	return s.state
}

// Run evaluates immediately and then on every tick until ctx is done. The
// task is stopped on exit.
func (s *SessionScheduler) Run(ctx context.Context) {
	s.Evaluate(s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.state == SessionPolling {
				s.task.Stop()
				s.state = SessionIdle
				s.metrics.RecordSessionState(false)
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.Evaluate(s.now())
		}
	}
}
