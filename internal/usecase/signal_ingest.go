package usecase

import (
	"context"
	"time"

	"SignalGrid/internal/domain/models"
	"SignalGrid/internal/domain/repository"
	applogger "SignalGrid/pkg/logger"
)

// GridBroadcaster pushes the current grid to viewers.
type GridBroadcaster interface {
	BroadcastGrid() int
}

// SignalIngest is the single entry point for inbound signals, shared by the
// webhook and the signals topic.
type SignalIngest struct {
	engine         *GridEngine
	out            GridBroadcaster
	journal        repository.Journal
	metrics        repository.Metrics
	log            *applogger.Logger
	journalTimeout time.Duration
}

type IngestOption func(*SignalIngest)

// WithJournal publishes every accepted event. A nil journal disables publishing.
func WithJournal(j repository.Journal, timeout time.Duration) IngestOption {
	return func(s *SignalIngest) {
		s.journal = j
		if timeout > 0 {
			s.journalTimeout = timeout
		}
	}
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l *applogger.Logger) IngestOption {
	return func(s *SignalIngest) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSignalIngest(engine *GridEngine, out GridBroadcaster, metrics repository.Metrics, opts ...IngestOption) *SignalIngest {
	s := &SignalIngest{
		engine:         engine,
		out:            out,
		metrics:        metrics,
		log:            applogger.Nop(),
		journalTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Accept validates req, applies it to the grid and broadcasts the new state.
// Only validation errors are returned; journal failures are logged.
func (s *SignalIngest) Accept(ctx context.Context, req *models.SignalRequest) (*models.GridRecord, error) {
	ev, err := req.ToEvent()
	if err != nil {
		s.metrics.RecordEvent("invalid")
		s.log.Warn("invalid signal",
			applogger.String("symbol", req.Symbol),
			applogger.Error(err),
		)
		return nil, err
	}
	rec, err := s.engine.Apply(ev)
	if err != nil {
		return nil, err
	}

	if s.out != nil {
		s.out.BroadcastGrid()
	}
	if s.journal != nil {
		s.publish(ctx, ev, rec)
	}
	s.log.Debug("signal accepted",
		applogger.String("key", ev.Key.String()),
		applogger.String("slot", string(ev.Slot)),
		applogger.String("price", ev.Price.String()),
	)
	return rec, nil
}

func (s *SignalIngest) publish(ctx context.Context, ev models.SignalEvent, rec *models.GridRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.journalTimeout)
	defer cancel()
	if err := s.journal.PublishSignal(ctx, ev, rec); err != nil {
		s.metrics.RecordError("journal")
		s.log.Warn("journal publish failed", applogger.String("key", ev.Key.String()), applogger.Error(err))
	}
}
