package usecase

import (
	"context"
	"sync"
	"time"

	"SignalGrid/internal/domain/models"
	"SignalGrid/internal/domain/repository"
	applogger "SignalGrid/pkg/logger"
)

// NewsBroadcaster pushes a fresh headline set to viewers.
type NewsBroadcaster interface {
	BroadcastNews(headlines []models.Headline) int
}

// NewsPoller fetches headlines on an interval while started and keeps the
// last successful result.
type NewsPoller struct {
	feed     repository.NewsFeed
	out      NewsBroadcaster
	metrics  repository.Metrics
	log      *applogger.Logger
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	latestMu sync.RWMutex
	latest   []models.Headline
}

type NewsPollerOption func(*NewsPoller)

// WithPollInterval sets the time between fetches.
func WithPollInterval(d time.Duration) NewsPollerOption {
	return func(p *NewsPoller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFetchTimeout bounds each fetch.
func WithFetchTimeout(d time.Duration) NewsPollerOption {
	return func(p *NewsPoller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithNewsLogger sets the logger.
func WithNewsLogger(l *applogger.Logger) NewsPollerOption {
	return func(p *NewsPoller) {
		if l != nil {
			p.log = l
		}
	}
}

func NewNewsPoller(feed repository.NewsFeed, out NewsBroadcaster, metrics repository.Metrics, opts ...NewsPollerOption) *NewsPoller {
	p := &NewsPoller{
		feed:     feed,
		out:      out,
		metrics:  metrics,
		log:      applogger.Nop(),
		interval: 5 * time.Minute,
		timeout:  15 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start fetches once immediately and then on every interval. No-op if running.
func (p *NewsPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop cancels polling and waits for an in-flight fetch to return. No-op if idle.
func (p *NewsPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.running = false
	p.cancel = nil
}

// Running reports whether the poller is started.
func (p *NewsPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Latest returns a copy of the cached headlines.
func (p *NewsPoller) Latest() []models.Headline {
	p.latestMu.RLock()
	defer p.latestMu.RUnlock()
	if len(p.latest) == 0 {
		return nil
	}
	out := make([]models.Headline, len(p.latest))
	copy(out, p.latest)
	return out
}

func (p *NewsPoller) loop(ctx context.Context) {
	defer p.wg.Done()

	p.fetch(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx)
		}
	}
}

func (p *NewsPoller) fetch(parent context.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	headlines, err := p.feed.FetchHeadlines(ctx)
	if err != nil {
		if parent.Err() != nil {
			return
		}
		p.metrics.RecordNewsFetch("error")
		p.log.Warn("news fetch failed, keeping last headlines", applogger.Error(err))
		return
	}
	p.metrics.RecordNewsFetch("ok")
	p.metrics.RecordLatency("news_fetch", time.Since(start).Seconds())

	cached := make([]models.Headline, len(headlines))
	copy(cached, headlines)
	p.latestMu.Lock()
	p.latest = cached
	p.latestMu.Unlock()

	n := p.out.BroadcastNews(headlines)
	p.log.Debug("news broadcast", applogger.Int("headlines", len(headlines)), applogger.Int("viewers", n))
}
