// Package fanout pushes grid snapshots and news updates to connected viewers.
package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"SignalGrid/internal/domain/models"
	"SignalGrid/internal/domain/repository"
	applogger "SignalGrid/pkg/logger"
)

// GridSource provides the state sent on connect and on every update.
type GridSource interface {
	Snapshot() models.GridSnapshot
}

// NewsSource provides the cached headlines sent on connect.
type NewsSource interface {
	Latest() []models.Headline
}

const (
	kindGrid = "grid"
	kindNews = "news"
)

// Hub is the registry of live viewers. Registration, removal and every
// enqueue happen under one lock, so a mailbox is never written after it is closed.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}

	grid    GridSource
	news    NewsSource
	metrics repository.Metrics
	log     *applogger.Logger

	interval     time.Duration
	sendBuffer   int
	writeTimeout time.Duration
	readLimit    int64
	upgrader     websocket.Upgrader
}

type Option func(*Hub)

// WithHeartbeat sets the liveness sweep interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithSendBuffer sets the per-viewer mailbox size.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n >= 2 {
			h.sendBuffer = n
		}
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithReadLimit caps inbound frame size.
func WithReadLimit(n int64) Option {
	return func(h *Hub) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *applogger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHub creates a hub serving snapshots from grid.
func NewHub(grid GridSource, metrics repository.Metrics, opts ...Option) *Hub {
	h := &Hub{
		clients:      make(map[*Client]struct{}),
		grid:         grid,
		metrics:      metrics,
		log:          applogger.Nop(),
		interval:     30 * time.Second,
		sendBuffer:   64,
		writeTimeout: 10 * time.Second,
		readLimit:    4096,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetNewsSource attaches the headline cache. The news poller is built after
// the hub, since it broadcasts through it.
func (h *Hub) SetNewsSource(n NewsSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.news = n
}

// ServeWS upgrades the request and connects the viewer.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	h.Connect(conn)
	return nil
}

// Connect registers a viewer. The current snapshot, then cached news when
// there is any, are queued before the viewer can receive any broadcast.
func (h *Hub) Connect(conn Conn) *Client {
	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		hub:  h,
		send: make(chan []byte, h.sendBuffer),
	}
	c.alive.Store(true)
	conn.SetReadLimit(h.readLimit)
	conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		h.resync(c)
		return nil
	})

	h.mu.Lock()
	if b, err := json.Marshal(h.grid.Snapshot()); err != nil {
		h.log.Error("encode snapshot", applogger.Error(err))
	} else {
		c.enqueue(b)
	}
	if h.news != nil {
		if headlines := h.news.Latest(); len(headlines) > 0 {
			if b, err := json.Marshal(models.NewNewsUpdate(headlines)); err == nil {
				c.enqueue(b)
			}
		}
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.RecordViewers(n)
	h.log.Info("viewer connected", applogger.String("client", c.id), applogger.Int("viewers", n))

	go c.writePump()
	go c.readPump()
	return c
}

// BroadcastGrid sends the current snapshot to every live viewer. The snapshot
// is taken under the hub lock, so viewers never see an older state after a newer one.
func (h *Hub) BroadcastGrid() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := json.Marshal(h.grid.Snapshot())
	if err != nil {
		h.log.Error("encode snapshot", applogger.Error(err))
		return 0
	}
	return h.broadcastLocked(kindGrid, b)
}

// BroadcastNews sends a news-update to every live viewer.
func (h *Hub) BroadcastNews(headlines []models.Headline) int {
	b, err := json.Marshal(models.NewNewsUpdate(headlines))
	if err != nil {
		h.log.Error("encode news", applogger.Error(err))
		return 0
	}
	return h.Broadcast(kindNews, b)
}

// Broadcast enqueues an already serialized payload to every live viewer and
// returns how many accepted it. Delivery failures never reach the caller.
func (h *Hub) Broadcast(kind string, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.broadcastLocked(kind, payload)
}

func (h *Hub) broadcastLocked(kind string, payload []byte) int {
	sent := 0
	for c := range h.clients {
		if c.broken.Load() {
			continue
		}
		if !c.alive.Load() {
			c.markMissed(kind)
			continue
		}
		if !c.enqueue(payload) {
			h.log.Warn("viewer mailbox full",
				applogger.String("client", c.id),
				applogger.String("kind", kind),
			)
			continue
		}
		sent++
	}
	h.metrics.RecordBroadcast(kind, sent)
	return sent
}

// resync sends what a viewer missed while awaiting its pong: the current
// snapshot and the cached news.
func (h *Hub) resync(c *Client) {
	grid, news := c.missedGrid.Swap(false), c.missedNews.Swap(false)
	if !grid && !news {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok || c.broken.Load() {
		return
	}
	if grid {
		if b, err := json.Marshal(h.grid.Snapshot()); err == nil {
			c.enqueue(b)
		}
	}
	if news && h.news != nil {
		if b, err := json.Marshal(models.NewNewsUpdate(h.news.Latest())); err == nil {
			c.enqueue(b)
		}
	}
	h.log.Debug("viewer resynced", applogger.String("client", c.id))
}

// Sweep runs one heartbeat round: viewers that did not answer the previous
// ping, or whose last write failed, are closed. The rest are marked pending
// and pinged again; broadcasts skip them until they answer.
func (h *Hub) Sweep() {
	var ping []*Client

	h.mu.Lock()
	for c := range h.clients {
		if !c.alive.Load() || c.broken.Load() {
			h.removeLocked(c)
			_ = c.conn.Close()
			h.metrics.RecordEviction()
			h.log.Info("viewer evicted", applogger.String("client", c.id))
			continue
		}
		c.alive.Store(false)
		ping = append(ping, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.RecordViewers(n)

	deadline := time.Now().Add(h.writeTimeout)
	for _, c := range ping {
		if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.log.Debug("ping failed", applogger.String("client", c.id), applogger.Error(err))
		}
	}
}

// Run sweeps on every heartbeat tick until ctx is done, then closes all viewers.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.CloseAll()
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// CloseAll disconnects every viewer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		h.removeLocked(c)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
	}
	h.mu.Unlock()
	h.metrics.RecordViewers(0)
}

// Len returns the number of registered viewers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		h.removeLocked(c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.RecordViewers(n)
		h.log.Info("viewer disconnected", applogger.String("client", c.id), applogger.Int("viewers", n))
	}
}

func (h *Hub) removeLocked(c *Client) {
	delete(h.clients, c)
	c.closeSend()
}
