package usecase

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"SignalGrid/internal/domain/models"
	"SignalGrid/internal/domain/repository"
	applogger "SignalGrid/pkg/logger"
	"SignalGrid/pkg/util"
)

// Persister receives every mutated record for asynchronous storage.
type Persister interface {
	Enqueue(rec models.PersistedRecord) bool
	Close(ctx context.Context) error
}

// GridEngine owns the signal grid. All reads and writes go through its lock;
// the recency index keeps keys most-recently-updated first.
type GridEngine struct {
	mu      sync.RWMutex
	records map[string]*models.GridRecord
	order   *list.List
	index   map[string]*list.Element

	store       repository.GridStore
	persist     Persister
	metrics     repository.Metrics
	log         *applogger.Logger
	retention   time.Duration
	loadTimeout time.Duration
	now         func() time.Time
}

type EngineOption func(*GridEngine)

// WithRetention sets how long persisted records live in the store.
func WithRetention(d time.Duration) EngineOption {
	return func(e *GridEngine) {
		if d > 0 {
			e.retention = d
		}
	}
}

// WithLoadTimeout bounds the startup scan.
func WithLoadTimeout(d time.Duration) EngineOption {
	return func(e *GridEngine) {
		if d > 0 {
			e.loadTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *GridEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *applogger.Logger) EngineOption {
	return func(e *GridEngine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewGridEngine creates an empty grid. persist may be nil to keep state in memory only.
func NewGridEngine(store repository.GridStore, persist Persister, metrics repository.Metrics, opts ...EngineOption) *GridEngine {
	e := &GridEngine{
		records:     make(map[string]*models.GridRecord),
		order:       list.New(),
		index:       make(map[string]*list.Element),
		store:       store,
		persist:     persist,
		metrics:     metrics,
		log:         applogger.Nop(),
		retention:   models.DefaultRetention,
		loadTimeout: 30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply writes one signal into its slot and returns a copy of the updated record.
// An event for a slot outside the enumeration is rejected without touching state.
func (e *GridEngine) Apply(ev models.SignalEvent) (*models.GridRecord, error) {
	start := time.Now()
	if err := validateEvent(ev); err != nil {
		e.metrics.RecordEvent("invalid")
		e.log.Warn("signal rejected",
			applogger.String("key", ev.Key.String()),
			applogger.String("slot", string(ev.Slot)),
			applogger.Error(err),
		)
		return nil, err
	}

	key := ev.Key.String()

	e.mu.Lock()
	rec, ok := e.records[key]
	if !ok {
		rec = models.NewGridRecord(ev.Key)
		e.records[key] = rec
	}
	now := e.now().UTC()
	rec.Slots[ev.Slot] = &models.SlotValue{
		Price:      ev.Price,
		ObservedAt: ev.ObservedAt.UTC(),
		UpdatedAt:  now,
	}
	rec.LastUpdated = util.MaxTime(rec.LastUpdated, now)
	e.touch(key)
	out := rec.Clone()
	// Enqueued under the lock so the store sees writes in mutation order.
	if e.persist != nil {
		if pr, err := ToPersisted(out, now.Add(e.retention)); err != nil {
			e.log.Error("encode grid record", applogger.String("key", key), applogger.Error(err))
		} else {
			e.persist.Enqueue(pr)
		}
	}
	e.mu.Unlock()

	e.metrics.RecordEvent("accepted")
	e.metrics.RecordLatency("grid_apply", time.Since(start).Seconds())
	return out, nil
}

func validateEvent(ev models.SignalEvent) error {
	if !ev.Slot.Valid() {
		return &models.ValidationError{
			Field:   "indicator",
			Code:    "ERR_UNKNOWN_SLOT",
			Message: fmt.Sprintf("unknown slot %q", ev.Slot),
			Err:     models.ErrUnknownSlot,
		}
	}
	if strings.TrimSpace(ev.Key.Instrument) == "" || ev.Key.TradingDay == "" {
		return &models.ValidationError{Field: "symbol", Code: "ERR_REQUIRED", Message: "symbol is required", Err: models.ErrMissingField}
	}
	return nil
}

// touch moves key to the front of the recency index. Caller holds the write lock.
func (e *GridEngine) touch(key string) {
	if el, ok := e.index[key]; ok {
		e.order.MoveToFront(el)
		return
	}
	e.index[key] = e.order.PushFront(key)
}

// Reconcile loads persisted records into the grid, most recent first, and
// returns how many were loaded. Malformed records and duplicate keys are skipped.
func (e *GridEngine) Reconcile(records []models.PersistedRecord) int {
	sorted := make([]models.PersistedRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].LastUpdated, sorted[j].LastUpdated
		if a.IsZero() != b.IsZero() {
			return !a.IsZero()
		}
		return a.After(b)
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	loaded := 0
	for _, pr := range sorted {
		rec, err := e.decode(pr)
		if err != nil {
			e.log.Warn("skip persisted record", applogger.String("key", pr.Key), applogger.Error(err))
			continue
		}
		key := rec.Key.String()
		if _, dup := e.records[key]; dup {
			continue
		}
		e.records[key] = rec
		e.index[key] = e.order.PushBack(key)
		loaded++
	}
	return loaded
}

func (e *GridEngine) decode(pr models.PersistedRecord) (*models.GridRecord, error) {
	if pr.Key == "" {
		return nil, fmt.Errorf("missing key: %w", models.ErrMalformedData)
	}
	if strings.TrimSpace(pr.StateData) == "" {
		return nil, fmt.Errorf("missing state data: %w", models.ErrMalformedData)
	}
	key, err := models.ParseGridKey(pr.Key)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrMalformedData)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(pr.StateData), &raw); err != nil {
		return nil, fmt.Errorf("state data: %v: %w", err, models.ErrMalformedData)
	}

	rec := models.NewGridRecord(key)
	rec.LastUpdated = pr.LastUpdated.UTC()
	for k, v := range raw {
		slot := models.SlotKey(k)
		if !slot.Valid() {
			e.log.Warn("drop unknown slot", applogger.String("key", pr.Key), applogger.String("slot", k))
			continue
		}
		var sv *models.SlotValue
		if err := json.Unmarshal(v, &sv); err != nil {
			e.log.Warn("drop unreadable slot", applogger.String("key", pr.Key), applogger.String("slot", k), applogger.Error(err))
			continue
		}
		rec.Slots[slot] = sv
	}
	if pr.LastUpdated.IsZero() {
		for _, sv := range rec.Slots {
			if sv != nil {
				rec.LastUpdated = util.MaxTime(rec.LastUpdated, util.MaxTime(sv.ObservedAt, sv.UpdatedAt))
			}
		}
	}
	return rec, nil
}

// LoadFromStore scans the durable store and reconciles the result. A failed
// scan leaves the grid empty; it is never fatal.
func (e *GridEngine) LoadFromStore(ctx context.Context) int {
	if e.store == nil {
		return 0
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.loadTimeout)
	defer cancel()

	recs, err := e.store.ScanAll(ctx)
	if err != nil {
		e.metrics.RecordError("store_scan")
		e.log.Error("load grid from store, starting empty", applogger.Error(err))
		return 0
	}
	n := e.Reconcile(recs)
	e.metrics.RecordLatency("store_scan", time.Since(start).Seconds())
	e.log.Info("grid loaded",
		applogger.Int("scanned", len(recs)),
		applogger.Int("loaded", n),
		applogger.Duration("took", time.Since(start)),
	)
	return n
}

// Snapshot returns a deep copy of the grid with keys in recency order.
func (e *GridEngine) Snapshot() models.GridSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := models.GridSnapshot{
		State:       make(map[string]models.Slots, len(e.records)),
		SymbolOrder: make([]string, 0, e.order.Len()),
	}
	for el := e.order.Front(); el != nil; el = el.Next() {
		key := el.Value.(string)
		snap.SymbolOrder = append(snap.SymbolOrder, key)
		snap.State[key] = e.records[key].Slots.Clone()
	}
	return snap
}

// Record returns a copy of one record.
func (e *GridEngine) Record(key string) (*models.GridRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Len returns the number of records.
func (e *GridEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

// Close drains pending persistence writes.
func (e *GridEngine) Close(ctx context.Context) error {
	if e.persist == nil {
		return nil
	}
	return e.persist.Close(ctx)
}

// ToPersisted serializes a record for the durable store.
func ToPersisted(rec *models.GridRecord, expiresAt time.Time) (models.PersistedRecord, error) {
	b, err := json.Marshal(rec.Slots)
	if err != nil {
		return models.PersistedRecord{}, fmt.Errorf("marshal slots: %w", err)
	}
	return models.PersistedRecord{
		Key:         rec.Key.String(),
		StateData:   string(b),
		LastUpdated: rec.LastUpdated,
		ExpiresAt:   expiresAt,
	}, nil
}
