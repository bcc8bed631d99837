package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"SignalGrid/internal/domain/models"
	"SignalGrid/internal/domain/repository"
	applogger "SignalGrid/pkg/logger"
	"SignalGrid/pkg/util"
)

// MaxImportBatch is the largest batch the importer writes in one call.
const MaxImportBatch = 25

// HistoryItem is one record of a historical dump. Slot values are kept raw so
// that explicit nulls and slots outside the current enumeration survive the merge.
// Slot times may be RFC3339 strings or unix epochs, quoted or not.
type HistoryItem struct {
	Symbol      string                     `json:"symbol"`
	StateData   map[string]json.RawMessage `json:"stateData"`
	LastUpdated string                     `json:"lastUpdated"`
}

// ImportReport summarizes one import run.
type ImportReport struct {
	Raw           int `json:"raw"`
	Rejected      int `json:"rejected"`
	Merged        int `json:"merged"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failedBatches"`
	Written       int `json:"written"`
}

// HistoryMerger folds a dump into one record per instrument and trading day
// and writes the result to the grid store in batches.
type HistoryMerger struct {
	store        repository.GridStore
	log          *applogger.Logger
	retention    time.Duration
	batchSize    int
	writeTimeout time.Duration
}

type MergerOption func(*HistoryMerger)

// WithBatchSize sets the write batch size, capped at MaxImportBatch.
func WithBatchSize(n int) MergerOption {
	return func(m *HistoryMerger) {
		if n > 0 && n <= MaxImportBatch {
			m.batchSize = n
		}
	}
}

// WithMergeRetention sets how long imported records live in the store.
func WithMergeRetention(d time.Duration) MergerOption {
	return func(m *HistoryMerger) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithBatchTimeout bounds each batch write.
func WithBatchTimeout(d time.Duration) MergerOption {
	return func(m *HistoryMerger) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}

// WithMergerLogger sets the logger.
func WithMergerLogger(l *applogger.Logger) MergerOption {
	return func(m *HistoryMerger) {
		if l != nil {
			m.log = l
		}
	}
}

func NewHistoryMerger(store repository.GridStore, opts ...MergerOption) *HistoryMerger {
	m := &HistoryMerger{
		store:        store,
		log:          applogger.Nop(),
		retention:    models.DefaultRetention,
		batchSize:    MaxImportBatch,
		writeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DecodeHistory reads a JSON array of history items.
func DecodeHistory(r io.Reader) ([]HistoryItem, error) {
	var items []HistoryItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return items, nil
}

type mergedRow struct {
	key         string
	slots       map[string]json.RawMessage
	lastUpdated time.Time
}

// Merge groups items by instrument and the UTC day of their latest slot time.
// Slot maps are merged in input order and a later item overwrites every slot
// it carries, including with null. Items without any timestamped slot are
// rejected. Output follows first-seen key order.
func (m *HistoryMerger) Merge(items []HistoryItem) ([]models.PersistedRecord, int) {
	rows := make(map[string]*mergedRow)
	var order []string
	rejected := 0

	for i, item := range items {
		symbol := strings.TrimSpace(item.Symbol)
		slots, latest, ok := m.normalizeSlots(i, item.StateData)
		if symbol == "" || !ok {
			rejected++
			m.log.Warn("skip history item without symbol or signal time",
				applogger.Int("index", i),
				applogger.String("symbol", item.Symbol),
			)
			continue
		}
		key := models.GridKey{Instrument: symbol, TradingDay: models.TradingDayOf(latest)}.String()

		lastUpdated := util.ParseTimeDefault(strings.TrimSpace(item.LastUpdated), latest)

		row, seen := rows[key]
		if !seen {
			row = &mergedRow{key: key, slots: make(map[string]json.RawMessage), lastUpdated: lastUpdated}
			rows[key] = row
			order = append(order, key)
		}
		for slot, v := range slots {
			row.slots[slot] = v
		}
		row.lastUpdated = util.MaxTime(row.lastUpdated, lastUpdated)
	}

	out := make([]models.PersistedRecord, 0, len(order))
	for _, key := range order {
		row := rows[key]
		b, err := json.Marshal(row.slots)
		if err != nil {
			rejected++
			m.log.Warn("skip unencodable merged record", applogger.String("key", key), applogger.Error(err))
			continue
		}
		out = append(out, models.PersistedRecord{
			Key:         key,
			StateData:   string(b),
			LastUpdated: row.lastUpdated.UTC(),
			ExpiresAt:   row.lastUpdated.Add(m.retention).UTC(),
		})
	}
	return out, rejected
}

// Import merges items and writes them in batches. A failed batch is logged and
// skipped; the run continues. With dryRun nothing is written.
func (m *HistoryMerger) Import(ctx context.Context, items []HistoryItem, dryRun bool) (ImportReport, []models.PersistedRecord) {
	recs, rejected := m.Merge(items)
	report := ImportReport{Raw: len(items), Rejected: rejected, Merged: len(recs)}
	m.log.Info("history merged",
		applogger.Int("raw", report.Raw),
		applogger.Int("merged", report.Merged),
		applogger.Int("rejected", report.Rejected),
	)
	if dryRun || m.store == nil {
		return report, recs
	}

	batches := chunkRecords(recs, m.batchSize)
	report.Batches = len(batches)
	for i, batch := range batches {
		if ctx.Err() != nil {
			m.log.Warn("import cancelled", applogger.Int("remaining_batches", len(batches)-i))
			report.FailedBatches += len(batches) - i
			break
		}
		m.log.Info("writing batch", applogger.Int("batch", i+1), applogger.Int("of", len(batches)))
		if err := m.writeBatch(ctx, batch); err != nil {
			report.FailedBatches++
			m.log.Error("batch failed", applogger.Int("batch", i+1), applogger.Error(err))
			continue
		}
		report.Written += len(batch)
	}
	m.log.Info("history import complete",
		applogger.Int("written", report.Written),
		applogger.Int("failed_batches", report.FailedBatches),
	)
	return report, recs
}

func (m *HistoryMerger) writeBatch(ctx context.Context, batch []models.PersistedRecord) error {
	ctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	if err := m.store.PutBatch(ctx, batch); err != nil {
		return fmt.Errorf("put batch of %d: %w", len(batch), err)
	}
	return nil
}

func chunkRecords(recs []models.PersistedRecord, size int) [][]models.PersistedRecord {
	var out [][]models.PersistedRecord
	for start := 0; start < len(recs); start += size {
		end := start + size
		if end > len(recs) {
			end = len(recs)
		}
		out = append(out, recs[start:end])
	}
	return out
}

// normalizeSlots decodes every slot through models.SlotValue and re-encodes it
// in the shape the engine persists, so epoch times survive a reload. Nulls are
// kept; unreadable slots are dropped. It also returns the latest slot time.
func (m *HistoryMerger) normalizeSlots(index int, state map[string]json.RawMessage) (map[string]json.RawMessage, time.Time, bool) {
	out := make(map[string]json.RawMessage, len(state))
	var latest time.Time
	found := false
	for slot, raw := range state {
		var v *models.SlotValue
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				m.log.Warn("drop unreadable history slot",
					applogger.Int("index", index),
					applogger.String("slot", slot),
					applogger.Error(err),
				)
				continue
			}
		}
		if v == nil {
			out[slot] = json.RawMessage("null")
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[slot] = b
		if !v.ObservedAt.IsZero() && (!found || v.ObservedAt.After(latest)) {
			latest, found = v.ObservedAt, true
		}
	}
	return out, latest, found
}
