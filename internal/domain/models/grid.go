package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRetention is how long a persisted grid record lives in the durable store.
const DefaultRetention = 15 * 24 * time.Hour

// TradingDayLayout renders the trading-day part of a composite key.
const TradingDayLayout = "2006-01-02"

// GridKey identifies one grid row.
type GridKey struct {
	Instrument string
	TradingDay string // YYYY-MM-DD
}

// String renders the composite key "INSTRUMENT-YYYY-MM-DD".
func (k GridKey) String() string {
	return k.Instrument + "-" + k.TradingDay
}

// TradingDayOf returns the trading day for an observation time.
func TradingDayOf(t time.Time) string {
	return t.UTC().Format(TradingDayLayout)
}

// ParseGridKey splits a composite key. The instrument may itself contain dashes.
func ParseGridKey(s string) (GridKey, error) {
	if len(s) < len(TradingDayLayout)+2 {
		return GridKey{}, fmt.Errorf("grid key %q: too short", s)
	}
	cut := len(s) - len(TradingDayLayout)
	day := s[cut:]
	if s[cut-1] != '-' {
		return GridKey{}, fmt.Errorf("grid key %q: missing separator", s)
	}
	if _, err := time.Parse(TradingDayLayout, day); err != nil {
		return GridKey{}, fmt.Errorf("grid key %q: %w", s, err)
	}
	inst := strings.TrimSpace(s[:cut-1])
	if inst == "" {
		return GridKey{}, fmt.Errorf("grid key %q: empty instrument", s)
	}
	return GridKey{Instrument: inst, TradingDay: day}, nil
}

// GridRecord is the latest signal state of one instrument on one trading day.
type GridRecord struct {
	Key         GridKey
	Slots       Slots
	LastUpdated time.Time
}

// NewGridRecord returns a record with every slot empty.
func NewGridRecord(key GridKey) *GridRecord {
	return &GridRecord{Key: key, Slots: NewSlots()}
}

// Clone deep-copies the record.
func (r *GridRecord) Clone() *GridRecord {
	if r == nil {
		return nil
	}
	return &GridRecord{Key: r.Key, Slots: r.Slots.Clone(), LastUpdated: r.LastUpdated}
}

// GridSnapshot is the full-state payload handed to viewers.
// It carries no "type" discriminator.
type GridSnapshot struct {
	State       map[string]Slots `json:"state"`
	SymbolOrder []string         `json:"symbolOrder"`
}

// PersistedRecord is the durable-store shape of a grid record.
type PersistedRecord struct {
	Key         string    `json:"symbolDate"`
	StateData   string    `json:"stateData"`
	LastUpdated time.Time `json:"lastUpdated"`
	ExpiresAt   time.Time `json:"-"`
}

// TTL returns the expiry as unix seconds.
func (p PersistedRecord) TTL() int64 {
	return p.ExpiresAt.Unix()
}
