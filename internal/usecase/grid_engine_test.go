package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGrid/internal/domain/models"
	"SignalGrid/pkg/metrics"
)

var t0 = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func event(sym string, slot models.SlotKey, price string, at time.Time) models.SignalEvent {
	return models.SignalEvent{
		Key:        models.GridKey{Instrument: sym, TradingDay: models.TradingDayOf(at)},
		Slot:       slot,
		Price:      decimal.RequireFromString(price),
		ObservedAt: at,
	}
}

func newTestEngine(clock *fakeClock, p Persister, store *fakeStore) *GridEngine {
	if store == nil {
		store = &fakeStore{}
	}
	return NewGridEngine(store, p, metrics.Nop{}, WithClock(clock.Now))
}

func snapshotJSON(t *testing.T, e *GridEngine) string {
	t.Helper()
	b, err := json.Marshal(e.Snapshot())
	require.NoError(t, err)
	return string(b)
}

func TestApplyLastWriteWins(t *testing.T) {
	clock := newFakeClock(t0)
	e := newTestEngine(clock, nil, nil)

	_, err := e.Apply(event("XYZ", models.SlotLongBuy1, "100", t0))
	require.NoError(t, err)
	clock.Advance(time.Second)
	rec, err := e.Apply(event("XYZ", models.SlotLongBuy1, "101.25", t0.Add(time.Minute)))
	require.NoError(t, err)

	v := rec.Slots[models.SlotLongBuy1]
	require.NotNil(t, v)
	assert.True(t, v.Price.Equal(decimal.RequireFromString("101.25")))
	assert.True(t, v.ObservedAt.Equal(t0.Add(time.Minute)))
	assert.True(t, v.UpdatedAt.Equal(t0.Add(time.Second)))
	assert.True(t, rec.LastUpdated.Equal(t0.Add(time.Second)))
	assert.Len(t, rec.Slots, len(models.AllSlots()))
	assert.Equal(t, 1, e.Len())
}

func TestApplyLastUpdatedNeverDecreases(t *testing.T) {
	clock := newFakeClock(t0)
	e := newTestEngine(clock, nil, nil)

	_, err := e.Apply(event("XYZ", models.SlotLongBuy1, "1", t0))
	require.NoError(t, err)
	clock.Set(t0.Add(-time.Hour))
	rec, err := e.Apply(event("XYZ", models.SlotShortBuy2, "2", t0))
	require.NoError(t, err)
	assert.True(t, rec.LastUpdated.Equal(t0))
}

func TestApplyUnknownSlotLeavesStateIdentical(t *testing.T) {
	clock := newFakeClock(t0)
	p := &capturePersister{}
	e := newTestEngine(clock, p, nil)
	_, err := e.Apply(event("XYZ", models.SlotLongBuy1, "1", t0))
	require.NoError(t, err)

	before := snapshotJSON(t, e)
	clock.Advance(time.Minute)
	_, err = e.Apply(event("XYZ", models.SlotKey("long_buy_7"), "9", t0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnknownSlot))

	assert.JSONEq(t, before, snapshotJSON(t, e))
	assert.Len(t, p.recs, 1)
}

func TestRecencyIndexOrderAndUniqueness(t *testing.T) {
	clock := newFakeClock(t0)
	e := newTestEngine(clock, nil, nil)

	for _, sym := range []string{"AAA", "BBB", "CCC", "AAA", "BBB", "AAA"} {
		clock.Advance(time.Second)
		_, err := e.Apply(event(sym, models.SlotLongSell1, "1", t0))
		require.NoError(t, err)
	}

	snap := e.Snapshot()
	assert.Equal(t, []string{"AAA-2024-01-15", "BBB-2024-01-15", "CCC-2024-01-15"}, snap.SymbolOrder)
	assert.Len(t, snap.State, 3)
}

func TestTradingDaySplitsRows(t *testing.T) {
	clock := newFakeClock(t0)
	e := newTestEngine(clock, nil, nil)
	_, err := e.Apply(event("XYZ", models.SlotLongBuy1, "1", t0))
	require.NoError(t, err)
	_, err = e.Apply(event("XYZ", models.SlotLongBuy1, "2", t0.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	clock := newFakeClock(t0)
	e := newTestEngine(clock, nil, nil)
	_, err := e.Apply(event("XYZ", models.SlotLongBuy1, "1", t0))
	require.NoError(t, err)

	snap := e.Snapshot()
	snap.State["XYZ-2024-01-15"][models.SlotLongBuy1].Price = decimal.NewFromInt(99)
	snap.State["XYZ-2024-01-15"][models.SlotShortSell2] = &models.SlotValue{}

	rec, ok := e.Record("XYZ-2024-01-15")
	require.True(t, ok)
	assert.True(t, rec.Slots[models.SlotLongBuy1].Price.Equal(decimal.NewFromInt(1)))
	assert.Nil(t, rec.Slots[models.SlotShortSell2])
}

func TestApplyEnqueuesFullRecordWithRetention(t *testing.T) {
	clock := newFakeClock(t0)
	p := &capturePersister{}
	e := NewGridEngine(&fakeStore{}, p, metrics.Nop{}, WithClock(clock.Now), WithRetention(48*time.Hour))

	_, err := e.Apply(event("XYZ", models.SlotShortBuy3, "7", t0))
	require.NoError(t, err)

	require.Len(t, p.recs, 1)
	pr := p.recs[0]
	assert.Equal(t, "XYZ-2024-01-15", pr.Key)
	assert.True(t, pr.ExpiresAt.Equal(t0.Add(48*time.Hour)))
	assert.True(t, pr.LastUpdated.Equal(t0))

	var slots map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(pr.StateData), &slots))
	assert.Len(t, slots, len(models.AllSlots()))
	assert.JSONEq(t, "null", string(slots["long_buy_1"]))
}

func TestReconcileRoundTrip(t *testing.T) {
	clock := newFakeClock(t0)
	p := &capturePersister{}
	e := newTestEngine(clock, p, nil)

	inputs := []models.SignalEvent{
		event("AAA", models.SlotLongBuy1, "10", t0),
		event("BBB", models.SlotShortSell3, "20.5", t0),
		event("AAA", models.SlotShortBuy2, "11", t0.Add(time.Minute)),
		event("CCC", models.SlotLongSell1, "30", t0),
		event("BBB", models.SlotShortSell3, "21", t0.Add(2*time.Minute)),
	}
	for _, ev := range inputs {
		clock.Advance(time.Second)
		_, err := e.Apply(ev)
		require.NoError(t, err)
	}

	restored := newTestEngine(newFakeClock(t0), nil, nil)
	assert.Equal(t, 3, restored.Reconcile(p.latest()))
	assert.JSONEq(t, snapshotJSON(t, e), snapshotJSON(t, restored))
	assert.Equal(t, e.Snapshot().SymbolOrder, restored.Snapshot().SymbolOrder)
}

func TestReconcileSkipsMalformedAndKeepsMostRecentDuplicate(t *testing.T) {
	older := models.PersistedRecord{
		Key:         "XYZ-2024-01-15",
		StateData:   `{"long_buy_1":{"price":1,"time":"2024-01-15T09:00:00Z"}}`,
		LastUpdated: t0,
	}
	newer := models.PersistedRecord{
		Key:         "XYZ-2024-01-15",
		StateData:   `{"long_buy_1":{"price":2,"time":"2024-01-15T09:05:00Z"},"legacy_slot":{"price":3}}`,
		LastUpdated: t0.Add(time.Minute),
	}
	undated := models.PersistedRecord{
		Key:       "OLD-2024-01-15",
		StateData: `{}`,
	}
	recs := []models.PersistedRecord{
		undated,
		older,
		{Key: "", StateData: `{}`, LastUpdated: t0},
		{Key: "BAD-2024-01-15", StateData: "", LastUpdated: t0},
		{Key: "BAD2-2024-01-15", StateData: "{not json", LastUpdated: t0},
		{Key: "nodate", StateData: `{}`, LastUpdated: t0},
		newer,
	}

	e := newTestEngine(newFakeClock(t0), nil, nil)
	assert.Equal(t, 2, e.Reconcile(recs))

	snap := e.Snapshot()
	assert.Equal(t, []string{"XYZ-2024-01-15", "OLD-2024-01-15"}, snap.SymbolOrder)

	slots := snap.State["XYZ-2024-01-15"]
	assert.Len(t, slots, len(models.AllSlots()))
	require.NotNil(t, slots[models.SlotLongBuy1])
	assert.True(t, slots[models.SlotLongBuy1].Price.Equal(decimal.NewFromInt(2)))
	_, hasLegacy := slots["legacy_slot"]
	assert.False(t, hasLegacy)
	assert.Len(t, snap.State["OLD-2024-01-15"], len(models.AllSlots()))
}

func TestLiveUpdateMovesReconciledKeyToFront(t *testing.T) {
	clock := newFakeClock(t0)
	e := newTestEngine(clock, nil, nil)
	e.Reconcile([]models.PersistedRecord{
		{Key: "AAA-2024-01-15", StateData: `{}`, LastUpdated: t0.Add(2 * time.Second)},
		{Key: "BBB-2024-01-15", StateData: `{}`, LastUpdated: t0.Add(time.Second)},
	})
	clock.Advance(time.Minute)
	_, err := e.Apply(event("BBB", models.SlotLongBuy1, "1", t0))
	require.NoError(t, err)
	assert.Equal(t, []string{"BBB-2024-01-15", "AAA-2024-01-15"}, e.Snapshot().SymbolOrder)
}

func TestLoadFromStore(t *testing.T) {
	store := &fakeStore{scan: []models.PersistedRecord{
		{Key: "AAA-2024-01-15", StateData: `{}`, LastUpdated: t0},
	}}
	e := newTestEngine(newFakeClock(t0), nil, store)
	assert.Equal(t, 1, e.LoadFromStore(context.Background()))

	failing := newTestEngine(newFakeClock(t0), nil, &fakeStore{scanErr: errors.New("unreachable")})
	assert.Equal(t, 0, failing.LoadFromStore(context.Background()))
	assert.Equal(t, 0, failing.Len())
}
