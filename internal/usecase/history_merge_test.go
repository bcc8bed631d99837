package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGrid/internal/domain/models"
)

func decodeItems(t *testing.T, doc string) []HistoryItem {
	t.Helper()
	items, err := DecodeHistory(strings.NewReader(doc))
	require.NoError(t, err)
	return items
}

func TestMergeUnionsSlotsAndKeepsLatestUpdate(t *testing.T) {
	items := decodeItems(t, `[
		{"symbol":"XYZ","stateData":{"long_buy_1":{"price":10,"time":"2024-01-01T05:00:00Z"}},"lastUpdated":"2024-01-01T05:00:00Z"},
		{"symbol":"XYZ","stateData":{"long_sell_1":{"price":12,"time":"2024-01-01T06:00:00Z"}},"lastUpdated":"2024-01-01T06:00:00Z"}
	]`)

	m := NewHistoryMerger(nil)
	recs, rejected := m.Merge(items)
	require.Zero(t, rejected)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "XYZ-2024-01-01", rec.Key)
	assert.JSONEq(t, `{
		"long_buy_1":{"price":10,"time":"2024-01-01T05:00:00Z"},
		"long_sell_1":{"price":12,"time":"2024-01-01T06:00:00Z"}
	}`, rec.StateData)
	want := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	assert.True(t, rec.LastUpdated.Equal(want))
	assert.True(t, rec.ExpiresAt.Equal(want.Add(models.DefaultRetention)))
}

func TestMergeLaterItemWinsRegardlessOfSlotTime(t *testing.T) {
	// Merge precedence follows input order, not the slot's own time. A later
	// item carrying an older value, or an explicit null, still overwrites.
	items := decodeItems(t, `[
		{"symbol":"XYZ","stateData":{"long_buy_1":{"price":20,"time":"2024-01-01T09:00:00Z"},"long_sell_1":{"price":5,"time":"2024-01-01T08:00:00Z"}},"lastUpdated":"2024-01-01T09:00:00Z"},
		{"symbol":"XYZ","stateData":{"long_buy_1":{"price":10,"time":"2024-01-01T05:00:00Z"},"long_sell_1":null},"lastUpdated":"2024-01-01T05:00:00Z"}
	]`)

	recs, _ := NewHistoryMerger(nil).Merge(items)
	require.Len(t, recs, 1)
	assert.JSONEq(t, `{
		"long_buy_1":{"price":10,"time":"2024-01-01T05:00:00Z"},
		"long_sell_1":null
	}`, recs[0].StateData)
	assert.True(t, recs[0].LastUpdated.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
}

func TestMergeGroupsByLatestSlotDay(t *testing.T) {
	items := decodeItems(t, `[
		{"symbol":"AAA","stateData":{"long_buy_1":{"price":1,"time":"2024-01-01T23:00:00Z"},"short_buy_2":{"price":2,"time":"2024-01-02T01:00:00Z"}},"lastUpdated":"2024-01-02T01:00:00Z"},
		{"symbol":"BBB","stateData":{"long_buy_1":{"price":3,"time":"2024-01-01T10:00:00Z"}},"lastUpdated":"2024-01-01T10:00:00Z"},
		{"symbol":"AAA","stateData":{"long_buy_1":{"price":4,"time":"2024-01-01T10:00:00Z"}},"lastUpdated":"2024-01-01T10:00:00Z"}
	]`)

	recs, rejected := NewHistoryMerger(nil).Merge(items)
	require.Zero(t, rejected)
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"AAA-2024-01-02", "BBB-2024-01-01", "AAA-2024-01-01"}, keys)
}

func TestMergeRejectsItemsWithoutSignalTime(t *testing.T) {
	items := decodeItems(t, `[
		{"symbol":"XYZ","stateData":{"long_buy_1":null},"lastUpdated":"2024-01-01T05:00:00Z"},
		{"symbol":"XYZ","stateData":{},"lastUpdated":"2024-01-01T05:00:00Z"},
		{"symbol":"","stateData":{"long_buy_1":{"price":1,"time":"2024-01-01T05:00:00Z"}}},
		{"symbol":"OK","stateData":{"long_buy_1":{"price":1,"time":"2024-01-01T05:00:00Z"}}}
	]`)

	recs, rejected := NewHistoryMerger(nil).Merge(items)
	assert.Equal(t, 3, rejected)
	require.Len(t, recs, 1)
	assert.Equal(t, "OK-2024-01-01", recs[0].Key)
	// Missing lastUpdated falls back to the latest slot time.
	assert.True(t, recs[0].LastUpdated.Equal(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)))
}

func manyItems(n int) []HistoryItem {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"symbol":"S%03d","stateData":{"long_buy_1":{"price":1,"time":"2024-01-01T05:00:00Z"}},"lastUpdated":"2024-01-01T05:00:00Z"}`, i)
	}
	b.WriteString("]")
	items, _ := DecodeHistory(strings.NewReader(b.String()))
	return items
}

func TestImportWritesBatchesAndSkipsFailures(t *testing.T) {
	store := &fakeStore{failBatch: map[int]bool{1: true}}
	m := NewHistoryMerger(store, WithBatchSize(25))

	report, recs := m.Import(context.Background(), manyItems(60), false)
	assert.Len(t, recs, 60)
	assert.Equal(t, ImportReport{Raw: 60, Merged: 60, Batches: 3, FailedBatches: 1, Written: 35}, report)

	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 25)
	assert.Len(t, store.batches[1], 25)
	assert.Len(t, store.batches[2], 10)
	assert.Equal(t, "S050-2024-01-01", store.batches[2][0].Key)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	store := &fakeStore{}
	report, recs := NewHistoryMerger(store).Import(context.Background(), manyItems(3), true)
	assert.Len(t, recs, 3)
	assert.Zero(t, report.Batches)
	assert.Empty(t, store.batches)
}

func TestWithBatchSizeIsCapped(t *testing.T) {
	m := NewHistoryMerger(nil, WithBatchSize(100))
	assert.Equal(t, MaxImportBatch, m.batchSize)
	m = NewHistoryMerger(nil, WithBatchSize(10))
	assert.Equal(t, 10, m.batchSize)
}

func TestDecodeHistoryRejectsNonArray(t *testing.T) {
	_, err := DecodeHistory(strings.NewReader(`{"symbol":"XYZ"}`))
	assert.Error(t, err)
}

func TestMergeNormalizesEpochSlotTimes(t *testing.T) {
	items := decodeItems(t, `[
		{"symbol":"XYZ","stateData":{
			"long_buy_1":{"price":10,"time":"1704085200000"},
			"long_sell_1":{"price":12,"time":1704088800},
			"short_buy_2":{"price":3,"time":"yesterday"},
			"short_sell_3":null
		}}
	]`)

	recs, rejected := NewHistoryMerger(nil).Merge(items)
	require.Zero(t, rejected)
	require.Len(t, recs, 1)
	assert.Equal(t, "XYZ-2024-01-01", recs[0].Key)
	assert.JSONEq(t, `{
		"long_buy_1":{"price":10,"time":"2024-01-01T05:00:00Z"},
		"long_sell_1":{"price":12,"time":"2024-01-01T06:00:00Z"},
		"short_sell_3":null
	}`, recs[0].StateData)
	assert.True(t, recs[0].LastUpdated.Equal(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)))
}

func TestImportedRecordsReloadIntoEngine(t *testing.T) {
	items := decodeItems(t, `[
		{"symbol":"XYZ","stateData":{"long_buy_1":{"price":10,"time":"1704085200000"}}},
		{"symbol":"XYZ","stateData":{"short_sell_2":{"price":7.5,"time":"2024-01-01T07:00:00+05:30"}}}
	]`)
	store := &fakeStore{}
	report, _ := NewHistoryMerger(store).Import(context.Background(), items, false)
	require.Equal(t, 1, report.Written)
	require.Len(t, store.batches, 1)

	store.scan = store.batches[0]
	e := newTestEngine(newFakeClock(t0), nil, store)
	assert.Equal(t, 1, e.LoadFromStore(context.Background()))

	rec, ok := e.Record("XYZ-2024-01-01")
	require.True(t, ok)
	require.NotNil(t, rec.Slots[models.SlotLongBuy1])
	assert.Equal(t, "10", rec.Slots[models.SlotLongBuy1].Price.String())
	assert.True(t, rec.Slots[models.SlotLongBuy1].ObservedAt.Equal(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)))
	require.NotNil(t, rec.Slots[models.SlotShortSell2])
	assert.True(t, rec.Slots[models.SlotShortSell2].ObservedAt.Equal(time.Date(2024, 1, 1, 1, 30, 0, 0, time.UTC)))
}
