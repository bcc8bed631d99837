package repository

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
	pkgkafka "SignalGrid/pkg/kafka"
	applogger "SignalGrid/pkg/logger"
)

type recordedMessage struct {
	topic string
	key   []byte
	value interface{}
}

type fakePublisher struct {
	msgs []recordedMessage
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, recordedMessage{topic: topic, key: key, value: value})
	return nil
}

func (f *fakePublisher) PublishBatch(ctx context.Context, topic string, msgs []pkgkafka.Message) error {
	for _, m := range msgs {
		if err := f.Publish(ctx, topic, m.Key, m.Value); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestKafkaJournalPublishesKeyedUpdate(t *testing.T) {
	p := &fakePublisher{}
	j := NewKafkaJournal(p, "grid-updates")

	obs := time.Date(2024, 1, 15, 9, 20, 0, 0, time.UTC)
	ev := models.SignalEvent{
		Key:        models.GridKey{Instrument: "XYZ", TradingDay: "2024-01-15"},
		Slot:       models.SlotShortBuy2,
		Price:      decimal.RequireFromString("12.5"),
		ObservedAt: obs,
	}
	rec := models.NewGridRecord(ev.Key)
	rec.LastUpdated = obs.Add(time.Second)

	require.NoError(t, j.PublishSignal(context.Background(), ev, rec))
	require.Len(t, p.msgs, 1)
	assert.Equal(t, "grid-updates", p.msgs[0].topic)
	assert.Equal(t, "XYZ-2024-01-15", string(p.msgs[0].key))

	b, err := json.Marshal(p.msgs[0].value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"XYZ-2024-01-15","slot":"short_buy_2","price":12.5,
		"time":"2024-01-15T09:20:00Z","lastUpdated":"2024-01-15T09:20:01Z"}`, string(b))
}

func TestKafkaJournalWrapsError(t *testing.T) {
	cause := errors.New("broker down")
	j := NewKafkaJournal(&fakePublisher{err: cause}, "t")
	err := j.PublishSignal(context.Background(), models.SignalEvent{}, nil)
	assert.ErrorIs(t, err, cause)
}

func TestLogPublisherSendsOneRecordPerEntry(t *testing.T) {
	p := &fakePublisher{}
	lp := NewLogPublisher(p)
	entries := []applogger.AggregatedLogEntry{
		{Level: "error", Message: "persist failed", Count: 3},
		{Level: "error", Message: "journal failed", Count: 1},
	}
	require.NoError(t, lp.PublishLogs(context.Background(), "logs", entries))
	require.Len(t, p.msgs, 2)
	assert.Equal(t, "error", string(p.msgs[0].key))
	assert.Equal(t, entries[1], p.msgs[1].value)
}
