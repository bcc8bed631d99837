package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"SignalGrid/internal/domain/models"
	pkgkafka "SignalGrid/pkg/kafka"
	applogger "SignalGrid/pkg/logger"
)

// Publisher is the subset of pkg/kafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// SignalUpdate is the journal message for one accepted signal.
type SignalUpdate struct {
	Key         string          `json:"key"`
	Slot        models.SlotKey  `json:"slot"`
	Price       decimal.Decimal `json:"price"`
	Time        time.Time       `json:"time"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// KafkaJournal publishes accepted signal events keyed by composite key, so
// updates to one grid row stay on one partition.
type KafkaJournal struct {
	producer Publisher
	topic    string
}

// NewKafkaJournal creates a journal on topic.
func NewKafkaJournal(producer Publisher, topic string) *KafkaJournal {
	return &KafkaJournal{producer: producer, topic: topic}
}

func (j *KafkaJournal) PublishSignal(ctx context.Context, ev models.SignalEvent, rec *models.GridRecord) error {
	msg := SignalUpdate{
		Key:   ev.Key.String(),
		Slot:  ev.Slot,
		Price: ev.Price,
		Time:  ev.ObservedAt.UTC(),
	}
	if rec != nil {
		msg.LastUpdated = rec.LastUpdated.UTC()
	}
	if err := j.producer.Publish(ctx, j.topic, []byte(msg.Key), msg); err != nil {
		return fmt.Errorf("journal %s: %w", msg.Key, err)
	}
	return nil
}

func (j *KafkaJournal) Close() error {
	return j.producer.Close()
}

// LogPublisher ships collected log entries, one record per entry keyed by level.
type LogPublisher struct {
	producer Publisher
}

// NewLogPublisher creates a log collector sink.
func NewLogPublisher(producer Publisher) *LogPublisher {
	return &LogPublisher{producer: producer}
}

func (p *LogPublisher) PublishLogs(ctx context.Context, topic string, entries []applogger.AggregatedLogEntry) error {
	msgs := make([]pkgkafka.Message, len(entries))
	for i, e := range entries {
		msgs[i] = pkgkafka.Message{Key: []byte(e.Level), Value: e}
	}
	return p.producer.PublishBatch(ctx, topic, msgs)
}
