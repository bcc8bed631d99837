package repository

import (
	"context"

	"SignalGrid/internal/domain/models"
)

// GridStore is the durable key-value store backing the grid.
// Records expire on the store side at PersistedRecord.ExpiresAt.
type GridStore interface {
	Put(ctx context.Context, rec models.PersistedRecord) error
	PutBatch(ctx context.Context, recs []models.PersistedRecord) error
	ScanAll(ctx context.Context) ([]models.PersistedRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// NewsFeed fetches the current headlines from an external provider.
type NewsFeed interface {
	FetchHeadlines(ctx context.Context) ([]models.Headline, error)
}

// Journal publishes accepted signal events for downstream consumers.
type Journal interface {
	PublishSignal(ctx context.Context, ev models.SignalEvent, rec *models.GridRecord) error
	Close() error
}

type Metrics interface {
	RecordEvent(result string)
	RecordPersist(result string)
	RecordViewers(n int)
	RecordBroadcast(kind string, recipients int)
	RecordEviction()
	RecordNewsFetch(result string)
	RecordSessionState(polling bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
