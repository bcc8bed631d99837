package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SignalGrid/internal/domain/models"
)

// ClickHouseGridStore keeps one row per composite key. ReplacingMergeTree
// collapses versions on last_updated and the table TTL expires old rows.
type ClickHouseGridStore struct {
	db       *sql.DB
	database string
	table    string
}

// NewClickHouseGridStore creates the store; call InitSchema once before use.
func NewClickHouseGridStore(db *sql.DB, database, table string) *ClickHouseGridStore {
	return &ClickHouseGridStore{db: db, database: database, table: table}
}

// SchemaStatements returns the idempotent DDL for the grid table.
func (s *ClickHouseGridStore) SchemaStatements() []string {
	var stmts []string
	if s.database != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database))
	}
	return append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    symbol_date  String,
    state_data   String,
    last_updated DateTime64(3, 'UTC'),
    expires_at   DateTime('UTC')
) ENGINE = ReplacingMergeTree(last_updated)
ORDER BY symbol_date
TTL expires_at`, s.qualified()))
}

func (s *ClickHouseGridStore) Put(ctx context.Context, rec models.PersistedRecord) error {
	return s.PutBatch(ctx, []models.PersistedRecord{rec})
}

func (s *ClickHouseGridStore) PutBatch(ctx context.Context, recs []models.PersistedRecord) error {
	if len(recs) == 0 {
		return nil
	}
	q, args := s.insertQuery(recs)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("clickhouse insert (%d): %w", len(recs), err)
	}
	return nil
}

func (s *ClickHouseGridStore) insertQuery(recs []models.PersistedRecord) (string, []interface{}) {
	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*4)
	for _, r := range recs {
		values = append(values, "(?, ?, ?, ?)")
		args = append(args, r.Key, r.StateData, r.LastUpdated.UTC(), r.ExpiresAt.UTC())
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol_date, state_data, last_updated, expires_at) VALUES %s",
		s.qualified(), strings.Join(values, ","))
	return q, args
}

// ScanAll reads the collapsed view of every unexpired row.
func (s *ClickHouseGridStore) ScanAll(ctx context.Context) ([]models.PersistedRecord, error) {
	q := fmt.Sprintf("SELECT symbol_date, state_data, last_updated, expires_at FROM %s FINAL WHERE expires_at > now()", s.qualified())
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("clickhouse scan: %w", err)
	}
	defer rows.Close()

	var out []models.PersistedRecord
	for rows.Next() {
		var (
			rec     models.PersistedRecord
			updated time.Time
			expires time.Time
		)
		if err := rows.Scan(&rec.Key, &rec.StateData, &updated, &expires); err != nil {
			return nil, fmt.Errorf("clickhouse scan row: %w", err)
		}
		rec.LastUpdated = updated.UTC()
		rec.ExpiresAt = expires.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *ClickHouseGridStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseGridStore) Close() error {
	return s.db.Close()
}

func (s *ClickHouseGridStore) qualified() string {
	if s.database == "" {
		return s.table
	}
	return s.database + "." + s.table
}
