package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Sync operation outcomes.
const (
	OutcomeLive   = "live"
	OutcomeFailed = "failed"
)

// SyncMetric records metadata for a single server round trip.
type SyncMetric struct {
	Operation string
	Outcome   string
	LatencyMS int64
	Timestamp time.Time
}

// OperationSummary aggregates recorded metrics per operation.
type OperationSummary struct {
	Operation    string
	Total        int
	Failed       int
	AvgLatencyMS int64
}

// Store handles persistence of sync metrics to SQLite. It shares the mirror
// cache's database connection.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a metric to the database.
func (s *Store) Record(m SyncMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO sync_metrics (operation, outcome, latency_ms, created_at) VALUES (?, ?, ?, ?)`,
		m.Operation, m.Outcome, m.LatencyMS, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync metric: %w", err)
	}
	return nil
}

// Summary aggregates everything recorded so far, grouped by operation.
func (s *Store) Summary(ctx context.Context) ([]OperationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation,
		       COUNT(*),
		       SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
		       CAST(AVG(latency_ms) AS INTEGER)
		FROM sync_metrics
		GROUP BY operation
		ORDER BY operation`, OutcomeFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sync metrics: %w", err)
	}
	defer rows.Close()

	var out []OperationSummary
	for rows.Next() {
		var row OperationSummary
		if err := rows.Scan(&row.Operation, &row.Total, &row.Failed, &row.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan sync metric summary: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Prune drops metrics older than the retention window.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_metrics WHERE created_at < ?`,
		time.Now().UTC().Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sync metrics: %w", err)
	}
	return res.RowsAffected()
}
