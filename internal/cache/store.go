package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Snapshot is the last successfully fetched value for a logical key.
// Values are never assumed current; staleness is bounded only by explicit
// invalidation after mutations.
type Snapshot struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
}

// Store is the local mirror cache. It is the only durable state the engine
// owns: a small per-user set of snapshots, so there is no eviction and no
// TTL. Writers are the mutation coordinator and the deletion watcher; render
// paths only read.
type Store struct {
	db *sql.DB
}

// NewStore creates a snapshot store over an open mirror database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the snapshot for key, or nil when the key was never populated.
// A missing snapshot is not an error.
func (s *Store) Get(ctx context.Context, key string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM snapshots WHERE key = ?`, key)

	snap := Snapshot{Key: key}
	var payload string
	if err := row.Scan(&payload, &snap.FetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot %q: %w", key, err)
	}
	snap.Payload = []byte(payload)
	return &snap, nil
}

// Put overwrites the snapshot for key with a fresh fetch timestamp.
func (s *Store) Put(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write snapshot %q: %w", key, err)
	}
	return nil
}

// Invalidate drops a snapshot so the next read path must refetch.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to invalidate snapshot %q: %w", key, err)
	}
	return nil
}

// PurgeCollection drops every snapshot owned by a deleted collection.
func (s *Store) PurgeCollection(ctx context.Context, collectionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE key IN (?, ?, ?)`,
		"collection:"+collectionID, "items:"+collectionID, "suggestions:"+collectionID)
	if err != nil {
		return fmt.Errorf("failed to purge collection %q: %w", collectionID, err)
	}
	return nil
}

// Reset clears every snapshot. Only an explicit cache reset does this;
// normal navigation never empties the mirror.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("failed to reset cache: %w", err)
	}
	return nil
}
