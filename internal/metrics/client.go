package metrics

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"pantry-sync/internal/api"
)

// RecordingClient decorates an API client with sync telemetry. Recording
// failures are logged and never fail the request itself.
type RecordingClient struct {
	inner api.Client
	store *Store
}

// NewRecordingClient wraps client so every round trip is recorded in store.
func NewRecordingClient(client api.Client, store *Store) *RecordingClient {
	return &RecordingClient{inner: client, store: store}
}

func (c *RecordingClient) Send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.inner.Send(ctx, method, path, body)
	c.record(method, path, start, err)
	return raw, err
}

func (c *RecordingClient) SendBinary(ctx context.Context, method, path string) ([]byte, error) {
	start := time.Now()
	blob, err := c.inner.SendBinary(ctx, method, path)
	c.record(method, path, start, err)
	return blob, err
}

func (c *RecordingClient) record(method, path string, start time.Time, reqErr error) {
	outcome := OutcomeLive
	if reqErr != nil {
		outcome = OutcomeFailed
	}
	if err := c.store.Record(SyncMetric{
		Operation: operationLabel(method, path),
		Outcome:   outcome,
		LatencyMS: time.Since(start).Milliseconds(),
	}); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// operationLabel collapses a concrete request path onto its resource so
// per-collection IDs do not fan out into distinct operations.
func operationLabel(method, path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(path, "/?"); i >= 0 {
		path = path[:i]
	}
	return method + " /" + path
}
