package deletion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedClient answers the pending_delete endpoints from a canned status
// sequence and counts every call it sees.
type scriptedClient struct {
	mu       sync.Mutex
	statuses []string
	cursor   int
	pollErr  error
	calls    []string
}

func (s *scriptedClient) Send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, method+" "+path)

	if method == http.MethodGet && strings.HasSuffix(path, "/pending_delete/status") {
		if s.pollErr != nil {
			return nil, s.pollErr
		}
		if s.cursor >= len(s.statuses) {
			return json.RawMessage(`{"pending": false, "remaining_seconds": 0}`), nil
		}
		status := s.statuses[s.cursor]
		s.cursor++
		return json.RawMessage(status), nil
	}
	return json.RawMessage(`{"status": "pending_delete", "remaining_seconds": 20}`), nil
}

func (s *scriptedClient) SendBinary(ctx context.Context, method, path string) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (s *scriptedClient) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// recordingLifecycle captures transitions and signals when a terminal one
// arrives.
type recordingLifecycle struct {
	mu        sync.Mutex
	progress  []int
	committed int
	cancelled int
	failed    int
	lastErr   error
	terminal  chan struct{}
}

func newRecordingLifecycle() *recordingLifecycle {
	return &recordingLifecycle{terminal: make(chan struct{}, 1)}
}

func (r *recordingLifecycle) DeletionProgress(collectionID string, remainingSeconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, remainingSeconds)
}

func (r *recordingLifecycle) DeletionCommitted(collectionID string) {
	r.mu.Lock()
	r.committed++
	r.mu.Unlock()
	r.terminal <- struct{}{}
}

func (r *recordingLifecycle) DeletionCancelled(collectionID string) {
	r.mu.Lock()
	r.cancelled++
	r.mu.Unlock()
}

func (r *recordingLifecycle) DeletionFailed(collectionID string, err error) {
	r.mu.Lock()
	r.failed++
	r.lastErr = err
	r.mu.Unlock()
	r.terminal <- struct{}{}
}

func (r *recordingLifecycle) waitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-r.terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a terminal deletion transition")
	}
}

func pendingStatus(remaining int) string {
	return fmt.Sprintf(`{"pending": true, "remaining_seconds": %d}`, remaining)
}

func TestBegin(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsServerGrantedGrace", func(t *testing.T) {
		client := &scriptedClient{statuses: []string{`{"pending": false}`}}
		lifecycle := newRecordingLifecycle()
		w := NewWatcher(client, lifecycle, 5*time.Millisecond)

		grace, err := w.Begin(ctx, "c1")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if grace != 20 {
			t.Errorf("Expected grace of 20 seconds, got %d", grace)
		}
		if !w.Active("c1") {
			t.Error("Expected the countdown to be active after Begin")
		}
		lifecycle.waitTerminal(t)
	})

	t.Run("SecondBeginWhilePendingRejected", func(t *testing.T) {
		client := &scriptedClient{statuses: []string{
			pendingStatus(15), pendingStatus(10), pendingStatus(5), `{"pending": false}`,
		}}
		lifecycle := newRecordingLifecycle()
		w := NewWatcher(client, lifecycle, 5*time.Millisecond)

		if _, err := w.Begin(ctx, "c1"); err != nil {
			t.Fatalf("First begin failed: %v", err)
		}
		if _, err := w.Begin(ctx, "c1"); !errors.Is(err, ErrDeletionPending) {
			t.Errorf("Expected ErrDeletionPending, got %v", err)
		}
		if got := client.count("POST /collections/c1/pending_delete"); got != 1 {
			t.Errorf("Expected a single pending_delete request, got %d", got)
		}
		lifecycle.waitTerminal(t)
	})

	t.Run("TransportFailureReleasesSlot", func(t *testing.T) {
		lifecycle := newRecordingLifecycle()
		w := NewWatcher(&failingClient{}, lifecycle, 5*time.Millisecond)

		if _, err := w.Begin(ctx, "c1"); err == nil {
			t.Fatal("Expected the transport error to propagate")
		}
		if w.Active("c1") {
			t.Error("A failed begin must not leave the countdown active")
		}
	})
}

type failingClient struct{}

func (f *failingClient) Send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	return nil, errors.New("connection refused")
}

func (f *failingClient) SendBinary(ctx context.Context, method, path string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

// gatedClient holds the pending_delete request open until the gate closes,
// then fails it. Every call is recorded.
type gatedClient struct {
	mu    sync.Mutex
	calls []string
	gate  chan struct{}
}

func (g *gatedClient) Send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	g.mu.Lock()
	g.calls = append(g.calls, method+" "+path)
	g.mu.Unlock()
	if method == http.MethodPost && strings.HasSuffix(path, "/pending_delete") {
		<-g.gate
		return nil, errors.New("connection reset")
	}
	return json.RawMessage(`{}`), nil
}

func (g *gatedClient) SendBinary(ctx context.Context, method, path string) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (g *gatedClient) count(prefix string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// A Cancel racing a Begin whose request ultimately fails must not clear a
// pending flag the server never set.
func TestCancelDuringFailedBegin(t *testing.T) {
	client := &gatedClient{gate: make(chan struct{})}
	lifecycle := newRecordingLifecycle()
	w := NewWatcher(client, lifecycle, 5*time.Millisecond)

	beginErr := make(chan error, 1)
	go func() {
		_, err := w.Begin(context.Background(), "c1")
		beginErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !w.Active("c1") {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the countdown slot")
		}
		time.Sleep(time.Millisecond)
	}

	cancelErr := make(chan error, 1)
	go func() { cancelErr <- w.Cancel(context.Background(), "c1") }()
	// Let Cancel park on the countdown before the request fails.
	time.Sleep(20 * time.Millisecond)
	close(client.gate)

	if err := <-beginErr; err == nil {
		t.Fatal("Expected the begin failure to propagate")
	}
	if err := <-cancelErr; err == nil {
		t.Error("Expected the racing cancel to report failure")
	}
	if got := client.count("DELETE"); got != 0 {
		t.Errorf("No cancel request may be sent for a never-accepted deletion, got %d", got)
	}
	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	if lifecycle.cancelled != 0 {
		t.Error("No cancelled transition may fire for a never-accepted deletion")
	}
}

func TestCountdownCommits(t *testing.T) {
	ctx := context.Background()

	t.Run("CountsDownToZeroThenCommitsOnce", func(t *testing.T) {
		client := &scriptedClient{statuses: []string{
			pendingStatus(15), pendingStatus(10), pendingStatus(5),
			`{"pending": true, "remaining_seconds": 0}`,
		}}
		lifecycle := newRecordingLifecycle()
		w := NewWatcher(client, lifecycle, 5*time.Millisecond)

		if _, err := w.Begin(ctx, "c1"); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		lifecycle.waitTerminal(t)

		lifecycle.mu.Lock()
		progress := append([]int(nil), lifecycle.progress...)
		committed := lifecycle.committed
		failed := lifecycle.failed
		lifecycle.mu.Unlock()

		if committed != 1 {
			t.Errorf("Expected exactly one commit, got %d", committed)
		}
		if failed != 0 {
			t.Errorf("Expected no failure, got %d", failed)
		}
		if len(progress) != 3 || progress[0] != 15 || progress[2] != 5 {
			t.Errorf("Expected progress 15,10,5, got %v", progress)
		}

		// Polling must cease after the terminal transition.
		settled := client.count("GET")
		time.Sleep(30 * time.Millisecond)
		if got := client.count("GET"); got != settled {
			t.Errorf("Expected polling to stop after commit, saw %d extra polls", got-settled)
		}
		if w.Active("c1") {
			t.Error("Expected the countdown released after commit")
		}
	})

	t.Run("ServerClearedPendingCommitsEarly", func(t *testing.T) {
		client := &scriptedClient{statuses: []string{
			pendingStatus(18), `{"pending": false, "remaining_seconds": 12}`,
		}}
		lifecycle := newRecordingLifecycle()
		w := NewWatcher(client, lifecycle, 5*time.Millisecond)

		if _, err := w.Begin(ctx, "c1"); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		lifecycle.waitTerminal(t)

		lifecycle.mu.Lock()
		defer lifecycle.mu.Unlock()
		if lifecycle.committed != 1 {
			t.Errorf("Expected a commit when the server clears pending, got %d", lifecycle.committed)
		}
	})
}

func TestPollFailureIsFailSafe(t *testing.T) {
	client := &scriptedClient{pollErr: errors.New("connection reset")}
	lifecycle := newRecordingLifecycle()
	w := NewWatcher(client, lifecycle, 5*time.Millisecond)

	if _, err := w.Begin(context.Background(), "c1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	lifecycle.waitTerminal(t)

	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	if lifecycle.failed != 1 {
		t.Errorf("Expected one failure transition, got %d", lifecycle.failed)
	}
	if lifecycle.committed != 0 {
		t.Error("A poll failure must never commit the deletion")
	}
	if lifecycle.lastErr == nil {
		t.Error("Expected the poll error to be reported")
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("StopsPollingAndClearsServerFlag", func(t *testing.T) {
		client := &scriptedClient{statuses: []string{
			pendingStatus(19), pendingStatus(18), pendingStatus(17), pendingStatus(16),
			pendingStatus(15), pendingStatus(14), pendingStatus(13), pendingStatus(12),
		}}
		lifecycle := newRecordingLifecycle()
		w := NewWatcher(client, lifecycle, 5*time.Millisecond)

		if _, err := w.Begin(ctx, "c1"); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		time.Sleep(12 * time.Millisecond)
		if err := w.Cancel(ctx, "c1"); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}

		if got := client.count("DELETE /collections/c1/pending_delete"); got != 1 {
			t.Errorf("Expected one cancel request, got %d", got)
		}
		lifecycle.mu.Lock()
		cancelled, committed := lifecycle.cancelled, lifecycle.committed
		lifecycle.mu.Unlock()
		if cancelled != 1 {
			t.Errorf("Expected one cancelled transition, got %d", cancelled)
		}
		if committed != 0 {
			t.Error("A cancelled countdown must not commit")
		}
		if w.Active("c1") {
			t.Error("Expected the countdown released after cancel")
		}

		settled := client.count("GET")
		time.Sleep(30 * time.Millisecond)
		if got := client.count("GET"); got != settled {
			t.Error("Expected polling to stop after cancel")
		}
	})

	t.Run("WithoutPendingDeletionErrors", func(t *testing.T) {
		w := NewWatcher(&scriptedClient{}, newRecordingLifecycle(), 5*time.Millisecond)
		if err := w.Cancel(ctx, "never-started"); err == nil {
			t.Error("Expected an error cancelling a countdown that does not exist")
		}
	})
}

func TestStop(t *testing.T) {
	client := &scriptedClient{statuses: []string{
		pendingStatus(19), pendingStatus(18), pendingStatus(17), pendingStatus(16),
	}}
	lifecycle := newRecordingLifecycle()
	w := NewWatcher(client, lifecycle, 5*time.Millisecond)

	if _, err := w.Begin(context.Background(), "c1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	w.Stop()

	if w.Active("c1") {
		t.Error("Expected no active countdowns after Stop")
	}
	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	if lifecycle.committed != 0 || lifecycle.cancelled != 0 {
		t.Error("Stop must not deliver terminal transitions")
	}
}
