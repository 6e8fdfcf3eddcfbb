// Package deletion implements the grace-period deletion state machine: a
// destructive delete becomes a cancellable pending state whose countdown is
// confirmed by server polling rather than a local clock.
package deletion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pantry-sync/internal/api"
	"pantry-sync/internal/budget"
)

// defaultGraceSeconds is used when the server's acceptance does not state
// the grace period.
const defaultGraceSeconds = 20

// ErrDeletionPending is returned by Begin while a countdown for the same
// collection is already running.
var ErrDeletionPending = errors.New("a pending deletion is already active for this collection")

// Lifecycle receives the terminal and progress transitions of a countdown.
// The mutation coordinator implements it; the watcher itself never touches
// the cache directly beyond these callbacks.
type Lifecycle interface {
	DeletionProgress(collectionID string, remainingSeconds int)
	DeletionCommitted(collectionID string)
	DeletionCancelled(collectionID string)
	DeletionFailed(collectionID string, err error)
}

// Confirmer is the external user-confirmation collaborator. Callers check it
// before Begin; the watcher only ever sees confirmed intent.
type Confirmer interface {
	ConfirmDestructiveAction(prompt string) bool
}

type countdown struct {
	cancel context.CancelFunc
	done   chan struct{}
	// resolved is set by the poller before it delivers a terminal outcome;
	// reading it is safe once done is closed.
	resolved bool
}

// Watcher runs at most one countdown per collection. Each countdown owns a
// ticker that is released exactly once, on whichever terminal transition is
// reached first, so repeated delete attempts cannot leak timers.
type Watcher struct {
	client    api.Client
	lifecycle Lifecycle
	interval  time.Duration

	mu     sync.Mutex
	active map[string]*countdown
}

// NewWatcher creates a deletion watcher polling at the given interval.
func NewWatcher(client api.Client, lifecycle Lifecycle, interval time.Duration) *Watcher {
	return &Watcher{
		client:    client,
		lifecycle: lifecycle,
		interval:  interval,
		active:    make(map[string]*countdown),
	}
}

// Active reports whether a countdown is running for the collection. While
// true, re-triggering deletion is disabled.
func (w *Watcher) Active(collectionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[collectionID]
	return ok
}

// Begin asks the server to mark the collection pending_delete and, on
// acceptance, starts the countdown poller. It returns the server-granted
// grace period in seconds.
func (w *Watcher) Begin(ctx context.Context, collectionID string) (int, error) {
	w.mu.Lock()
	if _, ok := w.active[collectionID]; ok {
		w.mu.Unlock()
		return 0, ErrDeletionPending
	}
	// Reserve the slot before the network call so a racing second Begin
	// cannot start a duplicate countdown.
	pollCtx, cancel := context.WithCancel(context.Background())
	cd := &countdown{cancel: cancel, done: make(chan struct{})}
	w.active[collectionID] = cd
	w.mu.Unlock()

	raw, err := w.client.Send(ctx, http.MethodPost, "/collections/"+collectionID+"/pending_delete", nil)
	if err != nil {
		// Resolve before closing done: a Cancel racing this failure must
		// not send a cancel request for a deletion the server never
		// accepted.
		cd.resolved = true
		w.release(collectionID)
		cancel()
		close(cd.done)
		return 0, fmt.Errorf("failed to begin pending delete: %w", err)
	}

	grace := defaultGraceSeconds
	var accepted struct {
		RemainingSeconds int `json:"remaining_seconds"`
	}
	if jsonErr := json.Unmarshal(raw, &accepted); jsonErr == nil && accepted.RemainingSeconds > 0 {
		grace = accepted.RemainingSeconds
	}

	go w.poll(pollCtx, collectionID, cd)
	return grace, nil
}

// Cancel stops the countdown and asks the server to clear the pending flag.
// The collection reverts to its prior status and stays cached unchanged.
func (w *Watcher) Cancel(ctx context.Context, collectionID string) error {
	w.mu.Lock()
	cd, ok := w.active[collectionID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending deletion for collection %s", collectionID)
	}

	cd.cancel()
	<-cd.done
	if cd.resolved {
		return fmt.Errorf("deletion of collection %s already resolved", collectionID)
	}

	if _, err := w.client.Send(ctx, http.MethodDelete, "/collections/"+collectionID+"/pending_delete", nil); err != nil {
		return fmt.Errorf("failed to cancel pending delete: %w", err)
	}
	w.lifecycle.DeletionCancelled(collectionID)
	return nil
}

// Stop cancels every outstanding countdown without touching server state.
func (w *Watcher) Stop() {
	w.mu.Lock()
	countdowns := make([]*countdown, 0, len(w.active))
	for _, cd := range w.active {
		countdowns = append(countdowns, cd)
	}
	w.mu.Unlock()

	for _, cd := range countdowns {
		cd.cancel()
		<-cd.done
	}
}

func (w *Watcher) poll(ctx context.Context, collectionID string, cd *countdown) {
	ticker := time.NewTicker(w.interval)
	defer func() {
		ticker.Stop()
		w.release(collectionID)
		close(cd.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw, err := w.client.Send(ctx, http.MethodGet, "/collections/"+collectionID+"/pending_delete/status", nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Fail safe: stop counting, assume nothing was deleted.
			cd.resolved = true
			w.lifecycle.DeletionFailed(collectionID, err)
			return
		}

		var status budget.PendingDeleteStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			cd.resolved = true
			w.lifecycle.DeletionFailed(collectionID, fmt.Errorf("failed to decode deletion status: %w", err))
			return
		}

		// remaining<=0 commits even while the server still reports pending:
		// an exhausted countdown must not leave an uncancellable wait when
		// a poll is missed.
		if !status.Pending || status.RemainingSeconds <= 0 {
			cd.resolved = true
			w.lifecycle.DeletionCommitted(collectionID)
			return
		}
		w.lifecycle.DeletionProgress(collectionID, status.RemainingSeconds)
	}
}

func (w *Watcher) release(collectionID string) {
	w.mu.Lock()
	delete(w.active, collectionID)
	w.mu.Unlock()
}
