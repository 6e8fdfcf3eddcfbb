package coordinator

import (
	"sync"
	"time"
)

// Debouncer collapses rapid repeats of the same intent into a single
// dispatch. The window is keyed by action+target, so unrelated concurrent
// actions never block each other. The first call in a window goes through;
// repeats inside the window are suppressed.
type Debouncer struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewDebouncer creates a debouncer with the given suppression window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether a dispatch for key may proceed, recording the
// attempt when it may.
func (d *Debouncer) Allow(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[key] = now
	return true
}
