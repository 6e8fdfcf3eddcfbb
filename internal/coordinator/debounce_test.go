package coordinator

import (
	"testing"
	"time"
)

func TestDebouncer(t *testing.T) {
	t.Run("FirstCallPasses", func(t *testing.T) {
		d := NewDebouncer(500 * time.Millisecond)
		if !d.Allow("add_item:c1:Rice") {
			t.Error("Expected the first call to pass")
		}
	})

	t.Run("RepeatWithinWindowSuppressed", func(t *testing.T) {
		d := NewDebouncer(500 * time.Millisecond)
		d.Allow("add_item:c1:Rice")
		if d.Allow("add_item:c1:Rice") {
			t.Error("Expected the repeat to be suppressed")
		}
	})

	t.Run("DistinctKeysIndependent", func(t *testing.T) {
		d := NewDebouncer(500 * time.Millisecond)
		d.Allow("add_item:c1:Rice")
		if !d.Allow("add_item:c1:Beans") {
			t.Error("Expected a different target to pass")
		}
		if !d.Allow("save_collection:c1") {
			t.Error("Expected a different action on the same target to pass")
		}
	})

	t.Run("PassesAgainAfterWindow", func(t *testing.T) {
		current := time.Now()
		d := NewDebouncer(500 * time.Millisecond)
		d.now = func() time.Time { return current }

		d.Allow("add_item:c1:Rice")
		current = current.Add(501 * time.Millisecond)
		if !d.Allow("add_item:c1:Rice") {
			t.Error("Expected the call to pass once the window elapsed")
		}
	})

	t.Run("SuppressedRepeatDoesNotExtendWindow", func(t *testing.T) {
		current := time.Now()
		d := NewDebouncer(500 * time.Millisecond)
		d.now = func() time.Time { return current }

		d.Allow("save_collection:c1")
		current = current.Add(400 * time.Millisecond)
		d.Allow("save_collection:c1")
		current = current.Add(150 * time.Millisecond)
		if !d.Allow("save_collection:c1") {
			t.Error("Window is measured from the last dispatched call, not the last attempt")
		}
	})
}
