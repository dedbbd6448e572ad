package control

import (
	"sync"
	"time"
)

// debouncer coalesces rapid search requests. Each pane owns one;
// scheduling a new call drops the pending one.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// schedule runs fn after d, cancelling any pending call. A zero delay
// still goes through the timer so fn always runs off the caller's
// stack.
func (d *debouncer) schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fn)
}

// cancel drops any pending call.
func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// lazyDelay is the long debounce used for the secondary-object pane,
// so typing in the command pane does not trigger premature catalog
// work.
const lazyDelay = 300 * time.Millisecond

// searchDelay scales inversely with query length: longer keys narrow
// the candidate set, so later keystrokes can afford to fire sooner.
func searchDelay(key string, interactive, lazy bool) time.Duration {
	if lazy {
		return lazyDelay
	}
	if interactive || key == "" {
		return 0
	}
	return time.Duration(50/len(key)) * time.Millisecond
}
