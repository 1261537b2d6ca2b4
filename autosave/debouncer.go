// Package autosave delays writes until edits go quiet.
package autosave

import (
	"sync"
	"time"
)

type pendingAction struct {
	timer  *time.Timer
	action func()
}

// Debouncer keeps at most one pending action per key. Scheduling a key again
// replaces the pending action and restarts its timer.
type Debouncer[K comparable] struct {
	mu       sync.Mutex
	pending  map[K]*pendingAction
	stopped  bool
	inflight sync.WaitGroup
}

// NewDebouncer returns an empty Debouncer.
func NewDebouncer[K comparable]() *Debouncer[K] {
	return &Debouncer[K]{pending: make(map[K]*pendingAction)}
}

// Schedule arms action to run after delay unless key is scheduled, cancelled
// or flushed again first. It is a no-op once the Debouncer is stopped.
func (d *Debouncer[K]) Schedule(key K, action func(), delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	p := &pendingAction{action: action}
	p.timer = time.AfterFunc(delay, func() { d.fire(key, p) })
	d.pending[key] = p
}

func (d *Debouncer[K]) fire(key K, p *pendingAction) {
	d.mu.Lock()
	// A timer that lost the race against Schedule or Cancel must not run.
	if d.pending[key] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	p.action()
}

// Cancel drops the pending action of key. It reports whether one existed.
func (d *Debouncer[K]) Cancel(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, key)
	return true
}

// CancelMatching drops every pending action whose key satisfies match.
func (d *Debouncer[K]) CancelMatching(match func(K) bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for key, p := range d.pending {
		if match(key) {
			p.timer.Stop()
			delete(d.pending, key)
			n++
		}
	}
	return n
}

// CancelAll drops every pending action.
func (d *Debouncer[K]) CancelAll() int {
	return d.CancelMatching(func(K) bool { return true })
}

// Flush runs the pending action of key now, on the calling goroutine.
func (d *Debouncer[K]) Flush(key K) bool {
	d.mu.Lock()
	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	p.action()
	return true
}

// FlushAll runs every pending action now, on the calling goroutine.
func (d *Debouncer[K]) FlushAll() int {
	d.mu.Lock()
	actions := make([]func(), 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		actions = append(actions, p.action)
		delete(d.pending, key)
	}
	d.mu.Unlock()
	for _, a := range actions {
		a()
	}
	return len(actions)
}

// Pending returns the number of armed keys.
func (d *Debouncer[K]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Has reports whether key has a pending action.
func (d *Debouncer[K]) Has(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending action, refuses new ones and waits for actions
// already running on timer goroutines.
func (d *Debouncer[K]) Stop() int {
	d.mu.Lock()
	d.stopped = true
	n := len(d.pending)
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	d.inflight.Wait()
	return n
}
