package persistence

import (
	"sync"
	"time"

	"prism-board/domain"
)

// DebounceQuantum is the quiet period after the last mutation before the
// remote write goes out.
const DebounceQuantum = 300 * time.Millisecond

// debouncer is a single-slot queue: scheduling replaces the pending board and
// re-arms the timer, so only the latest board of a burst is ever written.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	gen     uint64
	pending *domain.Board
	stopped bool
	fire    func(gen uint64, b *domain.Board)
}

func newDebouncer(delay time.Duration, fire func(gen uint64, b *domain.Board)) *debouncer {
	return &debouncer{delay: delay, fire: fire}
}

func (d *debouncer) schedule(b *domain.Board) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.gen++
	gen := d.gen
	d.pending = b
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.expire(gen) })
}

func (d *debouncer) expire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	b := d.pending
	d.pending = nil
	d.mu.Unlock()
	d.fire(gen, b)
}

// take removes the pending board without waiting for the timer.
func (d *debouncer) take() (*domain.Board, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	b := d.pending
	d.pending = nil
	return b, d.gen
}

// newer reports whether a board scheduled after gen is still waiting.
func (d *debouncer) newer(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil && d.gen > gen
}

func (d *debouncer) hasPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// stop drops the pending board and refuses further scheduling.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
	}
}
