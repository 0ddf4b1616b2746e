// Package typewriter reveals streamed text one character at a time.
package typewriter

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDelay is the pause between two revealed characters
const DefaultDelay = 15 * time.Millisecond

// Typewriter holds a FIFO queue of text fragments and reveals them at a fixed
// per-character pace. Fragments can be enqueued from any goroutine while a
// reveal is in progress; at most one reveal loop runs at a time.
type Typewriter struct {
	mu     sync.Mutex
	queue  []string
	closed bool
	shown  strings.Builder

	wake    chan struct{}
	limiter *rate.Limiter
	running atomic.Bool
}

// New creates a Typewriter pacing characters delay apart. A delay of zero or
// less reveals without pausing.
func New(delay time.Duration) *Typewriter {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Typewriter{
		wake:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Enqueue appends fragments to the queue. Empty fragments are dropped.
func (t *Typewriter) Enqueue(fragments ...string) {
	t.mu.Lock()
	for _, f := range fragments {
		if f != "" {
			t.queue = append(t.queue, f)
		}
	}
	t.mu.Unlock()
	t.notify()
}

// Close marks the end of input. A running reveal finishes once the queue drains.
func (t *Typewriter) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.notify()
}

// Discard drops every fragment not yet revealed and returns how many there were
func (t *Typewriter) Discard() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.queue)
	t.queue = nil
	return n
}

// Pending returns the number of queued fragments
func (t *Typewriter) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Text returns everything revealed so far
func (t *Typewriter) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shown.String()
}

// Reveal returns a sequence yielding the accumulated visible text after each
// character. The sequence ends when the Typewriter is closed and drained, when
// ctx is done, or when the consumer stops iterating; stopping mid-fragment
// leaves the rest of that fragment unrevealed.
//
// A second Reveal started while one is running yields nothing.
func (t *Typewriter) Reveal(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !t.running.CompareAndSwap(false, true) {
			return
		}
		defer t.running.Store(false)

		for {
			fragment, ok := t.next(ctx)
			if !ok {
				return
			}
			for _, r := range fragment {
				if err := t.limiter.Wait(ctx); err != nil {
					return
				}
				t.mu.Lock()
				t.shown.WriteRune(r)
				text := t.shown.String()
				t.mu.Unlock()

				if !yield(text) {
					return
				}
			}
		}
	}
}

// next blocks until a fragment is queued, the input is closed, or ctx is done
func (t *Typewriter) next(ctx context.Context) (string, bool) {
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			fragment := t.queue[0]
			t.queue = t.queue[1:]
			t.mu.Unlock()
			return fragment, true
		}
		closed := t.closed
		t.mu.Unlock()

		if closed {
			return "", false
		}

		select {
		case <-t.wake:
		case <-ctx.Done():
			return "", false
		}
	}
}

func (t *Typewriter) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}
