// Package cache holds the latest telemetry snapshot for the control loop.
//
// A [Cache] has exactly one writer (the socket receive loop) and any number
// of readers. Every accepted update replaces the whole document and bumps a
// generation counter in the same critical section. Waiters compare
// generations instead of consuming a one-shot signal, so an update that lands
// between "read the generation" and "start waiting" is never lost.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The mutex is held only while
// swapping or reading the document, never across I/O or sleeps.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/san-kum/simbridge/internal/state"
)

type Cache struct {
	mu        sync.Mutex
	doc       state.Document
	gen       uint64
	updatedAt time.Time
	// changed is closed and replaced on every PutState; a waiter that
	// captured it together with gen is woken by the next update.
	changed chan struct{}
}

// Snapshot is a consistent copy of the cache contents.
type Snapshot struct {
	Doc        state.Document
	Generation uint64
	UpdatedAt  time.Time
}

func New() *Cache {
	return &Cache{changed: make(chan struct{})}
}

// PutState replaces the stored document. Ownership of doc passes to the
// cache; the caller must not modify it afterwards.
func (c *Cache) PutState(doc state.Document) {
	c.mu.Lock()
	c.doc = doc
	c.gen++
	c.updatedAt = time.Now()
	changed := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()

	close(changed)
}

// State returns a deep copy of the current document, or false before the
// first update. It does not affect any waiter.
func (c *Cache) State() (state.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return nil, false
	}
	return c.doc.Clone(), true
}

// View runs fn against the current document without copying it. The
// document must not be retained or modified after fn returns.
func (c *Cache) View(fn func(doc state.Document, generation uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.doc, c.gen)
}

func (c *Cache) Snapshot() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return Snapshot{Generation: c.gen}, false
	}
	return Snapshot{Doc: c.doc.Clone(), Generation: c.gen, UpdatedAt: c.updatedAt}, true
}

func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Age reports how long ago the last update arrived. It is zero before the
// first update.
func (c *Cache) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updatedAt.IsZero() {
		return 0
	}
	return time.Since(c.updatedAt)
}

// Observation resolves spec against the current document. See
// state.ObservationSpec.Project for the zero-fill rules.
func (c *Cache) Observation(spec state.ObservationSpec) state.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return spec.Project(c.doc)
}

// ObservationAt is Observation plus the generation it was read from.
func (c *Cache) ObservationAt(spec state.ObservationSpec) (state.Vector, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return spec.Project(c.doc), c.gen
}

// AwaitNextUpdate blocks until an update newer than the one current at call
// entry arrives, or until timeout elapses. It reports whether an update was
// observed.
func (c *Cache) AwaitNextUpdate(timeout time.Duration) bool {
	return c.AwaitSince(c.Generation(), timeout)
}

// AwaitSince blocks until the generation differs from since, or until
// timeout elapses. Passing a generation captured earlier closes the window
// between reading the generation and starting to wait.
func (c *Cache) AwaitSince(since uint64, timeout time.Duration) bool {
	if timeout <= 0 {
		return c.Generation() != since
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	_, ok := c.wait(since, timer.C, nil)
	return ok
}

// AwaitUpdates waits for n successive updates, each within timeout. It is
// used after a state reset to skip frames the producer emitted while still
// applying the reset. A count of zero or less is satisfied at once.
func (c *Cache) AwaitUpdates(n int, timeout time.Duration) bool {
	if n <= 0 {
		return true
	}
	since := c.Generation()
	target := since + uint64(n)
	for since < target {
		timer := time.NewTimer(timeout)
		gen, ok := c.wait(since, timer.C, nil)
		timer.Stop()
		if !ok {
			return false
		}
		since = gen
	}
	return true
}

// Wait blocks until the generation differs from since or ctx is done. It
// returns the generation observed.
func (c *Cache) Wait(ctx context.Context, since uint64) (uint64, error) {
	gen, ok := c.wait(since, nil, ctx.Done())
	if !ok {
		return gen, ctx.Err()
	}
	return gen, nil
}

func (c *Cache) wait(since uint64, timeout <-chan time.Time, done <-chan struct{}) (uint64, bool) {
	for {
		c.mu.Lock()
		gen, changed := c.gen, c.changed
		c.mu.Unlock()

		if gen != since {
			return gen, true
		}

		select {
		case <-changed:
		case <-timeout:
			gen = c.Generation()
			return gen, gen != since
		case <-done:
			gen = c.Generation()
			return gen, gen != since
		}
	}
}
