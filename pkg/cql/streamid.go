package cql

import (
	"sync"
	"time"

	"github.com/twmb/go-rbtree"
)

// streamIDAllocator hands out stream ids for one Connection, in bands of
// bandSize (128, matching the common v3+ pool-growth granularity rather
// than allocating the full 32768-wide v3+ space up front). Most ids are
// recycled through a simple free list; the rbtree only holds ids whose
// release has been *deferred* — spec.md §9's Open Question on what happens
// to a speculative attempt's stream id after it loses the race. Those ids
// are kept out of the free list, ordered by the deadline at which it's
// safe to actually reclaim them (once that attempt's connection can no
// longer plausibly still reply), and a periodic Sweep moves expired ones
// into the free list.
type streamIDAllocator struct {
	mu       sync.Mutex
	maxBands int // hard cap, derived from Version.MaxStreamID()/bandSize
	bandSize int
	nextFresh int
	free      []int16
	deferred  rbtree.Tree
}

// deferredEntry is the rbtree.Item ordering deferred releases by deadline,
// so Sweep can always pop the earliest-expiring entry first.
type deferredEntry struct {
	deadline time.Time
	id       int16
}

func (d *deferredEntry) Less(other rbtree.Item) bool {
	return d.deadline.Before(other.(*deferredEntry).deadline)
}

func newStreamIDAllocator(maxStreamID, bandSize int) *streamIDAllocator {
	return &streamIDAllocator{
		maxBands: maxStreamID / bandSize,
		bandSize: bandSize,
	}
}

// Acquire returns the most recently freed stream id if there is one, and
// otherwise the next never-used id below the allocator's capacity; ok is
// false once both are exhausted.
func (a *streamIDAllocator) Acquire() (int16, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id, true
	}
	if int(a.nextFresh) < a.maxBands*a.bandSize {
		id := int16(a.nextFresh)
		a.nextFresh++
		return id, true
	}
	return 0, false
}

// Release returns id to the free list immediately: the normal path, used
// once a response (or a definitive failure) has been attributed to it.
func (a *streamIDAllocator) Release(id int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, id)
}

// ReleaseDeferred is used when a speculative attempt loses the race and is
// cancelled: id cannot go back in the free list until deadline has passed,
// since a reply already in flight from the server could otherwise be
// misattributed to whatever new request reused the id in the meantime.
func (a *streamIDAllocator) ReleaseDeferred(id int16, deadline time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deferred.Insert(&deferredEntry{deadline: deadline, id: id})
}

// Sweep reclaims any deferred ids whose deadline has passed, making them
// available to Acquire again. A Connection calls this on each heartbeat
// tick; the rbtree ordering means it only ever looks at entries that might
// be ready, never rescanning ones still pending.
func (a *streamIDAllocator) Sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		n := a.deferred.Min()
		if n == nil {
			return
		}
		e := n.Item.(*deferredEntry)
		if e.deadline.After(now) {
			return
		}
		a.deferred.Delete(n)
		a.free = append(a.free, e.id)
	}
}

// Outstanding reports how many ids are neither free nor deferred — i.e. how
// many requests this connection currently believes are in flight.
func (a *streamIDAllocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.nextFresh) - len(a.free) - a.deferred.Len()
}
