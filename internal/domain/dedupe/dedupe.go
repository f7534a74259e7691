// Package dedupe claims AGC transaction ids so that concurrent submissions
// carrying the same txn cannot both reach the ledger.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records claimed txn ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was claimed and claims it if not.
	// Returns true if id was already claimed, false if it was newly claimed.
	SeenAndRecord(ctx context.Context, id string) (Claim, bool)

	// Unrecord releases a claim so the txn can be retried, e.g. after the
	// ledger rejected it or the commit failed. A claim that was evicted and
	// taken again by another caller is left alone.
	Unrecord(ctx context.Context, c Claim)

	Size() int64
}

// Claim is the receipt of one successful SeenAndRecord.
type Claim struct {
	ID    string
	token uint64
}

// inMemoryDeduper implements Deduper with a map and an insertion-ordered list.
// Bounded mode (maxSize > 0) evicts the oldest claim first.
// Unbounded mode (maxSize <= 0) never evicts.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int
	size    atomic.Int64
	next    uint64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]*list.Element)
	d.order = list.New()

	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) (Claim, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return Claim{}, true
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}

	d.next++
	c := Claim{ID: id, token: d.next}
	d.seen[id] = d.order.PushBack(c)
	d.size.Add(1)
	return c, false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, c Claim) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, exists := d.seen[c.ID]
	if !exists || el.Value.(Claim).token != c.token {
		return
	}
	d.order.Remove(el)
	delete(d.seen, c.ID)
	d.size.Add(-1)
}

// evictOldest drops the earliest claim. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.seen, front.Value.(Claim).ID)
	d.size.Add(-1)
}

// Size returns the current number of claims held.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
