/*

The pending order queue holds pair requests that have been ordered but not
yet provisioned with a minted position. Entries are drained opportunistically
by the maintenance cycle once their funding predicate is satisfied.

*/

package queue

import (
	"errors"
	"sync"

	"github.com/streamlp/lpm/internal/types"
)

var (
	// ErrAlreadyQueued is returned when a pair is enqueued twice. Duplicate
	// orders fail consistently rather than silently no-op.
	ErrAlreadyQueued = errors.New("pair is already queued for provisioning")
)

// PendingOrders is an insertion-ordered set of pairs awaiting provisioning.
type PendingOrders struct {
	mu     sync.RWMutex
	queued map[types.Pair]struct{}
	order  []types.Pair
}

// NewPendingOrders creates an empty queue.
func NewPendingOrders() *PendingOrders {
	return &PendingOrders{
		queued: make(map[types.Pair]struct{}),
	}
}

// Enqueue adds a pending request for the pair.
func (q *PendingOrders) Enqueue(pair types.Pair) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[pair]; ok {
		return ErrAlreadyQueued
	}
	q.queued[pair] = struct{}{}
	q.order = append(q.order, pair)
	return nil
}

// Drain pops, in insertion order, every entry satisfying the funding
// predicate and returns them. Entries that fail the predicate stay queued
// for a future cycle.
func (q *PendingOrders) Drain(funded func(types.Pair) bool) []types.Pair {
	q.mu.Lock()
	defer q.mu.Unlock()

	var drained []types.Pair
	remaining := q.order[:0]
	for _, pair := range q.order {
		if funded(pair) {
			delete(q.queued, pair)
			drained = append(drained, pair)
		} else {
			remaining = append(remaining, pair)
		}
	}
	q.order = remaining
	return drained
}

// Requeue puts pairs back at the front of the queue, preserving their
// relative order. Used when a maintenance cycle aborts after draining
// entries it did not get to provision.
func (q *PendingOrders) Requeue(pairs []types.Pair) {
	q.mu.Lock()
	defer q.mu.Unlock()

	restored := make([]types.Pair, 0, len(pairs)+len(q.order))
	for _, pair := range pairs {
		if _, ok := q.queued[pair]; ok {
			continue
		}
		q.queued[pair] = struct{}{}
		restored = append(restored, pair)
	}
	q.order = append(restored, q.order...)
}

// Remove deletes the pair from the queue if present and reports whether it
// was queued.
func (q *PendingOrders) Remove(pair types.Pair) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[pair]; !ok {
		return false
	}
	delete(q.queued, pair)
	for i, key := range q.order {
		if key == pair {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether the pair is queued.
func (q *PendingOrders) Contains(pair types.Pair) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	_, ok := q.queued[pair]
	return ok
}

// Keys returns the queued pairs in insertion order.
func (q *PendingOrders) Keys() []types.Pair {
	q.mu.RLock()
	defer q.mu.RUnlock()

	keys := make([]types.Pair, len(q.order))
	copy(keys, q.order)
	return keys
}

// Len returns the number of queued pairs.
func (q *PendingOrders) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.order)
}
