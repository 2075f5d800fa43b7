/*

The deposit registry is the authoritative mapping from a canonical pair to
its accounting record, plus an insertion-ordered key index used for
enumeration. The count and the index are maintained together with the
mapping under one lock so they can never drift apart, including when a pair
is added, removed and re-added.

*/

package registry

import (
	"errors"
	"sync"

	"github.com/streamlp/lpm/internal/types"
)

var (
	// ErrNotFound is returned when an operation references a pair with no
	// deposit record.
	ErrNotFound = errors.New("no deposit exists for pair")
)

// Book holds all open deposit records for the engine instance.
// All methods are safe for concurrent use; mutations are serialized behind
// a single exclusive-writer lock and reads always see the most recently
// committed mutation.
type Book struct {
	mu       sync.RWMutex
	deposits map[types.Pair]types.Deposit
	order    []types.Pair // enumeration index, insertion order
}

// NewBook creates an empty deposit registry.
func NewBook() *Book {
	return &Book{
		deposits: make(map[types.Pair]types.Deposit),
	}
}

// Upsert inserts or replaces the record for d.Pair. On first insert the key
// is appended to the enumeration index exactly once; replacing an existing
// record leaves the index untouched.
func (b *Book) Upsert(d types.Deposit) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.deposits[d.Pair]; !exists {
		b.order = append(b.order, d.Pair)
	}
	b.deposits[d.Pair] = d
}

// Remove deletes the record for the pair and removes its key from the
// enumeration index. Returns ErrNotFound if no record exists.
func (b *Book) Remove(pair types.Pair) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.deposits[pair]; !exists {
		return ErrNotFound
	}
	delete(b.deposits, pair)

	for i, key := range b.order {
		if key == pair {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the record for the pair, if one exists.
func (b *Book) Get(pair types.Pair) (types.Deposit, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	d, ok := b.deposits[pair]
	return d, ok
}

// Count returns the number of live records. It always equals the length of
// the enumeration returned by Keys.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.order)
}

// Keys returns the canonical pair keys in insertion order. The returned
// slice is a copy and safe for the caller to retain.
func (b *Book) Keys() []types.Pair {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]types.Pair, len(b.order))
	copy(keys, b.order)
	return keys
}

// Snapshot returns all records in insertion order.
func (b *Book) Snapshot() []types.Deposit {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.Deposit, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.deposits[key])
	}
	return out
}
