package runtime

import (
	"context"
	"sort"
	"sync"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// AccountLocks grants a transaction exclusive access to its writable
// accounts and shared access to its read-only accounts. A transaction takes
// every lock at once or none, so overlapping transactions serialize without
// deadlock while disjoint ones run in parallel.
type AccountLocks struct {
	mu      sync.Mutex
	writers map[types.Pubkey]struct{}
	readers map[types.Pubkey]int
	// changed is closed and replaced on every release.
	changed chan struct{}
}

// NewAccountLocks creates an empty lock table.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{
		writers: make(map[types.Pubkey]struct{}),
		readers: make(map[types.Pubkey]int),
		changed: make(chan struct{}),
	}
}

type lockSet struct {
	writable []types.Pubkey
	readonly []types.Pubkey
}

// newLockSet dedupes and orders the keys. A key requested both ways is
// locked for writing.
func newLockSet(writable, readonly []types.Pubkey) lockSet {
	w := make(map[types.Pubkey]struct{}, len(writable))
	for _, k := range writable {
		w[k] = struct{}{}
	}
	r := make(map[types.Pubkey]struct{}, len(readonly))
	for _, k := range readonly {
		if _, ok := w[k]; !ok {
			r[k] = struct{}{}
		}
	}
	return lockSet{writable: sortedKeys(w), readonly: sortedKeys(r)}
}

func sortedKeys(m map[types.Pubkey]struct{}) []types.Pubkey {
	keys := make([]types.Pubkey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Lock blocks until every lock is available or ctx is done. The returned
// function releases them and must be called exactly once.
func (l *AccountLocks) Lock(ctx context.Context, writable, readonly []types.Pubkey) (func(), error) {
	set := newLockSet(writable, readonly)
	for {
		l.mu.Lock()
		if l.available(set) {
			l.acquire(set)
			l.mu.Unlock()
			var once sync.Once
			return func() { once.Do(func() { l.release(set) }) }, nil
		}
		wait := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// TryLock takes the locks only if none is contended.
func (l *AccountLocks) TryLock(writable, readonly []types.Pubkey) (func(), bool) {
	set := newLockSet(writable, readonly)
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.available(set) {
		return nil, false
	}
	l.acquire(set)
	var once sync.Once
	return func() { once.Do(func() { l.release(set) }) }, true
}

func (l *AccountLocks) available(set lockSet) bool {
	for _, k := range set.writable {
		if _, ok := l.writers[k]; ok {
			return false
		}
		if l.readers[k] > 0 {
			return false
		}
	}
	for _, k := range set.readonly {
		if _, ok := l.writers[k]; ok {
			return false
		}
	}
	return true
}

func (l *AccountLocks) acquire(set lockSet) {
	for _, k := range set.writable {
		l.writers[k] = struct{}{}
	}
	for _, k := range set.readonly {
		l.readers[k]++
	}
}

func (l *AccountLocks) release(set lockSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range set.writable {
		delete(l.writers, k)
	}
	for _, k := range set.readonly {
		if l.readers[k] <= 1 {
			delete(l.readers, k)
		} else {
			l.readers[k]--
		}
	}
	close(l.changed)
	l.changed = make(chan struct{})
}
