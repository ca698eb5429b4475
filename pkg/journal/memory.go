package journal

import (
	"context"
	"sort"
	"sync"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Memory is an in-process Journal.
type Memory struct {
	mu      sync.RWMutex
	entries map[types.Signature]*Entry
}

var _ Journal = (*Memory)(nil)

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{entries: make(map[types.Signature]*Entry)}
}

func (m *Memory) Record(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Signature]; ok {
		return ErrDuplicate
	}
	cp := *e
	m.entries[e.Signature] = &cp
	return nil
}

func (m *Memory) Get(_ context.Context, sig types.Signature) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sig]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]*Entry, error) {
	m.mu.RLock()
	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Slot > out[j].Slot })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
