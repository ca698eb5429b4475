// Package journal keeps a record of every executed transaction, whether it
// committed or failed, so clients can look results up by signature.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

var (
	ErrNotFound  = errors.New("transaction not found")
	ErrDuplicate = errors.New("transaction already journaled")
)

// Entry is the journaled outcome of one transaction.
type Entry struct {
	Signature    types.Signature
	Slot         types.Slot
	FeePayer     types.Pubkey
	Success      bool
	Error        string
	Logs         []string
	ComputeUnits uint64
	// Accounts lists the keys whose state the transaction changed.
	Accounts    []types.Pubkey
	ProcessedAt time.Time
}

// Journal stores entries keyed by signature.
type Journal interface {
	Record(ctx context.Context, e *Entry) error
	Get(ctx context.Context, sig types.Signature) (*Entry, error)
	// Recent returns up to limit entries, newest slot first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)
	Close() error
}
