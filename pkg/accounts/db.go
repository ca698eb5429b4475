// Package accounts stores ledger accounts. Two backends are provided: an
// in-memory map for tests and ephemeral runs, and a BadgerDB store for
// persistent nodes.
package accounts

import (
	"errors"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// ErrStopIteration may be returned from a Range callback to stop early
// without reporting an error.
var ErrStopIteration = errors.New("stop iteration")

// Update is one entry of an atomic batch. A nil Account deletes the key.
type Update struct {
	Pubkey  types.Pubkey
	Account *types.Account
}

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	SetAccount(pubkey types.Pubkey, account *types.Account) error
	DeleteAccount(pubkey types.Pubkey) error
	HasAccount(pubkey types.Pubkey) bool
	GetAccountsCount() uint64

	// Apply writes every update or none of them.
	Apply(updates []Update) error

	// Range calls fn for every stored account in key order.
	Range(fn func(pubkey types.Pubkey, account *types.Account) error) error

	Close() error
}
