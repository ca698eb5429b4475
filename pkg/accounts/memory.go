package accounts

import (
	"errors"
	"sort"
	"sync"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// MemoryDB is an in-memory AccountsDB. Accounts are cloned on the way in
// and on the way out so callers never alias stored state.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*types.Account
}

// NewMemoryDB creates an empty in-memory account database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{accounts: make(map[types.Pubkey]*types.Account)}
}

func (db *MemoryDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[pubkey]
	if !exists {
		return nil, nil
	}
	return account.Clone(), nil
}

func (db *MemoryDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	if account == nil {
		return errors.New("cannot store nil account")
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts[pubkey] = account.Clone()
	return nil
}

func (db *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, pubkey)
	return nil
}

func (db *MemoryDB) HasAccount(pubkey types.Pubkey) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.accounts[pubkey]
	return exists
}

func (db *MemoryDB) GetAccountsCount() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.accounts))
}

func (db *MemoryDB) Apply(updates []Update) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range updates {
		if u.Account == nil {
			delete(db.accounts, u.Pubkey)
			continue
		}
		db.accounts[u.Pubkey] = u.Account.Clone()
	}
	return nil
}

func (db *MemoryDB) Range(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	db.mu.RLock()
	keys := make([]types.Pubkey, 0, len(db.accounts))
	for pk := range db.accounts {
		keys = append(keys, pk)
	}
	db.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	for _, pk := range keys {
		account, _ := db.GetAccount(pk)
		if account == nil {
			continue
		}
		if err := fn(pk, account); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (db *MemoryDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = make(map[types.Pubkey]*types.Account)
	return nil
}

var _ AccountsDB = (*MemoryDB)(nil)
