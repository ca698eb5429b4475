package accounts

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

const accountKeyPrefix = "account:"

// BadgerDB is a persistent AccountsDB backed by BadgerDB.
type BadgerDB struct {
	db    *badger.DB
	count atomic.Uint64
}

// NewBadgerDB opens (or creates) a store at path. An empty path opens an
// in-memory badger instance.
func NewBadgerDB(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	bdb := &BadgerDB{db: db}
	count, err := bdb.countAccounts()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	bdb.count.Store(count)
	return bdb, nil
}

func makeAccountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, len(accountKeyPrefix)+32)
	copy(key, accountKeyPrefix)
	copy(key[len(accountKeyPrefix):], pubkey[:])
	return key
}

func (db *BadgerDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	var account *types.Account
	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeAccountKey(pubkey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			account, derr = DeserializeAccount(val)
			return derr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (db *BadgerDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	return db.Apply([]Update{{Pubkey: pubkey, Account: account}})
}

func (db *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	return db.Apply([]Update{{Pubkey: pubkey}})
}

func (db *BadgerDB) HasAccount(pubkey types.Pubkey) bool {
	var exists bool
	_ = db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(makeAccountKey(pubkey))
		exists = err == nil
		return nil
	})
	return exists
}

func (db *BadgerDB) GetAccountsCount() uint64 {
	return db.count.Load()
}

// Apply writes the batch in a single badger transaction. The account
// count is adjusted only after the transaction commits.
func (db *BadgerDB) Apply(updates []Update) error {
	var delta int64
	err := db.db.Update(func(txn *badger.Txn) error {
		delta = 0
		for _, u := range updates {
			key := makeAccountKey(u.Pubkey)
			_, err := txn.Get(key)
			existed := err == nil
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if u.Account == nil {
				if !existed {
					continue
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				delta--
				continue
			}

			data, err := SerializeAccount(u.Account)
			if err != nil {
				return fmt.Errorf("serialize %s: %w", u.Pubkey, err)
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			if !existed {
				delta++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	db.count.Add(uint64(delta))
	return nil
}

func (db *BadgerDB) Range(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(accountKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			pubkey, err := types.PubkeyFromBytes(item.Key()[len(accountKeyPrefix):])
			if err != nil {
				return err
			}
			var account *types.Account
			if err := item.Value(func(val []byte) error {
				var derr error
				account, derr = DeserializeAccount(val)
				return derr
			}); err != nil {
				return err
			}
			if err := fn(pubkey, account); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStopIteration) {
		return nil
	}
	return err
}

func (db *BadgerDB) Close() error {
	return db.db.Close()
}

func (db *BadgerDB) countAccounts() (uint64, error) {
	var count uint64
	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(accountKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

var _ AccountsDB = (*BadgerDB)(nil)
