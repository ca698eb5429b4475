package accounts

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

func testAccount(lamports types.Lamports, data []byte, owner types.Pubkey) *types.Account {
	return &types.Account{Lamports: lamports, Data: data, Owner: owner}
}

// backends runs fn against every AccountsDB implementation.
func backends(t *testing.T, fn func(t *testing.T, db AccountsDB)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryDB())
	})
	t.Run("badger", func(t *testing.T) {
		db, err := NewBadgerDB(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		fn(t, db)
	})
}

func TestAccountsDB_SetGetDelete(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		pk := testPubkey("acct")

		missing, err := db.GetAccount(pk)
		require.NoError(t, err)
		assert.Nil(t, missing)
		assert.False(t, db.HasAccount(pk))

		acct := testAccount(1_000, []byte("data"), types.TokenProgramID)
		require.NoError(t, db.SetAccount(pk, acct))
		assert.True(t, db.HasAccount(pk))
		assert.Equal(t, uint64(1), db.GetAccountsCount())

		got, err := db.GetAccount(pk)
		require.NoError(t, err)
		assert.True(t, acct.Equal(got))

		// overwrite keeps the count
		require.NoError(t, db.SetAccount(pk, testAccount(5, nil, types.SystemProgramID)))
		assert.Equal(t, uint64(1), db.GetAccountsCount())

		require.NoError(t, db.DeleteAccount(pk))
		assert.False(t, db.HasAccount(pk))
		assert.Equal(t, uint64(0), db.GetAccountsCount())
	})
}

func TestAccountsDB_GetReturnsCopy(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		pk := testPubkey("copy")
		require.NoError(t, db.SetAccount(pk, testAccount(1, []byte{1, 2, 3}, types.SystemProgramID)))

		got, err := db.GetAccount(pk)
		require.NoError(t, err)
		got.Data[0] = 99

		again, err := db.GetAccount(pk)
		require.NoError(t, err)
		assert.Equal(t, byte(1), again.Data[0])
	})
}

func TestAccountsDB_Apply(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		a, b, c := testPubkey("a"), testPubkey("b"), testPubkey("c")
		require.NoError(t, db.SetAccount(c, testAccount(3, nil, types.SystemProgramID)))

		require.NoError(t, db.Apply([]Update{
			{Pubkey: a, Account: testAccount(1, nil, types.SystemProgramID)},
			{Pubkey: b, Account: testAccount(2, []byte{7}, types.TokenProgramID)},
			{Pubkey: c},
		}))

		assert.Equal(t, uint64(2), db.GetAccountsCount())
		assert.False(t, db.HasAccount(c))
		got, err := db.GetAccount(b)
		require.NoError(t, err)
		assert.Equal(t, []byte{7}, got.Data)
	})
}

func TestAccountsDB_RangeStops(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		for _, s := range []string{"x", "y", "z"} {
			require.NoError(t, db.SetAccount(testPubkey(s), testAccount(1, nil, types.SystemProgramID)))
		}

		var seen []types.Pubkey
		require.NoError(t, db.Range(func(pk types.Pubkey, _ *types.Account) error {
			seen = append(seen, pk)
			if len(seen) == 2 {
				return ErrStopIteration
			}
			return nil
		}))
		require.Len(t, seen, 2)
		assert.True(t, seen[0].Less(seen[1]))
	})
}

func TestBadgerDB_ReopenKeepsCount(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadgerDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.SetAccount(testPubkey("1"), testAccount(1, nil, types.SystemProgramID)))
	require.NoError(t, db.SetAccount(testPubkey("2"), testAccount(1, nil, types.SystemProgramID)))
	require.NoError(t, db.Close())

	db, err = NewBadgerDB(dir)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, uint64(2), db.GetAccountsCount())
}

func TestSerializeAccount_Errors(t *testing.T) {
	_, err := SerializeAccount(nil)
	assert.Error(t, err)

	_, err = DeserializeAccount([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	raw, err := SerializeAccount(testAccount(1, []byte("abc"), types.SystemProgramID))
	require.NoError(t, err)
	_, err = DeserializeAccount(raw[:len(raw)-1])
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestSnapshot_ExportImport(t *testing.T) {
	src := NewMemoryDB()
	for i, s := range []string{"mint", "ata-1", "ata-2"} {
		acct := testAccount(types.Lamports(i+1), bytes.Repeat([]byte{byte(i)}, 82), types.TokenProgramID)
		require.NoError(t, src.SetAccount(testPubkey(s), acct))
	}

	var buf bytes.Buffer
	n, err := ExportSnapshot(src, &buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	dst, err := NewBadgerDB("")
	require.NoError(t, err)
	defer dst.Close()

	n, err = ImportSnapshot(dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	assert.Equal(t, uint64(3), dst.GetAccountsCount())

	require.NoError(t, src.Range(func(pk types.Pubkey, want *types.Account) error {
		got, err := dst.GetAccount(pk)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "account %s differs", pk)
		return nil
	}))
}

func TestImportSnapshot_RejectsGarbage(t *testing.T) {
	_, err := ImportSnapshot(NewMemoryDB(), bytes.NewReader([]byte("not a snapshot")))
	assert.Error(t, err)
}

func TestImportSnapshot_RejectsTamperedAccount(t *testing.T) {
	src := NewMemoryDB()
	require.NoError(t, src.SetAccount(testPubkey("mint"), testAccount(7, bytes.Repeat([]byte{1}, 82), types.TokenProgramID)))

	var buf bytes.Buffer
	_, err := ExportSnapshot(src, &buf)
	require.NoError(t, err)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(buf.Bytes(), nil)
	require.NoError(t, err)
	// flip a byte inside the account payload, ahead of the digest
	plain[len(plain)-40] ^= 0xff

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	tampered := enc.EncodeAll(plain, nil)
	require.NoError(t, enc.Close())

	dst := NewMemoryDB()
	_, err = ImportSnapshot(dst, bytes.NewReader(tampered))
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
	assert.Zero(t, dst.GetAccountsCount())
}
