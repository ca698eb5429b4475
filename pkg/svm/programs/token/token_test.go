package token

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

// ledger is a tiny account map the tests execute instructions against.
type ledger map[types.Pubkey]*types.Account

func (l ledger) exec(t *testing.T, ix types.Instruction) error {
	t.Helper()
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		infos[i] = syscall.NewAccountInfo(meta.Pubkey, l[meta.Pubkey], meta.IsSigner, meta.IsWritable)
	}
	ctx := syscall.NewExecutionContext(ix.ProgramID, infos, ix.Data, 200_000)
	if err := New().Execute(ctx, &ix); err != nil {
		return err
	}
	for _, info := range infos {
		if info.IsWritable {
			l[info.Pubkey] = info.ToAccount()
		}
	}
	return nil
}

func (l ledger) mint(t *testing.T, pk types.Pubkey) *Mint {
	t.Helper()
	m, err := DeserializeMint(l[pk].Data)
	require.NoError(t, err)
	return m
}

func (l ledger) tokenAccount(t *testing.T, pk types.Pubkey) *TokenAccount {
	t.Helper()
	a, err := DeserializeTokenAccount(l[pk].Data)
	require.NoError(t, err)
	return a
}

func rentFunded(size int) *types.Account {
	return &types.Account{
		Lamports: types.RentExemptMinimum(uint64(size)),
		Data:     make([]byte, size),
		Owner:    types.TokenProgramID,
	}
}

type fixture struct {
	l         ledger
	mint      types.Pubkey
	authority types.Pubkey
	alice     types.Pubkey
	bob       types.Pubkey
	aliceATA  types.Pubkey
	bobATA    types.Pubkey
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		l:         ledger{},
		mint:      testPubkey("mint"),
		authority: testPubkey("authority"),
		alice:     testPubkey("alice"),
		bob:       testPubkey("bob"),
		aliceATA:  testPubkey("alice-ata"),
		bobATA:    testPubkey("bob-ata"),
	}
	f.l[f.mint] = rentFunded(MintSize)
	f.l[f.aliceATA] = rentFunded(TokenAccountSize)
	f.l[f.bobATA] = rentFunded(TokenAccountSize)

	require.NoError(t, f.l.exec(t, NewInitializeMint2Instruction(f.mint, 6, f.authority, Some(f.authority))))
	require.NoError(t, f.l.exec(t, NewInitializeAccount3Instruction(f.aliceATA, f.mint, f.alice)))
	require.NoError(t, f.l.exec(t, NewInitializeAccount3Instruction(f.bobATA, f.mint, f.bob)))
	return f
}

func TestInitializeMint2(t *testing.T) {
	f := newFixture(t)
	m := f.l.mint(t, f.mint)
	assert.True(t, m.IsInitialized)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.True(t, m.MintAuthority.Is(f.authority))
	assert.Zero(t, m.Supply)

	err := f.l.exec(t, NewInitializeMint2Instruction(f.mint, 6, f.authority, COption{}))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeMint2_NotRentExempt(t *testing.T) {
	l := ledger{}
	mint := testPubkey("poor-mint")
	l[mint] = &types.Account{Lamports: 1, Data: make([]byte, MintSize), Owner: types.TokenProgramID}

	err := l.exec(t, NewInitializeMint2Instruction(mint, 0, testPubkey("a"), COption{}))
	assert.ErrorIs(t, err, ErrNotRentExempt)
}

func TestMintTo(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, f.authority, 500)))

	assert.Equal(t, uint64(500), f.l.mint(t, f.mint).Supply)
	assert.Equal(t, uint64(500), f.l.tokenAccount(t, f.aliceATA).Amount)

	err := f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, f.alice, 1))
	assert.ErrorIs(t, err, ErrAuthorityMismatch)

	err = f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, f.authority, ^uint64(0)))
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, uint64(500), f.l.mint(t, f.mint).Supply)
}

func TestMintTo_UnsignedAuthority(t *testing.T) {
	f := newFixture(t)
	ix := NewMintToInstruction(f.mint, f.aliceATA, f.authority, 1)
	ix.Accounts[2].IsSigner = false
	assert.ErrorIs(t, f.l.exec(t, ix), ErrAccountNotSigner)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, f.authority, 100)))

	require.NoError(t, f.l.exec(t, NewTransferInstruction(f.aliceATA, f.bobATA, f.alice, 40)))
	assert.Equal(t, uint64(60), f.l.tokenAccount(t, f.aliceATA).Amount)
	assert.Equal(t, uint64(40), f.l.tokenAccount(t, f.bobATA).Amount)

	err := f.l.exec(t, NewTransferInstruction(f.aliceATA, f.bobATA, f.alice, 61))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(60), f.l.tokenAccount(t, f.aliceATA).Amount)
	assert.Equal(t, uint64(40), f.l.tokenAccount(t, f.bobATA).Amount)

	err = f.l.exec(t, NewTransferInstruction(f.aliceATA, f.bobATA, f.bob, 1))
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestTransfer_SelfIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, f.authority, 10)))
	require.NoError(t, f.l.exec(t, NewTransferInstruction(f.aliceATA, f.aliceATA, f.alice, 10)))
	assert.Equal(t, uint64(10), f.l.tokenAccount(t, f.aliceATA).Amount)
}

func TestApprove_ReplacesAndDelegateSpends(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, f.authority, 100)))

	require.NoError(t, f.l.exec(t, NewApproveInstruction(f.aliceATA, f.bob, f.alice, 10)))
	carol := testPubkey("carol")
	require.NoError(t, f.l.exec(t, NewApproveInstruction(f.aliceATA, carol, f.alice, 5)))

	acct := f.l.tokenAccount(t, f.aliceATA)
	assert.True(t, acct.Delegate.Is(carol))
	assert.Equal(t, uint64(5), acct.DelegatedAmount)

	// The replaced delegate has no authority left.
	err := f.l.exec(t, NewTransferInstruction(f.aliceATA, f.bobATA, f.bob, 1))
	assert.ErrorIs(t, err, ErrOwnerMismatch)

	err = f.l.exec(t, NewTransferInstruction(f.aliceATA, f.bobATA, carol, 6))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, f.l.exec(t, NewTransferInstruction(f.aliceATA, f.bobATA, carol, 5)))
	acct = f.l.tokenAccount(t, f.aliceATA)
	assert.Equal(t, uint64(95), acct.Amount)
	assert.False(t, acct.Delegate.IsSome)
}

func TestApprove_NoBalanceCheck(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewApproveInstruction(f.aliceATA, f.bob, f.alice, 1_000_000)))
	assert.Equal(t, uint64(1_000_000), f.l.tokenAccount(t, f.aliceATA).DelegatedAmount)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewApproveInstruction(f.aliceATA, f.bob, f.alice, 10)))
	require.NoError(t, f.l.exec(t, NewRevokeInstruction(f.aliceATA, f.alice)))

	acct := f.l.tokenAccount(t, f.aliceATA)
	assert.False(t, acct.Delegate.IsSome)
	assert.Zero(t, acct.DelegatedAmount)

	err := f.l.exec(t, NewRevokeInstruction(f.aliceATA, testPubkey("stranger")))
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestBurn(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, f.authority, 100)))
	require.NoError(t, f.l.exec(t, NewBurnInstruction(f.aliceATA, f.mint, f.alice, 30)))

	assert.Equal(t, uint64(70), f.l.mint(t, f.mint).Supply)
	assert.Equal(t, uint64(70), f.l.tokenAccount(t, f.aliceATA).Amount)

	err := f.l.exec(t, NewBurnInstruction(f.aliceATA, f.mint, f.alice, 71))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, f.l.exec(t, NewApproveInstruction(f.aliceATA, f.bob, f.alice, 20)))
	require.NoError(t, f.l.exec(t, NewBurnInstruction(f.aliceATA, f.mint, f.bob, 20)))
	assert.Equal(t, uint64(50), f.l.mint(t, f.mint).Supply)
}

func TestSetAuthority_Mint(t *testing.T) {
	f := newFixture(t)
	next := testPubkey("next")

	err := f.l.exec(t, NewSetAuthorityInstruction(f.mint, f.alice, AuthorityMintTokens, Some(next)))
	assert.ErrorIs(t, err, ErrAuthorityMismatch)

	require.NoError(t, f.l.exec(t, NewSetAuthorityInstruction(f.mint, f.authority, AuthorityMintTokens, Some(next))))
	assert.True(t, f.l.mint(t, f.mint).MintAuthority.Is(next))

	require.NoError(t, f.l.exec(t, NewSetAuthorityInstruction(f.mint, next, AuthorityMintTokens, COption{})))
	err = f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, next, 1))
	assert.ErrorIs(t, err, ErrFixedSupply)

	err = f.l.exec(t, NewSetAuthorityInstruction(f.mint, next, AuthorityMintTokens, Some(next)))
	assert.ErrorIs(t, err, ErrFixedSupply)
}

func TestSetAuthority_AccountOwner(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewApproveInstruction(f.aliceATA, f.bob, f.alice, 10)))
	require.NoError(t, f.l.exec(t, NewSetAuthorityInstruction(f.aliceATA, f.alice, AuthorityAccountOwner, Some(f.bob))))

	acct := f.l.tokenAccount(t, f.aliceATA)
	assert.Equal(t, f.bob, acct.Owner)
	assert.False(t, acct.Delegate.IsSome)
}

func TestFreezeThaw(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.exec(t, NewMintToInstruction(f.mint, f.aliceATA, f.authority, 10)))
	require.NoError(t, f.l.exec(t, NewFreezeAccountInstruction(f.aliceATA, f.mint, f.authority, false)))

	err := f.l.exec(t, NewTransferInstruction(f.aliceATA, f.bobATA, f.alice, 1))
	assert.ErrorIs(t, err, ErrAccountFrozen)

	err = f.l.exec(t, NewFreezeAccountInstruction(f.aliceATA, f.mint, f.authority, false))
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, f.l.exec(t, NewFreezeAccountInstruction(f.aliceATA, f.mint, f.authority, true)))
	require.NoError(t, f.l.exec(t, NewTransferInstruction(f.aliceATA, f.bobATA, f.alice, 1)))
}

func TestExecute_BadData(t *testing.T) {
	f := newFixture(t)
	ix := NewMintToInstruction(f.mint, f.aliceATA, f.authority, 1)
	ix.Data = ix.Data[:4]
	assert.ErrorIs(t, f.l.exec(t, ix), ErrInvalidInstructionData)

	ix.Data = []byte{99}
	assert.ErrorIs(t, f.l.exec(t, ix), ErrInvalidInstruction)
}

func TestStateRoundTrip(t *testing.T) {
	m := NewMint(9, testPubkey("a"), COption{})
	m.Supply = 42
	got, err := DeserializeMint(m.Serialize())
	require.NoError(t, err)
	assert.Equal(t, m, got)

	a := NewTokenAccount(testPubkey("m"), testPubkey("o"))
	a.Delegate = Some(testPubkey("d"))
	a.DelegatedAmount = 7
	a.IsNative = COptionU64{IsSome: true, Value: 3}
	gotAcct, err := DeserializeTokenAccount(a.Serialize())
	require.NoError(t, err)
	assert.Equal(t, a, gotAcct)
}

func TestUIAmount(t *testing.T) {
	assert.Equal(t, "1.500000", UIAmountString(1_500_000, 6))
	assert.Equal(t, "0", UIAmountString(0, 0))

	raw, err := ParseUIAmount("12.5", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_500_000), raw)

	_, err = ParseUIAmount("0.0000001", 6)
	assert.ErrorIs(t, err, ErrInvalidUIAmount)
	_, err = ParseUIAmount("-1", 6)
	assert.ErrorIs(t, err, ErrInvalidUIAmount)
	_, err = ParseUIAmount("100000000000000000000", 0)
	assert.ErrorIs(t, err, ErrInvalidUIAmount)
}
