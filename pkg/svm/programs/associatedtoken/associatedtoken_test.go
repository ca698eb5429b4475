package associatedtoken

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/system"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

type resolver map[types.Pubkey]syscall.Program

func (r resolver) GetProgram(id types.Pubkey) (syscall.Program, bool) {
	p, ok := r[id]
	return p, ok
}

type ledger map[types.Pubkey]*types.Account

func newLedger(funder, mint types.Pubkey) ledger {
	mintData := token.NewMint(6, testPubkey("authority"), token.COption{}).Serialize()
	return ledger{
		funder: types.NewAccount(1_000_000_000, types.SystemProgramID),
		mint: {
			Lamports: types.RentExemptMinimum(token.MintSize),
			Data:     mintData,
			Owner:    types.TokenProgramID,
		},
		types.SystemProgramID: {Executable: true, Owner: types.NativeLoaderID},
		types.TokenProgramID:  {Executable: true, Owner: types.NativeLoaderID},
	}
}

func (l ledger) exec(t *testing.T, ix types.Instruction) error {
	t.Helper()
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		infos[i] = syscall.NewAccountInfo(meta.Pubkey, l[meta.Pubkey], meta.IsSigner, meta.IsWritable)
	}
	ctx := syscall.NewExecutionContext(ix.ProgramID, infos, ix.Data, 200_000)
	ctx.SetProgramResolver(resolver{
		types.SystemProgramID: system.New(),
		types.TokenProgramID:  token.New(),
	})
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

func TestCreate(t *testing.T) {
	funder, wallet, mint := testPubkey("funder"), testPubkey("wallet"), testPubkey("mint")
	l := newLedger(funder, mint)

	ix, ata, err := NewCreateInstruction(funder, wallet, mint, false)
	require.NoError(t, err)
	require.NoError(t, l.exec(t, ix))

	rent := types.RentExemptMinimum(token.TokenAccountSize)
	assert.Equal(t, types.Lamports(1_000_000_000)-rent, l[funder].Lamports)
	assert.Equal(t, rent, l[ata].Lamports)
	assert.Equal(t, types.TokenProgramID, l[ata].Owner)

	acct, err := token.DeserializeTokenAccount(l[ata].Data)
	require.NoError(t, err)
	assert.Equal(t, wallet, acct.Owner)
	assert.Equal(t, mint, acct.Mint)
	assert.Zero(t, acct.Amount)

	assert.ErrorIs(t, l.exec(t, ix), ErrAccountAlreadyExists)
}

func TestCreateIdempotent(t *testing.T) {
	funder, wallet, mint := testPubkey("funder"), testPubkey("wallet"), testPubkey("mint")
	l := newLedger(funder, mint)

	ix, ata, err := NewCreateInstruction(funder, wallet, mint, true)
	require.NoError(t, err)
	require.NoError(t, l.exec(t, ix))
	before := l[funder].Lamports

	require.NoError(t, l.exec(t, ix))
	assert.Equal(t, before, l[funder].Lamports)
	assert.Equal(t, types.TokenProgramID, l[ata].Owner)
}

func TestCreate_PreFunded(t *testing.T) {
	funder, wallet, mint := testPubkey("funder"), testPubkey("wallet"), testPubkey("mint")
	l := newLedger(funder, mint)

	ix, ata, err := NewCreateInstruction(funder, wallet, mint, false)
	require.NoError(t, err)
	l[ata] = types.NewAccount(1000, types.SystemProgramID)

	require.NoError(t, l.exec(t, ix))
	assert.Equal(t, types.RentExemptMinimum(token.TokenAccountSize), l[ata].Lamports)
	assert.Len(t, l[ata].Data, token.TokenAccountSize)
}

func TestCreate_WrongAddress(t *testing.T) {
	funder, wallet, mint := testPubkey("funder"), testPubkey("wallet"), testPubkey("mint")
	l := newLedger(funder, mint)

	ix, _, err := NewCreateInstruction(funder, wallet, mint, false)
	require.NoError(t, err)
	ix.Accounts[1].Pubkey = testPubkey("elsewhere")

	assert.ErrorIs(t, l.exec(t, ix), ErrInvalidSeeds)
}
