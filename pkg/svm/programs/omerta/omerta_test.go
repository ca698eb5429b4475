package omerta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/crypto"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/metadata"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/system"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func requireCode(t *testing.T, res *types.TransactionResult, want *ProgramError) {
	t.Helper()
	require.False(t, res.Success, "expected %s", want.Name)
	require.ErrorIs(t, res.Error, want)
	code, ok := CodeOf(res.Error)
	require.True(t, ok)
	assert.Equal(t, want.Code, code)
}

func TestInitialize(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)

	mint := e.mint()
	assert.True(t, mint.IsInitialized)
	assert.Equal(t, uint8(6), mint.Decimals)
	assert.Zero(t, mint.Supply)
	assert.True(t, mint.MintAuthority.Is(e.addrs.Mint), "derived authority")
	assert.True(t, mint.FreezeAuthority.Is(e.addrs.Mint))

	record := e.metadata()
	assert.Equal(t, e.addrs.Mint, record.Mint)
	assert.Equal(t, e.payer.Pubkey(), record.UpdateAuthority)
	assert.True(t, record.IsMutable)
	data := record.Data.Trimmed()
	assert.Equal(t, "Omerta", data.Name)
	assert.Equal(t, "OMT", data.Symbol)
	require.NotNil(t, record.TokenStandard)
	assert.Equal(t, metadata.TokenStandardFungible, *record.TokenStandard)

	acc, err := e.db.GetAccount(e.addrs.Mint)
	require.NoError(t, err)
	assert.Equal(t, types.TokenProgramID, acc.Owner)
	assert.Equal(t, types.RentExemptMinimum(token.MintSize), acc.Lamports)
}

func TestInitialize_PreFundedMintAddress(t *testing.T) {
	rent := types.RentExemptMinimum(token.MintSize)
	for name, gift := range map[string]uint64{
		"dust":       1,
		"above rent": uint64(rent) + 7,
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, DefaultConfig())
			griefer := e.wallet(7)
			e.mustSend(system.NewTransferInstruction(griefer.Pubkey(), e.addrs.Mint, gift), griefer)

			e.initialize(6)
			mint := e.mint()
			assert.True(t, mint.IsInitialized)
			assert.True(t, mint.MintAuthority.Is(e.addrs.Mint))

			acc, err := e.db.GetAccount(e.addrs.Mint)
			require.NoError(t, err)
			assert.Equal(t, types.TokenProgramID, acc.Owner)
			assert.Len(t, acc.Data, token.MintSize)
			assert.Equal(t, max(rent, types.Lamports(gift)), acc.Lamports)
			assert.Equal(t, e.payer.Pubkey(), e.metadata().UpdateAuthority)
		})
	}
}

func TestInitialize_AlreadyInitialized(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)

	ix, err := NewInitializeInstruction(e.prog.ID(), e.payer.Pubkey(), InitTokenParams{Name: "Again", Symbol: "AG", Decimals: 6})
	require.NoError(t, err)
	requireCode(t, e.send(ix, e.payer), ErrAlreadyInitialized)
}

func TestInitialize_InvalidDecimals(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	ix, err := NewInitializeInstruction(e.prog.ID(), e.payer.Pubkey(), InitTokenParams{Name: "Omerta", Symbol: "OMT", Decimals: 10})
	require.NoError(t, err)
	requireCode(t, e.send(ix, e.payer), ErrInvalidDecimals)
	assert.False(t, e.db.HasAccount(e.addrs.Mint))
}

func TestInitialize_MetadataFailureLeavesNoMint(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	before := e.snapshot()

	ix, err := NewInitializeInstruction(e.prog.ID(), e.payer.Pubkey(), InitTokenParams{
		Name: strings.Repeat("n", metadata.MaxNameLength+1), Symbol: "OMT", Decimals: 6,
	})
	require.NoError(t, err)
	res := e.send(ix, e.payer)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, metadata.ErrNameTooLong)
	assert.False(t, e.db.HasAccount(e.addrs.Mint))
	assert.False(t, e.db.HasAccount(e.addrs.Metadata))
	assert.Equal(t, before, e.snapshot())
}

func TestInitialize_WrongMintAddress(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	ix, err := NewInitializeInstruction(e.prog.ID(), e.payer.Pubkey(), InitTokenParams{Name: "Omerta", Symbol: "OMT", Decimals: 6})
	require.NoError(t, err)
	ix.Accounts[1].Pubkey = types.Pubkey{1, 2, 3}
	requireCode(t, e.send(ix, e.payer), ErrInvalidMintAddress)
}

func TestMintTokens(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	holder := e.wallet(1)

	res := e.mintTo(holder.Pubkey(), 1_000)
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, uint64(1_000), e.balance(holder.Pubkey()))
	assert.Equal(t, uint64(1_000), e.mint().Supply)

	// Second mint reuses the existing token account.
	require.True(t, e.mintTo(holder.Pubkey(), 500).Success)
	assert.Equal(t, uint64(1_500), e.balance(holder.Pubkey()))
	assert.Equal(t, uint64(1_500), e.mint().Supply)
}

func TestMintTokens_CapIsInclusive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cap = 1_000
	e := newEnv(t, cfg)
	e.initialize(0)
	holder := e.wallet(1)

	require.True(t, e.mintTo(holder.Pubkey(), 600).Success)
	requireCode(t, e.mintTo(holder.Pubkey(), 401), ErrCapExceeded)
	assert.Equal(t, uint64(600), e.mint().Supply)
	assert.Equal(t, uint64(600), e.balance(holder.Pubkey()))

	require.True(t, e.mintTo(holder.Pubkey(), 400).Success)
	assert.Equal(t, uint64(1_000), e.mint().Supply)
	requireCode(t, e.mintTo(holder.Pubkey(), 1), ErrCapExceeded)
}

func TestMintTokens_OverflowIsCapExceeded(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(9)
	holder := e.wallet(1)

	require.True(t, e.mintTo(holder.Pubkey(), MaxCap).Success)
	requireCode(t, e.mintTo(holder.Pubkey(), ^uint64(0)), ErrCapExceeded)
	assert.Equal(t, uint64(MaxCap), e.mint().Supply)
}

func TestMintTokens_ZeroAmount(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	requireCode(t, e.mintTo(e.wallet(1).Pubkey(), 0), ErrZeroAmount)
}

func TestMintTokens_Uninitialized(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	requireCode(t, e.mintTo(e.wallet(1).Pubkey(), 10), ErrAccountOwnedByWrongProgram)
}

func TestMintTokens_ReadOnlyMint(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	ix := e.mintIx(e.wallet(1).Pubkey(), types.ZeroPubkey, 10)
	ix.Accounts[0].IsWritable = false
	requireCode(t, e.send(ix, e.payer), ErrAccountNotWritable)
}

func TestMintTokens_DerivedAuthorityNeedsAdministrator(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	stranger := e.wallet(8)

	ix, err := NewMintTokensInstruction(e.prog.ID(), stranger.Pubkey(), stranger.Pubkey(), types.ZeroPubkey, MaxCap)
	require.NoError(t, err)
	requireCode(t, e.send(ix, stranger), ErrSignerMismatch)
	assert.Zero(t, e.mint().Supply)
	assert.Zero(t, e.balance(stranger.Pubkey()))

	// A record other than the mint's own cannot vouch for the payer.
	ix = e.mintIx(stranger.Pubkey(), types.ZeroPubkey, 10)
	ix.Accounts[8].Pubkey = types.Pubkey{4, 4}
	requireCode(t, e.send(ix, e.payer), ErrInvalidAccountBinding)

	// The administrator mints to anyone.
	e.mustSend(e.mintIx(stranger.Pubkey(), types.ZeroPubkey, 10), e.payer)
	assert.Equal(t, uint64(10), e.balance(stranger.Pubkey()))
}

func TestMintTokens_ImpostorAuthority(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	impostor := e.wallet(9)

	ix := e.mintIx(e.wallet(1).Pubkey(), impostor.Pubkey(), 10)
	requireCode(t, e.send(ix, e.payer, impostor), ErrSignerMismatch)
	assert.Zero(t, e.mint().Supply)
}

func TestTransfer(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	alice, bob := e.wallet(1), e.wallet(2)
	require.True(t, e.mintTo(alice.Pubkey(), 1_000).Success)

	ix, err := NewTransferInstruction(e.prog.ID(), alice.Pubkey(), bob.Pubkey(), 300)
	require.NoError(t, err)
	e.mustSend(ix, alice)

	assert.Equal(t, uint64(700), e.balance(alice.Pubkey()))
	assert.Equal(t, uint64(300), e.balance(bob.Pubkey()))
	assert.Equal(t, uint64(1_000), e.mint().Supply, "transfer conserves supply")

	ix, err = NewTransferInstruction(e.prog.ID(), alice.Pubkey(), bob.Pubkey(), 701)
	require.NoError(t, err)
	res := e.send(ix, alice)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, token.ErrInsufficientFunds)
	assert.Equal(t, uint64(700), e.balance(alice.Pubkey()))
	assert.Equal(t, uint64(300), e.balance(bob.Pubkey()))
	assert.Equal(t, uint64(1_000), e.mint().Supply)
}

func TestTransfer_ToSelf(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	alice := e.wallet(1)
	require.True(t, e.mintTo(alice.Pubkey(), 100).Success)

	ix, err := NewTransferInstruction(e.prog.ID(), alice.Pubkey(), alice.Pubkey(), 40)
	require.NoError(t, err)
	e.mustSend(ix, alice)
	assert.Equal(t, uint64(100), e.balance(alice.Pubkey()))
}

func TestTransfer_SenderWithoutAccount(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	alice, bob := e.wallet(1), e.wallet(2)

	ix, err := NewTransferInstruction(e.prog.ID(), alice.Pubkey(), bob.Pubkey(), 1)
	require.NoError(t, err)
	requireCode(t, e.send(ix, alice), ErrAccountOwnedByWrongProgram)
}

func TestApproveAndDelegatedBurn(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	alice, carol, dave := e.wallet(1), e.wallet(3), e.wallet(4)
	require.True(t, e.mintTo(alice.Pubkey(), 1_000).Success)

	approve := func(delegate types.Pubkey, amount uint64) {
		ix, err := NewApproveInstruction(e.prog.ID(), alice.Pubkey(), delegate, amount)
		require.NoError(t, err)
		e.mustSend(ix, alice)
	}
	burnBy := func(authority *crypto.Keypair, amount uint64) *types.TransactionResult {
		ix, err := NewBurnInstruction(e.prog.ID(), alice.Pubkey(), authority.Pubkey(), amount)
		require.NoError(t, err)
		return e.send(ix, authority)
	}

	approve(carol.Pubkey(), 100)
	ta := e.tokenAccount(alice.Pubkey())
	assert.True(t, ta.Delegate.Is(carol.Pubkey()))
	assert.Equal(t, uint64(100), ta.DelegatedAmount)

	// A new approval replaces the old one.
	approve(dave.Pubkey(), 50)
	ta = e.tokenAccount(alice.Pubkey())
	assert.True(t, ta.Delegate.Is(dave.Pubkey()))
	assert.Equal(t, uint64(50), ta.DelegatedAmount)

	res := burnBy(carol, 10)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, token.ErrOwnerMismatch)

	res = burnBy(dave, 51)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, token.ErrInsufficientFunds)

	require.True(t, burnBy(dave, 50).Success)
	ta = e.tokenAccount(alice.Pubkey())
	assert.Equal(t, uint64(950), ta.Amount)
	assert.False(t, ta.Delegate.IsSome, "exhausted delegation is cleared")
	assert.Equal(t, uint64(950), e.mint().Supply)
}

func TestRevoke(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	alice, carol := e.wallet(1), e.wallet(3)
	require.True(t, e.mintTo(alice.Pubkey(), 100).Success)

	ix, err := NewApproveInstruction(e.prog.ID(), alice.Pubkey(), carol.Pubkey(), 100)
	require.NoError(t, err)
	e.mustSend(ix, alice)

	ix, err = NewRevokeInstruction(e.prog.ID(), alice.Pubkey())
	require.NoError(t, err)
	e.mustSend(ix, alice)
	ta := e.tokenAccount(alice.Pubkey())
	assert.False(t, ta.Delegate.IsSome)
	assert.Zero(t, ta.DelegatedAmount)

	burn, err := NewBurnInstruction(e.prog.ID(), alice.Pubkey(), carol.Pubkey(), 1)
	require.NoError(t, err)
	res := e.send(burn, carol)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, token.ErrOwnerMismatch)
}

func TestBurnThenMintRestoresSupply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cap = 1_000
	e := newEnv(t, cfg)
	e.initialize(2)
	alice := e.wallet(1)
	require.True(t, e.mintTo(alice.Pubkey(), 1_000).Success)

	burn, err := NewBurnInstruction(e.prog.ID(), alice.Pubkey(), alice.Pubkey(), 250)
	require.NoError(t, err)
	e.mustSend(burn, alice)
	assert.Equal(t, uint64(750), e.mint().Supply)
	assert.Equal(t, uint64(750), e.balance(alice.Pubkey()))

	// Burned headroom can be minted again, up to the cap.
	require.True(t, e.mintTo(alice.Pubkey(), 250).Success)
	assert.Equal(t, uint64(1_000), e.mint().Supply)
}

func TestChangeMintAuthority(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	holder, newAuth := e.wallet(1), e.wallet(5)

	// Only the administrator may rotate the derived authority.
	stranger := e.wallet(9)
	ix, err := NewChangeMintAuthorityInstruction(e.prog.ID(), stranger.Pubkey(), &types.Pubkey{})
	require.NoError(t, err)
	requireCode(t, e.send(ix, stranger), ErrSignerMismatch)

	next := newAuth.Pubkey()
	ix, err = NewChangeMintAuthorityInstruction(e.prog.ID(), e.payer.Pubkey(), &next)
	require.NoError(t, err)
	e.mustSend(ix, e.payer)
	assert.True(t, e.mint().MintAuthority.Is(next))

	// The program can no longer mint on its own.
	requireCode(t, e.mintTo(holder.Pubkey(), 10), ErrSignerMismatch)

	// The new authority mints by signing, and the cap still applies.
	e.mustSend(e.mintIx(holder.Pubkey(), next, 10), e.payer, newAuth)
	assert.Equal(t, uint64(10), e.balance(holder.Pubkey()))

	// The old administrator has no say any more.
	ix, err = NewChangeMintAuthorityInstruction(e.prog.ID(), e.payer.Pubkey(), nil)
	require.NoError(t, err)
	requireCode(t, e.send(ix, e.payer), ErrSignerMismatch)
}

func TestChangeMintAuthority_RemoveDisablesMinting(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	holder := e.wallet(1)
	require.True(t, e.mintTo(holder.Pubkey(), 42).Success)

	ix, err := NewChangeMintAuthorityInstruction(e.prog.ID(), e.payer.Pubkey(), nil)
	require.NoError(t, err)
	res := e.mustSend(ix, e.payer)
	assert.Contains(t, strings.Join(res.Logs, "\n"), "supply is final at 42")
	assert.False(t, e.mint().MintAuthority.IsSome)

	requireCode(t, e.mintTo(holder.Pubkey(), 1), ErrMintingDisabled)
	requireCode(t, e.send(ix, e.payer), ErrMintingDisabled)
	assert.Equal(t, uint64(42), e.mint().Supply)
}

func TestPayerAuthorityMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthorityMode = AuthorityPayer
	e := newEnv(t, cfg)
	e.initialize(6)
	holder := e.wallet(1)

	assert.True(t, e.mint().MintAuthority.Is(e.payer.Pubkey()))

	// The derived address is not the authority in this mode.
	requireCode(t, e.mintTo(holder.Pubkey(), 10), ErrSignerMismatch)

	e.mustSend(e.mintIx(holder.Pubkey(), e.payer.Pubkey(), 10), e.payer)
	assert.Equal(t, uint64(10), e.balance(holder.Pubkey()))

	// The recorded authority rotates itself.
	newAuth := e.wallet(5)
	next := newAuth.Pubkey()
	ix, err := NewChangeMintAuthorityInstruction(e.prog.ID(), e.payer.Pubkey(), &next)
	require.NoError(t, err)
	e.mustSend(ix, e.payer)
	assert.True(t, e.mint().MintAuthority.Is(next))

	// The old authority lost minting at once.
	requireCode(t, e.send(e.mintIx(holder.Pubkey(), e.payer.Pubkey(), 10), e.payer), ErrSignerMismatch)
	assert.Equal(t, uint64(10), e.mint().Supply)
	assert.Equal(t, uint64(10), e.balance(holder.Pubkey()))

	e.mustSend(e.mintIx(holder.Pubkey(), next, 5), e.payer, newAuth)
	assert.Equal(t, uint64(15), e.mint().Supply)
}

func TestUpdateMetadata(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)

	params := InitTokenParams{Name: "Omerta v2", Symbol: "OMT2", URI: "https://omerta.example/v2.json"}
	ix, err := NewUpdateMetadataInstruction(e.prog.ID(), e.payer.Pubkey(), params)
	require.NoError(t, err)
	e.mustSend(ix, e.payer)

	data := e.metadata().Data.Trimmed()
	assert.Equal(t, "Omerta v2", data.Name)
	assert.Equal(t, "OMT2", data.Symbol)
	assert.Equal(t, "https://omerta.example/v2.json", data.URI)

	stranger := e.wallet(9)
	ix, err = NewUpdateMetadataInstruction(e.prog.ID(), stranger.Pubkey(), params)
	require.NoError(t, err)
	requireCode(t, e.send(ix, stranger), ErrSignerMismatch)

	ix, err = NewUpdateMetadataInstruction(e.prog.ID(), e.payer.Pubkey(), InitTokenParams{
		Name: "Omerta", Symbol: strings.Repeat("S", metadata.MaxSymbolLength+1),
	})
	require.NoError(t, err)
	res := e.send(ix, e.payer)
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, metadata.ErrSymbolTooLong)
}

func TestUpdateMetadata_Immutable(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)

	// Freeze the record directly through the metadata program.
	isMutable := false
	freeze := metadata.NewUpdateMetadataAccountV2Instruction(e.addrs.Metadata, e.payer.Pubkey(),
		metadata.UpdateMetadataAccountArgsV2{IsMutable: &isMutable})
	e.mustSend(freeze, e.payer)

	ix, err := NewUpdateMetadataInstruction(e.prog.ID(), e.payer.Pubkey(), InitTokenParams{Name: "X", Symbol: "X"})
	require.NoError(t, err)
	requireCode(t, e.send(ix, e.payer), ErrImmutableMetadata)
}

func TestSupplyEqualsSumOfBalances(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	e.initialize(6)
	holders := []*crypto.Keypair{e.wallet(1), e.wallet(2), e.wallet(3)}

	for i, h := range holders {
		require.True(t, e.mintTo(h.Pubkey(), uint64(100*(i+1))).Success)
	}
	ix, err := NewTransferInstruction(e.prog.ID(), holders[2].Pubkey(), holders[0].Pubkey(), 150)
	require.NoError(t, err)
	e.mustSend(ix, holders[2])
	burn, err := NewBurnInstruction(e.prog.ID(), holders[1].Pubkey(), holders[1].Pubkey(), 20)
	require.NoError(t, err)
	e.mustSend(burn, holders[1])

	var sum uint64
	for _, h := range holders {
		sum += e.balance(h.Pubkey())
	}
	assert.Equal(t, e.mint().Supply, sum)
	assert.Equal(t, uint64(580), sum)
}

func TestUnknownInstruction(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	ix := types.Instruction{ProgramID: e.prog.ID(), Data: []byte{1, 2, 3}}
	requireCode(t, e.send(ix, e.payer), ErrInstructionMissing)

	ix.Data = []byte{1, 2, 3, 4, 5, 6, 7, 8}
	requireCode(t, e.send(ix, e.payer), ErrInstructionFallbackNotFound)
}
