package omerta

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func TestDiscriminator(t *testing.T) {
	assert.Equal(t, [8]byte{175, 175, 109, 31, 13, 152, 155, 237}, Discriminator(NameInitialize))

	seen := map[[8]byte]string{}
	for _, name := range []string{NameInitialize, NameMintTokens, NameTransfer, NameApprove,
		NameRevoke, NameBurn, NameChangeMintAuthority, NameUpdateMetadata} {
		d := Discriminator(name)
		_, dup := seen[d]
		require.False(t, dup, "%s collides with %s", name, seen[d])
		seen[d] = name
	}
}

func TestDeriveAddresses_MatchesReference(t *testing.T) {
	addrs, err := DeriveAddresses(types.OmertaProgramID)
	require.NoError(t, err)

	programID := solana.PublicKey(types.OmertaProgramID)
	mint, bump, err := solana.FindProgramAddress([][]byte{[]byte(MintSeed)}, programID)
	require.NoError(t, err)
	assert.Equal(t, types.Pubkey(mint), addrs.Mint)
	assert.Equal(t, bump, addrs.MintBump)

	meta, _, err := solana.FindTokenMetadataAddress(mint)
	require.NoError(t, err)
	assert.Equal(t, types.Pubkey(meta), addrs.Metadata)

	owner := types.Pubkey{42}
	ata, err := addrs.TokenAccount(owner)
	require.NoError(t, err)
	want, _, err := solana.FindAssociatedTokenAddress(solana.PublicKey(owner), mint)
	require.NoError(t, err)
	assert.Equal(t, types.Pubkey(want), ata)

	// Derivation is a pure function of the program id.
	again, err := DeriveAddresses(types.OmertaProgramID)
	require.NoError(t, err)
	assert.Equal(t, addrs, again)
}

func TestConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Cap = MaxCap + 1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.ProgramID = types.ZeroPubkey
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.AuthorityMode = AuthorityMode(7)
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	p := New(Config{})
	assert.Equal(t, uint64(MaxCap), p.Cap())
	assert.Equal(t, types.OmertaProgramID, p.ID())
}

func TestParseAuthorityMode(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want AuthorityMode
	}{{"", AuthorityDerived}, {"derived", AuthorityDerived}, {"payer", AuthorityPayer}} {
		got, err := ParseAuthorityMode(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		if tt.in != "" {
			assert.Equal(t, tt.in, got.String())
		}
	}
	_, err := ParseAuthorityMode("admin")
	assert.Error(t, err)
}

func TestCodeOf(t *testing.T) {
	code, ok := CodeOf(fmt.Errorf("outer: %w", fmt.Errorf("%w: supply 1", ErrCapExceeded)))
	require.True(t, ok)
	assert.Equal(t, uint32(6000), code)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)

	assert.Equal(t, "SignerMismatch (6003): signer is not the recorded authority", ErrSignerMismatch.Error())
}

func TestExecute_BadArguments(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	ix, err := NewMintTokensInstruction(e.prog.ID(), e.payer.Pubkey(), e.payer.Pubkey(), types.ZeroPubkey, 5)
	require.NoError(t, err)
	ix.Data = ix.Data[:10]
	requireCode(t, e.send(ix, e.payer), ErrInstructionDidNotDeserialize)

	ix.Data = ix.Data[:8]
	ix.Accounts = ix.Accounts[:2]
	requireCode(t, e.send(ix, e.payer), ErrInstructionDidNotDeserialize)

	ix, err = NewMintTokensInstruction(e.prog.ID(), e.payer.Pubkey(), e.payer.Pubkey(), types.ZeroPubkey, 5)
	require.NoError(t, err)
	ix.Accounts = ix.Accounts[:3]
	requireCode(t, e.send(ix, e.payer), ErrNotEnoughAccountKeys)
}
