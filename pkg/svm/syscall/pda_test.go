package syscall

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

func TestFindProgramAddress_MatchesReference(t *testing.T) {
	m := testPubkey("m")
	cases := [][][]byte{
		{[]byte("mint")},
		{[]byte("metadata"), types.MetadataProgramID[:], m[:]},
		{},
	}
	for _, seeds := range cases {
		got, bump, err := FindProgramAddress(seeds, types.OmertaProgramID, nil)
		require.NoError(t, err)

		want, wantBump, err := solana.FindProgramAddress(seeds, solana.PublicKey(types.OmertaProgramID))
		require.NoError(t, err)

		assert.Equal(t, types.Pubkey(want), got)
		assert.Equal(t, wantBump, bump)
		assert.False(t, IsOnCurve(got[:]))
	}
}

func TestDeriveAssociatedTokenAddress_MatchesReference(t *testing.T) {
	wallet := testPubkey("wallet")
	mint := testPubkey("mint")

	got, _, err := DeriveAssociatedTokenAddress(wallet, mint, types.TokenProgramID)
	require.NoError(t, err)

	want, _, err := solana.FindAssociatedTokenAddress(solana.PublicKey(wallet), solana.PublicKey(mint))
	require.NoError(t, err)
	assert.Equal(t, types.Pubkey(want), got)
}

func TestDeriveMetadataAddress_MatchesReference(t *testing.T) {
	mint := testPubkey("mint")
	got, _, err := DeriveMetadataAddress(mint)
	require.NoError(t, err)

	want, _, err := solana.FindTokenMetadataAddress(solana.PublicKey(mint))
	require.NoError(t, err)
	assert.Equal(t, types.Pubkey(want), got)
}

func TestIsOnCurve(t *testing.T) {
	// Real ed25519 public keys are curve points.
	assert.True(t, IsOnCurve(types.SystemProgramID[:]))
	priv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	assert.True(t, IsOnCurve(priv.Public().(ed25519.PublicKey)))
	assert.False(t, IsOnCurve([]byte{1, 2, 3}))

	pda, _, err := FindProgramAddress([][]byte{[]byte("x")}, types.TokenProgramID, nil)
	require.NoError(t, err)
	assert.False(t, IsOnCurve(pda[:]))
}

func TestCreateProgramAddress_SeedLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLen+1)}, types.OmertaProgramID)
	assert.ErrorIs(t, err, ErrMaxSeedLenExceeded)

	seeds := make([][]byte, MaxSeeds+1)
	_, err = CreateProgramAddress(seeds, types.OmertaProgramID)
	assert.ErrorIs(t, err, ErrMaxSeedsExceeded)

	_, _, err = FindProgramAddress(make([][]byte, MaxSeeds), types.OmertaProgramID, nil)
	assert.ErrorIs(t, err, ErrMaxSeedsExceeded)
}

func TestFindProgramAddress_ChargesCompute(t *testing.T) {
	ctx := NewExecutionContext(types.OmertaProgramID, nil, nil, 10_000)
	_, _, err := FindProgramAddress([][]byte{[]byte("mint")}, types.OmertaProgramID, ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ctx.ComputeUnitsConsumed(), uint64(CUFindPDAPerIter))

	starved := NewExecutionContext(types.OmertaProgramID, nil, nil, 0)
	_, _, err = FindProgramAddress([][]byte{[]byte("mint")}, types.OmertaProgramID, starved)
	assert.ErrorIs(t, err, ErrComputeExhausted)
}
