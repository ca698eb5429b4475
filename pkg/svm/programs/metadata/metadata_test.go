package metadata

import (
	"crypto/sha256"
	"strings"
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

func (l ledger) exec(t *testing.T, ix types.Instruction) error {
	t.Helper()
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		infos[i] = syscall.NewAccountInfo(meta.Pubkey, l[meta.Pubkey], meta.IsSigner, meta.IsWritable)
	}
	ctx := syscall.NewExecutionContext(ix.ProgramID, infos, ix.Data, 200_000)
	ctx.SetProgramResolver(resolver{types.SystemProgramID: system.New()})
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

func (l ledger) record(t *testing.T, pk types.Pubkey) *Metadata {
	t.Helper()
	m, err := DeserializeMetadata(l[pk].Data)
	require.NoError(t, err)
	return m
}

type fixture struct {
	l         ledger
	mint      types.Pubkey
	authority types.Pubkey
	payer     types.Pubkey
	metadata  types.Pubkey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		l:         ledger{},
		mint:      testPubkey("mint"),
		authority: testPubkey("mint-authority"),
		payer:     testPubkey("payer"),
	}
	var err error
	f.metadata, _, err = syscall.DeriveMetadataAddress(f.mint)
	require.NoError(t, err)

	f.l[f.payer] = types.NewAccount(1_000_000_000, types.SystemProgramID)
	f.l[f.mint] = &types.Account{
		Lamports: types.RentExemptMinimum(token.MintSize),
		Data:     token.NewMint(6, f.authority, token.COption{}).Serialize(),
		Owner:    types.TokenProgramID,
	}
	f.l[types.SystemProgramID] = &types.Account{Executable: true, Owner: types.NativeLoaderID}
	return f
}

func (f *fixture) create(t *testing.T, data DataV2, mutable bool) error {
	t.Helper()
	return f.l.exec(t, NewCreateMetadataAccountV3Instruction(f.metadata, f.mint, f.authority, f.payer, f.payer, data, mutable))
}

var omertaData = DataV2{Name: "Omerta", Symbol: "OMT", URI: "https://omerta.example/token.json"}

func TestCreateMetadataAccountV3(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.create(t, omertaData, true))

	acc := f.l[f.metadata]
	assert.Equal(t, types.MetadataProgramID, acc.Owner)
	assert.Len(t, acc.Data, MaxMetadataLen)
	assert.Equal(t, types.RentExemptMinimum(MaxMetadataLen), acc.Lamports)

	rec := f.l.record(t, f.metadata)
	assert.Equal(t, KeyMetadataV1, rec.Key)
	assert.Equal(t, f.payer, rec.UpdateAuthority)
	assert.Equal(t, f.mint, rec.Mint)
	assert.Equal(t, omertaData, rec.Data.Trimmed())
	assert.Len(t, rec.Data.Name, MaxNameLength)
	assert.True(t, rec.IsMutable)
	require.NotNil(t, rec.TokenStandard)
	assert.Equal(t, TokenStandardFungible, *rec.TokenStandard)

	assert.ErrorIs(t, f.create(t, omertaData, true), ErrAlreadyInitialized)
}

func TestCreateMetadataAccountV3_Rejections(t *testing.T) {
	cases := []struct {
		name string
		data DataV2
		want error
	}{
		{"name", DataV2{Name: strings.Repeat("n", MaxNameLength+1)}, ErrNameTooLong},
		{"symbol", DataV2{Symbol: strings.Repeat("s", MaxSymbolLength+1)}, ErrSymbolTooLong},
		{"uri", DataV2{URI: strings.Repeat("u", MaxURILength+1)}, ErrURITooLong},
		{"fee", DataV2{SellerFeeBasisPoints: 10001}, ErrInvalidBasisPoints},
		{"shares", DataV2{Creators: []Creator{{Address: testPubkey("c"), Share: 50}}}, ErrCreatorSharesInvalid},
		{"verified", DataV2{Creators: []Creator{{Address: testPubkey("c"), Verified: true, Share: 100}}}, ErrCreatorNotSigner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			assert.ErrorIs(t, f.create(t, tc.data, true), tc.want)
			assert.Nil(t, f.l[f.metadata])
		})
	}
}

func TestCreateMetadataAccountV3_WrongMintAuthority(t *testing.T) {
	f := newFixture(t)
	ix := NewCreateMetadataAccountV3Instruction(f.metadata, f.mint, f.payer, f.payer, f.payer, omertaData, true)
	assert.ErrorIs(t, f.l.exec(t, ix), ErrInvalidMintAuthority)
}

func TestCreateMetadataAccountV3_WrongAddress(t *testing.T) {
	f := newFixture(t)
	ix := NewCreateMetadataAccountV3Instruction(testPubkey("not-derived"), f.mint, f.authority, f.payer, f.payer, omertaData, true)
	assert.ErrorIs(t, f.l.exec(t, ix), ErrInvalidMetadataKey)
}

func TestUpdateMetadataAccountV2(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.create(t, omertaData, true))

	updated := DataV2{Name: "Omerta v2", Symbol: "OMT2", URI: "https://omerta.example/v2.json"}
	ix := NewUpdateMetadataAccountV2Instruction(f.metadata, f.payer, UpdateMetadataAccountArgsV2{Data: &updated})
	require.NoError(t, f.l.exec(t, ix))
	assert.Equal(t, updated, f.l.record(t, f.metadata).Data.Trimmed())

	ix = NewUpdateMetadataAccountV2Instruction(f.metadata, f.authority, UpdateMetadataAccountArgsV2{Data: &omertaData})
	assert.ErrorIs(t, f.l.exec(t, ix), ErrUpdateAuthorityIncorrect)

	ix = NewUpdateMetadataAccountV2Instruction(f.metadata, f.payer, UpdateMetadataAccountArgsV2{Data: &omertaData})
	ix.Accounts[1].IsSigner = false
	assert.ErrorIs(t, f.l.exec(t, ix), ErrUpdateAuthorityNotSigner)
}

func TestUpdateMetadataAccountV2_Immutable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.create(t, omertaData, true))

	locked := false
	ix := NewUpdateMetadataAccountV2Instruction(f.metadata, f.payer, UpdateMetadataAccountArgsV2{IsMutable: &locked})
	require.NoError(t, f.l.exec(t, ix))
	assert.False(t, f.l.record(t, f.metadata).IsMutable)

	ix = NewUpdateMetadataAccountV2Instruction(f.metadata, f.payer, UpdateMetadataAccountArgsV2{Data: &omertaData})
	assert.ErrorIs(t, f.l.exec(t, ix), ErrImmutable)

	unlocked := true
	ix = NewUpdateMetadataAccountV2Instruction(f.metadata, f.payer, UpdateMetadataAccountArgsV2{IsMutable: &unlocked})
	assert.ErrorIs(t, f.l.exec(t, ix), ErrIsMutableOnlyFlipsToFalse)
}

func TestUpdateMetadataAccountV2_TransferAuthority(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.create(t, omertaData, true))

	next := testPubkey("next-admin")
	ix := NewUpdateMetadataAccountV2Instruction(f.metadata, f.payer, UpdateMetadataAccountArgsV2{UpdateAuthority: &next})
	require.NoError(t, f.l.exec(t, ix))
	assert.Equal(t, next, f.l.record(t, f.metadata).UpdateAuthority)
}
