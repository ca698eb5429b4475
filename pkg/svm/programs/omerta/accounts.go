package omerta

import (
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/metadata"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// constraint is a structural check applied to one positional account.
type constraint func(name string, acc *syscall.AccountInfo) error

func mut(name string, acc *syscall.AccountInfo) error {
	if !acc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, name)
	}
	return nil
}

func signer(name string, acc *syscall.AccountInfo) error {
	if !acc.IsSigner {
		return fmt.Errorf("%w: %s", ErrAccountNotSigner, name)
	}
	return nil
}

func program(id types.Pubkey) constraint {
	return func(name string, acc *syscall.AccountInfo) error {
		if acc.Pubkey != id || !acc.Executable {
			return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidProgramID, name, acc.Pubkey, id)
		}
		return nil
	}
}

func address(want types.Pubkey) constraint {
	return func(name string, acc *syscall.AccountInfo) error {
		if acc.Pubkey != want {
			return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidAccountBinding, name, acc.Pubkey, want)
		}
		return nil
	}
}

// binder walks the instruction's accounts in order. The first failure
// sticks; later calls return nil without looking further.
type binder struct {
	ctx  *syscall.ExecutionContext
	next int
	err  error
}

func (b *binder) take(name string, cs ...constraint) *syscall.AccountInfo {
	if b.err != nil {
		return nil
	}
	acc, err := b.ctx.GetAccountByIndex(b.next)
	if err != nil {
		b.err = fmt.Errorf("%w: missing %s (index %d)", ErrNotEnoughAccountKeys, name, b.next)
		return nil
	}
	b.next++
	for _, c := range cs {
		if err := c(name, acc); err != nil {
			b.err = err
			return nil
		}
	}
	return acc
}

// loadMint decodes the mint and checks it is the program's initialized mint.
func loadMint(acc *syscall.AccountInfo, derived types.Pubkey) (*token.Mint, error) {
	if acc.Pubkey != derived {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrInvalidMintAddress, acc.Pubkey, derived)
	}
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: mint owned by %s", ErrAccountOwnedByWrongProgram, acc.Owner)
	}
	mint, err := token.DeserializeMint(acc.Data)
	if err != nil || !mint.IsInitialized {
		return nil, fmt.Errorf("%w: mint %s", ErrAccountNotInitialized, acc.Pubkey)
	}
	return mint, nil
}

// loadTokenAccount decodes a token account of mint. A non-zero owner must
// match the account's recorded owner.
func loadTokenAccount(acc *syscall.AccountInfo, name string, mint, owner types.Pubkey) (*token.TokenAccount, error) {
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrAccountOwnedByWrongProgram, name, acc.Owner)
	}
	ta, err := token.DeserializeTokenAccount(acc.Data)
	if err != nil || !ta.IsInitialized() {
		return nil, fmt.Errorf("%w: %s %s", ErrAccountNotInitialized, name, acc.Pubkey)
	}
	if ta.Mint != mint {
		return nil, fmt.Errorf("%w: %s holds mint %s", ErrInvalidAccountBinding, name, ta.Mint)
	}
	if !owner.IsZero() && ta.Owner != owner {
		return nil, fmt.Errorf("%w: %s belongs to %s, not %s", ErrInvalidAccountBinding, name, ta.Owner, owner)
	}
	return ta, nil
}

// loadMetadata checks that acc is the metadata record of mint and decodes it.
func loadMetadata(acc *syscall.AccountInfo, mint types.Pubkey) (*metadata.Metadata, error) {
	want, _, err := syscall.DeriveMetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	if acc.Pubkey != want {
		return nil, fmt.Errorf("%w: metadata is %s, want %s", ErrInvalidAccountBinding, acc.Pubkey, want)
	}
	if acc.Owner != types.MetadataProgramID {
		return nil, fmt.Errorf("%w: metadata owned by %s", ErrAccountOwnedByWrongProgram, acc.Owner)
	}
	record, err := metadata.DeserializeMetadata(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrAccountNotInitialized, err)
	}
	if record.Mint != mint {
		return nil, fmt.Errorf("%w: metadata describes %s", ErrInvalidAccountBinding, record.Mint)
	}
	return record, nil
}

type initializeAccounts struct {
	Metadata        *syscall.AccountInfo
	Mint            *syscall.AccountInfo
	Payer           *syscall.AccountInfo
	Rent            *syscall.AccountInfo
	SystemProgram   *syscall.AccountInfo
	TokenProgram    *syscall.AccountInfo
	MetadataProgram *syscall.AccountInfo
}

func bindInitialize(ctx *syscall.ExecutionContext) (*initializeAccounts, error) {
	b := &binder{ctx: ctx}
	a := &initializeAccounts{
		Metadata:        b.take("metadata", mut),
		Mint:            b.take("mint", mut),
		Payer:           b.take("payer", mut, signer),
		Rent:            b.take("rent", address(types.SysvarRentID)),
		SystemProgram:   b.take("system_program", program(types.SystemProgramID)),
		TokenProgram:    b.take("token_program", program(types.TokenProgramID)),
		MetadataProgram: b.take("token_metadata_program", program(types.MetadataProgramID)),
	}
	return a, b.err
}

type mintTokensAccounts struct {
	Mint                   *syscall.AccountInfo
	Destination            *syscall.AccountInfo
	DestinationOwner       *syscall.AccountInfo
	Authority              *syscall.AccountInfo
	Payer                  *syscall.AccountInfo
	SystemProgram          *syscall.AccountInfo
	TokenProgram           *syscall.AccountInfo
	AssociatedTokenProgram *syscall.AccountInfo
	Metadata               *syscall.AccountInfo
}

func bindMintTokens(ctx *syscall.ExecutionContext) (*mintTokensAccounts, error) {
	b := &binder{ctx: ctx}
	a := &mintTokensAccounts{
		Mint:                   b.take("mint", mut),
		Destination:            b.take("destination", mut),
		DestinationOwner:       b.take("destination_owner"),
		Authority:              b.take("authority"),
		Payer:                  b.take("payer", mut, signer),
		SystemProgram:          b.take("system_program", program(types.SystemProgramID)),
		TokenProgram:           b.take("token_program", program(types.TokenProgramID)),
		AssociatedTokenProgram: b.take("associated_token_program", program(types.AssociatedTokenProgramID)),
		Metadata:               b.take("metadata"),
	}
	return a, b.err
}

type transferAccounts struct {
	From                   *syscall.AccountInfo
	To                     *syscall.AccountInfo
	Mint                   *syscall.AccountInfo
	FromATA                *syscall.AccountInfo
	ToATA                  *syscall.AccountInfo
	SystemProgram          *syscall.AccountInfo
	TokenProgram           *syscall.AccountInfo
	AssociatedTokenProgram *syscall.AccountInfo
}

func bindTransfer(ctx *syscall.ExecutionContext) (*transferAccounts, error) {
	b := &binder{ctx: ctx}
	a := &transferAccounts{
		From:                   b.take("from", mut, signer),
		To:                     b.take("to"),
		Mint:                   b.take("mint"),
		FromATA:                b.take("from_ata", mut),
		ToATA:                  b.take("to_ata", mut),
		SystemProgram:          b.take("system_program", program(types.SystemProgramID)),
		TokenProgram:           b.take("token_program", program(types.TokenProgramID)),
		AssociatedTokenProgram: b.take("associated_token_program", program(types.AssociatedTokenProgramID)),
	}
	return a, b.err
}

type approveAccounts struct {
	FromATA      *syscall.AccountInfo
	From         *syscall.AccountInfo
	Delegate     *syscall.AccountInfo
	TokenProgram *syscall.AccountInfo
}

func bindApprove(ctx *syscall.ExecutionContext) (*approveAccounts, error) {
	b := &binder{ctx: ctx}
	a := &approveAccounts{
		FromATA:      b.take("from_ata", mut),
		From:         b.take("from", signer),
		Delegate:     b.take("delegate"),
		TokenProgram: b.take("token_program", program(types.TokenProgramID)),
	}
	return a, b.err
}

type revokeAccounts struct {
	FromATA      *syscall.AccountInfo
	From         *syscall.AccountInfo
	TokenProgram *syscall.AccountInfo
}

func bindRevoke(ctx *syscall.ExecutionContext) (*revokeAccounts, error) {
	b := &binder{ctx: ctx}
	a := &revokeAccounts{
		FromATA:      b.take("from_ata", mut),
		From:         b.take("from", signer),
		TokenProgram: b.take("token_program", program(types.TokenProgramID)),
	}
	return a, b.err
}

type burnAccounts struct {
	Mint         *syscall.AccountInfo
	FromATA      *syscall.AccountInfo
	Authority    *syscall.AccountInfo
	TokenProgram *syscall.AccountInfo
}

func bindBurn(ctx *syscall.ExecutionContext) (*burnAccounts, error) {
	b := &binder{ctx: ctx}
	a := &burnAccounts{
		Mint:         b.take("mint", mut),
		FromATA:      b.take("from_ata", mut),
		Authority:    b.take("authority", signer),
		TokenProgram: b.take("token_program", program(types.TokenProgramID)),
	}
	return a, b.err
}

type changeMintAuthorityAccounts struct {
	Mint             *syscall.AccountInfo
	CurrentAuthority *syscall.AccountInfo
	Metadata         *syscall.AccountInfo
	TokenProgram     *syscall.AccountInfo
}

func bindChangeMintAuthority(ctx *syscall.ExecutionContext) (*changeMintAuthorityAccounts, error) {
	b := &binder{ctx: ctx}
	a := &changeMintAuthorityAccounts{
		Mint:             b.take("mint", mut),
		CurrentAuthority: b.take("current_authority", signer),
		Metadata:         b.take("metadata"),
		TokenProgram:     b.take("token_program", program(types.TokenProgramID)),
	}
	return a, b.err
}

type updateMetadataAccounts struct {
	Metadata        *syscall.AccountInfo
	Mint            *syscall.AccountInfo
	UpdateAuthority *syscall.AccountInfo
	MetadataProgram *syscall.AccountInfo
}

func bindUpdateMetadata(ctx *syscall.ExecutionContext) (*updateMetadataAccounts, error) {
	b := &binder{ctx: ctx}
	a := &updateMetadataAccounts{
		Metadata:        b.take("metadata", mut),
		Mint:            b.take("mint"),
		UpdateAuthority: b.take("update_authority", signer),
		MetadataProgram: b.take("token_metadata_program", program(types.MetadataProgramID)),
	}
	return a, b.err
}
