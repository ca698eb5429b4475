package omerta

import (
	"fmt"
	"math/bits"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/associatedtoken"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/metadata"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/system"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func (p *Program) initialize(ctx *syscall.ExecutionContext, params *InitTokenParams) error {
	a, err := bindInitialize(ctx)
	if err != nil {
		return err
	}
	mintAddr, bump, err := deriveMintAuthority(ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	if a.Mint.Pubkey != mintAddr {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidMintAddress, a.Mint.Pubkey, mintAddr)
	}
	// Lamports alone do not claim the address: anyone can send them to it.
	if len(a.Mint.Data) > 0 || a.Mint.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, a.Mint.Pubkey)
	}
	if params.Decimals > MaxDecimals {
		return fmt.Errorf("%w: got %d", ErrInvalidDecimals, params.Decimals)
	}
	metadataAddr, _, err := syscall.DeriveMetadataAddress(mintAddr)
	if err != nil {
		return err
	}
	if err := address(metadataAddr)("metadata", a.Metadata); err != nil {
		return err
	}

	authority := mintAddr
	if p.cfg.AuthorityMode == AuthorityPayer {
		authority = a.Payer.Pubkey
	}
	seeds := MintSignerSeeds(bump)

	// Create the mint, then bind its record. Any failure aborts the whole
	// instruction, so neither exists without the other.
	if err := createMintAccount(ctx, a.Payer.Pubkey, a.Mint, seeds); err != nil {
		return err
	}
	initMint := token.NewInitializeMint2Instruction(mintAddr, params.Decimals, authority, token.Some(authority))
	if err := ctx.Invoke(initMint); err != nil {
		return err
	}

	data := metadata.DataV2{Name: params.Name, Symbol: params.Symbol, URI: params.URI}
	createMeta := metadata.NewCreateMetadataAccountV3Instruction(
		a.Metadata.Pubkey, mintAddr, authority, a.Payer.Pubkey, a.Payer.Pubkey, data, true)
	if err := ctx.InvokeSigned(createMeta, seeds); err != nil {
		return err
	}

	ctx.Logf("initialized mint %s decimals=%d authority=%s", mintAddr, params.Decimals, authority)
	return nil
}

// createMintAccount allocates the mint at its derived address. A pre-funded
// address is topped up to rent exemption, then allocated and assigned.
func createMintAccount(ctx *syscall.ExecutionContext, payer types.Pubkey, mint *syscall.AccountInfo, seeds [][]byte) error {
	rent := uint64(types.RentExemptMinimum(token.MintSize))
	if *mint.Lamports == 0 {
		create := system.NewCreateAccountInstruction(payer, mint.Pubkey, rent, token.MintSize, types.TokenProgramID)
		return ctx.InvokeSigned(create, seeds)
	}

	ctx.Logf("mint address pre-funded with %d lamports", *mint.Lamports)
	if *mint.Lamports < rent {
		if err := ctx.Invoke(system.NewTransferInstruction(payer, mint.Pubkey, rent-*mint.Lamports)); err != nil {
			return err
		}
	}
	if err := ctx.InvokeSigned(system.NewAllocateInstruction(mint.Pubkey, token.MintSize), seeds); err != nil {
		return err
	}
	return ctx.InvokeSigned(system.NewAssignInstruction(mint.Pubkey, types.TokenProgramID), seeds)
}

// ensureTokenAccount is the explicit create-if-absent step for a holder's
// associated token account. An existing account must already belong to
// owner and mint.
func ensureTokenAccount(ctx *syscall.ExecutionContext, funder, ata, owner, mint types.Pubkey) error {
	ix, want, err := associatedtoken.NewCreateInstruction(funder, owner, mint, true)
	if err != nil {
		return err
	}
	if ata != want {
		return fmt.Errorf("%w: token account %s is not the associated account %s", ErrInvalidAccountBinding, ata, want)
	}
	acc, err := ctx.GetAccount(ata)
	if err != nil {
		return err
	}
	if acc.Owner == types.TokenProgramID && len(acc.Data) > 0 {
		_, err := loadTokenAccount(acc, "token account", mint, owner)
		return err
	}
	ctx.Logf("creating associated token account %s for %s", ata, owner)
	return ctx.Invoke(ix)
}

func (p *Program) mintTokens(ctx *syscall.ExecutionContext, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	a, err := bindMintTokens(ctx)
	if err != nil {
		return err
	}
	mintAddr, bump, err := deriveMintAuthority(ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	mint, err := loadMint(a.Mint, mintAddr)
	if err != nil {
		return err
	}

	if !mint.MintAuthority.IsSome {
		return ErrMintingDisabled
	}
	recorded := mint.MintAuthority.Value
	if a.Authority.Pubkey != recorded {
		return fmt.Errorf("%w: %s is not mint authority %s", ErrSignerMismatch, a.Authority.Pubkey, recorded)
	}
	programSigns := recorded == mintAddr
	if !programSigns && !a.Authority.IsSigner {
		return fmt.Errorf("%w: mint authority %s did not sign", ErrSignerMismatch, recorded)
	}
	if programSigns {
		// The program only signs on behalf of the administrator.
		record, err := loadMetadata(a.Metadata, mintAddr)
		if err != nil {
			return err
		}
		if a.Payer.Pubkey != record.UpdateAuthority {
			return fmt.Errorf("%w: %s is not the administrator %s", ErrSignerMismatch, a.Payer.Pubkey, record.UpdateAuthority)
		}
	}

	newSupply, carry := bits.Add64(mint.Supply, amount, 0)
	if carry != 0 || newSupply > p.cfg.Cap {
		return fmt.Errorf("%w: supply %d + %d > cap %d", ErrCapExceeded, mint.Supply, amount, p.cfg.Cap)
	}

	if err := ensureTokenAccount(ctx, a.Payer.Pubkey, a.Destination.Pubkey, a.DestinationOwner.Pubkey, mintAddr); err != nil {
		return err
	}

	mintTo := token.NewMintToInstruction(mintAddr, a.Destination.Pubkey, recorded, amount)
	if programSigns {
		err = ctx.InvokeSigned(mintTo, MintSignerSeeds(bump))
	} else {
		err = ctx.Invoke(mintTo)
	}
	if err != nil {
		return err
	}
	ctx.Logf("minted %d, supply %d of %d", amount, newSupply, p.cfg.Cap)
	return nil
}

func (p *Program) transfer(ctx *syscall.ExecutionContext, amount uint64) error {
	a, err := bindTransfer(ctx)
	if err != nil {
		return err
	}
	mintAddr, _, err := deriveMintAuthority(ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	if _, err := loadMint(a.Mint, mintAddr); err != nil {
		return err
	}
	if _, err := loadTokenAccount(a.FromATA, "from_ata", mintAddr, a.From.Pubkey); err != nil {
		return err
	}
	if err := ensureTokenAccount(ctx, a.From.Pubkey, a.ToATA.Pubkey, a.To.Pubkey, mintAddr); err != nil {
		return err
	}
	return ctx.Invoke(token.NewTransferInstruction(a.FromATA.Pubkey, a.ToATA.Pubkey, a.From.Pubkey, amount))
}

func (p *Program) approve(ctx *syscall.ExecutionContext, amount uint64) error {
	a, err := bindApprove(ctx)
	if err != nil {
		return err
	}
	mintAddr, _, err := deriveMintAuthority(ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	if _, err := loadTokenAccount(a.FromATA, "from_ata", mintAddr, a.From.Pubkey); err != nil {
		return err
	}
	return ctx.Invoke(token.NewApproveInstruction(a.FromATA.Pubkey, a.Delegate.Pubkey, a.From.Pubkey, amount))
}

func (p *Program) revoke(ctx *syscall.ExecutionContext) error {
	a, err := bindRevoke(ctx)
	if err != nil {
		return err
	}
	mintAddr, _, err := deriveMintAuthority(ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	if _, err := loadTokenAccount(a.FromATA, "from_ata", mintAddr, a.From.Pubkey); err != nil {
		return err
	}
	return ctx.Invoke(token.NewRevokeInstruction(a.FromATA.Pubkey, a.From.Pubkey))
}

func (p *Program) burn(ctx *syscall.ExecutionContext, amount uint64) error {
	a, err := bindBurn(ctx)
	if err != nil {
		return err
	}
	mintAddr, _, err := deriveMintAuthority(ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	if _, err := loadMint(a.Mint, mintAddr); err != nil {
		return err
	}
	// Owner or delegate authority is decided by the token program.
	if _, err := loadTokenAccount(a.FromATA, "from_ata", mintAddr, types.ZeroPubkey); err != nil {
		return err
	}
	return ctx.Invoke(token.NewBurnInstruction(a.FromATA.Pubkey, mintAddr, a.Authority.Pubkey, amount))
}

func (p *Program) changeMintAuthority(ctx *syscall.ExecutionContext, newAuthority *types.Pubkey) error {
	a, err := bindChangeMintAuthority(ctx)
	if err != nil {
		return err
	}
	mintAddr, bump, err := deriveMintAuthority(ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	mint, err := loadMint(a.Mint, mintAddr)
	if err != nil {
		return err
	}
	if !mint.MintAuthority.IsSome {
		return ErrMintingDisabled
	}
	recorded := mint.MintAuthority.Value

	next := token.COption{}
	if newAuthority != nil {
		next = token.Some(*newAuthority)
	}

	if recorded == mintAddr {
		// The program holds the authority; the metadata update authority
		// acts as administrator and the program signs.
		record, err := loadMetadata(a.Metadata, mintAddr)
		if err != nil {
			return err
		}
		if a.CurrentAuthority.Pubkey != record.UpdateAuthority {
			return fmt.Errorf("%w: %s is not the administrator %s", ErrSignerMismatch, a.CurrentAuthority.Pubkey, record.UpdateAuthority)
		}
		ix := token.NewSetAuthorityInstruction(mintAddr, mintAddr, token.AuthorityMintTokens, next)
		if err := ctx.InvokeSigned(ix, MintSignerSeeds(bump)); err != nil {
			return err
		}
	} else {
		if a.CurrentAuthority.Pubkey != recorded {
			return fmt.Errorf("%w: %s is not mint authority %s", ErrSignerMismatch, a.CurrentAuthority.Pubkey, recorded)
		}
		ix := token.NewSetAuthorityInstruction(mintAddr, recorded, token.AuthorityMintTokens, next)
		if err := ctx.Invoke(ix); err != nil {
			return err
		}
	}

	if newAuthority == nil {
		ctx.Logf("mint authority removed; supply is final at %d", mint.Supply)
	} else {
		ctx.Logf("mint authority %s -> %s", recorded, *newAuthority)
	}
	return nil
}

func (p *Program) updateMetadata(ctx *syscall.ExecutionContext, params *InitTokenParams) error {
	a, err := bindUpdateMetadata(ctx)
	if err != nil {
		return err
	}
	mintAddr, _, err := deriveMintAuthority(ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	if _, err := loadMint(a.Mint, mintAddr); err != nil {
		return err
	}
	record, err := loadMetadata(a.Metadata, mintAddr)
	if err != nil {
		return err
	}
	if a.UpdateAuthority.Pubkey != record.UpdateAuthority {
		return fmt.Errorf("%w: %s is not update authority %s", ErrSignerMismatch, a.UpdateAuthority.Pubkey, record.UpdateAuthority)
	}
	if !record.IsMutable {
		return ErrImmutableMetadata
	}

	current := record.Data.Trimmed()
	data := metadata.DataV2{
		Name:                 params.Name,
		Symbol:               params.Symbol,
		URI:                  params.URI,
		SellerFeeBasisPoints: current.SellerFeeBasisPoints,
		Creators:             current.Creators,
	}
	ix := metadata.NewUpdateMetadataAccountV2Instruction(a.Metadata.Pubkey, a.UpdateAuthority.Pubkey,
		metadata.UpdateMetadataAccountArgsV2{Data: &data})
	return ctx.Invoke(ix)
}
