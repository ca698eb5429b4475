package metadata

import (
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/system"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func tokenStandardFor(mint *token.Mint) TokenStandard {
	if mint.Decimals > 0 {
		return TokenStandardFungible
	}
	return TokenStandardFungibleAsset
}

// handleCreateMetadataAccountV3
//
//	[0] metadata (writable), derived from mint
//	[1] mint
//	[2] mint authority (signer)
//	[3] payer (signer, writable)
//	[4] update authority
//	[5] system program
func handleCreateMetadataAccountV3(ctx *syscall.ExecutionContext, args *CreateMetadataAccountArgsV3) error {
	if ctx.AccountCount() < 6 {
		return fmt.Errorf("%w: need 6, got %d", ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}
	metaAcc, _ := ctx.GetAccountByIndex(0)
	mintAcc, _ := ctx.GetAccountByIndex(1)
	mintAuthority, _ := ctx.GetAccountByIndex(2)
	payer, _ := ctx.GetAccountByIndex(3)
	updateAuthority, _ := ctx.GetAccountByIndex(4)

	if !metaAcc.IsWritable {
		return fmt.Errorf("%w: metadata", ErrAccountNotWritable)
	}
	seeds := [][]byte{[]byte(Seed), ctx.ProgramID[:], mintAcc.Pubkey[:]}
	expected, bump, err := syscall.FindProgramAddress(seeds, ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	if expected != metaAcc.Pubkey {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidMetadataKey, metaAcc.Pubkey, expected)
	}
	if len(metaAcc.Data) > 0 || *metaAcc.Lamports > 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, metaAcc.Pubkey)
	}

	if mintAcc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: mint %s", ErrIncorrectOwner, mintAcc.Pubkey)
	}
	mint, err := token.DeserializeMint(mintAcc.Data)
	if err != nil {
		return err
	}
	if !mint.IsInitialized {
		return fmt.Errorf("mint: %w", token.ErrNotInitialized)
	}
	if !mintAuthority.IsSigner || !mint.MintAuthority.Is(mintAuthority.Pubkey) {
		return fmt.Errorf("%w: %s", ErrInvalidMintAuthority, mintAuthority.Pubkey)
	}

	if err := args.Data.Validate(); err != nil {
		return err
	}
	for _, c := range args.Data.Creators {
		if !c.Verified {
			continue
		}
		signer, err := ctx.GetAccount(c.Address)
		if err != nil || !signer.IsSigner {
			return fmt.Errorf("%w: %s", ErrCreatorNotSigner, c.Address)
		}
	}

	rent := uint64(types.RentExemptMinimum(MaxMetadataLen))
	create := system.NewCreateAccountInstruction(payer.Pubkey, metaAcc.Pubkey, rent, MaxMetadataLen, ctx.ProgramID)
	if err := ctx.InvokeSigned(create, SignerSeeds(mintAcc.Pubkey, bump)); err != nil {
		return err
	}

	standard := tokenStandardFor(mint)
	record := &Metadata{
		Key:             KeyMetadataV1,
		UpdateAuthority: updateAuthority.Pubkey,
		Mint:            mintAcc.Pubkey,
		Data:            args.Data,
		IsMutable:       args.IsMutable,
		TokenStandard:   &standard,
	}
	data, err := record.Serialize()
	if err != nil {
		return err
	}
	copy(metaAcc.Data, data)
	return nil
}

// handleUpdateMetadataAccountV2
//
//	[0] metadata (writable)
//	[1] update authority (signer)
func handleUpdateMetadataAccountV2(ctx *syscall.ExecutionContext, args *UpdateMetadataAccountArgsV2) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: need 2, got %d", ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}
	metaAcc, _ := ctx.GetAccountByIndex(0)
	authority, _ := ctx.GetAccountByIndex(1)

	if !metaAcc.IsWritable {
		return fmt.Errorf("%w: metadata", ErrAccountNotWritable)
	}
	if metaAcc.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: metadata %s", ErrIncorrectOwner, metaAcc.Pubkey)
	}
	record, err := DeserializeMetadata(metaAcc.Data)
	if err != nil {
		return err
	}
	if record.UpdateAuthority != authority.Pubkey {
		return fmt.Errorf("%w: %s", ErrUpdateAuthorityIncorrect, authority.Pubkey)
	}
	if !authority.IsSigner {
		return ErrUpdateAuthorityNotSigner
	}

	if args.Data != nil {
		if !record.IsMutable {
			return ErrImmutable
		}
		if err := args.Data.Validate(); err != nil {
			return err
		}
		// Verified flags cannot be granted through an update.
		prior := make(map[types.Pubkey]bool)
		for _, c := range record.Data.Creators {
			prior[c.Address] = c.Verified
		}
		for _, c := range args.Data.Creators {
			if c.Verified && !prior[c.Address] {
				return fmt.Errorf("%w: %s", ErrCreatorNotSigner, c.Address)
			}
		}
		record.Data = *args.Data
	}
	if args.UpdateAuthority != nil {
		record.UpdateAuthority = *args.UpdateAuthority
	}
	if args.PrimarySaleHappened != nil {
		if !*args.PrimarySaleHappened && record.PrimarySaleHappened {
			return ErrPrimarySaleOnlyFlipsToTrue
		}
		record.PrimarySaleHappened = *args.PrimarySaleHappened
	}
	if args.IsMutable != nil {
		if *args.IsMutable && !record.IsMutable {
			return ErrIsMutableOnlyFlipsToFalse
		}
		record.IsMutable = *args.IsMutable
	}

	data, err := record.Serialize()
	if err != nil {
		return err
	}
	copy(metaAcc.Data, data)
	return nil
}
