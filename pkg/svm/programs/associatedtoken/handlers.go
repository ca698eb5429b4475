package associatedtoken

import (
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/system"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// handleCreate
//
//	[0] funder (signer, writable)
//	[1] associated token account (writable)
//	[2] wallet
//	[3] mint
//	[4] system program
//	[5] token program
func handleCreate(ctx *syscall.ExecutionContext, idempotent bool) error {
	if ctx.AccountCount() < 6 {
		return fmt.Errorf("%w: need 6, got %d", ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}
	funder, _ := ctx.GetAccountByIndex(0)
	ataAcc, _ := ctx.GetAccountByIndex(1)
	wallet, _ := ctx.GetAccountByIndex(2)
	mintAcc, _ := ctx.GetAccountByIndex(3)
	tokenProgram, _ := ctx.GetAccountByIndex(5)

	seeds := [][]byte{wallet.Pubkey[:], tokenProgram.Pubkey[:], mintAcc.Pubkey[:]}
	expected, bump, err := syscall.FindProgramAddress(seeds, ctx.ProgramID, ctx)
	if err != nil {
		return err
	}
	if expected != ataAcc.Pubkey {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidSeeds, ataAcc.Pubkey, expected)
	}

	if ataAcc.Owner == tokenProgram.Pubkey && len(ataAcc.Data) > 0 {
		if !idempotent {
			return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, ataAcc.Pubkey)
		}
		existing, err := token.DeserializeTokenAccount(ataAcc.Data)
		if err != nil {
			return err
		}
		if existing.Owner != wallet.Pubkey || existing.Mint != mintAcc.Pubkey {
			return fmt.Errorf("%w: %s", ErrInvalidOwner, ataAcc.Pubkey)
		}
		return nil
	}

	signer := [][]byte{seeds[0], seeds[1], seeds[2], {bump}}
	space := uint64(token.TokenAccountSize)
	rent := uint64(types.RentExemptMinimum(space))

	if *ataAcc.Lamports == 0 {
		ix := system.NewCreateAccountInstruction(funder.Pubkey, ataAcc.Pubkey, rent, space, tokenProgram.Pubkey)
		if err := ctx.InvokeSigned(ix, signer); err != nil {
			return err
		}
	} else {
		// Someone pre-funded the address: top it up, then allocate and assign.
		if *ataAcc.Lamports < rent {
			if err := ctx.Invoke(system.NewTransferInstruction(funder.Pubkey, ataAcc.Pubkey, rent-*ataAcc.Lamports)); err != nil {
				return err
			}
		}
		if err := ctx.InvokeSigned(system.NewAllocateInstruction(ataAcc.Pubkey, space), signer); err != nil {
			return err
		}
		if err := ctx.InvokeSigned(system.NewAssignInstruction(ataAcc.Pubkey, tokenProgram.Pubkey), signer); err != nil {
			return err
		}
	}

	return ctx.Invoke(token.NewInitializeAccount3Instruction(ataAcc.Pubkey, mintAcc.Pubkey, wallet.Pubkey))
}
