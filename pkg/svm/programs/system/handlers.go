package system

import (
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func signerWritable(ctx *syscall.ExecutionContext, i int, name string) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(i)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidNumberOfAccounts, name)
	}
	if !acc.IsSigner {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotSigner, name)
	}
	if !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, name)
	}
	return acc, nil
}

// handleCreateAccount
//
//	[0] funding account (signer, writable)
//	[1] new account (signer, writable); a program-derived address signs via seeds
func handleCreateAccount(ctx *syscall.ExecutionContext, inst *CreateAccountInstruction) error {
	funder, err := signerWritable(ctx, 0, "funding account")
	if err != nil {
		return err
	}
	newAcc, err := signerWritable(ctx, 1, "new account")
	if err != nil {
		return err
	}

	if *newAcc.Lamports > 0 || len(newAcc.Data) > 0 || newAcc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, newAcc.Pubkey)
	}
	if inst.Space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}
	if need := types.RentExemptMinimum(inst.Space); types.Lamports(inst.Lamports) < need {
		return fmt.Errorf("%w: need %d lamports", ErrAccountNotRentExempt, need)
	}
	if *funder.Lamports < inst.Lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, inst.Lamports, *funder.Lamports)
	}

	*funder.Lamports -= inst.Lamports
	*newAcc.Lamports += inst.Lamports
	newAcc.Data = make([]byte, inst.Space)
	newAcc.Owner = inst.Owner
	return nil
}

// handleAssign
//
//	[0] account (signer, writable)
func handleAssign(ctx *syscall.ExecutionContext, owner types.Pubkey) error {
	acc, err := signerWritable(ctx, 0, "account")
	if err != nil {
		return err
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account must be owned by the system program", ErrInvalidAccountOwner)
	}
	acc.Owner = owner
	return nil
}

// handleTransfer
//
//	[0] source (signer, writable)
//	[1] destination (writable)
func handleTransfer(ctx *syscall.ExecutionContext, lamports uint64) error {
	from, err := signerWritable(ctx, 0, "source")
	if err != nil {
		return err
	}
	to, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return fmt.Errorf("%w: missing destination", ErrInvalidNumberOfAccounts)
	}
	if !to.IsWritable {
		return fmt.Errorf("%w: destination", ErrAccountNotWritable)
	}
	if len(from.Data) > 0 {
		return ErrTransferFromDataAccount
	}
	if from.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: source", ErrInvalidAccountOwner)
	}
	if *from.Lamports < lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, lamports, *from.Lamports)
	}
	if from.Pubkey == to.Pubkey {
		return nil
	}

	*from.Lamports -= lamports
	*to.Lamports += lamports
	return nil
}

// handleAllocate
//
//	[0] account (signer, writable)
func handleAllocate(ctx *syscall.ExecutionContext, space uint64) error {
	acc, err := signerWritable(ctx, 0, "account")
	if err != nil {
		return err
	}
	if len(acc.Data) > 0 || acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, acc.Pubkey)
	}
	if space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}
	acc.Data = make([]byte, space)
	return nil
}
