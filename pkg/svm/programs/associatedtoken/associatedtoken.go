// Package associatedtoken implements the associated token account program,
// which creates the canonical token account of a (wallet, mint) pair at an
// address derived from both.
//
// Program ID: ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL
package associatedtoken

import (
	"errors"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// executeCost is the flat compute charge per invocation.
const executeCost = 4000

// Instruction discriminators. Empty data is Create.
const (
	InstructionCreate           uint8 = 0
	InstructionCreateIdempotent uint8 = 1
)

var (
	ErrInvalidInstruction      = errors.New("invalid instruction")
	ErrInvalidSeeds            = errors.New("address does not match derived associated token account")
	ErrAccountAlreadyExists    = errors.New("associated token account already exists")
	ErrInvalidOwner            = errors.New("existing account has a different owner")
	ErrInvalidNumberOfAccounts = errors.New("invalid number of accounts")
)

// Program implements the associated token account program.
type Program struct {
	ProgramID types.Pubkey
}

// New creates a new Program instance.
func New() *Program {
	return &Program{ProgramID: types.AssociatedTokenProgramID}
}

// Execute runs Create or CreateIdempotent.
func (p *Program) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(executeCost); err != nil {
		return err
	}
	switch {
	case len(instruction.Data) == 0 || instruction.Data[0] == InstructionCreate:
		ctx.Logf("Create")
		return handleCreate(ctx, false)
	case instruction.Data[0] == InstructionCreateIdempotent:
		ctx.Logf("CreateIdempotent")
		return handleCreate(ctx, true)
	}
	return fmt.Errorf("%w: discriminator %d", ErrInvalidInstruction, instruction.Data[0])
}

// NewCreateInstruction builds Create (or CreateIdempotent) for the
// associated token account of wallet and mint.
//
// Accounts: [funder (s, w), ata (w), wallet, mint, system program, token program]
func NewCreateInstruction(funder, wallet, mint types.Pubkey, idempotent bool) (types.Instruction, types.Pubkey, error) {
	ata, _, err := syscall.DeriveAssociatedTokenAddress(wallet, mint, types.TokenProgramID)
	if err != nil {
		return types.Instruction{}, types.ZeroPubkey, err
	}
	data := []byte{InstructionCreate}
	if idempotent {
		data[0] = InstructionCreateIdempotent
	}
	return types.Instruction{
		ProgramID: types.AssociatedTokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(funder, true, true),
			types.NewAccountMeta(ata, true, false),
			types.NewAccountMeta(wallet, false, false),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(types.SystemProgramID, false, false),
			types.NewAccountMeta(types.TokenProgramID, false, false),
		},
		Data: data,
	}, ata, nil
}
