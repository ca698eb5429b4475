// Package token implements the token-ledger program: mints, token
// accounts, transfers, delegation, supply changes and authority updates,
// using the SPL Token account layouts and instruction encoding.
//
// Program ID: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
package token

import (
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// executeCost is the flat compute charge per invocation.
const executeCost = 3000

// TokenProgram implements the token-ledger program.
type TokenProgram struct {
	ProgramID types.Pubkey
}

// New creates a new TokenProgram instance.
func New() *TokenProgram {
	return &TokenProgram{ProgramID: types.TokenProgramID}
}

// Execute dispatches on the first byte of instruction data.
func (p *TokenProgram) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(executeCost); err != nil {
		return err
	}
	if len(instruction.Data) < 1 {
		return fmt.Errorf("%w: empty instruction data", ErrInvalidInstructionData)
	}
	data := instruction.Data[1:]

	switch instruction.Data[0] {
	case InstructionInitializeMint2:
		var inst InitializeMint2Instruction
		if err := inst.Decode(data); err != nil {
			return err
		}
		ctx.Logf("Instruction: InitializeMint2")
		return handleInitializeMint2(ctx, &inst)

	case InstructionInitializeAccount3:
		owner, err := types.PubkeyFromBytes(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
		}
		ctx.Logf("Instruction: InitializeAccount3")
		return handleInitializeAccount3(ctx, owner)

	case InstructionTransfer:
		amount, err := decodeAmount(data)
		if err != nil {
			return err
		}
		ctx.Logf("Instruction: Transfer")
		return handleTransfer(ctx, amount)

	case InstructionApprove:
		amount, err := decodeAmount(data)
		if err != nil {
			return err
		}
		ctx.Logf("Instruction: Approve")
		return handleApprove(ctx, amount)

	case InstructionRevoke:
		ctx.Logf("Instruction: Revoke")
		return handleRevoke(ctx)

	case InstructionSetAuthority:
		var inst SetAuthorityInstruction
		if err := inst.Decode(data); err != nil {
			return err
		}
		ctx.Logf("Instruction: SetAuthority")
		return handleSetAuthority(ctx, &inst)

	case InstructionMintTo:
		amount, err := decodeAmount(data)
		if err != nil {
			return err
		}
		ctx.Logf("Instruction: MintTo")
		return handleMintTo(ctx, amount)

	case InstructionBurn:
		amount, err := decodeAmount(data)
		if err != nil {
			return err
		}
		ctx.Logf("Instruction: Burn")
		return handleBurn(ctx, amount)

	case InstructionFreezeAccount:
		ctx.Logf("Instruction: FreezeAccount")
		return handleToggleFreeze(ctx, true)

	case InstructionThawAccount:
		ctx.Logf("Instruction: ThawAccount")
		return handleToggleFreeze(ctx, false)
	}

	return fmt.Errorf("%w: unknown discriminator %d", ErrInvalidInstruction, instruction.Data[0])
}
