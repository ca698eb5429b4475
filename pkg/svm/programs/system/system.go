// Package system implements the subset of the System Program the token
// stack relies on: account creation, lamport transfers, allocation and
// ownership assignment.
package system

import (
	"encoding/binary"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// executeCost is the flat compute charge per invocation.
const executeCost = 150

// MaxAccountDataSize is the largest allocation the program accepts.
const MaxAccountDataSize = 10 * 1024 * 1024

// SystemProgram implements the System Program.
type SystemProgram struct {
	ProgramID types.Pubkey
}

// New creates a new SystemProgram instance.
func New() *SystemProgram {
	return &SystemProgram{ProgramID: types.SystemProgramID}
}

// Execute dispatches on the u32 discriminator.
func (p *SystemProgram) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(executeCost); err != nil {
		return err
	}
	if len(instruction.Data) < 4 {
		return fmt.Errorf("%w: missing discriminator", ErrInvalidInstructionData)
	}
	data := instruction.Data[4:]

	switch binary.LittleEndian.Uint32(instruction.Data[:4]) {
	case InstructionCreateAccount:
		var inst CreateAccountInstruction
		if err := inst.Decode(data); err != nil {
			return err
		}
		return handleCreateAccount(ctx, &inst)

	case InstructionAssign:
		owner, err := types.PubkeyFromBytes(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
		}
		return handleAssign(ctx, owner)

	case InstructionTransfer:
		if len(data) < 8 {
			return fmt.Errorf("%w: Transfer needs 8 bytes", ErrInvalidInstructionData)
		}
		return handleTransfer(ctx, binary.LittleEndian.Uint64(data))

	case InstructionAllocate:
		if len(data) < 8 {
			return fmt.Errorf("%w: Allocate needs 8 bytes", ErrInvalidInstructionData)
		}
		return handleAllocate(ctx, binary.LittleEndian.Uint64(data))
	}

	return fmt.Errorf("%w: discriminator %d", ErrInvalidInstruction, binary.LittleEndian.Uint32(instruction.Data[:4]))
}
