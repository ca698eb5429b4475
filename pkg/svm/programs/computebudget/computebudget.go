// Package computebudget implements the Compute Budget Program.
//
// Its instructions configure the transaction rather than mutate accounts:
// the runtime reads them with FromInstructions before execution, and the
// program itself only validates them when they run.
package computebudget

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Instruction discriminators (first data byte).
const (
	InstructionRequestHeapFrame               uint8 = 1
	InstructionSetComputeUnitLimit            uint8 = 2
	InstructionSetComputeUnitPrice            uint8 = 3
	InstructionSetLoadedAccountsDataSizeLimit uint8 = 4
)

const (
	MaxHeapFrameSize     uint32 = 256 * 1024
	DefaultHeapFrameSize uint32 = 32 * 1024
	HeapFrameAlignment   uint32 = 1024

	DefaultLoadedAccountsDataSizeLimit uint32 = 64 * 1024 * 1024

	// executeCost is charged when a budget instruction runs.
	executeCost = 150
)

var (
	ErrInvalidInstructionData  = errors.New("invalid compute budget instruction data")
	ErrInvalidHeapFrameSize    = errors.New("heap frame size must be a multiple of 1024 bytes")
	ErrHeapFrameSizeTooLarge   = errors.New("heap frame size too large")
	ErrComputeUnitLimitTooHigh = errors.New("compute unit limit too high")
	ErrDuplicateInstruction    = errors.New("duplicate compute budget instruction")
	ErrUnknownInstruction      = errors.New("unknown compute budget instruction")
)

// Budget is the compute configuration of one transaction.
type Budget struct {
	ComputeUnitLimit types.ComputeUnits
	// Explicit is set when the transaction requested its own limit.
	Explicit                    bool
	ComputeUnitPrice            uint64
	HeapFrameSize               uint32
	LoadedAccountsDataSizeLimit uint32
}

// DefaultBudget returns the budget of a transaction with n non-budget
// instructions and no requests.
func DefaultBudget(n int) Budget {
	limit := types.DefaultComputeUnitsPerInstruction * types.ComputeUnits(n)
	if limit > types.MaxComputeUnitsPerTransaction {
		limit = types.MaxComputeUnitsPerTransaction
	}
	return Budget{
		ComputeUnitLimit:            limit,
		HeapFrameSize:               DefaultHeapFrameSize,
		LoadedAccountsDataSizeLimit: DefaultLoadedAccountsDataSizeLimit,
	}
}

// FromInstructions collects the budget requests among a transaction's
// instructions. Each request kind may appear at most once.
func FromInstructions(instructions []types.Instruction) (Budget, error) {
	others := 0
	for i := range instructions {
		if instructions[i].ProgramID != types.ComputeBudgetProgramID {
			others++
		}
	}
	b := DefaultBudget(others)

	seen := make(map[uint8]bool, 4)
	for i := range instructions {
		ix := &instructions[i]
		if ix.ProgramID != types.ComputeBudgetProgramID {
			continue
		}
		kind, err := apply(&b, ix.Data)
		if err != nil {
			return Budget{}, fmt.Errorf("instruction %d: %w", i, err)
		}
		if seen[kind] {
			return Budget{}, fmt.Errorf("instruction %d: %w", i, ErrDuplicateInstruction)
		}
		seen[kind] = true
	}
	return b, nil
}

// apply validates one instruction and records it in b.
func apply(b *Budget, data []byte) (uint8, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrInvalidInstructionData)
	}
	kind, args := data[0], data[1:]

	switch kind {
	case InstructionRequestHeapFrame:
		size, err := u32(args)
		if err != nil {
			return kind, err
		}
		if size%HeapFrameAlignment != 0 {
			return kind, fmt.Errorf("%w: %d", ErrInvalidHeapFrameSize, size)
		}
		if size > MaxHeapFrameSize {
			return kind, fmt.Errorf("%w: %d > %d", ErrHeapFrameSizeTooLarge, size, MaxHeapFrameSize)
		}
		b.HeapFrameSize = size

	case InstructionSetComputeUnitLimit:
		limit, err := u32(args)
		if err != nil {
			return kind, err
		}
		if types.ComputeUnits(limit) > types.MaxComputeUnitsPerTransaction {
			return kind, fmt.Errorf("%w: %d", ErrComputeUnitLimitTooHigh, limit)
		}
		b.ComputeUnitLimit = types.ComputeUnits(limit)
		b.Explicit = true

	case InstructionSetComputeUnitPrice:
		if len(args) < 8 {
			return kind, fmt.Errorf("%w: SetComputeUnitPrice needs 8 bytes", ErrInvalidInstructionData)
		}
		b.ComputeUnitPrice = binary.LittleEndian.Uint64(args)

	case InstructionSetLoadedAccountsDataSizeLimit:
		limit, err := u32(args)
		if err != nil {
			return kind, err
		}
		b.LoadedAccountsDataSizeLimit = limit

	default:
		return kind, fmt.Errorf("%w: %d", ErrUnknownInstruction, kind)
	}
	return kind, nil
}

func u32(args []byte) (uint32, error) {
	if len(args) < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes, got %d", ErrInvalidInstructionData, len(args))
	}
	return binary.LittleEndian.Uint32(args), nil
}

// Program is the on-ledger half of the Compute Budget Program.
type Program struct{}

// New creates the program.
func New() *Program {
	return &Program{}
}

// Execute validates the instruction. Budget requests take effect before
// execution, so nothing is changed here.
func (p *Program) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(executeCost); err != nil {
		return err
	}
	var scratch Budget
	_, err := apply(&scratch, instruction.Data)
	return err
}

// NewSetComputeUnitLimitInstruction requests a transaction-wide limit.
func NewSetComputeUnitLimitInstruction(units uint32) types.Instruction {
	return u32Instruction(InstructionSetComputeUnitLimit, units)
}

// NewSetComputeUnitPriceInstruction sets the priority fee in
// micro-lamports per compute unit.
func NewSetComputeUnitPriceInstruction(microLamports uint64) types.Instruction {
	data := make([]byte, 9)
	data[0] = InstructionSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return types.Instruction{ProgramID: types.ComputeBudgetProgramID, Data: data}
}

// NewRequestHeapFrameInstruction requests a heap frame of size bytes.
func NewRequestHeapFrameInstruction(size uint32) types.Instruction {
	return u32Instruction(InstructionRequestHeapFrame, size)
}

func u32Instruction(kind uint8, v uint32) types.Instruction {
	data := make([]byte, 5)
	data[0] = kind
	binary.LittleEndian.PutUint32(data[1:], v)
	return types.Instruction{ProgramID: types.ComputeBudgetProgramID, Data: data}
}
