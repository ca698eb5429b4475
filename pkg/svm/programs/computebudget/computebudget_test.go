package computebudget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func other() types.Instruction {
	return types.Instruction{ProgramID: types.SystemProgramID, Data: []byte{2, 0, 0, 0}}
}

func TestFromInstructions_Defaults(t *testing.T) {
	b, err := FromInstructions([]types.Instruction{other(), other()})
	require.NoError(t, err)
	assert.Equal(t, types.ComputeUnits(400_000), b.ComputeUnitLimit)
	assert.False(t, b.Explicit)
	assert.Equal(t, DefaultHeapFrameSize, b.HeapFrameSize)
	assert.Equal(t, DefaultLoadedAccountsDataSizeLimit, b.LoadedAccountsDataSizeLimit)

	many := make([]types.Instruction, 10)
	for i := range many {
		many[i] = other()
	}
	b, err = FromInstructions(many)
	require.NoError(t, err)
	assert.Equal(t, types.MaxComputeUnitsPerTransaction, b.ComputeUnitLimit)
}

func TestFromInstructions_Requests(t *testing.T) {
	b, err := FromInstructions([]types.Instruction{
		NewSetComputeUnitLimitInstruction(50_000),
		NewSetComputeUnitPriceInstruction(7),
		NewRequestHeapFrameInstruction(64 * 1024),
		other(),
	})
	require.NoError(t, err)
	assert.Equal(t, Budget{
		ComputeUnitLimit:            50_000,
		Explicit:                    true,
		ComputeUnitPrice:            7,
		HeapFrameSize:               64 * 1024,
		LoadedAccountsDataSizeLimit: DefaultLoadedAccountsDataSizeLimit,
	}, b)
}

func TestFromInstructions_Rejects(t *testing.T) {
	tests := []struct {
		name string
		ixs  []types.Instruction
		want error
	}{
		{"duplicate limit", []types.Instruction{NewSetComputeUnitLimitInstruction(1), NewSetComputeUnitLimitInstruction(2)}, ErrDuplicateInstruction},
		{"limit too high", []types.Instruction{NewSetComputeUnitLimitInstruction(1_400_001)}, ErrComputeUnitLimitTooHigh},
		{"unaligned heap", []types.Instruction{NewRequestHeapFrameInstruction(33_000)}, ErrInvalidHeapFrameSize},
		{"heap too large", []types.Instruction{NewRequestHeapFrameInstruction(MaxHeapFrameSize + HeapFrameAlignment)}, ErrHeapFrameSizeTooLarge},
		{"short price", []types.Instruction{{ProgramID: types.ComputeBudgetProgramID, Data: []byte{3, 1, 2}}}, ErrInvalidInstructionData},
		{"empty", []types.Instruction{{ProgramID: types.ComputeBudgetProgramID}}, ErrInvalidInstructionData},
		{"unknown", []types.Instruction{{ProgramID: types.ComputeBudgetProgramID, Data: []byte{0}}}, ErrUnknownInstruction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromInstructions(tt.ixs)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExecute(t *testing.T) {
	ix := NewSetComputeUnitPriceInstruction(1)
	ctx := syscall.NewExecutionContext(ix.ProgramID, nil, ix.Data, 1_000)
	require.NoError(t, New().Execute(ctx, &ix))
	assert.Equal(t, uint64(executeCost), ctx.ComputeUnitsConsumed())

	bad := types.Instruction{ProgramID: types.ComputeBudgetProgramID, Data: []byte{9}}
	ctx = syscall.NewExecutionContext(bad.ProgramID, nil, bad.Data, 1_000)
	assert.ErrorIs(t, New().Execute(ctx, &bad), ErrUnknownInstruction)

	ctx = syscall.NewExecutionContext(ix.ProgramID, nil, ix.Data, 10)
	assert.ErrorIs(t, New().Execute(ctx, &ix), syscall.ErrComputeExhausted)
}
