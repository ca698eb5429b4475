// Package metadata implements the token metadata program: one record per
// mint holding its display name, symbol and URI, stored at an address
// derived from the mint.
//
// Program ID: metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s
package metadata

import (
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// executeCost is the flat compute charge per invocation.
const executeCost = 5000

// Seed is the leading seed of every metadata address.
const Seed = "metadata"

// MetadataProgram implements the metadata program.
type MetadataProgram struct {
	ProgramID types.Pubkey
}

// New creates a new MetadataProgram instance.
func New() *MetadataProgram {
	return &MetadataProgram{ProgramID: types.MetadataProgramID}
}

// Execute dispatches on the first byte of instruction data.
func (p *MetadataProgram) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(executeCost); err != nil {
		return err
	}
	if len(instruction.Data) < 1 {
		return fmt.Errorf("%w: empty instruction data", ErrInvalidInstructionData)
	}
	dec := bin.NewBorshDecoder(instruction.Data[1:])

	switch instruction.Data[0] {
	case InstructionCreateMetadataAccountV3:
		var args CreateMetadataAccountArgsV3
		if err := args.UnmarshalWithDecoder(dec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
		}
		ctx.Logf("IX: Create Metadata Accounts v3")
		return handleCreateMetadataAccountV3(ctx, &args)

	case InstructionUpdateMetadataAccountV2:
		var args UpdateMetadataAccountArgsV2
		if err := args.UnmarshalWithDecoder(dec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
		}
		ctx.Logf("IX: Update Metadata Accounts v2")
		return handleUpdateMetadataAccountV2(ctx, &args)
	}

	return fmt.Errorf("%w: unknown discriminator %d", ErrInvalidInstruction, instruction.Data[0])
}

// SignerSeeds returns the seeds, bump included, of mint's metadata address.
func SignerSeeds(mint types.Pubkey, bump uint8) [][]byte {
	return [][]byte{[]byte(Seed), types.MetadataProgramID[:], mint[:], {bump}}
}
