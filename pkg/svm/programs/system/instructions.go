package system

import (
	"encoding/binary"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Instruction discriminators (little-endian u32 prefix).
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// CreateAccountInstruction funds, allocates and assigns a new account.
type CreateAccountInstruction struct {
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

func (inst *CreateAccountInstruction) Decode(data []byte) error {
	if len(data) < 48 {
		return fmt.Errorf("%w: CreateAccount needs 48 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Lamports = binary.LittleEndian.Uint64(data[0:8])
	inst.Space = binary.LittleEndian.Uint64(data[8:16])
	copy(inst.Owner[:], data[16:48])
	return nil
}

func (inst *CreateAccountInstruction) Encode() []byte {
	data := make([]byte, 4+48)
	binary.LittleEndian.PutUint32(data[0:4], InstructionCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], inst.Lamports)
	binary.LittleEndian.PutUint64(data[12:20], inst.Space)
	copy(data[20:52], inst.Owner[:])
	return data
}

// NewCreateAccountInstruction builds CreateAccount.
// Accounts: [funder (s, w), new account (s, w)]
func NewCreateAccountInstruction(funder, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) types.Instruction {
	inst := CreateAccountInstruction{Lamports: lamports, Space: space, Owner: owner}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(funder, true, true),
			types.NewAccountMeta(newAccount, true, true),
		},
		Data: inst.Encode(),
	}
}

// NewTransferInstruction builds Transfer.
// Accounts: [from (s, w), to (w)]
func NewTransferInstruction(from, to types.Pubkey, lamports uint64) types.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], InstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(from, true, true),
			types.NewAccountMeta(to, true, false),
		},
		Data: data,
	}
}

// NewAssignInstruction builds Assign.
// Accounts: [account (s, w)]
func NewAssignInstruction(account, owner types.Pubkey) types.Instruction {
	data := make([]byte, 36)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAssign)
	copy(data[4:], owner[:])
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(account, true, true)},
		Data:      data,
	}
}

// NewAllocateInstruction builds Allocate.
// Accounts: [account (s, w)]
func NewAllocateInstruction(account types.Pubkey, space uint64) types.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAllocate)
	binary.LittleEndian.PutUint64(data[4:12], space)
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(account, true, true)},
		Data:      data,
	}
}
