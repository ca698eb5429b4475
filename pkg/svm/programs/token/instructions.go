package token

import (
	"encoding/binary"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Instruction discriminators (first byte of instruction data).
const (
	InstructionTransfer           uint8 = 3
	InstructionApprove            uint8 = 4
	InstructionRevoke             uint8 = 5
	InstructionSetAuthority       uint8 = 6
	InstructionMintTo             uint8 = 7
	InstructionBurn               uint8 = 8
	InstructionFreezeAccount      uint8 = 10
	InstructionThawAccount        uint8 = 11
	InstructionInitializeAccount3 uint8 = 18
	InstructionInitializeMint2    uint8 = 20
)

// AuthorityType selects which authority SetAuthority replaces.
type AuthorityType uint8

const (
	AuthorityMintTokens    AuthorityType = 0
	AuthorityFreezeAccount AuthorityType = 1
	AuthorityAccountOwner  AuthorityType = 2
	AuthorityCloseAccount  AuthorityType = 3
)

func (t AuthorityType) String() string {
	switch t {
	case AuthorityMintTokens:
		return "MintTokens"
	case AuthorityFreezeAccount:
		return "FreezeAccount"
	case AuthorityAccountOwner:
		return "AccountOwner"
	case AuthorityCloseAccount:
		return "CloseAccount"
	}
	return fmt.Sprintf("AuthorityType(%d)", uint8(t))
}

// Instruction data uses a 1-byte tag for optional pubkeys, unlike the
// 4-byte tag of stored state.
func appendOption(buf []byte, o COption) []byte {
	if !o.IsSome {
		return append(buf, 0)
	}
	return append(append(buf, 1), o.Value[:]...)
}

func decodeOption(data []byte) (COption, int, error) {
	if len(data) < 1 {
		return COption{}, 0, fmt.Errorf("%w: missing option tag", ErrInvalidInstructionData)
	}
	switch data[0] {
	case 0:
		return COption{}, 1, nil
	case 1:
		if len(data) < 33 {
			return COption{}, 0, fmt.Errorf("%w: truncated pubkey", ErrInvalidInstructionData)
		}
		var pk types.Pubkey
		copy(pk[:], data[1:33])
		return Some(pk), 33, nil
	}
	return COption{}, 0, fmt.Errorf("%w: option tag %d", ErrInvalidInstructionData, data[0])
}

func decodeAmount(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("%w: amount needs 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

func amountData(discriminator uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = discriminator
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// InitializeMint2Instruction is the payload of InitializeMint2.
type InitializeMint2Instruction struct {
	Decimals        uint8
	MintAuthority   types.Pubkey
	FreezeAuthority COption
}

func (inst *InitializeMint2Instruction) Decode(data []byte) error {
	if len(data) < 33 {
		return fmt.Errorf("%w: InitializeMint2 needs at least 33 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Decimals = data[0]
	copy(inst.MintAuthority[:], data[1:33])
	opt, _, err := decodeOption(data[33:])
	if err != nil {
		return err
	}
	inst.FreezeAuthority = opt
	return nil
}

func (inst *InitializeMint2Instruction) Encode() []byte {
	data := append([]byte{InstructionInitializeMint2, inst.Decimals}, inst.MintAuthority[:]...)
	return appendOption(data, inst.FreezeAuthority)
}

// SetAuthorityInstruction is the payload of SetAuthority.
type SetAuthorityInstruction struct {
	AuthorityType AuthorityType
	NewAuthority  COption
}

func (inst *SetAuthorityInstruction) Decode(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: SetAuthority needs at least 2 bytes", ErrInvalidInstructionData)
	}
	inst.AuthorityType = AuthorityType(data[0])
	opt, _, err := decodeOption(data[1:])
	if err != nil {
		return err
	}
	inst.NewAuthority = opt
	return nil
}

func (inst *SetAuthorityInstruction) Encode() []byte {
	return appendOption([]byte{InstructionSetAuthority, uint8(inst.AuthorityType)}, inst.NewAuthority)
}

// Client-side builders. Account order matches the handlers below.

// NewInitializeMint2Instruction builds InitializeMint2.
// Accounts: [mint (w)]
func NewInitializeMint2Instruction(mint types.Pubkey, decimals uint8, mintAuthority types.Pubkey, freezeAuthority COption) types.Instruction {
	inst := InitializeMint2Instruction{Decimals: decimals, MintAuthority: mintAuthority, FreezeAuthority: freezeAuthority}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(mint, true, false)},
		Data:      inst.Encode(),
	}
}

// NewInitializeAccount3Instruction builds InitializeAccount3.
// Accounts: [account (w), mint]
func NewInitializeAccount3Instruction(account, mint, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(account, true, false),
			types.NewAccountMeta(mint, false, false),
		},
		Data: append([]byte{InstructionInitializeAccount3}, owner[:]...),
	}
}

// NewTransferInstruction builds Transfer.
// Accounts: [source (w), destination (w), authority (s)]
func NewTransferInstruction(source, destination, authority types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, true, false),
			types.NewAccountMeta(destination, true, false),
			types.NewAccountMeta(authority, false, true),
		},
		Data: amountData(InstructionTransfer, amount),
	}
}

// NewApproveInstruction builds Approve.
// Accounts: [source (w), delegate, owner (s)]
func NewApproveInstruction(source, delegate, owner types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, true, false),
			types.NewAccountMeta(delegate, false, false),
			types.NewAccountMeta(owner, false, true),
		},
		Data: amountData(InstructionApprove, amount),
	}
}

// NewRevokeInstruction builds Revoke.
// Accounts: [source (w), owner (s)]
func NewRevokeInstruction(source, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, true, false),
			types.NewAccountMeta(owner, false, true),
		},
		Data: []byte{InstructionRevoke},
	}
}

// NewSetAuthorityInstruction builds SetAuthority.
// Accounts: [account (w), current authority (s)]
func NewSetAuthorityInstruction(account, current types.Pubkey, authorityType AuthorityType, newAuthority COption) types.Instruction {
	inst := SetAuthorityInstruction{AuthorityType: authorityType, NewAuthority: newAuthority}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(account, true, false),
			types.NewAccountMeta(current, false, true),
		},
		Data: inst.Encode(),
	}
}

// NewMintToInstruction builds MintTo.
// Accounts: [mint (w), destination (w), mint authority (s)]
func NewMintToInstruction(mint, destination, authority types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(mint, true, false),
			types.NewAccountMeta(destination, true, false),
			types.NewAccountMeta(authority, false, true),
		},
		Data: amountData(InstructionMintTo, amount),
	}
}

// NewBurnInstruction builds Burn.
// Accounts: [source (w), mint (w), authority (s)]
func NewBurnInstruction(source, mint, authority types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, true, false),
			types.NewAccountMeta(mint, true, false),
			types.NewAccountMeta(authority, false, true),
		},
		Data: amountData(InstructionBurn, amount),
	}
}

// NewFreezeAccountInstruction builds FreezeAccount (or ThawAccount when thaw is set).
// Accounts: [account (w), mint, freeze authority (s)]
func NewFreezeAccountInstruction(account, mint, authority types.Pubkey, thaw bool) types.Instruction {
	disc := InstructionFreezeAccount
	if thaw {
		disc = InstructionThawAccount
	}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(account, true, false),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(authority, false, true),
		},
		Data: []byte{disc},
	}
}
