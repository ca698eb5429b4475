package metadata

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Instruction discriminators (first byte of instruction data).
const (
	InstructionUpdateMetadataAccountV2 uint8 = 15
	InstructionCreateMetadataAccountV3 uint8 = 33
)

// CreateMetadataAccountArgsV3 are the arguments of CreateMetadataAccountV3.
type CreateMetadataAccountArgsV3 struct {
	Data      DataV2
	IsMutable bool
}

func (a *CreateMetadataAccountArgsV3) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := a.Data.MarshalWithEncoder(enc); err != nil {
		return err
	}
	if err := enc.WriteBool(a.IsMutable); err != nil {
		return err
	}
	return enc.WriteBool(false) // collection details
}

func (a *CreateMetadataAccountArgsV3) UnmarshalWithDecoder(dec *bin.Decoder) error {
	if err := a.Data.UnmarshalWithDecoder(dec); err != nil {
		return err
	}
	var err error
	if a.IsMutable, err = dec.ReadBool(); err != nil {
		return err
	}
	return readNone(dec, "collection details")
}

// UpdateMetadataAccountArgsV2 are the arguments of UpdateMetadataAccountV2.
// A nil field leaves the record unchanged.
type UpdateMetadataAccountArgsV2 struct {
	Data                *DataV2
	UpdateAuthority     *types.Pubkey
	PrimarySaleHappened *bool
	IsMutable           *bool
}

func writeOptionBool(enc *bin.Encoder, v *bool) error {
	if err := enc.WriteBool(v != nil); err != nil || v == nil {
		return err
	}
	return enc.WriteBool(*v)
}

func readOptionBool(dec *bin.Decoder) (*bool, error) {
	some, err := dec.ReadBool()
	if err != nil || !some {
		return nil, err
	}
	v, err := dec.ReadBool()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *UpdateMetadataAccountArgsV2) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBool(a.Data != nil); err != nil {
		return err
	}
	if a.Data != nil {
		if err := a.Data.MarshalWithEncoder(enc); err != nil {
			return err
		}
	}
	if err := enc.WriteBool(a.UpdateAuthority != nil); err != nil {
		return err
	}
	if a.UpdateAuthority != nil {
		if err := enc.WriteBytes(a.UpdateAuthority[:], false); err != nil {
			return err
		}
	}
	if err := writeOptionBool(enc, a.PrimarySaleHappened); err != nil {
		return err
	}
	return writeOptionBool(enc, a.IsMutable)
}

func (a *UpdateMetadataAccountArgsV2) UnmarshalWithDecoder(dec *bin.Decoder) error {
	some, err := dec.ReadBool()
	if err != nil {
		return err
	}
	if some {
		a.Data = new(DataV2)
		if err := a.Data.UnmarshalWithDecoder(dec); err != nil {
			return err
		}
	}
	if some, err = dec.ReadBool(); err != nil {
		return err
	}
	if some {
		pk, err := readPubkey(dec)
		if err != nil {
			return err
		}
		a.UpdateAuthority = &pk
	}
	if a.PrimarySaleHappened, err = readOptionBool(dec); err != nil {
		return err
	}
	a.IsMutable, err = readOptionBool(dec)
	return err
}

type marshaler interface {
	MarshalWithEncoder(enc *bin.Encoder) error
}

func encodeInstruction(discriminator uint8, args marshaler) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(discriminator)
	if err := args.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		// Writes to a bytes.Buffer cannot fail.
		panic(fmt.Sprintf("metadata: encode instruction: %v", err))
	}
	return buf.Bytes()
}

// NewCreateMetadataAccountV3Instruction builds CreateMetadataAccountV3.
//
// Accounts: [metadata (w), mint, mint authority (s), payer (s, w),
// update authority, system program]
func NewCreateMetadataAccountV3Instruction(metadata, mint, mintAuthority, payer, updateAuthority types.Pubkey, data DataV2, isMutable bool) types.Instruction {
	return types.Instruction{
		ProgramID: types.MetadataProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(metadata, true, false),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(mintAuthority, false, true),
			types.NewAccountMeta(payer, true, true),
			types.NewAccountMeta(updateAuthority, false, false),
			types.NewAccountMeta(types.SystemProgramID, false, false),
		},
		Data: encodeInstruction(InstructionCreateMetadataAccountV3,
			&CreateMetadataAccountArgsV3{Data: data, IsMutable: isMutable}),
	}
}

// NewUpdateMetadataAccountV2Instruction builds UpdateMetadataAccountV2.
//
// Accounts: [metadata (w), update authority (s)]
func NewUpdateMetadataAccountV2Instruction(metadata, updateAuthority types.Pubkey, args UpdateMetadataAccountArgsV2) types.Instruction {
	return types.Instruction{
		ProgramID: types.MetadataProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(metadata, true, false),
			types.NewAccountMeta(updateAuthority, false, true),
		},
		Data: encodeInstruction(InstructionUpdateMetadataAccountV2, &args),
	}
}
