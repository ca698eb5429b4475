package omerta

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// InitTokenParams are the arguments of initialize and update_metadata.
// Decimals is ignored by update_metadata.
type InitTokenParams struct {
	Name     string
	Symbol   string
	URI      string
	Decimals uint8
}

func (p *InitTokenParams) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, s := range []string{p.Name, p.Symbol, p.URI} {
		if err := enc.WriteUint32(uint32(len(s)), bin.LE); err != nil {
			return err
		}
		if err := enc.WriteBytes([]byte(s), false); err != nil {
			return err
		}
	}
	return enc.WriteUint8(p.Decimals)
}

func (p *InitTokenParams) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, dst := range []*string{&p.Name, &p.Symbol, &p.URI} {
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return err
		}
		if int(n) > dec.Remaining() {
			return fmt.Errorf("string length %d exceeds remaining %d bytes", n, dec.Remaining())
		}
		b, err := dec.ReadBytes(int(n))
		if err != nil {
			return err
		}
		*dst = string(b)
	}
	p.Decimals, err = dec.ReadUint8()
	return err
}

func readOptionPubkey(dec *bin.Decoder) (*types.Pubkey, error) {
	some, err := dec.ReadBool()
	if err != nil || !some {
		return nil, err
	}
	b, err := dec.ReadBytes(32)
	if err != nil {
		return nil, err
	}
	pk, err := types.PubkeyFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}

func instructionData(name string, args func(enc *bin.Encoder) error) []byte {
	buf := new(bytes.Buffer)
	disc := Discriminator(name)
	buf.Write(disc[:])
	if args != nil {
		if err := args(bin.NewBorshEncoder(buf)); err != nil {
			// Writes to a bytes.Buffer cannot fail.
			panic(fmt.Sprintf("omerta: encode %s: %v", name, err))
		}
	}
	return buf.Bytes()
}

func amountArg(amount uint64) func(enc *bin.Encoder) error {
	return func(enc *bin.Encoder) error {
		return enc.WriteUint64(amount, bin.LE)
	}
}

// Addresses are the fixed accounts of one program deployment.
type Addresses struct {
	ProgramID types.Pubkey
	Mint      types.Pubkey
	MintBump  uint8
	Metadata  types.Pubkey
}

// DeriveAddresses computes the mint and metadata addresses of programID.
func DeriveAddresses(programID types.Pubkey) (Addresses, error) {
	mint, bump, err := DeriveMintAuthority(programID)
	if err != nil {
		return Addresses{}, err
	}
	metadata, _, err := syscall.DeriveMetadataAddress(mint)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{ProgramID: programID, Mint: mint, MintBump: bump, Metadata: metadata}, nil
}

// TokenAccount returns the associated token account of owner for the mint.
func (a Addresses) TokenAccount(owner types.Pubkey) (types.Pubkey, error) {
	ata, _, err := syscall.DeriveAssociatedTokenAddress(owner, a.Mint, types.TokenProgramID)
	return ata, err
}

// NewInitializeInstruction builds initialize.
//
// Accounts: [metadata (w), mint (w), payer (s, w), rent sysvar,
// system program, token program, metadata program]
func NewInitializeInstruction(programID, payer types.Pubkey, params InitTokenParams) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(addrs.Metadata, true, false),
			types.NewAccountMeta(addrs.Mint, true, false),
			types.NewAccountMeta(payer, true, true),
			types.NewAccountMeta(types.SysvarRentID, false, false),
			types.NewAccountMeta(types.SystemProgramID, false, false),
			types.NewAccountMeta(types.TokenProgramID, false, false),
			types.NewAccountMeta(types.MetadataProgramID, false, false),
		},
		Data: instructionData(NameInitialize, params.MarshalWithEncoder),
	}, nil
}

// NewMintTokensInstruction builds mint_tokens crediting owner's associated
// token account. authority is the recorded mint authority; a zero key
// means the derived address, which the program signs for once payer is
// shown to be the administrator named in the metadata record.
//
// Accounts: [mint (w), destination (w), destination owner, authority,
// payer (s, w), system program, token program, associated token program,
// metadata]
func NewMintTokensInstruction(programID, payer, owner, authority types.Pubkey, amount uint64) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	destination, err := addrs.TokenAccount(owner)
	if err != nil {
		return types.Instruction{}, err
	}
	metadataAddr, _, err := syscall.DeriveMetadataAddress(addrs.Mint)
	if err != nil {
		return types.Instruction{}, err
	}
	authorityMeta := types.NewAccountMeta(authority, false, true)
	if authority.IsZero() || authority == addrs.Mint {
		authorityMeta = types.NewAccountMeta(addrs.Mint, false, false)
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(addrs.Mint, true, false),
			types.NewAccountMeta(destination, true, false),
			types.NewAccountMeta(owner, false, false),
			authorityMeta,
			types.NewAccountMeta(payer, true, true),
			types.NewAccountMeta(types.SystemProgramID, false, false),
			types.NewAccountMeta(types.TokenProgramID, false, false),
			types.NewAccountMeta(types.AssociatedTokenProgramID, false, false),
			types.NewAccountMeta(metadataAddr, false, false),
		},
		Data: instructionData(NameMintTokens, amountArg(amount)),
	}, nil
}

// NewTransferInstruction builds transfer. The recipient's associated token
// account is created if absent, paid by from.
//
// Accounts: [from (s, w), to, mint, from ata (w), to ata (w),
// system program, token program, associated token program]
func NewTransferInstruction(programID, from, to types.Pubkey, amount uint64) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	fromATA, err := addrs.TokenAccount(from)
	if err != nil {
		return types.Instruction{}, err
	}
	toATA, err := addrs.TokenAccount(to)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(from, true, true),
			types.NewAccountMeta(to, false, false),
			types.NewAccountMeta(addrs.Mint, false, false),
			types.NewAccountMeta(fromATA, true, false),
			types.NewAccountMeta(toATA, true, false),
			types.NewAccountMeta(types.SystemProgramID, false, false),
			types.NewAccountMeta(types.TokenProgramID, false, false),
			types.NewAccountMeta(types.AssociatedTokenProgramID, false, false),
		},
		Data: instructionData(NameTransfer, amountArg(amount)),
	}, nil
}

// NewApproveInstruction builds approve.
//
// Accounts: [from ata (w), from (s), delegate, token program]
func NewApproveInstruction(programID, owner, delegate types.Pubkey, amount uint64) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	ata, err := addrs.TokenAccount(owner)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(ata, true, false),
			types.NewAccountMeta(owner, false, true),
			types.NewAccountMeta(delegate, false, false),
			types.NewAccountMeta(types.TokenProgramID, false, false),
		},
		Data: instructionData(NameApprove, amountArg(amount)),
	}, nil
}

// NewRevokeInstruction builds revoke.
//
// Accounts: [from ata (w), from (s), token program]
func NewRevokeInstruction(programID, owner types.Pubkey) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	ata, err := addrs.TokenAccount(owner)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(ata, true, false),
			types.NewAccountMeta(owner, false, true),
			types.NewAccountMeta(types.TokenProgramID, false, false),
		},
		Data: instructionData(NameRevoke, nil),
	}, nil
}

// NewBurnInstruction builds burn against holder's associated token account.
// authority is the holder or its delegate.
//
// Accounts: [mint (w), from ata (w), authority (s), token program]
func NewBurnInstruction(programID, holder, authority types.Pubkey, amount uint64) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	ata, err := addrs.TokenAccount(holder)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(addrs.Mint, true, false),
			types.NewAccountMeta(ata, true, false),
			types.NewAccountMeta(authority, false, true),
			types.NewAccountMeta(types.TokenProgramID, false, false),
		},
		Data: instructionData(NameBurn, amountArg(amount)),
	}, nil
}

// NewChangeMintAuthorityInstruction builds change_mint_authority. A nil
// newAuthority removes the authority for good.
//
// Accounts: [mint (w), current authority (s), metadata, token program]
func NewChangeMintAuthorityInstruction(programID, current types.Pubkey, newAuthority *types.Pubkey) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	args := func(enc *bin.Encoder) error {
		if err := enc.WriteBool(newAuthority != nil); err != nil || newAuthority == nil {
			return err
		}
		return enc.WriteBytes(newAuthority[:], false)
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(addrs.Mint, true, false),
			types.NewAccountMeta(current, false, true),
			types.NewAccountMeta(addrs.Metadata, false, false),
			types.NewAccountMeta(types.TokenProgramID, false, false),
		},
		Data: instructionData(NameChangeMintAuthority, args),
	}, nil
}

// NewUpdateMetadataInstruction builds update_metadata.
//
// Accounts: [metadata (w), mint, update authority (s), metadata program]
func NewUpdateMetadataInstruction(programID, updateAuthority types.Pubkey, params InitTokenParams) (types.Instruction, error) {
	addrs, err := DeriveAddresses(programID)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(addrs.Metadata, true, false),
			types.NewAccountMeta(addrs.Mint, false, false),
			types.NewAccountMeta(updateAuthority, false, true),
			types.NewAccountMeta(types.MetadataProgramID, false, false),
		},
		Data: instructionData(NameUpdateMetadata, params.MarshalWithEncoder),
	}, nil
}
