// Package omerta implements the Omerta token program: a single capped-supply
// fungible token whose mint lives at a program-derived address. Every ledger
// mutation is delegated to the token, associated-token and metadata programs
// through cross-program invocation, signed by the derived address whenever
// the program itself is the authority.
package omerta

import (
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// executeCost is the flat compute charge per invocation.
const executeCost = 2500

// MaxCap is the hard supply ceiling in raw units.
const MaxCap uint64 = 100_000_000_000_000_000

// MaxDecimals bounds the decimal precision chosen at initialization.
const MaxDecimals = 9

// AuthorityMode selects who is recorded as mint authority at initialization.
type AuthorityMode uint8

const (
	// AuthorityDerived records the program's derived address; every mint is
	// signed by the program and the cap cannot be bypassed.
	AuthorityDerived AuthorityMode = iota
	// AuthorityPayer records the initializing payer.
	AuthorityPayer
)

func (m AuthorityMode) String() string {
	switch m {
	case AuthorityDerived:
		return "derived"
	case AuthorityPayer:
		return "payer"
	}
	return fmt.Sprintf("AuthorityMode(%d)", uint8(m))
}

// ParseAuthorityMode parses "derived" or "payer".
func ParseAuthorityMode(s string) (AuthorityMode, error) {
	switch s {
	case "", "derived":
		return AuthorityDerived, nil
	case "payer":
		return AuthorityPayer, nil
	}
	return 0, fmt.Errorf("unknown authority mode %q", s)
}

var ErrInvalidConfig = errors.New("invalid omerta program config")

// Config parameterizes a deployed program instance.
type Config struct {
	ProgramID     types.Pubkey
	AuthorityMode AuthorityMode
	// Cap is the supply ceiling; zero means MaxCap.
	Cap uint64
}

// DefaultConfig returns the configuration of the canonical deployment.
func DefaultConfig() Config {
	return Config{
		ProgramID:     types.OmertaProgramID,
		AuthorityMode: AuthorityDerived,
		Cap:           MaxCap,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ProgramID.IsZero() {
		return fmt.Errorf("%w: program id is zero", ErrInvalidConfig)
	}
	if c.Cap > MaxCap {
		return fmt.Errorf("%w: cap %d exceeds %d", ErrInvalidConfig, c.Cap, MaxCap)
	}
	if c.AuthorityMode > AuthorityPayer {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.AuthorityMode)
	}
	return nil
}

// Program implements the Omerta token program.
type Program struct {
	cfg Config
}

// New creates a program instance. A zero Cap is replaced by MaxCap.
func New(cfg Config) *Program {
	if cfg.Cap == 0 {
		cfg.Cap = MaxCap
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = types.OmertaProgramID
	}
	return &Program{cfg: cfg}
}

// ID returns the program id the instance is deployed under.
func (p *Program) ID() types.Pubkey {
	return p.cfg.ProgramID
}

// Cap returns the supply ceiling enforced by Mint.
func (p *Program) Cap() uint64 {
	return p.cfg.Cap
}

// Instruction names. The 8-byte discriminator of each is
// sha256("global:<name>")[:8].
const (
	NameInitialize          = "initialize"
	NameMintTokens          = "mint_tokens"
	NameTransfer            = "transfer"
	NameApprove             = "approve"
	NameRevoke              = "revoke"
	NameBurn                = "burn"
	NameChangeMintAuthority = "change_mint_authority"
	NameUpdateMetadata      = "update_metadata"
)

// Discriminator returns the instruction discriminator for name.
func Discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var (
	discInitialize          = Discriminator(NameInitialize)
	discMintTokens          = Discriminator(NameMintTokens)
	discTransfer            = Discriminator(NameTransfer)
	discApprove             = Discriminator(NameApprove)
	discRevoke              = Discriminator(NameRevoke)
	discBurn                = Discriminator(NameBurn)
	discChangeMintAuthority = Discriminator(NameChangeMintAuthority)
	discUpdateMetadata      = Discriminator(NameUpdateMetadata)
)

// Execute dispatches on the 8-byte discriminator and decodes borsh
// arguments from the remainder.
func (p *Program) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(executeCost); err != nil {
		return err
	}
	if len(instruction.Data) < 8 {
		return ErrInstructionMissing
	}
	var disc [8]byte
	copy(disc[:], instruction.Data[:8])
	dec := bin.NewBorshDecoder(instruction.Data[8:])

	switch disc {
	case discInitialize:
		var params InitTokenParams
		if err := params.UnmarshalWithDecoder(dec); err != nil {
			return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
		}
		ctx.Logf("Instruction: Initialize")
		return p.initialize(ctx, &params)

	case discMintTokens:
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
		}
		ctx.Logf("Instruction: MintTokens")
		return p.mintTokens(ctx, amount)

	case discTransfer:
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
		}
		ctx.Logf("Instruction: Transfer")
		return p.transfer(ctx, amount)

	case discApprove:
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
		}
		ctx.Logf("Instruction: Approve")
		return p.approve(ctx, amount)

	case discRevoke:
		ctx.Logf("Instruction: Revoke")
		return p.revoke(ctx)

	case discBurn:
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
		}
		ctx.Logf("Instruction: Burn")
		return p.burn(ctx, amount)

	case discChangeMintAuthority:
		newAuthority, err := readOptionPubkey(dec)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
		}
		ctx.Logf("Instruction: ChangeMintAuthority")
		return p.changeMintAuthority(ctx, newAuthority)

	case discUpdateMetadata:
		var params InitTokenParams
		if err := params.UnmarshalWithDecoder(dec); err != nil {
			return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
		}
		ctx.Logf("Instruction: UpdateMetadata")
		return p.updateMetadata(ctx, &params)
	}

	return ErrInstructionFallbackNotFound
}
