package syscall

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

const (
	MaxSeeds   = 16
	MaxSeedLen = 32

	// PDAMarker is appended to every derivation hash.
	PDAMarker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedsExceeded    = errors.New("too many seeds")
	ErrMaxSeedLenExceeded  = errors.New("seed too long")
	ErrInvalidSeeds        = errors.New("seeds produce an address on the ed25519 curve")
	ErrDerivationExhausted = errors.New("no viable bump seed found")
)

// Compute costs charged by derivation helpers.
const (
	CUCreatePDA      = 1500
	CUFindPDAPerIter = 1500
)

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d > %d", ErrMaxSeedsExceeded, len(seeds), MaxSeeds)
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return fmt.Errorf("%w: seed %d is %d bytes", ErrMaxSeedLenExceeded, i, len(s))
		}
	}
	return nil
}

// CreateProgramAddress hashes seeds || programID || PDAMarker and rejects
// results that are valid curve points, since those could have a private key.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if err := checkSeeds(seeds); err != nil {
		return types.ZeroPubkey, err
	}

	hasher := sha256.New()
	for _, seed := range seeds {
		hasher.Write(seed)
	}
	hasher.Write(programID[:])
	hasher.Write([]byte(PDAMarker))

	var pda types.Pubkey
	copy(pda[:], hasher.Sum(nil))
	if IsOnCurve(pda[:]) {
		return types.ZeroPubkey, ErrInvalidSeeds
	}
	return pda, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the
// first off-curve address. When ctx is non-nil every attempt is charged.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey, ctx *ExecutionContext) (types.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.ZeroPubkey, 0, fmt.Errorf("%w: %d seeds leave no room for a bump", ErrMaxSeedsExceeded, len(seeds))
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bumpSeed := []byte{0}
	withBump[len(seeds)] = bumpSeed

	for bump := 255; bump >= 0; bump-- {
		if ctx != nil {
			if err := ctx.ConsumeComputeUnits(CUFindPDAPerIter); err != nil {
				return types.ZeroPubkey, 0, err
			}
		}
		bumpSeed[0] = uint8(bump)
		pda, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pda, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return types.ZeroPubkey, 0, err
		}
	}
	return types.ZeroPubkey, 0, ErrDerivationExhausted
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// DeriveAssociatedTokenAddress returns the canonical token account for
// wallet and mint.
func DeriveAssociatedTokenAddress(wallet, mint, tokenProgram types.Pubkey) (types.Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{wallet[:], tokenProgram[:], mint[:]}, types.AssociatedTokenProgramID, nil)
}

// DeriveMetadataAddress returns the metadata record address for mint.
func DeriveMetadataAddress(mint types.Pubkey) (types.Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte("metadata"), types.MetadataProgramID[:], mint[:]}, types.MetadataProgramID, nil)
}
