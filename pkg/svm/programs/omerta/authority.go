package omerta

import (
	"errors"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// MintSeed is the only seed of the program's derived address. That address
// holds the mint and, in AuthorityDerived mode, is its mint authority.
const MintSeed = "mint"

// DeriveMintAuthority returns the program's derived address and bump. It is
// a pure function of programID.
func DeriveMintAuthority(programID types.Pubkey) (types.Pubkey, uint8, error) {
	return deriveMintAuthority(programID, nil)
}

// deriveMintAuthority charges the search to ctx when one is given. Handlers
// call it on every instruction; the result is never cached.
func deriveMintAuthority(programID types.Pubkey, ctx *syscall.ExecutionContext) (types.Pubkey, uint8, error) {
	addr, bump, err := syscall.FindProgramAddress([][]byte{[]byte(MintSeed)}, programID, ctx)
	if errors.Is(err, syscall.ErrDerivationExhausted) {
		return types.ZeroPubkey, 0, fmt.Errorf("%w: seed %q", ErrDerivationExhausted, MintSeed)
	}
	return addr, bump, err
}

// MintSignerSeeds are the seeds, bump included, that let the program sign
// for its derived address. The CPI layer recomputes the address from them.
func MintSignerSeeds(bump uint8) [][]byte {
	return [][]byte{[]byte(MintSeed), {bump}}
}
