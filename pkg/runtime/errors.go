package runtime

import (
	"errors"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

var (
	ErrNilTransaction         = errors.New("nil transaction")
	ErrNoInstructions         = errors.New("transaction has no instructions")
	ErrInvalidTransaction     = errors.New("invalid transaction")
	ErrSignatureVerification  = errors.New("signature verification failed")
	ErrAlreadyProcessed       = errors.New("transaction already processed")
	ErrProgramNotFound        = errors.New("program not found")
	ErrUnbalancedInstruction  = errors.New("sum of account balances changed")
	ErrComputeBudgetExhausted = errors.New("transaction compute budget exhausted")
)

// InstructionError reports which instruction of a transaction failed. The
// transaction's writes are discarded when one is returned.
type InstructionError struct {
	Index     int
	ProgramID types.Pubkey
	Err       error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (%s) failed: %v", e.Index, e.ProgramID, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}
