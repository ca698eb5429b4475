package omerta

import (
	"errors"
	"fmt"
)

// ProgramError is an error with a stable numeric code, reported to clients
// as "custom program error: 0x<code>".
type ProgramError struct {
	Code uint32
	Name string
	Err  error
}

func newError(code uint32, name, msg string) *ProgramError {
	return &ProgramError{Code: code, Name: name, Err: errors.New(msg)}
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %v", e.Name, e.Code, e.Err)
}

func (e *ProgramError) Unwrap() error {
	return e.Err
}

// Framework errors. Codes follow the Anchor numbering so that existing
// client tooling decodes them.
var (
	ErrInstructionMissing           = newError(100, "InstructionMissing", "8 byte instruction identifier not provided")
	ErrInstructionFallbackNotFound  = newError(101, "InstructionFallbackNotFound", "fallback functions are not supported")
	ErrInstructionDidNotDeserialize = newError(102, "InstructionDidNotDeserialize", "the program could not deserialize the given instruction")
	ErrAccountNotWritable           = newError(2000, "ConstraintMut", "a mut constraint was violated")
	ErrNotEnoughAccountKeys         = newError(3005, "AccountNotEnoughKeys", "not enough account keys given to the instruction")
	ErrAccountOwnedByWrongProgram   = newError(3007, "AccountOwnedByWrongProgram", "the given account is owned by a different program than expected")
	ErrInvalidProgramID             = newError(3008, "InvalidProgramId", "program ID was not as expected")
	ErrAccountNotSigner             = newError(3010, "AccountNotSigner", "the given account did not sign")
	ErrAccountNotInitialized        = newError(3012, "AccountNotInitialized", "the program expected this account to be already initialized")
)

// Program errors.
var (
	ErrCapExceeded           = newError(6000, "CapExceeded", "can not mint more, cap exceeded")
	ErrMintingDisabled       = newError(6001, "MintingDisabled", "mint authority has been removed")
	ErrInvalidDecimals       = newError(6002, "InvalidDecimals", "decimals must be between 0 and 9")
	ErrSignerMismatch        = newError(6003, "SignerMismatch", "signer is not the recorded authority")
	ErrAlreadyInitialized    = newError(6004, "AlreadyInitialized", "mint already exists")
	ErrZeroAmount            = newError(6005, "ZeroAmount", "amount must be greater than zero")
	ErrInvalidMintAddress    = newError(6006, "InvalidMintAddress", "mint is not the program derived address")
	ErrImmutableMetadata     = newError(6007, "ImmutableMetadata", "metadata is not mutable")
	ErrDerivationExhausted   = newError(6008, "DerivationExhausted", "no bump yields an off-curve address")
	ErrInvalidAccountBinding = newError(6009, "InvalidAccountBinding", "account does not match its expected relationship")
)

// CodeOf returns the code of the first ProgramError in err's chain.
func CodeOf(err error) (uint32, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}
