package system

import "errors"

// System program errors
var (
	ErrInsufficientFunds       = errors.New("insufficient funds for operation")
	ErrAccountAlreadyExists    = errors.New("account already exists")
	ErrAccountNotRentExempt    = errors.New("account not rent exempt")
	ErrInvalidAccountOwner     = errors.New("invalid account owner")
	ErrInvalidInstructionData  = errors.New("invalid instruction data")
	ErrInvalidInstruction      = errors.New("invalid instruction")
	ErrAccountNotSigner        = errors.New("account is not a signer")
	ErrAccountNotWritable      = errors.New("account is not writable")
	ErrAccountDataTooLarge     = errors.New("account data too large")
	ErrTransferFromDataAccount = errors.New("transfer source carries data")
	ErrInvalidNumberOfAccounts = errors.New("invalid number of accounts")
)
