package token

import "errors"

// Token program errors
var (
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrMintMismatch              = errors.New("mint mismatch")
	ErrOwnerMismatch             = errors.New("owner mismatch")
	ErrAccountFrozen             = errors.New("account is frozen")
	ErrAlreadyInitialized        = errors.New("already initialized")
	ErrNotInitialized            = errors.New("not initialized")
	ErrInvalidAccountData        = errors.New("invalid account data")
	ErrInvalidInstruction        = errors.New("invalid instruction")
	ErrInvalidInstructionData    = errors.New("invalid instruction data")
	ErrInvalidAccountOwner       = errors.New("invalid account owner")
	ErrAccountNotSigner          = errors.New("account is not a signer")
	ErrAccountNotWritable        = errors.New("account is not writable")
	ErrNotRentExempt             = errors.New("account is not rent exempt")
	ErrAuthorityMismatch         = errors.New("authority mismatch")
	ErrFixedSupply               = errors.New("fixed supply")
	ErrMintCannotFreeze          = errors.New("mint cannot freeze")
	ErrAuthorityTypeNotSupported = errors.New("authority type not supported")
	ErrInvalidState              = errors.New("invalid account state")
	ErrInvalidNumberOfAccounts   = errors.New("invalid number of accounts")
	ErrInvalidDecimals           = errors.New("invalid decimals")
	ErrOverflow                  = errors.New("overflow")
)
