package metadata

import "errors"

// Metadata program errors
var (
	ErrInvalidInstruction          = errors.New("invalid instruction")
	ErrInvalidInstructionData      = errors.New("invalid instruction data")
	ErrInvalidNumberOfAccounts     = errors.New("invalid number of accounts")
	ErrInvalidMetadataKey          = errors.New("metadata address does not match derived address")
	ErrAlreadyInitialized          = errors.New("metadata already initialized")
	ErrUninitialized               = errors.New("metadata not initialized")
	ErrIncorrectOwner              = errors.New("incorrect account owner")
	ErrInvalidMintAuthority        = errors.New("mint authority did not sign or does not match")
	ErrMintMismatch                = errors.New("mint does not match metadata")
	ErrUpdateAuthorityIncorrect    = errors.New("update authority is incorrect")
	ErrUpdateAuthorityNotSigner    = errors.New("update authority is not a signer")
	ErrImmutable                   = errors.New("data is immutable")
	ErrNameTooLong                 = errors.New("name too long")
	ErrSymbolTooLong               = errors.New("symbol too long")
	ErrURITooLong                  = errors.New("uri too long")
	ErrInvalidBasisPoints          = errors.New("basis points cannot exceed 10000")
	ErrTooManyCreators             = errors.New("too many creators")
	ErrCreatorSharesInvalid        = errors.New("creator shares must add up to 100")
	ErrDuplicateCreator            = errors.New("duplicate creator address")
	ErrCreatorNotSigner            = errors.New("verified creator did not sign")
	ErrPrimarySaleOnlyFlipsToTrue  = errors.New("primary sale can only be flipped to true")
	ErrIsMutableOnlyFlipsToFalse   = errors.New("is mutable can only be flipped to false")
	ErrUnsupportedField            = errors.New("unsupported metadata field")
	ErrAccountNotWritable          = errors.New("account is not writable")
	ErrInvalidMetadataAccountState = errors.New("invalid metadata account data")
)
