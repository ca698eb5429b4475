// Package crypto signs and verifies Ed25519 transaction signatures and
// manages keypair files in the Solana CLI JSON format (a 64-element byte
// array holding seed || public key).
package crypto

import (
	"errors"
	"fmt"
)

// Ed25519 sizes.
const (
	PublicKeySize  = 32
	SignatureSize  = 64
	PrivateKeySize = 64
	SeedSize       = 32
)

var (
	ErrInvalidPublicKey       = errors.New("crypto: invalid public key")
	ErrInvalidSignature       = errors.New("crypto: invalid signature")
	ErrVerificationFailed     = errors.New("crypto: signature verification failed")
	ErrNoSignatures           = errors.New("crypto: transaction has no signatures")
	ErrSignatureCountMismatch = errors.New("crypto: signature count mismatch")
	ErrMissingMessage         = errors.New("crypto: missing transaction message")
	ErrMissingSigner          = errors.New("crypto: no keypair for required signer")
	ErrInvalidKeypair         = errors.New("crypto: invalid keypair")
)

// TransactionVerificationError identifies the signature that failed.
type TransactionVerificationError struct {
	SignatureIndex int
	SignerPubkey   string
	Err            error
}

func (e *TransactionVerificationError) Error() string {
	return fmt.Sprintf("crypto: transaction verification failed for signer %s (signature index %d): %v",
		e.SignerPubkey, e.SignatureIndex, e.Err)
}

func (e *TransactionVerificationError) Unwrap() error {
	return e.Err
}
