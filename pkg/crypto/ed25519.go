package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// VerifySignature verifies a single Ed25519 signature. It returns false if
// the key or signature has the wrong length.
func VerifySignature(pubkey, message, signature []byte) bool {
	if len(pubkey) != PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}

// VerifyTransaction checks that every required signer produced a valid
// signature over the serialized message.
func VerifyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return ErrMissingMessage
	}
	if len(tx.Signatures) == 0 {
		return ErrNoSignatures
	}

	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != numRequired {
		return fmt.Errorf("%w: expected %d signatures, got %d",
			ErrSignatureCountMismatch, numRequired, len(tx.Signatures))
	}
	if len(tx.Message.AccountKeys) < numRequired {
		return fmt.Errorf("%w: not enough account keys for signatures", ErrSignatureCountMismatch)
	}

	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}

	for i := 0; i < numRequired; i++ {
		pubkey := tx.Message.AccountKeys[i]
		sig := tx.Signatures[i]
		if !ed25519.Verify(pubkey[:], messageBytes, sig[:]) {
			return &TransactionVerificationError{
				SignatureIndex: i,
				SignerPubkey:   pubkey.String(),
				Err:            ErrVerificationFailed,
			}
		}
	}
	return nil
}

// SignTransaction fills tx.Signatures using the given keypairs. Every
// required signer of the message must have a keypair.
func SignTransaction(tx *types.Transaction, signers ...*Keypair) error {
	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}

	byKey := make(map[types.Pubkey]*Keypair, len(signers))
	for _, kp := range signers {
		byKey[kp.Pubkey()] = kp
	}

	required := tx.Message.Signers()
	tx.Signatures = make([]types.Signature, len(required))
	for i, pk := range required {
		kp, ok := byKey[pk]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
		tx.Signatures[i] = kp.Sign(messageBytes)
	}
	return nil
}

// NewSignedTransaction compiles, then signs, a transaction paid by the first signer.
func NewSignedTransaction(instructions []types.Instruction, blockhash types.Hash, signers ...*Keypair) (*types.Transaction, error) {
	if len(signers) == 0 {
		return nil, ErrMissingSigner
	}
	msg, err := types.NewMessage(signers[0].Pubkey(), instructions, blockhash)
	if err != nil {
		return nil, err
	}
	tx := &types.Transaction{Message: *msg}
	if err := SignTransaction(tx, signers...); err != nil {
		return nil, err
	}
	return tx, nil
}
