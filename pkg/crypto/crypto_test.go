package crypto

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

func seededKeypair(t *testing.T, b byte) *Keypair {
	t.Helper()
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{b}, SeedSize))
	require.NoError(t, err)
	return kp
}

func transferInstruction(from, to types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(from, true, true),
			types.NewAccountMeta(to, true, false),
		},
		Data: []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	}
}

func TestSignAndVerifyTransaction(t *testing.T) {
	payer := seededKeypair(t, 1)
	other := seededKeypair(t, 2)

	ix := transferInstruction(other.Pubkey(), payer.Pubkey())
	tx, err := NewSignedTransaction([]types.Instruction{ix}, types.Hash{7}, payer, other)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 2)

	assert.NoError(t, VerifyTransaction(tx))
}

func TestVerifyTransaction_TamperedMessage(t *testing.T) {
	payer := seededKeypair(t, 1)
	tx, err := NewSignedTransaction([]types.Instruction{transferInstruction(payer.Pubkey(), types.Pubkey{9})}, types.Hash{}, payer)
	require.NoError(t, err)

	tx.Message.Instructions[0].Data[4] = 99

	err = VerifyTransaction(tx)
	var verr *TransactionVerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, verr.SignatureIndex)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerifyTransaction_CountMismatch(t *testing.T) {
	payer := seededKeypair(t, 1)
	tx, err := NewSignedTransaction([]types.Instruction{transferInstruction(payer.Pubkey(), types.Pubkey{9})}, types.Hash{}, payer)
	require.NoError(t, err)

	tx.Signatures = append(tx.Signatures, types.Signature{})
	assert.ErrorIs(t, VerifyTransaction(tx), ErrSignatureCountMismatch)

	tx.Signatures = nil
	assert.ErrorIs(t, VerifyTransaction(tx), ErrNoSignatures)
	assert.ErrorIs(t, VerifyTransaction(nil), ErrMissingMessage)
}

func TestSignTransaction_MissingSigner(t *testing.T) {
	payer := seededKeypair(t, 1)
	other := seededKeypair(t, 2)
	msg, err := types.NewMessage(payer.Pubkey(), []types.Instruction{transferInstruction(other.Pubkey(), payer.Pubkey())}, types.Hash{})
	require.NoError(t, err)

	tx := &types.Transaction{Message: *msg}
	assert.ErrorIs(t, SignTransaction(tx, payer), ErrMissingSigner)
}

func TestKeypairFile_RoundTrip(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "id.json")
	require.NoError(t, SaveKeypairFile(path, kp))

	loaded, err := LoadKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Pubkey(), loaded.Pubkey())

	msg := []byte("hello")
	sig := loaded.Sign(msg)
	pk := kp.Pubkey()
	assert.True(t, VerifySignature(pk[:], msg, sig[:]))
}

func TestKeypairFromBytes_Mismatch(t *testing.T) {
	b := make([]byte, PrivateKeySize)
	b[SeedSize] = 1
	_, err := KeypairFromBytes(b)
	assert.ErrorIs(t, err, ErrInvalidKeypair)

	_, err = KeypairFromBytes(b[:10])
	assert.ErrorIs(t, err, ErrInvalidKeypair)
}
