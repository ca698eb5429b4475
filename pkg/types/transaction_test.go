package types

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPubkey(seed string) Pubkey {
	return Pubkey(sha256.Sum256([]byte(seed)))
}

func TestNewMessage_KeyOrdering(t *testing.T) {
	payer := testPubkey("payer")
	signer := testPubkey("readonly-signer")
	writable := testPubkey("writable")
	readonly := testPubkey("readonly")
	program := testPubkey("program")

	ix := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			NewAccountMeta(readonly, false, false),
			NewAccountMeta(writable, true, false),
			NewAccountMeta(signer, false, true),
			NewAccountMeta(payer, true, true),
		},
		Data: []byte{1, 2, 3},
	}

	msg, err := NewMessage(payer, []Instruction{ix}, Hash{})
	require.NoError(t, err)

	assert.Equal(t, []Pubkey{payer, signer, writable, readonly, program}, msg.AccountKeys)
	assert.Equal(t, uint8(2), msg.Header.NumRequiredSignatures)
	assert.Equal(t, uint8(1), msg.Header.NumReadonlySignedAccounts)
	assert.Equal(t, uint8(2), msg.Header.NumReadonlyUnsignedAccounts)

	assert.True(t, msg.IsWritable(0))
	assert.False(t, msg.IsWritable(1))
	assert.True(t, msg.IsWritable(2))
	assert.False(t, msg.IsWritable(3))
	assert.False(t, msg.IsWritable(4))
	assert.True(t, msg.IsSigner(1))
	assert.False(t, msg.IsSigner(2))
}

func TestMessage_DecompileRestoresFlags(t *testing.T) {
	payer := testPubkey("payer")
	dest := testPubkey("dest")
	program := testPubkey("program")

	ix := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			NewAccountMeta(payer, true, true),
			NewAccountMeta(dest, true, false),
		},
		Data: []byte{9},
	}
	msg, err := NewMessage(payer, []Instruction{ix}, Hash{})
	require.NoError(t, err)

	out, err := msg.Decompile()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ix, out[0])
}

func TestNewMessage_NoPayer(t *testing.T) {
	_, err := NewMessage(ZeroPubkey, nil, Hash{})
	assert.ErrorIs(t, err, ErrNoFeePayer)
}

func TestTransaction_SerializeRoundTrip(t *testing.T) {
	payer := testPubkey("payer")
	program := testPubkey("program")
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}

	msg, err := NewMessage(payer, []Instruction{{
		ProgramID: program,
		Accounts:  []AccountMeta{NewAccountMeta(payer, true, true)},
		Data:      data,
	}}, testHash())
	require.NoError(t, err)

	tx := &Transaction{Signatures: []Signature{{1, 2, 3}}, Message: *msg}
	raw, err := tx.Serialize()
	require.NoError(t, err)

	decoded, err := DeserializeTransaction(raw)
	require.NoError(t, err)
	assert.Equal(t, tx, decoded)
}

func TestDeserializeTransaction_Truncated(t *testing.T) {
	_, err := DeserializeTransaction([]byte{1, 0, 0})
	assert.Error(t, err)
}

func TestParseCompactU16(t *testing.T) {
	for _, v := range []int{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 0xffff} {
		buf := appendCompactU16(nil, v)
		got, n, err := ParseCompactU16(buf)
		require.NoError(t, err)
		assert.Equal(t, uint16(v), got)
		assert.Equal(t, len(buf), n)
	}
}

func TestPubkey_TextRoundTrip(t *testing.T) {
	pk := testPubkey("text")
	text, err := pk.MarshalText()
	require.NoError(t, err)

	var decoded Pubkey
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, pk, decoded)
	assert.True(t, ZeroPubkey.Less(pk))
	assert.False(t, pk.Less(pk))
}

func testHash() Hash {
	return SHA256Multi([]byte("blockhash"))
}
