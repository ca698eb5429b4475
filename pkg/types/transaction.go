package types

import (
	"errors"
	"fmt"
)

// ErrNoFeePayer is returned when a message is compiled without a payer.
var ErrNoFeePayer = errors.New("message has no fee payer")

// Transaction is a signed message.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// Message is the signed part of a transaction, in the legacy layout.
type Message struct {
	Header          MessageHeader
	AccountKeys     []Pubkey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// MessageHeader contains counts for account types.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction with account indices.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndices []uint8
	Data           []byte
}

// Instruction is an expanded instruction with full account info.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// NewMessage compiles instructions into a message. The payer is always the
// first key; keys are grouped as writable signers, readonly signers,
// writable non-signers, readonly non-signers, keeping first-seen order.
func NewMessage(payer Pubkey, instructions []Instruction, blockhash Hash) (*Message, error) {
	if payer.IsZero() {
		return nil, ErrNoFeePayer
	}

	type keyFlags struct {
		signer, writable bool
	}
	order := []Pubkey{payer}
	flags := map[Pubkey]*keyFlags{payer: {signer: true, writable: true}}
	touch := func(pk Pubkey, signer, writable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &keyFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			touch(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		touch(ix.ProgramID, false, false)
	}

	var groups [4][]Pubkey
	for _, pk := range order {
		f := flags[pk]
		switch {
		case f.signer && f.writable:
			groups[0] = append(groups[0], pk)
		case f.signer:
			groups[1] = append(groups[1], pk)
		case f.writable:
			groups[2] = append(groups[2], pk)
		default:
			groups[3] = append(groups[3], pk)
		}
	}
	keys := make([]Pubkey, 0, len(order))
	for _, g := range groups {
		keys = append(keys, g...)
	}
	if len(keys) > 256 {
		return nil, fmt.Errorf("too many account keys: %d", len(keys))
	}

	index := make(map[Pubkey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	compiled := make([]CompiledInstruction, len(instructions))
	for i, ix := range instructions {
		indices := make([]uint8, len(ix.Accounts))
		for j, meta := range ix.Accounts {
			indices[j] = index[meta.Pubkey]
		}
		compiled[i] = CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			AccountIndices: indices,
			Data:           ix.Data,
		}
	}

	return &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(len(groups[0]) + len(groups[1])),
			NumReadonlySignedAccounts:   uint8(len(groups[1])),
			NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    compiled,
	}, nil
}

// IsSigner reports whether the key at index i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the key at index i is writable.
func (m *Message) IsWritable(i int) bool {
	numSigners := int(m.Header.NumRequiredSignatures)
	if i < numSigners {
		return i < numSigners-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsignedAccounts)
}

// Signers returns the keys that must sign the message.
func (m *Message) Signers() []Pubkey {
	n := int(m.Header.NumRequiredSignatures)
	if n > len(m.AccountKeys) {
		n = len(m.AccountKeys)
	}
	return m.AccountKeys[:n]
}

// Decompile expands compiled instructions back to full account metas,
// using the header to derive signer and writable flags.
func (m *Message) Decompile() ([]Instruction, error) {
	out := make([]Instruction, len(m.Instructions))
	for i, ci := range m.Instructions {
		if int(ci.ProgramIDIndex) >= len(m.AccountKeys) {
			return nil, fmt.Errorf("instruction %d: program index %d out of range", i, ci.ProgramIDIndex)
		}
		metas := make([]AccountMeta, len(ci.AccountIndices))
		for j, idx := range ci.AccountIndices {
			if int(idx) >= len(m.AccountKeys) {
				return nil, fmt.Errorf("instruction %d: account index %d out of range", i, idx)
			}
			metas[j] = AccountMeta{
				Pubkey:     m.AccountKeys[idx],
				IsSigner:   m.IsSigner(int(idx)),
				IsWritable: m.IsWritable(int(idx)),
			}
		}
		out[i] = Instruction{
			ProgramID: m.AccountKeys[ci.ProgramIDIndex],
			Accounts:  metas,
			Data:      ci.Data,
		}
	}
	return out, nil
}

// Serialize encodes the message in the form that is signed.
func (m *Message) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts)

	buf = appendCompactU16(buf, len(m.AccountKeys))
	for _, key := range m.AccountKeys {
		buf = append(buf, key[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)

	buf = appendCompactU16(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendCompactU16(buf, len(ix.AccountIndices))
		buf = append(buf, ix.AccountIndices...)
		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf, nil
}

// Serialize encodes the full transaction (signatures + message).
func (tx *Transaction) Serialize() ([]byte, error) {
	msg, err := tx.Message.Serialize()
	if err != nil {
		return nil, err
	}
	buf := appendCompactU16(make([]byte, 0, 1+64*len(tx.Signatures)+len(msg)), len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, msg...), nil
}

func appendCompactU16(buf []byte, val int) []byte {
	if val < 0x80 {
		return append(buf, byte(val))
	}
	if val < 0x4000 {
		return append(buf, byte(val&0x7f|0x80), byte(val>>7))
	}
	return append(buf, byte(val&0x7f|0x80), byte((val>>7)&0x7f|0x80), byte(val>>14))
}

// ParseCompactU16 parses a compact-u16 from a byte slice.
func ParseCompactU16(data []byte) (val uint16, bytesRead int, err error) {
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("incomplete compact-u16")
		}
		b := data[i]
		if i == 2 {
			return val | uint16(b)<<14, 3, nil
		}
		val |= uint16(b&0x7f) << (7 * i)
		if b < 0x80 {
			return val, i + 1, nil
		}
	}
	return val, 3, nil
}

// DeserializeTransaction decodes a transaction produced by Serialize.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	numSigs, n, err := ParseCompactU16(data)
	if err != nil {
		return nil, fmt.Errorf("parse num signatures: %w", err)
	}
	offset := n

	sigs := make([]Signature, numSigs)
	for i := range sigs {
		if offset+64 > len(data) {
			return nil, fmt.Errorf("truncated signature %d", i)
		}
		copy(sigs[i][:], data[offset:offset+64])
		offset += 64
	}

	msg, err := deserializeMessage(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &Transaction{Signatures: sigs, Message: *msg}, nil
}

type reader struct {
	data   []byte
	offset int
}

func (r *reader) compactU16() (int, error) {
	v, n, err := ParseCompactU16(r.data[r.offset:])
	r.offset += n
	return int(v), err
}

func (r *reader) take(n int) ([]byte, error) {
	if r.offset+n > len(r.data) {
		return nil, fmt.Errorf("truncated: need %d bytes at offset %d", n, r.offset)
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func deserializeMessage(data []byte) (*Message, error) {
	r := &reader{data: data}
	hdr, err := r.take(3)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	msg := &Message{Header: MessageHeader{
		NumRequiredSignatures:       hdr[0],
		NumReadonlySignedAccounts:   hdr[1],
		NumReadonlyUnsignedAccounts: hdr[2],
	}}

	numKeys, err := r.compactU16()
	if err != nil {
		return nil, fmt.Errorf("parse num account keys: %w", err)
	}
	msg.AccountKeys = make([]Pubkey, numKeys)
	for i := range msg.AccountKeys {
		b, err := r.take(32)
		if err != nil {
			return nil, fmt.Errorf("account key %d: %w", i, err)
		}
		copy(msg.AccountKeys[i][:], b)
	}

	b, err := r.take(32)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}
	copy(msg.RecentBlockhash[:], b)

	numIx, err := r.compactU16()
	if err != nil {
		return nil, fmt.Errorf("parse num instructions: %w", err)
	}
	msg.Instructions = make([]CompiledInstruction, numIx)
	for i := range msg.Instructions {
		prog, err := r.take(1)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		numAccounts, err := r.compactU16()
		if err != nil {
			return nil, fmt.Errorf("instruction %d accounts: %w", i, err)
		}
		indices, err := r.take(numAccounts)
		if err != nil {
			return nil, fmt.Errorf("instruction %d accounts: %w", i, err)
		}
		dataLen, err := r.compactU16()
		if err != nil {
			return nil, fmt.Errorf("instruction %d data: %w", i, err)
		}
		ixData, err := r.take(dataLen)
		if err != nil {
			return nil, fmt.Errorf("instruction %d data: %w", i, err)
		}
		msg.Instructions[i] = CompiledInstruction{
			ProgramIDIndex: prog[0],
			AccountIndices: append([]uint8(nil), indices...),
			Data:           append([]byte(nil), ixData...),
		}
	}
	return msg, nil
}

// FeePayer returns the fee payer (first signer).
func (tx *Transaction) FeePayer() Pubkey {
	if len(tx.Message.AccountKeys) == 0 {
		return ZeroPubkey
	}
	return tx.Message.AccountKeys[0]
}

// ID returns the transaction signature (first signature).
func (tx *Transaction) ID() Signature {
	if len(tx.Signatures) == 0 {
		return ZeroSignature
	}
	return tx.Signatures[0]
}

// TransactionResult is the outcome of executing a transaction.
type TransactionResult struct {
	Signature     Signature
	Slot          Slot
	Success       bool
	Error         error
	Logs          []string
	ComputeUnits  ComputeUnits
	AccountDeltas []AccountDelta
}
