package token

import (
	"encoding/binary"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Account state sizes
const (
	MintSize         = 82
	TokenAccountSize = 165
)

// Token account states
const (
	AccountStateUninitialized uint8 = 0
	AccountStateInitialized   uint8 = 1
	AccountStateFrozen        uint8 = 2
)

// COption is an optional pubkey stored as a 4-byte tag plus 32 bytes.
type COption struct {
	IsSome bool
	Value  types.Pubkey
}

// Some wraps pk in a present COption.
func Some(pk types.Pubkey) COption {
	return COption{IsSome: true, Value: pk}
}

// Is reports whether the option is present and equal to pk.
func (o COption) Is(pk types.Pubkey) bool {
	return o.IsSome && o.Value == pk
}

// COptionU64 is an optional u64 stored as a 4-byte tag plus 8 bytes.
type COptionU64 struct {
	IsSome bool
	Value  uint64
}

// Mint is the global record of a token.
//
// Layout (82 bytes):
//
//	mint_authority   COption<Pubkey> 36
//	supply           u64              8
//	decimals         u8               1
//	is_initialized   bool             1
//	freeze_authority COption<Pubkey> 36
type Mint struct {
	MintAuthority   COption
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority COption
}

// TokenAccount is one holder's balance of a mint.
//
// Layout (165 bytes):
//
//	mint             Pubkey          32
//	owner            Pubkey          32
//	amount           u64              8
//	delegate         COption<Pubkey> 36
//	state            u8               1
//	is_native        COption<u64>    12
//	delegated_amount u64              8
//	close_authority  COption<Pubkey> 36
type TokenAccount struct {
	Mint            types.Pubkey
	Owner           types.Pubkey
	Amount          uint64
	Delegate        COption
	State           uint8
	IsNative        COptionU64
	DelegatedAmount uint64
	CloseAuthority  COption
}

// cursor walks a fixed layout buffer.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) pubkey() (pk types.Pubkey) {
	copy(pk[:], c.buf[c.off:c.off+32])
	c.off += 32
	return pk
}

func (c *cursor) putPubkey(pk types.Pubkey) {
	c.off += copy(c.buf[c.off:c.off+32], pk[:])
}

func (c *cursor) u64() uint64 {
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v
}

func (c *cursor) putU64(v uint64) {
	binary.LittleEndian.PutUint64(c.buf[c.off:], v)
	c.off += 8
}

func (c *cursor) u8() uint8 {
	v := c.buf[c.off]
	c.off++
	return v
}

func (c *cursor) putU8(v uint8) {
	c.buf[c.off] = v
	c.off++
}

func (c *cursor) option() COption {
	tag := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	pk := c.pubkey()
	if tag != 1 {
		return COption{}
	}
	return Some(pk)
}

func (c *cursor) putOption(o COption) {
	var tag uint32
	var pk types.Pubkey
	if o.IsSome {
		tag, pk = 1, o.Value
	}
	binary.LittleEndian.PutUint32(c.buf[c.off:], tag)
	c.off += 4
	c.putPubkey(pk)
}

func (c *cursor) optionU64() COptionU64 {
	tag := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	v := c.u64()
	if tag != 1 {
		return COptionU64{}
	}
	return COptionU64{IsSome: true, Value: v}
}

func (c *cursor) putOptionU64(o COptionU64) {
	var tag uint32
	var v uint64
	if o.IsSome {
		tag, v = 1, o.Value
	}
	binary.LittleEndian.PutUint32(c.buf[c.off:], tag)
	c.off += 4
	c.putU64(v)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// DeserializeMint decodes a Mint.
func DeserializeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: mint data must be %d bytes, got %d",
			ErrInvalidAccountData, MintSize, len(data))
	}
	c := &cursor{buf: data}
	m := &Mint{}
	m.MintAuthority = c.option()
	m.Supply = c.u64()
	m.Decimals = c.u8()
	m.IsInitialized = c.u8() != 0
	m.FreezeAuthority = c.option()
	return m, nil
}

// Serialize encodes the Mint.
func (m *Mint) Serialize() []byte {
	c := &cursor{buf: make([]byte, MintSize)}
	c.putOption(m.MintAuthority)
	c.putU64(m.Supply)
	c.putU8(m.Decimals)
	c.putU8(boolByte(m.IsInitialized))
	c.putOption(m.FreezeAuthority)
	return c.buf
}

// DeserializeTokenAccount decodes a TokenAccount.
func DeserializeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) != TokenAccountSize {
		return nil, fmt.Errorf("%w: token account data must be %d bytes, got %d",
			ErrInvalidAccountData, TokenAccountSize, len(data))
	}
	c := &cursor{buf: data}
	a := &TokenAccount{}
	a.Mint = c.pubkey()
	a.Owner = c.pubkey()
	a.Amount = c.u64()
	a.Delegate = c.option()
	a.State = c.u8()
	a.IsNative = c.optionU64()
	a.DelegatedAmount = c.u64()
	a.CloseAuthority = c.option()
	if a.State > AccountStateFrozen {
		return nil, fmt.Errorf("%w: state %d", ErrInvalidState, a.State)
	}
	return a, nil
}

// Serialize encodes the TokenAccount.
func (a *TokenAccount) Serialize() []byte {
	c := &cursor{buf: make([]byte, TokenAccountSize)}
	c.putPubkey(a.Mint)
	c.putPubkey(a.Owner)
	c.putU64(a.Amount)
	c.putOption(a.Delegate)
	c.putU8(a.State)
	c.putOptionU64(a.IsNative)
	c.putU64(a.DelegatedAmount)
	c.putOption(a.CloseAuthority)
	return c.buf
}

// IsFrozen returns true if the account is frozen.
func (a *TokenAccount) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

// IsInitialized returns true once InitializeAccount has run.
func (a *TokenAccount) IsInitialized() bool {
	return a.State != AccountStateUninitialized
}

// NewMint returns an initialized mint with zero supply.
func NewMint(decimals uint8, mintAuthority types.Pubkey, freezeAuthority COption) *Mint {
	return &Mint{
		MintAuthority:   Some(mintAuthority),
		Decimals:        decimals,
		IsInitialized:   true,
		FreezeAuthority: freezeAuthority,
	}
}

// NewTokenAccount returns an initialized, empty token account.
func NewTokenAccount(mint, owner types.Pubkey) *TokenAccount {
	return &TokenAccount{
		Mint:  mint,
		Owner: owner,
		State: AccountStateInitialized,
	}
}
