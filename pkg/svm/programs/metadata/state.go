package metadata

import (
	"bytes"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Field limits of a metadata record. Stored strings are zero padded to
// these lengths so that later updates never need to resize the account.
const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxURILength    = 200
	MaxCreatorLimit = 5

	// MaxMetadataLen is the fixed allocation of a metadata account.
	MaxMetadataLen = 679

	maxBasisPoints = 10000
)

// Key tags the kind of record stored in a metadata program account.
type Key uint8

const (
	KeyUninitialized Key = 0
	KeyMetadataV1    Key = 4
)

// TokenStandard classifies the mint a record describes.
type TokenStandard uint8

const (
	TokenStandardNonFungible   TokenStandard = 0
	TokenStandardFungibleAsset TokenStandard = 1
	TokenStandardFungible      TokenStandard = 2
)

// Creator is a royalty recipient listed on a record.
type Creator struct {
	Address  types.Pubkey
	Verified bool
	Share    uint8
}

// DataV2 is the mutable portion of a record.
type DataV2 struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator // nil encodes as None
}

// Metadata is the record bound to a mint.
type Metadata struct {
	Key                 Key
	UpdateAuthority     types.Pubkey
	Mint                types.Pubkey
	Data                DataV2
	PrimarySaleHappened bool
	IsMutable           bool
	EditionNonce        *uint8
	TokenStandard       *TokenStandard
}

// Validate checks field limits and creator shares.
func (d *DataV2) Validate() error {
	if len(d.Name) > MaxNameLength {
		return fmt.Errorf("%w: %d > %d", ErrNameTooLong, len(d.Name), MaxNameLength)
	}
	if len(d.Symbol) > MaxSymbolLength {
		return fmt.Errorf("%w: %d > %d", ErrSymbolTooLong, len(d.Symbol), MaxSymbolLength)
	}
	if len(d.URI) > MaxURILength {
		return fmt.Errorf("%w: %d > %d", ErrURITooLong, len(d.URI), MaxURILength)
	}
	if d.SellerFeeBasisPoints > maxBasisPoints {
		return ErrInvalidBasisPoints
	}
	if d.Creators == nil {
		return nil
	}
	if len(d.Creators) > MaxCreatorLimit {
		return fmt.Errorf("%w: %d", ErrTooManyCreators, len(d.Creators))
	}
	total := 0
	seen := make(map[types.Pubkey]bool, len(d.Creators))
	for _, c := range d.Creators {
		if seen[c.Address] {
			return fmt.Errorf("%w: %s", ErrDuplicateCreator, c.Address)
		}
		seen[c.Address] = true
		total += int(c.Share)
	}
	if total != 100 {
		return fmt.Errorf("%w: got %d", ErrCreatorSharesInvalid, total)
	}
	return nil
}

// Trimmed returns d with the storage padding removed from its strings.
func (d DataV2) Trimmed() DataV2 {
	d.Name = strings.TrimRight(d.Name, "\x00")
	d.Symbol = strings.TrimRight(d.Symbol, "\x00")
	d.URI = strings.TrimRight(d.URI, "\x00")
	return d
}

func (d DataV2) padded() DataV2 {
	d.Name = pad(d.Name, MaxNameLength)
	d.Symbol = pad(d.Symbol, MaxSymbolLength)
	d.URI = pad(d.URI, MaxURILength)
	return d
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat("\x00", n-len(s))
}

func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func readString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return "", err
	}
	if int(n) > dec.Remaining() {
		return "", fmt.Errorf("%w: string length %d exceeds data", ErrInvalidInstructionData, n)
	}
	b, err := dec.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readPubkey(dec *bin.Decoder) (pk types.Pubkey, err error) {
	b, err := dec.ReadBytes(32)
	if err != nil {
		return pk, err
	}
	copy(pk[:], b)
	return pk, nil
}

// readNone consumes an Option tag for a field this program never sets.
func readNone(dec *bin.Decoder, field string) error {
	some, err := dec.ReadBool()
	if err != nil {
		return err
	}
	if some {
		return fmt.Errorf("%w: %s", ErrUnsupportedField, field)
	}
	return nil
}

// MarshalWithEncoder writes DataV2 including the collection and uses
// options, which are always None here.
func (d *DataV2) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, s := range []string{d.Name, d.Symbol, d.URI} {
		if err := writeString(enc, s); err != nil {
			return err
		}
	}
	if err := enc.WriteUint16(d.SellerFeeBasisPoints, bin.LE); err != nil {
		return err
	}
	if err := writeCreators(enc, d.Creators); err != nil {
		return err
	}
	if err := enc.WriteBool(false); err != nil { // collection
		return err
	}
	return enc.WriteBool(false) // uses
}

func (d *DataV2) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if err = d.unmarshalBase(dec); err != nil {
		return err
	}
	if err = readNone(dec, "collection"); err != nil {
		return err
	}
	return readNone(dec, "uses")
}

// unmarshalBase reads the fields shared by instruction data and records.
func (d *DataV2) unmarshalBase(dec *bin.Decoder) (err error) {
	if d.Name, err = readString(dec); err != nil {
		return err
	}
	if d.Symbol, err = readString(dec); err != nil {
		return err
	}
	if d.URI, err = readString(dec); err != nil {
		return err
	}
	if d.SellerFeeBasisPoints, err = dec.ReadUint16(bin.LE); err != nil {
		return err
	}
	d.Creators, err = readCreators(dec)
	return err
}

func writeCreators(enc *bin.Encoder, creators []Creator) error {
	if creators == nil {
		return enc.WriteBool(false)
	}
	if err := enc.WriteBool(true); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(creators)), bin.LE); err != nil {
		return err
	}
	for _, c := range creators {
		if err := enc.WriteBytes(c.Address[:], false); err != nil {
			return err
		}
		if err := enc.WriteBool(c.Verified); err != nil {
			return err
		}
		if err := enc.WriteUint8(c.Share); err != nil {
			return err
		}
	}
	return nil
}

func readCreators(dec *bin.Decoder) ([]Creator, error) {
	some, err := dec.ReadBool()
	if err != nil || !some {
		return nil, err
	}
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	if n > MaxCreatorLimit {
		return nil, fmt.Errorf("%w: %d", ErrTooManyCreators, n)
	}
	creators := make([]Creator, n)
	for i := range creators {
		if creators[i].Address, err = readPubkey(dec); err != nil {
			return nil, err
		}
		if creators[i].Verified, err = dec.ReadBool(); err != nil {
			return nil, err
		}
		if creators[i].Share, err = dec.ReadUint8(); err != nil {
			return nil, err
		}
	}
	return creators, nil
}

func writeOptionU8(enc *bin.Encoder, v *uint8) error {
	if v == nil {
		return enc.WriteBool(false)
	}
	if err := enc.WriteBool(true); err != nil {
		return err
	}
	return enc.WriteUint8(*v)
}

func readOptionU8(dec *bin.Decoder) (*uint8, error) {
	some, err := dec.ReadBool()
	if err != nil || !some {
		return nil, err
	}
	v, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Serialize encodes the record into a MaxMetadataLen buffer. The trailing
// optional fields (collection, uses, collection details, programmable
// config) are written as None.
func (m *Metadata) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteUint8(uint8(m.Key)); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(m.UpdateAuthority[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(m.Mint[:], false); err != nil {
		return nil, err
	}
	data := m.Data.padded()
	for _, s := range []string{data.Name, data.Symbol, data.URI} {
		if err := writeString(enc, s); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint16(data.SellerFeeBasisPoints, bin.LE); err != nil {
		return nil, err
	}
	if err := writeCreators(enc, data.Creators); err != nil {
		return nil, err
	}
	if err := enc.WriteBool(m.PrimarySaleHappened); err != nil {
		return nil, err
	}
	if err := enc.WriteBool(m.IsMutable); err != nil {
		return nil, err
	}
	if err := writeOptionU8(enc, m.EditionNonce); err != nil {
		return nil, err
	}
	var standard *uint8
	if m.TokenStandard != nil {
		v := uint8(*m.TokenStandard)
		standard = &v
	}
	if err := writeOptionU8(enc, standard); err != nil {
		return nil, err
	}

	if buf.Len() > MaxMetadataLen {
		return nil, fmt.Errorf("%w: record is %d bytes", ErrInvalidMetadataAccountState, buf.Len())
	}
	out := make([]byte, MaxMetadataLen)
	copy(out, buf.Bytes())
	return out, nil
}

// DeserializeMetadata decodes a record. String fields keep their padding;
// use Data.Trimmed for display.
func DeserializeMetadata(data []byte) (*Metadata, error) {
	if len(data) == 0 || Key(data[0]) != KeyMetadataV1 {
		return nil, ErrUninitialized
	}
	dec := bin.NewBorshDecoder(data)
	m := &Metadata{}

	key, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	m.Key = Key(key)
	if m.UpdateAuthority, err = readPubkey(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataAccountState, err)
	}
	if m.Mint, err = readPubkey(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataAccountState, err)
	}
	if err := m.Data.unmarshalBase(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataAccountState, err)
	}
	if m.PrimarySaleHappened, err = dec.ReadBool(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataAccountState, err)
	}
	if m.IsMutable, err = dec.ReadBool(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataAccountState, err)
	}
	if m.EditionNonce, err = readOptionU8(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataAccountState, err)
	}
	standard, err := readOptionU8(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataAccountState, err)
	}
	if standard != nil {
		ts := TokenStandard(*standard)
		m.TokenStandard = &ts
	}
	return m, nil
}
