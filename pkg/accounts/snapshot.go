package accounts

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Snapshot stream layout (zstd compressed):
//
//	magic [8] | version u32 | count u64 | { pubkey [32] | len u32 | account }* | blake2b-256 [32]
//
// The trailing digest covers every byte before it.
var snapshotMagic = [8]byte{'O', 'M', 'S', 'N', 'A', 'P', 0, 1}

const (
	snapshotVersion uint32 = 2

	// maxPrealloc bounds the update slice sized from an untrusted header.
	maxPrealloc = 1 << 16
)

// ErrInvalidSnapshot is returned for streams that are not account snapshots.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ExportSnapshot writes every account in db to w and returns the number of
// accounts written.
func ExportSnapshot(db AccountsDB, w io.Writer) (uint64, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	bw := bufio.NewWriter(enc)
	digest, _ := blake2b.New256(nil)
	hw := io.MultiWriter(bw, digest)

	var header [8 + 4 + 8]byte
	copy(header[:8], snapshotMagic[:])
	binary.LittleEndian.PutUint32(header[8:], snapshotVersion)
	binary.LittleEndian.PutUint64(header[12:], db.GetAccountsCount())
	if _, err := hw.Write(header[:]); err != nil {
		enc.Close()
		return 0, err
	}

	var written uint64
	err = db.Range(func(pubkey types.Pubkey, account *types.Account) error {
		raw, err := SerializeAccount(account)
		if err != nil {
			return err
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
		if _, err := hw.Write(pubkey[:]); err != nil {
			return err
		}
		if _, err := hw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := hw.Write(raw); err != nil {
			return err
		}
		written++
		return nil
	})
	if err != nil {
		enc.Close()
		return written, fmt.Errorf("write accounts: %w", err)
	}
	if written != db.GetAccountsCount() {
		enc.Close()
		return written, fmt.Errorf("%w: store changed during export", ErrInvalidSnapshot)
	}
	if _, err := bw.Write(digest.Sum(nil)); err != nil {
		enc.Close()
		return written, err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return written, err
	}
	return written, enc.Close()
}

// ImportSnapshot loads a snapshot produced by ExportSnapshot into db. All
// accounts are applied as one batch.
func ImportSnapshot(db AccountsDB, r io.Reader) (uint64, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	digest, _ := blake2b.New256(nil)
	buffered := bufio.NewReader(dec)
	br := io.TeeReader(buffered, digest)

	var header [8 + 4 + 8]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return 0, fmt.Errorf("%w: read header: %v", ErrInvalidSnapshot, err)
	}
	if [8]byte(header[:8]) != snapshotMagic {
		return 0, fmt.Errorf("%w: bad magic", ErrInvalidSnapshot)
	}
	if v := binary.LittleEndian.Uint32(header[8:]); v != snapshotVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, v)
	}
	count := binary.LittleEndian.Uint64(header[12:])

	updates := make([]Update, 0, min(count, maxPrealloc))
	for i := uint64(0); i < count; i++ {
		var entry [32 + 4]byte
		if _, err := io.ReadFull(br, entry[:]); err != nil {
			return 0, fmt.Errorf("%w: entry %d: %v", ErrInvalidSnapshot, i, err)
		}
		raw := make([]byte, binary.LittleEndian.Uint32(entry[32:]))
		if _, err := io.ReadFull(br, raw); err != nil {
			return 0, fmt.Errorf("%w: entry %d data: %v", ErrInvalidSnapshot, i, err)
		}
		account, err := DeserializeAccount(raw)
		if err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
		updates = append(updates, Update{Pubkey: types.Pubkey(entry[:32]), Account: account})
	}

	want := digest.Sum(nil)
	var got [blake2b.Size256]byte
	if _, err := io.ReadFull(buffered, got[:]); err != nil {
		return 0, fmt.Errorf("%w: read checksum: %v", ErrInvalidSnapshot, err)
	}
	if !bytes.Equal(got[:], want) {
		return 0, fmt.Errorf("%w: checksum mismatch", ErrInvalidSnapshot)
	}

	if err := db.Apply(updates); err != nil {
		return 0, err
	}
	return count, nil
}
