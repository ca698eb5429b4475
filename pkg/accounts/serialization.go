package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Stored layout:
//
//	lamports u64 | data_len u32 | data | owner [32] | executable u8 | rent_epoch u64
const (
	headerSize = 8 + 4
	footerSize = 32 + 1 + 8
	minSize    = headerSize + footerSize
)

// ErrInvalidAccountData is returned when stored bytes are malformed.
var ErrInvalidAccountData = errors.New("invalid account data")

// SerializeAccount encodes an account for storage.
func SerializeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, errors.New("cannot serialize nil account")
	}

	buf := make([]byte, minSize+len(account.Data))
	binary.LittleEndian.PutUint64(buf[0:], uint64(account.Lamports))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(account.Data)))
	offset := headerSize + copy(buf[headerSize:], account.Data)

	offset += copy(buf[offset:], account.Owner[:])
	if account.Executable {
		buf[offset] = 1
	}
	offset++
	binary.LittleEndian.PutUint64(buf[offset:], uint64(account.RentEpoch))
	return buf, nil
}

// DeserializeAccount decodes bytes written by SerializeAccount.
func DeserializeAccount(data []byte) (*types.Account, error) {
	if len(data) < minSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrInvalidAccountData, minSize, len(data))
	}

	dataLen := int(binary.LittleEndian.Uint32(data[8:]))
	if len(data) != minSize+dataLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidAccountData, minSize+dataLen, len(data))
	}

	account := &types.Account{
		Lamports: types.Lamports(binary.LittleEndian.Uint64(data[0:])),
	}
	offset := headerSize
	if dataLen > 0 {
		account.Data = make([]byte, dataLen)
		copy(account.Data, data[offset:offset+dataLen])
		offset += dataLen
	}
	copy(account.Owner[:], data[offset:offset+32])
	offset += 32
	account.Executable = data[offset] != 0
	offset++
	account.RentEpoch = types.Epoch(binary.LittleEndian.Uint64(data[offset:]))
	return account, nil
}
