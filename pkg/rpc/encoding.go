package rpc

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Account data encodings
const (
	EncodingBase58     = "base58"
	EncodingBase64     = "base64"
	EncodingBase64Zstd = "base64+zstd"
	EncodingJSONParsed = "jsonParsed"
)

// maxBase58Data is the largest payload returned as base58.
const maxBase58Data = 128

// The encoder and decoder are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// DecodePubkey decodes a base58 string to pubkey.
func DecodePubkey(s string) (types.Pubkey, error) {
	return types.PubkeyFromBase58(s)
}

// DecodeSignature decodes a base58 string to signature.
func DecodeSignature(s string) (types.Signature, error) {
	return types.SignatureFromBase58(s)
}

// EncodeAccountData encodes account data as [data, encoding].
// jsonParsed is resolved by the caller; here it falls back to base64.
func EncodeAccountData(data []byte, encoding string) ([]interface{}, error) {
	switch encoding {
	case EncodingBase58:
		if len(data) > maxBase58Data {
			return nil, fmt.Errorf("data too large for base58 encoding, use base64")
		}
		return []interface{}{base58.Encode(data), EncodingBase58}, nil

	case EncodingBase64, EncodingJSONParsed, "":
		return []interface{}{base64.StdEncoding.EncodeToString(data), EncodingBase64}, nil

	case EncodingBase64Zstd:
		compressed := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
		return []interface{}{base64.StdEncoding.EncodeToString(compressed), EncodingBase64Zstd}, nil

	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// DecodeAccountData reverses EncodeAccountData.
func DecodeAccountData(encoded string, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingBase58:
		return base58.Decode(encoded)

	case EncodingBase64, "":
		return base64.StdEncoding.DecodeString(encoded)

	case EncodingBase64Zstd:
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		return zstdDecoder.DecodeAll(compressed, nil)

	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// ValidateEncoding validates that an encoding string is supported.
func ValidateEncoding(encoding string) error {
	switch encoding {
	case EncodingBase58, EncodingBase64, EncodingBase64Zstd, EncodingJSONParsed, "":
		return nil
	default:
		return fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// SliceData returns a slice of data based on offset and length.
// Returns the full data if slice is nil.
func SliceData(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	dataLen := uint64(len(data))
	if slice.Offset >= dataLen {
		return []byte{}
	}
	end := slice.Offset + slice.Length
	if end > dataLen || end < slice.Offset {
		end = dataLen
	}
	return data[slice.Offset:end]
}
