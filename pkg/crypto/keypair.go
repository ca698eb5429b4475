package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Keypair is an Ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair deterministically from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKeypair, SeedSize, len(seed))
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes accepts the 64-byte seed || pubkey form and checks that
// the embedded public key matches the seed.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, PrivateKeySize, len(b))
	}
	kp, err := KeypairFromSeed(b[:SeedSize])
	if err != nil {
		return nil, err
	}
	if string(kp.private[SeedSize:]) != string(b[SeedSize:]) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypair)
	}
	return kp, nil
}

// Pubkey returns the public half of the keypair.
func (kp *Keypair) Pubkey() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], kp.private[SeedSize:])
	return pk
}

// Sign signs message.
func (kp *Keypair) Sign(message []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(kp.private, message))
	return sig
}

// LoadKeypairFile reads a JSON byte-array keypair file.
func LoadKeypairFile(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKeypair, i)
		}
		b[i] = byte(v)
	}
	return KeypairFromBytes(b)
}

// SaveKeypairFile writes the keypair as a JSON byte array with 0600 permissions.
func SaveKeypairFile(path string, kp *Keypair) error {
	ints := make([]int, len(kp.private))
	for i, b := range kp.private {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create keypair dir: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}
