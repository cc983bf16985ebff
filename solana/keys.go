package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte account address.
type PublicKey [32]byte

// TokenProgramID is the SPL token program.
var TokenProgramID = MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// ParsePublicKey decodes a base58 account address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("invalid public key %q: expected 32 bytes, got %d", s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey is ParsePublicKey for compile-time constants.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// LoadWallet reads a keypair file in the Solana CLI format: a JSON array of the
// 64 bytes seed||public key.
func LoadWallet(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet %s: %w", path, err)
	}
	return ParseWallet(data)
}

// ParseWallet decodes the contents of a Solana CLI keypair file.
func ParseWallet(data []byte) (ed25519.PrivateKey, error) {
	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("wallet is not a JSON byte array: %w", err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet must hold %d bytes, got %d", ed25519.PrivateKeySize, len(ints))
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("wallet byte out of range: %d", v)
		}
		raw = append(raw, byte(v))
	}
	key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
		return nil, errors.New("wallet public key does not match its seed")
	}
	return key, nil
}

// WalletPublicKey returns the address of key.
func WalletPublicKey(key ed25519.PrivateKey) PublicKey {
	var pk PublicKey
	copy(pk[:], key.Public().(ed25519.PublicKey))
	return pk
}
