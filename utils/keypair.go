package utils

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"solana_game_server/models"

	"github.com/mr-tron/base58"
)

// NewStringKeyPair generates a fresh ed25519 identity. The public key is base58
// encoded (Solana address form) and the 64-byte secret is base64url encoded.
func NewStringKeyPair() (models.KeyPair, error) {
	return NewStringKeyPairFrom(rand.Reader)
}

// NewStringKeyPairFrom is NewStringKeyPair reading entropy from r
func NewStringKeyPairFrom(r io.Reader) (models.KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return models.KeyPair{}, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return models.KeyPair{
		PublicKey: base58.Encode(pub),
		SecretKey: base64.RawURLEncoding.EncodeToString(priv),
	}, nil
}

// IsPublicKey reports whether s decodes to a 32-byte base58 key
func IsPublicKey(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == ed25519.PublicKeySize
}
