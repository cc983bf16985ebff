package models

// KeyPair is an identity pair used for match and user ids.
// SecretKey is base64url encoded and must never be logged.
type KeyPair struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"-"`
}
