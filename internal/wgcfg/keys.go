package wgcfg

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// PublicKey derives the Curve25519 public key for a base64 private key.
// Used for diagnostics and for verifying that a remote-issued config matches
// the expected peer identity.
func PublicKey(privateKey string) (string, error) {
	priv, err := DecodeKey(privateKey)
	if err != nil {
		return "", &ConfigError{Field: "private_key", Message: err.Error()}
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return "", err
	}
	var out [32]byte
	copy(out[:], pub)
	return EncodeKey(out), nil
}

// GeneratePrivateKey returns a fresh clamped Curve25519 private key in base64.
func GeneratePrivateKey() (string, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", err
	}
	// Clamp per the X25519 convention.
	key[0] &= 248
	key[31] &= 127
	key[31] |= 64
	return EncodeKey(key), nil
}
