// Package auth implements the keypair and request-signing scheme shared with
// the fitbod API: ed25519 signatures over a unix timestamp and the raw request
// body.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// PrivateKey is an ed25519 private key (64 bytes). It never leaves the
// process that loaded or generated it.
type PrivateKey = ed25519.PrivateKey

// PublicKey is an ed25519 public key (32 bytes), registered with the server
// out of band.
type PublicKey = ed25519.PublicKey

// Header names carried on every signed request.
const (
	TimestampHeader = "x-fitbod-timestamp"
	SignatureHeader = "x-fitbod-signature"
)

// GenerateKeypair creates a fresh ed25519 keypair.
func GenerateKeypair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	return priv, pub, nil
}

// EncodeKey returns the standard base64 encoding used in credential files.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodePrivateKey parses a base64 private key from a credentials file.
func DecodePrivateKey(s string) (PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("decode private key: got %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return PrivateKey(raw), nil
}

// DecodeSignature parses the base64 signature header value.
func DecodeSignature(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("decode signature: got %d bytes, want %d", len(raw), ed25519.SignatureSize)
	}
	return raw, nil
}

// DecodePublicKey parses a base64 public key.
func DecodePublicKey(s string) (PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("decode public key: got %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return PublicKey(raw), nil
}
