package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// DecodeVerifyKey parses a hex-encoded 32-byte Ed25519 public key, as
// supplied via the --verify-key flag.
func DecodeVerifyKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("verify key is not valid hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verify key must decode to %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// DecodeSignKey parses a hex-encoded 32-byte Ed25519 seed and expands it
// into a signing key, as supplied via the --sign-key flag.
func DecodeSignKey(hexKey string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("sign key is not valid hex: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("sign key must decode to %d bytes (a seed), got %d", ed25519.SeedSize, len(raw))
	}
	return ed25519.NewKeyFromSeed(raw), nil
}
