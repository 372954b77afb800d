package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKey wraps a secp256k1 private key's raw 32-byte scalar.
type PrivateKey []byte

// PublicKey wraps a compressed (33-byte) secp256k1 public key point.
type PublicKey []byte

const (
	PrivateKeySize = 32
	PublicKeySize  = 33
)

// GenerateKeyPair generates a new secp256k1 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return PrivateKey(priv.Serialize()), PublicKey(priv.PubKey().SerializeCompressed()), nil
}

// Address returns a 40-char hex address derived from the public key.
// It takes the first 20 bytes of SHA-256(pubkey).
func (pub PublicKey) Address() string {
	h := HashBytes(pub)
	return hex.EncodeToString(h[:20])
}

// Hex returns the compressed-point hex encoding of the public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// Hex returns the hex-encoded private key scalar.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Public derives the compressed secp256k1 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	pk, _ := btcec.PrivKeyFromBytes(priv)
	return PublicKey(pk.PubKey().SerializeCompressed())
}

// PubKeyFromHex decodes and validates a hex-encoded compressed public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("pubkey must be %d compressed bytes, got %d", PublicKeySize, len(b))
	}
	if _, err := btcec.ParsePubKey(b); err != nil {
		return nil, fmt.Errorf("invalid pubkey point: %w", err)
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a hex-encoded private key scalar.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("privkey must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	return PrivateKey(b), nil
}
