package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Sign signs the SHA-256 digest of data with priv and returns a hex-encoded
// DER signature, matching the wire encoding the bulletin and chain RPC
// contracts expect for signer-submitted signatures.
func Sign(priv PrivateKey, data []byte) string {
	pk, _ := btcec.PrivKeyFromBytes(priv)
	digest := HashBytes(data)
	sig := ecdsa.Sign(pk, digest)
	return hex.EncodeToString(sig.Serialize())
}

// Verify checks a hex-encoded DER signature over SHA-256(data) against pub.
func Verify(pub PublicKey, data []byte, sigHex string) error {
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	pk, err := btcec.ParsePubKey(pub)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	digest := HashBytes(data)
	if !sig.Verify(digest, pk) {
		return errors.New("signature verification failed")
	}
	return nil
}
