// Package keystore encrypts a signer's ECDSA private key at rest.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coresig/signer/config"
	"github.com/coresig/signer/crypto"
	"golang.org/x/crypto/pbkdf2"
)

// ErrPasswordNotSet is returned by the FromEnv helpers when
// config.KeystorePasswordEnvVar is unset or empty. A signer's key must
// never be encrypted or decrypted under a blank password.
var ErrPasswordNotSet = fmt.Errorf("keystore: %s not set", config.KeystorePasswordEnvVar)

type keystoreFile struct {
	PubKey     string `json:"pub_key"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

const pbkdf2Iterations = 210_000

// SaveKey encrypts priv under a PBKDF2-derived AES-256-GCM key and writes
// it to path. The derivation salt and GCM nonce are fresh random values
// stored alongside the ciphertext.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	key := deriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	cipherText := gcm.Seal(nil, nonce, priv, nil)

	ks := keystoreFile{
		PubKey:     priv.Public().Hex(),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey decrypts the keystore at path using password. The decrypted key
// is meant to be held in memory only for the signer process's lifetime.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, err
	}

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	privBytes, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, errors.New("wrong password or corrupted keystore")
	}
	return crypto.PrivateKey(privBytes), nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
}

// passwordFromEnv reads config.KeystorePasswordEnvVar, rejecting a blank or
// unset value: unlike a CLI flag (visible to any local user via ps(1)), the
// environment is the only password source this package accepts, and a
// signer's key must never be encrypted or decrypted under an empty one.
func passwordFromEnv() (string, error) {
	password := os.Getenv(config.KeystorePasswordEnvVar)
	if password == "" {
		return "", ErrPasswordNotSet
	}
	return password, nil
}

// SaveKeyFromEnv is SaveKey using the password from config.KeystorePasswordEnvVar.
func SaveKeyFromEnv(path string, priv crypto.PrivateKey) error {
	password, err := passwordFromEnv()
	if err != nil {
		return err
	}
	return SaveKey(path, password, priv)
}

// LoadKeyFromEnv is LoadKey using the password from config.KeystorePasswordEnvVar.
func LoadKeyFromEnv(path string) (crypto.PrivateKey, error) {
	password, err := passwordFromEnv()
	if err != nil {
		return nil, err
	}
	return LoadKey(path, password)
}
