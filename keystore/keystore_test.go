package keystore

import (
	"path/filepath"
	"testing"

	"github.com/coresig/signer/config"
	"github.com/coresig/signer/crypto"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadKeyRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signer.keystore.json")
	require.NoError(t, SaveKey(path, "correct-horse-battery-staple", priv))

	loaded, err := LoadKey(path, "correct-horse-battery-staple")
	require.NoError(t, err)
	require.Equal(t, priv.Hex(), loaded.Hex())
}

func TestLoadKeyWrongPassword(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signer.keystore.json")
	require.NoError(t, SaveKey(path, "right-password", priv))

	_, err = LoadKey(path, "wrong-password")
	require.Error(t, err)
}

func TestFromEnvRejectsUnsetPassword(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	t.Setenv(config.KeystorePasswordEnvVar, "")
	path := filepath.Join(t.TempDir(), "signer.keystore.json")

	err = SaveKeyFromEnv(path, priv)
	require.ErrorIs(t, err, ErrPasswordNotSet)

	_, err = LoadKeyFromEnv(path)
	require.ErrorIs(t, err, ErrPasswordNotSet)
}

func TestFromEnvRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	t.Setenv(config.KeystorePasswordEnvVar, "correct-horse-battery-staple")
	path := filepath.Join(t.TempDir(), "signer.keystore.json")

	require.NoError(t, SaveKeyFromEnv(path, priv))

	loaded, err := LoadKeyFromEnv(path)
	require.NoError(t, err)
	require.Equal(t, priv.Hex(), loaded.Hex())
}
