package testutil

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/vote-provisioner/pkg/common"
)

// GenerateSolanaKeypair returns a new ed25519 private key.
func GenerateSolanaKeypair(t testing.TB) ed25519.PrivateKey {
	_, private, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return private
}

// GenerateSolanaKeys returns n new public keys.
func GenerateSolanaKeys(t testing.TB, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, 0, n)
	for len(keys) < n {
		keys = append(keys, GenerateSolanaKeypair(t).Public().(ed25519.PublicKey))
	}
	return keys
}

func NewRandomAccount(t testing.TB) *common.Account {
	account, err := common.NewAccountFromPrivateKeyBytes(GenerateSolanaKeypair(t))
	require.NoError(t, err)
	return account
}

// WriteRandomKeypair generates an account and stores it as a keypair file
// named name within dir.
func WriteRandomKeypair(t testing.TB, dir, name string) (*common.Account, string) {
	account := NewRandomAccount(t)
	path := filepath.Join(dir, name)
	require.NoError(t, common.WriteKeypairFile(path, account))
	return account, path
}
