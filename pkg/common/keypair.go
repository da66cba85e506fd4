package common

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var ErrInvalidKeypairFile = errors.New("invalid keypair file")

// LoadAccountFromKeypairFile reads a keypair in the format written by the
// Solana CLI: a JSON array holding the 64 bytes of the ed25519 private key,
// whose trailing 32 bytes are the public key.
func LoadAccountFromKeypairFile(path string) (*Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading keypair file %s", path)
	}

	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrapf(ErrInvalidKeypairFile, "%s is not a json byte array: %v", path, err)
	}

	if len(values) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(ErrInvalidKeypairFile, "%s has %d bytes, expected %d", path, len(values), ed25519.PrivateKeySize)
	}

	privateKey := make([]byte, ed25519.PrivateKeySize)
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, errors.Wrapf(ErrInvalidKeypairFile, "%s has out of range byte %d at %d", path, v, i)
		}
		privateKey[i] = byte(v)
	}

	derived := ed25519.NewKeyFromSeed(privateKey[:ed25519.SeedSize]).Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, privateKey[ed25519.SeedSize:]) {
		return nil, errors.Wrapf(ErrInvalidKeypairFile, "%s public key doesn't match private key", path)
	}

	return NewAccountFromPrivateKeyBytes(privateKey)
}

// WriteKeypairFile stores the account's private key at path, creating parent
// directories as needed.
func WriteKeypairFile(path string, account *Account) error {
	if account.PrivateKey() == nil {
		return errors.New("private key not available")
	}

	values := make([]int, 0, ed25519.PrivateKeySize)
	for _, b := range account.PrivateKey().ToBytes() {
		values = append(values, int(b))
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "error encoding keypair")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "error creating keypair directory")
	}

	return errors.Wrap(os.WriteFile(path, raw, 0o600), "error writing keypair file")
}
