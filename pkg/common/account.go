package common

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/solana"
)

// Account is a Solana account identity, optionally holding the private key
// needed to sign on its behalf.
type Account struct {
	publicKey  *Key
	privateKey *Key
}

func NewAccountFromPublicKey(publicKey *Key) (*Account, error) {
	a := &Account{publicKey: publicKey}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func NewAccountFromPublicKeyBytes(publicKey []byte) (*Account, error) {
	key, err := NewKeyFromBytes(publicKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key")
	}
	return NewAccountFromPublicKey(key)
}

// NewAccountFromPrivateKey returns a signing account, deriving its public key
// from privateKey.
func NewAccountFromPrivateKey(privateKey *Key) (*Account, error) {
	if err := privateKey.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	if privateKey.IsPublic() {
		return nil, errors.New("expected a private key, got a public key")
	}

	publicKey, err := NewKeyFromBytes(ed25519.PrivateKey(privateKey.ToBytes()).Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	a := &Account{publicKey: publicKey, privateKey: privateKey}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func NewAccountFromPrivateKeyBytes(privateKey []byte) (*Account, error) {
	key, err := NewKeyFromBytes(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return NewAccountFromPrivateKey(key)
}

// NewRandomAccount returns a signing account with a freshly generated key.
func NewRandomAccount() (*Account, error) {
	_, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "error generating key")
	}
	return NewAccountFromPrivateKeyBytes(privateKey)
}

func (a *Account) PublicKey() *Key {
	return a.publicKey
}

// PrivateKey returns nil for accounts that can't sign.
func (a *Account) PrivateKey() *Key {
	return a.privateKey
}

func (a *Account) Sign(message []byte) ([]byte, error) {
	if a.privateKey == nil {
		return nil, errors.Errorf("%s has no private key", a)
	}
	return ed25519.Sign(a.privateKey.ToBytes(), message), nil
}

// ToSeedAccount returns the account derived from a, seed and owner with the
// system program's create-with-seed scheme.
func (a *Account) ToSeedAccount(seed string, owner *Account) (*Account, error) {
	address, err := solana.CreateWithSeed(a.publicKey.ToBytes(), seed, owner.publicKey.ToBytes())
	if err != nil {
		return nil, errors.Wrapf(err, "error deriving address from %s with seed %q", a, seed)
	}
	return NewAccountFromPublicKeyBytes(address)
}

// Validate checks that the public key is well formed and, when present, that
// the private key belongs to it.
func (a *Account) Validate() error {
	if a == nil {
		return errors.New("account is nil")
	}
	if err := a.publicKey.Validate(); err != nil {
		return errors.Wrap(err, "invalid public key")
	}
	if !a.publicKey.IsPublic() {
		return errors.New("expected a public key, got a private key")
	}

	if a.privateKey == nil {
		return nil
	}
	if err := a.privateKey.Validate(); err != nil {
		return errors.Wrap(err, "invalid private key")
	}
	if a.privateKey.IsPublic() {
		return errors.New("expected a private key, got a public key")
	}

	derived := ed25519.PrivateKey(a.privateKey.ToBytes()).Public().(ed25519.PublicKey)
	if !bytes.Equal(a.publicKey.ToBytes(), derived) {
		return errors.New("private key doesn't belong to public key")
	}
	return nil
}

func (a *Account) String() string {
	return a.publicKey.ToBase58()
}
