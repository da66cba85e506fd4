package common

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Key is an ed25519 public or private key, along with its base58 encoding.
type Key struct {
	raw     []byte
	encoded string
}

func NewKeyFromBytes(value []byte) (*Key, error) {
	return newKey(value, base58.Encode(value))
}

func NewKeyFromString(value string) (*Key, error) {
	raw, err := base58.Decode(value)
	if err != nil {
		return nil, errors.Wrapf(err, "%q is not base58", value)
	}
	return newKey(raw, value)
}

func newKey(raw []byte, encoded string) (*Key, error) {
	k := &Key{raw: raw, encoded: encoded}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *Key) ToBytes() []byte {
	return k.raw
}

func (k *Key) ToBase58() string {
	return k.encoded
}

// IsPublic reports whether k is a public key.
func (k *Key) IsPublic() bool {
	return len(k.raw) == ed25519.PublicKeySize
}

func (k *Key) Validate() error {
	switch {
	case k == nil:
		return errors.New("key is nil")
	case len(k.raw) != ed25519.PublicKeySize && len(k.raw) != ed25519.PrivateKeySize:
		return errors.Errorf("key has %d bytes, expected an ed25519 public or private key", len(k.raw))
	case base58.Encode(k.raw) != k.encoded:
		return errors.New("key bytes don't match their encoding")
	default:
		return nil
	}
}
