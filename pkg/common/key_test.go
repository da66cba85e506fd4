package common

import (
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	public, private, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	for _, raw := range [][]byte{public, private} {
		fromBytes, err := NewKeyFromBytes(raw)
		require.NoError(t, err)

		fromString, err := NewKeyFromString(base58.Encode(raw))
		require.NoError(t, err)

		for _, k := range []*Key{fromBytes, fromString} {
			assert.EqualValues(t, raw, k.ToBytes())
			assert.Equal(t, base58.Encode(raw), k.ToBase58())
			assert.Equal(t, len(raw) == ed25519.PublicKeySize, k.IsPublic())
			assert.NoError(t, k.Validate())
		}
	}
}

func TestKey_Invalid(t *testing.T) {
	_, err := NewKeyFromBytes(nil)
	assert.Error(t, err)
	_, err = NewKeyFromBytes(make([]byte, 31))
	assert.Error(t, err)
	_, err = NewKeyFromString("not base58: 0OIl")
	assert.Error(t, err)
	_, err = NewKeyFromString(base58.Encode(make([]byte, 16)))
	assert.Error(t, err)

	var k *Key
	assert.Error(t, k.Validate())

	mismatched := &Key{raw: make([]byte, ed25519.PublicKeySize), encoded: "1"}
	assert.Error(t, mismatched.Validate())
}
