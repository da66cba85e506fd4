package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWithSeed(t *testing.T) {
	systemProgram := make(ed25519.PublicKey, ed25519.PublicKeySize)

	// Vector taken from the Solana SDK and web3.js test suites.
	derived, err := CreateWithSeed(systemProgram, "limber chicken: 4/45", systemProgram)
	require.NoError(t, err)
	assert.Equal(t, "9h1HyLCW5dZnBVap8C5egQ9Z6pHyjsh5MNy83iPqqRuq", base58.Encode(derived))

	base, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	owner, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	derived, err = CreateWithSeed(base, "vote", owner)
	require.NoError(t, err)

	h := sha256.New()
	h.Write(base)
	h.Write([]byte("vote"))
	h.Write(owner)
	assert.EqualValues(t, h.Sum(nil), derived)
}

func TestCreateWithSeed_Deterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		base, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		owner, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		a, err := CreateWithSeed(base, "vote", owner)
		require.NoError(t, err)
		b, err := CreateWithSeed(append(ed25519.PublicKey{}, base...), "vote", append(ed25519.PublicKey{}, owner...))
		require.NoError(t, err)
		assert.Equal(t, a, b)

		c, err := CreateWithSeed(base, "votes", owner)
		require.NoError(t, err)
		assert.NotEqual(t, a, c)

		d, err := CreateWithSeed(owner, "vote", base)
		require.NoError(t, err)
		assert.NotEqual(t, a, d)
	}
}

func TestCreateWithSeed_Invalid(t *testing.T) {
	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = CreateWithSeed(key[:31], "vote", key)
	assert.ErrorIs(t, err, ErrInvalidPublicKeyLength)
	_, err = CreateWithSeed(key, "vote", append(key, 0))
	assert.ErrorIs(t, err, ErrInvalidPublicKeyLength)
	_, err = CreateWithSeed(nil, "vote", key)
	assert.ErrorIs(t, err, ErrInvalidPublicKeyLength)

	_, err = CreateWithSeed(key, strings.Repeat("a", maxSeedLength), key)
	assert.NoError(t, err)
	_, err = CreateWithSeed(key, strings.Repeat("a", maxSeedLength+1), key)
	assert.Equal(t, ErrMaxSeedLengthExceeded, err)

	illegalOwner := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(illegalOwner[ed25519.PublicKeySize-len(pdaMarker):], pdaMarker)
	_, err = CreateWithSeed(key, "vote", illegalOwner)
	assert.Equal(t, ErrIllegalOwner, err)
}
