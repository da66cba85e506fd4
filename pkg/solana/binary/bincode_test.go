package binary

import (
	"crypto/ed25519"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoder_Decoder(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	seed := "limber chicken: 4/45"
	size := 1 + 4 + 8 + ed25519.PublicKeySize + StringSize(seed)

	encoded := NewEncoder(size).
		Uint8(9).
		Uint32(7).
		Uint64(974400).
		Key(pub).
		String(seed).
		Bytes()
	require.Len(t, encoded, size)
	assert.Equal(t, []byte{9, 7, 0, 0, 0}, encoded[:5])

	d := NewDecoder(encoded)
	assert.EqualValues(t, 9, d.Uint8())
	assert.EqualValues(t, 7, d.Uint32())
	assert.EqualValues(t, 974400, d.Uint64())
	assert.Equal(t, pub, d.Key())
	assert.Equal(t, seed, d.String())
	assert.Zero(t, d.Remaining())
	assert.NoError(t, d.Err())
}

func TestEncoder_ShortKey(t *testing.T) {
	encoded := NewEncoder(0).Key(ed25519.PublicKey{1, 2}).Bytes()
	require.Len(t, encoded, ed25519.PublicKeySize)
	assert.Equal(t, []byte{1, 2, 0}, encoded[:3])
}

func TestDecoder_Truncated(t *testing.T) {
	d := NewDecoder([]byte{1, 2, 3})
	assert.Zero(t, d.Uint32())
	assert.True(t, errors.Is(d.Err(), io.ErrUnexpectedEOF))

	// Reads after a failure are ignored.
	assert.Zero(t, d.Uint8())
	assert.Equal(t, 3, d.Remaining())

	// A string whose length exceeds the remaining data.
	d = NewDecoder(NewEncoder(0).Uint64(10).Uint32(0).Bytes())
	assert.Empty(t, d.String())
	assert.True(t, errors.Is(d.Err(), io.ErrUnexpectedEOF))
}
