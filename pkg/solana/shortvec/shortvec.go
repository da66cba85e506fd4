// Package shortvec implements the compact-u16 length prefix used by Solana's
// wire format: seven bits per byte, least significant group first, with the
// high bit set on every byte but the last.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// MaxLen is the largest length that can be encoded.
const MaxLen = math.MaxUint16

const maxEncodedSize = 3

var (
	ErrLenTooLarge  = errors.New("shortvec: length exceeds u16")
	ErrNonCanonical = errors.New("shortvec: non-canonical encoding")
)

// AppendLen appends the encoding of n to dst.
func AppendLen(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxLen {
		return dst, errors.Wrapf(ErrLenTooLarge, "%d", n)
	}

	for n >= 0x80 {
		dst = append(dst, byte(n)|0x80)
		n >>= 7
	}
	return append(dst, byte(n)), nil
}

// EncodedSize is the number of bytes AppendLen uses for n.
func EncodedSize(n int) int {
	size := 1
	for n >= 0x80 {
		n >>= 7
		size++
	}
	return size
}

// DecodeLen reads an encoded length from r. Encodings that are longer than
// necessary, or that overflow a u16, are rejected the same way the runtime
// rejects them.
func DecodeLen(r io.ByteReader) (int, error) {
	var n int
	for i := 0; i < maxEncodedSize; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && i > 0 {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}

		// The last byte may only carry the two remaining bits.
		if i == maxEncodedSize-1 && b > 0x03 {
			return 0, ErrLenTooLarge
		}
		if i > 0 && b == 0 {
			return 0, ErrNonCanonical
		}

		n |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return n, nil
		}
	}

	return 0, ErrLenTooLarge
}
