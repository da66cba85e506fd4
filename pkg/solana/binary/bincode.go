// Package binary reads and writes the little endian, bincode style layouts
// used by native program instructions and account data.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Encoder appends values to a byte slice.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder whose buffer has room for size bytes.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

func (e *Encoder) Uint8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *Encoder) Uint32(v uint32) *Encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return e
}

func (e *Encoder) Uint64(v uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

// Key writes a 32 byte public key. Shorter keys are zero padded.
func (e *Encoder) Key(k ed25519.PublicKey) *Encoder {
	var padded [ed25519.PublicKeySize]byte
	copy(padded[:], k)
	e.buf = append(e.buf, padded[:]...)
	return e
}

// String writes a u64 length prefix followed by the raw bytes of v.
func (e *Encoder) String(v string) *Encoder {
	e.Uint64(uint64(len(v)))
	e.buf = append(e.buf, v...)
	return e
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

// StringSize is the encoded size of v as written by Encoder.String.
func StringSize(v string) int {
	return 8 + len(v)
}

// Decoder reads values from a byte slice. The first read past the end of the
// data records io.ErrUnexpectedEOF, after which every read returns the zero
// value.
type Decoder struct {
	data []byte
	err  error
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.data) {
		d.err = io.ErrUnexpectedEOF
		return nil
	}

	b := d.data[:n]
	d.data = d.data[n:]
	return b
}

func (d *Decoder) Uint8() uint8 {
	if b := d.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *Decoder) Uint32() uint32 {
	if b := d.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *Decoder) Uint64() uint64 {
	if b := d.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *Decoder) Key() ed25519.PublicKey {
	if b := d.next(ed25519.PublicKeySize); b != nil {
		return append(ed25519.PublicKey(nil), b...)
	}
	return nil
}

func (d *Decoder) String() string {
	size := d.Uint64()
	if size > uint64(len(d.data)) {
		d.fail(errors.Wrapf(io.ErrUnexpectedEOF, "string of %d bytes", size))
		return ""
	}
	return string(d.next(int(size)))
}

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Remaining is the number of bytes not yet read.
func (d *Decoder) Remaining() int {
	return len(d.data)
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}
