package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/solana/shortvec"
)

// Marshal returns the wire encoding of the transaction.
//
// Lengths beyond shortvec.MaxLen cannot be encoded, and are truncated to
// zero. Such a transaction would exceed MaxTransactionSize regardless.
func (t Transaction) Marshal() []byte {
	b := make([]byte, 0, MaxTransactionSize)

	b = appendLen(b, len(t.Signatures))
	for _, s := range t.Signatures {
		b = append(b, s[:]...)
	}

	return t.Message.appendTo(b)
}

// Unmarshal decodes a transaction from its wire encoding.
func (t *Transaction) Unmarshal(b []byte) error {
	d := newDecoder(b)

	n, err := d.length("signatures")
	if err != nil {
		return err
	}

	t.Signatures = make([]Signature, n)
	for i := range t.Signatures {
		if err := d.read(t.Signatures[i][:], "signature"); err != nil {
			return err
		}
	}

	return t.Message.decode(d)
}

// Marshal returns the wire encoding of the message. This is also the payload
// that is signed.
func (m Message) Marshal() []byte {
	return m.appendTo(nil)
}

func (m Message) appendTo(b []byte) []byte {
	b = append(b, m.Header.NumSignatures, m.Header.NumReadonlySigned, m.Header.NumReadOnly)

	b = appendLen(b, len(m.Accounts))
	for _, a := range m.Accounts {
		b = append(b, a...)
	}

	b = append(b, m.RecentBlockhash[:]...)

	b = appendLen(b, len(m.Instructions))
	for _, i := range m.Instructions {
		b = append(b, i.ProgramIndex)
		b = appendLen(b, len(i.Accounts))
		b = append(b, i.Accounts...)
		b = appendLen(b, len(i.Data))
		b = append(b, i.Data...)
	}

	return b
}

// Unmarshal decodes a legacy message. Versioned messages are rejected.
func (m *Message) Unmarshal(b []byte) error {
	return m.decode(newDecoder(b))
}

func (m *Message) decode(d *decoder) error {
	first, err := d.peek()
	if err != nil {
		return errors.Wrap(err, "empty message")
	}
	if first&0x80 != 0 {
		return errors.New("versioned messages not supported")
	}

	var header [3]byte
	if err := d.read(header[:], "header"); err != nil {
		return err
	}
	m.Header = Header{
		NumSignatures:     header[0],
		NumReadonlySigned: header[1],
		NumReadOnly:       header[2],
	}

	n, err := d.length("accounts")
	if err != nil {
		return err
	}
	m.Accounts = make([]ed25519.PublicKey, n)
	for i := range m.Accounts {
		m.Accounts[i] = make(ed25519.PublicKey, ed25519.PublicKeySize)
		if err := d.read(m.Accounts[i], "account"); err != nil {
			return err
		}
	}

	if err := d.read(m.RecentBlockhash[:], "blockhash"); err != nil {
		return err
	}

	if n, err = d.length("instructions"); err != nil {
		return err
	}
	m.Instructions = make([]CompiledInstruction, n)
	for i := range m.Instructions {
		if err := m.decodeInstruction(d, &m.Instructions[i]); err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
	}

	return nil
}

func (m *Message) decodeInstruction(d *decoder, c *CompiledInstruction) error {
	var program [1]byte
	if err := d.read(program[:], "program index"); err != nil {
		return err
	}
	c.ProgramIndex = program[0]

	accounts, err := d.vector("accounts")
	if err != nil {
		return err
	}
	c.Accounts = accounts

	if c.Data, err = d.vector("data"); err != nil {
		return err
	}

	if int(c.ProgramIndex) >= len(m.Accounts) {
		return errors.Errorf("program index %d out of range", c.ProgramIndex)
	}
	for _, index := range c.Accounts {
		if int(index) >= len(m.Accounts) {
			return errors.Errorf("account index %d out of range", index)
		}
	}

	return nil
}

func appendLen(b []byte, n int) []byte {
	encoded, err := shortvec.AppendLen(b, n)
	if err != nil {
		encoded, _ = shortvec.AppendLen(b, 0)
	}
	return encoded
}

type decoder struct {
	r *bytes.Reader
}

func newDecoder(b []byte) *decoder {
	return &decoder{r: bytes.NewReader(b)}
}

func (d *decoder) peek() (byte, error) {
	c, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	return c, d.r.UnreadByte()
}

func (d *decoder) length(field string) (int, error) {
	n, err := shortvec.DecodeLen(d.r)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s length", field)
	}
	return n, nil
}

func (d *decoder) read(dst []byte, field string) error {
	if _, err := io.ReadFull(d.r, dst); err != nil {
		return errors.Wrapf(err, "failed to read %s", field)
	}
	return nil
}

func (d *decoder) vector(field string) ([]byte, error) {
	n, err := d.length(field)
	if err != nil {
		return nil, err
	}
	if n > d.r.Len() {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "%s length %d exceeds remaining %d bytes", field, n, d.r.Len())
	}

	dst := make([]byte, n)
	return dst, d.read(dst, field)
}
