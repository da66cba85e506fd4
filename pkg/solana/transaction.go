package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

// MaxTransactionSize is the largest serialized transaction a node accepts.
//
// Reference: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
const MaxTransactionSize = 1232

type Signature [ed25519.SignatureSize]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

type Blockhash [sha256.Size]byte

func (b Blockhash) String() string {
	return base58.Encode(b[:])
}

// Header describes how Message.Accounts is partitioned. Signers come first,
// and within both the signed and unsigned groups, readonly accounts come last.
type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// Message is a legacy (unversioned) transaction message.
type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles instructions into a transaction paid for by payer.
// The blockhash must be set, and the transaction signed, before submission.
//
// Accounts referenced more than once are merged, keeping the union of their
// permissions. The payer is always the first account, followed by writable
// signers, readonly signers, writable accounts, readonly accounts and finally
// the invoked programs. Ties are broken by key.
func NewTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	var keys accountSet
	keys.add(payer, true, true, false)
	for _, i := range instructions {
		keys.add(i.Program, false, false, true)
		for _, a := range i.Accounts {
			keys.add(a.PublicKey, a.IsSigner, a.IsWritable, false)
		}
	}
	keys.sort()

	var m Message
	for _, k := range keys.entries {
		m.Accounts = append(m.Accounts, k.key)

		switch {
		case k.signer:
			m.Header.NumSignatures++
			if !k.writable {
				m.Header.NumReadonlySigned++
			}
		case !k.writable:
			m.Header.NumReadOnly++
		}
	}

	for _, i := range instructions {
		compiled := CompiledInstruction{
			ProgramIndex: byte(keys.indexOf(i.Program)),
			Data:         i.Data,
		}
		for _, a := range i.Accounts {
			compiled.Accounts = append(compiled.Accounts, byte(keys.indexOf(a.PublicKey)))
		}
		m.Instructions = append(m.Instructions, compiled)
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

type accountEntry struct {
	key      ed25519.PublicKey
	signer   bool
	writable bool
	program  bool
}

// rank orders entries by the group they are placed in. The payer is always
// the first entry added, and is pinned by sort. Permissions take precedence
// over being invoked, so the groups stay consistent with the header.
func (e accountEntry) rank() int {
	switch {
	case e.signer && e.writable:
		return 0
	case e.signer:
		return 1
	case e.writable:
		return 2
	case e.program:
		return 4
	default:
		return 3
	}
}

type accountSet struct {
	entries []accountEntry
}

func (s *accountSet) add(key ed25519.PublicKey, signer, writable, program bool) {
	// Missing keys are compiled as the zero key.
	if len(key) == 0 {
		key = make(ed25519.PublicKey, ed25519.PublicKeySize)
	}

	if i := s.indexOf(key); i >= 0 {
		s.entries[i].signer = s.entries[i].signer || signer
		s.entries[i].writable = s.entries[i].writable || writable
		s.entries[i].program = s.entries[i].program || program
		return
	}

	s.entries = append(s.entries, accountEntry{
		key:      key,
		signer:   signer,
		writable: writable,
		program:  program,
	})
}

func (s *accountSet) sort() {
	rest := s.entries[1:]
	sort.SliceStable(rest, func(i, j int) bool {
		if ri, rj := rest[i].rank(), rest[j].rank(); ri != rj {
			return ri < rj
		}
		return bytes.Compare(rest[i].key, rest[j].key) < 0
	})
}

func (s *accountSet) indexOf(key ed25519.PublicKey) int {
	if len(key) == 0 {
		key = make(ed25519.PublicKey, ed25519.PublicKeySize)
	}
	for i, e := range s.entries {
		if bytes.Equal(e.key, key) {
			return i
		}
	}
	return -1
}

// Signature returns the payer's signature, which identifies the transaction.
func (t *Transaction) Signature() Signature {
	return t.Signatures[0]
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

// Sign adds a signature for each signer. Signers can be given in any order,
// but each must be one of the message's signing accounts.
func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	message := t.Message.Marshal()

	for _, signer := range signers {
		pub := signer.Public().(ed25519.PublicKey)

		index := -1
		for i := 0; i < len(t.Signatures) && i < len(t.Message.Accounts); i++ {
			if bytes.Equal(t.Message.Accounts[i], pub) {
				index = i
				break
			}
		}
		if index < 0 {
			return errors.Errorf("%s is not a signer of the transaction", base58.Encode(pub))
		}

		copy(t.Signatures[index][:], ed25519.Sign(signer, message))
	}

	return nil
}

// VerifySignatures checks that every required signature is present and valid.
func (t *Transaction) VerifySignatures() error {
	if len(t.Signatures) != int(t.Message.Header.NumSignatures) {
		return errors.Errorf("signature count mismatch: header requires %d, have %d", t.Message.Header.NumSignatures, len(t.Signatures))
	}
	if len(t.Signatures) > len(t.Message.Accounts) {
		return errors.New("more signatures than accounts")
	}

	message := t.Message.Marshal()
	for i, sig := range t.Signatures {
		if !ed25519.Verify(t.Message.Accounts[i], message, sig[:]) {
			return errors.Errorf("signature %d does not match %s", i, base58.Encode(t.Message.Accounts[i]))
		}
	}

	return nil
}

func (t *Transaction) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "blockhash: %s\n", t.Message.RecentBlockhash)
	fmt.Fprintf(&sb, "header: signatures=%d readonly_signed=%d readonly=%d\n",
		t.Message.Header.NumSignatures,
		t.Message.Header.NumReadonlySigned,
		t.Message.Header.NumReadOnly,
	)
	for i, s := range t.Signatures {
		fmt.Fprintf(&sb, "signature[%d]: %s\n", i, s)
	}
	for i, a := range t.Message.Accounts {
		fmt.Fprintf(&sb, "account[%d]: %s\n", i, base58.Encode(a))
	}
	for i, instruction := range t.Message.Instructions {
		fmt.Fprintf(&sb, "instruction[%d]: program=%d accounts=%v data=%x\n", i, instruction.ProgramIndex, instruction.Accounts, instruction.Data)
	}

	return sb.String()
}
