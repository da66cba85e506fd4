package system

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/solana"
	bincode "github.com/code-payments/vote-provisioner/pkg/solana/binary"
)

// ProgramKey is the all zero address of the system program.
var ProgramKey [32]byte

// Instruction discriminants, from the SystemInstruction enum.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs
const (
	commandCreateAccount         uint32 = 0
	commandCreateAccountWithSeed uint32 = 3
	commandAllocate              uint32 = 8
)

const createAccountSize = 4 + 8 + 8 + ed25519.PublicKeySize

// CreateAccount returns an instruction that funds and allocates address,
// assigning it to owner. Both funder and address must sign.
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	data := bincode.NewEncoder(createAccountSize).
		Uint32(commandCreateAccount).
		Uint64(lamports).
		Uint64(size).
		Key(owner).
		Bytes()

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	i, err := compiledSystemInstruction(m, index, commandCreateAccount)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != createAccountSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	d := bincode.NewDecoder(i.Data[4:])
	return &DecompiledCreateAccount{
		Funder:   m.Accounts[i.Accounts[0]],
		Address:  m.Accounts[i.Accounts[1]],
		Lamports: d.Uint64(),
		Size:     d.Uint64(),
		Owner:    d.Key(),
	}, d.Err()
}

// CreateAccountWithSeed returns an instruction that creates the account at
// address, which must equal solana.CreateWithSeed(base, seed, owner). The base
// account must sign the transaction. It is commonly the funder, in which case
// both references collapse to a single account when compiled.
//
// Accounts:
//
//	0. [WRITE, SIGNER] funder
//	1. [WRITE] address
//	2. [SIGNER] base
func CreateAccountWithSeed(funder, address, base ed25519.PublicKey, seed string, lamports, size uint64, owner ed25519.PublicKey) solana.Instruction {
	data := bincode.NewEncoder(4+ed25519.PublicKeySize+bincode.StringSize(seed)+8+8+ed25519.PublicKeySize).
		Uint32(commandCreateAccountWithSeed).
		Key(base).
		String(seed).
		Uint64(lamports).
		Uint64(size).
		Key(owner).
		Bytes()

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, false),
		solana.NewReadonlyAccountMeta(base, true),
	)
}

type DecompiledCreateAccountWithSeed struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Base     ed25519.PublicKey
	Seed     string
	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecompileCreateAccountWithSeed(m solana.Message, index int) (*DecompiledCreateAccountWithSeed, error) {
	i, err := compiledSystemInstruction(m, index, commandCreateAccountWithSeed)
	if err != nil {
		return nil, err
	}

	// The base may be omitted when it is also the funder.
	if len(i.Accounts) < 2 || len(i.Accounts) > 3 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}

	v := &DecompiledCreateAccountWithSeed{
		Funder:  m.Accounts[i.Accounts[0]],
		Address: m.Accounts[i.Accounts[1]],
	}

	d := bincode.NewDecoder(i.Data[4:])
	if v.Base = d.Key(); d.Err() != nil {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}
	if v.Seed = d.String(); d.Err() != nil {
		return nil, errors.New("invalid seed encoding")
	}

	v.Lamports = d.Uint64()
	v.Size = d.Uint64()
	v.Owner = d.Key()
	if d.Err() != nil || d.Remaining() != 0 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	return v, nil
}

// compiledSystemInstruction returns the instruction at index, provided it is
// a system program instruction of the given command.
func compiledSystemInstruction(m solana.Message, index int, command uint32) (solana.CompiledInstruction, error) {
	if index >= len(m.Instructions) {
		return solana.CompiledInstruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i, err := m.CompiledInstructionAt(index, ProgramKey[:])
	if err != nil {
		return solana.CompiledInstruction{}, err
	}

	if len(i.Data) < 4 || bincode.NewDecoder(i.Data).Uint32() != command {
		return solana.CompiledInstruction{}, solana.ErrIncorrectInstruction
	}

	return i, nil
}
