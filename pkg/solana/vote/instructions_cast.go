package vote

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/solana"
)

// Choice is the single byte of data carried by a cast instruction.
type Choice uint8

const (
	ChoiceYes Choice = iota
	ChoiceAbstain
	ChoiceNo
)

func (c Choice) String() string {
	switch c {
	case ChoiceYes:
		return "yes"
	case ChoiceAbstain:
		return "abstain"
	case ChoiceNo:
		return "no"
	}
	return "unknown"
}

// Apply increments the counter matching c. Unknown choices leave the tally
// untouched, mirroring the on-chain program.
func (obj *Account) Apply(c Choice) {
	switch c {
	case ChoiceYes:
		obj.Yes++
	case ChoiceAbstain:
		obj.Abstained++
	case ChoiceNo:
		obj.No++
	}
}

func NewCastInstruction(program, voteAccount ed25519.PublicKey, choice Choice) solana.Instruction {
	// # Account references
	//   0. [WRITE] Vote account, owned by the program
	return solana.NewInstruction(
		program,
		[]byte{byte(choice)},
		solana.NewAccountMeta(voteAccount, false),
	)
}

type DecompiledCast struct {
	VoteAccount ed25519.PublicKey
	Choice      Choice
}

func DecompileCast(m solana.Message, index int, program ed25519.PublicKey) (*DecompiledCast, error) {
	i, err := m.CompiledInstructionAt(index, program)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != 1 {
		return nil, solana.ErrIncorrectInstruction
	}

	return &DecompiledCast{
		VoteAccount: m.Accounts[i.Accounts[0]],
		Choice:      Choice(i.Data[0]),
	}, nil
}
