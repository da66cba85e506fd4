package vote

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/vote-provisioner/pkg/solana"
)

func TestCastInstruction(t *testing.T) {
	payer, program, voteAccount := generateKey(t), generateKey(t), generateKey(t)

	for _, choice := range []Choice{ChoiceYes, ChoiceAbstain, ChoiceNo} {
		instruction := NewCastInstruction(program, voteAccount, choice)
		assert.Equal(t, []byte{byte(choice)}, instruction.Data)
		require.Len(t, instruction.Accounts, 1)
		assert.True(t, instruction.Accounts[0].IsWritable)
		assert.False(t, instruction.Accounts[0].IsSigner)

		var tx solana.Transaction
		require.NoError(t, tx.Unmarshal(solana.NewTransaction(payer, instruction).Marshal()))

		decompiled, err := DecompileCast(tx.Message, 0, program)
		require.NoError(t, err)
		assert.EqualValues(t, voteAccount, decompiled.VoteAccount)
		assert.Equal(t, choice, decompiled.Choice)
	}
}

func TestDecompileCast_Invalid(t *testing.T) {
	payer, program, voteAccount := generateKey(t), generateKey(t), generateKey(t)

	instruction := NewCastInstruction(program, voteAccount, ChoiceNo)

	_, err := DecompileCast(solana.NewTransaction(payer, instruction).Message, 0, generateKey(t))
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	_, err = DecompileCast(solana.NewTransaction(payer, instruction).Message, 1, program)
	assert.EqualError(t, err, "instruction doesn't exist")

	instruction.Data = []byte{0, 1}
	_, err = DecompileCast(solana.NewTransaction(payer, instruction).Message, 0, program)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}

func TestAccount_Apply(t *testing.T) {
	var account Account
	for _, choice := range []Choice{ChoiceYes, ChoiceYes, ChoiceAbstain, ChoiceNo, Choice(7)} {
		account.Apply(choice)
	}

	assert.Equal(t, Account{Yes: 2, Abstained: 1, No: 1}, account)
	assert.Equal(t, "unknown", Choice(7).String())
}

func generateKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub
}
