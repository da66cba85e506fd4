package system

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/vote-provisioner/pkg/solana"
	"github.com/code-payments/vote-provisioner/pkg/testutil"
)

func TestCreateAccount(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)

	instruction := CreateAccount(keys[0], keys[1], keys[2], 12345, 67890)

	command := make([]byte, 4)
	lamports := make([]byte, 8)
	binary.LittleEndian.PutUint64(lamports, 12345)
	size := make([]byte, 8)
	binary.LittleEndian.PutUint64(size, 67890)

	assert.Equal(t, command, instruction.Data[0:4])
	assert.Equal(t, lamports, instruction.Data[4:12])
	assert.Equal(t, size, instruction.Data[12:20])
	assert.Equal(t, []byte(keys[2]), instruction.Data[20:52])

	var tx solana.Transaction
	require.NoError(t, tx.Unmarshal(solana.NewTransaction(keys[0], instruction).Marshal()))

	decompiled, err := DecompileCreateAccount(tx.Message, 0)
	require.NoError(t, err)
	assert.Equal(t, decompiled.Funder, keys[0])
	assert.Equal(t, decompiled.Address, keys[1])
	assert.Equal(t, decompiled.Owner, keys[2])
	assert.EqualValues(t, decompiled.Lamports, 12345)
	assert.EqualValues(t, decompiled.Size, 67890)
}

func TestDecompileNonCreate(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 4)

	instruction := CreateAccount(keys[0], keys[1], keys[2], 12345, 67890)

	instruction.Accounts = instruction.Accounts[:1]
	_, err := DecompileCreateAccount(solana.NewTransaction(keys[0], instruction).Message, 0)
	assert.NotNil(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid number of accounts"), err)

	binary.LittleEndian.PutUint32(instruction.Data, commandAllocate)
	_, err = DecompileCreateAccount(solana.NewTransaction(keys[0], instruction).Message, 0)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction.Data = make([]byte, 3)
	_, err = DecompileCreateAccount(solana.NewTransaction(keys[0], instruction).Message, 0)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction.Program = keys[3]
	_, err = DecompileCreateAccount(solana.NewTransaction(keys[0], instruction).Message, 0)
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	_, err = DecompileCreateAccount(solana.NewTransaction(keys[0], instruction).Message, 1)
	assert.NotNil(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "instruction doesn't exist"))
}

func TestCreateAccountWithSeed(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 2)
	funder, owner := keys[0], keys[1]

	seed := "vote"
	address, err := solana.CreateWithSeed(funder, seed, owner)
	require.NoError(t, err)

	instruction := CreateAccountWithSeed(funder, address, funder, seed, 974400, 12, owner)

	assert.EqualValues(t, ProgramKey[:], instruction.Program)
	require.Len(t, instruction.Data, 4+32+8+len(seed)+8+8+32)
	assert.EqualValues(t, commandCreateAccountWithSeed, binary.LittleEndian.Uint32(instruction.Data[0:4]))
	assert.Equal(t, []byte(funder), instruction.Data[4:36])
	assert.EqualValues(t, len(seed), binary.LittleEndian.Uint64(instruction.Data[36:44]))
	assert.Equal(t, seed, string(instruction.Data[44:48]))
	assert.EqualValues(t, 974400, binary.LittleEndian.Uint64(instruction.Data[48:56]))
	assert.EqualValues(t, 12, binary.LittleEndian.Uint64(instruction.Data[56:64]))
	assert.Equal(t, []byte(owner), instruction.Data[64:96])

	require.Len(t, instruction.Accounts, 3)
	assert.True(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.True(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.False(t, instruction.Accounts[2].IsWritable)

	tx := solana.NewTransaction(funder, instruction)

	// The funder doubles as the base, so only one signature is required.
	assert.EqualValues(t, 1, tx.Message.Header.NumSignatures)
	assert.EqualValues(t, 0, tx.Message.Header.NumReadonlySigned)
	assert.EqualValues(t, 1, tx.Message.Header.NumReadOnly)
	require.Len(t, tx.Message.Accounts, 3)
	assert.EqualValues(t, funder, tx.Message.Accounts[0])
	assert.EqualValues(t, address, tx.Message.Accounts[1])

	var decoded solana.Transaction
	require.NoError(t, decoded.Unmarshal(tx.Marshal()))

	decompiled, err := DecompileCreateAccountWithSeed(decoded.Message, 0)
	require.NoError(t, err)
	assert.EqualValues(t, funder, decompiled.Funder)
	assert.EqualValues(t, address, decompiled.Address)
	assert.EqualValues(t, funder, decompiled.Base)
	assert.Equal(t, seed, decompiled.Seed)
	assert.EqualValues(t, 974400, decompiled.Lamports)
	assert.EqualValues(t, 12, decompiled.Size)
	assert.EqualValues(t, owner, decompiled.Owner)
}

func TestDecompileCreateAccountWithSeed_Invalid(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 4)

	instruction := CreateAccountWithSeed(keys[0], keys[1], keys[0], "vote", 1, 12, keys[2])

	_, err := DecompileCreateAccountWithSeed(solana.NewTransaction(keys[0], CreateAccount(keys[0], keys[1], keys[2], 1, 12)).Message, 0)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	truncated := instruction
	truncated.Data = instruction.Data[:len(instruction.Data)-1]
	_, err = DecompileCreateAccountWithSeed(solana.NewTransaction(keys[0], truncated).Message, 0)
	assert.NotNil(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid instruction data size"), err)

	badSeed := instruction
	badSeed.Data = append([]byte{}, instruction.Data...)
	binary.LittleEndian.PutUint64(badSeed.Data[36:], 1000)
	_, err = DecompileCreateAccountWithSeed(solana.NewTransaction(keys[0], badSeed).Message, 0)
	assert.EqualError(t, err, "invalid seed encoding")

	wrongProgram := instruction
	wrongProgram.Program = keys[3]
	_, err = DecompileCreateAccountWithSeed(solana.NewTransaction(keys[0], wrongProgram).Message, 0)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func TestIsAccountAlreadyInUse(t *testing.T) {
	inUse, err := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: 0,
		Err:   ErrAccountAlreadyInUse,
	})
	require.NoError(t, err)
	assert.True(t, IsAccountAlreadyInUse(inUse))

	negative, err := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: 0,
		Err:   ErrResultWithNegativeLamports,
	})
	require.NoError(t, err)
	assert.False(t, IsAccountAlreadyInUse(negative))

	assert.False(t, IsAccountAlreadyInUse(solana.NewTransactionError(solana.TransactionErrorAccountNotFound)))
	assert.False(t, IsAccountAlreadyInUse(nil))
}
