package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Generated by the Rust SDK: https://github.com/solana-labs/solana/blob/14339dec0a960e8161d1165b6a8e5cfb73e78f23/sdk/src/transaction.rs#L523
//
// The SDK test uses a keypair whose public half doesn't match its seed, so
// rustGeneratedAdjusted is the same transaction signed by the derived key.
const (
	rustGenerated         = "AUc7Cbu+gZalFSGeSFdukHhP7oSGaSdmdNEd5ZokaSysdoMWfIOzjrAbdaBZZuDMAfyNAogAJdrhgVya+jthsgoBAAEDnON0wdcmjhYIDuXvd10F2qEjAyEAJGSe/CGhYbk+WWMBAQEEBQYHCAkJCQkJCQkJCQkJCQkJCQkIBwYFBAEBAQICAgQFBgcICQEBAQEBAQEBAQEBAQEBCQgHBgUEAgICAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAgIAAQMBAgM="
	rustGeneratedAdjusted = "ATMfBMZ8phHEheLph8K9TJhRKhnE4qNZvWiXdUdJRmlTCRsQjWmW2CkQJeRHBCcsqFm2gynjL40M9mTe0Dxp4QIBAAEDfEya6wnC7f3Cv53qnOEywwIJ928rIdqAlfXYI1adXroBAQEEBQYHCAkJCQkJCQkJCQkJCQkJCQkIBwYFBAEBAQICAgQFBgcICQEBAQEBAQEBAQEBAQEBCQgHBgUEAgICAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAgIAAQMBAgM="

	// A mainnet transaction with several programs and instructions.
	mainnetTransaction = "AaZAGNONKTsNypCfvwHGipcWmAX/J03VfLQEHgMDSuHz0ktydqlLb7I4tZnX0Yw8KMTbma28M+yiZPaRolOJGgwBAAgQCR2hNbdxjAiYwC9CSEo2Vso3yq8OXlgoCbepyseaRXoIFE8MTz2ZtOsdNl55fj/zi0S+ArjIP4zJ3Y+MC4tKyQu7s1JPy6Hur6YbU0nF+1XBJYwii/dKtLsNFU/pTo19J7jOgutpJBZbNIhC5ppqC/OYlbzW1KqamkV3p+cslAoyBJxvWrSMXX+X0Ih0+sEzarslIYSV0T/NuLFcjpX8S7ajCdht+3+POhvGcGFzDyc4kIgjN/SAdypJM1Grs+eEtzXhQGM4VMy0p0J2CiOH+k2kwfya5F7fSaYXWOi3CJUGp9UXGSxWjuCKhF9z0peIzwNcMUWyGrNE2AYuqUAAAAan1RcZLFxRIYzJTD1K8X9Y2u4Im6H9ROPb2YoAAAAABt324ddloZPZy+FGzut5rBy0he1fWzeROoz1hX7/AKlDDB9w5G7eh4xhLJIgxblM0E4dxW+ZTABRcCVBt2LcH8b6evO+2606PWXzaqvJdDGxu+TC0vbg5HymAgNFL11hDcYoaKd+VYB6HNWIyaKadms+4q7NwH3gjP6RB91LMWUAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAMGRm/lIRcy/+ytunLDm+e8jOW7xfcSayxDmzpAAAAAjJclj04kifG7PRApFI4NgwtaE5na/xCEBI572Nvp+FmMVCZzhQC2pwD9u6aAm8haUDNRSZG/a7c1U/ltYtc+KAUNAwIHAAQEAAAADgAJA+gDAAAAAAAADgAFAkjoAQAPBwADCgsNCQgBAQwLAAUBBAwMBgwMAwlcCAoCAAAAmhMJCgIAAAAAAUgAAABlmEW1THFmZqyjBehuSli5bMSJBNiQMkZcr19LINSM4KF/whE1IayV174tmVwC9MMlQSmG3j6aJVhIDGMUITUNXRMTAAAAAAA="
)

var (
	sdkProgram = ed25519.PublicKey{2, 2, 2, 4, 5, 6, 7, 8, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 8, 7, 6, 5, 4, 2, 2, 2}
	sdkTo      = ed25519.PublicKey{1, 1, 1, 4, 5, 6, 7, 8, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 8, 7, 6, 5, 4, 1, 1, 1}
	sdkSeed    = []byte{48, 83, 2, 1, 1, 48, 5, 6, 3, 43, 101, 112, 4, 34, 4, 32, 255, 101, 36, 24, 124, 23, 167, 21, 132, 204, 155, 5, 185, 58, 121, 75}
)

func sdkTransaction(signer ed25519.PrivateKey) Transaction {
	return NewTransaction(
		public(signer),
		NewInstruction(
			sdkProgram,
			[]byte{1, 2, 3},
			NewAccountMeta(public(signer), true),
			NewAccountMeta(sdkTo, false),
		),
	)
}

func TestTransaction_RustSDKCompatibility(t *testing.T) {
	// The SDK's keypair is the seed followed by a public key that doesn't
	// belong to it.
	mismatched := append(append(ed25519.PrivateKey{}, sdkSeed...), 156, 227, 116, 193, 215, 38, 142, 22, 8,
		14, 229, 239, 119, 93, 5, 218, 161, 35, 3, 33, 0, 36, 100, 158, 252, 33, 161, 97, 185, 62, 89, 99)

	for _, tc := range []struct {
		name     string
		signer   ed25519.PrivateKey
		expected string
	}{
		{"sdk keypair", mismatched, rustGenerated},
		{"derived keypair", ed25519.NewKeyFromSeed(sdkSeed), rustGeneratedAdjusted},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tx := sdkTransaction(tc.signer)
			require.NoError(t, tx.Sign(tc.signer))
			assert.Equal(t, tc.expected, base64.StdEncoding.EncodeToString(tx.Marshal()))

			var decoded Transaction
			require.NoError(t, decoded.Unmarshal(tx.Marshal()))
			assert.Equal(t, tx, decoded)
		})
	}
}

func TestTransaction_MainnetRoundTrip(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(mainnetTransaction)
	require.NoError(t, err)

	var tx Transaction
	require.NoError(t, tx.Unmarshal(raw))
	assert.Equal(t, raw, tx.Marshal())
	assert.Len(t, tx.Signatures, int(tx.Message.Header.NumSignatures))
}

func TestNewTransaction_AccountOrdering(t *testing.T) {
	keys := generateKeys(t, 2)
	payer, program := keys[0], keys[1]
	keys = sortedKeys(t, 4)

	tx := NewTransaction(
		public(payer),
		NewInstruction(
			public(program),
			[]byte{1, 2, 3},
			NewReadonlyAccountMeta(public(keys[0]), true),
			NewReadonlyAccountMeta(public(keys[1]), false),
			NewAccountMeta(public(keys[2]), false),
			NewAccountMeta(public(keys[3]), true),
		),
	)

	assert.Equal(t, []ed25519.PublicKey{
		public(payer),
		public(keys[3]), // writable signer
		public(keys[0]), // readonly signer
		public(keys[2]), // writable
		public(keys[1]), // readonly
		public(program),
	}, tx.Message.Accounts)
	assert.Equal(t, Header{NumSignatures: 3, NumReadonlySigned: 1, NumReadOnly: 2}, tx.Message.Header)
	assert.Len(t, tx.Signatures, 3)

	compiled, err := tx.Message.CompiledInstructionAt(0, public(program))
	require.NoError(t, err)
	assert.EqualValues(t, 5, compiled.ProgramIndex)
	assert.Equal(t, []byte{2, 4, 3, 1}, compiled.Accounts)
	assert.Equal(t, []byte{1, 2, 3}, compiled.Data)

	_, err = tx.Message.CompiledInstructionAt(0, public(payer))
	assert.Equal(t, ErrIncorrectProgram, err)
	_, err = tx.Message.CompiledInstructionAt(1, public(program))
	assert.Error(t, err)

	// Signers may be given in any order.
	require.NoError(t, tx.Sign(keys[0], keys[3], payer))
	assert.NoError(t, tx.VerifySignatures())
}

func TestNewTransaction_MergesDuplicates(t *testing.T) {
	keys := generateKeys(t, 2)
	payer, program := keys[0], keys[1]
	keys = sortedKeys(t, 4)

	tx := NewTransaction(
		public(payer),
		NewInstruction(
			public(program),
			nil,
			NewReadonlyAccountMeta(public(keys[0]), true),
			NewReadonlyAccountMeta(public(keys[1]), false),
			NewAccountMeta(public(keys[2]), false),
			NewAccountMeta(public(keys[3]), true),
			NewAccountMeta(public(keys[0]), false),        // becomes a writable signer
			NewReadonlyAccountMeta(public(keys[1]), true), // becomes a readonly signer
			NewReadonlyAccountMeta(public(keys[2]), false),
			NewReadonlyAccountMeta(public(keys[3]), false),
		),
	)

	assert.Equal(t, []ed25519.PublicKey{
		public(payer),
		public(keys[0]),
		public(keys[3]),
		public(keys[1]),
		public(keys[2]),
		public(program),
	}, tx.Message.Accounts)
	assert.Equal(t, Header{NumSignatures: 4, NumReadonlySigned: 1, NumReadOnly: 1}, tx.Message.Header)
	assert.Equal(t, []byte{1, 3, 4, 2, 1, 3, 4, 2}, tx.Message.Instructions[0].Accounts)

	require.NoError(t, tx.Sign(keys[1], keys[3], payer, keys[0]))
	assert.NoError(t, tx.VerifySignatures())
}

func TestNewTransaction_WritableProgram(t *testing.T) {
	keys := sortedKeys(t, 4)
	payer, program, writable, readonly := keys[0], keys[1], keys[2], keys[3]

	tx := NewTransaction(
		public(payer),
		NewInstruction(
			public(program),
			nil,
			NewAccountMeta(public(writable), false),
			NewReadonlyAccountMeta(public(readonly), false),
		),
		NewInstruction(
			public(writable),
			nil,
			NewAccountMeta(public(program), false),
		),
	)

	// Both invoked programs are also referenced as writable, so they are
	// grouped with the writable accounts ahead of the readonly one.
	assert.Equal(t, []ed25519.PublicKey{
		public(payer),
		public(program),
		public(writable),
		public(readonly),
	}, tx.Message.Accounts)
	assert.Equal(t, Header{NumSignatures: 1, NumReadOnly: 1}, tx.Message.Header)
	assert.EqualValues(t, 1, tx.Message.Instructions[0].ProgramIndex)
	assert.Equal(t, []byte{2, 3}, tx.Message.Instructions[0].Accounts)
	assert.EqualValues(t, 2, tx.Message.Instructions[1].ProgramIndex)
	assert.Equal(t, []byte{1}, tx.Message.Instructions[1].Accounts)
}

func TestNewTransaction_MultipleInstructions(t *testing.T) {
	keys := sortedKeys(t, 3)
	payer, program, program2 := keys[0], keys[1], keys[2]
	keys = sortedKeys(t, 6)

	tx := NewTransaction(
		public(payer),
		NewInstruction(
			public(program2),
			[]byte{1},
			NewReadonlyAccountMeta(public(keys[0]), true),
			NewReadonlyAccountMeta(public(keys[1]), false),
			NewAccountMeta(public(keys[2]), false),
			NewAccountMeta(public(keys[3]), true),
		),
		NewInstruction(
			public(program),
			[]byte{2},
			NewReadonlyAccountMeta(public(keys[3]), false),
			NewReadonlyAccountMeta(public(keys[2]), false),
			NewAccountMeta(public(keys[0]), false),
			NewAccountMeta(public(keys[1]), true),
			NewAccountMeta(public(keys[4]), true),
			NewReadonlyAccountMeta(public(keys[5]), false),
		),
	)

	assert.Equal(t, []ed25519.PublicKey{
		public(payer),
		public(keys[0]),
		public(keys[1]),
		public(keys[3]),
		public(keys[4]),
		public(keys[2]),
		public(keys[5]),
		public(program),
		public(program2),
	}, tx.Message.Accounts)
	assert.Equal(t, Header{NumSignatures: 5, NumReadOnly: 3}, tx.Message.Header)

	assert.EqualValues(t, 8, tx.Message.Instructions[0].ProgramIndex)
	assert.Equal(t, []byte{1, 2, 5, 3}, tx.Message.Instructions[0].Accounts)
	assert.EqualValues(t, 7, tx.Message.Instructions[1].ProgramIndex)
	assert.Equal(t, []byte{3, 5, 1, 2, 4, 6}, tx.Message.Instructions[1].Accounts)
}

func TestNewTransaction_EmptyAccount(t *testing.T) {
	keys := generateKeys(t, 2)

	tx := NewTransaction(
		public(keys[0]),
		NewInstruction(public(keys[1]), []byte{1}, NewAccountMeta(nil, false)),
	)
	require.NoError(t, tx.Sign(keys[0]))

	assert.Equal(t, make(ed25519.PublicKey, ed25519.PublicKeySize), tx.Message.Accounts[1])

	var decoded Transaction
	assert.NoError(t, decoded.Unmarshal(tx.Marshal()))
}

func TestTransaction_Sign(t *testing.T) {
	keys := generateKeys(t, 3)
	payer, signer, program := keys[0], keys[1], keys[2]

	tx := NewTransaction(
		public(payer),
		NewInstruction(public(program), []byte{1}, NewReadonlyAccountMeta(public(signer), true)),
	)
	tx.SetBlockhash(Blockhash{1, 2, 3})
	assert.Error(t, tx.VerifySignatures())

	require.NoError(t, tx.Sign(payer))
	assert.Error(t, tx.VerifySignatures())

	require.NoError(t, tx.Sign(signer))
	assert.NoError(t, tx.VerifySignatures())
	assert.Equal(t, tx.Signatures[0], tx.Signature())

	var decoded Transaction
	require.NoError(t, decoded.Unmarshal(tx.Marshal()))
	assert.NoError(t, decoded.VerifySignatures())
	assert.Equal(t, Blockhash{1, 2, 3}, decoded.Message.RecentBlockhash)

	tx.SetBlockhash(Blockhash{3, 2, 1})
	assert.Error(t, tx.VerifySignatures())

	assert.Error(t, tx.Sign(program))
	assert.Contains(t, tx.String(), Blockhash{3, 2, 1}.String())
}

func TestTransaction_UnmarshalInvalid(t *testing.T) {
	keys := generateKeys(t, 2)
	valid := func() Transaction {
		return NewTransaction(
			public(keys[0]),
			NewInstruction(public(keys[1]), []byte{1, 2}, NewAccountMeta(public(keys[0]), true)),
		)
	}

	badProgram := valid()
	badProgram.Message.Instructions[0].ProgramIndex = 2

	badAccount := valid()
	badAccount.Message.Instructions[0].Accounts = []byte{2}

	encoded := valid().Marshal()

	for name, raw := range map[string][]byte{
		"empty":                  nil,
		"program out of range":   badProgram.Marshal(),
		"account out of range":   badAccount.Marshal(),
		"truncated":              encoded[:len(encoded)-1],
		"truncated signatures":   encoded[:10],
		"non-canonical shortvec": {0x81, 0x00},
	} {
		var tx Transaction
		assert.Error(t, tx.Unmarshal(raw), name)
	}

	var m Message
	assert.Error(t, m.Unmarshal(nil))
	assert.Error(t, m.Unmarshal([]byte{0x80, 1, 0, 0}))
	assert.NoError(t, m.Unmarshal(valid().Message.Marshal()))
}

func public(priv ed25519.PrivateKey) ed25519.PublicKey {
	return priv.Public().(ed25519.PublicKey)
}

func generateKeys(t *testing.T, n int) []ed25519.PrivateKey {
	keys := make([]ed25519.PrivateKey, n)
	for i := range keys {
		_, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = priv
	}
	return keys
}

func sortedKeys(t *testing.T, n int) []ed25519.PrivateKey {
	keys := generateKeys(t, n)
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(public(keys[i]), public(keys[j])) < 0
	})
	return keys
}
