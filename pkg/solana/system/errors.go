package system

import "github.com/code-payments/vote-provisioner/pkg/solana"

// Custom error codes returned by the system program.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L12-L28
const (
	ErrAccountAlreadyInUse solana.CustomError = iota
	ErrResultWithNegativeLamports
	ErrInvalidProgramID
	ErrInvalidAccountDataLength
	ErrMaxSeedLengthExceeded
	ErrAddressWithSeedMismatch
)

// IsAccountAlreadyInUse returns whether txErr was caused by the system program
// refusing to create an account that already exists.
func IsAccountAlreadyInUse(txErr *solana.TransactionError) bool {
	if txErr == nil || txErr.InstructionError() == nil {
		return false
	}

	custom := txErr.InstructionError().CustomError()
	return custom != nil && *custom == ErrAccountAlreadyInUse
}
