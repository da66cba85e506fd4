package provisioner

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/solana"
)

var (
	ErrProgramNotDeployed  = errors.New("vote program not deployed")
	ErrMissingPayer        = errors.New("payer keypair unavailable")
	ErrInvalidIdentity     = errors.New("invalid account identity")
	ErrTransactionRejected = errors.New("transaction rejected")
)

// RejectedError is returned when the ledger refuses the creation transaction,
// either during preflight or after submission. It matches ErrTransactionRejected
// with errors.Is, and unwraps to the *solana.TransactionError.
type RejectedError struct {
	Signature solana.Signature
	TxError   *solana.TransactionError
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransactionRejected, e.Signature, e.TxError)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrTransactionRejected
}

func (e *RejectedError) Unwrap() error {
	return e.TxError
}

// StageError is returned when a step is given a State from the wrong stage.
type StageError struct {
	Expected Stage
	Actual   Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("invalid stage: expected %s, got %s", e.Expected, e.Actual)
}
