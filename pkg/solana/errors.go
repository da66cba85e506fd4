package solana

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

// TransactionErrorKey identifies why the runtime rejected a transaction.
//
// Source: https://github.com/solana-labs/solana/blob/fc2bf2d3b669d1c6655ae48b0a05f470938f3676/sdk/src/transaction/mod.rs#L37
type TransactionErrorKey string

const (
	TransactionErrorAccountInUse             TransactionErrorKey = "AccountInUse"
	TransactionErrorAccountNotFound          TransactionErrorKey = "AccountNotFound"
	TransactionErrorInsufficientFundsForFee  TransactionErrorKey = "InsufficientFundsForFee"
	TransactionErrorDuplicateSignature       TransactionErrorKey = "DuplicateSignature"
	TransactionErrorBlockhashNotFound        TransactionErrorKey = "BlockhashNotFound"
	TransactionErrorInstructionError         TransactionErrorKey = "InstructionError"
	TransactionErrorSignatureFailure         TransactionErrorKey = "SignatureFailure"
	TransactionErrorSanitizeFailure          TransactionErrorKey = "SanitizeFailure"
	TransactionErrorAlreadyProcessed         TransactionErrorKey = "AlreadyProcessed"
	TransactionErrorInsufficientFundsForRent TransactionErrorKey = "InsufficientFundsForRent"
)

// InstructionErrorKey identifies why a program failed an instruction.
//
// Source: https://github.com/solana-labs/solana/blob/4e2754341514cd181ae3f373cc2548bd22e918b8/sdk/program/src/instruction.rs#L23
type InstructionErrorKey string

const (
	InstructionErrorGenericError             InstructionErrorKey = "GenericError"
	InstructionErrorInvalidArgument          InstructionErrorKey = "InvalidArgument"
	InstructionErrorInvalidInstructionData   InstructionErrorKey = "InvalidInstructionData"
	InstructionErrorInvalidAccountData       InstructionErrorKey = "InvalidAccountData"
	InstructionErrorInsufficientFunds        InstructionErrorKey = "InsufficientFunds"
	InstructionErrorIncorrectProgramID       InstructionErrorKey = "IncorrectProgramId"
	InstructionErrorMissingRequiredSignature InstructionErrorKey = "MissingRequiredSignature"
	InstructionErrorUnsupportedProgramID     InstructionErrorKey = "UnsupportedProgramId"
	InstructionErrorCustom                   InstructionErrorKey = "Custom"
)

// CustomError is a program specific error code.
type CustomError int

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: %#x", int(c))
}

// InstructionError is the failure of the instruction at Index. Err is either
// a CustomError, or an error whose text is an InstructionErrorKey.
type InstructionError struct {
	Index int
	Err   error
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %v", i.Index, i.Err)
}

func (i InstructionError) ErrorKey() InstructionErrorKey {
	switch e := i.Err.(type) {
	case nil:
		return ""
	case CustomError:
		return InstructionErrorCustom
	default:
		return InstructionErrorKey(e.Error())
	}
}

func (i InstructionError) CustomError() *CustomError {
	if ce, ok := i.Err.(CustomError); ok {
		return &ce
	}
	return nil
}

// raw returns the value in the form the RPC encodes it.
func (i InstructionError) raw() []interface{} {
	if ce, ok := i.Err.(CustomError); ok {
		return []interface{}{i.Index, map[string]interface{}{string(InstructionErrorCustom): int(ce)}}
	}
	return []interface{}{i.Index, string(i.ErrorKey())}
}

// TransactionError is a transaction's failure as reported by the cluster.
type TransactionError struct {
	key         TransactionErrorKey
	instruction *InstructionError
	raw         interface{}
}

func NewTransactionError(key TransactionErrorKey) *TransactionError {
	return &TransactionError{key: key, raw: string(key)}
}

// TransactionErrorFromInstructionError wraps an instruction failure the way
// the cluster reports it.
func TransactionErrorFromInstructionError(err *InstructionError) (*TransactionError, error) {
	if err == nil || err.Err == nil {
		return nil, errors.New("instruction error is missing its cause")
	}

	return &TransactionError{
		key:         TransactionErrorInstructionError,
		instruction: err,
		raw:         map[string]interface{}{string(TransactionErrorInstructionError): err.raw()},
	}, nil
}

// ParseRPCError extracts the transaction error from a preflight failure,
// which carries it in the "err" field of the error data. A nil error is
// returned when err has no transaction error attached.
func ParseRPCError(err *jsonrpc.RPCError) (*TransactionError, error) {
	if err == nil {
		return nil, nil
	}

	data, ok := err.Data.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("unexpected rpc error data: %T", err.Data)
	}

	return ParseTransactionError(data["err"])
}

// ParseTransactionError parses the "err" field returned by RPC methods. A
// nil raw value means there was no error.
//
// When raw is recognizably an error but its contents aren't understood, both
// a generic *TransactionError and a parse error are returned.
func ParseTransactionError(raw interface{}) (*TransactionError, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return &TransactionError{key: TransactionErrorKey(t), raw: raw}, nil
	case map[string]interface{}:
		key, value, err := singleEntry(t)
		if err != nil {
			return &TransactionError{key: "unhandled transaction error", raw: raw}, err
		}

		txErr := &TransactionError{key: TransactionErrorKey(key), raw: raw}
		if txErr.key != TransactionErrorInstructionError {
			return txErr, nil
		}

		if txErr.instruction, err = parseInstructionError(value); err != nil {
			return &TransactionError{key: "unhandled transaction error", raw: raw}, errors.Wrap(err, "failed to parse instruction error")
		}
		return txErr, nil
	default:
		return nil, errors.Errorf("unhandled transaction error type: %T", raw)
	}
}

func parseInstructionError(v interface{}) (*InstructionError, error) {
	tuple, ok := v.([]interface{})
	if !ok || len(tuple) != 2 {
		return nil, errors.Errorf("expected [index, error] tuple, got %v", v)
	}

	index, err := parseJSONNumber(tuple[0])
	if err != nil {
		return nil, err
	}
	result := &InstructionError{Index: index}

	switch t := tuple[1].(type) {
	case string:
		result.Err = errors.New(t)
	case map[string]interface{}:
		key, value, err := singleEntry(t)
		if err != nil {
			return nil, err
		}
		if key != string(InstructionErrorCustom) {
			result.Err = errors.New(key)
			break
		}

		code, err := parseJSONNumber(value)
		if err != nil {
			return nil, errors.Wrap(err, "invalid custom error code")
		}
		result.Err = CustomError(code)
	default:
		return nil, errors.Errorf("unhandled instruction error type: %T", tuple[1])
	}

	return result, nil
}

func (t TransactionError) Error() string {
	if t.instruction != nil {
		return t.instruction.Error()
	}
	return string(t.key)
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	return t.key
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instruction
}

// JSONString returns the error as the RPC would encode it.
func (t TransactionError) JSONString() (string, error) {
	b, err := json.Marshal(t.raw)
	return string(b), err
}

func singleEntry(m map[string]interface{}) (string, interface{}, error) {
	if len(m) != 1 {
		return "", nil, errors.Errorf("expected a single entry, got %d", len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

func parseJSONNumber(v interface{}) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return int(n), errors.Wrapf(err, "invalid number %v", v)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return int(n), errors.Wrapf(err, "invalid number %v", v)
	case float64:
		return int(t), nil
	case int:
		return t, nil
	default:
		return 0, errors.Errorf("expected number, got %T", v)
	}
}
