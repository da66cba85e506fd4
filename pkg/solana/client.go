package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/code-payments/vote-provisioner/pkg/retry"
	"github.com/code-payments/vote-provisioner/pkg/retry/backoff"
)

const (
	// The cluster produces a slot every 400ms.
	slotDuration = 400 * time.Millisecond

	// PollRate is how often a pending signature should be checked.
	PollRate = slotDuration / 2

	// A transaction whose blockhash is older than ~150 slots can no longer
	// land, so there is no point in waiting longer than that.
	sigStatusPollLimit = 2 * 150

	// Reference: https://github.com/solana-labs/solana/blob/71e9958e061493d7545bd28d4ac7a85aaed6ffbb/client/src/rpc_custom_error.rs#L11
	rpcNodeUnhealthyCode = -32005
)

// Commitment is the level of finality a query or submission is made at.
type Commitment struct {
	Commitment string `json:"commitment"`
}

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

// CommitmentFromString maps the Solana CLI commitment names onto a Commitment.
func CommitmentFromString(value string) (Commitment, error) {
	for _, c := range []Commitment{CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized} {
		if c.Commitment == value {
			return c, nil
		}
	}
	return Commitment{}, errors.Errorf("unknown commitment %q", value)
}

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrSignatureNotFound = errors.New("signature not found")
)

// AccountInfo is the state of an account as stored on the ledger.
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

// Version is the software version of the RPC node.
type Version struct {
	SolanaCore string `json:"solana-core"`
	FeatureSet uint32 `json:"feature-set"`
}

type SignatureStatus struct {
	Slot        uint64
	ErrorResult *TransactionError

	// Confirmations will be nil if the transaction has been rooted.
	Confirmations      *int
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	switch {
	case s.Finalized():
		return true
	case s.ConfirmationStatus == confirmationStatusConfirmed:
		return true
	default:
		return *s.Confirmations >= 1
	}
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

// Satisfies reports whether the transaction has reached commitment. Unknown
// commitments are treated as CommitmentConfirmed.
func (s SignatureStatus) Satisfies(commitment Commitment) bool {
	switch commitment {
	case CommitmentProcessed:
		return true
	case CommitmentFinalized:
		return s.Finalized()
	default:
		return s.Confirmed()
	}
}

// Client provides an interaction with the Solana JSON RPC API.
//
// Reference: https://docs.solana.com/apps/jsonrpc-api
type Client interface {
	GetVersion() (Version, error)
	GetAccountInfo(ed25519.PublicKey, Commitment) (AccountInfo, error)
	GetBalance(ed25519.PublicKey) (uint64, error)
	GetMinimumBalanceForRentExemption(size uint64) (lamports uint64, err error)
	GetLatestBlockhash() (Blockhash, error)
	GetSignatureStatus(Signature, Commitment) (*SignatureStatus, error)
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
	RequestAirdrop(ed25519.PublicKey, uint64, Commitment) (Signature, error)
	SubmitTransaction(Transaction, Commitment) (Signature, error)
}

var (
	errRateLimited  = errors.New("rate limited")
	errServiceError = errors.New("service error")
)

// contextual is the envelope used by methods that report the slot the
// response was evaluated at.
type contextual[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

type encodedAccount struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
}

type encodedSignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *int            `json:"confirmations"`
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

type client struct {
	log     *logrus.Entry
	rpc     jsonrpc.RPCClient
	retrier retry.Retrier
}

// New returns a client using the specified endpoint.
func New(endpoint string) Client {
	return NewWithRPCOptions(endpoint, nil)
}

// NewWithRPCOptions returns a client configured with the specified RPC options.
func NewWithRPCOptions(endpoint string, opts *jsonrpc.RPCClientOpts) Client {
	return &client{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type":     "solana/client",
			"endpoint": endpoint,
		}),
		rpc: jsonrpc.NewClientWithOpts(endpoint, opts),
		retrier: retry.NewRetrier(
			retry.RetriableErrors(errRateLimited, errServiceError),
			retry.Limit(3),
			retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), 10*time.Second, 0.1),
		),
	}
}

// call invokes method, retrying when the node is overloaded or unhealthy.
func (c *client) call(out interface{}, method string, params ...interface{}) error {
	_, err := c.retrier.Retry(func() error {
		return c.classify(method, c.rpc.CallFor(out, method, params...))
	})
	if err != nil {
		return errors.Wrapf(err, "%s() failed", method)
	}
	return nil
}

// classify maps transient node failures onto the retriable errors.
func (c *client) classify(method string, err error) error {
	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return err
	}

	switch {
	case rpcErr.Code == 429:
		c.log.WithField("method", method).Warn("rate limited")
		return errRateLimited
	case rpcErr.Code >= 500, rpcErr.Code == rpcNodeUnhealthyCode:
		c.log.WithField("method", method).WithError(rpcErr).Warn("node unavailable")
		return errServiceError
	default:
		return err
	}
}

func (c *client) GetVersion() (version Version, err error) {
	return version, c.call(&version, "getVersion")
}

func (c *client) GetMinimumBalanceForRentExemption(dataSize uint64) (lamports uint64, err error) {
	return lamports, c.call(&lamports, "getMinimumBalanceForRentExemption", dataSize)
}

func (c *client) GetLatestBlockhash() (Blockhash, error) {
	var resp contextual[struct {
		Blockhash string `json:"blockhash"`
	}]
	if err := c.call(&resp, "getLatestBlockhash"); err != nil {
		return Blockhash{}, err
	}

	var hash Blockhash
	if err := decodeFixed(hash[:], resp.Value.Blockhash); err != nil {
		return Blockhash{}, errors.Wrap(err, "invalid blockhash in response")
	}
	return hash, nil
}

func (c *client) GetBalance(account ed25519.PublicKey) (uint64, error) {
	var resp contextual[uint64]
	if err := c.call(&resp, "getBalance", base58.Encode(account), CommitmentProcessed); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *client) GetAccountInfo(account ed25519.PublicKey, commitment Commitment) (AccountInfo, error) {
	config := struct {
		Commitment string `json:"commitment"`
		Encoding   string `json:"encoding"`
	}{
		Commitment: commitment.Commitment,
		Encoding:   "base64",
	}

	var resp contextual[*encodedAccount]
	if err := c.call(&resp, "getAccountInfo", base58.Encode(account), config); err != nil {
		return AccountInfo{}, err
	}
	if resp.Value == nil {
		return AccountInfo{}, ErrNoAccountInfo
	}

	owner, err := base58.Decode(resp.Value.Owner)
	if err != nil || len(owner) != ed25519.PublicKeySize {
		return AccountInfo{}, errors.Errorf("invalid owner in response: %q", resp.Value.Owner)
	}
	if len(resp.Value.Data) == 0 {
		return AccountInfo{}, errors.New("missing account data in response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Value.Data[0])
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "invalid account data in response")
	}

	return AccountInfo{
		Data:       data,
		Owner:      owner,
		Lamports:   resp.Value.Lamports,
		Executable: resp.Value.Executable,
	}, nil
}

func (c *client) RequestAirdrop(account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error) {
	var encoded string
	if err := c.call(&encoded, "requestAirdrop", base58.Encode(account), lamports, commitment); err != nil {
		return Signature{}, err
	}

	var sig Signature
	if err := decodeFixed(sig[:], encoded); err != nil || sig == (Signature{}) {
		return Signature{}, errors.Errorf("invalid signature in response: %q", encoded)
	}
	return sig, nil
}

// SubmitTransaction sends the transaction exactly once. Preflight simulation
// is left on so rejected transactions come back as a *TransactionError instead
// of silently dropping.
func (c *client) SubmitTransaction(txn Transaction, commitment Commitment) (Signature, error) {
	sig := txn.Signature()

	config := struct {
		Encoding            string `json:"encoding"`
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment"`
	}{
		Encoding:            "base64",
		PreflightCommitment: commitment.Commitment,
	}

	var ignored string
	err := c.rpc.CallFor(&ignored, "sendTransaction", base64.StdEncoding.EncodeToString(txn.Marshal()), config)
	if err == nil {
		return sig, nil
	}

	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return sig, errors.Wrap(err, "sendTransaction() failed")
	}
	txErr, parseErr := ParseRPCError(rpcErr)
	if parseErr != nil || txErr == nil {
		return sig, errors.Wrap(err, "sendTransaction() failed")
	}

	c.log.WithFields(logrus.Fields{
		"signature": sig.String(),
		"error_key": txErr.ErrorKey(),
	}).Debug("transaction rejected during preflight")

	return sig, txErr
}

// GetSignatureStatus polls until the transaction reaches the commitment level,
// has failed, or the poll limit is hit. A failed transaction is returned with a
// non-nil ErrorResult and no error.
func (c *client) GetSignatureStatus(sig Signature, commitment Commitment) (*SignatureStatus, error) {
	errPending := errors.New("commitment not reached")

	var status *SignatureStatus
	_, err := retry.Retry(
		func() error {
			statuses, err := c.GetSignatureStatuses([]Signature{sig})
			if err != nil {
				return err
			}

			if status = statuses[0]; status == nil {
				return ErrSignatureNotFound
			}
			if status.ErrorResult != nil || status.Satisfies(commitment) {
				return nil
			}
			return errPending
		},
		retry.RetriableErrors(ErrSignatureNotFound, errPending),
		retry.Limit(sigStatusPollLimit),
		retry.Backoff(backoff.Constant(PollRate), PollRate),
	)

	return status, err
}

// GetSignatureStatuses returns the status of each signature, or nil for
// signatures the node has no record of.
func (c *client) GetSignatureStatuses(sigs []Signature) ([]*SignatureStatus, error) {
	encoded := make([]string, len(sigs))
	for i, sig := range sigs {
		encoded[i] = sig.String()
	}

	config := struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{
		SearchTransactionHistory: true,
	}

	var resp contextual[[]*encodedSignatureStatus]
	if err := c.call(&resp, "getSignatureStatuses", encoded, config); err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i := 0; i < len(statuses) && i < len(resp.Value); i++ {
		v := resp.Value[i]
		if v == nil {
			continue
		}

		status := &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: v.ConfirmationStatus,
		}

		var raw interface{}
		if len(v.Err) > 0 {
			if err := json.Unmarshal(v.Err, &raw); err != nil {
				return nil, errors.Wrap(err, "invalid transaction result")
			}
		}

		var err error
		if status.ErrorResult, err = ParseTransactionError(raw); err != nil {
			return nil, errors.Wrap(err, "invalid transaction result")
		}

		statuses[i] = status
	}

	return statuses, nil
}

// decodeFixed decodes a base58 value that must fill dst exactly.
func decodeFixed(dst []byte, encoded string) error {
	b, err := base58.Decode(encoded)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return errors.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
