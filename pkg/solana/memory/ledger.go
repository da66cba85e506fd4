// Package memory provides an in-memory solana.Client that executes the subset
// of system and vote program instructions needed to provision and use a vote
// account.
package memory

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/solana"
	"github.com/code-payments/vote-provisioner/pkg/solana/system"
	"github.com/code-payments/vote-provisioner/pkg/solana/vote"
)

const (
	// Rent parameters of a default cluster.
	//
	// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/rent.rs#L29-L41
	LamportsPerByteYear     = 3480
	ExemptionThresholdYears = 2
	AccountStorageOverhead  = 128

	LamportsPerSignature = 5000

	Version    = "1.18.26"
	FeatureSet = 3469865029
)

const (
	MethodGetVersion                        = "getVersion"
	MethodGetAccountInfo                    = "getAccountInfo"
	MethodGetBalance                        = "getBalance"
	MethodGetMinimumBalanceForRentExemption = "getMinimumBalanceForRentExemption"
	MethodGetLatestBlockhash                = "getLatestBlockhash"
	MethodGetSignatureStatuses              = "getSignatureStatuses"
	MethodRequestAirdrop                    = "requestAirdrop"
	MethodSendTransaction                   = "sendTransaction"
)

var errMissingSignature = errors.New(string(solana.InstructionErrorMissingRequiredSignature))

type account struct {
	lamports   uint64
	owner      ed25519.PublicKey
	data       []byte
	executable bool
}

func (a *account) clone() *account {
	return &account{
		lamports:   a.lamports,
		owner:      append(ed25519.PublicKey{}, a.owner...),
		data:       append([]byte{}, a.data...),
		executable: a.executable,
	}
}

type status struct {
	slot uint64
	err  *solana.TransactionError
}

// Ledger is an in-memory solana.Client. Submitted transactions are processed
// synchronously and are finalized as soon as they are accepted.
type Ledger struct {
	mu sync.Mutex

	slot        uint64
	accounts    map[string]*account
	blockhashes map[solana.Blockhash]struct{}
	statuses    map[solana.Signature]*status
	submitted   []solana.Transaction

	calls    map[string]int
	injected map[string]error
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		accounts:    make(map[string]*account),
		blockhashes: make(map[solana.Blockhash]struct{}),
		statuses:    make(map[solana.Signature]*status),
		calls:       make(map[string]int),
		injected:    make(map[string]error),
	}
}

// RentExemptBalance is the minimum balance an account of the given size needs
// to be exempt from rent.
func RentExemptBalance(size uint64) uint64 {
	return (AccountStorageOverhead + size) * LamportsPerByteYear * ExemptionThresholdYears
}

// SetBalance credits a system owned account with exactly lamports.
func (l *Ledger) SetBalance(pub ed25519.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.accounts[key(pub)]
	if ok {
		existing.lamports = lamports
		return
	}

	l.accounts[key(pub)] = &account{
		lamports: lamports,
		owner:    system.ProgramKey[:],
	}
}

// SetAccount stores info at pub, replacing any existing account.
func (l *Ledger) SetAccount(pub ed25519.PublicKey, info solana.AccountInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts[key(pub)] = &account{
		lamports:   info.Lamports,
		owner:      append(ed25519.PublicKey{}, info.Owner...),
		data:       append([]byte{}, info.Data...),
		executable: info.Executable,
	}
}

// DeployProgram marks program as an executable account, allowing vote
// instructions targeting it to be processed.
func (l *Ledger) DeployProgram(program ed25519.PublicKey) {
	l.SetAccount(program, solana.AccountInfo{
		Lamports:   1,
		Executable: true,
	})
}

// SetError makes every subsequent call to method fail with err. A nil err
// clears the injected failure.
func (l *Ledger) SetError(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		delete(l.injected, method)
		return
	}
	l.injected[method] = err
}

// CallCount returns the number of times method has been invoked.
func (l *Ledger) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls[method]
}

// Transactions returns every transaction the ledger has accepted, in order.
func (l *Ledger) Transactions() []solana.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]solana.Transaction{}, l.submitted...)
}

// GetVersion implements solana.Client.GetVersion
func (l *Ledger) GetVersion() (solana.Version, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetVersion); err != nil {
		return solana.Version{}, err
	}

	return solana.Version{SolanaCore: Version, FeatureSet: FeatureSet}, nil
}

// GetAccountInfo implements solana.Client.GetAccountInfo
func (l *Ledger) GetAccountInfo(pub ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetAccountInfo); err != nil {
		return solana.AccountInfo{}, err
	}

	existing, ok := l.accounts[key(pub)]
	if !ok || !existing.exists() {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}

	cloned := existing.clone()
	return solana.AccountInfo{
		Data:       cloned.data,
		Owner:      cloned.owner,
		Lamports:   cloned.lamports,
		Executable: cloned.executable,
	}, nil
}

// GetBalance implements solana.Client.GetBalance
func (l *Ledger) GetBalance(pub ed25519.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetBalance); err != nil {
		return 0, err
	}

	if existing, ok := l.accounts[key(pub)]; ok {
		return existing.lamports, nil
	}
	return 0, nil
}

// GetMinimumBalanceForRentExemption implements solana.Client.GetMinimumBalanceForRentExemption
func (l *Ledger) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetMinimumBalanceForRentExemption); err != nil {
		return 0, err
	}

	return RentExemptBalance(size), nil
}

// GetLatestBlockhash implements solana.Client.GetLatestBlockhash
func (l *Ledger) GetLatestBlockhash() (solana.Blockhash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetLatestBlockhash); err != nil {
		return solana.Blockhash{}, err
	}

	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], l.slot)
	hash := solana.Blockhash(sha256.Sum256(slot[:]))
	l.blockhashes[hash] = struct{}{}

	return hash, nil
}

// GetSignatureStatus implements solana.Client.GetSignatureStatus
func (l *Ledger) GetSignatureStatus(sig solana.Signature, _ solana.Commitment) (*solana.SignatureStatus, error) {
	statuses, err := l.GetSignatureStatuses([]solana.Signature{sig})
	if err != nil {
		return nil, err
	}

	if statuses[0] == nil {
		return nil, solana.ErrSignatureNotFound
	}
	return statuses[0], nil
}

// GetSignatureStatuses implements solana.Client.GetSignatureStatuses
func (l *Ledger) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodGetSignatureStatuses); err != nil {
		return nil, err
	}

	res := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		s, ok := l.statuses[sig]
		if !ok {
			continue
		}

		res[i] = &solana.SignatureStatus{
			Slot:               s.slot,
			ErrorResult:        s.err,
			ConfirmationStatus: "finalized",
		}
	}

	return res, nil
}

// RequestAirdrop implements solana.Client.RequestAirdrop
func (l *Ledger) RequestAirdrop(pub ed25519.PublicKey, lamports uint64, _ solana.Commitment) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodRequestAirdrop); err != nil {
		return solana.Signature{}, err
	}

	var sig solana.Signature
	if _, err := rand.Read(sig[:]); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to generate airdrop signature")
	}

	existing, ok := l.accounts[key(pub)]
	if !ok {
		existing = &account{owner: system.ProgramKey[:]}
		l.accounts[key(pub)] = existing
	}
	existing.lamports += lamports

	l.slot++
	l.statuses[sig] = &status{slot: l.slot}

	return sig, nil
}

// SubmitTransaction implements solana.Client.SubmitTransaction. Rejected
// transactions leave the ledger untouched and return a *solana.TransactionError,
// matching a node with preflight checks enabled.
func (l *Ledger) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(MethodSendTransaction); err != nil {
		return solana.Signature{}, err
	}

	if len(txn.Signatures) == 0 {
		return solana.Signature{}, solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}
	sig := txn.Signature()

	if err := txn.VerifySignatures(); err != nil {
		return sig, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}
	if _, ok := l.blockhashes[txn.Message.RecentBlockhash]; !ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}
	if _, ok := l.statuses[sig]; ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorAlreadyProcessed)
	}

	fee := LamportsPerSignature * uint64(len(txn.Signatures))
	payer, ok := l.accounts[key(txn.Message.Accounts[0])]
	if !ok || payer.lamports == 0 {
		return sig, solana.NewTransactionError(solana.TransactionErrorAccountNotFound)
	}
	if payer.lamports < fee {
		return sig, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}

	state := &execution{
		ledger:   l,
		message:  txn.Message,
		accounts: make(map[string]*account),
	}
	state.load(txn.Message.Accounts[0]).lamports -= fee

	for i := range txn.Message.Instructions {
		if txErr := state.execute(i); txErr != nil {
			return sig, txErr
		}
	}

	for k, v := range state.accounts {
		l.accounts[k] = v
	}

	l.slot++
	l.statuses[sig] = &status{slot: l.slot}
	l.submitted = append(l.submitted, txn)

	return sig, nil
}

func (l *Ledger) begin(method string) error {
	l.calls[method]++
	return l.injected[method]
}

// execution applies a transaction's instructions to copies of the accounts it
// touches, so a failing instruction leaves the ledger unchanged.
type execution struct {
	ledger   *Ledger
	message  solana.Message
	accounts map[string]*account
}

func (e *execution) load(pub ed25519.PublicKey) *account {
	k := key(pub)
	if a, ok := e.accounts[k]; ok {
		return a
	}

	a, ok := e.ledger.accounts[k]
	if ok {
		a = a.clone()
	} else {
		a = &account{owner: system.ProgramKey[:]}
	}

	e.accounts[k] = a
	return a
}

func (e *execution) isSigner(pub ed25519.PublicKey) bool {
	for i := 0; i < int(e.message.Header.NumSignatures); i++ {
		if bytes.Equal(e.message.Accounts[i], pub) {
			return true
		}
	}
	return false
}

func (e *execution) execute(index int) *solana.TransactionError {
	i := e.message.Instructions[index]
	program := e.message.Accounts[i.ProgramIndex]

	if bytes.Equal(program, system.ProgramKey[:]) {
		return e.executeSystem(index)
	}

	deployed, ok := e.ledger.accounts[key(program)]
	if !ok || !deployed.executable {
		return instructionError(index, errors.New(string(solana.InstructionErrorUnsupportedProgramID)))
	}

	return e.executeVote(index, program)
}

func (e *execution) executeSystem(index int) *solana.TransactionError {
	if create, err := system.DecompileCreateAccountWithSeed(e.message, index); err == nil {
		return e.createAccount(index, create.Funder, create.Address, create.Lamports, create.Size, create.Owner, func() error {
			if !e.isSigner(create.Base) {
				return errMissingSignature
			}
			if len(create.Seed) > 32 {
				return system.ErrMaxSeedLengthExceeded
			}

			expected, err := solana.CreateWithSeed(create.Base, create.Seed, create.Owner)
			if err != nil || !bytes.Equal(expected, create.Address) {
				return system.ErrAddressWithSeedMismatch
			}
			return nil
		})
	}

	if create, err := system.DecompileCreateAccount(e.message, index); err == nil {
		return e.createAccount(index, create.Funder, create.Address, create.Lamports, create.Size, create.Owner, func() error {
			if !e.isSigner(create.Address) {
				return errMissingSignature
			}
			return nil
		})
	}

	return instructionError(index, errors.New(string(solana.InstructionErrorInvalidInstructionData)))
}

// createAccount runs the checks shared by the create instructions. verify
// validates the new address and returns the instruction error to fail with.
func (e *execution) createAccount(index int, funder, address ed25519.PublicKey, lamports, size uint64, owner ed25519.PublicKey, verify func() error) *solana.TransactionError {
	if !e.isSigner(funder) {
		return instructionError(index, errMissingSignature)
	}
	if err := verify(); err != nil {
		return instructionError(index, err)
	}

	to := e.load(address)
	if to.exists() {
		return instructionError(index, system.ErrAccountAlreadyInUse)
	}

	from := e.load(funder)
	if from.lamports < lamports {
		return instructionError(index, system.ErrResultWithNegativeLamports)
	}

	if lamports < RentExemptBalance(size) {
		return solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForRent)
	}

	from.lamports -= lamports
	to.lamports = lamports
	to.data = make([]byte, size)
	to.owner = append(ed25519.PublicKey{}, owner...)

	return nil
}

func (e *execution) executeVote(index int, program ed25519.PublicKey) *solana.TransactionError {
	cast, err := vote.DecompileCast(e.message, index, program)
	if err != nil {
		return instructionError(index, errors.New(string(solana.InstructionErrorInvalidInstructionData)))
	}

	target := e.load(cast.VoteAccount)
	if !bytes.Equal(target.owner, program) {
		return instructionError(index, errors.New(string(solana.InstructionErrorIncorrectProgramID)))
	}

	var tally vote.Account
	if err := tally.Unmarshal(target.data); err != nil {
		return instructionError(index, errors.New(string(solana.InstructionErrorInvalidAccountData)))
	}

	tally.Apply(cast.Choice)
	copy(target.data, tally.Marshal())

	return nil
}

func (a *account) exists() bool {
	return a.lamports > 0 || len(a.data) > 0 || !bytes.Equal(a.owner, system.ProgramKey[:])
}

func instructionError(index int, err error) *solana.TransactionError {
	txErr, _ := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: index,
		Err:   err,
	})
	return txErr
}

func key(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}
