// Package provisioner creates the data account backing the vote program.
//
// The account lives at the address derived from the payer, the "vote" seed and
// the program, so every run against the same cluster and payer targets the
// same account. A run that finds the account already present does nothing.
package provisioner

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/vote-provisioner/pkg/cliconfig"
	"github.com/code-payments/vote-provisioner/pkg/common"
	"github.com/code-payments/vote-provisioner/pkg/lock"
	"github.com/code-payments/vote-provisioner/pkg/metrics"
	"github.com/code-payments/vote-provisioner/pkg/retry"
	"github.com/code-payments/vote-provisioner/pkg/retry/backoff"
	"github.com/code-payments/vote-provisioner/pkg/solana"
	"github.com/code-payments/vote-provisioner/pkg/solana/system"
	"github.com/code-payments/vote-provisioner/pkg/solana/vote"
)

const (
	// VoteAccountSeed is the seed combined with the payer and program to derive
	// the vote account address.
	VoteAccountSeed = "vote"

	metricsStructName = "provisioner.Provisioner"

	provisioningEventName    = "VoteAccountProvisioning"
	provisioningDurationName = "VoteAccountProvisioningDuration"
	rentLamportsMetricName   = "VoteAccountRentLamports"
)

var errNotConfirmed = errors.New("commitment not reached")

// OutcomeType is how a successful run ended.
type OutcomeType uint8

const (
	OutcomeUnknown OutcomeType = iota
	OutcomeCreated
	OutcomeAlreadyExists
)

func (t OutcomeType) String() string {
	switch t {
	case OutcomeCreated:
		return "created"
	case OutcomeAlreadyExists:
		return "already-exists"
	}
	return "unknown"
}

// Outcome describes a successful run.
type Outcome struct {
	Type        OutcomeType
	RunID       string
	Program     *common.Account
	Payer       *common.Account
	VoteAccount *common.Account

	// Set when Type is OutcomeCreated.
	Lamports  uint64
	Space     uint64
	Signature solana.Signature

	// Set when Type is OutcomeAlreadyExists and the account has the vote
	// record layout.
	Tally *vote.Account
}

// Provisioner walks a run from an uninitialized State to either
// StageProvisioned or StageAlreadyExists.
type Provisioner struct {
	log  *logrus.Entry
	opts opts
}

func New(options ...Option) *Provisioner {
	o := defaultOpts()
	for _, opt := range options {
		opt(&o)
	}

	return &Provisioner{
		log:  logrus.StandardLogger().WithField("type", "provisioner/provisioner"),
		opts: o,
	}
}

// Provision runs every step in order. The existence check and creation happen
// under a lock keyed by the vote account when a lock.Manager is configured.
func (p *Provisioner) Provision(ctx context.Context) (*Outcome, error) {
	s := State{RunID: uuid.New().String()}
	log := p.log.WithField("run_id", s.RunID)

	ctx, end := metrics.StartTransaction(ctx, "vote-provisioner provision")
	defer end()

	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Provision")
	defer tracer.End()

	start := time.Now()
	s, err := p.provision(ctx, s)
	metrics.RecordDuration(ctx, provisioningDurationName, time.Since(start))

	event := map[string]interface{}{
		"run_id": s.RunID,
		"stage":  s.Stage.String(),
	}
	if s.VoteAccount != nil {
		event["vote_account"] = s.VoteAccount.String()
	}
	if err != nil {
		event["error"] = err.Error()
		metrics.RecordEvent(ctx, provisioningEventName, event)
		tracer.OnError(err)

		log.WithError(err).WithField("stage", s.Stage.String()).Error("provisioning failed")
		return nil, err
	}

	outcome := outcomeFromState(s)
	event["outcome"] = outcome.Type.String()
	metrics.RecordEvent(ctx, provisioningEventName, event)
	tracer.AddAttribute("outcome", outcome.Type.String())
	if outcome.Type == OutcomeCreated {
		metrics.RecordCount(ctx, rentLamportsMetricName, outcome.Lamports)
	}

	return outcome, nil
}

func (p *Provisioner) provision(ctx context.Context, s State) (State, error) {
	for _, step := range []func(context.Context, State) (State, error){
		p.ResolveProgram,
		p.Connect,
		p.ResolvePayer,
		p.DeriveTarget,
	} {
		next, err := step(ctx, s)
		if err != nil {
			return s, err
		}
		s = next
	}

	if p.opts.lockManager == nil {
		return p.checkAndCreate(ctx, s)
	}

	result := s
	err := lock.Do(ctx, p.opts.lockManager, lockName(s.VoteAccount), func(ctx context.Context) error {
		var err error
		result, err = p.checkAndCreate(ctx, s)
		return err
	})
	switch {
	case err == nil:
		return result, nil
	case result.Done():
		// The ledger already reflects the run.
		p.log.WithError(err).WithFields(logrus.Fields{
			"run_id":       s.RunID,
			"vote_account": s.VoteAccount.String(),
		}).Warn("lock released uncleanly after the run completed")
		return result, nil
	default:
		return s, err
	}
}

func (p *Provisioner) checkAndCreate(ctx context.Context, s State) (State, error) {
	next, exists, err := p.CheckExistence(ctx, s)
	if err != nil {
		return s, err
	}
	if exists {
		return next, nil
	}

	next, err = p.Create(ctx, next)
	if err != nil {
		return s, err
	}
	return next, nil
}

// ResolveProgram loads the program identity from its deployment keypair.
func (p *Provisioner) ResolveProgram(ctx context.Context, s State) (State, error) {
	if err := s.expect(StageUninitialized); err != nil {
		return s, err
	}
	if err := ctx.Err(); err != nil {
		return s, err
	}

	keypair, err := common.LoadAccountFromKeypairFile(p.opts.programKeypairPath)
	if err != nil {
		return s, errors.Wrapf(ErrProgramNotDeployed, "%s: %v", p.opts.programKeypairPath, err)
	}

	// Only the address is needed from here on.
	program, err := common.NewAccountFromPublicKey(keypair.PublicKey())
	if err != nil {
		return s, errors.Wrapf(ErrInvalidIdentity, "program: %v", err)
	}

	s.Program = program
	s.Stage = StageProgramResolved

	p.logger(s).Debug("program resolved")
	return s, nil
}

// Connect reads the Solana CLI config and verifies the configured node
// responds. A missing or broken config falls back to the local validator.
func (p *Provisioner) Connect(ctx context.Context, s State) (State, error) {
	if err := s.expect(StageProgramResolved); err != nil {
		return s, err
	}
	if err := ctx.Err(); err != nil {
		return s, err
	}

	result := cliconfig.Load(p.opts.cliConfigPath)
	if result.Fallback != nil {
		p.logger(s).WithError(result.Fallback).Warnf("using default endpoint %s", result.Config.RPCURL())
	}

	commitment, err := p.commitment(s, result.Config)
	if err != nil {
		return s, err
	}

	endpoint := result.Config.RPCURL()
	client := p.opts.clientFactory(endpoint)

	version, err := client.GetVersion()
	if err != nil {
		return s, errors.Wrapf(err, "failed to reach %s", endpoint)
	}

	s.Config = result.Config
	s.Endpoint = endpoint
	s.Client = client
	s.Commitment = commitment
	s.Version = version
	s.Stage = StageConnectionEstablished

	p.logger(s).WithFields(logrus.Fields{
		"solana_core": version.SolanaCore,
		"commitment":  commitment.Commitment,
	}).Info("connected to cluster")
	return s, nil
}

func (p *Provisioner) commitment(s State, config cliconfig.Config) (solana.Commitment, error) {
	if p.opts.commitment != nil {
		return *p.opts.commitment, nil
	}
	if len(config.Commitment) == 0 {
		return solana.CommitmentConfirmed, nil
	}

	commitment, err := solana.CommitmentFromString(config.Commitment)
	if err != nil {
		p.logger(s).WithError(err).Warn("ignoring configured commitment")
		return solana.CommitmentConfirmed, nil
	}
	return commitment, nil
}

// ResolvePayer loads the payer keypair named by the CLI config. It runs before
// any account is queried so a misconfigured payer never reaches the ledger.
func (p *Provisioner) ResolvePayer(ctx context.Context, s State) (State, error) {
	if err := s.expect(StageConnectionEstablished); err != nil {
		return s, err
	}
	if err := ctx.Err(); err != nil {
		return s, err
	}

	path := s.Config.KeypairPath
	if len(path) == 0 {
		return s, errors.Wrap(ErrMissingPayer, "no keypair_path in solana cli config")
	}

	payer, err := common.LoadAccountFromKeypairFile(path)
	if err != nil {
		return s, errors.Wrapf(ErrMissingPayer, "%s: %v", path, err)
	}

	s.Payer = payer
	s.Stage = StagePayerResolved

	p.logger(s).Debug("payer resolved")
	return s, nil
}

// DeriveTarget computes the vote account address.
func (p *Provisioner) DeriveTarget(ctx context.Context, s State) (State, error) {
	if err := s.expect(StagePayerResolved); err != nil {
		return s, err
	}

	voteAccount, err := s.Payer.ToSeedAccount(VoteAccountSeed, s.Program)
	if err != nil {
		return s, errors.Wrapf(ErrInvalidIdentity, "vote account: %v", err)
	}

	s.VoteAccount = voteAccount
	s.Stage = StageTargetDerived

	p.logger(s).Info("vote account derived")
	return s, nil
}

// CheckExistence looks the vote account up. When it exists, the returned
// State is in StageAlreadyExists; otherwise it is unchanged.
func (p *Provisioner) CheckExistence(ctx context.Context, s State) (State, bool, error) {
	if err := s.expect(StageTargetDerived); err != nil {
		return s, false, err
	}
	if err := ctx.Err(); err != nil {
		return s, false, err
	}

	log := p.logger(s)

	info, err := s.Client.GetAccountInfo(s.VoteAccount.PublicKey().ToBytes(), s.Commitment)
	if errors.Is(err, solana.ErrNoAccountInfo) {
		log.Debug("vote account not found")
		return s, false, nil
	} else if err != nil {
		return s, false, errors.Wrap(err, "failed to get vote account info")
	}

	s.Existing = &info
	s.Stage = StageAlreadyExists

	log = log.WithFields(logrus.Fields{
		"owner":    base58.Encode(info.Owner),
		"size":     len(info.Data),
		"lamports": info.Lamports,
	})

	if !bytes.Equal(info.Owner, s.Program.PublicKey().ToBytes()) {
		log.Warn("vote account is not owned by the vote program")
	}
	if uint64(len(info.Data)) != vote.Size() {
		log.Warnf("vote account size differs from the expected %d bytes", vote.Size())
		log.Info("vote account already exists")
		return s, true, nil
	}

	var tally vote.Account
	if err := tally.Unmarshal(info.Data); err != nil {
		return s, true, errors.Wrap(err, "failed to decode vote account")
	}
	s.Tally = &tally

	log.WithField("tally", tally.String()).Info("vote account already exists")
	return s, true, nil
}

// Create funds and allocates the vote account, owned by the program, then
// waits for the configured commitment. The transaction is submitted once.
func (p *Provisioner) Create(ctx context.Context, s State) (State, error) {
	if err := s.expect(StageTargetDerived); err != nil {
		return s, err
	}
	if err := ctx.Err(); err != nil {
		return s, err
	}

	log := p.logger(s)

	space := vote.Size()
	lamports, err := s.Client.GetMinimumBalanceForRentExemption(space)
	if err != nil {
		return s, errors.Wrap(err, "failed to get rent exemption balance")
	}

	blockhash, err := s.Client.GetLatestBlockhash()
	if err != nil {
		return s, errors.Wrap(err, "failed to get latest blockhash")
	}

	payer := s.Payer.PublicKey().ToBytes()
	txn := solana.NewTransaction(
		payer,
		system.CreateAccountWithSeed(
			payer,
			s.VoteAccount.PublicKey().ToBytes(),
			payer,
			VoteAccountSeed,
			lamports,
			space,
			s.Program.PublicKey().ToBytes(),
		),
	)
	txn.SetBlockhash(blockhash)
	if err := txn.Sign(s.Payer.PrivateKey().ToBytes()); err != nil {
		return s, errors.Wrap(err, "failed to sign transaction")
	}

	log = log.WithFields(logrus.Fields{
		"signature": txn.Signature().String(),
		"lamports":  lamports,
		"space":     space,
	})
	log.Debug("submitting transaction")

	sig, err := s.Client.SubmitTransaction(txn, s.Commitment)
	if err != nil {
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) && txErr != nil {
			return s, rejected(log, txn.Signature(), txErr)
		}
		return s, errors.Wrap(err, "failed to submit transaction")
	}

	status, err := p.awaitConfirmation(ctx, s, sig)
	if err != nil {
		return s, errors.Wrapf(err, "failed to confirm transaction %s", sig)
	}
	if status.ErrorResult != nil {
		return s, rejected(log, sig, status.ErrorResult)
	}

	s.Lamports = lamports
	s.Signature = sig
	s.Stage = StageProvisioned

	log.WithField("slot", status.Slot).Info("vote account created")
	return s, nil
}

// rejected builds the error for a refused creation. An account that appeared
// after the existence check is still a failure of this run.
func rejected(log *logrus.Entry, sig solana.Signature, txErr *solana.TransactionError) error {
	if system.IsAccountAlreadyInUse(txErr) {
		log.Warn("vote account was created by a concurrent run")
	}
	return &RejectedError{Signature: sig, TxError: txErr}
}

func (p *Provisioner) awaitConfirmation(ctx context.Context, s State, sig solana.Signature) (*solana.SignatureStatus, error) {
	var status *solana.SignatureStatus
	_, err := retry.Retry(
		func() error {
			statuses, err := s.Client.GetSignatureStatuses([]solana.Signature{sig})
			if err != nil {
				return err
			}
			if len(statuses) == 0 || statuses[0] == nil {
				return solana.ErrSignatureNotFound
			}

			status = statuses[0]
			if status.ErrorResult != nil || status.Satisfies(s.Commitment) {
				return nil
			}
			return errNotConfirmed
		},
		retry.Context(ctx),
		retry.RetriableErrors(solana.ErrSignatureNotFound, errNotConfirmed),
		retry.Limit(p.opts.confirmationAttempts),
		retry.BackoffContext(ctx, backoff.Constant(p.opts.pollInterval), p.opts.pollInterval),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return status, nil
}

func (p *Provisioner) logger(s State) *logrus.Entry {
	fields := logrus.Fields{}
	if len(s.RunID) > 0 {
		fields["run_id"] = s.RunID
	}
	if s.Program != nil {
		fields["program"] = s.Program.String()
	}
	if len(s.Endpoint) > 0 {
		fields["endpoint"] = s.Endpoint
	}
	if s.Payer != nil {
		fields["payer"] = s.Payer.String()
	}
	if s.VoteAccount != nil {
		fields["vote_account"] = s.VoteAccount.String()
	}
	return p.log.WithFields(fields)
}

func lockName(voteAccount *common.Account) string {
	return "vote-account/" + voteAccount.String()
}

func outcomeFromState(s State) *Outcome {
	outcome := &Outcome{
		RunID:       s.RunID,
		Program:     s.Program,
		Payer:       s.Payer,
		VoteAccount: s.VoteAccount,
	}

	switch s.Stage {
	case StageProvisioned:
		outcome.Type = OutcomeCreated
		outcome.Lamports = s.Lamports
		outcome.Space = vote.Size()
		outcome.Signature = s.Signature
	case StageAlreadyExists:
		outcome.Type = OutcomeAlreadyExists
		outcome.Tally = s.Tally
	}
	return outcome
}
