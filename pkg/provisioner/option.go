package provisioner

import (
	"time"

	"github.com/code-payments/vote-provisioner/pkg/cliconfig"
	"github.com/code-payments/vote-provisioner/pkg/lock"
	"github.com/code-payments/vote-provisioner/pkg/solana"
)

const (
	DefaultProgramKeypairPath = "dist/program/vote-keypair.json"

	defaultConfirmationAttempts = 64
)

// ClientFactory dials a ledger client for an RPC endpoint.
type ClientFactory func(endpoint string) solana.Client

// Option configures a Provisioner.
type Option func(o *opts)

type opts struct {
	programKeypairPath string
	cliConfigPath      string
	commitment         *solana.Commitment
	lockManager        lock.Manager
	clientFactory      ClientFactory

	pollInterval         time.Duration
	confirmationAttempts uint
}

func defaultOpts() opts {
	return opts{
		programKeypairPath:   DefaultProgramKeypairPath,
		cliConfigPath:        cliconfig.DefaultPath(),
		clientFactory:        solana.New,
		pollInterval:         solana.PollRate,
		confirmationAttempts: defaultConfirmationAttempts,
	}
}

// WithProgramKeypairPath sets the location of the program's deployment keypair.
func WithProgramKeypairPath(path string) Option {
	return func(o *opts) {
		o.programKeypairPath = path
	}
}

// WithCLIConfigPath sets the location of the Solana CLI config file.
func WithCLIConfigPath(path string) Option {
	return func(o *opts) {
		o.cliConfigPath = path
	}
}

// WithCommitment overrides the commitment from the CLI config. Without either,
// solana.CommitmentConfirmed is used.
func WithCommitment(commitment solana.Commitment) Option {
	return func(o *opts) {
		o.commitment = &commitment
	}
}

// WithLockManager serializes the existence check and the creation of the vote
// account across every provisioner sharing m.
func WithLockManager(m lock.Manager) Option {
	return func(o *opts) {
		o.lockManager = m
	}
}

// WithClientFactory replaces the JSON-RPC client used to reach the ledger.
func WithClientFactory(factory ClientFactory) Option {
	return func(o *opts) {
		o.clientFactory = factory
	}
}

// WithConfirmationPolling configures how often, and how many times, the
// signature status of the creation transaction is polled.
func WithConfirmationPolling(interval time.Duration, attempts uint) Option {
	return func(o *opts) {
		o.pollInterval = interval
		o.confirmationAttempts = attempts
	}
}
