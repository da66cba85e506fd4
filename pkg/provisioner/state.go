package provisioner

import (
	"github.com/code-payments/vote-provisioner/pkg/cliconfig"
	"github.com/code-payments/vote-provisioner/pkg/common"
	"github.com/code-payments/vote-provisioner/pkg/solana"
	"github.com/code-payments/vote-provisioner/pkg/solana/vote"
)

// Stage is the point a provisioning run has reached.
type Stage uint8

const (
	StageUninitialized Stage = iota
	StageProgramResolved
	StageConnectionEstablished
	StagePayerResolved
	StageTargetDerived
	StageProvisioned
	StageAlreadyExists
)

func (s Stage) String() string {
	switch s {
	case StageUninitialized:
		return "uninitialized"
	case StageProgramResolved:
		return "program-resolved"
	case StageConnectionEstablished:
		return "connection-established"
	case StagePayerResolved:
		return "payer-resolved"
	case StageTargetDerived:
		return "target-derived"
	case StageProvisioned:
		return "provisioned"
	case StageAlreadyExists:
		return "already-exists"
	}
	return "unknown"
}

// State is a snapshot of a provisioning run. Steps never modify the State they
// are given; they return an advanced copy.
type State struct {
	Stage Stage
	RunID string

	// Set once StageProgramResolved is reached.
	Program *common.Account

	// Set once StageConnectionEstablished is reached.
	Config     cliconfig.Config
	Endpoint   string
	Client     solana.Client
	Commitment solana.Commitment
	Version    solana.Version

	// Set once StagePayerResolved is reached. Payer holds a private key.
	Payer *common.Account

	// Set once StageTargetDerived is reached.
	VoteAccount *common.Account

	// Set when StageAlreadyExists is reached.
	Existing *solana.AccountInfo
	Tally    *vote.Account

	// Set when StageProvisioned is reached.
	Lamports  uint64
	Signature solana.Signature
}

// Done reports whether the run reached a terminal stage.
func (s State) Done() bool {
	return s.Stage == StageProvisioned || s.Stage == StageAlreadyExists
}

func (s State) expect(stage Stage) error {
	if s.Stage != stage {
		return &StageError{Expected: stage, Actual: s.Stage}
	}
	return nil
}
