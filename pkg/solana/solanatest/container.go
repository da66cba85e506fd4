// Package solanatest runs a local test validator in docker for integration
// tests.
package solanatest

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/vote-provisioner/pkg/solana"
)

const (
	imageName = "solanalabs/solana"
	imageTag  = "v1.18.26"

	containerAutoKill = 300 * time.Second
)

// StartValidator runs solana-test-validator in docker. It returns the JSON-RPC
// endpoint along with a client connected to it. teardown is always safe to
// call.
func StartValidator(pool *dockertest.Pool) (endpoint string, client solana.Client, teardown func(), err error) {
	teardown = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository:   imageName,
		Tag:          imageTag,
		Entrypoint:   []string{"solana-test-validator"},
		Cmd:          []string{"--reset", "--quiet", "--ledger", "/tmp/test-ledger"},
		ExposedPorts: []string{"8899/tcp"},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return "", nil, teardown, errors.Wrap(err, "failed to start solana-test-validator")
	}

	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	log := logrus.StandardLogger().WithField("type", "solanatest")

	teardown = func() {
		if err := pool.Purge(resource); err != nil {
			log.WithError(err).Error("failed to cleanup validator resource")
		}
	}

	endpoint = fmt.Sprintf("http://localhost:%s", resource.GetPort("8899/tcp"))
	client = solana.New(endpoint)

	pool.MaxWait = 2 * time.Minute
	err = pool.Retry(func() error {
		if _, err := client.GetVersion(); err != nil {
			return err
		}

		// The validator answers getVersion before it starts producing blocks.
		_, err := client.GetLatestBlockhash()
		return err
	})
	if err != nil {
		return "", nil, teardown, errors.Wrap(err, "failed waiting for validator")
	}

	return endpoint, client, teardown, nil
}

// Fund airdrops lamports to account and waits for the airdrop to be
// confirmed.
func Fund(client solana.Client, account ed25519.PublicKey, lamports uint64) error {
	sig, err := client.RequestAirdrop(account, lamports, solana.CommitmentConfirmed)
	if err != nil {
		return errors.Wrap(err, "failed to request airdrop")
	}

	status, err := client.GetSignatureStatus(sig, solana.CommitmentConfirmed)
	if err != nil {
		return errors.Wrap(err, "failed to confirm airdrop")
	}
	if status.ErrorResult != nil {
		return errors.Wrap(status.ErrorResult, "airdrop failed")
	}

	return nil
}
