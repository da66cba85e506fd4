// Package etcdtest runs a single etcd node in docker for integration tests.
package etcdtest

import (
	"context"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	image = "quay.io/coreos/etcd"
	tag   = "v3.5.13"

	clientPort = "2379/tcp"

	containerAutoKill = 120 * time.Second
)

// Node is a running etcd container.
type Node struct {
	Endpoint string
	Client   *clientv3.Client

	pool     *dockertest.Pool
	resource *dockertest.Resource
}

// Start runs an etcd node and waits until Client can read from it. The node
// is removed by Close, or by docker once containerAutoKill elapses.
func Start(pool *dockertest.Pool) (*Node, error) {
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        tag,
		Env: []string{
			"ETCD_LISTEN_CLIENT_URLS=http://0.0.0.0:2379",
			"ETCD_ADVERTISE_CLIENT_URLS=http://0.0.0.0:2379",
		},
		ExposedPorts: []string{clientPort},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to start etcd")
	}
	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	n := &Node{
		Endpoint: "localhost:" + resource.GetPort(clientPort),
		pool:     pool,
		resource: resource,
	}

	n.Client, err = clientv3.New(clientv3.Config{
		Endpoints:   []string{n.Endpoint},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		n.Close()
		return nil, errors.Wrap(err, "failed to create etcd client")
	}

	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_, err := n.Client.Get(ctx, "health")
		return err
	})
	if err != nil {
		n.Close()
		return nil, errors.Wrap(err, "etcd did not become ready")
	}

	return n, nil
}

// Close disconnects the client and removes the container.
func (n *Node) Close() {
	log := logrus.StandardLogger().WithFields(logrus.Fields{
		"type":     "etcdtest",
		"endpoint": n.Endpoint,
	})

	if n.Client != nil {
		if err := n.Client.Close(); err != nil {
			log.WithError(err).Warn("failed to close etcd client")
		}
	}
	if err := n.pool.Purge(n.resource); err != nil {
		log.WithError(err).Error("failed to remove etcd container")
	}
}
