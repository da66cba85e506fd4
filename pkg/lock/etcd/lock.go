package etcd

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/code-payments/vote-provisioner/pkg/lock"
)

var errClosed = errors.New("lock manager is closed")

// LockManager hands out etcd backed locks. Each acquisition runs in its own
// lease, so locks contend even when created by the same LockManager.
type LockManager struct {
	log     *logrus.Entry
	client  *v3.Client
	rootKey string
	lockTTL int

	mu       sync.Mutex
	closed   bool
	sessions map[*concurrency.Session]struct{}
}

func NewLockManager(client *v3.Client, rootKey string, lockTTL time.Duration) (*LockManager, error) {
	// We safety bound the TTL for locks to be within reason.
	//
	// WithTTL() will default the TTL to 60 seconds if TTL <= 0 || TTL > 60 seconds.
	if lockTTL < time.Second || lockTTL > time.Minute {
		return nil, errors.Errorf("invalid lock ttl: %s (must be [1s, 60s])", lockTTL)
	}

	return &LockManager{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "lock/etcd",
			"root": rootKey,
		}),
		client:   client,
		rootKey:  rootKey,
		lockTTL:  int(lockTTL.Round(time.Second).Seconds()),
		sessions: make(map[*concurrency.Session]struct{}),
	}, nil
}

// Create implements lock.Manager.
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.closed {
		return nil, errClosed
	}

	key := path.Join(lm.rootKey, name)
	return &Lock{
		log: lm.log.WithField("key", key),
		lm:  lm,
		key: key,
	}, nil
}

// Close will close the lock manager, _and all locked locks created by the lock manager will become unlocked_.
func (lm *LockManager) Close() {
	lm.mu.Lock()
	sessions := lm.sessions
	lm.sessions = make(map[*concurrency.Session]struct{})
	lm.closed = true
	lm.mu.Unlock()

	for session := range sessions {
		if err := session.Close(); err != nil {
			lm.log.WithError(err).Warn("failed to close etcd session on close")
		}
	}
}

func (lm *LockManager) newSession() (*concurrency.Session, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.closed {
		return nil, errClosed
	}

	session, err := concurrency.NewSession(
		lm.client,
		concurrency.WithTTL(lm.lockTTL),
		concurrency.WithContext(v3.WithRequireLeader(context.Background())),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create etcd session")
	}

	lm.sessions[session] = struct{}{}
	return session, nil
}

func (lm *LockManager) releaseSession(session *concurrency.Session) {
	lm.mu.Lock()
	delete(lm.sessions, session)
	lm.mu.Unlock()

	if err := session.Close(); err != nil {
		lm.log.WithError(err).Debug("failed to close etcd session")
	}
}

type Lock struct {
	log *logrus.Entry
	lm  *LockManager
	key string

	mu       sync.Mutex
	mutex    *concurrency.Mutex
	unlockCh chan struct{}
	lostCh   chan struct{}
}

// Acquire implements lock.DistributedLock.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex != nil {
		return nil, errors.New("cannot call Acquire concurrently")
	}

	session, err := l.lm.newSession()
	if err != nil {
		return nil, err
	}

	mutex := concurrency.NewMutex(session, l.key)
	if err := mutex.Lock(ctx); err != nil {
		l.lm.releaseSession(session)
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	l.log.Debug("Lock acquired")

	unlockCh := make(chan struct{})
	lostCh := make(chan struct{})
	l.mutex = mutex
	l.unlockCh = unlockCh
	l.lostCh = lostCh

	go func() {
		select {
		case <-session.Done():
			l.log.Warn("Session closed/ended, releasing lock")
		case <-ctx.Done():
		case <-unlockCh:
		}

		l.mu.Lock()
		l.mutex = nil
		l.unlockCh = nil
		l.mu.Unlock()

		// Close lostCh before cleaning up, since the key can't be deleted until
		// the leader is reachable again.
		close(lostCh)

		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mutex.Unlock(unlockCtx); err != nil {
			l.log.WithError(err).Debug("Failed to unlock on cleanup")
		}
		l.lm.releaseSession(session)
	}()

	return lostCh, nil
}

// Unlock implements lock.DistributedLock
func (l *Lock) Unlock(_ context.Context) error {
	l.mu.Lock()
	unlockCh := l.unlockCh
	lostCh := l.lostCh
	l.unlockCh = nil
	l.mu.Unlock()

	if unlockCh == nil {
		return nil
	}

	close(unlockCh)
	<-lostCh
	return nil
}

// IsLocked implements lock.DistributedLock
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.mutex != nil
}
