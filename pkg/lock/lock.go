package lock

import (
	"context"

	"github.com/pkg/errors"
)

// ErrLockLost is returned by Do when the lock was lost before fn completed.
var ErrLockLost = errors.New("lock lost")

// Manager creates and manages locks.
//
// Every DistributedLock contends with every other DistributedLock for the same
// name, including those created by the same Manager. This lets a single
// process coordinate goroutines with the same primitive it uses to coordinate
// processes.
type Manager interface {
	// Create creates an unlocked DistributedLock for a specific key.
	Create(ctx context.Context, name string) (DistributedLock, error)
}

// DistributedLock is a handle to a distributed lock that spans across multiple
// processes.
type DistributedLock interface {
	// Acquire attempts to acquire the lock, blocking until the lock has been
	// successfully acquired.
	//
	// The returned channel is a channel that will be closed when the lock is lost.
	// The lock can be lost when the context is cancelled, Unlock() is called, or
	// the underlying implementation detects that the lock _might_ have been lost.
	Acquire(ctx context.Context) (<-chan struct{}, error)

	// Unlock unlocks the lock, if the lock is held.
	//
	// Unlock is idempotent.
	Unlock(ctx context.Context) error

	// IsLocked returns whether the lock is held by this handle.
	IsLocked() bool
}

// Do runs fn while holding the lock for name. The context passed to fn is
// cancelled if the lock is lost. ErrLockLost is returned only when fn gave up
// because of that cancellation; a nil or unrelated error from fn is returned
// as is.
func Do(ctx context.Context, m Manager, name string, fn func(ctx context.Context) error) error {
	l, err := m.Create(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "failed to create lock %s", name)
	}

	lostCh, err := l.Acquire(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to acquire lock %s", name)
	}

	fnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wasLost bool
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)

		select {
		case <-lostCh:
			wasLost = true
			cancel()
		case <-done:
		}
	}()

	fnErr := fn(fnCtx)
	close(done)
	<-exited

	unlockErr := l.Unlock(context.Background())

	switch {
	case wasLost && errors.Is(fnErr, context.Canceled):
		return ErrLockLost
	case fnErr != nil:
		return fnErr
	case wasLost:
		// fn completed before noticing, so its work stands.
		return nil
	}
	return errors.Wrapf(unlockErr, "failed to unlock %s", name)
}
