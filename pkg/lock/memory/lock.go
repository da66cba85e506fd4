// Package memory provides a process local lock.Manager.
package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/lock"
)

type manager struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// New returns a new in memory lock.Manager
func New() lock.Manager {
	return &manager{
		slots: make(map[string]chan struct{}),
	}
}

// Create implements lock.Manager.Create
func (m *manager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		m.slots[name] = slot
	}

	return &memoryLock{slot: slot}, nil
}

type memoryLock struct {
	slot chan struct{}

	mu     sync.Mutex
	held   bool
	lostCh chan struct{}
	stopFn context.CancelFunc
}

// Acquire implements lock.DistributedLock.Acquire
func (l *memoryLock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.held {
		l.mu.Unlock()
		return nil, errors.New("cannot call Acquire concurrently")
	}
	l.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	watchCtx, stop := context.WithCancel(ctx)
	lostCh := make(chan struct{})

	l.mu.Lock()
	l.held = true
	l.lostCh = lostCh
	l.stopFn = stop
	l.mu.Unlock()

	go func() {
		<-watchCtx.Done()
		l.release(lostCh)
	}()

	return lostCh, nil
}

// Unlock implements lock.DistributedLock.Unlock
func (l *memoryLock) Unlock(_ context.Context) error {
	l.mu.Lock()
	stop := l.stopFn
	lostCh := l.lostCh
	l.mu.Unlock()

	if stop == nil {
		return nil
	}

	stop()
	<-lostCh
	return nil
}

// IsLocked implements lock.DistributedLock.IsLocked
func (l *memoryLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held
}

func (l *memoryLock) release(lostCh chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lostCh != lostCh {
		return
	}

	l.held = false
	l.lostCh = nil
	l.stopFn = nil
	<-l.slot
	close(lostCh)
}
