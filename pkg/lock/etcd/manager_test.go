package etcd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewLockManager_TTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 61 * time.Second} {
		_, err := NewLockManager(nil, "/locks", ttl)
		assert.Error(t, err, ttl)
	}

	lm, err := NewLockManager(nil, "/locks", 1500*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 2, lm.lockTTL)
}
