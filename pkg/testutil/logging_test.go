package testutil

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureLogs(t *testing.T) {
	hook, reset := CaptureLogs()

	logrus.StandardLogger().WithField("type", "testutil").Warn("something happened")
	logrus.StandardLogger().Info("something else")

	entry := FindLogEntry(hook, logrus.WarnLevel, "something happened")
	require.NotNil(t, entry)
	assert.Equal(t, "testutil", entry.Data["type"])
	assert.Nil(t, FindLogEntry(hook, logrus.WarnLevel, "something else"))

	reset()
	logrus.StandardLogger().Warn("after reset")
	assert.Nil(t, FindLogEntry(hook, logrus.WarnLevel, "after reset"))
}
