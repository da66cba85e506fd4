package testutil

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// Importing testutil enables every log level, so hooks see all entries, while
// keeping output quiet unless the tests run verbosely.
func init() {
	logrus.SetLevel(logrus.TraceLevel)
	if !verbose() {
		logrus.SetOutput(io.Discard)
	}
}

func verbose() bool {
	for _, arg := range os.Args[1:] {
		if arg == "-test.v" || strings.HasPrefix(arg, "-test.v=") && arg != "-test.v=false" {
			return true
		}
	}
	return false
}

// CaptureLogs records every entry written to the standard logger until reset
// is called.
func CaptureLogs() (hook *test.Hook, reset func()) {
	hook = test.NewLocal(logrus.StandardLogger())
	return hook, func() {
		logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	}
}

// FindLogEntry returns the first captured entry at level whose message is msg.
func FindLogEntry(hook *test.Hook, level logrus.Level, msg string) *logrus.Entry {
	for _, entry := range hook.AllEntries() {
		if entry.Level == level && entry.Message == msg {
			return entry
		}
	}
	return nil
}
