package oluacle

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/oluacle/oluacle/internal/ocifake"
)

// connect opens a connection over a fresh fake and closes it at cleanup.
func connect(t *testing.T, opts ...Option) (*ocifake.API, *Connection, *test.Hook) {
	t.Helper()
	f := ocifake.New()
	logger, hook := newHookLogger()
	opts = append([]Option{WithLogger(logger)}, opts...)
	c, err := Connect(NewEnvironment(f), "scott", "tiger", "orcl", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return f, c, hook
}

func newHookLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func hasEntry(hook *test.Hook, level logrus.Level, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}
