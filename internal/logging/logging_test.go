package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLevelAcceptsKnownNames(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	require.NoError(t, SetLevel("warn"))
	require.NoError(t, SetLevel("info"))
}

func TestSetLevelFallsBackOnUnknownName(t *testing.T) {
	require.NoError(t, SetLevel("not-a-real-level"))
}

func TestLDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		Info("hello")
	})
}
