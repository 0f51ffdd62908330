package segment

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEpoch(t *testing.T) {
	epoch, ok := ParseEpoch("42.log")
	require.True(t, ok)
	require.Equal(t, uint64(42), epoch)

	_, ok = ParseEpoch("not-a-segment.txt")
	require.False(t, ok)
}

func TestDiscoverOrdersAscending(t *testing.T) {
	dir := t.TempDir()
	for _, e := range []uint64{5, 1, 3} {
		f, err := OpenForAppend(dir, e)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	// a non-segment file must be ignored.
	require.NoError(t, os.WriteFile(dir+"/engine", []byte("kvs"), 0o644))

	epochs, err := Discover(dir)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3, 5}, epochs)
}

func TestOpenForAppendIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	f1, err := OpenForAppend(dir, 1)
	require.NoError(t, err)
	_, err = f1.WriteString("a")
	require.NoError(t, err)
	require.NoError(t, f1.Close())

	f2, err := OpenForAppend(dir, 1)
	require.NoError(t, err)
	_, err = f2.WriteString("b")
	require.NoError(t, err)
	require.NoError(t, f2.Close())

	size, err := Size(dir, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), size)
}

func TestRemoveMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Remove(dir, 999))
}

func TestSizeOfMissingIsZero(t *testing.T) {
	dir := t.TempDir()
	size, err := Size(dir, 999)
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
}
