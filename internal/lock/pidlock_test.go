package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "state", "claudegram.pid")
	l, err := Acquire(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	pid, err := Holder(lockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.Equal(t, lockPath, l.Path())
}

func TestSecondAcquireFails(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "claudegram.pid")
	first, err := Acquire(lockPath)
	require.NoError(t, err)

	_, err = Acquire(lockPath)
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "pid")

	require.NoError(t, first.Release())
	second, err := Acquire(lockPath)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	l, err := Acquire(filepath.Join(t.TempDir(), "claudegram.pid"))
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	var nilLock *PIDLock
	assert.NoError(t, nilLock.Release())
}

func TestHolderWithoutPID(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "empty.pid")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	_, err := Holder(p)
	assert.Error(t, err)
}

func TestAcquireEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := Acquire("")
	assert.Error(t, err)
}
