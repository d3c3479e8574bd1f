package commandmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLocal(t *testing.T) {
	manager := NewUnixCommandManager(5*time.Second, nil)

	result, err := manager.Run(context.Background(), CommandConfig{
		Command: "echo",
		Args:    []string{"hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello\n", result.STDOUT)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "echo", result.Command)
}

func TestRunStdin(t *testing.T) {
	manager := NewUnixCommandManager(5*time.Second, nil)

	result, err := manager.Run(context.Background(), CommandConfig{
		Command: "cat",
		Stdin:   "alice:secret\n",
	})

	require.NoError(t, err)
	assert.Equal(t, "alice:secret\n", result.STDOUT)
}

func TestRunNonZeroExit(t *testing.T) {
	manager := NewUnixCommandManager(5*time.Second, nil)

	result, err := manager.Run(context.Background(), CommandConfig{
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 2"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 2, result.ExitCode)
}

func TestRunMissingBinary(t *testing.T) {
	manager := NewUnixCommandManager(5*time.Second, nil)

	_, err := manager.Run(context.Background(), CommandConfig{
		Command: "definitely-not-a-real-binary-xyz",
	})

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCommandFailed))
}

func TestRunTimeout(t *testing.T) {
	manager := NewUnixCommandManager(5*time.Second, nil)

	_, err := manager.Run(context.Background(), CommandConfig{
		Command: "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
