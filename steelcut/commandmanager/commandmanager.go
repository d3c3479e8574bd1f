package commandmanager

import (
	"context"
	"errors"
	"time"
)

// ErrCommandFailed is wrapped by every error returned for a command that
// ran but exited non-zero.
var ErrCommandFailed = errors.New("command failed")

// CommandConfig describes a single command invocation.
type CommandConfig struct {
	Command string
	Args    []string
	Stdin   string        // fed to the command's standard input when non-empty
	Timeout time.Duration // overrides the manager's default when non-zero
}

// CommandResult encapsulates the results from a command execution.
type CommandResult struct {
	Command   string
	STDOUT    string
	STDERR    string
	ExitCode  int
	Duration  time.Duration
	Timestamp time.Time
}

// CommandManager executes administration commands on the local system.
type CommandManager interface {
	// Run executes the command and returns its result. A non-zero exit
	// yields both a populated result and an error wrapping ErrCommandFailed.
	Run(ctx context.Context, config CommandConfig) (CommandResult, error)
}
