package commandmanager

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single command when neither the manager nor the
// command config sets one.
const DefaultTimeout = 30 * time.Second

type UnixCommandManager struct {
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

func NewUnixCommandManager(timeout time.Duration, logger logrus.FieldLogger) *UnixCommandManager {
	return &UnixCommandManager{Timeout: timeout, Logger: logger}
}

func (u *UnixCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = u.Timeout
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(ctx, config.Command, config.Args...)
	if config.Stdin != "" {
		cmd.Stdin = strings.NewReader(config.Stdin)
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if u.Logger != nil {
		u.Logger.WithField("command", config.Command).WithField("args", config.Args).Debug("Running command")
	}

	err := cmd.Run()

	result := CommandResult{
		Command:   config.Command,
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		ExitCode:  getExitCode(err),
		Duration:  time.Since(start),
		Timestamp: start,
	}

	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s %v: %w", config.Command, config.Args, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, commandError(config, result)
	}
	// The command could not be started at all (missing binary, permissions).
	return result, fmt.Errorf("%s %v: %w", config.Command, config.Args, err)
}

func commandError(config CommandConfig, result CommandResult) error {
	msg := strings.TrimSpace(result.STDERR)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", result.ExitCode)
	}
	return fmt.Errorf("%w: %s %v: %s", ErrCommandFailed, config.Command, config.Args, msg)
}

func getExitCode(err error) int {
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
				return status.ExitStatus()
			}
			return exitError.ExitCode()
		}
		return -1
	}
	return 0
}
