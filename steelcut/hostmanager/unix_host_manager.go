package hostmanager

import (
	"context"
	"strings"

	cm "github.com/steelcutops/provision/steelcut/commandmanager"
)

type UnixHostManager struct {
	CommandManager cm.CommandManager
}

func NewUnixHostManager(commandManager cm.CommandManager) *UnixHostManager {
	return &UnixHostManager{CommandManager: commandManager}
}

// Info gathers the hostname, OS and kernel release of the host.
func (uhm *UnixHostManager) Info(ctx context.Context) (HostInfo, error) {
	hostname, err := uhm.Hostname(ctx)
	if err != nil {
		return HostInfo{}, err
	}

	kernelVersion, err := uhm.uname(ctx, "-r")
	if err != nil {
		return HostInfo{}, err
	}

	osVersion, err := uhm.uname(ctx, "-o")
	if err != nil {
		return HostInfo{}, err
	}

	return HostInfo{
		Hostname:      hostname,
		OSVersion:     osVersion,
		KernelVersion: kernelVersion,
	}, nil
}

func (uhm *UnixHostManager) Hostname(ctx context.Context) (string, error) {
	output, err := uhm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "hostname",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(output.STDOUT), nil
}

func (uhm *UnixHostManager) uname(ctx context.Context, flag string) (string, error) {
	output, err := uhm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "uname",
		Args:    []string{flag},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output.STDOUT), nil
}
