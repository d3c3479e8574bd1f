package usermanager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cm "github.com/steelcutops/provision/steelcut/commandmanager"
)

// getent exits with 2 when the key is not present in the database.
const getentNotFound = 2

// id exits with 1 when a group ID cannot be resolved to a name.
const idUnknownGroup = 1

type LinuxUserManager struct {
	CommandManager cm.CommandManager
}

func NewLinuxUserManager(commandManager cm.CommandManager) *LinuxUserManager {
	return &LinuxUserManager{CommandManager: commandManager}
}

func (l *LinuxUserManager) GroupExists(ctx context.Context, name string) (bool, error) {
	return l.lookup(ctx, "group", name)
}

func (l *LinuxUserManager) UserExists(ctx context.Context, username string) (bool, error) {
	return l.lookup(ctx, "passwd", username)
}

func (l *LinuxUserManager) lookup(ctx context.Context, database, key string) (bool, error) {
	result, err := l.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "getent",
		Args:    []string{database, key},
	})
	if err == nil {
		return true, nil
	}
	if result.ExitCode == getentNotFound {
		return false, nil
	}
	return false, err
}

func (l *LinuxUserManager) AddGroup(ctx context.Context, name string) error {
	_, err := l.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "groupadd",
		Args:    []string{name},
	})
	return err
}

func (l *LinuxUserManager) AddUser(ctx context.Context, user User) error {
	args := []string{"-m"}
	if user.HomeDir != "" {
		args = append(args, "-d", user.HomeDir)
	}
	if user.Shell != "" {
		args = append(args, "-s", user.Shell)
	}
	if user.PrimaryGroup != "" {
		args = append(args, "-g", user.PrimaryGroup)
	}
	if len(user.Groups) > 0 {
		args = append(args, "-G", strings.Join(user.Groups, ","))
	}
	args = append(args, user.Username)

	_, err := l.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "useradd",
		Args:    args,
	})
	return err
}

func (l *LinuxUserManager) PrimaryGroup(ctx context.Context, username string) (string, error) {
	output, err := l.idNames(ctx, "-gn", username)
	if err != nil {
		return "", err
	}

	group := strings.TrimSpace(output)
	if group == "" {
		return "", fmt.Errorf("id -gn %s: empty output", username)
	}
	return group, nil
}

func (l *LinuxUserManager) Groups(ctx context.Context, username string) ([]string, error) {
	output, err := l.idNames(ctx, "-nG", username)
	if err != nil {
		return nil, err
	}
	return strings.Fields(output), nil
}

// idNames runs id(1) in name mode. id exits 1 but still prints the list
// when a GID has no group entry; the numeric ID is kept in place of the
// name so callers see it as a mismatch.
func (l *LinuxUserManager) idNames(ctx context.Context, flag, username string) (string, error) {
	output, err := l.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "id",
		Args:    []string{flag, username},
	})
	if err == nil {
		return output.STDOUT, nil
	}
	if errors.Is(err, cm.ErrCommandFailed) && output.ExitCode == idUnknownGroup && strings.TrimSpace(output.STDOUT) != "" {
		return output.STDOUT, nil
	}
	return "", err
}

func (l *LinuxUserManager) SetPrimaryGroup(ctx context.Context, username, group string) error {
	_, err := l.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "usermod",
		Args:    []string{"-g", group, username},
	})
	return err
}

func (l *LinuxUserManager) AddToGroup(ctx context.Context, username, group string) error {
	_, err := l.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "usermod",
		Args:    []string{"-aG", group, username},
	})
	return err
}

func (l *LinuxUserManager) SetPassword(ctx context.Context, username, password string, hashed bool) error {
	var args []string
	if hashed {
		args = append(args, "-e")
	}
	// chpasswd reads "user:pass" lines from stdin.
	_, err := l.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "chpasswd",
		Args:    args,
		Stdin:   username + ":" + password + "\n",
	})
	return err
}
