package filemanager

import (
	"context"
	"fmt"
	"os"

	cm "github.com/steelcutops/provision/steelcut/commandmanager"
)

type UnixFileManager struct {
	CommandManager cm.CommandManager
}

func NewUnixFileManager(commandManager cm.CommandManager) *UnixFileManager {
	return &UnixFileManager{CommandManager: commandManager}
}

// DirExists runs test(1); exit status 1 means the path is not a directory.
func (ufm *UnixFileManager) DirExists(ctx context.Context, path string) (bool, error) {
	result, err := ufm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "test",
		Args:    []string{"-d", path},
	})
	if err == nil {
		return true, nil
	}
	if result.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

func (ufm *UnixFileManager) Chown(ctx context.Context, path, owner, group string) error {
	_, err := ufm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "chown",
		Args:    []string{owner + ":" + group, path},
	})
	return err
}

func (ufm *UnixFileManager) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	_, err := ufm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "chmod",
		Args:    []string{fmt.Sprintf("%o", mode.Perm()), path},
	})
	return err
}
