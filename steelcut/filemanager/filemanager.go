package filemanager

import (
	"context"
	"os"
)

// FileManager covers the ownership and permission operations applied to
// home directories.
type FileManager interface {
	DirExists(ctx context.Context, path string) (bool, error)
	Chown(ctx context.Context, path, owner, group string) error
	Chmod(ctx context.Context, path string, mode os.FileMode) error
}
