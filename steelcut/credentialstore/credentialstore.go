package credentialstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

const (
	DirMode  = os.FileMode(0700)
	FileMode = os.FileMode(0600)
)

var (
	// ErrLocked is returned by Lock when another process holds the run lock.
	ErrLocked = errors.New("credentials store is locked by another process")

	header = []string{"username", "password"}
)

// Record is one row of the credentials file.
type Record struct {
	Username string
	Password string
}

// Store is the append-only CSV of generated credentials together with the
// restricted directory holding it.
type Store struct {
	Fs       afero.Fs
	Path     string
	LockPath string // advisory lock file on the real filesystem; empty disables locking
	UID      int
	GID      int

	lock *flock.Flock
}

func New(fs afero.Fs, path string, uid, gid int) *Store {
	return &Store{Fs: fs, Path: path, UID: uid, GID: gid}
}

func (s *Store) Dir() string {
	return filepath.Dir(s.Path)
}

// PrepareDir creates the secure directory if needed and re-asserts its
// owner and mode on every call.
func (s *Store) PrepareDir() error {
	dir := s.Dir()
	if err := s.Fs.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := s.Fs.Chown(dir, s.UID, s.GID); err != nil {
		return fmt.Errorf("chown %s: %w", dir, err)
	}
	if err := s.Fs.Chmod(dir, DirMode); err != nil {
		return fmt.Errorf("chmod %s: %w", dir, err)
	}
	return nil
}

// PrepareFile writes the header row into a missing or empty credentials
// file and re-asserts owner and mode.
func (s *Store) PrepareFile() error {
	f, err := s.Fs.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FileMode)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", s.Path, err)
	}
	if info.Size() == 0 {
		if err := writeRow(f, header); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header to %s: %w", s.Path, err)
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := s.Fs.Chown(s.Path, s.UID, s.GID); err != nil {
		return fmt.Errorf("chown %s: %w", s.Path, err)
	}
	return s.restrict()
}

// Append adds one row and re-applies the file mode afterwards.
func (s *Store) Append(username, password string) error {
	f, err := s.Fs.OpenFile(s.Path, os.O_WRONLY|os.O_APPEND, FileMode)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Path, err)
	}
	if err := writeRow(f, []string{username, password}); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to %s: %w", s.Path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return s.restrict()
}

func (s *Store) restrict() error {
	if err := s.Fs.Chmod(s.Path, FileMode); err != nil {
		return fmt.Errorf("chmod %s: %w", s.Path, err)
	}
	return nil
}

func writeRow(f afero.File, row []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// Records reads back every credential row, header excluded.
func (s *Store) Records() ([]Record, error) {
	f, err := s.Fs.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	var out []Record
	for first := true; ; first = false {
		row, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if first && row[0] == header[0] && row[1] == header[1] {
			continue
		}
		out = append(out, Record{Username: row[0], Password: row[1]})
	}
}

// Lock takes a non-blocking advisory lock on LockPath so that two runs do
// not interleave credential rows for the same accounts.
func (s *Store) Lock() error {
	if s.LockPath == "" {
		return nil
	}
	s.lock = flock.New(s.LockPath)
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.LockPath, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, s.LockPath)
	}
	return nil
}

func (s *Store) Unlock() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}
