// Package logger writes the provisioning log.
//
// Entries go to an append-only file, one per line:
//
//	2026-01-02T15:04:05Z INFO: Created group alice
//
// and ERROR entries are duplicated to stderr.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

const FileMode = os.FileMode(0644)

// Logger is the subset of logrus used across the provisioner.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// LineFormatter renders "<RFC3339 timestamp> <LEVEL>: <message>" followed by
// any fields as sorted key=value pairs.
type LineFormatter struct {
	Colors bool
}

func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Time.Format(time.RFC3339))
	b.WriteByte(' ')

	level := strings.ToUpper(entry.Level.String())
	if f.Colors {
		level = colorize(entry.Level, level)
	}
	b.WriteString(level)
	b.WriteString(": ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func colorize(lvl logrus.Level, s string) string {
	switch lvl {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return "\033[31m" + s + "\033[0m"
	case logrus.WarnLevel:
		return "\033[33m" + s + "\033[0m"
	default:
		return "\033[32m" + s + "\033[0m"
	}
}

// StderrHook copies entries at the configured levels to a second writer.
type StderrHook struct {
	Writer    io.Writer
	Formatter logrus.Formatter
	LogLevels []logrus.Level
}

func NewStderrHook(w io.Writer, colors bool) *StderrHook {
	return &StderrHook{
		Writer:    w,
		Formatter: &LineFormatter{Colors: colors},
		LogLevels: []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel},
	}
}

func (h *StderrHook) Levels() []logrus.Level {
	return h.LogLevels
}

func (h *StderrHook) Fire(entry *logrus.Entry) error {
	line, err := h.Formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.Writer.Write(line)
	return err
}

// New returns a logrus logger writing to out, with ERROR entries copied to
// stderr. Colour is used on stderr only when it is a terminal.
func New(out io.Writer, stderr io.Writer, debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&LineFormatter{})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	if stderr != nil {
		colors := false
		if f, ok := stderr.(*os.File); ok {
			colors = term.IsTerminal(int(f.Fd()))
		}
		l.AddHook(NewStderrHook(stderr, colors))
	}
	return l
}

// OpenFile prepares the log file: parent directory, existence, owner and
// mode 0644 are all re-asserted. The returned file is opened for append.
func OpenFile(fs afero.Fs, path string, uid, gid int) (afero.File, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FileMode)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if err := fs.Chown(path, uid, gid); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("chown log file: %w", err)
	}
	if err := fs.Chmod(path, FileMode); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("chmod log file: %w", err)
	}
	return f, nil
}
