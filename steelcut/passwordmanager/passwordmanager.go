// Package passwordmanager generates initial account passwords and prepares
// them for chpasswd.
//
// Generation is tiered: the primary source is crypto/rand, the secondary
// draws characters from /dev/urandom, and FallbackPassword is returned only
// when both fail. The fallback is a known weak value and callers are
// expected to report it.
package passwordmanager

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

// FallbackPassword is the last-resort constant used when no random source
// is readable.
const FallbackPassword = "ChangeMe123!"

const (
	DefaultPrimaryBytes    = 16
	DefaultSecondaryLength = 20

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*()-_=+"
)

// Source identifies which tier produced a password.
type Source int

const (
	SourcePrimary Source = iota
	SourceSecondary
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourcePrimary:
		return "primary"
	case SourceSecondary:
		return "secondary"
	default:
		return "fallback"
	}
}

var ErrShortRead = errors.New("short read from random source")

type Generator struct {
	Primary         io.Reader
	Secondary       io.Reader
	PrimaryBytes    int
	SecondaryLength int
}

// NewGenerator returns a Generator reading crypto/rand first and
// /dev/urandom second.
func NewGenerator() *Generator {
	return &Generator{
		Primary:         rand.Reader,
		Secondary:       urandom{path: "/dev/urandom"},
		PrimaryBytes:    DefaultPrimaryBytes,
		SecondaryLength: DefaultSecondaryLength,
	}
}

// Generate returns a new password and the tier it came from. The error
// carries the reasons earlier tiers were skipped and is non-nil whenever
// the source is not SourcePrimary.
func (g *Generator) Generate() (string, Source, error) {
	pw, primaryErr := g.fromPrimary()
	if primaryErr == nil {
		return pw, SourcePrimary, nil
	}
	pw, secondaryErr := g.fromSecondary()
	if secondaryErr == nil {
		return pw, SourceSecondary, fmt.Errorf("primary source: %w", primaryErr)
	}
	return FallbackPassword, SourceFallback, fmt.Errorf("primary source: %v; secondary source: %w", primaryErr, secondaryErr)
}

func (g *Generator) fromPrimary() (string, error) {
	if g.Primary == nil {
		return "", errors.New("no primary source configured")
	}
	n := g.PrimaryBytes
	if n < 12 {
		n = DefaultPrimaryBytes
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(g.Primary, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (g *Generator) fromSecondary() (string, error) {
	if g.Secondary == nil {
		return "", errors.New("no secondary source configured")
	}
	length := g.SecondaryLength
	if length < 16 {
		length = DefaultSecondaryLength
	}

	// Reject bytes above the largest multiple of len(alphabet) to keep the
	// distribution uniform.
	limit := byte(256 - 256%len(alphabet))
	out := make([]byte, 0, length)
	buf := make([]byte, 64)
	for attempts := 0; len(out) < length; attempts++ {
		if attempts > 64 {
			return "", ErrShortRead
		}
		n, err := g.Secondary.Read(buf)
		if err != nil && n == 0 {
			return "", err
		}
		for _, c := range buf[:n] {
			if c >= limit {
				continue
			}
			out = append(out, alphabet[int(c)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

type urandom struct {
	path string
}

func (u urandom) Read(p []byte) (int, error) {
	f, err := os.Open(u.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.ReadFull(f, p)
}
