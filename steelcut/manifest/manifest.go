// Package manifest reads provisioning manifests.
//
// A manifest holds one record per line:
//
//	username; group1,group2
//
// Blank lines and lines starting with '#' are ignored. The group list is
// optional.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
)

var usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)

var ErrInvalidUsername = errors.New("invalid username")

// Record is one parsed manifest line.
type Record struct {
	Line     int
	Username string
	Groups   []string
}

// ValidUsername reports whether u is an acceptable login name: lowercase
// letters, digits, underscore and dash, starting with a letter or underscore.
func ValidUsername(u string) bool {
	return usernameRe.MatchString(u)
}

// ValidGroupName applies the login name rule to group names. It keeps
// numeric IDs and option-like names away from getent and groupadd.
func ValidGroupName(g string) bool {
	return usernameRe.MatchString(g)
}

// ParseLine parses a single line. skip is true for blank and comment lines.
// A record with an invalid username is returned together with
// ErrInvalidUsername so the caller can report the name.
func ParseLine(line string) (rec Record, skip bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Record{}, true, nil
	}

	user, groups, _ := strings.Cut(line, ";")
	rec.Username = strings.TrimSpace(user)
	rec.Groups = splitGroups(groups)

	if !ValidUsername(rec.Username) {
		return rec, false, fmt.Errorf("%w: %q", ErrInvalidUsername, rec.Username)
	}
	return rec, false, nil
}

func splitGroups(field string) []string {
	field = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, field)
	if field == "" {
		return nil
	}

	var groups []string
	for _, g := range strings.Split(field, ",") {
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// Scanner streams records from a manifest.
type Scanner struct {
	s    *bufio.Scanner
	line int
	rec  Record
	err  error
}

func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 1024*1024)
	return &Scanner{s: s}
}

// Next advances to the next non-blank, non-comment line. It returns false
// at end of input or on a read error; see Err.
func (sc *Scanner) Next() bool {
	for sc.s.Scan() {
		sc.line++
		text := sc.s.Text()
		if sc.line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		rec, skip, err := ParseLine(text)
		if skip {
			continue
		}
		rec.Line = sc.line
		sc.rec, sc.err = rec, err
		return true
	}
	sc.rec, sc.err = Record{}, nil
	return false
}

// Record returns the current record and its validation error, if any.
func (sc *Scanner) Record() (Record, error) {
	return sc.rec, sc.err
}

// Err returns the first read error encountered.
func (sc *Scanner) Err() error {
	return sc.s.Err()
}
