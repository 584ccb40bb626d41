// Package input parses the line-oriented list of (user ID, address) pairs.
//
// Each line holds exactly two fields separated by a space, comma or
// semicolon:
//
//	10 12:34:56:ab:cd:ef
//	11,FE:DC:BA:65:43:21
//	alice;2001:db8::43
//	bob,192.0.2.29
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/psaab/tcusers/pkg/addr"
	"github.com/psaab/tcusers/pkg/entry"
)

// Input errors.
var (
	ErrLineTooLong   = errors.New("line too long")
	ErrTooFewFields  = errors.New("too few fields")
	ErrTooManyFields = errors.New("too many fields")
	ErrUserIDEmpty   = errors.New("user ID empty")
	ErrUserIDTooLong = errors.New("user ID too long")
	ErrNoInput       = errors.New("input contained no data")
)

// MaxLineLen is the longest accepted line, excluding the line terminator.
const MaxLineLen = 1024

const fieldDelims = " ,;"

// Parse reads entries from r until EOF. name identifies the source in
// errors. The first malformed line aborts parsing; an input without any
// line is an error too.
func Parse(r io.Reader, name string) (*entry.Store, error) {
	s := entry.NewStore(64)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLineLen+1)

	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRightFunc(sc.Text(), unicode.IsSpace)
		if len(line) > MaxLineLen {
			return nil, fmt.Errorf("%w (on line #%d)", ErrLineTooLong, n)
		}
		e, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w (on line #%d, full line: '%s')", err, n, line)
		}
		s.Append(e)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w (on line #%d)", ErrLineTooLong, n+1)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	if s.Len() == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrNoInput, name)
	}
	return s, nil
}

// ParseLine parses one trimmed input line into an unclassified entry.
func ParseLine(line string) (entry.Entry, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return strings.ContainsRune(fieldDelims, r)
	})
	if len(fields) == 0 {
		return entry.Entry{}, ErrTooFewFields
	}
	userID, err := parseUserID(fields[0])
	if err != nil {
		return entry.Entry{}, err
	}
	if len(fields) < 2 {
		return entry.Entry{}, ErrTooFewFields
	}
	a, err := addr.Parse(fields[1])
	if err != nil {
		return entry.Entry{}, err
	}
	if len(fields) > 2 {
		return entry.Entry{}, ErrTooManyFields
	}
	return entry.Entry{Addr: a, UserID: userID}, nil
}

func parseUserID(s string) (string, error) {
	switch {
	case len(s) == 0:
		return "", ErrUserIDEmpty
	case len(s) > entry.MaxUserIDLen:
		return "", ErrUserIDTooLong
	}
	return s, nil
}
