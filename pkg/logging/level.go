// Package logging sets up the structured logger used for run output and
// optionally forwards records to remote syslog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
)

// Level is the run output verbosity.
type Level int

const (
	// Quiet suppresses everything below warnings.
	Quiet Level = iota - 1
	// Normal logs map mutations and the run summary.
	Normal
	// Verbose adds per-entry classification and unchanged-entry lines.
	Verbose
)

func (l Level) String() string {
	switch l {
	case Quiet:
		return "quiet"
	case Verbose:
		return "verbose"
	default:
		return "normal"
	}
}

// ParseLevel parses "quiet", "normal" or "verbose".
func ParseLevel(s string) (Level, error) {
	switch s {
	case "quiet":
		return Quiet, nil
	case "normal", "":
		return Normal, nil
	case "verbose":
		return Verbose, nil
	default:
		return Normal, fmt.Errorf("unknown log level %q", s)
	}
}

// SlogLevel returns the minimum slog level emitted at l.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case Quiet:
		return slog.LevelWarn
	case Verbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger writing to w at the given verbosity. When
// syslog clients are given, records are forwarded to them as well and the
// returned handler must be closed by the caller.
func New(w io.Writer, l Level, clients ...*SyslogClient) (*slog.Logger, *SyslogHandler) {
	base := slog.NewTextHandler(w, &slog.HandlerOptions{Level: l.SlogLevel()})
	if len(clients) == 0 {
		return slog.New(base), nil
	}
	h := NewSyslogHandler(base, clients...)
	return slog.New(h), h
}
