package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelSlogLevel(t *testing.T) {
	tests := []struct {
		l    Level
		want slog.Level
	}{
		{Quiet, slog.LevelWarn},
		{Normal, slog.LevelInfo},
		{Verbose, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := tt.l.SlogLevel(); got != tt.want {
			t.Errorf("%s.SlogLevel() = %v, want %v", tt.l, got, tt.want)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, h := New(&buf, Normal)
	if h != nil {
		t.Fatal("expected no syslog handler without clients")
	}
	log.Debug("hidden")
	log.Info("shown", "classid", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at normal level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "classid=7") {
		t.Errorf("info record missing: %q", out)
	}

	buf.Reset()
	quiet, _ := New(&buf, Quiet)
	quiet.Info("sync add")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

func TestSyslogHandlerForwards(t *testing.T) {
	pc, client := listenSyslog(t)

	var buf bytes.Buffer
	log, h := New(&buf, Verbose, client)
	if h == nil {
		t.Fatal("expected syslog handler")
	}
	defer h.Close()

	log.With("run", 1).WithGroup("sync").Info("add", "addr", "192.0.2.1", "classid", 3)

	got := readSyslog(t, pc)
	if !strings.HasPrefix(got, "<134>") {
		t.Errorf("unexpected priority prefix: %q", got)
	}
	for _, want := range []string{"add", "run=1", "sync.addr=192.0.2.1", "sync.classid=3"} {
		if !strings.Contains(got, want) {
			t.Errorf("syslog message %q missing %q", got, want)
		}
	}
	if !strings.Contains(buf.String(), "msg=add") {
		t.Errorf("base handler output missing record: %q", buf.String())
	}
}

func TestSlogLevelToSyslog(t *testing.T) {
	tests := []struct {
		l    slog.Level
		want int
	}{
		{slog.LevelError, SyslogError},
		{slog.LevelWarn, SyslogWarning},
		{slog.LevelInfo, SyslogInfo},
		{slog.LevelDebug, SyslogDebug},
	}
	for _, tt := range tests {
		if got := slogLevelToSyslog(tt.l); got != tt.want {
			t.Errorf("slogLevelToSyslog(%v) = %d, want %d", tt.l, got, tt.want)
		}
	}
}
