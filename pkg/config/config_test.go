package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/psaab/tcusers/pkg/logging"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want Range
	}{
		{"0-895", Range{0, 895}},
		{"896:1023", Range{896, 1023}},
		{"7", Range{7, 7}},
		{"65535", Range{65535, 65535}},
		{"10-10", Range{10, 10}},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.in)
		if err != nil {
			t.Fatalf("ParseRange(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseRange(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseRangeErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", ErrEmptyRange},
		{"-", ErrEmptyRange},
		{"x-5", ErrInvalidRangeValue},
		{"5-x", ErrInvalidRangeValue},
		{"65536", ErrInvalidRangeValue},
		{"1-2-3", ErrInvalidRange},
		{"9-3", ErrInvalidRange},
	}
	for _, tt := range tests {
		_, err := ParseRange(tt.in)
		if !errors.Is(err, tt.want) {
			t.Errorf("ParseRange(%q) error = %v, want %v", tt.in, err, tt.want)
		}
	}
}

func TestRangeSizeAndOverlap(t *testing.T) {
	r := Range{0, 895}
	if r.Size() != 896 {
		t.Errorf("Size() = %d, want 896", r.Size())
	}
	if (Range{0, 65535}).Size() != 65536 {
		t.Error("full range size should not wrap")
	}
	if r.Overlaps(Range{896, 1023}) {
		t.Error("0-895 and 896-1023 should not overlap")
	}
	if !r.Overlaps(Range{800, 900}) {
		t.Error("0-895 and 800-900 should overlap")
	}
	if !(Range{5, 5}).Overlaps(Range{0, 10}) {
		t.Error("contained range should overlap")
	}
	if !r.ContainsInt(42) || r.ContainsInt(-1) || r.ContainsInt(70000) || r.ContainsInt(896) {
		t.Error("ContainsInt boundaries wrong")
	}
}

func TestParseClassifyBy(t *testing.T) {
	cb, err := ParseClassifyBy("dstip,srcmac")
	if err != nil {
		t.Fatal(err)
	}
	if cb != (ClassifyBy{DstIP, SrcMAC}) {
		t.Errorf("got %v", cb)
	}
	if cb.String() != "dstip,srcmac" {
		t.Errorf("String() = %q", cb.String())
	}

	cb, err = ParseClassifyBy("srcmac,dstmac,srcip,dstip")
	if err != nil {
		t.Fatal(err)
	}
	if len(cb.Keys()) != 4 {
		t.Errorf("Keys() = %v", cb.Keys())
	}
	if DefaultClassifyBy.String() != "srcmac,srcip" {
		t.Errorf("default = %q", DefaultClassifyBy.String())
	}
}

func TestParseClassifyByErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", ErrInvalidClassifyBy},
		{",,", ErrInvalidClassifyBy},
		{"srcmac,bogus", ErrInvalidClassifyByAddr},
		{"srcip,srcip", ErrClassifyByRepeat},
		{"srcmac,dstmac,srcip,dstip,srcmac", ErrClassifyByTooLong},
	}
	for _, tt := range tests {
		_, err := ParseClassifyBy(tt.in)
		if !errors.Is(err, tt.want) {
			t.Errorf("ParseClassifyBy(%q) error = %v, want %v", tt.in, err, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"overlap", func(c *Config) {
			c.UserFlows = MustParseRange("0-895")
			c.UnclassifiedFlows = MustParseRange("800-900")
		}, ErrFlowRangesOverlap},
		{"min not pow2", func(c *Config) {
			c.FlowsPerUserRange = MustParseRange("3-128")
		}, ErrInvalidMinFlowsPerUser},
		{"min zero", func(c *Config) {
			c.FlowsPerUserRange = MustParseRange("0-128")
		}, ErrInvalidMinFlowsPerUser},
		{"max not pow2", func(c *Config) {
			c.FlowsPerUserRange = MustParseRange("1-100")
		}, ErrInvalidMaxFlowsPerUser},
		{"not multiple of min", func(c *Config) {
			c.UserFlows = MustParseRange("0-5")
			c.FlowsPerUserRange = MustParseRange("4-4")
		}, ErrUserFlowsNotMultipleMin},
		{"not multiple of max", func(c *Config) {
			c.UserFlows = MustParseRange("0-63")
		}, ErrUserFlowsNotMultipleMax},
		{"uncl not pow2", func(c *Config) {
			c.UnclassifiedFlows = MustParseRange("896-1000")
		}, ErrUnclFlowsNotPow2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			err := c.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFinalizeFlowsPerUser(t *testing.T) {
	tests := []struct {
		users int
		want  uint16
	}{
		{1, 128},   // 896 >= hi
		{7, 128},   // 128 == hi
		{8, 64},    // 112 -> 64
		{14, 64},   // 64 is a power of two
		{100, 8},   // 8
		{300, 2},   // 2 -> 2
		{500, 1},   // 1 <= lo
		{10000, 1}, // 0 <= lo
	}
	for _, tt := range tests {
		c := Default()
		c.Finalize(tt.users)
		if c.FlowsPerUser != tt.want {
			t.Errorf("Finalize(%d) flows per user = %d, want %d", tt.users, c.FlowsPerUser, tt.want)
		}
	}

	c := Default()
	c.FlowsPerUserRange = MustParseRange("4-32")
	c.Finalize(200) // 896/200 = 4
	if c.FlowsPerUser != 4 {
		t.Errorf("clamped to lo: got %d", c.FlowsPerUser)
	}
	c.Finalize(60) // 896/60 = 14 -> 8
	if c.FlowsPerUser != 8 {
		t.Errorf("14 rounds to 8: got %d", c.FlowsPerUser)
	}
}

func TestFloorPow2(t *testing.T) {
	for n, want := range map[int]int{0: 0, 1: 1, 2: 2, 3: 2, 5: 4, 64: 64, 127: 64, 129: 128} {
		if got := floorPow2(n); got != want {
			t.Errorf("floorPow2(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestLoadFileApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tc-users.yaml")
	data := `userFlows: 0-1023
unclassifiedFlows: "1024:2047"
flowsPerUser: 2-64
classifyBy: srcip,dstmac
noop: true
log: verbose
bpffs: /tmp/bpf
metricsFile: /tmp/tc_users.prom
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	c := Default()
	if err := f.Apply(c); err != nil {
		t.Fatal(err)
	}
	if c.UserFlows != (Range{0, 1023}) || c.UnclassifiedFlows != (Range{1024, 2047}) {
		t.Errorf("ranges = %v %v", c.UserFlows, c.UnclassifiedFlows)
	}
	if c.FlowsPerUserRange != (Range{2, 64}) {
		t.Errorf("flows per user = %v", c.FlowsPerUserRange)
	}
	if c.ClassifyBy != (ClassifyBy{SrcIP, DstMAC}) {
		t.Errorf("classify by = %v", c.ClassifyBy)
	}
	if !c.NoOp || c.LogLevel != logging.Verbose {
		t.Errorf("noop=%v log=%v", c.NoOp, c.LogLevel)
	}
	if c.BPFFS != "/tmp/bpf" || c.MetricsFile != "/tmp/tc_users.prom" {
		t.Errorf("paths = %q %q", c.BPFFS, c.MetricsFile)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	unknown := filepath.Join(dir, "unknown.yaml")
	os.WriteFile(unknown, []byte("bogus: 1\n"), 0o644)
	if _, err := LoadFile(unknown); err == nil {
		t.Error("expected error for unknown key")
	}

	bad := &File{ClassifyBy: "srcip,srcip"}
	if err := bad.Apply(Default()); !errors.Is(err, ErrClassifyByRepeat) {
		t.Errorf("Apply error = %v", err)
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, nil, 0o644)
	f, err := LoadFile(empty)
	if err != nil {
		t.Fatalf("empty file: %v", err)
	}
	c := Default()
	if err := f.Apply(c); err != nil || c.UserFlows != DefaultUserFlows {
		t.Errorf("empty file changed config: %v %v", err, c.UserFlows)
	}
}
