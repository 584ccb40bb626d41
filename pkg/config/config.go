// Package config holds the classid ranges and classifier settings, their
// validation, and the flows-per-user value derived from the population.
package config

import (
	"errors"
	"fmt"

	"github.com/psaab/tcusers/pkg/logging"
)

// Validation errors.
var (
	ErrFlowRangesOverlap       = errors.New("user and unclassified flow ranges overlap")
	ErrInvalidMinFlowsPerUser  = errors.New("invalid minimum flows per user")
	ErrInvalidMaxFlowsPerUser  = errors.New("invalid maximum flows per user")
	ErrUserFlowsNotMultipleMin = errors.New("user flows size must be multiple of minimum flows per user")
	ErrUserFlowsNotMultipleMax = errors.New("user flows size must be multiple of maximum flows per user")
	ErrUnclFlowsNotPow2        = errors.New("unclassified flows size must be power of two")
)

// Defaults.
var (
	DefaultUserFlows         = Range{Lo: 0, Hi: 895}
	DefaultUnclassifiedFlows = Range{Lo: 896, Hi: 1023}
	DefaultFlowsPerUser      = Range{Lo: 1, Hi: 128}
	DefaultClassifyBy        = ClassifyBy{SrcMAC, SrcIP}
)

// DefaultBPFFS is the pinning namespace shared with the classifier program.
const DefaultBPFFS = "/sys/fs/bpf/tc/globals"

// Config is the run configuration.
type Config struct {
	// UserFlows is the classid range handed out to users.
	UserFlows Range
	// UnclassifiedFlows is the classid range the classifier uses for
	// addresses not present in the maps.
	UnclassifiedFlows Range
	// FlowsPerUserRange bounds the derived FlowsPerUser.
	FlowsPerUserRange Range
	ClassifyBy        ClassifyBy
	// NoOp classifies and logs without mutating the maps.
	NoOp     bool
	LogLevel logging.Level
	// BPFFS is the directory holding the pinned maps.
	BPFFS string
	// MetricsFile, when set, receives a Prometheus textfile after the run.
	MetricsFile string

	// FlowsPerUser is computed by Finalize.
	FlowsPerUser uint16
}

// Default returns a configuration populated with the default values.
func Default() *Config {
	return &Config{
		UserFlows:         DefaultUserFlows,
		UnclassifiedFlows: DefaultUnclassifiedFlows,
		FlowsPerUserRange: DefaultFlowsPerUser,
		ClassifyBy:        DefaultClassifyBy,
		LogLevel:          logging.Normal,
		BPFFS:             DefaultBPFFS,
	}
}

// Validate checks the range invariants. It must pass before Finalize.
func (c *Config) Validate() error {
	if c.UserFlows.Overlaps(c.UnclassifiedFlows) {
		return fmt.Errorf("%w (%s and %s)", ErrFlowRangesOverlap, c.UserFlows, c.UnclassifiedFlows)
	}

	fpu := c.FlowsPerUserRange
	if !isPow2(int(fpu.Lo)) {
		return fmt.Errorf("%w (%d)", ErrInvalidMinFlowsPerUser, fpu.Lo)
	}
	if !isPow2(int(fpu.Hi)) {
		return fmt.Errorf("%w (%d)", ErrInvalidMaxFlowsPerUser, fpu.Hi)
	}

	size := c.UserFlows.Size()
	if size%int(fpu.Lo) != 0 {
		return fmt.Errorf("%w (%d %% %d != 0)", ErrUserFlowsNotMultipleMin, size, fpu.Lo)
	}
	if size%int(fpu.Hi) != 0 {
		return fmt.Errorf("%w (%d %% %d != 0)", ErrUserFlowsNotMultipleMax, size, fpu.Hi)
	}

	if !isPow2(c.UnclassifiedFlows.Size()) {
		return fmt.Errorf("%w (is %d)", ErrUnclFlowsNotPow2, c.UnclassifiedFlows.Size())
	}
	return nil
}

// Finalize derives FlowsPerUser for a population of n entries: the user
// flow count per entry, rounded down to a power of two and clamped to
// FlowsPerUserRange.
func (c *Config) Finalize(n int) {
	c.FlowsPerUser = c.flowsPerUser(n)
}

func (c *Config) flowsPerUser(n int) uint16 {
	fpu := c.FlowsPerUserRange
	u := c.UserFlows.Size()
	if n > 0 {
		u /= n
	}
	switch {
	case u <= int(fpu.Lo):
		return fpu.Lo
	case u >= int(fpu.Hi):
		return fpu.Hi
	}
	// Lo < u < Hi, and Lo is a power of two, so the result stays in range.
	return uint16(floorPow2(u))
}
