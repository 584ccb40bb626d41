package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Range and number parse errors.
var (
	ErrEmptyRange        = errors.New("empty range")
	ErrInvalidRange      = errors.New("invalid range")
	ErrInvalidRangeValue = errors.New("invalid range value")
	ErrInvalidU16        = errors.New("invalid 16-bit unsigned value")
)

// rangeDelims separate the bounds of a range.
const rangeDelims = "-:"

// Range is an inclusive range of 16-bit values.
type Range struct {
	Lo uint16
	Hi uint16
}

// ParseRange parses "LO", "LO-HI" or "LO:HI". A single value yields the
// one-element range [LO, LO].
func ParseRange(s string) (Range, error) {
	toks := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(rangeDelims, r)
	})
	if len(toks) == 0 {
		return Range{}, ErrEmptyRange
	}

	var r Range
	var err error
	if r.Lo, err = ParseU16(toks[0]); err != nil {
		return Range{}, fmt.Errorf("%w (%s)", ErrInvalidRangeValue, toks[0])
	}
	if len(toks) == 1 {
		r.Hi = r.Lo
		return r, nil
	}
	if r.Hi, err = ParseU16(toks[1]); err != nil {
		return Range{}, fmt.Errorf("%w (%s)", ErrInvalidRangeValue, toks[1])
	}
	if len(toks) > 2 || r.Lo > r.Hi {
		return Range{}, fmt.Errorf("%w (%s)", ErrInvalidRange, s)
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseU16 parses a non-negative decimal 16-bit integer.
func ParseU16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w (%s)", ErrInvalidU16, s)
	}
	return uint16(v), nil
}

// Size returns the number of values in the range.
func (r Range) Size() int {
	return int(r.Hi) - int(r.Lo) + 1
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v uint16) bool {
	return v >= r.Lo && v <= r.Hi
}

// ContainsInt is Contains for values that may not fit in 16 bits.
func (r Range) ContainsInt(v int64) bool {
	return v >= 0 && v <= math.MaxUint16 && r.Contains(uint16(v))
}

// Overlaps reports whether r and o share at least one value.
func (r Range) Overlaps(o Range) bool {
	return !(o.Hi < r.Lo || o.Lo > r.Hi)
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Lo, r.Hi)
}

// UnmarshalText implements encoding.TextUnmarshaler so ranges can be given
// as flag values and in the config file.
func (r *Range) UnmarshalText(text []byte) error {
	v, err := ParseRange(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// isPow2 reports whether x is a positive power of two.
func isPow2(x int) bool {
	return x > 0 && x&(x-1) == 0
}

// floorPow2 returns the largest power of two not greater than n, or n
// itself when n is already a power of two. floorPow2(0) is 0.
func floorPow2(n int) int {
	if isPow2(n) || n == 0 {
		return n
	}
	p := 1
	for p <= n {
		p <<= 1
	}
	return p >> 1
}
