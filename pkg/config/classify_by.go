package config

import (
	"errors"
	"fmt"
	"strings"
)

// Classify-by parse errors.
var (
	ErrInvalidClassifyBy     = errors.New("invalid classify by option")
	ErrInvalidClassifyByAddr = errors.New("invalid classify by address")
	ErrClassifyByTooLong     = errors.New("invalid classify by option (max 4 addresses)")
	ErrClassifyByRepeat      = errors.New("invalid classify by option, repeated address")
)

// MaxClassifyBy is the number of selector slots in a classify-by list.
const MaxClassifyBy = 4

// ClassifyKey selects which packet address the kernel classifier looks up.
// The numeric values are shared with the classifier program.
type ClassifyKey uint32

const (
	KeyNone ClassifyKey = iota
	SrcMAC
	DstMAC
	SrcIP
	DstIP
)

var classifyKeyNames = map[ClassifyKey]string{
	SrcMAC: "srcmac",
	DstMAC: "dstmac",
	SrcIP:  "srcip",
	DstIP:  "dstip",
}

func (k ClassifyKey) String() string {
	if s, ok := classifyKeyNames[k]; ok {
		return s
	}
	return fmt.Sprintf("key(%d)", uint32(k))
}

// parseClassifyKey returns the key named s.
func parseClassifyKey(s string) (ClassifyKey, bool) {
	for k, name := range classifyKeyNames {
		if name == s {
			return k, true
		}
	}
	return KeyNone, false
}

// ClassifyBy is the ordered list of selectors the classifier tries. Unused
// trailing slots hold KeyNone.
type ClassifyBy [MaxClassifyBy]ClassifyKey

// ParseClassifyBy parses a comma separated list of up to four distinct
// selector names, e.g. "srcmac,srcip".
func ParseClassifyBy(s string) (ClassifyBy, error) {
	toks := strings.FieldsFunc(s, func(r rune) bool { return r == ',' })

	var cb ClassifyBy
	for i := 0; i < MaxClassifyBy && i < len(toks); i++ {
		k, ok := parseClassifyKey(toks[i])
		if !ok {
			return ClassifyBy{}, fmt.Errorf("%w (%s)", ErrInvalidClassifyByAddr, toks[i])
		}
		for j := i - 1; j >= 0; j-- {
			if cb[j] == k {
				return ClassifyBy{}, fmt.Errorf("%w (%s)", ErrClassifyByRepeat, s)
			}
		}
		cb[i] = k
	}
	if len(toks) == 0 {
		return ClassifyBy{}, fmt.Errorf("%w (%s)", ErrInvalidClassifyBy, s)
	}
	if len(toks) > MaxClassifyBy {
		return ClassifyBy{}, fmt.Errorf("%w (%s)", ErrClassifyByTooLong, s)
	}
	return cb, nil
}

// Keys returns the selectors in priority order, without empty slots.
func (cb ClassifyBy) Keys() []ClassifyKey {
	var keys []ClassifyKey
	for _, k := range cb {
		if k == KeyNone {
			break
		}
		keys = append(keys, k)
	}
	return keys
}

func (cb ClassifyBy) String() string {
	names := make([]string, 0, MaxClassifyBy)
	for _, k := range cb.Keys() {
		names = append(names, k.String())
	}
	return strings.Join(names, ",")
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (cb *ClassifyBy) UnmarshalText(text []byte) error {
	v, err := ParseClassifyBy(string(text))
	if err != nil {
		return err
	}
	*cb = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (cb ClassifyBy) MarshalText() ([]byte, error) {
	return []byte(cb.String()), nil
}
