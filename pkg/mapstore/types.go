// Package mapstore reads and writes the pinned BPF maps shared with the tc
// classifier program: one address-to-classid hash map per address type
// and a single-slot configuration map.
package mapstore

import (
	"errors"

	"github.com/cilium/ebpf"

	"github.com/psaab/tcusers/pkg/addr"
	"github.com/psaab/tcusers/pkg/config"
)

// Map store errors. Each is wrapped with the resource or address and the
// underlying OS error.
var (
	ErrObjectGet   = errors.New("BPF get object failure")
	ErrUpdateElem  = errors.New("BPF update element failure")
	ErrNextKey     = errors.New("BPF get next key failure")
	ErrLookupElem  = errors.New("BPF lookup element failure")
	ErrDeleteElem  = errors.New("BPF delete element failure")
	ErrMapMismatch = errors.New("BPF map layout mismatch")
)

// Pinned map names under the namespace root.
const (
	MapMAC    = "tc_users_mac"
	MapIPv4   = "tc_users_ip4"
	MapIPv6   = "tc_users_ip6"
	MapConfig = "tc_users_config"
)

// ConfigKey is the only key of the configuration map.
const ConfigKey uint8 = 1

// mapNames is indexed by addr.Type.
var mapNames = [addr.NumTypes]string{
	addr.MAC:  MapMAC,
	addr.IPv4: MapIPv4,
	addr.IPv6: MapIPv6,
}

// MapName returns the pinned map name holding addresses of type t.
func MapName(t addr.Type) string {
	return mapNames[t]
}

// UpdateMode constrains whether an update may create or replace a key.
type UpdateMode int

const (
	// MustNotExist fails if the key is already present.
	MustNotExist UpdateMode = iota
	// MustExist fails if the key is absent.
	MustExist
	// Either creates or replaces.
	Either
)

func (m UpdateMode) String() string {
	switch m {
	case MustNotExist:
		return "must-not-exist"
	case MustExist:
		return "must-exist"
	default:
		return "either"
	}
}

func (m UpdateMode) flags() ebpf.MapUpdateFlags {
	switch m {
	case MustNotExist:
		return ebpf.UpdateNoExist
	case MustExist:
		return ebpf.UpdateExist
	default:
		return ebpf.UpdateAny
	}
}

// Entry is one address-to-classid mapping read from the maps.
type Entry struct {
	Addr    addr.Addr
	ClassID uint16
}

// ConfigRecord mirrors the classifier's C struct bpf_config: the selector
// list followed by the flows-per-user value and the unclassified range.
type ConfigRecord struct {
	ClassifyBy   [config.MaxClassifyBy]uint32
	FlowsPerUser uint16
	UnclStart    uint16
	UnclLen      uint16
	Pad          uint16
}

// configRecordSize is the value size of the configuration map.
const configRecordSize = 24

// NewConfigRecord builds the record pushed to the configuration map from a
// finalized configuration.
func NewConfigRecord(c *config.Config) ConfigRecord {
	var rec ConfigRecord
	for i, k := range c.ClassifyBy {
		rec.ClassifyBy[i] = uint32(k)
	}
	rec.FlowsPerUser = c.FlowsPerUser
	rec.UnclStart = c.UnclassifiedFlows.Lo
	rec.UnclLen = uint16(c.UnclassifiedFlows.Size())
	return rec
}
