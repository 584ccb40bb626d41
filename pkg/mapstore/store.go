package mapstore

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"

	"github.com/psaab/tcusers/pkg/addr"
)

// classIDSize is the value size of the address maps.
const classIDSize = 2

// Store holds the opened address maps and configuration map.
type Store struct {
	addrMaps [addr.NumTypes]*ebpf.Map
	cfgMap   *ebpf.Map
}

// Open loads the pinned maps from root. Either all maps are opened or
// none: on failure every handle acquired so far is closed.
func Open(root string) (*Store, error) {
	if err := checkBPFFS(root); err != nil {
		return nil, err
	}

	var maps []*ebpf.Map
	closeAll := func() {
		for _, m := range maps {
			m.Close()
		}
	}
	names := append(mapNames[:], MapConfig)
	for _, name := range names {
		path := filepath.Join(root, name)
		m, err := ebpf.LoadPinnedMap(path, nil)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("%w ('%s', %w)", ErrObjectGet, path, err)
		}
		maps = append(maps, m)
	}

	s, err := newStore(maps[0], maps[1], maps[2], maps[3])
	if err != nil {
		closeAll()
		return nil, err
	}
	slog.Debug("opened BPF maps", "root", root)
	return s, nil
}

// newStore wraps already opened maps after checking their layout.
func newStore(mac, ip4, ip6, cfg *ebpf.Map) (*Store, error) {
	s := &Store{cfgMap: cfg}
	s.addrMaps[addr.MAC] = mac
	s.addrMaps[addr.IPv4] = ip4
	s.addrMaps[addr.IPv6] = ip6

	for _, t := range addr.Types {
		if err := checkLayout(s.addrMaps[t], MapName(t), uint32(t.Len()), classIDSize); err != nil {
			return nil, err
		}
	}
	if err := checkLayout(cfg, MapConfig, 1, configRecordSize); err != nil {
		return nil, err
	}
	return s, nil
}

func checkLayout(m *ebpf.Map, name string, keySize, valueSize uint32) error {
	if m.KeySize() != keySize || m.ValueSize() != valueSize {
		return fmt.Errorf("%w (%s: key/value size %d/%d, want %d/%d)",
			ErrMapMismatch, name, m.KeySize(), m.ValueSize(), keySize, valueSize)
	}
	return nil
}

// checkBPFFS verifies that root lives on a mounted BPF filesystem.
func checkBPFFS(root string) error {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return fmt.Errorf("%w ('%s', %w)", ErrObjectGet, root, err)
	}
	if uint32(st.Type) != unix.BPF_FS_MAGIC {
		return fmt.Errorf("%w ('%s', not a BPF filesystem)", ErrObjectGet, root)
	}
	return nil
}

// Close releases all map handles. It is safe to call more than once.
func (s *Store) Close() error {
	for i, m := range s.addrMaps {
		if m != nil {
			if err := m.Close(); err != nil {
				slog.Warn("failed to close BPF map", "map", mapNames[i], "err", err)
			}
			s.addrMaps[i] = nil
		}
	}
	if s.cfgMap != nil {
		if err := s.cfgMap.Close(); err != nil {
			slog.Warn("failed to close BPF map", "map", MapConfig, "err", err)
		}
		s.cfgMap = nil
	}
	return nil
}

// Lookup returns the classid stored for a. An absent key is reported with
// found == false, not as an error.
func (s *Store) Lookup(a addr.Addr) (classID uint16, found bool, err error) {
	err = s.addrMaps[a.Type()].Lookup(a.Bytes(), &classID)
	switch {
	case err == nil:
		return classID, true, nil
	case errors.Is(err, ebpf.ErrKeyNotExist):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w (addr='%s', error='%w')", ErrLookupElem, a, err)
	}
}

// Update writes the classid for a, subject to mode.
func (s *Store) Update(a addr.Addr, classID uint16, mode UpdateMode) error {
	if err := s.addrMaps[a.Type()].Update(a.Bytes(), classID, mode.flags()); err != nil {
		return fmt.Errorf("%w (addr='%s', mode=%s, error='%w')", ErrUpdateElem, a, mode, err)
	}
	return nil
}

// Delete removes a. Deleting an absent key is an error.
func (s *Store) Delete(a addr.Addr) error {
	if err := s.addrMaps[a.Type()].Delete(a.Bytes()); err != nil {
		return fmt.Errorf("%w (addr='%s', error='%w')", ErrDeleteElem, a, err)
	}
	return nil
}

// PushConfig replaces the configuration record.
func (s *Store) PushConfig(rec ConfigRecord) error {
	if err := s.cfgMap.Update(ConfigKey, rec, ebpf.UpdateAny); err != nil {
		return fmt.Errorf("%w (key='%d', error='%w')", ErrUpdateElem, ConfigKey, err)
	}
	return nil
}

// All enumerates the MAC map, then IPv4, then IPv6, in the kernel's
// next-key order. The sequence can be consumed once; call All again to
// enumerate afresh. A failure ends the sequence with a non-nil error.
func (s *Store) All() iter.Seq2[Entry, error] {
	consumed := false
	return func(yield func(Entry, error) bool) {
		if consumed {
			return
		}
		consumed = true

		for _, t := range addr.Types {
			var key rawKey
			var classID uint16
			it := s.addrMaps[t].Iterate()
			for it.Next(&key, &classID) {
				a, err := addr.FromBytes(t, key.b)
				if err != nil {
					yield(Entry{}, fmt.Errorf("%w (%s: %w)", ErrNextKey, MapName(t), err))
					return
				}
				if !yield(Entry{Addr: a, ClassID: classID}, nil) {
					return
				}
			}
			if err := it.Err(); err != nil {
				yield(Entry{}, fmt.Errorf("%w (%s: %w)", ErrNextKey, MapName(t), err))
				return
			}
		}
	}
}

// rawKey receives map keys of any width during iteration.
type rawKey struct {
	b []byte
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (k *rawKey) UnmarshalBinary(b []byte) error {
	k.b = bytes.Clone(b)
	return nil
}
