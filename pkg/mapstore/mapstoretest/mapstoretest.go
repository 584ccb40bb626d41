// Package mapstoretest provides an in-memory map store with the kernel
// maps' update and delete semantics, for tests of map store consumers.
package mapstoretest

import (
	"errors"
	"fmt"
	"iter"
	"maps"

	"github.com/cilium/ebpf"

	"github.com/psaab/tcusers/pkg/addr"
	"github.com/psaab/tcusers/pkg/mapstore"
)

// Store is an in-memory stand-in for mapstore.Store. Map iteration order
// is randomized, like the kernel's hash order is arbitrary.
type Store struct {
	Entries map[addr.Addr]uint16
	Config  *mapstore.ConfigRecord

	// Call counters.
	Adds, Updates, Deletes, Pushes int

	// FailOn makes mutations of this address fail.
	FailOn *addr.Addr
	// IterErr is yielded after all entries when set.
	IterErr error
}

// New returns a store holding the given address to classid mappings.
func New(entries map[string]uint16) *Store {
	s := &Store{Entries: make(map[addr.Addr]uint16)}
	for a, id := range entries {
		s.Entries[addr.MustParse(a)] = id
	}
	return s
}

// Mutations returns the number of calls that changed or tried to change
// the store.
func (s *Store) Mutations() int {
	return s.Adds + s.Updates + s.Deletes + s.Pushes
}

// Snapshot returns the contents keyed by address string.
func (s *Store) Snapshot() map[string]uint16 {
	m := make(map[string]uint16, len(s.Entries))
	for a, id := range s.Entries {
		m[a.String()] = id
	}
	return m
}

func (s *Store) failing(a addr.Addr) bool {
	return s.FailOn != nil && addr.Compare(*s.FailOn, a) == 0
}

// Lookup implements the map store lookup.
func (s *Store) Lookup(a addr.Addr) (uint16, bool, error) {
	id, ok := s.Entries[a]
	return id, ok, nil
}

// Update implements the map store update, honoring mode.
func (s *Store) Update(a addr.Addr, classID uint16, mode mapstore.UpdateMode) error {
	_, exists := s.Entries[a]
	if mode == mapstore.MustNotExist {
		s.Adds++
	} else {
		s.Updates++
	}
	var err error
	switch {
	case s.failing(a):
		err = errors.New("injected failure")
	case mode == mapstore.MustNotExist && exists:
		err = ebpf.ErrKeyExist
	case mode == mapstore.MustExist && !exists:
		err = ebpf.ErrKeyNotExist
	}
	if err != nil {
		return fmt.Errorf("%w (addr='%s', mode=%s, error='%w')", mapstore.ErrUpdateElem, a, mode, err)
	}
	s.Entries[a] = classID
	return nil
}

// Delete implements the map store delete.
func (s *Store) Delete(a addr.Addr) error {
	s.Deletes++
	_, exists := s.Entries[a]
	if s.failing(a) || !exists {
		return fmt.Errorf("%w (addr='%s', error='%w')", mapstore.ErrDeleteElem, a, ebpf.ErrKeyNotExist)
	}
	delete(s.Entries, a)
	return nil
}

// PushConfig records the configuration record.
func (s *Store) PushConfig(rec mapstore.ConfigRecord) error {
	s.Pushes++
	s.Config = &rec
	return nil
}

// All yields a snapshot of the entries, grouped by address type.
func (s *Store) All() iter.Seq2[mapstore.Entry, error] {
	snapshot := maps.Clone(s.Entries)
	return func(yield func(mapstore.Entry, error) bool) {
		for _, t := range addr.Types {
			for a, id := range snapshot {
				if a.Type() != t {
					continue
				}
				if !yield(mapstore.Entry{Addr: a, ClassID: id}, nil) {
					return
				}
			}
		}
		if s.IterErr != nil {
			yield(mapstore.Entry{}, fmt.Errorf("%w (%w)", mapstore.ErrNextKey, s.IterErr))
		}
	}
}
