// Package entry holds the (address, user ID) records being classified.
package entry

import (
	"slices"
	"strings"

	"github.com/psaab/tcusers/pkg/addr"
)

// MaxUserIDLen is the maximum user ID length in bytes.
const MaxUserIDLen = 32

// Entry maps one address to a user and, once classified, a classid.
type Entry struct {
	Addr       addr.Addr
	UserID     string
	ClassID    uint16
	Classified bool
}

// Store is an ordered, growable collection of entries.
type Store struct {
	entries []Entry
}

// NewStore returns an empty store with room for n entries.
func NewStore(n int) *Store {
	return &Store{entries: make([]Entry, 0, n)}
}

// Append adds an entry at the end.
func (s *Store) Append(e Entry) {
	s.entries = append(s.entries, e)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// At returns a pointer to the i'th entry. The pointer is invalidated by
// Append and Sort.
func (s *Store) At(i int) *Entry {
	return &s.entries[i]
}

// Entries returns the backing slice. Mutations are visible to the store.
func (s *Store) Entries() []Entry {
	return s.entries
}

// Sort stably reorders the entries by cmp. Any outstanding Cursor is
// invalidated.
func (s *Store) Sort(cmp func(a, b *Entry) int) {
	slices.SortStableFunc(s.entries, func(a, b Entry) int {
		return cmp(&a, &b)
	})
}

// Cursor returns a forward cursor positioned before the first entry.
func (s *Store) Cursor() *Cursor {
	return &Cursor{s: s}
}

// Cursor walks a Store forward, exposing the previous element.
type Cursor struct {
	s   *Store
	pos int
}

// Next returns the next entry and the one before it. prev is nil for the
// first entry; e is nil once the store is exhausted.
func (c *Cursor) Next() (e, prev *Entry) {
	if c.pos >= len(c.s.entries) {
		return nil, nil
	}
	e = &c.s.entries[c.pos]
	if c.pos > 0 {
		prev = &c.s.entries[c.pos-1]
	}
	c.pos++
	return e, prev
}

// ByAddr orders entries by address.
func ByAddr(a, b *Entry) int {
	return addr.Compare(a.Addr, b.Addr)
}

// ByClassifiedUserID orders unclassified entries first, then by user ID.
func ByClassifiedUserID(a, b *Entry) int {
	if a.Classified != b.Classified {
		if !a.Classified {
			return -1
		}
		return 1
	}
	return strings.Compare(a.UserID, b.UserID)
}
