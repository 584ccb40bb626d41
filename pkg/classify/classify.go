// Package classify assigns a classid to every entry, either directly from
// a numeric user ID or from a least-used histogram over the user flow
// range.
package classify

import (
	"cmp"
	"log/slog"
	"slices"
	"strconv"

	"github.com/psaab/tcusers/pkg/config"
	"github.com/psaab/tcusers/pkg/entry"
)

// Method records how an entry received its classid.
type Method int

const (
	// Direct means the user ID was used as the classid.
	Direct Method = iota
	// Shared means the classid was copied from an entry of the same user.
	Shared
	// Indirect means the classid was drawn from the histogram.
	Indirect
)

func (m Method) String() string {
	switch m {
	case Direct:
		return "direct"
	case Shared:
		return "shared"
	default:
		return "indirect"
	}
}

// Stats counts classified entries per method.
type Stats map[Method]int

// Classifier assigns classids within the user flow range.
type Classifier struct {
	userFlows config.Range
	log       *slog.Logger
}

// New returns a classifier for the given user flow range. A nil logger
// uses slog.Default.
func New(userFlows config.Range, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{userFlows: userFlows, log: log}
}

// Classify runs the direct pass followed by the indirect pass. Every entry
// is classified on return. The store is left sorted unclassified-first by
// user ID when the indirect pass ran.
func (c *Classifier) Classify(s *entry.Store) Stats {
	stats := Stats{}
	c.direct(s, stats)
	c.indirect(s, stats)
	return stats
}

// ClassIDForUser returns the user ID as a classid when it is a decimal
// integer inside the user flow range.
func (c *Classifier) ClassIDForUser(userID string) (uint16, bool) {
	v, err := strconv.ParseInt(userID, 10, 64)
	if err != nil || !c.userFlows.ContainsInt(v) {
		return 0, false
	}
	return uint16(v), true
}

func (c *Classifier) direct(s *entry.Store, stats Stats) {
	for i := range s.Len() {
		e := s.At(i)
		if e.Classified {
			continue
		}
		if id, ok := c.ClassIDForUser(e.UserID); ok {
			e.ClassID = id
			e.Classified = true
			stats[Direct]++
			c.log.Debug("classify", "addr", e.Addr, "classid", e.ClassID,
				"method", Direct, "userid", e.UserID)
		}
	}
}

func (c *Classifier) indirect(s *entry.Store, stats Stats) {
	s.Sort(entry.ByClassifiedUserID)
	if s.Len() == 0 || s.At(0).Classified {
		return
	}

	h := newHistogram(c.userFlows, s)
	cur := s.Cursor()
	for {
		e, prev := cur.Next()
		if e == nil || e.Classified {
			break
		}
		method := Indirect
		if prev != nil && prev.Classified && prev.UserID == e.UserID {
			e.ClassID = prev.ClassID
			method = Shared
		} else {
			e.ClassID = h.leastUsed()
		}
		e.Classified = true
		stats[method]++
		c.log.Debug("classify", "addr", e.Addr, "classid", e.ClassID,
			"method", method, "userid", e.UserID)
	}
}

// bucket counts the entries holding one classid.
type bucket struct {
	classID uint16
	count   int
}

// histogram hands out classids least-used first.
type histogram struct {
	buckets []bucket
	pos     int
}

// newHistogram builds one bucket per classid in r, seeded with the
// already classified entries of s, sorted by count then classid.
func newHistogram(r config.Range, s *entry.Store) *histogram {
	buckets := make([]bucket, r.Size())
	for i := range buckets {
		buckets[i].classID = r.Lo + uint16(i)
	}
	for _, e := range s.Entries() {
		if e.Classified && r.Contains(e.ClassID) {
			buckets[e.ClassID-r.Lo].count++
		}
	}
	slices.SortFunc(buckets, func(a, b bucket) int {
		if c := cmp.Compare(a.count, b.count); c != 0 {
			return c
		}
		return cmp.Compare(a.classID, b.classID)
	})
	return &histogram{buckets: buckets}
}

// leastUsed takes the bucket at the cursor and advances. The cursor wraps
// to the start at the end of the array, or when the next bucket was
// already used more than the one just taken. The array is not re-sorted,
// so the spread is even only among buckets tied at the minimum.
func (h *histogram) leastUsed() uint16 {
	b := &h.buckets[h.pos]
	h.pos++
	if h.pos >= len(h.buckets) || h.buckets[h.pos].count > b.count {
		h.pos = 0
	}
	b.count++
	return b.classID
}
