// Package reconcile brings the classid maps in line with the classified
// entries using the fewest map operations.
package reconcile

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/psaab/tcusers/pkg/addr"
	"github.com/psaab/tcusers/pkg/entry"
	"github.com/psaab/tcusers/pkg/mapstore"
)

// Store is the subset of the map store the reconciler needs.
type Store interface {
	All() iter.Seq2[mapstore.Entry, error]
	Update(a addr.Addr, classID uint16, mode mapstore.UpdateMode) error
	Delete(a addr.Addr) error
}

// Action is the change applied for one address.
type Action int

const (
	Leave Action = iota
	Add
	Update
	Delete
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "leave"
	}
}

// Actions lists every action, for reporting.
var Actions = []Action{Leave, Add, Update, Delete}

// Result counts the actions taken (or, in dry-run mode, planned).
type Result map[Action]int

// Changes returns the number of mutating actions.
func (r Result) Changes() int {
	return r[Add] + r[Update] + r[Delete]
}

// Reconciler diffs desired entries against the map store.
type Reconciler struct {
	store  Store
	dryRun bool
	log    *slog.Logger
}

// New returns a reconciler for store. With dryRun set, actions are logged
// but the store is never mutated. A nil logger uses slog.Default.
func New(store Store, dryRun bool, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, dryRun: dryRun, log: log}
}

// Sync reads the whole store, then adds, updates and deletes so that the
// store maps exactly the addresses in desired to their classids. desired
// is re-sorted by address. The first store error aborts the run; changes
// already applied are kept.
func (r *Reconciler) Sync(desired *entry.Store) (Result, error) {
	current, err := r.current()
	if err != nil {
		return nil, err
	}
	desired.Sort(entry.ByAddr)

	res := Result{}
	want := desired.Entries()
	i, j := 0, 0
	for i < len(want) || j < len(current) {
		var d, c *addr.Addr
		if i < len(want) {
			d = &want[i].Addr
		}
		if j < len(current) {
			c = &current[j].Addr
		}

		var err error
		switch cmp := addr.ComparePtr(d, c); {
		case cmp == 0:
			if want[i].ClassID != current[j].ClassID {
				err = r.apply(res, Update, *d, want[i].ClassID, current[j].ClassID)
			} else {
				err = r.apply(res, Leave, *d, want[i].ClassID, current[j].ClassID)
			}
			i++
			j++
		case cmp < 0:
			err = r.apply(res, Add, *d, want[i].ClassID, 0)
			i++
		default:
			err = r.apply(res, Delete, *c, 0, current[j].ClassID)
			j++
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// current collects the store contents sorted by address.
func (r *Reconciler) current() ([]mapstore.Entry, error) {
	var cur []mapstore.Entry
	for e, err := range r.store.All() {
		if err != nil {
			return nil, fmt.Errorf("read BPF maps: %w", err)
		}
		cur = append(cur, e)
	}
	slices.SortFunc(cur, func(a, b mapstore.Entry) int {
		return addr.Compare(a.Addr, b.Addr)
	})
	return cur, nil
}

// apply logs one action and, unless in dry-run mode, performs it.
func (r *Reconciler) apply(res Result, act Action, a addr.Addr, classID, oldClassID uint16) error {
	res[act]++

	switch act {
	case Leave:
		r.log.Debug("sync", "action", act, "addr", a, "classid", classID)
		return nil
	case Add:
		r.log.Info("sync", "action", act, "addr", a, "classid", classID)
	case Update:
		r.log.Info("sync", "action", act, "addr", a, "classid", classID, "old_classid", oldClassID)
	case Delete:
		r.log.Info("sync", "action", act, "addr", a, "classid", oldClassID)
	}
	if r.dryRun {
		return nil
	}

	switch act {
	case Add:
		return r.store.Update(a, classID, mapstore.MustNotExist)
	case Update:
		return r.store.Update(a, classID, mapstore.MustExist)
	default:
		return r.store.Delete(a)
	}
}
