// Package history keeps the undo/redo history of a scan session.
//
// A History is a value: every transition returns a new History and leaves
// the receiver untouched. Snapshots are never modified once committed, so
// successive histories share them.
package history

import (
	"github.com/fjod/go_fashionary/internal/domain"
)

// Command is one of AddItem, RemoveItem, RemoveItems, Clear, Undo or Redo.
type Command interface {
	apply(h History) History
}

type AddItem struct {
	Item domain.ScannedItem
}

type RemoveItem struct {
	ID string
}

// RemoveItems drops every listed id in one entry. It is a no-op when none
// of them is in the current snapshot.
type RemoveItems struct {
	IDs []string
}

type Clear struct{}

type Undo struct{}

type Redo struct{}

// History is a linear list of snapshots and a cursor into it. entries[0] is
// always the empty snapshot and 0 <= cursor < len(entries).
type History struct {
	entries    []domain.Snapshot
	cursor     int
	maxEntries int
}

// New returns a history holding only the empty snapshot. maxEntries caps the
// number of retained entries; 0 means unbounded. Past the cap the oldest
// entry after the base one is evicted, so deep undo is lost first.
func New(maxEntries int) History {
	if maxEntries < 0 {
		maxEntries = 0
	}
	if maxEntries == 1 {
		maxEntries = 2
	}
	return History{
		entries:    []domain.Snapshot{{}},
		maxEntries: maxEntries,
	}
}

// Apply is the transition function of the history.
func Apply(h History, cmd Command) History {
	if len(h.entries) == 0 {
		h = New(h.maxEntries)
	}
	return cmd.apply(h)
}

func (c AddItem) apply(h History) History {
	cur := h.entries[h.cursor]
	if cur.Contains(c.Item.ID) {
		return h
	}
	next := make(domain.Snapshot, 0, len(cur)+1)
	next = append(next, c.Item)
	next = append(next, cur...)
	return h.commit(next)
}

func (c RemoveItem) apply(h History) History {
	cur := h.entries[h.cursor]
	next := make(domain.Snapshot, 0, len(cur))
	for _, item := range cur {
		if item.ID != c.ID {
			next = append(next, item)
		}
	}
	return h.commit(next)
}

func (c RemoveItems) apply(h History) History {
	drop := make(map[string]struct{}, len(c.IDs))
	for _, id := range c.IDs {
		drop[id] = struct{}{}
	}
	cur := h.entries[h.cursor]
	next := make(domain.Snapshot, 0, len(cur))
	for _, item := range cur {
		if _, ok := drop[item.ID]; !ok {
			next = append(next, item)
		}
	}
	if len(next) == len(cur) {
		return h
	}
	return h.commit(next)
}

func (Clear) apply(h History) History {
	return h.commit(domain.Snapshot{})
}

func (Undo) apply(h History) History {
	if h.cursor > 0 {
		h.cursor--
	}
	return h
}

func (Redo) apply(h History) History {
	if h.cursor < len(h.entries)-1 {
		h.cursor++
	}
	return h
}

// commit drops the redo branch, appends snap and moves the cursor onto it.
func (h History) commit(snap domain.Snapshot) History {
	entries := make([]domain.Snapshot, h.cursor+1, h.cursor+2)
	copy(entries, h.entries[:h.cursor+1])
	entries = append(entries, snap)

	if h.maxEntries > 0 && len(entries) > h.maxEntries {
		excess := len(entries) - h.maxEntries
		entries = append(entries[:1], entries[1+excess:]...)
	}

	return History{
		entries:    entries,
		cursor:     len(entries) - 1,
		maxEntries: h.maxEntries,
	}
}

func (h History) AddItem(item domain.ScannedItem) History { return Apply(h, AddItem{Item: item}) }
func (h History) RemoveItem(id string) History            { return Apply(h, RemoveItem{ID: id}) }
func (h History) RemoveItems(ids ...string) History       { return Apply(h, RemoveItems{IDs: ids}) }
func (h History) Clear() History                          { return Apply(h, Clear{}) }
func (h History) Undo() History                           { return Apply(h, Undo{}) }
func (h History) Redo() History                           { return Apply(h, Redo{}) }

// Current returns a copy of the active snapshot.
func (h History) Current() domain.Snapshot {
	if len(h.entries) == 0 {
		return domain.Snapshot{}
	}
	cur := h.entries[h.cursor]
	out := make(domain.Snapshot, len(cur))
	copy(out, cur)
	return out
}

func (h History) Contains(id string) bool {
	if len(h.entries) == 0 {
		return false
	}
	return h.entries[h.cursor].Contains(id)
}

func (h History) Len() int {
	if len(h.entries) == 0 {
		return 1
	}
	return len(h.entries)
}

func (h History) Cursor() int     { return h.cursor }
func (h History) CanUndo() bool   { return h.cursor > 0 }
func (h History) CanRedo() bool   { return h.cursor < h.Len()-1 }
func (h History) MaxEntries() int { return h.maxEntries }
