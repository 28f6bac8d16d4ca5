// Package peer implements the mesh's peer table: an insertion-ordered,
// duplicate-free set of endpoints with a hard cap, added to only.
package peer

import "github.com/netmesh/timesync/wire"

// MaxEntries is the hard cap on table size (spec §3).
const MaxEntries = 65535

// Table is an ordered, duplicate-free sequence of endpoints. The zero
// value is ready to use. Entries are only ever appended, never removed.
type Table struct {
	entries []wire.Endpoint
	index   map[wire.Endpoint]struct{}
}

// New returns an empty Table.
func New() *Table {
	return &Table{index: make(map[wire.Endpoint]struct{})}
}

// Contains reports whether ep is already in the table.
func (t *Table) Contains(ep wire.Endpoint) bool {
	if t.index == nil {
		return false
	}
	_, ok := t.index[ep]
	return ok
}

// Len returns the current number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Full reports whether the table has reached MaxEntries.
func (t *Table) Full() bool {
	return t.Len() >= MaxEntries
}

// Append adds ep to the end of the table. Callers must have already
// checked Contains and Full; Append itself is a no-op if ep is already
// present or the table is full, so it is always safe to call.
func (t *Table) Append(ep wire.Endpoint) {
	if t.index == nil {
		t.index = make(map[wire.Endpoint]struct{})
	}
	if t.Full() || t.Contains(ep) {
		return
	}
	t.entries = append(t.entries, ep)
	t.index[ep] = struct{}{}
}

// Entries returns the table's endpoints in insertion order. The returned
// slice must not be mutated by the caller.
func (t *Table) Entries() []wire.Endpoint {
	return t.entries
}
