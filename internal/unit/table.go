package unit

import (
	"sort"
	"strings"
	"sync"
)

// Table maps logical type identity (simple name) to loaded versions.
// Resolution is deterministic: the most recently added dynamic version wins,
// otherwise the first static registration.
type Table struct {
	mu     sync.RWMutex
	units  []*Unit
	byName map[string][]entry
	seq    int
}

type entry struct {
	desc *TypeDescriptor
	seq  int
}

// NewTable creates an empty type table.
func NewTable() *Table {
	return &Table{byName: make(map[string][]entry)}
}

// Add records every type of u. Units are append-only.
func (t *Table) Add(u *Unit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units = append(t.units, u)
	for _, d := range u.Types {
		t.seq++
		t.byName[d.Name] = append(t.byName[d.Name], entry{desc: d, seq: t.seq})
	}
}

// Resolve finds the current version of a type. name is either a simple name
// or a unit-qualified one (unit.Type, matched exactly).
func (t *Table) Resolve(name string) (*TypeDescriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if idx := strings.LastIndex(name, "."); idx > 0 {
		simple := name[idx+1:]
		for _, e := range t.byName[simple] {
			if e.desc.QualifiedName() == name {
				return e.desc, true
			}
		}
		return nil, false
	}

	var best *entry
	for i := range t.byName[name] {
		e := &t.byName[name][i]
		switch {
		case best == nil:
			best = e
		case e.desc.Dynamic && !best.desc.Dynamic:
			best = e
		case e.desc.Dynamic && best.desc.Dynamic && e.seq > best.seq:
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.desc, true
}

// Candidates lists every loaded version of a simple name, oldest first.
func (t *Table) Candidates(name string) []*TypeDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*TypeDescriptor, 0, len(t.byName[name]))
	for _, e := range t.byName[name] {
		out = append(out, e.desc)
	}
	return out
}

// Units returns loaded units in load order.
func (t *Table) Units() []*Unit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Unit(nil), t.units...)
}

// Names returns every known simple type name, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
