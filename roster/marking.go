package roster

import (
	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
)

// RevisionSet is a set of RevisionIds — the value type marking sets use
// throughout (spec.md §3.3).
type RevisionSet map[hash.RevisionId]struct{}

func NewRevisionSet(ids ...hash.RevisionId) RevisionSet {
	s := make(RevisionSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s RevisionSet) Has(id hash.RevisionId) bool { _, ok := s[id]; return ok }
func (s RevisionSet) Add(id hash.RevisionId)       { s[id] = struct{}{} }

func (s RevisionSet) Equal(o RevisionSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

func (s RevisionSet) Clone() RevisionSet {
	cp := make(RevisionSet, len(s))
	for id := range s {
		cp[id] = struct{}{}
	}
	return cp
}

// Marking is the per-node provenance record paralleling a live Roster
// node, spec.md §3.3.
type Marking struct {
	Birth      hash.RevisionId
	ParentName RevisionSet
	Content    RevisionSet // empty for directories
	Attrs      map[AttrKey]RevisionSet
}

func newMarking(birth hash.RevisionId) *Marking {
	return &Marking{Birth: birth, ParentName: RevisionSet{}, Content: RevisionSet{}, Attrs: map[AttrKey]RevisionSet{}}
}

func (m *Marking) clone() *Marking {
	cp := &Marking{Birth: m.Birth, ParentName: m.ParentName.Clone(), Content: m.Content.Clone(), Attrs: map[AttrKey]RevisionSet{}}
	for k, v := range m.Attrs {
		cp.Attrs[k] = v.Clone()
	}
	return cp
}

// MarkingMap parallels a Roster: one Marking per live NodeId.
type MarkingMap struct {
	marks map[hash.NodeId]*Marking
}

// NewMarkingMap creates an empty marking map.
func NewMarkingMap() *MarkingMap { return &MarkingMap{marks: map[hash.NodeId]*Marking{}} }

// Clone deep-copies the marking map.
func (m *MarkingMap) Clone() *MarkingMap {
	cp := NewMarkingMap()
	for id, mk := range m.marks {
		cp.marks[id] = mk.clone()
	}
	return cp
}

// Get returns the marking for id, or NotFound.
func (m *MarkingMap) Get(id hash.NodeId) (*Marking, error) {
	mk, ok := m.marks[id]
	if !ok {
		return nil, coreerr.New(coreerr.NotFound, "no marking for node %d", id)
	}
	return mk, nil
}

// Set installs (or replaces) the marking for id.
func (m *MarkingMap) Set(id hash.NodeId, mk *Marking) { m.marks[id] = mk }

// Delete removes the marking entry for id (node has died).
func (m *MarkingMap) Delete(id hash.NodeId) { delete(m.marks, id) }

// PutBirth records a brand-new node born at rev: mark(child) = {child}
// for every field, per the mark-merge rule's base case.
func (m *MarkingMap) PutBirth(id hash.NodeId, isFile bool, rev hash.RevisionId) *Marking {
	mk := newMarking(rev)
	mk.ParentName.Add(rev)
	if isFile {
		mk.Content.Add(rev)
	}
	m.marks[id] = mk
	return mk
}

func (m *MarkingMap) checkAgainst(r *Roster) error {
	for _, n := range r.AllNodes() {
		if !n.attached {
			continue
		}
		mk, ok := m.marks[n.Id]
		if !ok {
			return coreerr.New(coreerr.Corrupt, "node %d has no marking", n.Id)
		}
		if len(mk.ParentName) == 0 {
			return coreerr.New(coreerr.Corrupt, "node %d has empty parent_name marks", n.Id)
		}
		if n.IsDir && len(mk.Content) != 0 {
			return coreerr.New(coreerr.Corrupt, "directory node %d has file_content marks", n.Id)
		}
		if !n.IsDir && len(mk.Content) == 0 {
			return coreerr.New(coreerr.Corrupt, "file node %d has empty file_content marks", n.Id)
		}
	}
	for id := range m.marks {
		if !r.HasNode(id) {
			return coreerr.New(coreerr.Corrupt, "marking exists for non-existent node %d", id)
		}
		if n := r.nodes[id]; !n.attached {
			return coreerr.New(coreerr.Corrupt, "marking exists for detached node %d", id)
		}
	}
	return nil
}

// ParentValue is one parent's view of a per-node field value, used by
// MarkMerge: the field's current value in that parent roster (or absent
// if the node did not exist there), plus that parent's mark set for the
// field.
type ParentValue struct {
	Present bool
	Value   interface{}
	Marks   RevisionSet
}

// MarkMerge implements spec.md §3.3's mark-merge rule for a single field
// on a single child revision: mark(child) = {child} if the child's value
// differs from all parents' values (or the node didn't exist in a
// parent), else the union of marks from parents whose value still
// matches the child's value.
func MarkMerge(childRev hash.RevisionId, childValue interface{}, parents []ParentValue, equal func(a, b interface{}) bool) RevisionSet {
	out := RevisionSet{}
	for _, p := range parents {
		if p.Present && equal(p.Value, childValue) {
			for id := range p.Marks {
				out[id] = struct{}{}
			}
		}
	}
	if len(out) == 0 {
		out.Add(childRev)
	}
	return out
}
