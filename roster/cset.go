package roster

import (
	"sort"

	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/vpath"
)

// AttrEdit is one (path, key) -> value pair, used by Cset.AttrsSet.
type AttrEdit struct {
	Path  vpath.FilePath
	Key   AttrKey
	Value AttrValue
}

// AttrClear is one (path, key) pair to remove, used by Cset.AttrsCleared.
type AttrClear struct {
	Path vpath.FilePath
	Key  AttrKey
}

// Delta is a (old, new) FileId pair — deltas_applied's value type.
type Delta struct {
	Old hash.FileId
	New hash.FileId
}

// Cset is a value describing a function Roster -> Roster (spec.md §3.4).
// Fields are keyed and ordered internally as maps/slices for convenience;
// Apply always walks them in the fixed order delete -> rename -> add-dir
// -> add-file -> delta -> attr-clear -> attr-set, regardless of
// insertion order, so two Csets built differently but describing the
// same edit apply identically.
type Cset struct {
	NodesDeleted  []vpath.FilePath
	DirsAdded     []vpath.FilePath
	FilesAdded    map[string]hash.FileId // key: vpath.FilePath.String()
	NodesRenamed  map[string]vpath.FilePath // key: old path string, value: new path
	DeltasApplied map[string]Delta // key: path string
	AttrsCleared  []AttrClear
	AttrsSet      []AttrEdit
}

// NewCset returns an empty Cset ready for incremental construction.
func NewCset() *Cset {
	return &Cset{
		FilesAdded:    map[string]hash.FileId{},
		NodesRenamed:  map[string]vpath.FilePath{},
		DeltasApplied: map[string]Delta{},
	}
}

// IsEmpty reports whether the cset has no effect.
func (c *Cset) IsEmpty() bool {
	return len(c.NodesDeleted) == 0 && len(c.DirsAdded) == 0 && len(c.FilesAdded) == 0 &&
		len(c.NodesRenamed) == 0 && len(c.DeltasApplied) == 0 && len(c.AttrsCleared) == 0 && len(c.AttrsSet) == 0
}

// Apply applies c to base, returning a new Roster (base is left
// untouched: Apply clones first, matching the copy-on-write discipline
// in DESIGN.md). Markings, if non-nil, are updated in lockstep so the
// caller doesn't have to re-derive marks for a single-parent edit.
func (c *Cset) Apply(base *Roster, ids *hash.NodeIdSource, rev hash.RevisionId, m *MarkingMap) (*Roster, error) {
	r := base.Clone()

	sortedPaths := func(paths []vpath.FilePath) []vpath.FilePath {
		out := append([]vpath.FilePath(nil), paths...)
		sort.Slice(out, func(i, j int) bool { return vpath.Compare(out[i], out[j]) < 0 })
		return out
	}

	// 1. delete
	for _, p := range sortedPaths(c.NodesDeleted) {
		nid, err := r.ResolvePath(p)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "delete %q", p.String())
		}
		if err := r.DetachNode(nid); err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "delete %q", p.String())
		}
		if err := r.DropDetachedNode(nid); err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "delete %q", p.String())
		}
		if m != nil {
			m.Delete(nid)
		}
	}

	// 2. rename (bijective: source path must exist, dest must not)
	renameKeys := make([]string, 0, len(c.NodesRenamed))
	for k := range c.NodesRenamed {
		renameKeys = append(renameKeys, k)
	}
	sort.Strings(renameKeys)
	for _, k := range renameKeys {
		oldPath, err := vpath.ParseFilePath(k)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "rename key %q", k)
		}
		newPath := c.NodesRenamed[k]
		nid, err := r.ResolvePath(oldPath)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "rename source %q", oldPath.String())
		}
		if err := r.DetachNode(nid); err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "rename %q", oldPath.String())
		}
		parentPath, name := newPath.Parent()
		parentId, err := r.ResolvePath(parentPath)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "rename target parent %q", parentPath.String())
		}
		if err := r.AttachNode(nid, parentId, name); err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "rename target %q", newPath.String())
		}
		if m != nil {
			mk, err := m.Get(nid)
			if err != nil {
				return nil, err
			}
			mk.ParentName = NewRevisionSet(rev)
		}
	}

	// 3. add-dir
	for _, p := range sortedPaths(c.DirsAdded) {
		parentPath, name := p.Parent()
		parentId, err := r.ResolvePath(parentPath)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "add-dir parent %q", parentPath.String())
		}
		nid := ids.Next()
		r.CreateDirNode(nid)
		if err := r.AttachNode(nid, parentId, name); err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "add-dir %q", p.String())
		}
		if m != nil {
			m.PutBirth(nid, false, rev)
		}
	}

	// 4. add-file
	addKeys := make([]string, 0, len(c.FilesAdded))
	for k := range c.FilesAdded {
		addKeys = append(addKeys, k)
	}
	sort.Strings(addKeys)
	for _, k := range addKeys {
		p, err := vpath.ParseFilePath(k)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "add-file key %q", k)
		}
		parentPath, name := p.Parent()
		parentId, err := r.ResolvePath(parentPath)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "add-file parent %q", parentPath.String())
		}
		nid := ids.Next()
		r.CreateFileNode(nid, c.FilesAdded[k])
		if err := r.AttachNode(nid, parentId, name); err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "add-file %q", p.String())
		}
		if m != nil {
			m.PutBirth(nid, true, rev)
		}
	}

	// 5. delta (content changes)
	deltaKeys := make([]string, 0, len(c.DeltasApplied))
	for k := range c.DeltasApplied {
		deltaKeys = append(deltaKeys, k)
	}
	sort.Strings(deltaKeys)
	for _, k := range deltaKeys {
		p, err := vpath.ParseFilePath(k)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "delta key %q", k)
		}
		nid, err := r.ResolvePath(p)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "delta %q", p.String())
		}
		n, err := r.GetNode(nid)
		if err != nil {
			return nil, err
		}
		if err := n.requireFile(); err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "delta %q", p.String())
		}
		d := c.DeltasApplied[k]
		if n.Content != d.Old {
			return nil, coreerr.New(coreerr.Invalid, "delta %q: base mismatch", p.String())
		}
		n.Content = d.New
		if m != nil {
			mk, err := m.Get(nid)
			if err != nil {
				return nil, err
			}
			mk.Content = NewRevisionSet(rev)
		}
	}

	// 6. attr-clear
	for _, ac := range c.AttrsCleared {
		nid, err := r.ResolvePath(ac.Path)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "attr-clear %q", ac.Path.String())
		}
		n, err := r.GetNode(nid)
		if err != nil {
			return nil, err
		}
		delete(n.Attrs, ac.Key)
		if m != nil {
			mk, err := m.Get(nid)
			if err != nil {
				return nil, err
			}
			delete(mk.Attrs, ac.Key)
		}
	}

	// 7. attr-set
	for _, as := range c.AttrsSet {
		nid, err := r.ResolvePath(as.Path)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "attr-set %q", as.Path.String())
		}
		n, err := r.GetNode(nid)
		if err != nil {
			return nil, err
		}
		n.Attrs[as.Key] = as.Value
		if m != nil {
			mk, err := m.Get(nid)
			if err != nil {
				return nil, err
			}
			mk.Attrs[as.Key] = NewRevisionSet(rev)
		}
	}

	return r, nil
}

// MakeCset computes the minimal cset whose application transforms from
// into to, using NodeId identity (not path) to distinguish rename from
// delete+add — spec.md §4.4.
func MakeCset(from, to *Roster) (*Cset, error) {
	c := NewCset()

	fromIds := map[hash.NodeId]*Node{}
	for _, n := range from.AllNodes() {
		if n.attached {
			fromIds[n.Id] = n
		}
	}
	toIds := map[hash.NodeId]*Node{}
	for _, n := range to.AllNodes() {
		if n.attached {
			toIds[n.Id] = n
		}
	}

	for id, fn := range fromIds {
		tn, stillLive := toIds[id]
		if !stillLive {
			p, err := from.PathOf(id)
			if err != nil {
				return nil, err
			}
			c.NodesDeleted = append(c.NodesDeleted, p)
			continue
		}
		fp, err := from.PathOf(id)
		if err != nil {
			return nil, err
		}
		tp, err := to.PathOf(id)
		if err != nil {
			return nil, err
		}
		if !fp.Equal(tp) {
			c.NodesRenamed[fp.String()] = tp
		}
		if !fn.IsDir && !tn.IsDir && fn.Content != tn.Content {
			c.DeltasApplied[tp.String()] = Delta{Old: fn.Content, New: tn.Content}
		}
		for _, k := range fn.SortedAttrKeys() {
			if _, stillSet := tn.Attrs[k]; !stillSet {
				c.AttrsCleared = append(c.AttrsCleared, AttrClear{Path: tp, Key: k})
			}
		}
		for _, k := range tn.SortedAttrKeys() {
			oldV, had := fn.Attrs[k]
			if !had || oldV != tn.Attrs[k] {
				c.AttrsSet = append(c.AttrsSet, AttrEdit{Path: tp, Key: k, Value: tn.Attrs[k]})
			}
		}
	}

	for id, tn := range toIds {
		if _, existedBefore := fromIds[id]; existedBefore {
			continue
		}
		p, err := to.PathOf(id)
		if err != nil {
			return nil, err
		}
		if tn.IsDir {
			c.DirsAdded = append(c.DirsAdded, p)
		} else {
			c.FilesAdded[p.String()] = tn.Content
			for _, k := range tn.SortedAttrKeys() {
				c.AttrsSet = append(c.AttrsSet, AttrEdit{Path: p, Key: k, Value: tn.Attrs[k]})
			}
		}
	}

	return c, nil
}
