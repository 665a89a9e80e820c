package merge

import (
	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
	"github.com/vcsforge/core/vpath"
)

// lifetime is spec.md §4.5 step 1's per-node classification.
type lifetime int

const (
	lifetimeAliveBoth lifetime = iota
	lifetimeAliveLOnly
	lifetimeAliveROnly
	lifetimeBornInL
	lifetimeBornInR
	lifetimeDeadBoth
)

func attached(r *roster.Roster, id hash.NodeId) bool {
	if r == nil || !r.HasNode(id) {
		return false
	}
	n, err := r.GetNode(id)
	return err == nil && n.IsAttached()
}

// classifyLifetimes classifies every NodeId present (attached) in any of
// a, l, r, per spec.md §4.5 step 1.
func classifyLifetimes(a, l, r *roster.Roster) map[hash.NodeId]lifetime {
	seen := map[hash.NodeId]bool{}
	collect := func(rr *roster.Roster) {
		if rr == nil {
			return
		}
		for _, n := range rr.AllNodes() {
			if n.IsAttached() {
				seen[n.Id] = true
			}
		}
	}
	collect(a)
	collect(l)
	collect(r)

	out := make(map[hash.NodeId]lifetime, len(seen))
	for id := range seen {
		inA, inL, inR := attached(a, id), attached(l, id), attached(r, id)
		switch {
		case inL && inR:
			out[id] = lifetimeAliveBoth
		case inL && !inR:
			if inA {
				out[id] = lifetimeAliveLOnly
			} else {
				out[id] = lifetimeBornInL
			}
		case inR && !inL:
			if inA {
				out[id] = lifetimeAliveROnly
			} else {
				out[id] = lifetimeBornInR
			}
		default:
			out[id] = lifetimeDeadBoth
		}
	}
	return out
}

// droppedModifiedConflict checks whether the still-alive side changed
// nid relative to the ancestor before the other side dropped it — a
// clean, unmodified drop needs no conflict at all.
func (m *merger) droppedModifiedConflict(nid hash.NodeId, lc lifetime) *Conflict {
	var survivor *roster.Roster
	if lc == lifetimeAliveLOnly {
		survivor = m.l.Roster
	} else {
		survivor = m.r.Roster
	}
	cur, err := survivor.GetNode(nid)
	if err != nil {
		return nil
	}
	anc, err := m.a.Roster.GetNode(nid)
	if err != nil {
		return nil
	}
	if !nodeChanged(anc, cur) {
		return nil
	}
	c := &Conflict{Kind: DroppedModified, Node: nid, IsDir: cur.IsDir}
	if lc == lifetimeAliveLOnly {
		c.LeftParent, c.LeftName = cur.Parent, cur.Name
		c.LeftContent = cur.Content
	} else {
		c.RightParent, c.RightName = cur.Parent, cur.Name
		c.RightContent = cur.Content
	}
	c.AncestorContent = anc.Content
	return c
}

func nodeChanged(a, b *roster.Node) bool {
	if a.Parent != b.Parent || a.Name != b.Name {
		return true
	}
	if !a.IsDir && a.Content != b.Content {
		return true
	}
	if len(a.Attrs) != len(b.Attrs) {
		return true
	}
	for k, v := range a.Attrs {
		if b.Attrs[k] != v {
			return true
		}
	}
	return false
}

type nameValue struct {
	parent hash.NodeId
	name   vpath.PathComponent
}

func nameEqual(a, b interface{}) bool { return a.(nameValue) == b.(nameValue) }

// mergeSurvivingNode handles a node that is present in the merged tree
// (alive in both, or freshly born in one side): resolves its (parent,
// name) placement, its content (files only) and its attributes, emitting
// MultipleNames/Content/Attribute conflicts as needed and installing the
// node plus its merged marking into m.out/m.marks.
func (m *merger) mergeSurvivingNode(nid hash.NodeId, lc lifetime) error {
	var lNode, rNode, aNode *roster.Node
	if lc != lifetimeBornInR {
		if n, err := m.l.Roster.GetNode(nid); err == nil {
			lNode = n
		}
	}
	if lc != lifetimeBornInL {
		if n, err := m.r.Roster.GetNode(nid); err == nil {
			rNode = n
		}
	}
	if m.a.Roster != nil {
		if n, err := m.a.Roster.GetNode(nid); err == nil && n.IsAttached() {
			aNode = n
		}
	}

	isDir := false
	switch {
	case lNode != nil:
		isDir = lNode.IsDir
	case rNode != nil:
		isDir = rNode.IsDir
	}

	parent, name, nameConflict := m.resolveName(nid, lNode, rNode, aNode)
	if nameConflict != nil {
		m.addConflict(nameConflict)
	} else {
		m.parentOf[nid] = parent
		m.nameOf[nid] = name
	}

	// The root directory is already present (attached) in m.out from
	// NewWithRoot; re-running Create*Node on it here would silently
	// detach it, so the generic node-creation path only applies to
	// everything else.
	isRoot := nid == m.out.Root()

	var contentId hash.FileId
	if isDir {
		if !isRoot {
			m.out.CreateDirNode(nid)
		}
	} else {
		cid, contentConflict, err := m.resolveContent(nid, lNode, rNode, aNode)
		if err != nil {
			return err
		}
		if contentConflict != nil {
			m.addConflict(contentConflict)
		}
		contentId = cid
		m.out.CreateFileNode(nid, contentId)
	}

	markEntry := &roster.Marking{Birth: m.childRev, ParentName: roster.RevisionSet{}, Content: roster.RevisionSet{}, Attrs: map[roster.AttrKey]roster.RevisionSet{}}
	switch {
	case aNode != nil:
		if am, err := m.a.Marks.Get(nid); err == nil {
			markEntry.Birth = am.Birth
		}
	case lNode != nil:
		if lm, err := m.l.Marks.Get(nid); err == nil {
			markEntry.Birth = lm.Birth
		}
	case rNode != nil:
		if rm, err := m.r.Marks.Get(nid); err == nil {
			markEntry.Birth = rm.Birth
		}
	}
	if nameConflict == nil {
		markEntry.ParentName = m.mergeNameMark(nid, lNode, rNode, nameValue{parent, name})
	}
	if !isDir {
		markEntry.Content = m.mergeContentMark(nid, lNode, rNode, contentId)
	}
	markEntry.Attrs = m.mergeAttrs(nid, lNode, rNode, aNode)
	m.marks.Set(nid, markEntry)
	return nil
}

// mergeNameMark applies spec.md §3.3's mark-merge rule to the
// (parent, name) field, using L and R as the two "parent" values (a
// merge revision's graph parents) and m.childRev as the fallback mark
// for a value neither side's existing mark set covers.
func (m *merger) mergeNameMark(nid hash.NodeId, lNode, rNode *roster.Node, merged nameValue) roster.RevisionSet {
	var parents []roster.ParentValue
	if lNode != nil {
		if lm, err := m.l.Marks.Get(nid); err == nil {
			parents = append(parents, roster.ParentValue{Present: true, Value: nameValue{lNode.Parent, lNode.Name}, Marks: lm.ParentName})
		}
	}
	if rNode != nil {
		if rm, err := m.r.Marks.Get(nid); err == nil {
			parents = append(parents, roster.ParentValue{Present: true, Value: nameValue{rNode.Parent, rNode.Name}, Marks: rm.ParentName})
		}
	}
	return roster.MarkMerge(m.childRev, merged, parents, nameEqual)
}

// mergeContentMark applies the same rule to a file's content field.
func (m *merger) mergeContentMark(nid hash.NodeId, lNode, rNode *roster.Node, merged hash.FileId) roster.RevisionSet {
	var parents []roster.ParentValue
	if lNode != nil {
		if lm, err := m.l.Marks.Get(nid); err == nil {
			parents = append(parents, roster.ParentValue{Present: true, Value: lNode.Content, Marks: lm.Content})
		}
	}
	if rNode != nil {
		if rm, err := m.r.Marks.Get(nid); err == nil {
			parents = append(parents, roster.ParentValue{Present: true, Value: rNode.Content, Marks: rm.Content})
		}
	}
	return roster.MarkMerge(m.childRev, merged, parents, func(a, b interface{}) bool {
		return a.(hash.FileId) == b.(hash.FileId)
	})
}

// resolveName implements spec.md §4.5 step 2's name resolution.
func (m *merger) resolveName(nid hash.NodeId, lNode, rNode, aNode *roster.Node) (hash.NodeId, vpath.PathComponent, *Conflict) {
	switch {
	case lNode != nil && rNode != nil:
		if lNode.Parent == rNode.Parent && lNode.Name == rNode.Name {
			return lNode.Parent, lNode.Name, nil
		}
		return hash.NullNode, "", &Conflict{
			Kind: MultipleNames, Node: nid,
			LeftParent: lNode.Parent, LeftName: lNode.Name,
			RightParent: rNode.Parent, RightName: rNode.Name,
		}
	case lNode != nil:
		return lNode.Parent, lNode.Name, nil
	case rNode != nil:
		return rNode.Parent, rNode.Name, nil
	default:
		return aNode.Parent, aNode.Name, nil
	}
}

// resolveContent implements spec.md §4.5 step 3 for a file node.
func (m *merger) resolveContent(nid hash.NodeId, lNode, rNode, aNode *roster.Node) (hash.FileId, *Conflict, error) {
	switch {
	case lNode != nil && rNode != nil:
		if lNode.Content == rNode.Content {
			return lNode.Content, nil, nil
		}
		if aNode != nil && lNode.Content == aNode.Content {
			return rNode.Content, nil, nil
		}
		if aNode != nil && rNode.Content == aNode.Content {
			return lNode.Content, nil, nil
		}
		var ancestorId hash.FileId
		if aNode != nil {
			ancestorId = aNode.Content
		}
		merged, ok, err := m.tryAutoMergeContent(ancestorId, lNode.Content, rNode.Content)
		if err != nil {
			return hash.FileId{}, nil, err
		}
		if ok {
			return merged, nil, nil
		}
		return hash.FileId{}, &Conflict{
			Kind: Content, Node: nid, IsDir: false,
			AncestorContent: ancestorId, LeftContent: lNode.Content, RightContent: rNode.Content,
		}, nil
	case lNode != nil:
		return lNode.Content, nil, nil
	case rNode != nil:
		return rNode.Content, nil, nil
	default:
		return hash.FileId{}, nil, coreerr.New(coreerr.Internal, "merge: node %d has no surviving side", nid)
	}
}
