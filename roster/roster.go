package roster

import (
	"sort"

	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/vpath"
)

// Roster is a mapping NodeId -> Node plus a distinguished root, satisfying
// spec.md §3.3's five invariants. Zero value is not usable; use New.
type Roster struct {
	nodes map[hash.NodeId]*Node
	root  hash.NodeId
}

// New creates an empty roster with a fresh root directory.
func New(ids *hash.NodeIdSource) *Roster {
	root := ids.Next()
	r := &Roster{nodes: map[hash.NodeId]*Node{}}
	n := newNode(root, true)
	n.Parent = root
	n.attached = true
	r.nodes[root] = n
	r.root = root
	return r
}

// NewWithRoot creates an empty roster whose root directory carries an
// externally supplied id, used when reconstructing a roster from its
// canonical serialized form (see ParseFull), where node ids are already
// fixed by the persisted data rather than freshly allocated.
func NewWithRoot(rootId hash.NodeId) *Roster {
	r := &Roster{nodes: map[hash.NodeId]*Node{}}
	n := newNode(rootId, true)
	n.Parent = rootId
	n.attached = true
	r.nodes[rootId] = n
	r.root = rootId
	return r
}

// Clone returns a deep, independent copy (copy-on-write single-writer
// path per DESIGN.md: callers share *Roster freely until they mutate,
// at which point they Clone first).
func (r *Roster) Clone() *Roster {
	cp := &Roster{nodes: make(map[hash.NodeId]*Node, len(r.nodes)), root: r.root}
	for id, n := range r.nodes {
		cp.nodes[id] = n.clone()
	}
	return cp
}

// Root returns the root node's id.
func (r *Roster) Root() hash.NodeId { return r.root }

// HasNode reports whether id is present (live, attached or detached).
func (r *Roster) HasNode(id hash.NodeId) bool {
	_, ok := r.nodes[id]
	return ok
}

// GetNode returns the node for id, or NotFound.
func (r *Roster) GetNode(id hash.NodeId) (*Node, error) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, coreerr.New(coreerr.NotFound, "no such node %d", id)
	}
	return n, nil
}

// AllNodes enumerates all nodes in stable order (by NodeId), per
// spec.md invariant 5.
func (r *Roster) AllNodes() []*Node {
	ids := make([]hash.NodeId, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = r.nodes[id]
	}
	return out
}

// CreateFileNode allocates a new, detached file node under the
// caller-supplied id with the given content.
func (r *Roster) CreateFileNode(id hash.NodeId, content hash.FileId) *Node {
	n := newNode(id, false)
	n.Content = content
	r.nodes[id] = n
	return n
}

// CreateDirNode allocates a new, detached directory node.
func (r *Roster) CreateDirNode(id hash.NodeId) *Node {
	n := newNode(id, true)
	r.nodes[id] = n
	return n
}

// AttachNode attaches a detached node nid under the directory at dirId
// with the given name. Requires the parent exists, is a directory, the
// name is not already occupied, and nid is currently detached.
func (r *Roster) AttachNode(nid hash.NodeId, dirId hash.NodeId, name vpath.PathComponent) error {
	n, err := r.GetNode(nid)
	if err != nil {
		return err
	}
	if n.attached {
		return coreerr.New(coreerr.UserError, "node %d is already attached", nid)
	}
	dir, err := r.GetNode(dirId)
	if err != nil {
		return err
	}
	if err := dir.requireDir(); err != nil {
		return coreerr.Wrap(coreerr.UserError, err, "attach parent %d", dirId)
	}
	if _, occupied := dir.Children[name]; occupied {
		return coreerr.New(coreerr.UserError, "duplicate name %q under %d", name, dirId)
	}
	dir.Children[name] = nid
	n.Parent = dirId
	n.Name = name
	n.attached = true
	return nil
}

// DropDetachedNode removes a detached node from the roster. Directories
// must have no children.
func (r *Roster) DropDetachedNode(nid hash.NodeId) error {
	n, err := r.GetNode(nid)
	if err != nil {
		return err
	}
	if n.attached {
		return coreerr.New(coreerr.UserError, "node %d is attached, cannot drop", nid)
	}
	if n.IsDir && len(n.Children) != 0 {
		return coreerr.New(coreerr.UserError, "directory %d is not empty", nid)
	}
	delete(r.nodes, nid)
	return nil
}

// DetachNode detaches a currently-attached, non-root node from its parent,
// leaving it present in the roster (so its attrs/content survive) but
// unreachable from root until re-attached or dropped.
func (r *Roster) DetachNode(nid hash.NodeId) error {
	n, err := r.GetNode(nid)
	if err != nil {
		return err
	}
	if nid == r.root {
		return coreerr.New(coreerr.UserError, "cannot detach the root")
	}
	if !n.attached {
		return coreerr.New(coreerr.UserError, "node %d is already detached", nid)
	}
	parent, err := r.GetNode(n.Parent)
	if err != nil {
		return err
	}
	delete(parent.Children, n.Name)
	n.attached = false
	n.Parent = hash.NullNode
	n.Name = ""
	return nil
}

// ReplaceNodeId renumbers a node, used only during migration/merge
// alignment (spec.md §4.4). Preserves all other fields, updates the
// parent's Children map and, if the node is a directory, every child's
// Parent pointer.
func (r *Roster) ReplaceNodeId(oldId, newId hash.NodeId) error {
	if r.HasNode(newId) {
		return coreerr.New(coreerr.Invalid, "target id %d already in use", newId)
	}
	n, err := r.GetNode(oldId)
	if err != nil {
		return err
	}
	delete(r.nodes, oldId)
	n.Id = newId
	r.nodes[newId] = n
	if n.attached {
		if oldId == r.root {
			r.root = newId
			n.Parent = newId
		} else {
			parent, err := r.GetNode(n.Parent)
			if err != nil {
				return err
			}
			parent.Children[n.Name] = newId
		}
	}
	if n.IsDir {
		for _, childId := range n.Children {
			child, err := r.GetNode(childId)
			if err != nil {
				return err
			}
			child.Parent = newId
		}
	}
	return nil
}

// ResolvePath walks from the root following components, returning the
// terminal NodeId, or NotFound.
func (r *Roster) ResolvePath(p vpath.FilePath) (hash.NodeId, error) {
	cur := r.root
	for _, c := range p {
		n, err := r.GetNode(cur)
		if err != nil {
			return hash.NullNode, err
		}
		if err := n.requireDir(); err != nil {
			return hash.NullNode, coreerr.Wrap(coreerr.NotFound, err, "resolving %q", p.String())
		}
		next, ok := n.Children[c]
		if !ok {
			return hash.NullNode, coreerr.New(coreerr.NotFound, "no such path %q", p.String())
		}
		cur = next
	}
	return cur, nil
}

// PathOf reconstructs the full path of an attached node by walking
// parents to the root.
func (r *Roster) PathOf(nid hash.NodeId) (vpath.FilePath, error) {
	var comps []vpath.PathComponent
	cur := nid
	for {
		n, err := r.GetNode(cur)
		if err != nil {
			return nil, err
		}
		if cur == r.root {
			break
		}
		if !n.attached {
			return nil, coreerr.New(coreerr.Invalid, "node %d is detached, has no path", nid)
		}
		comps = append(comps, n.Name)
		cur = n.Parent
	}
	// reverse
	for i, j := 0, len(comps)-1; i < j; i, j = i+1, j-1 {
		comps[i], comps[j] = comps[j], comps[i]
	}
	return vpath.FilePath(comps), nil
}

// CheckSaneAgainst validates spec.md §4.4's structural invariants plus
// consistency against the supplied MarkingMap: every live node has a
// marking entry and vice versa, every referenced RevisionId is plausible,
// and file-only marking fields are absent for directories.
func (r *Roster) CheckSaneAgainst(m *MarkingMap) error {
	if _, ok := r.nodes[r.root]; !ok {
		return coreerr.New(coreerr.Corrupt, "root node %d missing", r.root)
	}
	rootNode := r.nodes[r.root]
	if !rootNode.IsDir {
		return coreerr.New(coreerr.Corrupt, "root node %d is not a directory", r.root)
	}
	if rootNode.Parent != r.root {
		return coreerr.New(coreerr.Corrupt, "root node %d does not self-parent", r.root)
	}
	for _, n := range r.nodes {
		if !n.attached {
			continue // detached scratch nodes are not part of the live tree
		}
		if n.Id != r.root {
			parent, ok := r.nodes[n.Parent]
			if !ok {
				return coreerr.New(coreerr.Corrupt, "node %d has missing parent %d", n.Id, n.Parent)
			}
			if !parent.IsDir {
				return coreerr.New(coreerr.Corrupt, "node %d's parent %d is not a directory", n.Id, n.Parent)
			}
			if got, ok := parent.Children[n.Name]; !ok || got != n.Id {
				return coreerr.New(coreerr.Corrupt, "node %d not reachable via parent.children[%q]", n.Id, n.Name)
			}
		}
		if n.IsDir {
			seen := map[vpath.PathComponent]hash.NodeId{}
			for name, cid := range n.Children {
				if other, dup := seen[name]; dup {
					return coreerr.New(coreerr.Corrupt, "duplicate name %q under %d (%d, %d)", name, n.Id, other, cid)
				}
				seen[name] = cid
			}
		}
		if err := r.checkAcyclic(n.Id); err != nil {
			return err
		}
	}
	if m != nil {
		if err := m.checkAgainst(r); err != nil {
			return err
		}
	}
	return nil
}

func (r *Roster) checkAcyclic(start hash.NodeId) error {
	visited := map[hash.NodeId]bool{}
	cur := start
	for {
		if visited[cur] {
			return coreerr.New(coreerr.Corrupt, "cycle detected reaching node %d", start)
		}
		visited[cur] = true
		if cur == r.root {
			return nil
		}
		n, ok := r.nodes[cur]
		if !ok {
			return coreerr.New(coreerr.Corrupt, "dangling parent chain from %d", start)
		}
		if !n.attached {
			return nil // detached subtree, no path to root expected
		}
		cur = n.Parent
	}
}
