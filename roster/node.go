// Package roster implements the in-memory tree model described in
// spec.md §3.3–§3.4: nodes with stable identities, per-attribute
// provenance ("marking"), and the Cset algebra that rewrites one roster
// into another. Grounded on the teacher's flat parent-indexed tree
// (node/node.go's Node.children map) generalized from a single bool
// isFile/path pair into full dir/file node variants with NodeId identity
// instead of path identity — so renames are first-class instead of being
// inferred from delete+add, per spec.md §4.4's make_cset note.
package roster

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/vpath"
)

// AttrKey/AttrValue are opaque strings; the roster layer never interprets
// attribute semantics (that belongs to a higher layer).
type AttrKey string
type AttrValue string

// Node is one entry in a Roster: either a directory (Children populated,
// Content zero) or a file (Content set, Children nil). Parent/Name give
// the single place-in-tree; spec.md invariant 2 requires
// parent.Children[Name] == self.Id.
type Node struct {
	Id       hash.NodeId
	Parent   hash.NodeId // == Id for the root
	Name     vpath.PathComponent
	IsDir    bool
	Attrs    map[AttrKey]AttrValue
	Children map[vpath.PathComponent]hash.NodeId // dir only
	Content  hash.FileId                         // file only
	attached bool
}

func newNode(id hash.NodeId, isDir bool) *Node {
	n := &Node{Id: id, IsDir: isDir, Attrs: map[AttrKey]AttrValue{}}
	if isDir {
		n.Children = map[vpath.PathComponent]hash.NodeId{}
	}
	return n
}

// clone deep-copies a node for copy-on-write roster cloning.
func (n *Node) clone() *Node {
	cp := &Node{Id: n.Id, Parent: n.Parent, Name: n.Name, IsDir: n.IsDir, Content: n.Content, attached: n.attached}
	cp.Attrs = make(map[AttrKey]AttrValue, len(n.Attrs))
	for k, v := range n.Attrs {
		cp.Attrs[k] = v
	}
	if n.IsDir {
		cp.Children = make(map[vpath.PathComponent]hash.NodeId, len(n.Children))
		for k, v := range n.Children {
			cp.Children[k] = v
		}
	}
	return cp
}

// SortedChildNames returns a dir node's child component names in stable
// (lexicographic) order, for deterministic enumeration/serialization.
func (n *Node) SortedChildNames() []vpath.PathComponent {
	names := make([]vpath.PathComponent, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// SortedAttrKeys returns a node's attribute keys in stable order, used by
// the canonical serializer (§6.2: "attrs sorted by key").
func (n *Node) SortedAttrKeys() []AttrKey {
	keys := make([]AttrKey, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var errNotDir = errors.New("node is not a directory")
var errNotFile = errors.New("node is not a file")

// IsAttached reports whether the node is reachable from the root.
func (n *Node) IsAttached() bool { return n.attached }

func (n *Node) requireDir() error {
	if !n.IsDir {
		return errors.Wrapf(errNotDir, "node %d", n.Id)
	}
	return nil
}

func (n *Node) requireFile() error {
	if n.IsDir {
		return errors.Wrapf(errNotFile, "node %d", n.Id)
	}
	return nil
}
