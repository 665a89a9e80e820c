// Package merge implements the three-way roster merge core (spec.md
// §4.5): per-node lifetime/name/content/attribute classification, a
// conflict taxonomy, automatic line-based content merging, and the
// detected→applied→committed conflict state machine. Grounded on the
// teacher's BlobFileMatcher idea of collecting every anomaly into a
// report rather than failing at the first one (generalized here from
// duplicate-blob detection to the full conflict taxonomy), and on
// store.ClassifyBlob for deciding which files are even eligible for
// automatic merging.
package merge

import (
	"sort"

	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
	"github.com/vcsforge/core/vpath"
)

// Ancestral bundles a roster with its marking map — the shape every side
// of a merge (ancestor, left, right) is passed in.
type Ancestral struct {
	Roster *roster.Roster
	Marks  *roster.MarkingMap
}

// ContentFetcher is the "adaptor that can fetch ancestral rosters and
// file content" spec.md §4.5 requires, extended with the two writes the
// automatic content merger needs to record a freshly merged version.
// *store.ContentStore satisfies this directly.
type ContentFetcher interface {
	Get(id hash.FileId) ([]byte, error)
	PutFull(id hash.FileId, data []byte) error
	PutFileVersion(old, new hash.FileId, oldBytes, newBytes []byte) error
}

// RosterMergeResult is MergeCore's output (spec.md §4.5): the merged
// roster and marking map reflect every conflict-free decision; Conflicts
// lists everything left for resolution, in the stable category order
// §4.6 requires.
type RosterMergeResult struct {
	Roster    *roster.Roster
	Marks     *roster.MarkingMap
	Conflicts []*Conflict
}

// Unresolved reports whether any conflict in the result still lacks a
// resolution — a merge carrying any of these cannot be committed
// (spec.md §4.5's "reported (aborts merge commit)" state).
func (r *RosterMergeResult) Unresolved() []*Conflict {
	var out []*Conflict
	for _, c := range r.Conflicts {
		if c.Status != StatusApplied && c.Status != StatusCommitted {
			out = append(out, c)
		}
	}
	return out
}

// Merge computes the three-way roster merge of left against right with
// nearest-common-ancestor ancestor (all three already loaded with their
// marking maps — LCA selection itself is the caller's job, typically via
// graph.UncommonAncestors/CommonAncestors). childRev is used only as the
// mark-merge tie-breaker when a field's mark sets disagree on every
// parent (spec.md §3.3's base case "no parent value survives"); callers
// that don't yet know the eventual merge revision id may pass the zero
// RevisionId, since such fields only ever get a durable mark once the
// merge actually commits and re-marks them under the real child id.
func Merge(ancestor, left, right Ancestral, childRev hash.RevisionId, content ContentFetcher) (*RosterMergeResult, error) {
	m := &merger{
		a:        ancestor,
		l:        left,
		r:        right,
		childRev: childRev,
		content:  content,
		out:      roster.NewWithRoot(pickRoot(ancestor, left, right)),
		marks:    roster.NewMarkingMap(),
		parentOf: map[hash.NodeId]hash.NodeId{},
		nameOf:   map[hash.NodeId]vpath.PathComponent{},
	}
	if err := m.run(); err != nil {
		return nil, err
	}
	sortConflicts(m.conflicts)
	result := &RosterMergeResult{Roster: m.out, Marks: m.marks, Conflicts: m.conflicts}
	if len(result.Unresolved()) > 0 {
		return result, coreerr.New(coreerr.Conflict, "merge produced %d unresolved conflict(s)", len(result.Unresolved())).WithDetail(result)
	}
	return result, nil
}

// pickRoot uses left's root id if present, falling back to right's or
// ancestor's — the three sides always share the same root NodeId in
// practice (the root is never reborn), this just picks whichever side is
// non-nil for callers constructing a synthetic Ancestral in tests.
func pickRoot(ancestor, left, right Ancestral) hash.NodeId {
	if left.Roster != nil {
		return left.Roster.Root()
	}
	if right.Roster != nil {
		return right.Roster.Root()
	}
	return ancestor.Roster.Root()
}

type merger struct {
	a, l, r  Ancestral
	childRev hash.RevisionId
	content  ContentFetcher

	out   *roster.Roster
	marks *roster.MarkingMap

	// parentOf/nameOf record each surviving node's resolved attachment
	// point before the attach pass runs, so duplicate-name and
	// orphaned-node detection can run over the whole set at once.
	parentOf map[hash.NodeId]hash.NodeId
	nameOf   map[hash.NodeId]vpath.PathComponent

	conflicts []*Conflict
}

func (m *merger) addConflict(c *Conflict) { m.conflicts = append(m.conflicts, c) }

func (m *merger) run() error {
	lifetimes := classifyLifetimes(m.a.Roster, m.l.Roster, m.r.Roster)

	ids := make([]hash.NodeId, 0, len(lifetimes))
	for id := range lifetimes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, nid := range ids {
		lc := lifetimes[nid]
		switch lc {
		case lifetimeDeadBoth:
			m.marks.Delete(nid)
			continue
		case lifetimeAliveLOnly, lifetimeAliveROnly:
			if conflict := m.droppedModifiedConflict(nid, lc); conflict != nil {
				// Create the node detached so a later ResolveKeep/Rename/
				// User can attach it; until resolved it stays out of the
				// live tree, matching "usually detached" per spec.md §4.5.
				survivorMarks := m.l.Marks
				placeholder := conflict.LeftContent
				if lc == lifetimeAliveROnly {
					survivorMarks = m.r.Marks
					placeholder = conflict.RightContent
				}
				if conflict.IsDir {
					m.out.CreateDirNode(nid)
				} else {
					m.out.CreateFileNode(nid, placeholder)
				}
				if mk, err := survivorMarks.Get(nid); err == nil {
					cp := &roster.Marking{Birth: mk.Birth, ParentName: mk.ParentName.Clone(), Content: mk.Content.Clone(), Attrs: map[roster.AttrKey]roster.RevisionSet{}}
					for k, v := range mk.Attrs {
						cp.Attrs[k] = v.Clone()
					}
					m.marks.Set(nid, cp)
				}
				m.addConflict(conflict)
				continue
			}
			// dropped cleanly on the other side with no local change: the
			// node is simply gone from the merged roster.
			m.marks.Delete(nid)
			continue
		}

		if err := m.mergeSurvivingNode(nid, lc); err != nil {
			return err
		}
	}

	m.resolveAttachment()
	return nil
}

// resolveAttachment runs the name-collision/orphan/root/bookkeeping/loop
// checks over every surviving node's resolved (parent, name) and
// attaches everything that is conflict-free, per spec.md §4.5 step 2.
func (m *merger) resolveAttachment() {
	type placement struct {
		node   hash.NodeId
		parent hash.NodeId
		name   vpath.PathComponent
	}
	var placements []placement
	for nid, parent := range m.parentOf {
		placements = append(placements, placement{node: nid, parent: parent, name: m.nameOf[nid]})
	}
	sort.Slice(placements, func(i, j int) bool { return placements[i].node < placements[j].node })

	if _, ok := m.parentOf[m.out.Root()]; !ok {
		if !m.out.HasNode(m.out.Root()) {
			m.addConflict(&Conflict{Kind: MissingRoot})
			return
		}
	}

	seen := map[hash.NodeId]map[vpath.PathComponent]hash.NodeId{}
	blocked := map[hash.NodeId]bool{}
	for _, p := range placements {
		if p.parent == m.out.Root() && p.name == vpath.BookkeepingRootName {
			m.addConflict(&Conflict{Kind: InvalidName, Node: p.node, LeftParent: p.parent, LeftName: p.name})
			blocked[p.node] = true
			continue
		}
		if !m.out.HasNode(p.parent) && p.parent != m.out.Root() {
			m.addConflict(&Conflict{Kind: OrphanedNode, Node: p.node, LeftParent: p.parent, LeftName: p.name})
			blocked[p.node] = true
			continue
		}
		bucket, ok := seen[p.parent]
		if !ok {
			bucket = map[vpath.PathComponent]hash.NodeId{}
			seen[p.parent] = bucket
		}
		if other, dup := bucket[p.name]; dup {
			m.addConflict(&Conflict{Kind: DuplicateName, Node: p.node, OtherNode: other, LeftParent: p.parent, LeftName: p.name})
			blocked[p.node] = true
			blocked[other] = true
			continue
		}
		bucket[p.name] = p.node
	}

	if cyc := detectDirectoryLoop(m.parentOf, m.out.Root()); len(cyc) > 0 {
		for _, nid := range cyc {
			m.addConflict(&Conflict{Kind: DirectoryLoop, Node: nid})
			blocked[nid] = true
		}
	}

	for _, p := range placements {
		if blocked[p.node] {
			continue
		}
		if p.node == m.out.Root() {
			continue
		}
		if err := m.out.AttachNode(p.node, p.parent, p.name); err != nil {
			m.addConflict(&Conflict{Kind: OrphanedNode, Node: p.node, LeftParent: p.parent, LeftName: p.name})
		}
	}
}

// detectDirectoryLoop walks each node's resolved parent chain looking
// for a cycle that never reaches root — can only happen when two
// renames across branches create a parent relation neither side alone
// would have produced.
func detectDirectoryLoop(parentOf map[hash.NodeId]hash.NodeId, root hash.NodeId) []hash.NodeId {
	var looping []hash.NodeId
	for start := range parentOf {
		visited := map[hash.NodeId]bool{}
		cur := start
		for {
			if cur == root {
				break
			}
			if visited[cur] {
				looping = append(looping, start)
				break
			}
			visited[cur] = true
			next, ok := parentOf[cur]
			if !ok {
				break
			}
			cur = next
		}
	}
	sort.Slice(looping, func(i, j int) bool { return looping[i] < looping[j] })
	return looping
}
