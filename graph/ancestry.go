package graph

import (
	"container/heap"
	"sort"

	"github.com/pkg/errors"

	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/revision"
)

// Parents returns id's direct parent edges.
func (g *Graph) Parents(id hash.RevisionId) ([]hash.RevisionId, error) {
	return g.queryIds("SELECT parent FROM revision_ancestry WHERE child = ?", id.String())
}

// Children returns id's direct children.
func (g *Graph) Children(id hash.RevisionId) ([]hash.RevisionId, error) {
	return g.queryIds("SELECT child FROM revision_ancestry WHERE parent = ?", id.String())
}

func (g *Graph) queryIds(q string, arg string) ([]hash.RevisionId, error) {
	rows, err := g.db.Query(q, arg)
	if err != nil {
		return nil, errors.Wrap(err, "graph: query ancestry")
	}
	defer rows.Close()
	var out []hash.RevisionId
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		h, err := hash.ParseHash(s)
		if err != nil {
			return nil, err
		}
		out = append(out, hash.RevisionId{Hash: h})
	}
	return out, rows.Err()
}

// Leaves returns every revision with no children.
func (g *Graph) Leaves() ([]hash.RevisionId, error) {
	rows, err := g.db.Query(`
		SELECT id FROM revisions
		WHERE id NOT IN (SELECT parent FROM revision_ancestry)`)
	if err != nil {
		return nil, errors.Wrap(err, "graph: query leaves")
	}
	defer rows.Close()
	var out []hash.RevisionId
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		h, err := hash.ParseHash(s)
		if err != nil {
			return nil, err
		}
		out = append(out, hash.RevisionId{Hash: h})
	}
	return out, rows.Err()
}

// Ancestors returns every strict ancestor of id (breadth-first, no
// particular order).
func (g *Graph) Ancestors(id hash.RevisionId) ([]hash.RevisionId, error) {
	visited := map[hash.RevisionId]bool{}
	queue := []hash.RevisionId{id}
	var out []hash.RevisionId
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		parents, err := g.Parents(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if p.Hash.IsNull() || visited[p] {
				continue
			}
			visited[p] = true
			out = append(out, p)
			queue = append(queue, p)
		}
	}
	return out, nil
}

// Descendants returns every strict descendant of id.
func (g *Graph) Descendants(id hash.RevisionId) ([]hash.RevisionId, error) {
	visited := map[hash.RevisionId]bool{}
	queue := []hash.RevisionId{id}
	var out []hash.RevisionId
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := g.Children(cur)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if visited[c] {
				continue
			}
			visited[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out, nil
}

// IsAncestor reports whether a is an ancestor of (or equal to) b, using
// heights to prune: a cannot be an ancestor of b if height(a) >= height(b).
func (g *Graph) IsAncestor(a, b hash.RevisionId) (bool, error) {
	if a == b {
		return true, nil
	}
	ha, err := g.Height(a)
	if err != nil {
		return false, err
	}
	hb, err := g.Height(b)
	if err != nil {
		return false, err
	}
	if !revision.Less(ha, hb) {
		return false, nil
	}
	visited := map[hash.RevisionId]bool{b: true}
	queue := []hash.RevisionId{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == a {
			return true, nil
		}
		parents, err := g.Parents(cur)
		if err != nil {
			return false, err
		}
		for _, p := range parents {
			if p.Hash.IsNull() || visited[p] {
				continue
			}
			ph, err := g.Height(p)
			if err != nil {
				return false, err
			}
			if revision.Less(ph, ha) {
				continue // cannot reach a by going any further up this line
			}
			visited[p] = true
			queue = append(queue, p)
		}
	}
	return false, nil
}

// CommonAncestors returns every revision that is an ancestor of both a
// and b (including a or b itself if one is an ancestor of the other).
func (g *Graph) CommonAncestors(a, b hash.RevisionId) ([]hash.RevisionId, error) {
	aSet, err := g.ancestorSetInclusive(a)
	if err != nil {
		return nil, err
	}
	bSet, err := g.ancestorSetInclusive(b)
	if err != nil {
		return nil, err
	}
	var out []hash.RevisionId
	for id := range aSet {
		if bSet[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (g *Graph) ancestorSetInclusive(id hash.RevisionId) (map[hash.RevisionId]bool, error) {
	out, err := g.Ancestors(id)
	if err != nil {
		return nil, err
	}
	set := map[hash.RevisionId]bool{id: true}
	for _, a := range out {
		set[a] = true
	}
	return set, nil
}

// heightHeapItem/heightHeap implement a max-heap over Height, used by
// UncommonAncestors to always expand the currently-highest frontier node
// first (spec.md §4.2's "walk parents of the higher-height side first").
type heightHeapItem struct {
	id hash.RevisionId
	h  revision.Height
}
type heightHeap []heightHeapItem

func (h heightHeap) Len() int            { return len(h) }
func (h heightHeap) Less(i, j int) bool  { return revision.Less(h[j].h, h[i].h) }
func (h heightHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *heightHeap) Push(x interface{}) { *h = append(*h, x.(heightHeapItem)) }
func (h *heightHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// UncommonAncestors implements get_uncommon_ancestors(a, b) (spec.md
// §4.2): the set of ancestors of a (a itself included) that are not
// ancestors of b, and vice versa, found by walking both frontiers in height order (highest first)
// without ever materializing the full ancestor sets up front.
func (g *Graph) UncommonAncestors(a, b hash.RevisionId) (onlyA, onlyB []hash.RevisionId, err error) {
	ha, err := g.Height(a)
	if err != nil {
		return nil, nil, err
	}
	hb, err := g.Height(b)
	if err != nil {
		return nil, nil, err
	}

	const (
		sideA = 1
		sideB = 2
	)
	seenBy := map[hash.RevisionId]int{a: sideA, b: sideB}
	pq := &heightHeap{{a, ha}, {b, hb}}
	heap.Init(pq)

	var onlyASet, onlyBSet []hash.RevisionId
	for pq.Len() > 0 {
		item := heap.Pop(pq).(heightHeapItem)
		mark := seenBy[item.id]
		parents, perr := g.Parents(item.id)
		if perr != nil {
			return nil, nil, perr
		}
		for _, p := range parents {
			if p.Hash.IsNull() {
				continue
			}
			existing, seen := seenBy[p]
			if !seen {
				seenBy[p] = mark
				ph, herr := g.Height(p)
				if herr != nil {
					return nil, nil, herr
				}
				heap.Push(pq, heightHeapItem{p, ph})
			} else if existing != mark && existing != sideA|sideB {
				seenBy[p] = sideA | sideB // reached from both sides: common, not uncommon to either
			}
		}
	}
	for id, mark := range seenBy {
		switch mark {
		case sideA:
			onlyASet = append(onlyASet, id)
		case sideB:
			onlyBSet = append(onlyBSet, id)
		}
	}
	sort.Slice(onlyASet, func(i, j int) bool { return onlyASet[i].String() < onlyASet[j].String() })
	sort.Slice(onlyBSet, func(i, j int) bool { return onlyBSet[i].String() < onlyBSet[j].String() })
	return onlyASet, onlyBSet, nil
}
