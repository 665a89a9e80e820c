package graph

import (
	"github.com/emicklei/dot"

	"github.com/pkg/errors"

	"github.com/vcsforge/core/hash"
)

// ExportDot renders the full revision DAG as a graphviz graph: one node
// per revision (labeled with its short hash), one edge per parent/child
// ancestry row, and an "m" edge label (instead of "p") on any edge into a
// revision with more than one parent — mirroring GitGraph.WriteGraph's
// parent/merge-edge distinction (cmd/gitgraph.go), generalized from git
// commits to revisions.
func (g *Graph) ExportDot() (*dot.Graph, error) {
	graph := dot.NewGraph(dot.Directed)

	rows, err := g.db.Query("SELECT id FROM revisions")
	if err != nil {
		return nil, errors.Wrap(err, "graph: list revisions for export")
	}
	var ids []hash.RevisionId
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return nil, err
		}
		h, err := hash.ParseHash(s)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, hash.RevisionId{Hash: h})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nodes := make(map[hash.RevisionId]dot.Node, len(ids))
	for _, id := range ids {
		label := shortHash(id.String())
		nodes[id] = graph.Node(label)
	}
	for _, id := range ids {
		parents, err := g.Parents(id)
		if err != nil {
			return nil, err
		}
		label := "p"
		if len(parents) > 1 {
			label = "m"
		}
		for _, p := range parents {
			if p.Hash.IsNull() {
				continue
			}
			graph.Edge(nodes[p], nodes[id], label)
		}
	}
	return graph, nil
}

func shortHash(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10]
}
