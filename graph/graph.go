// Package graph implements the revision DAG (spec.md §4.2): put_revision,
// the standard ancestry queries, get_uncommon_ancestors, and the
// branch-leaf index. Grounded on the teacher's GitP4Transfer commit graph
// (main.go's changeNo/parent bookkeeping) and cmd/gitgraph's dot export,
// generalized from a linear-with-merges git history to an arbitrary
// multi-parent revision DAG addressed by hash.RevisionId.
package graph

import (
	"database/sql"

	"github.com/alitto/pond"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/revision"
	"github.com/vcsforge/core/roster"
	"github.com/vcsforge/core/store"
)

// Graph wires the revision table, ancestry index and height/branch-leaf
// bookkeeping on top of the content/roster stores, exactly the way the
// teacher's GitP4Transfer wires GitBlob/GitFile storage and a *dot.Graph
// together behind one struct.
type Graph struct {
	db      *sql.DB
	logger  *logrus.Logger
	content *store.ContentStore
	rosters *store.RosterStore
	certs   *certs.Store
	pool    *pond.WorkerPool
}

// New wraps db's revisions/revision_ancestry/heights/branch_leaves tables.
func New(db *sql.DB, logger *logrus.Logger, content *store.ContentStore, rosters *store.RosterStore, certStore *certs.Store) *Graph {
	return &Graph{
		db:      db,
		logger:  logger,
		content: content,
		rosters: rosters,
		certs:   certStore,
		pool:    pond.New(4, 0, pond.MinWorkers(2)),
	}
}

// Close stops the deltify worker pool, waiting for in-flight jobs.
func (g *Graph) Close() { g.pool.StopAndWait() }

// Exists reports whether id has already been committed.
func (g *Graph) Exists(id hash.RevisionId) (bool, error) {
	var n int
	err := g.db.QueryRow("SELECT COUNT(1) FROM revisions WHERE id = ?", id.String()).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "graph: exists")
	}
	return n > 0, nil
}

// saveNodeId persists the highest NodeId allocated so far. NodeIdSource's
// own doc comment is explicit about the convention: store Next()-1, i.e.
// Peek()-1, not Peek() itself — Peek() is the next *unallocated* id, and
// persisting it verbatim would cause the following put_revision to skip
// one id on every run.
func (g *Graph) saveNodeId(tx *sql.Tx, ids *hash.NodeIdSource) error {
	if _, err := tx.Exec("DELETE FROM next_roster_node_number"); err != nil {
		return errors.Wrap(err, "graph: clear next_roster_node_number")
	}
	_, err := tx.Exec("INSERT INTO next_roster_node_number (node) VALUES (?)", int64(ids.Peek())-1)
	return errors.Wrap(err, "graph: save next_roster_node_number")
}

// PutRevision implements spec.md §4.2's put_revision: validates the
// edges, reconstructs and verifies the new roster, persists the
// revision row plus ancestry edges, assigns a RevHeight, and deltifies
// each parent edge's touched files where profitable.
func (g *Graph) PutRevision(id hash.RevisionId, rev *revision.Revision) error {
	if got := rev.Id(); got != id {
		return coreerr.New(coreerr.Invalid, "graph: revision does not hash to %s (got %s)", id, got)
	}
	if ok, err := g.Exists(id); err != nil {
		return err
	} else if ok {
		return nil // idempotent, matching ContentStore.PutFull
	}

	for _, p := range rev.Parents() {
		if p.Hash.IsNull() {
			continue
		}
		if ok, err := g.Exists(p); err != nil {
			return err
		} else if !ok {
			return coreerr.New(coreerr.NotFound, "graph: parent %s not found", p)
		}
	}
	for _, cs := range rev.Edges {
		for _, fid := range cs.FilesAdded {
			if ok, err := g.content.Exists(fid); err != nil {
				return err
			} else if !ok {
				return coreerr.New(coreerr.NotFound, "graph: added file %s not found", fid)
			}
		}
		for _, d := range cs.DeltasApplied {
			if ok, err := g.content.Exists(d.New); err != nil {
				return err
			} else if !ok {
				return coreerr.New(coreerr.NotFound, "graph: delta target %s not found", d.New)
			}
		}
	}

	ids, err := g.loadNodeIdSourceReadOnly()
	if err != nil {
		return err
	}
	newRoster, newMarks, err := g.applyEdges(id, rev, ids)
	if err != nil {
		return err
	}
	if got := roster.ManifestIdOf(newRoster); got != rev.NewManifest {
		return coreerr.New(coreerr.Invalid, "graph: manifest mismatch for %s: computed %s, recorded %s", id, got, rev.NewManifest)
	}
	if err := newRoster.CheckSaneAgainst(newMarks); err != nil {
		return coreerr.Wrap(coreerr.Corrupt, err, "graph: new roster for %s", id)
	}

	tx, err := g.db.Begin()
	if err != nil {
		return errors.Wrap(err, "graph: begin")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec("INSERT INTO revisions (id, data) VALUES (?, ?)", id.String(), rev.CanonicalBytes()); err != nil {
		return errors.Wrap(err, "graph: insert revision")
	}
	for _, p := range rev.Parents() {
		if p.Hash.IsNull() {
			continue
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO revision_ancestry (parent, child) VALUES (?, ?)", p.String(), id.String()); err != nil {
			return errors.Wrap(err, "graph: insert ancestry edge")
		}
	}

	// ids may have advanced while applying edges (add_dir/add_file on the
	// primary edge); persist the new high-water mark so the next
	// put_revision never reallocates an id handed out here.
	if err := g.saveNodeId(tx, ids); err != nil {
		return err
	}

	h, err := g.assignHeight(tx, rev.Parents())
	if err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO heights (revision, height) VALUES (?, ?)", id.String(), revision.Encode(h)); err != nil {
		return errors.Wrap(err, "graph: insert height")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "graph: commit")
	}
	committed = true

	g.rosters.PutDirty(id, newRoster, newMarks)
	if err := g.rosters.Flush(); err != nil {
		return err
	}

	g.deltifyEdges(id, rev)
	return nil
}

// applyEdges reconstructs the new roster from rev's parent edges. A root
// revision applies its single edge to an empty roster. A merge revision
// (more than one non-null parent) requires exactly one edge to carry new
// node creation (add_dir/add_file); the other edges may only touch nodes
// already shared with that primary edge's result — new content in a
// merge arrives attached to a single side's cset, because the roster
// being committed was already unified client-side before csets toward
// each parent were computed (spec.md §4.4's make_cset contract).
func (g *Graph) applyEdges(id hash.RevisionId, rev *revision.Revision, ids *hash.NodeIdSource) (*roster.Roster, *roster.MarkingMap, error) {
	parents := rev.Parents()

	if len(parents) == 1 && parents[0].Hash.IsNull() {
		base := roster.New(ids)
		mm := roster.NewMarkingMap()
		mm.PutBirth(base.Root(), false, id)
		return rev.Edges[parents[0]].Apply(base, ids, id, mm)
	}

	type candidate struct {
		parent hash.RevisionId
		r      *roster.Roster
		m      *roster.MarkingMap
	}
	var primary *candidate
	var secondaries []candidate
	for _, p := range parents {
		cs := rev.Edges[p]
		if len(cs.DirsAdded) > 0 || len(cs.FilesAdded) > 0 {
			if primary != nil {
				return nil, nil, coreerr.New(coreerr.Invalid, "graph: revision %s has new content on more than one parent edge", id)
			}
			primary = &candidate{parent: p}
		}
	}
	if primary == nil && len(parents) > 0 {
		primary = &candidate{parent: parents[0]}
	}

	for _, p := range parents {
		parentR, parentM, err := g.rosters.Get(p)
		if err != nil {
			return nil, nil, coreerr.Wrap(coreerr.NotFound, err, "graph: load parent roster %s", p)
		}
		// Only the primary edge is expected to allocate new ids (see the
		// doc comment above); secondary edges never call ids.Next(), so
		// sharing one counter across every edge in this loop is safe and
		// keeps allocation order deterministic.
		newR, newM, err := rev.Edges[p].Apply(parentR, ids, id, parentM.Clone())
		if err != nil {
			return nil, nil, coreerr.Wrap(coreerr.Invalid, err, "graph: apply edge from %s", p)
		}
		c := candidate{parent: p, r: newR, m: newM}
		if primary != nil && p == primary.parent {
			primary.r, primary.m = newR, newM
		} else {
			secondaries = append(secondaries, c)
		}
	}

	if primary == nil || primary.r == nil {
		return nil, nil, coreerr.New(coreerr.Invalid, "graph: revision %s has no usable parent edge", id)
	}
	primaryManifest := roster.ManifestIdOf(primary.r)
	for _, sec := range secondaries {
		if roster.ManifestIdOf(sec.r) != primaryManifest {
			return nil, nil, coreerr.New(coreerr.Invalid, "graph: merge edges for %s disagree on resulting manifest", id)
		}
	}
	return primary.r, primary.m, nil
}

func (g *Graph) loadNodeIdSourceReadOnly() (*hash.NodeIdSource, error) {
	var last int64
	err := g.db.QueryRow("SELECT node FROM next_roster_node_number LIMIT 1").Scan(&last)
	if err == sql.ErrNoRows {
		return hash.NewNodeIdSource(0), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "graph: read next_roster_node_number")
	}
	return hash.NewNodeIdSource(hash.NodeId(last)), nil
}

// deltifyEdges submits per-file deltify jobs for each touched file on
// each parent edge to the bounded worker pool, mirroring GitBlob.SaveBlob
// submitting compression work to a pond.WorkerPool. Best-effort: a
// failed deltify job is logged, never fatal (the full base version is
// already durable from the caller's PutFileVersion/PutFull call).
func (g *Graph) deltifyEdges(id hash.RevisionId, rev *revision.Revision) {
	for parent, cs := range rev.Edges {
		for path, d := range cs.DeltasApplied {
			parent, path, d := parent, path, d
			g.pool.Submit(func() {
				old, err := g.content.Get(d.Old)
				if err != nil {
					g.logger.Debugf("graph: deltify skip %s (%s): %v", path, parent, err)
					return
				}
				news, err := g.content.Get(d.New)
				if err != nil {
					g.logger.Debugf("graph: deltify skip %s (%s): %v", path, parent, err)
					return
				}
				if err := g.content.PutFileVersion(d.Old, d.New, old, news); err != nil {
					g.logger.Warnf("graph: deltify %s for %s: %v", path, id, err)
				}
			})
		}
	}
}
