package migration

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/graph"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/revision"
	"github.com/vcsforge/core/roster"
	"github.com/vcsforge/core/store"
	"github.com/vcsforge/core/vpath"
)

// ManifestSnapshot is one entry of a flat, pre-cset revision history —
// exactly the shape original_source/src/migrate_ancestry.cc rebuilt from
// (a manifest: the complete set of live file paths and their content, no
// node identity, no cset): a parent revision (the null RevisionId for a
// root) plus every file alive at that point, keyed by its '/'-joined
// path. Content is assumed already present in the target ContentStore;
// this importer only synthesizes the roster/revision/cset layer around
// it, the same division of labor build_roster_style_revs_from_manifest_
// style_revs had from build_changesets_from_manifest_ancestry.
type ManifestSnapshot struct {
	Parent hash.RevisionId
	Files  map[string]hash.FileId
}

// Importer rebuilds a roster-and-cset revision graph from a sequence of
// ManifestSnapshots, inferring node identity by path continuity between
// consecutive snapshots exactly as the original's manifest-ancestry
// migration did: a path present in both the parent's committed roster
// and the new snapshot keeps its node id (a content change becomes a
// delta, not a drop+add); a path absent from the new snapshot is
// deleted; a path with no predecessor is a fresh add.
type Importer struct {
	graph   *graph.Graph
	rosters *store.RosterStore
	logger  *logrus.Logger
}

// New wires an Importer around an already-open graph/roster pair.
func New(g *graph.Graph, rosters *store.RosterStore, logger *logrus.Logger) *Importer {
	return &Importer{graph: g, rosters: rosters, logger: logger}
}

// ImportSnapshot commits one ManifestSnapshot as a new revision, returning
// its assigned RevisionId. Snapshots must be imported in ancestry order —
// snap.Parent must already be committed (or be the null RevisionId for a
// root) before this call.
func (im *Importer) ImportSnapshot(snap ManifestSnapshot) (hash.RevisionId, error) {
	from, err := im.baseRoster(snap.Parent)
	if err != nil {
		return hash.RevisionId{}, err
	}

	to := from.Clone()
	if err := applyManifestFiles(to, snap.Files); err != nil {
		return hash.RevisionId{}, coreerr.Wrap(coreerr.Invalid, err, "migration: build target roster")
	}

	cs, err := roster.MakeCset(from, to)
	if err != nil {
		return hash.RevisionId{}, coreerr.Wrap(coreerr.Invalid, err, "migration: diff manifest against parent")
	}

	rev := revision.New(roster.ManifestIdOf(to))
	rev.Edges[snap.Parent] = cs
	id := rev.Id()

	if err := im.graph.PutRevision(id, rev); err != nil {
		return hash.RevisionId{}, err
	}
	im.logger.Debugf("migration: imported manifest snapshot as revision %s (%d files, parent %s)", id, len(snap.Files), snap.Parent)
	return id, nil
}

// ImportHistory imports snapshots in order, threading each entry's
// Parent field forward automatically: snapshots[i].Parent is ignored
// except for snapshots[0], and instead set to the RevisionId returned
// for snapshots[i-1] — the common case of a single linear (or
// already-parent-annotated) history supplied in commit order. Branching
// histories should call ImportSnapshot directly with explicit Parent
// values instead.
func (im *Importer) ImportHistory(snapshots []ManifestSnapshot) ([]hash.RevisionId, error) {
	out := make([]hash.RevisionId, len(snapshots))
	var prev hash.RevisionId
	for i, snap := range snapshots {
		if i > 0 {
			snap.Parent = prev
		}
		id, err := im.ImportSnapshot(snap)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Invalid, err, "migration: importing snapshot %d", i)
		}
		out[i] = id
		prev = id
	}
	return out, nil
}

// baseRoster returns the committed roster to diff the next snapshot
// against: the real persisted roster for a non-root parent, or a fresh
// empty roster for a root snapshot. The root roster's own NodeId is
// throwaway here (a temporary-range id, never the real one
// graph.PutRevision's applyEdges will allocate for it): MakeCset never
// records an id for the root, only for paths beneath it, so the
// mismatch never reaches storage.
func (im *Importer) baseRoster(parent hash.RevisionId) (*roster.Roster, error) {
	if parent.Hash.IsNull() {
		return roster.NewWithRoot(hash.NewTemporaryIdSource().Next()), nil
	}
	r, _, err := im.rosters.Get(parent)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.NotFound, err, "migration: load parent roster %s", parent)
	}
	return r, nil
}

// applyManifestFiles mutates target in place so its live files exactly
// match wanted: existing file paths keep their node id (content updated
// if changed), paths no longer present are deleted, and new paths are
// added (creating any missing intermediate directories) using a
// temporary, never-persisted id source — MakeCset discards the id of
// anything it records as an add, so the actual value never reaches
// storage (see graph.applyEdges, which allocates real ids for adds
// itself when the resulting cset is later applied).
func applyManifestFiles(target *roster.Roster, wanted map[string]hash.FileId) error {
	existing := map[string]hash.NodeId{}
	for _, n := range target.AllNodes() {
		if n.IsAttached() && !n.IsDir {
			p, err := target.PathOf(n.Id)
			if err != nil {
				return err
			}
			existing[p.String()] = n.Id
		}
	}

	for p, nid := range existing {
		if _, stillWanted := wanted[p]; !stillWanted {
			if err := target.DetachNode(nid); err != nil {
				return err
			}
			if err := target.DropDetachedNode(nid); err != nil {
				return err
			}
		}
	}

	paths := make([]string, 0, len(wanted))
	for p := range wanted {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ids := hash.NewTemporaryIdSource()
	for _, p := range paths {
		content := wanted[p]
		if nid, ok := existing[p]; ok {
			n, err := target.GetNode(nid)
			if err != nil {
				return err
			}
			n.Content = content
			continue
		}
		fp, err := vpath.ParseFilePath(p)
		if err != nil {
			return err
		}
		if fp.IsRoot() {
			return coreerr.New(coreerr.Invalid, "migration: empty path in manifest")
		}
		parentPath, name := fp.Parent()
		parentId, err := ensureDir(target, ids, parentPath)
		if err != nil {
			return err
		}
		nid := ids.Next()
		target.CreateFileNode(nid, content)
		if err := target.AttachNode(nid, parentId, name); err != nil {
			return err
		}
	}
	return nil
}

// ensureDir walks dirPath from target's root, creating any missing
// directory nodes along the way (mkdir -p), and returns the terminal
// directory's NodeId.
func ensureDir(target *roster.Roster, ids *hash.TemporaryIdSource, dirPath vpath.FilePath) (hash.NodeId, error) {
	cur := target.Root()
	for _, name := range dirPath {
		n, err := target.GetNode(cur)
		if err != nil {
			return hash.NullNode, err
		}
		if child, ok := n.Children[name]; ok {
			cur = child
			continue
		}
		nid := ids.Next()
		target.CreateDirNode(nid)
		if err := target.AttachNode(nid, cur, name); err != nil {
			return hash.NullNode, err
		}
		cur = nid
	}
	return cur, nil
}
