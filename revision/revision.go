// Package revision implements the revision value type (spec.md §3.5) and
// its canonical hash, plus RevHeight assignment (§3.7). Grounded on the
// teacher's GitCommit (a value aggregating one or more parent edges) and
// on original_source/src/database.cc's height-assignment routine, which
// tries successive child indices of the parents' max height until an
// unused one is found.
package revision

import (
	"sort"

	"github.com/vcsforge/core/basicio"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
	"github.com/vcsforge/core/vpath"
)

// Revision is new_manifest plus one Cset per parent edge (spec.md §3.5).
// A root revision has exactly one edge keyed by the null RevisionId.
type Revision struct {
	NewManifest hash.ManifestId
	Edges       map[hash.RevisionId]*roster.Cset
}

// New creates an empty Revision ready for edges to be added.
func New(manifest hash.ManifestId) *Revision {
	return &Revision{NewManifest: manifest, Edges: map[hash.RevisionId]*roster.Cset{}}
}

// IsRoot reports whether rev has the single null-parent edge.
func (rev *Revision) IsRoot() bool {
	if len(rev.Edges) != 1 {
		return false
	}
	for p := range rev.Edges {
		return p.Hash.IsNull()
	}
	return false
}

// Parents returns the parent RevisionIds in sorted order (deterministic
// iteration for serialization and graph bookkeeping).
func (rev *Revision) Parents() []hash.RevisionId {
	out := make([]hash.RevisionId, 0, len(rev.Edges))
	for p := range rev.Edges {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// CanonicalBytes renders the deterministic stanza text hashed to produce
// a RevisionId (spec.md §6.2): new_manifest plus each old_revision/cset
// edge, csets serialized as grouped sorted sections.
func (rev *Revision) CanonicalBytes() []byte {
	return []byte(basicio.RenderToString(func(w *basicio.Writer) {
		w.Stanza("new_manifest")
		w.FieldHex("id", rev.NewManifest.Hash[:])
		w.Blank()
		for _, p := range rev.Parents() {
			cs := rev.Edges[p]
			w.Stanza("old_revision")
			w.FieldHex("id", p.Hash[:])
			w.Blank()
			writeCsetSections(w, cs)
		}
	}))
}

// Id computes the RevisionId: the hash of CanonicalBytes.
func (rev *Revision) Id() hash.RevisionId {
	return hash.RevisionIdOf(rev.CanonicalBytes())
}

func writeCsetSections(w *basicio.Writer, cs *roster.Cset) {
	deletes := append([]string(nil))
	for _, p := range cs.NodesDeleted {
		deletes = append(deletes, p.String())
	}
	sort.Strings(deletes)
	for _, p := range deletes {
		w.Stanza("delete")
		w.Field("path", p)
		w.Blank()
	}

	renameKeys := make([]string, 0, len(cs.NodesRenamed))
	for k := range cs.NodesRenamed {
		renameKeys = append(renameKeys, k)
	}
	sort.Strings(renameKeys)
	for _, k := range renameKeys {
		w.Stanza("rename")
		w.Field("from", k)
		w.Field("to", cs.NodesRenamed[k].String())
		w.Blank()
	}

	addKeys := make([]string, 0, len(cs.FilesAdded))
	for k := range cs.FilesAdded {
		addKeys = append(addKeys, k)
	}
	sort.Strings(addKeys)
	for _, k := range addKeys {
		w.Stanza("add_file")
		w.Field("path", k)
		w.FieldHex("content", cs.FilesAdded[k].Hash[:])
		w.Blank()
	}

	for _, p := range sortPaths(cs.DirsAdded) {
		w.Stanza("add_dir")
		w.Field("path", p.String())
		w.Blank()
	}

	deltaKeys := make([]string, 0, len(cs.DeltasApplied))
	for k := range cs.DeltasApplied {
		deltaKeys = append(deltaKeys, k)
	}
	sort.Strings(deltaKeys)
	for _, k := range deltaKeys {
		d := cs.DeltasApplied[k]
		w.Stanza("delta")
		w.Field("path", k)
		w.FieldHex("from", d.Old.Hash[:])
		w.FieldHex("to", d.New.Hash[:])
		w.Blank()
	}

	for _, ac := range cs.AttrsCleared {
		w.Stanza("clear_attr")
		w.Field("path", ac.Path.String())
		w.Field("key", string(ac.Key))
		w.Blank()
	}

	for _, as := range cs.AttrsSet {
		w.Stanza("set_attr")
		w.Field("path", as.Path.String())
		w.Field("key", string(as.Key))
		w.Field("value", string(as.Value))
		w.Blank()
	}
}

func sortPaths(paths []vpath.FilePath) []vpath.FilePath {
	out := append([]vpath.FilePath(nil), paths...)
	sort.Slice(out, func(i, j int) bool { return vpath.Compare(out[i], out[j]) < 0 })
	return out
}
