package roster

import (
	"github.com/vcsforge/core/basicio"
	"github.com/vcsforge/core/hash"
)

// SerializeManifest renders the restricted "manifest form" of r: a
// sorted, indented stanza per node with no marking data. Hashing this
// text yields ManifestId, and Revision.NewManifest records it (spec.md
// §6.2).
func SerializeManifest(r *Roster) string {
	return basicio.RenderToString(func(w *basicio.Writer) {
		writeNodes(w, r, nil)
	})
}

// SerializeFull renders the full canonical form including markings, the
// form persisted by RosterStore.
func SerializeFull(r *Roster, m *MarkingMap) string {
	return basicio.RenderToString(func(w *basicio.Writer) {
		writeNodes(w, r, m)
	})
}

// ManifestIdOf computes the ManifestId for r.
func ManifestIdOf(r *Roster) hash.ManifestId {
	return hash.ManifestIdOf([]byte(SerializeManifest(r)))
}

func writeNodes(w *basicio.Writer, r *Roster, m *MarkingMap) {
	for _, n := range r.AllNodes() {
		if n == nil {
			continue
		}
		// detached scratch nodes are never part of the persisted form
		if n.Id != r.Root() && n.Parent == hash.NullNode && len(n.Name) == 0 {
			continue
		}
		p, err := r.PathOf(n.Id)
		if err != nil {
			continue // detached node, not part of the canonical tree
		}
		if n.IsDir {
			w.Stanza("dir")
		} else {
			w.Stanza("file")
		}
		w.Field("path", p.String())
		w.FieldInt("node", int64(n.Id))
		if !n.IsDir {
			w.FieldHex("content", n.Content.Hash[:])
		}
		for _, k := range n.SortedAttrKeys() {
			w.Field("attr", string(k)+"="+string(n.Attrs[k]))
		}
		if m != nil {
			if mk, err := m.Get(n.Id); err == nil {
				w.FieldHex("birth", mk.Birth.Hash[:])
				writeMarkSet(w, "parent_name_mark", mk.ParentName)
				if !n.IsDir {
					writeMarkSet(w, "file_content_mark", mk.Content)
				}
				for _, k := range sortedAttrMarkKeys(mk.Attrs) {
					writeMarkSet(w, "attr_mark:"+string(k), mk.Attrs[k])
				}
			}
		}
		w.Blank()
	}
}

func sortedAttrMarkKeys(m map[AttrKey]RevisionSet) []AttrKey {
	out := make([]AttrKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func writeMarkSet(w *basicio.Writer, key string, s RevisionSet) {
	ids := make([]hash.RevisionId, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1].String() > ids[j].String(); j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	for _, id := range ids {
		w.FieldHex(key, id.Hash[:])
	}
}
