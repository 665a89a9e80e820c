// Package conflictio implements the deterministic textual serialization
// of a merge's conflict set (spec.md §4.6/§6.3): a `left`/`right`/
// optional `ancestor` header followed by one stanza per conflict in the
// stable category order merge.ConflictKind already establishes, each
// stanza carrying kind-specific identifying fields plus any resolution
// that was applied. Parsing back a resolved file is position-sensitive:
// every stanza must match the current conflict set in kind and identity,
// in order, or parsing aborts with "conflicts file does not match
// current conflicts" (spec.md §4.6).
//
// Built directly on basicio.Writer/Parser, the same stanza primitive
// revision and roster serialization use.
package conflictio

import (
	"io"

	"github.com/pkg/errors"

	"github.com/vcsforge/core/basicio"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/merge"
	"github.com/vcsforge/core/vpath"
)

// Write renders conflicts (already in merge's stable category order) as
// a conflict file: `left`/`right` headers, an optional `ancestor`
// header, then one stanza per conflict including any resolution applied
// to it.
func Write(w io.Writer, left, right hash.RevisionId, ancestor hash.RevisionId, conflicts []*merge.Conflict) error {
	bw := basicio.NewWriter(w)
	bw.FieldHex("left", left.Hash[:])
	bw.FieldHex("right", right.Hash[:])
	if !ancestor.IsNull() {
		bw.FieldHex("ancestor", ancestor.Hash[:])
	}
	bw.Blank()
	for _, c := range conflicts {
		writeStanza(bw, c)
		bw.Blank()
	}
	return bw.Err()
}

func writeStanza(bw *basicio.Writer, c *merge.Conflict) {
	bw.Stanza("conflict " + c.Kind.String())
	switch c.Kind {
	case merge.MissingRoot:
		// no identifying fields: there is exactly one root.
	case merge.InvalidName:
		bw.FieldHex("node", nodeBytes(c.Node))
		bw.FieldHex("left_parent", nodeBytes(c.LeftParent))
		bw.Field("left_name", string(c.LeftName))
	case merge.DirectoryLoop:
		bw.FieldHex("node", nodeBytes(c.Node))
	case merge.OrphanedNode:
		bw.FieldHex("node", nodeBytes(c.Node))
		bw.FieldHex("left_parent", nodeBytes(c.LeftParent))
		bw.Field("left_name", string(c.LeftName))
	case merge.MultipleNames:
		bw.FieldHex("node", nodeBytes(c.Node))
		bw.FieldHex("left_parent", nodeBytes(c.LeftParent))
		bw.Field("left_name", string(c.LeftName))
		bw.FieldHex("right_parent", nodeBytes(c.RightParent))
		bw.Field("right_name", string(c.RightName))
	case merge.DroppedModified:
		bw.FieldHex("node", nodeBytes(c.Node))
		bw.FieldInt("dir", boolInt(c.IsDir))
		bw.FieldHex("ancestor_content", c.AncestorContent.Hash[:])
		bw.FieldHex("left_parent", nodeBytes(c.LeftParent))
		bw.Field("left_name", string(c.LeftName))
		bw.FieldHex("left_content", c.LeftContent.Hash[:])
		bw.FieldHex("right_parent", nodeBytes(c.RightParent))
		bw.Field("right_name", string(c.RightName))
		bw.FieldHex("right_content", c.RightContent.Hash[:])
	case merge.DuplicateName:
		bw.FieldHex("node", nodeBytes(c.Node))
		bw.FieldHex("other_node", nodeBytes(c.OtherNode))
		bw.FieldHex("left_parent", nodeBytes(c.LeftParent))
		bw.Field("left_name", string(c.LeftName))
	case merge.Attribute:
		bw.FieldHex("node", nodeBytes(c.Node))
		bw.Field("attr_key", string(c.AttrKey))
		bw.FieldInt("ancestor_present", boolInt(c.AncestorPresent))
		bw.Field("ancestor_attr", string(c.AncestorAttr))
		bw.FieldInt("left_present", boolInt(c.LeftPresent))
		bw.Field("left_attr", string(c.LeftAttr))
		bw.FieldInt("right_present", boolInt(c.RightPresent))
		bw.Field("right_attr", string(c.RightAttr))
	case merge.Content:
		bw.FieldHex("node", nodeBytes(c.Node))
		bw.FieldHex("ancestor_content", c.AncestorContent.Hash[:])
		bw.FieldHex("left_content", c.LeftContent.Hash[:])
		bw.FieldHex("right_content", c.RightContent.Hash[:])
	}
	writeResolution(bw, c)
}

// writeResolution appends the `resolved_*` lines spec.md §6.3 names,
// generalized from the original's "path to a file the user edited" to
// the store-native form our engine actually consumes: a rename target
// is a FilePath, a user-supplied replacement is a content hash, since
// this core has no workspace layer to read an on-disk file from.
func writeResolution(bw *basicio.Writer, c *merge.Conflict) {
	r := c.Resolution
	if r == nil {
		return
	}
	switch c.Kind {
	case merge.OrphanedNode:
		writeSingleResolution(bw, "left", r.Kind, r.Path, r.Content)
	case merge.Content:
		switch r.Kind {
		case merge.ResolveInternal:
			bw.Flag("resolved_internal")
		case merge.ResolveUser:
			bw.FieldHex("resolved_user", r.Content.Hash[:])
		}
	case merge.DroppedModified:
		side := "left"
		if c.RightParent != hash.NullNode || c.RightName != "" {
			side = "right"
		}
		writeSingleResolution(bw, side, r.Kind, r.Path, r.Content)
	case merge.DuplicateName:
		writeSingleResolution(bw, "left", r.Kind, r.Path, r.Content)
		writeSingleResolution(bw, "right", r.RightKind, r.RightPath, r.RightContent)
	}
}

func writeSingleResolution(bw *basicio.Writer, side string, kind merge.ResolutionKind, path vpath.FilePath, content hash.FileId) {
	switch kind {
	case merge.ResolveDrop:
		bw.Flag("resolved_drop_" + side)
	case merge.ResolveKeep:
		bw.Flag("resolved_keep_" + side)
	case merge.ResolveRename:
		bw.Field("resolved_rename_"+side, path.String())
	case merge.ResolveUser:
		bw.FieldHex("resolved_user_"+side, content.Hash[:])
	case merge.ResolveUserRename:
		bw.Field("resolved_user_rename_"+side, path.String())
		bw.FieldHex("resolved_user_rename_"+side+"_content", content.Hash[:])
	}
}

func nodeBytes(id hash.NodeId) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(id >> (8 * i))
	}
	return b
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// errMismatch is the position-sensitive parse error spec.md §4.6
// requires verbatim.
var errMismatch = errors.New("conflicts file does not match current conflicts")

// ErrMismatch is returned (wrapped with position detail) when the parsed
// file's stanzas do not match current, position-for-position.
func ErrMismatch() error { return errMismatch }
