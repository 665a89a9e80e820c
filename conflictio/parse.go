package conflictio

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/vcsforge/core/basicio"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/merge"
	"github.com/vcsforge/core/vpath"
)

// Parse reads a conflict file back and validates it position-for-position
// against current (merge.Merge's own output, in its stable category
// order): the header's left/right must match, and every stanza's kind
// and identifying fields must match current[i] exactly. Any mismatch
// returns ErrMismatch(), wrapped with the offending line number. On
// success, returns one *Resolution per entry in current (nil where the
// stanza carried no resolution).
func Parse(r io.Reader, left, right hash.RevisionId, current []*merge.Conflict) ([]*merge.Resolution, error) {
	p := basicio.NewParser(r)

	if err := expectFieldHex(p, "left", left.Hash[:]); err != nil {
		return nil, err
	}
	if err := expectFieldHex(p, "right", right.Hash[:]); err != nil {
		return nil, err
	}
	l, err := p.Next()
	if err != nil {
		return nil, wrapMismatch(p, err)
	}
	if l.Key == "ancestor" {
		l, err = p.Next()
		if err != nil {
			return nil, wrapMismatch(p, err)
		}
	}
	if !l.IsBlank {
		return nil, wrapMismatch(p, errors.New("expected blank line after header"))
	}

	resolutions := make([]*merge.Resolution, len(current))
	for i, c := range current {
		res, err := parseStanza(p, c)
		if err != nil {
			return nil, errors.Wrapf(err, "stanza %d (line %d)", i, p.LineNo())
		}
		resolutions[i] = res
	}

	if _, err := p.Next(); err != io.EOF {
		if err != nil {
			return nil, err
		}
		return nil, wrapMismatch(p, errors.New("extra stanza present"))
	}
	return resolutions, nil
}

func wrapMismatch(p *basicio.Parser, cause error) error {
	return errors.Wrapf(errMismatch, "line %d: %v", p.LineNo(), cause)
}

func expectFieldHex(p *basicio.Parser, key string, want []byte) error {
	l, err := p.Next()
	if err != nil {
		return wrapMismatch(p, err)
	}
	if l.Key != key || !l.IsHex || !bytes.Equal(l.HexBytes, want) {
		return wrapMismatch(p, errors.Errorf("expected field %q", key))
	}
	return nil
}

func expectField(p *basicio.Parser, key, want string) error {
	l, err := p.Next()
	if err != nil {
		return wrapMismatch(p, err)
	}
	if l.Key != key || l.IsHex || l.IsInt || l.Value != want {
		return wrapMismatch(p, errors.Errorf("expected field %q", key))
	}
	return nil
}

func expectFieldInt(p *basicio.Parser, key string, want int64) error {
	l, err := p.Next()
	if err != nil {
		return wrapMismatch(p, err)
	}
	if l.Key != key || !l.IsInt || l.IntValue != want {
		return wrapMismatch(p, errors.Errorf("expected field %q", key))
	}
	return nil
}

func expectHeader(p *basicio.Parser, want string) error {
	l, err := p.Next()
	if err != nil {
		return wrapMismatch(p, err)
	}
	if !l.IsHeader || l.Header != want {
		return wrapMismatch(p, errors.Errorf("expected stanza header %q", want))
	}
	return nil
}

func parseStanza(p *basicio.Parser, c *merge.Conflict) (*merge.Resolution, error) {
	if err := expectHeader(p, "conflict "+c.Kind.String()); err != nil {
		return nil, err
	}

	switch c.Kind {
	case merge.MissingRoot:
		// no identifying fields
	case merge.InvalidName, merge.OrphanedNode:
		if err := expectFieldHex(p, "node", nodeBytes(c.Node)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "left_parent", nodeBytes(c.LeftParent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "left_name", string(c.LeftName)); err != nil {
			return nil, err
		}
	case merge.DirectoryLoop:
		if err := expectFieldHex(p, "node", nodeBytes(c.Node)); err != nil {
			return nil, err
		}
	case merge.MultipleNames:
		if err := expectFieldHex(p, "node", nodeBytes(c.Node)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "left_parent", nodeBytes(c.LeftParent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "left_name", string(c.LeftName)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "right_parent", nodeBytes(c.RightParent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "right_name", string(c.RightName)); err != nil {
			return nil, err
		}
	case merge.DroppedModified:
		if err := expectFieldHex(p, "node", nodeBytes(c.Node)); err != nil {
			return nil, err
		}
		if err := expectFieldInt(p, "dir", boolInt(c.IsDir)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "ancestor_content", c.AncestorContent.Hash[:]); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "left_parent", nodeBytes(c.LeftParent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "left_name", string(c.LeftName)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "left_content", c.LeftContent.Hash[:]); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "right_parent", nodeBytes(c.RightParent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "right_name", string(c.RightName)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "right_content", c.RightContent.Hash[:]); err != nil {
			return nil, err
		}
	case merge.DuplicateName:
		if err := expectFieldHex(p, "node", nodeBytes(c.Node)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "other_node", nodeBytes(c.OtherNode)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "left_parent", nodeBytes(c.LeftParent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "left_name", string(c.LeftName)); err != nil {
			return nil, err
		}
	case merge.Attribute:
		if err := expectFieldHex(p, "node", nodeBytes(c.Node)); err != nil {
			return nil, err
		}
		if err := expectField(p, "attr_key", string(c.AttrKey)); err != nil {
			return nil, err
		}
		if err := expectFieldInt(p, "ancestor_present", boolInt(c.AncestorPresent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "ancestor_attr", string(c.AncestorAttr)); err != nil {
			return nil, err
		}
		if err := expectFieldInt(p, "left_present", boolInt(c.LeftPresent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "left_attr", string(c.LeftAttr)); err != nil {
			return nil, err
		}
		if err := expectFieldInt(p, "right_present", boolInt(c.RightPresent)); err != nil {
			return nil, err
		}
		if err := expectField(p, "right_attr", string(c.RightAttr)); err != nil {
			return nil, err
		}
	case merge.Content:
		if err := expectFieldHex(p, "node", nodeBytes(c.Node)); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "ancestor_content", c.AncestorContent.Hash[:]); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "left_content", c.LeftContent.Hash[:]); err != nil {
			return nil, err
		}
		if err := expectFieldHex(p, "right_content", c.RightContent.Hash[:]); err != nil {
			return nil, err
		}
	}

	res, err := parseResolution(p)
	if err != nil {
		return nil, err
	}

	blank, err := p.Next()
	if err != nil {
		return nil, wrapMismatch(p, err)
	}
	if !blank.IsBlank {
		return nil, wrapMismatch(p, errors.New("expected blank separator after stanza"))
	}
	return res, nil
}

// sideResolution accumulates one side's (kind, path, content) while the
// resolution lines for a stanza are read.
type sideResolution struct {
	kind    merge.ResolutionKind
	path    vpath.FilePath
	content hash.FileId
}

func parseResolution(p *basicio.Parser) (*merge.Resolution, error) {
	sides := map[string]*sideResolution{}
	sawInternal := false

	for {
		l, err := p.Next()
		if err != nil {
			return nil, wrapMismatch(p, err)
		}
		if l.IsBlank || l.IsHeader {
			p.Push(l, err)
			break
		}

		switch {
		case l.IsFlag && l.Key == "resolved_internal":
			sawInternal = true
		case l.IsHex && l.Key == "resolved_user":
			sides["left"] = &sideResolution{kind: merge.ResolveUser, content: hash.FileId{Hash: hashFromBytes(l.HexBytes)}}
		case matchSide(l, true, "resolved_drop_", sides, merge.ResolveDrop):
		case matchSide(l, true, "resolved_keep_", sides, merge.ResolveKeep):
		case matchRenameSide(l, sides):
		case matchUserSide(l, sides):
		case matchUserRenamePathSide(l, sides):
		case matchUserRenameContentSide(l, sides):
		default:
			return nil, wrapMismatch(p, errors.Errorf("unexpected resolution field %q", l.Key))
		}
	}

	if len(sides) == 0 && !sawInternal {
		return nil, nil
	}

	res := &merge.Resolution{}
	if sawInternal {
		res.Kind = merge.ResolveInternal
	}
	if st, ok := sides["left"]; ok {
		res.Kind, res.Path, res.Content = st.kind, st.path, st.content
		res.LeftKind, res.LeftPath, res.LeftContent = st.kind, st.path, st.content
	}
	if st, ok := sides["right"]; ok {
		res.RightKind, res.RightPath, res.RightContent = st.kind, st.path, st.content
		if _, hasLeft := sides["left"]; !hasLeft {
			res.Kind, res.Path, res.Content = st.kind, st.path, st.content
		}
	}
	return res, nil
}

func matchSide(l basicio.Line, isFlag bool, prefix string, sides map[string]*sideResolution, kind merge.ResolutionKind) bool {
	if l.IsFlag != isFlag {
		return false
	}
	for _, side := range []string{"left", "right"} {
		if l.Key == prefix+side {
			sides[side] = &sideResolution{kind: kind}
			return true
		}
	}
	return false
}

func matchRenameSide(l basicio.Line, sides map[string]*sideResolution) bool {
	if l.IsFlag || l.IsHex || l.IsInt {
		return false
	}
	for _, side := range []string{"left", "right"} {
		if l.Key == "resolved_rename_"+side {
			p, err := vpath.ParseFilePath(l.Value)
			if err != nil {
				return false
			}
			sides[side] = &sideResolution{kind: merge.ResolveRename, path: p}
			return true
		}
	}
	return false
}

func matchUserSide(l basicio.Line, sides map[string]*sideResolution) bool {
	if !l.IsHex {
		return false
	}
	for _, side := range []string{"left", "right"} {
		if l.Key == "resolved_user_"+side {
			sides[side] = &sideResolution{kind: merge.ResolveUser, content: hash.FileId{Hash: hashFromBytes(l.HexBytes)}}
			return true
		}
	}
	return false
}

func matchUserRenamePathSide(l basicio.Line, sides map[string]*sideResolution) bool {
	if l.IsFlag || l.IsHex || l.IsInt {
		return false
	}
	for _, side := range []string{"left", "right"} {
		if l.Key == "resolved_user_rename_"+side {
			p, err := vpath.ParseFilePath(l.Value)
			if err != nil {
				return false
			}
			st := sides[side]
			if st == nil {
				st = &sideResolution{}
				sides[side] = st
			}
			st.kind = merge.ResolveUserRename
			st.path = p
			return true
		}
	}
	return false
}

func matchUserRenameContentSide(l basicio.Line, sides map[string]*sideResolution) bool {
	if !l.IsHex {
		return false
	}
	for _, side := range []string{"left", "right"} {
		if l.Key == "resolved_user_rename_"+side+"_content" {
			st := sides[side]
			if st == nil {
				st = &sideResolution{}
				sides[side] = st
			}
			st.content = hash.FileId{Hash: hashFromBytes(l.HexBytes)}
			return true
		}
	}
	return false
}

func hashFromBytes(b []byte) hash.Hash {
	var h hash.Hash
	copy(h[:], b)
	return h
}
