package roster

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/vcsforge/core/basicio"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/vpath"
)

// parsedNode accumulates one dir/file stanza while scanning.
type parsedNode struct {
	isDir   bool
	havePath bool
	path    string
	haveId  bool
	id      hash.NodeId
	content hash.FileId

	attrs map[AttrKey]AttrValue

	hasMarking   bool
	birth        hash.RevisionId
	parentMarks  RevisionSet
	contentMarks RevisionSet
	attrMarks    map[AttrKey]RevisionSet
}

func newParsedNode(isDir bool) *parsedNode {
	return &parsedNode{
		isDir:       isDir,
		attrs:       map[AttrKey]AttrValue{},
		parentMarks: RevisionSet{},
		contentMarks: RevisionSet{},
		attrMarks:    map[AttrKey]RevisionSet{},
	}
}

func hashFromBytes(b []byte) (hash.Hash, error) {
	var h hash.Hash
	if len(b) != hash.Size {
		return h, errors.Errorf("roster: expected %d-byte hash, got %d", hash.Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseFull parses text produced by SerializeFull back into a Roster and
// its parallel MarkingMap. Position-sensitive: a malformed stanza reports
// the offending line number.
func ParseFull(text string) (*Roster, *MarkingMap, error) {
	p := basicio.NewParser(strings.NewReader(text))

	var parsed []*parsedNode
	var cur *parsedNode
	flush := func() {
		if cur != nil {
			parsed = append(parsed, cur)
			cur = nil
		}
	}

	for {
		line, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "roster: parse error near line %d", p.LineNo())
		}
		switch {
		case line.IsBlank:
			flush()
		case line.IsHeader:
			flush()
			switch line.Header {
			case "dir":
				cur = newParsedNode(true)
			case "file":
				cur = newParsedNode(false)
			default:
				return nil, nil, errors.Errorf("roster: unknown stanza %q at line %d", line.Header, p.LineNo())
			}
		default:
			if cur == nil {
				return nil, nil, errors.Errorf("roster: field %q outside any stanza at line %d", line.Key, p.LineNo())
			}
			if err := applyField(cur, line); err != nil {
				return nil, nil, errors.Wrapf(err, "roster: line %d", p.LineNo())
			}
		}
	}
	flush()

	if len(parsed) == 0 {
		return nil, nil, errors.New("roster: empty serialized form, no root stanza")
	}

	// locate the root (path == "") to seed the roster with its given id.
	var rootPN *parsedNode
	for _, pn := range parsed {
		if pn.havePath && pn.path == "" {
			rootPN = pn
			break
		}
	}
	if rootPN == nil {
		return nil, nil, errors.New("roster: no stanza with empty path (root) found")
	}
	if !rootPN.isDir {
		return nil, nil, errors.New("roster: root stanza is not a dir")
	}

	r := NewWithRoot(rootPN.id)
	r.nodes[r.root].Attrs = rootPN.attrs

	byPath := map[string]hash.NodeId{"": r.root}
	for _, pn := range parsed {
		if pn.path == "" {
			continue
		}
		if pn.isDir {
			n := r.CreateDirNode(pn.id)
			n.Attrs = pn.attrs
		} else {
			n := r.CreateFileNode(pn.id, pn.content)
			n.Attrs = pn.attrs
		}
		byPath[pn.path] = pn.id
	}

	// attach in increasing path-depth order; AttachNode only requires the
	// parent node to exist (not that it itself is attached yet), so any
	// order respecting parent-before-child by path works.
	order := make([]*parsedNode, 0, len(parsed))
	for _, pn := range parsed {
		if pn.path != "" {
			order = append(order, pn)
		}
	}
	sortByDepth(order)

	for _, pn := range order {
		fp, err := vpath.ParseFilePath(pn.path)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "roster: bad path %q", pn.path)
		}
		parentPath, name := fp.Parent()
		parentId, ok := byPath[parentPath.String()]
		if !ok {
			return nil, nil, errors.Errorf("roster: parent of %q not found", pn.path)
		}
		if err := r.AttachNode(pn.id, parentId, name); err != nil {
			return nil, nil, errors.Wrapf(err, "roster: attach %q", pn.path)
		}
	}

	mm := NewMarkingMap()
	for _, pn := range parsed {
		if !pn.hasMarking {
			continue
		}
		mk := &Marking{
			Birth:      pn.birth,
			ParentName: pn.parentMarks,
			Content:    pn.contentMarks,
			Attrs:      pn.attrMarks,
		}
		mm.Set(pn.id, mk)
	}

	if err := r.CheckSaneAgainst(mm); err != nil {
		return nil, nil, errors.Wrap(err, "roster: reconstructed roster failed sanity check")
	}

	return r, mm, nil
}

func sortByDepth(nodes []*parsedNode) {
	depth := func(p string) int {
		if p == "" {
			return 0
		}
		return strings.Count(p, "/") + 1
	}
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && depth(nodes[j-1].path) > depth(nodes[j].path); j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

func applyField(cur *parsedNode, line basicio.Line) error {
	switch {
	case line.Key == "path":
		cur.path = line.Value
		cur.havePath = true
		return nil
	case line.Key == "node":
		if !line.IsInt {
			return errors.New("node field is not a bare integer")
		}
		cur.id = hash.NodeId(line.IntValue)
		cur.haveId = true
		return nil
	case line.Key == "content":
		h, err := hashFromBytes(line.HexBytes)
		if err != nil {
			return err
		}
		cur.content = hash.FileId{Hash: h}
		return nil
	case line.Key == "attr":
		eq := strings.IndexByte(line.Value, '=')
		if eq < 0 {
			return errors.Errorf("malformed attr value %q", line.Value)
		}
		cur.attrs[AttrKey(line.Value[:eq])] = AttrValue(line.Value[eq+1:])
		return nil
	case line.Key == "birth":
		h, err := hashFromBytes(line.HexBytes)
		if err != nil {
			return err
		}
		cur.birth = hash.RevisionId{Hash: h}
		cur.hasMarking = true
		return nil
	case line.Key == "parent_name_mark":
		h, err := hashFromBytes(line.HexBytes)
		if err != nil {
			return err
		}
		cur.parentMarks.Add(hash.RevisionId{Hash: h})
		cur.hasMarking = true
		return nil
	case line.Key == "file_content_mark":
		h, err := hashFromBytes(line.HexBytes)
		if err != nil {
			return err
		}
		cur.contentMarks.Add(hash.RevisionId{Hash: h})
		cur.hasMarking = true
		return nil
	case strings.HasPrefix(line.Key, "attr_mark:"):
		h, err := hashFromBytes(line.HexBytes)
		if err != nil {
			return err
		}
		key := AttrKey(strings.TrimPrefix(line.Key, "attr_mark:"))
		if cur.attrMarks[key] == nil {
			cur.attrMarks[key] = RevisionSet{}
		}
		cur.attrMarks[key].Add(hash.RevisionId{Hash: h})
		cur.hasMarking = true
		return nil
	default:
		return errors.Errorf("unknown field %q", line.Key)
	}
}
