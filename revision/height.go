package revision

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

// Height is an opaque totally ordered value assigned to each revision
// such that for every edge p -> c, height(c) > height(p), and siblings
// receive distinct heights (spec.md §3.7). Implemented as a sequence of
// unsigned integers compared lexicographically.
type Height []uint32

// Root is the height of a revision with no parents.
func Root() Height { return Height{0} }

// Compare returns -1/0/1 comparing a and b lexicographically, with a
// shorter-but-equal-prefix sequence sorting before a longer one (so
// Child(h, 0) > h always holds).
func Compare(a, b Height) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Less reports a < b.
func Less(a, b Height) bool { return Compare(a, b) < 0 }

// String renders h as dot-separated integers, e.g. "0.0.1" — used as a
// map key for the "used" predicate callers pass to Assign, and for logs.
func (h Height) String() string {
	parts := make([]string, len(h))
	for i, v := range h {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ".")
}

// Child returns the height assigned to the idx-th child of a revision at
// height h — h with idx appended, so every child sorts strictly after h
// and distinct indices give distinct siblings (§3.7's "deterministic and
// injective given (parent_height, child_index)").
func Child(h Height, idx uint32) Height {
	out := make(Height, len(h)+1)
	copy(out, h)
	out[len(h)] = idx
	return out
}

// Assign implements spec.md §4.2's rule: let h* = max(height(p)) over
// parents, try child indices 0,1,2,... of h* until one unused by any
// existing revision is found. used reports whether a candidate height is
// already taken by some other revision.
func Assign(parentHeights []Height, used func(Height) bool) Height {
	if len(parentHeights) == 0 {
		h := Root()
		for used(h) {
			// extremely unlikely: only matters for a from-scratch root
			// collision, handled the same way as any other height.
			h = Child(h, 0)
		}
		return h
	}
	max := parentHeights[0]
	for _, h := range parentHeights[1:] {
		if Compare(h, max) > 0 {
			max = h
		}
	}
	for idx := uint32(0); ; idx++ {
		cand := Child(max, idx)
		if !used(cand) {
			return cand
		}
	}
}

// Encode renders h as the byte-compressed varint sequence used for the
// heights table's data column (original_source/src/database.cc's
// on-disk height encoding), preserving Compare's lexicographic order
// only via decode-then-compare, not via raw byte comparison.
func Encode(h Height) []byte {
	var buf bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen32)
	n := binary.PutUvarint(tmp, uint64(len(h)))
	buf.Write(tmp[:n])
	for _, v := range h {
		n := binary.PutUvarint(tmp, uint64(v))
		buf.Write(tmp[:n])
	}
	return buf.Bytes()
}

// DecodeHeight reverses Encode.
func DecodeHeight(b []byte) (Height, error) {
	buf := bytes.NewReader(b)
	count, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, err
	}
	out := make(Height, count)
	for i := range out {
		v, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, err
		}
		out[i] = uint32(v)
	}
	return out, nil
}
