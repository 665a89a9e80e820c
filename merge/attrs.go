package merge

import (
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
)

func attrValue(n *roster.Node, key roster.AttrKey) (roster.AttrValue, bool) {
	if n == nil {
		return "", false
	}
	v, ok := n.Attrs[key]
	return v, ok
}

func attrEqual(a, b interface{}) bool {
	ap, aok := a.(attrPresence)
	bp, bok := b.(attrPresence)
	if !aok || !bok {
		return false
	}
	return ap == bp
}

// attrPresence is the comparable value mark-merge operates over for one
// attribute key: either absent, or present with a value.
type attrPresence struct {
	present bool
	value   roster.AttrValue
}

// mergeAttrs applies spec.md §4.5 step 4 to every attribute key that
// appears on either side (or the ancestor): mark-merge decides the
// surviving value; a key whose two sides both changed it to different
// values (and neither matches the ancestor) becomes an AttributeConflict,
// and the merged node keeps the ancestor's value (or no value) for that
// key until the conflict is resolved.
func (m *merger) mergeAttrs(nid hash.NodeId, lNode, rNode, aNode *roster.Node) map[roster.AttrKey]roster.RevisionSet {
	keys := map[roster.AttrKey]bool{}
	collectKeys := func(n *roster.Node) {
		if n == nil {
			return
		}
		for k := range n.Attrs {
			keys[k] = true
		}
	}
	collectKeys(lNode)
	collectKeys(rNode)
	collectKeys(aNode)

	out := map[roster.AttrKey]roster.RevisionSet{}
	target := m.out
	node, _ := target.GetNode(nid)

	for key := range keys {
		lv, lok := attrValue(lNode, key)
		rv, rok := attrValue(rNode, key)
		av, aok := attrValue(aNode, key)

		var merged attrPresence
		conflict := false
		switch {
		case lok && rok && lv == rv:
			merged = attrPresence{true, lv}
		case lok && rok:
			// both present, disagree: whichever matches the ancestor loses,
			// otherwise it's a genuine conflict.
			switch {
			case aok && av == lv:
				merged = attrPresence{true, rv}
			case aok && av == rv:
				merged = attrPresence{true, lv}
			default:
				conflict = true
				merged = attrPresence{aok, av}
			}
		case lok && !rok:
			if aok && av == lv {
				merged = attrPresence{false, ""} // unchanged on L, dropped on R
			} else if !aok {
				merged = attrPresence{true, lv} // set fresh on L only
			} else {
				conflict = true
				merged = attrPresence{aok, av}
			}
		case rok && !lok:
			if aok && av == rv {
				merged = attrPresence{false, ""}
			} else if !aok {
				merged = attrPresence{true, rv}
			} else {
				conflict = true
				merged = attrPresence{aok, av}
			}
		default:
			merged = attrPresence{false, ""}
		}

		if conflict {
			m.addConflict(&Conflict{
				Kind: Attribute, Node: nid, AttrKey: key,
				AncestorAttr: av, AncestorPresent: aok,
				LeftAttr: lv, LeftPresent: lok,
				RightAttr: rv, RightPresent: rok,
			})
		}

		if merged.present {
			node.Attrs[key] = merged.value
		} else {
			delete(node.Attrs, key)
		}

		var parents []roster.ParentValue
		if lNode != nil {
			if lm, err := m.l.Marks.Get(nid); err == nil {
				parents = append(parents, roster.ParentValue{Present: true, Value: attrPresence{lok, lv}, Marks: lm.Attrs[key]})
			}
		}
		if rNode != nil {
			if rm, err := m.r.Marks.Get(nid); err == nil {
				parents = append(parents, roster.ParentValue{Present: true, Value: attrPresence{rok, rv}, Marks: rm.Attrs[key]})
			}
		}
		out[key] = roster.MarkMerge(m.childRev, merged, parents, attrEqual)
	}
	return out
}
