package merge

import (
	"github.com/vcsforge/core/coreerr"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/vpath"
)

// Resolve applies res to the conflict at index (conflicts are addressed
// by position — the same position-sensitive addressing ConflictIO's
// grammar uses, §4.6) and mutates result.Roster/Marks accordingly,
// advancing the conflict to StatusApplied. Per spec.md §4.5's table,
// only OrphanedNode, DroppedModified, DuplicateName and Content accept a
// resolution; every other kind "must be fixed by re-committing before
// merge" and Resolve rejects it.
func (r *RosterMergeResult) Resolve(index int, res *Resolution, content ContentFetcher) error {
	if index < 0 || index >= len(r.Conflicts) {
		return coreerr.New(coreerr.Invalid, "merge: conflict index %d out of range", index)
	}
	c := r.Conflicts[index]
	if c.Status != StatusDetected {
		return coreerr.New(coreerr.UserError, "merge: conflict %d already %v", index, c.Status)
	}

	var err error
	switch c.Kind {
	case OrphanedNode:
		err = r.resolveOrphanedNode(c, res)
	case DroppedModified:
		err = r.resolveDroppedModified(c, res)
	case DuplicateName:
		err = r.resolveDuplicateName(c, res)
	case Content:
		err = r.resolveContent(c, res, content)
	default:
		return coreerr.New(coreerr.UserError, "merge: %v conflicts cannot be resolved here; re-commit before merging", c.Kind)
	}
	if err != nil {
		return err
	}
	c.Resolution = res
	c.Status = StatusApplied
	return nil
}

// Finalize checks that every conflict has been resolved and marks them
// all committed, the "applied ──write──▶ committed" transition of
// spec.md §4.5's state machine. Call immediately before persisting the
// merge revision; any remaining unresolved conflict instead marks
// itself StatusReported and aborts.
func (r *RosterMergeResult) Finalize() error {
	unresolved := r.Unresolved()
	if len(unresolved) > 0 {
		for _, c := range unresolved {
			c.Status = StatusReported
		}
		return coreerr.New(coreerr.Conflict, "merge: %d conflict(s) remain unresolved", len(unresolved)).WithDetail(r)
	}
	for _, c := range r.Conflicts {
		c.Status = StatusCommitted
	}
	return nil
}

// attachAt resolves path's parent directory in r.Roster and attaches
// nid there under path's basename.
func (r *RosterMergeResult) attachAt(nid hash.NodeId, path vpath.FilePath) error {
	parentPath, name := path.Parent()
	parentId := r.Roster.Root()
	if !parentPath.IsRoot() {
		var err error
		parentId, err = r.Roster.ResolvePath(parentPath)
		if err != nil {
			return coreerr.Wrap(coreerr.UserError, err, "merge: resolve rename target %q", path.String())
		}
	}
	return r.Roster.AttachNode(nid, parentId, name)
}

// attachExisting re-attaches nid at the (parent, name) recorded on its
// conflict when it was detected — the "keep the original placement"
// resolution for DroppedModified/DuplicateName.
func (r *RosterMergeResult) attachExisting(nid, parent hash.NodeId, name vpath.PathComponent) error {
	return r.Roster.AttachNode(nid, parent, name)
}

func (r *RosterMergeResult) substituteContent(nid hash.NodeId, content hash.FileId) error {
	n, err := r.Roster.GetNode(nid)
	if err != nil {
		return err
	}
	n.Content = content
	return nil
}

func (r *RosterMergeResult) resolveOrphanedNode(c *Conflict, res *Resolution) error {
	switch res.Kind {
	case ResolveDrop:
		return nil // node stays excluded from the tree, nothing to attach
	case ResolveRename:
		return r.attachAt(c.Node, res.Path)
	default:
		return coreerr.New(coreerr.UserError, "merge: orphaned_node only accepts drop or rename")
	}
}

// droppedModifiedPlacement returns the (parent, name) the surviving side
// had recorded for the conflict's node.
func droppedModifiedPlacement(c *Conflict) (hash.NodeId, vpath.PathComponent) {
	if c.LeftParent != hash.NullNode || c.LeftName != "" {
		return c.LeftParent, c.LeftName
	}
	return c.RightParent, c.RightName
}

func (r *RosterMergeResult) resolveDroppedModified(c *Conflict, res *Resolution) error {
	switch res.Kind {
	case ResolveDrop:
		return nil
	case ResolveKeep:
		parent, name := droppedModifiedPlacement(c)
		return r.attachExisting(c.Node, parent, name)
	case ResolveRename:
		return r.attachAt(c.Node, res.Path)
	case ResolveUser:
		if err := r.substituteContent(c.Node, res.Content); err != nil {
			return err
		}
		parent, name := droppedModifiedPlacement(c)
		return r.attachExisting(c.Node, parent, name)
	case ResolveUserRename:
		if err := r.substituteContent(c.Node, res.Content); err != nil {
			return err
		}
		return r.attachAt(c.Node, res.Path)
	default:
		return coreerr.New(coreerr.UserError, "merge: dropped_modified does not accept %v", res.Kind)
	}
}

func (r *RosterMergeResult) resolveDuplicateName(c *Conflict, res *Resolution) error {
	resolveOne := func(nid hash.NodeId, kind ResolutionKind, path vpath.FilePath, content hash.FileId) error {
		switch kind {
		case ResolveDrop:
			return nil
		case ResolveKeep:
			return r.attachExisting(nid, c.LeftParent, c.LeftName)
		case ResolveRename:
			return r.attachAt(nid, path)
		case ResolveUser:
			if err := r.substituteContent(nid, content); err != nil {
				return err
			}
			return r.attachExisting(nid, c.LeftParent, c.LeftName)
		default:
			return coreerr.New(coreerr.UserError, "merge: duplicate_name does not accept %v", kind)
		}
	}
	if err := resolveOne(c.Node, res.Kind, res.Path, res.Content); err != nil {
		return err
	}
	return resolveOne(c.OtherNode, res.RightKind, res.RightPath, res.RightContent)
}

func (r *RosterMergeResult) resolveContent(c *Conflict, res *Resolution, content ContentFetcher) error {
	switch res.Kind {
	case ResolveUser:
		return r.substituteContent(c.Node, res.Content)
	case ResolveInternal:
		left, err := content.Get(c.LeftContent)
		if err != nil {
			return err
		}
		right, err := content.Get(c.RightContent)
		if err != nil {
			return err
		}
		var anc []byte
		if !c.AncestorContent.IsNull() {
			anc, err = content.Get(c.AncestorContent)
			if err != nil {
				return err
			}
		}
		merged, ok := diff3Merge(anc, left, right)
		if !ok {
			return coreerr.New(coreerr.UserError, "merge: internal content merge still conflicts")
		}
		mergedId := hash.FileIdOf(merged)
		if err := content.PutFull(mergedId, merged); err != nil {
			return err
		}
		return r.substituteContent(c.Node, mergedId)
	default:
		return coreerr.New(coreerr.UserError, "merge: content conflicts only accept internal or user")
	}
}
