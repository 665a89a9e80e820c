package merge

import (
	"sort"

	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
	"github.com/vcsforge/core/vpath"
)

// ConflictKind is the fixed taxonomy spec.md §4.5 names, in the stable
// serialization order §4.6 requires.
type ConflictKind int

const (
	MissingRoot ConflictKind = iota
	InvalidName
	DirectoryLoop
	OrphanedNode
	MultipleNames
	DroppedModified
	DuplicateName
	Attribute
	Content
)

func (k ConflictKind) String() string {
	switch k {
	case MissingRoot:
		return "missing_root"
	case InvalidName:
		return "invalid_name"
	case DirectoryLoop:
		return "directory_loop"
	case OrphanedNode:
		return "orphaned_node"
	case MultipleNames:
		return "multiple_names"
	case DroppedModified:
		return "dropped_modified"
	case DuplicateName:
		return "duplicate_name"
	case Attribute:
		return "attribute"
	case Content:
		return "content"
	default:
		return "unknown"
	}
}

// Status is the conflict node's position in spec.md §4.5's state
// machine: detected ──resolved-by-spec──▶ applied ──write──▶ committed,
// with an alternate not-resolved──▶ reported branch.
type Status int

const (
	StatusDetected Status = iota
	StatusApplied
	StatusCommitted
	StatusReported
)

// ResolutionKind is the fixed vocabulary of resolutions spec.md §4.5's
// table allows, not all of which apply to every ConflictKind.
type ResolutionKind int

const (
	ResolveDrop ResolutionKind = iota
	ResolveKeep
	ResolveRename
	ResolveUser
	ResolveUserRename
	ResolveInternal
)

// Resolution records how a conflict was settled. Kind/Path/Content hold
// the resolution applied to Conflict.Node (OrphanedNode's rename path,
// DroppedModified's single choice, FileContent's user content);
// DuplicateName also reads RightKind/RightPath/RightContent for
// Conflict.OtherNode.
type Resolution struct {
	Kind    ResolutionKind
	Path    vpath.FilePath
	Content hash.FileId // ResolveUser's substitute content

	// RightKind/RightPath/RightContent address Conflict.OtherNode for
	// DuplicateName, not a right-hand branch. LeftKind/LeftPath/
	// LeftContent mirror Kind/Path/Content when conflictio parses a left
	// side; Resolve does not read them.
	LeftKind     ResolutionKind
	LeftPath     vpath.FilePath
	LeftContent  hash.FileId
	RightKind    ResolutionKind
	RightPath    vpath.FilePath
	RightContent hash.FileId
}

// Conflict is one stanza's worth of merge fallout (spec.md §4.5/§4.6).
// Not every field is meaningful for every Kind; conflictio knows which
// fields each kind serializes.
type Conflict struct {
	Kind   ConflictKind
	Status Status
	Node   hash.NodeId

	// Name resolution / duplicate / orphan fields.
	LeftParent, RightParent hash.NodeId
	LeftName, RightName     vpath.PathComponent
	OtherNode               hash.NodeId

	// Content fields.
	AncestorContent, LeftContent, RightContent hash.FileId
	MergedContent                              hash.FileId
	IsDir                                       bool

	// Attribute fields.
	AttrKey                                    roster.AttrKey
	AncestorAttr, LeftAttr, RightAttr          roster.AttrValue
	AncestorPresent, LeftPresent, RightPresent bool

	Resolution *Resolution
}

// sortConflicts orders a conflict list into the stable category order
// spec.md §4.6 requires, breaking ties by NodeId for determinism.
func sortConflicts(cs []*Conflict) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Kind != cs[j].Kind {
			return cs[i].Kind < cs[j].Kind
		}
		return cs[i].Node < cs[j].Node
	})
}
