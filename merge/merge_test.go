package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
	"github.com/vcsforge/core/vpath"
)

// memContent is a trivial in-memory ContentFetcher for exercising merge
// without a real store.ContentStore.
type memContent struct {
	data map[hash.FileId][]byte
}

func newMemContent() *memContent { return &memContent{data: map[hash.FileId][]byte{}} }

func (c *memContent) Get(id hash.FileId) ([]byte, error) {
	b, ok := c.data[id]
	if !ok {
		return nil, errors.New("memContent: no such id")
	}
	return b, nil
}

func (c *memContent) PutFull(id hash.FileId, data []byte) error {
	c.data[id] = data
	return nil
}

func (c *memContent) PutFileVersion(old, new hash.FileId, oldBytes, newBytes []byte) error {
	c.data[old] = oldBytes
	c.data[new] = newBytes
	return nil
}

func newAncestralRoot(t *testing.T, ids *hash.NodeIdSource, rev hash.RevisionId) (*roster.Roster, *roster.MarkingMap) {
	t.Helper()
	r := roster.New(ids)
	marks := roster.NewMarkingMap()
	marks.PutBirth(r.Root(), false, rev)
	return r, marks
}

func addFile(t *testing.T, r *roster.Roster, marks *roster.MarkingMap, ids *hash.NodeIdSource, parent hash.NodeId, name vpath.PathComponent, content []byte, rev hash.RevisionId) hash.NodeId {
	t.Helper()
	id := ids.Next()
	r.CreateFileNode(id, hash.FileIdOf(content))
	require.NoError(t, r.AttachNode(id, parent, name))
	marks.PutBirth(id, true, rev)
	return id
}

func TestMergeContentAgreedAndChangedBySingleSide(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	ancestorRev := hash.RevisionIdOf([]byte("ancestor"))
	childRev := hash.RevisionIdOf([]byte("child"))

	ancRoster, ancMarks := newAncestralRoot(t, ids, ancestorRev)
	fileId := addFile(t, ancRoster, ancMarks, ids, ancRoster.Root(), "a.txt", []byte("hello\n"), ancestorRev)

	leftRoster, leftMarks := ancRoster.Clone(), ancMarks.Clone()
	rightRoster, rightMarks := ancRoster.Clone(), ancMarks.Clone()

	ln, err := leftRoster.GetNode(fileId)
	require.NoError(t, err)
	ln.Content = hash.FileIdOf([]byte("hello world\n"))

	content := newMemContent()
	require.NoError(t, content.PutFull(hash.FileIdOf([]byte("hello\n")), []byte("hello\n")))
	require.NoError(t, content.PutFull(ln.Content, []byte("hello world\n")))

	result, err := Merge(
		Ancestral{Roster: ancRoster, Marks: ancMarks},
		Ancestral{Roster: leftRoster, Marks: leftMarks},
		Ancestral{Roster: rightRoster, Marks: rightMarks},
		childRev, content,
	)
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)

	merged, err := result.Roster.GetNode(fileId)
	require.NoError(t, err)
	assert.Equal(t, ln.Content, merged.Content)
}

func TestMergeAutoMergesNonOverlappingTextEdits(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	ancestorRev := hash.RevisionIdOf([]byte("ancestor"))
	childRev := hash.RevisionIdOf([]byte("child"))

	ancRoster, ancMarks := newAncestralRoot(t, ids, ancestorRev)
	ancText := []byte("one\ntwo\nthree\n")
	fileId := addFile(t, ancRoster, ancMarks, ids, ancRoster.Root(), "a.txt", ancText, ancestorRev)

	leftRoster, leftMarks := ancRoster.Clone(), ancMarks.Clone()
	rightRoster, rightMarks := ancRoster.Clone(), ancMarks.Clone()

	leftText := []byte("ONE\ntwo\nthree\n")
	ln, err := leftRoster.GetNode(fileId)
	require.NoError(t, err)
	ln.Content = hash.FileIdOf(leftText)

	rightText := []byte("one\ntwo\nTHREE\n")
	rn, err := rightRoster.GetNode(fileId)
	require.NoError(t, err)
	rn.Content = hash.FileIdOf(rightText)

	content := newMemContent()
	require.NoError(t, content.PutFull(hash.FileIdOf(ancText), ancText))
	require.NoError(t, content.PutFull(ln.Content, leftText))
	require.NoError(t, content.PutFull(rn.Content, rightText))

	result, err := Merge(
		Ancestral{Roster: ancRoster, Marks: ancMarks},
		Ancestral{Roster: leftRoster, Marks: leftMarks},
		Ancestral{Roster: rightRoster, Marks: rightMarks},
		childRev, content,
	)
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)

	mergedNode, err := result.Roster.GetNode(fileId)
	require.NoError(t, err)
	mergedBytes, err := content.Get(mergedNode.Content)
	require.NoError(t, err)
	assert.Equal(t, "ONE\ntwo\nTHREE\n", string(mergedBytes))
}

func TestMergeContentConflictResolvedByUser(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	ancestorRev := hash.RevisionIdOf([]byte("ancestor"))
	childRev := hash.RevisionIdOf([]byte("child"))

	ancRoster, ancMarks := newAncestralRoot(t, ids, ancestorRev)
	ancText := []byte("a\nb\nc\n")
	fileId := addFile(t, ancRoster, ancMarks, ids, ancRoster.Root(), "a.txt", ancText, ancestorRev)

	leftRoster, leftMarks := ancRoster.Clone(), ancMarks.Clone()
	rightRoster, rightMarks := ancRoster.Clone(), ancMarks.Clone()

	leftText := []byte("a\nLEFT\nc\n")
	ln, err := leftRoster.GetNode(fileId)
	require.NoError(t, err)
	ln.Content = hash.FileIdOf(leftText)

	rightText := []byte("a\nRIGHT\nc\n")
	rn, err := rightRoster.GetNode(fileId)
	require.NoError(t, err)
	rn.Content = hash.FileIdOf(rightText)

	content := newMemContent()
	require.NoError(t, content.PutFull(hash.FileIdOf(ancText), ancText))
	require.NoError(t, content.PutFull(ln.Content, leftText))
	require.NoError(t, content.PutFull(rn.Content, rightText))

	result, err := Merge(
		Ancestral{Roster: ancRoster, Marks: ancMarks},
		Ancestral{Roster: leftRoster, Marks: leftMarks},
		Ancestral{Roster: rightRoster, Marks: rightMarks},
		childRev, content,
	)
	require.Error(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, Content, result.Conflicts[0].Kind)

	resolvedText := []byte("a\nLEFT-AND-RIGHT\nc\n")
	resolvedId := hash.FileIdOf(resolvedText)
	require.NoError(t, content.PutFull(resolvedId, resolvedText))

	require.NoError(t, result.Resolve(0, &Resolution{Kind: ResolveUser, Content: resolvedId}, content))
	require.NoError(t, result.Finalize())

	mergedNode, err := result.Roster.GetNode(fileId)
	require.NoError(t, err)
	assert.Equal(t, resolvedId, mergedNode.Content)
}

func TestMergeMultipleNamesConflictCannotBeResolved(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	ancestorRev := hash.RevisionIdOf([]byte("ancestor"))
	childRev := hash.RevisionIdOf([]byte("child"))

	ancRoster, ancMarks := newAncestralRoot(t, ids, ancestorRev)
	fileId := addFile(t, ancRoster, ancMarks, ids, ancRoster.Root(), "a.txt", []byte("hi\n"), ancestorRev)

	leftRoster, leftMarks := ancRoster.Clone(), ancMarks.Clone()
	rightRoster, rightMarks := ancRoster.Clone(), ancMarks.Clone()

	require.NoError(t, leftRoster.DetachNode(fileId))
	require.NoError(t, leftRoster.AttachNode(fileId, leftRoster.Root(), "left-name.txt"))

	require.NoError(t, rightRoster.DetachNode(fileId))
	require.NoError(t, rightRoster.AttachNode(fileId, rightRoster.Root(), "right-name.txt"))

	content := newMemContent()
	require.NoError(t, content.PutFull(hash.FileIdOf([]byte("hi\n")), []byte("hi\n")))

	result, err := Merge(
		Ancestral{Roster: ancRoster, Marks: ancMarks},
		Ancestral{Roster: leftRoster, Marks: leftMarks},
		Ancestral{Roster: rightRoster, Marks: rightMarks},
		childRev, content,
	)
	require.Error(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, MultipleNames, result.Conflicts[0].Kind)

	renamed, rerr := vpath.ParseFilePath("either.txt")
	require.NoError(t, rerr)
	resolveErr := result.Resolve(0, &Resolution{Kind: ResolveRename, Path: renamed}, content)
	assert.Error(t, resolveErr, "multiple_names has no resolution path")

	assert.Error(t, result.Finalize())
}

func TestMergeDroppedModifiedResolvedByKeep(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	ancestorRev := hash.RevisionIdOf([]byte("ancestor"))
	childRev := hash.RevisionIdOf([]byte("child"))

	ancRoster, ancMarks := newAncestralRoot(t, ids, ancestorRev)
	fileId := addFile(t, ancRoster, ancMarks, ids, ancRoster.Root(), "a.txt", []byte("v1\n"), ancestorRev)

	leftRoster, leftMarks := ancRoster.Clone(), ancMarks.Clone()
	rightRoster, rightMarks := ancRoster.Clone(), ancMarks.Clone()

	require.NoError(t, leftRoster.DetachNode(fileId))
	require.NoError(t, leftRoster.DropDetachedNode(fileId))
	leftMarks.Delete(fileId)

	rn, err := rightRoster.GetNode(fileId)
	require.NoError(t, err)
	rn.Content = hash.FileIdOf([]byte("v2\n"))

	content := newMemContent()
	require.NoError(t, content.PutFull(hash.FileIdOf([]byte("v1\n")), []byte("v1\n")))
	require.NoError(t, content.PutFull(rn.Content, []byte("v2\n")))

	result, err := Merge(
		Ancestral{Roster: ancRoster, Marks: ancMarks},
		Ancestral{Roster: leftRoster, Marks: leftMarks},
		Ancestral{Roster: rightRoster, Marks: rightMarks},
		childRev, content,
	)
	require.Error(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, DroppedModified, result.Conflicts[0].Kind)

	require.NoError(t, result.Resolve(0, &Resolution{Kind: ResolveKeep}, content))
	require.NoError(t, result.Finalize())

	n, err := result.Roster.GetNode(fileId)
	require.NoError(t, err)
	assert.True(t, n.IsAttached())
	assert.Equal(t, rn.Content, n.Content)
}

func TestMergeDuplicateNameConflictResolvedByRename(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	ancestorRev := hash.RevisionIdOf([]byte("ancestor"))
	childRev := hash.RevisionIdOf([]byte("child"))

	ancRoster, ancMarks := newAncestralRoot(t, ids, ancestorRev)

	leftRoster, leftMarks := ancRoster.Clone(), ancMarks.Clone()
	rightRoster, rightMarks := ancRoster.Clone(), ancMarks.Clone()

	leftRev := hash.RevisionIdOf([]byte("left"))
	rightRev := hash.RevisionIdOf([]byte("right"))

	leftFile := addFile(t, leftRoster, leftMarks, ids, leftRoster.Root(), "dup.txt", []byte("from-left\n"), leftRev)
	rightFile := addFile(t, rightRoster, rightMarks, ids, rightRoster.Root(), "dup.txt", []byte("from-right\n"), rightRev)

	content := newMemContent()
	require.NoError(t, content.PutFull(hash.FileIdOf([]byte("from-left\n")), []byte("from-left\n")))
	require.NoError(t, content.PutFull(hash.FileIdOf([]byte("from-right\n")), []byte("from-right\n")))

	result, err := Merge(
		Ancestral{Roster: ancRoster, Marks: ancMarks},
		Ancestral{Roster: leftRoster, Marks: leftMarks},
		Ancestral{Roster: rightRoster, Marks: rightMarks},
		childRev, content,
	)
	require.Error(t, err)
	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, DuplicateName, conflict.Kind)
	assert.ElementsMatch(t, []hash.NodeId{leftFile, rightFile}, []hash.NodeId{conflict.Node, conflict.OtherNode})

	renamed, rerr := vpath.ParseFilePath("dup-renamed.txt")
	require.NoError(t, rerr)
	require.NoError(t, result.Resolve(0, &Resolution{
		Kind:      ResolveKeep,
		RightKind: ResolveRename,
		RightPath: renamed,
	}, content))
	require.NoError(t, result.Finalize())

	kept, err := result.Roster.GetNode(conflict.Node)
	require.NoError(t, err)
	assert.True(t, kept.IsAttached())

	movedAside, err := result.Roster.GetNode(conflict.OtherNode)
	require.NoError(t, err)
	assert.True(t, movedAside.IsAttached())
	p, err := result.Roster.PathOf(conflict.OtherNode)
	require.NoError(t, err)
	assert.Equal(t, "dup-renamed.txt", p.String())
}
