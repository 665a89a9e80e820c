package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/vpath"
)

func mkPath(t *testing.T, s string) vpath.FilePath {
	t.Helper()
	p, err := vpath.ParseFilePath(s)
	require.NoError(t, err)
	return p
}

func TestRosterBasicAttachDetach(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	r := New(ids)
	require.True(t, r.HasNode(r.Root()))

	fileId := ids.Next()
	r.CreateFileNode(fileId, hash.FileIdOf([]byte("alpha")))
	require.NoError(t, r.AttachNode(fileId, r.Root(), "foo.txt"))

	p, err := r.PathOf(fileId)
	require.NoError(t, err)
	assert.Equal(t, "foo.txt", p.String())

	resolved, err := r.ResolvePath(mkPath(t, "foo.txt"))
	require.NoError(t, err)
	assert.Equal(t, fileId, resolved)

	require.NoError(t, r.CheckSaneAgainst(nil))
}

func TestRosterDuplicateNameRejected(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	r := New(ids)
	f1 := ids.Next()
	r.CreateFileNode(f1, hash.FileIdOf([]byte("a")))
	require.NoError(t, r.AttachNode(f1, r.Root(), "x"))

	f2 := ids.Next()
	r.CreateFileNode(f2, hash.FileIdOf([]byte("b")))
	err := r.AttachNode(f2, r.Root(), "x")
	assert.Error(t, err)
}

func TestMakeCsetRoundTrip(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	r0 := New(ids)
	rev := hash.RevisionId{}

	dirId := ids.Next()
	r0.CreateDirNode(dirId)
	require.NoError(t, r0.AttachNode(dirId, r0.Root(), "sub"))
	fileId := ids.Next()
	r0.CreateFileNode(fileId, hash.FileIdOf([]byte("v1")))
	require.NoError(t, r0.AttachNode(fileId, dirId, "a.txt"))

	r1 := r0.Clone()
	n, err := r1.GetNode(fileId)
	require.NoError(t, err)
	n.Content = hash.FileIdOf([]byte("v2"))

	cs, err := MakeCset(r0, r1)
	require.NoError(t, err)
	require.Len(t, cs.DeltasApplied, 1)

	applied, err := cs.Apply(r0, ids, rev, nil)
	require.NoError(t, err)

	cs2, err := MakeCset(applied, r1)
	require.NoError(t, err)
	assert.True(t, cs2.IsEmpty())
}

func TestCsetApplyFixedOrder(t *testing.T) {
	// A rename followed by a delta on the renamed path must see the
	// renamed location — exercising the fixed rename-before-delta order.
	ids := hash.NewNodeIdSource(0)
	r0 := New(ids)
	fileId := ids.Next()
	r0.CreateFileNode(fileId, hash.FileIdOf([]byte("v1")))
	require.NoError(t, r0.AttachNode(fileId, r0.Root(), "old.txt"))

	cs := NewCset()
	cs.NodesRenamed["old.txt"] = mkPath(t, "new.txt")
	cs.DeltasApplied["new.txt"] = Delta{Old: hash.FileIdOf([]byte("v1")), New: hash.FileIdOf([]byte("v2"))}

	r1, err := cs.Apply(r0, ids, hash.RevisionId{}, nil)
	require.NoError(t, err)
	nid, err := r1.ResolvePath(mkPath(t, "new.txt"))
	require.NoError(t, err)
	n, err := r1.GetNode(nid)
	require.NoError(t, err)
	assert.Equal(t, hash.FileIdOf([]byte("v2")), n.Content)
}

func TestMarkMergeBaseCase(t *testing.T) {
	childRev := hash.RevisionIdOf([]byte("child"))
	marks := MarkMerge(childRev, "same", []ParentValue{
		{Present: true, Value: "same", Marks: NewRevisionSet(hash.RevisionIdOf([]byte("p1")))},
		{Present: true, Value: "different", Marks: NewRevisionSet(hash.RevisionIdOf([]byte("p2")))},
	}, func(a, b interface{}) bool { return a == b })
	assert.True(t, marks.Has(hash.RevisionIdOf([]byte("p1"))))
	assert.False(t, marks.Has(hash.RevisionIdOf([]byte("p2"))))
}

func TestMarkMergeNewValueGetsOwnMark(t *testing.T) {
	childRev := hash.RevisionIdOf([]byte("child"))
	marks := MarkMerge(childRev, "brandnew", []ParentValue{
		{Present: true, Value: "old", Marks: NewRevisionSet(hash.RevisionIdOf([]byte("p1")))},
	}, func(a, b interface{}) bool { return a == b })
	assert.True(t, marks.Has(childRev))
	assert.Len(t, marks, 1)
}
