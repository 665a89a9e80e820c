package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/core/hash"
)

func TestSerializeFullParseFullRoundTrip(t *testing.T) {
	ids := hash.NewNodeIdSource(0)
	r := New(ids)
	rev := hash.RevisionIdOf([]byte("r0"))

	mm := NewMarkingMap()
	mm.PutBirth(r.Root(), false, rev)

	dirId := ids.Next()
	r.CreateDirNode(dirId)
	require.NoError(t, r.AttachNode(dirId, r.Root(), "sub"))
	mm.PutBirth(dirId, false, rev)

	fileId := ids.Next()
	r.CreateFileNode(fileId, hash.FileIdOf([]byte("v1")))
	require.NoError(t, r.AttachNode(fileId, dirId, "a.txt"))
	fm := mm.PutBirth(fileId, true, rev)
	fm.Attrs["executable"] = NewRevisionSet(rev)

	n, err := r.GetNode(fileId)
	require.NoError(t, err)
	n.Attrs["executable"] = "true"

	text := SerializeFull(r, mm)

	r2, mm2, err := ParseFull(text)
	require.NoError(t, err)

	text2 := SerializeFull(r2, mm2)
	assert.Equal(t, text, text2)

	n2id, err := r2.ResolvePath(mkPath(t, "sub/a.txt"))
	require.NoError(t, err)
	n2, err := r2.GetNode(n2id)
	require.NoError(t, err)
	assert.Equal(t, AttrValue("true"), n2.Attrs["executable"])
	assert.Equal(t, hash.FileIdOf([]byte("v1")), n2.Content)

	mk2, err := mm2.Get(n2id)
	require.NoError(t, err)
	assert.True(t, mk2.Content.Has(rev))
	assert.True(t, mk2.Attrs["executable"].Has(rev))
}
