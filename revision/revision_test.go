package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
)

func TestRevisionIdDeterministic(t *testing.T) {
	rev := New(hash.ManifestIdOf([]byte("manifest-a")))
	rev.Edges[hash.RevisionId{}] = roster.NewCset()
	id1 := rev.Id()

	rev2 := New(hash.ManifestIdOf([]byte("manifest-a")))
	rev2.Edges[hash.RevisionId{}] = roster.NewCset()
	id2 := rev2.Id()

	assert.Equal(t, id1, id2)
	assert.True(t, rev.IsRoot())
}

func TestRevisionIdChangesWithManifest(t *testing.T) {
	rev := New(hash.ManifestIdOf([]byte("a")))
	rev.Edges[hash.RevisionId{}] = roster.NewCset()
	rev2 := New(hash.ManifestIdOf([]byte("b")))
	rev2.Edges[hash.RevisionId{}] = roster.NewCset()
	assert.NotEqual(t, rev.Id(), rev2.Id())
}

func TestHeightAssignmentExample(t *testing.T) {
	used := map[string]bool{}
	mark := func(h Height) { used[h.String()] = true }
	h0 := Assign(nil, func(h Height) bool { return used[h.String()] })
	mark(h0)
	h1 := Assign([]Height{h0}, func(h Height) bool { return used[h.String()] })
	mark(h1)
	h2 := Assign([]Height{h0}, func(h Height) bool { return used[h.String()] })
	mark(h2)

	assert.Equal(t, Height{0}, h0)
	assert.Equal(t, Height{0, 0}, h1)
	assert.Equal(t, Height{0, 1}, h2)
	assert.True(t, Less(h0, h1))
	assert.True(t, Less(h0, h2))
	assert.True(t, Less(h1, h2))
}

func TestHeightEncodeDecodeRoundTrip(t *testing.T) {
	h := Height{0, 3, 7}
	b := Encode(h)
	got, err := DecodeHeight(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}
