package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/core/hash"
)

func TestUncommonAncestorsDiverged(t *testing.T) {
	g, content := newTestGraph(t)
	r0 := buildRootRevision(t, g, content, "v0\n")
	r1 := buildChildRevision(t, g, content, r0, "v1\n")
	r2 := buildChildRevision(t, g, content, r0, "v2\n")

	onlyA, onlyB, err := g.UncommonAncestors(r1, r2)
	require.NoError(t, err)
	assert.Equal(t, []hash.RevisionId{r1}, onlyA)
	assert.Equal(t, []hash.RevisionId{r2}, onlyB)

	common, err := g.CommonAncestors(r1, r2)
	require.NoError(t, err)
	assert.Equal(t, []hash.RevisionId{r0}, common)
}

func TestAncestorsAndDescendants(t *testing.T) {
	g, content := newTestGraph(t)
	r0 := buildRootRevision(t, g, content, "v0\n")
	r1 := buildChildRevision(t, g, content, r0, "v1\n")
	r2 := buildChildRevision(t, g, content, r1, "v2\n")

	anc, err := g.Ancestors(r2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []hash.RevisionId{r0, r1}, anc)

	desc, err := g.Descendants(r0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []hash.RevisionId{r1, r2}, desc)

	ok, err := g.IsAncestor(r0, r2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.IsAncestor(r2, r0)
	require.NoError(t, err)
	assert.False(t, ok)
}
