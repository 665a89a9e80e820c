package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/core/hash"
)

func TestEpochSetAndMatch(t *testing.T) {
	g, _ := newTestGraph(t)

	ok, err := g.EpochMatches("main", hash.EpochId{})
	require.NoError(t, err)
	assert.True(t, ok) // nothing stamped yet

	e1 := hash.EpochId{Hash: hash.Sum([]byte("epoch-1"))}
	require.NoError(t, g.SetEpoch("main", e1))

	got, err := g.CheckEpoch("main")
	require.NoError(t, err)
	assert.Equal(t, e1, got)

	ok, err = g.EpochMatches("main", e1)
	require.NoError(t, err)
	assert.True(t, ok)

	e2 := hash.EpochId{Hash: hash.Sum([]byte("epoch-2"))}
	require.NoError(t, g.SetEpoch("main", e2))
	ok, err = g.EpochMatches("main", e1)
	require.NoError(t, err)
	assert.False(t, ok)
}
