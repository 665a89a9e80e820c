package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportDotContainsEdge(t *testing.T) {
	g, content := newTestGraph(t)
	r0 := buildRootRevision(t, g, content, "v0\n")
	_ = buildChildRevision(t, g, content, r0, "v1\n")

	dg, err := g.ExportDot()
	require.NoError(t, err)
	out := dg.String()
	assert.True(t, strings.Contains(out, "digraph"))
	assert.True(t, strings.Contains(out, "->"))
}
