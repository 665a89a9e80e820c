package graph

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/revision"
	"github.com/vcsforge/core/roster"
	"github.com/vcsforge/core/store"
	"github.com/vcsforge/core/vpath"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestGraph(t *testing.T) (*Graph, *store.ContentStore) {
	t.Helper()
	db, err := store.Open("file:"+t.Name()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	content := store.NewContentStore(db, testLogger(), store.DefaultConfig())
	rosters := store.NewRosterStore(db, testLogger(), store.DefaultConfig())
	certStore := certs.New(testLogger())
	g := New(db, testLogger(), content, rosters, certStore)
	t.Cleanup(g.Close)
	return g, content
}

// buildRootRevision commits a single-file root revision and returns its id.
func buildRootRevision(t *testing.T, g *Graph, content *store.ContentStore, fileBody string) hash.RevisionId {
	t.Helper()
	data := []byte(fileBody)
	fileId := hash.FileIdOf(data)
	require.NoError(t, content.PutFull(fileId, data))

	ids := hash.NewNodeIdSource(0)
	r0 := roster.New(ids)
	cs := roster.NewCset()
	p, err := vpath.ParseFilePath("hello.txt")
	require.NoError(t, err)
	cs.FilesAdded[p.String()] = fileId

	rev := revision.New(roster.ManifestIdOf(r0)) // placeholder, corrected below
	nullRev := hash.RevisionId{}
	rev.Edges[nullRev] = cs

	// Compute the actual new roster/manifest the same way PutRevision will,
	// so NewManifest is recorded correctly before hashing the revision.
	mm := roster.NewMarkingMap()
	mm.PutBirth(r0.Root(), false, nullRev)
	newR, _, err := cs.Apply(r0, hash.NewNodeIdSource(0), nullRev, mm)
	require.NoError(t, err)
	rev.NewManifest = roster.ManifestIdOf(newR)

	id := rev.Id()
	require.NoError(t, g.PutRevision(id, rev))
	return id
}

func TestPutRevisionRoot(t *testing.T) {
	g, content := newTestGraph(t)
	id := buildRootRevision(t, g, content, "hello world\n")

	exists, err := g.Exists(id)
	require.NoError(t, err)
	assert.True(t, exists)

	h, err := g.Height(id)
	require.NoError(t, err)
	assert.Equal(t, revision.Root(), h)

	leaves, err := g.Leaves()
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, id, leaves[0])
}

func TestPutRevisionChildIncreasesHeight(t *testing.T) {
	g, content := newTestGraph(t)
	rootId := buildRootRevision(t, g, content, "v1\n")

	parentR, parentM, err := g.rosters.Get(rootId)
	require.NoError(t, err)

	newData := []byte("v2\n")
	newFileId := hash.FileIdOf(newData)
	require.NoError(t, content.PutFull(newFileId, newData))

	cs := roster.NewCset()
	p, err := vpath.ParseFilePath("hello.txt")
	require.NoError(t, err)
	oldNode, err := parentR.GetNode(mustResolve(t, parentR, p))
	require.NoError(t, err)
	cs.DeltasApplied[p.String()] = roster.Delta{Old: oldNode.Content, New: newFileId}

	ids := hash.NewNodeIdSource(0)
	newR, _, err := cs.Apply(parentR, ids, rootId, parentM.Clone())
	require.NoError(t, err)

	rev := revision.New(roster.ManifestIdOf(newR))
	rev.Edges[rootId] = cs
	childId := rev.Id()
	require.NoError(t, g.PutRevision(childId, rev))

	childHeight, err := g.Height(childId)
	require.NoError(t, err)
	rootHeight, err := g.Height(rootId)
	require.NoError(t, err)
	assert.True(t, revision.Less(rootHeight, childHeight))

	parents, err := g.Parents(childId)
	require.NoError(t, err)
	assert.Equal(t, []hash.RevisionId{rootId}, parents)

	leaves, err := g.Leaves()
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, childId, leaves[0])

	ancestor, err := g.IsAncestor(rootId, childId)
	require.NoError(t, err)
	assert.True(t, ancestor)
}

func mustResolve(t *testing.T, r *roster.Roster, p vpath.FilePath) hash.NodeId {
	t.Helper()
	nid, err := r.ResolvePath(p)
	require.NoError(t, err)
	return nid
}
