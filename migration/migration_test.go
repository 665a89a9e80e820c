package migration

import (
	"database/sql"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/graph"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/revision"
	"github.com/vcsforge/core/store"
	"github.com/vcsforge/core/vpath"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

type testEnv struct {
	db      *sql.DB
	graph   *graph.Graph
	content *store.ContentStore
	rosters *store.RosterStore
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open("file:"+t.Name()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	content := store.NewContentStore(db, testLogger(), store.DefaultConfig())
	rosters := store.NewRosterStore(db, testLogger(), store.DefaultConfig())
	certStore := certs.New(testLogger())
	g := graph.New(db, testLogger(), content, rosters, certStore)
	t.Cleanup(g.Close)
	return &testEnv{db: db, graph: g, content: content, rosters: rosters}
}

// putBranchCert persists an unsigned branch cert directly — enough for
// RecalcBranchLeaves, which only reads name/value/revision_id and never
// re-verifies the signature.
func putBranchCert(t *testing.T, env *testEnv, branch string, r hash.RevisionId) {
	t.Helper()
	require.NoError(t, store.PersistCert(env.db, &certs.Cert{
		Ident: r,
		Name:  graph.BranchCertName,
		Value: certs.CertValue(branch),
	}))
}

func putFile(t *testing.T, content *store.ContentStore, body string) hash.FileId {
	t.Helper()
	data := []byte(body)
	id := hash.FileIdOf(data)
	require.NoError(t, content.PutFull(id, data))
	return id
}

func mustPath(t *testing.T, s string) vpath.FilePath {
	t.Helper()
	fp, err := vpath.ParseFilePath(s)
	require.NoError(t, err)
	return fp
}

func TestImportHistoryRootThenEditAddDelete(t *testing.T) {
	env := setup(t)
	im := New(env.graph, env.rosters, testLogger())

	helloV1 := putFile(t, env.content, "hello v1\n")
	keepMe := putFile(t, env.content, "unchanged\n")
	helloV2 := putFile(t, env.content, "hello v2\n")
	newFile := putFile(t, env.content, "brand new\n")

	ids, err := im.ImportHistory([]ManifestSnapshot{
		{Files: map[string]hash.FileId{
			"hello.txt": helloV1,
			"keep.txt":  keepMe,
		}},
		{Files: map[string]hash.FileId{
			"hello.txt": helloV2, // content change
			"keep.txt":  keepMe,  // unchanged
			"new.txt":   newFile, // new
		}},
		{Files: map[string]hash.FileId{
			"hello.txt": helloV2,
			"new.txt":   newFile,
			// keep.txt dropped here — a plain path-keyed manifest has no
			// way to say "this became that", so a real rename would show
			// up indistinguishably from a drop of the old path plus an
			// add of the new one
		}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	parents1, err := env.graph.Parents(ids[1])
	require.NoError(t, err)
	require.Len(t, parents1, 1)
	assert.Equal(t, ids[0], parents1[0])

	r2, _, err := env.rosters.Get(ids[2])
	require.NoError(t, err)
	_, err = r2.ResolvePath(mustPath(t, "keep.txt"))
	assert.Error(t, err, "keep.txt must have been deleted by the third snapshot")

	nid, err := r2.ResolvePath(mustPath(t, "hello.txt"))
	require.NoError(t, err)
	n, err := r2.GetNode(nid)
	require.NoError(t, err)
	assert.Equal(t, helloV2, n.Content)

	h0, err := env.graph.Height(ids[0])
	require.NoError(t, err)
	h2, err := env.graph.Height(ids[2])
	require.NoError(t, err)
	assert.True(t, revision.Less(h0, h2))
}

func TestImportSnapshotRenameShowsAsDropAndAdd(t *testing.T) {
	env := setup(t)
	im := New(env.graph, env.rosters, testLogger())

	body := putFile(t, env.content, "same bytes throughout\n")

	root, err := im.ImportSnapshot(ManifestSnapshot{
		Files: map[string]hash.FileId{"old/name.txt": body},
	})
	require.NoError(t, err)

	renamed, err := im.ImportSnapshot(ManifestSnapshot{
		Parent: root,
		Files:  map[string]hash.FileId{"new/name.txt": body},
	})
	require.NoError(t, err)

	r, _, err := env.rosters.Get(renamed)
	require.NoError(t, err)
	_, err = r.ResolvePath(mustPath(t, "old/name.txt"))
	assert.Error(t, err)
	nid, err := r.ResolvePath(mustPath(t, "new/name.txt"))
	require.NoError(t, err)
	n, err := r.GetNode(nid)
	require.NoError(t, err)
	assert.Equal(t, body, n.Content)
}

func TestCheckSchemaReportsFreshDatabaseAsClean(t *testing.T) {
	db, err := store.Open("file:"+t.Name()+"?mode=memory&cache=shared", true)
	require.NoError(t, err)
	defer db.Close()

	status, err := CheckSchema(db)
	require.NoError(t, err)
	assert.False(t, status.NeedRegen())
	assert.False(t, status.NeedFlagDay())

	require.NoError(t, Finish(db))
	status, err = CheckSchema(db)
	require.NoError(t, err)
	assert.False(t, status.NeedFlagDay())
}

func TestCheckSchemaFlagsUnrecognizedStamp(t *testing.T) {
	db, err := store.Open("file:"+t.Name()+"?mode=memory&cache=shared", true)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, store.WriteSchemaVersion(db, "some-ancient-schema"))

	status, err := CheckSchema(db)
	require.NoError(t, err)
	assert.True(t, status.NeedFlagDay())
	assert.Contains(t, status.FlagDayName, "some-ancient-schema")
}

func TestRegenTypeHasBits(t *testing.T) {
	assert.True(t, RegenAll.Has(RegenRosters))
	assert.True(t, RegenAll.Has(RegenHeights))
	assert.True(t, RegenAll.Has(RegenBranches))
	assert.True(t, RegenAll.Has(RegenFileSizes))
	assert.False(t, RegenNone.Has(RegenRosters))
	assert.False(t, RegenRosters.Has(RegenHeights))
}

func TestRegenerateRostersHeightsAndBranches(t *testing.T) {
	env := setup(t)
	im := New(env.graph, env.rosters, testLogger())

	f := putFile(t, env.content, "only file\n")
	root, err := im.ImportSnapshot(ManifestSnapshot{Files: map[string]hash.FileId{"only.txt": f}})
	require.NoError(t, err)
	putBranchCert(t, env, "trunk", root)

	err = Regenerate(env.graph, env.rosters, env.content, testLogger(), RegenAll, []string{"trunk"})
	require.NoError(t, err)

	leaves, err := env.graph.BranchLeaves("trunk")
	require.NoError(t, err)
	assert.Equal(t, []hash.RevisionId{root}, leaves)

	h, err := env.graph.Height(root)
	require.NoError(t, err)
	assert.NotEmpty(t, h.String())
}

func TestRegenerateFileSizes(t *testing.T) {
	env := setup(t)
	im := New(env.graph, env.rosters, testLogger())

	f := putFile(t, env.content, "twelve bytes")
	_, err := im.ImportSnapshot(ManifestSnapshot{Files: map[string]hash.FileId{"f.txt": f}})
	require.NoError(t, err)

	err = Regenerate(env.graph, env.rosters, env.content, testLogger(), RegenFileSizes, nil)
	require.NoError(t, err)

	var size int64
	require.NoError(t, env.db.QueryRow("SELECT size FROM file_sizes WHERE id = ?", f.String()).Scan(&size))
	assert.EqualValues(t, len("twelve bytes"), size)
}
