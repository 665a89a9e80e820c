package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/store"
)

func TestCheckDatabaseCleanOnFreshImport(t *testing.T) {
	g, content := newTestGraph(t)
	rootId := buildRootRevision(t, g, content, "hello world\n")

	report, err := g.CheckDatabase()
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Empty(t, report.Ancestry)
	assert.Empty(t, report.Heights)
	assert.Empty(t, report.Certs)
	assert.True(t, report.Files.OK())
	assert.True(t, report.Rosters.OK())
	assert.NotZero(t, rootId)
}

func TestCheckDatabaseFlagsDanglingAncestryRow(t *testing.T) {
	g, content := newTestGraph(t)
	rootId := buildRootRevision(t, g, content, "hello world\n")

	// Insert a bogus ancestry row pointing at a parent that was never
	// committed — checkAncestry must flag the row's parent as a revision
	// that does not exist.
	_, err := g.db.Exec("INSERT INTO revision_ancestry (parent, child) VALUES (?, ?)",
		hash.RevisionId{Hash: hash.FileIdOf([]byte("nonexistent")).Hash}.String(), rootId.String())
	require.NoError(t, err)

	report, err := g.CheckDatabase()
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.NotEmpty(t, report.Ancestry)
}

func TestCheckDatabaseFlagsMissingHeight(t *testing.T) {
	g, content := newTestGraph(t)
	rootId := buildRootRevision(t, g, content, "hello world\n")

	_, err := g.db.Exec("DELETE FROM heights WHERE revision = ?", rootId.String())
	require.NoError(t, err)

	report, err := g.CheckDatabase()
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.NotEmpty(t, report.Heights)
}

func TestCheckDatabaseFlagsUnresolvableCertKey(t *testing.T) {
	g, content := newTestGraph(t)
	rootId := buildRootRevision(t, g, content, "hello world\n")

	bogusKey := hash.KeyId{Hash: hash.FileIdOf([]byte("nobody")).Hash}
	err := store.PersistCert(g.db, &certs.Cert{
		Ident: rootId,
		Name:  BranchCertName,
		Value: certs.CertValue("trunk"),
		Key:   bogusKey,
	})
	require.NoError(t, err)

	report, err := g.CheckDatabase()
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.NotEmpty(t, report.Certs)
}
