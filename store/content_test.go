package store

import (
	"database/sql"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/core/hash"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func mustOpenMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open("file:"+t.Name()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestContentStorePutFullAndGet(t *testing.T) {
	db := mustOpenMemDB(t)
	cs := NewContentStore(db, testLogger(), DefaultConfig())

	data := []byte("package main\n")
	id := hash.FileIdOf(data)
	require.NoError(t, cs.PutFull(id, data))

	ok, err := cs.Exists(id)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := cs.Get(id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// idempotent
	require.NoError(t, cs.PutFull(id, data))
}

func TestContentStorePutFileVersionReverseChain(t *testing.T) {
	db := mustOpenMemDB(t)
	cfg := DefaultConfig()
	cfg.DeltaDirection = DeltaReverse
	cs := NewContentStore(db, testLogger(), cfg)

	v1 := []byte("line one\nline two\n")
	v2 := []byte("line one\nline TWO\nline three\n")
	id1 := hash.FileIdOf(v1)
	id2 := hash.FileIdOf(v2)

	require.NoError(t, cs.PutFull(id1, v1))
	require.NoError(t, cs.PutFileVersion(id1, id2, v1, v2))

	// fresh store (no caches warm) must still reconstruct both ends.
	cs2 := NewContentStore(db, testLogger(), cfg)
	got2, err := cs2.Get(id2)
	require.NoError(t, err)
	assert.Equal(t, v2, got2)

	got1, err := cs2.Get(id1)
	require.NoError(t, err)
	assert.Equal(t, v1, got1)
}

func TestContentStoreDeltaDirectionIsDatabaseWide(t *testing.T) {
	db := mustOpenMemDB(t)

	cfg := DefaultConfig()
	cfg.DeltaDirection = DeltaForward
	cs := NewContentStore(db, testLogger(), cfg)
	assert.Equal(t, DeltaForward, cs.cfg.DeltaDirection)

	stamped, err := ReadDeltaDirection(db)
	require.NoError(t, err)
	assert.Equal(t, DeltaForward, stamped)

	// A second process opening the same database with a different YAML
	// config must still agree on the persisted direction, not its own.
	otherCfg := DefaultConfig()
	otherCfg.DeltaDirection = DeltaBoth
	cs2 := NewContentStore(db, testLogger(), otherCfg)
	assert.Equal(t, DeltaForward, cs2.cfg.DeltaDirection)
}

func TestContentStoreCheckAllDetectsCorruption(t *testing.T) {
	db := mustOpenMemDB(t)
	cs := NewContentStore(db, testLogger(), DefaultConfig())
	data := []byte("stable content")
	id := hash.FileIdOf(data)
	require.NoError(t, cs.PutFull(id, data))

	result, err := cs.CheckAll()
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, 1, result.Checked)

	_, err = db.Exec("UPDATE files SET data = ? WHERE id = ?", []byte("tampered"), id.String())
	require.NoError(t, err)

	result2, err := cs.CheckAll()
	require.NoError(t, err)
	assert.False(t, result2.OK())
}
