package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/roster"
)

func TestRosterStoreWriteoutAndGet(t *testing.T) {
	db := mustOpenMemDB(t)
	rs := NewRosterStore(db, testLogger(), DefaultConfig())

	ids := hash.NewNodeIdSource(0)
	r := roster.New(ids)
	rev := hash.RevisionIdOf([]byte("r0"))
	mm := roster.NewMarkingMap()
	mm.PutBirth(r.Root(), false, rev)

	rs.PutDirty(rev, r, mm)
	require.NoError(t, rs.Flush())

	rs2 := NewRosterStore(db, testLogger(), DefaultConfig())
	gotR, gotM, err := rs2.Get(rev)
	require.NoError(t, err)
	assert.Equal(t, r.Root(), gotR.Root())
	mk, err := gotM.Get(gotR.Root())
	require.NoError(t, err)
	assert.True(t, mk.ParentName.Has(rev))
}

func TestRosterStoreDiscardDropsDirtyEntry(t *testing.T) {
	db := mustOpenMemDB(t)
	rs := NewRosterStore(db, testLogger(), DefaultConfig())

	ids := hash.NewNodeIdSource(0)
	r := roster.New(ids)
	rev := hash.RevisionIdOf([]byte("r1"))
	mm := roster.NewMarkingMap()
	mm.PutBirth(r.Root(), false, rev)

	rs.PutDirty(rev, r, mm)
	rs.Discard()

	ok, err := rs.Exists(rev)
	require.NoError(t, err)
	assert.False(t, ok)
}
