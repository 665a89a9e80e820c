package txn

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/store"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestKernel(t *testing.T, cfg store.Config) (*Kernel, *store.ContentStore) {
	t.Helper()
	db, err := store.Open("file:"+t.Name()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	content := store.NewContentStore(db, testLogger(), cfg)
	rosters := store.NewRosterStore(db, testLogger(), cfg)
	k := New(db, testLogger(), content, rosters, cfg)
	t.Cleanup(k.Close)
	return k, content
}

func TestCommitFlushesDelayedWrites(t *testing.T) {
	k, content := newTestKernel(t, store.DefaultConfig())

	require.NoError(t, k.Begin(false))
	data := []byte("hello\n")
	id := hash.FileIdOf(data)
	require.NoError(t, content.DelayPut(id, data))

	exists, err := content.Exists(id)
	require.NoError(t, err)
	assert.False(t, exists, "delayed write must not be visible before commit")

	require.NoError(t, k.Commit())

	exists, err = content.Exists(id)
	require.NoError(t, err)
	assert.True(t, exists, "commit must flush delayed writes")
}

func TestRollbackDiscardsDelayedWrites(t *testing.T) {
	k, content := newTestKernel(t, store.DefaultConfig())

	require.NoError(t, k.Begin(false))
	data := []byte("world\n")
	id := hash.FileIdOf(data)
	require.NoError(t, content.DelayPut(id, data))
	require.NoError(t, k.Rollback())

	exists, err := content.Exists(id)
	require.NoError(t, err)
	assert.False(t, exists, "rollback must discard delayed writes")
}

func TestNestedTransactionsOnlyOutermostCommits(t *testing.T) {
	k, content := newTestKernel(t, store.DefaultConfig())

	require.NoError(t, k.Begin(false))
	require.NoError(t, k.Begin(false))
	assert.Equal(t, 2, k.Depth())

	data := []byte("nested\n")
	id := hash.FileIdOf(data)
	require.NoError(t, content.DelayPut(id, data))

	require.NoError(t, k.Commit())
	assert.Equal(t, 1, k.Depth())
	exists, err := content.Exists(id)
	require.NoError(t, err)
	assert.False(t, exists, "inner commit must not flush or persist")

	require.NoError(t, k.Commit())
	assert.Equal(t, 0, k.Depth())
	exists, err = content.Exists(id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRollbackUnwindsWholeNest(t *testing.T) {
	k, _ := newTestKernel(t, store.DefaultConfig())

	require.NoError(t, k.Begin(false))
	require.NoError(t, k.Begin(true))
	assert.Equal(t, 2, k.Depth())

	require.NoError(t, k.Rollback())
	assert.Equal(t, 0, k.Depth())
}

func TestRunCommitsOnSuccessAndRollsBackOnError(t *testing.T) {
	k, content := newTestKernel(t, store.DefaultConfig())

	data := []byte("run-ok\n")
	id := hash.FileIdOf(data)
	err := k.Run(context.Background(), false, func(ctx context.Context) error {
		return content.DelayPut(id, data)
	})
	require.NoError(t, err)
	exists, err := content.Exists(id)
	require.NoError(t, err)
	assert.True(t, exists)

	failData := []byte("run-fail\n")
	failId := hash.FileIdOf(failData)
	err = k.Run(context.Background(), false, func(ctx context.Context) error {
		require.NoError(t, content.DelayPut(failId, failData))
		return assert.AnError
	})
	require.Error(t, err)
	exists, err = content.Exists(failId)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunRollsBackOnCancelledContext(t *testing.T) {
	k, content := newTestKernel(t, store.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := []byte("cancelled\n")
	id := hash.FileIdOf(data)
	err := k.Run(ctx, false, func(ctx context.Context) error {
		return content.DelayPut(id, data)
	})
	require.Error(t, err)
	assert.Equal(t, 0, k.Depth())
}

func TestRecordOpTriggersCheckpoint(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.ChecksCallsBeforeCheckpoint = 2
	k, content := newTestKernel(t, cfg)

	require.NoError(t, k.Begin(false))

	d1 := []byte("op1\n")
	id1 := hash.FileIdOf(d1)
	require.NoError(t, content.DelayPut(id1, d1))
	require.NoError(t, k.RecordOp(uint64(len(d1))))
	exists, err := content.Exists(id1)
	require.NoError(t, err)
	assert.False(t, exists, "first op alone must not trigger a checkpoint")

	d2 := []byte("op2\n")
	id2 := hash.FileIdOf(d2)
	require.NoError(t, content.DelayPut(id2, d2))
	require.NoError(t, k.RecordOp(uint64(len(d2))))

	exists, err = content.Exists(id1)
	require.NoError(t, err)
	assert.True(t, exists, "checkpoint must flush writes buffered before it fires")
	exists, err = content.Exists(id2)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, 1, k.Depth(), "checkpoint must reopen at the same nesting depth")
	require.NoError(t, k.Commit())
	assert.Equal(t, 0, k.Depth())
}

func TestRecordOpIgnoredWhenNested(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.ChecksCallsBeforeCheckpoint = 1
	k, _ := newTestKernel(t, cfg)

	require.NoError(t, k.Begin(false))
	require.NoError(t, k.Begin(false))
	require.NoError(t, k.RecordOp(1))
	assert.Equal(t, 2, k.Depth(), "checkpointing only applies at the outermost level")

	require.NoError(t, k.Commit())
	require.NoError(t, k.Commit())
}
