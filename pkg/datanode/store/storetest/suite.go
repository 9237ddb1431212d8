// Package storetest provides a conformance suite that every
// store.ReplicaStore implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittomds/pkg/datanode/store"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
)

// StoreFactory creates a fresh store for each test. It may use t.TempDir()
// and t.Cleanup().
type StoreFactory func(t *testing.T) store.ReplicaStore

// RunConformanceSuite runs the full suite against factory.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory(t)) })
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, factory(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("ListOrdered", func(t *testing.T) { testListOrdered(t, factory(t)) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceledContext(t, factory(t)) })
	t.Run("NoAliasing", func(t *testing.T) { testNoAliasing(t, factory(t)) })
}

func replica(id block.ID, length int64, state block.ReplicaState) *store.Replica {
	return &store.Replica{
		Block:       block.Identity{ID: id, GenStamp: block.InitialGenStamp, Length: length},
		State:       state,
		BytesOnDisk: length,
		Updated:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testGetMissing(t *testing.T, s store.ReplicaStore) {
	_, err := s.GetReplica(t.Context(), 42)
	assert.True(t, mdserrors.IsNotFound(err), "got %v", err)
}

func testPutGet(t *testing.T, s store.ReplicaStore) {
	ctx := t.Context()
	want := replica(1, 65536, block.ReplicaBeingWritten)
	require.NoError(t, s.PutReplica(ctx, want))

	got, err := s.GetReplica(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, want.Block, got.Block)
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.BytesOnDisk, got.BytesOnDisk)
	assert.True(t, want.Updated.Equal(got.Updated))
}

func testOverwrite(t *testing.T, s store.ReplicaStore) {
	ctx := t.Context()
	require.NoError(t, s.PutReplica(ctx, replica(1, 10, block.ReplicaBeingWritten)))

	next := replica(1, 8, block.ReplicaFinalized)
	next.Block.GenStamp++
	require.NoError(t, s.PutReplica(ctx, next))

	got, err := s.GetReplica(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, next.Block, got.Block)
	assert.Equal(t, block.ReplicaFinalized, got.State)
}

func testDelete(t *testing.T, s store.ReplicaStore) {
	ctx := t.Context()
	require.NoError(t, s.PutReplica(ctx, replica(1, 10, block.ReplicaBeingWritten)))
	require.NoError(t, s.DeleteReplica(ctx, 1))
	require.NoError(t, s.DeleteReplica(ctx, 1), "deleting twice")

	_, err := s.GetReplica(ctx, 1)
	assert.True(t, mdserrors.IsNotFound(err))
}

func testListOrdered(t *testing.T, s store.ReplicaStore) {
	ctx := t.Context()
	for _, id := range []block.ID{300, 2, 1 << 40, 17} {
		require.NoError(t, s.PutReplica(ctx, replica(id, 1, block.ReplicaBeingWritten)))
	}

	list, err := s.ListReplicas(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)

	var ids []block.ID
	for _, r := range list {
		ids = append(ids, r.Block.ID)
	}
	assert.Equal(t, []block.ID{2, 17, 300, 1 << 40}, ids)
}

func testCanceledContext(t *testing.T, s store.ReplicaStore) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.ErrorIs(t, s.PutReplica(ctx, replica(1, 1, block.ReplicaBeingWritten)), context.Canceled)
	_, err := s.GetReplica(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.ListReplicas(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func testNoAliasing(t *testing.T, s store.ReplicaStore) {
	ctx := t.Context()
	r := replica(1, 10, block.ReplicaBeingWritten)
	require.NoError(t, s.PutReplica(ctx, r))
	r.BytesOnDisk = 99

	got, err := s.GetReplica(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.BytesOnDisk)

	got.BytesOnDisk = 77
	again, err := s.GetReplica(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.BytesOnDisk)
}
