package badger_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittomds/pkg/datanode/store"
	"github.com/marmos91/dittomds/pkg/datanode/store/badger"
	"github.com/marmos91/dittomds/pkg/datanode/store/storetest"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.ReplicaStore {
		s, err := badger.Open(filepath.Join(t.TempDir(), "replicas"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenKeepsReplicas(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "replicas")

	s, err := badger.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.PutReplica(t.Context(), &store.Replica{
		Block:       block.Identity{ID: 7, GenStamp: 1001, Length: 512},
		State:       block.ReplicaFinalized,
		BytesOnDisk: 512,
	}))
	require.NoError(t, s.Close())

	s, err = badger.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	r, err := s.GetReplica(t.Context(), 7)
	require.NoError(t, err)
	require.Equal(t, block.ReplicaFinalized, r.State)
	require.Equal(t, block.GenStamp(1001), r.Block.GenStamp)
}
