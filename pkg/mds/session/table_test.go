package session

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
	"github.com/marmos91/dittomds/pkg/mds/lease"
)

// ============================================================================
// Test doubles
// ============================================================================

type fakeLeases map[block.FileID]block.HolderID

func (f fakeLeases) Get(id block.FileID) (lease.Lease, bool) {
	h, ok := f[id]
	return lease.Lease{Holder: h, FileID: id}, ok
}

type fakeBindings map[block.FileID]uint64

func (f fakeBindings) BindingEpoch(id block.FileID) (uint64, bool) {
	e, ok := f[id]
	return e, ok
}

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestTable() (*Table, *lease.ManualClock) {
	clock := lease.NewManualClock(start)
	return NewTable(block.NewAllocator(), clock), clock
}

// ============================================================================
// Open / Sync
// ============================================================================

func TestOpen_AllocatesUnderConstructionBlock(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	s, err := tbl.Open(1, 0)
	require.NoError(t, err)
	assert.Equal(t, block.UnderConstruction, s.State)
	assert.Equal(t, block.InitialGenStamp, s.Last.GenStamp)
	assert.Zero(t, s.Last.Length)

	fileID, ok := tbl.FileOf(s.Last.ID)
	assert.True(t, ok)
	assert.Equal(t, block.FileID(1), fileID)
}

func TestOpen_InProgressRejected(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	_, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.Open(1, 0)
	assert.True(t, errors.Is(err, mdserrors.ErrAlreadyLeased))
}

func TestOpen_CompleteFileAppends(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	first, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.RecordSync(1, 100)
	require.NoError(t, err)
	_, err = tbl.Finalize(1, block.Identity{ID: first.Last.ID, GenStamp: first.Last.GenStamp + 1, Length: 100})
	require.NoError(t, err)

	s, err := tbl.Open(1, 3)
	require.NoError(t, err)
	require.Len(t, s.Blocks, 1)
	assert.Equal(t, first.Last.ID, s.Blocks[0].ID)
	assert.NotEqual(t, first.Last.ID, s.Last.ID)
	assert.Equal(t, uint64(3), s.BindingEpoch)
	assert.Equal(t, int64(100), s.Length())
}

func TestRecordSync(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	_, err := tbl.RecordSync(1, 10)
	assert.True(t, errors.Is(err, mdserrors.ErrNoActiveSession))

	_, err = tbl.Open(1, 0)
	require.NoError(t, err)

	s, err := tbl.RecordSync(1, 64*1024)
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), s.Last.Length)

	_, err = tbl.RecordSync(1, 10)
	assert.True(t, errors.Is(err, mdserrors.ErrInvalidArgument))
}

func TestRecordSync_RejectedWhileRecovering(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	_, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.BeginRecovery(1)
	require.NoError(t, err)

	_, err = tbl.RecordSync(1, 10)
	assert.True(t, errors.Is(err, mdserrors.ErrNoActiveSession))

	tbl.EndRecovery(1)
	_, err = tbl.RecordSync(1, 10)
	assert.NoError(t, err)
}

func TestAddBlock(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	first, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.RecordSync(1, 128)
	require.NoError(t, err)

	s, err := tbl.AddBlock(1)
	require.NoError(t, err)
	require.Len(t, s.Blocks, 1)
	assert.Equal(t, int64(128), s.Blocks[0].Length)
	assert.Equal(t, first.Last.ID+1, s.Last.ID)
	assert.Equal(t, block.UnderConstruction, s.State)
}

// ============================================================================
// Close
// ============================================================================

func TestAttemptClose_Success(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	_, err := tbl.Open(1, 4)
	require.NoError(t, err)

	s, err := tbl.AttemptClose("client-1", 1, fakeLeases{1: "client-1"}, fakeBindings{1: 4})
	require.NoError(t, err)
	assert.Equal(t, block.Committed, s.State)
	assert.False(t, s.Orphaned)
}

func TestAttemptClose_Conflicts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		leases   fakeLeases
		bindings fakeBindings
		recover  bool
	}{
		{name: "Renamed", leases: fakeLeases{1: "client-1"}, bindings: fakeBindings{1: 1}},
		{name: "Deleted", leases: fakeLeases{1: "client-1"}, bindings: fakeBindings{}},
		{name: "LeaseLost", leases: fakeLeases{}, bindings: fakeBindings{1: 0}},
		{name: "OtherHolder", leases: fakeLeases{1: "client-2"}, bindings: fakeBindings{1: 0}},
		{name: "Recovering", leases: fakeLeases{1: "client-1"}, bindings: fakeBindings{1: 0}, recover: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tbl, clock := newTestTable()

			opened, err := tbl.Open(1, 0)
			require.NoError(t, err)
			_, err = tbl.RecordSync(1, 64)
			require.NoError(t, err)
			if tc.recover {
				_, err = tbl.BeginRecovery(1)
				require.NoError(t, err)
			}

			s, err := tbl.AttemptClose("client-1", 1, tc.leases, tc.bindings)
			require.Error(t, err)
			assert.True(t, errors.Is(err, mdserrors.ErrCloseConflict))
			assert.Equal(t, block.UnderConstruction, s.State)
			assert.True(t, s.Orphaned)
			assert.Equal(t, clock.Now(), s.OrphanedAt)
			assert.Equal(t, opened.Last.ID, s.Last.ID)
			assert.Equal(t, int64(64), s.Last.Length)
		})
	}
}

func TestAttemptClose_OrphanTimeIsFirstConflict(t *testing.T) {
	t.Parallel()
	tbl, clock := newTestTable()

	_, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.AttemptClose("client-1", 1, fakeLeases{1: "client-1"}, fakeBindings{1: 1})
	require.Error(t, err)

	clock.Advance(time.Minute)
	s, err := tbl.AttemptClose("client-1", 1, fakeLeases{1: "client-1"}, fakeBindings{1: 1})
	require.Error(t, err)
	assert.Equal(t, start, s.OrphanedAt)
}

func TestAttemptClose_AlreadyCommitted(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	_, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.AttemptClose("client-1", 1, fakeLeases{1: "client-1"}, fakeBindings{1: 0})
	require.NoError(t, err)

	s, err := tbl.AttemptClose("client-1", 1, fakeLeases{}, fakeBindings{1: 0})
	assert.True(t, errors.Is(err, mdserrors.ErrNoActiveSession))
	assert.False(t, s.Orphaned)
}

// ============================================================================
// Complete / Finalize
// ============================================================================

func TestComplete_RequiresMatchingFinalizedReplica(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	s, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.RecordSync(1, 64)
	require.NoError(t, err)

	last := s.Last
	last.Length = 64

	assert.False(t, tbl.Complete(1, last), "UNDER_CONSTRUCTION sessions do not complete from reports")

	_, err = tbl.AttemptClose("client-1", 1, fakeLeases{1: "client-1"}, fakeBindings{1: 0})
	require.NoError(t, err)

	short := last
	short.Length = 10
	assert.False(t, tbl.Complete(1, short))
	assert.True(t, tbl.Complete(1, last))

	got, _ := tbl.Get(1)
	assert.Equal(t, block.Complete, got.State)
}

func TestFinalize(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	s, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.AttemptClose("client-1", 1, fakeLeases{1: "client-1"}, fakeBindings{1: 1})
	require.Error(t, err)

	agreed := block.Identity{ID: s.Last.ID, GenStamp: s.Last.GenStamp + 1, Length: 42}
	got, err := tbl.Finalize(1, agreed)
	require.NoError(t, err)
	assert.Equal(t, block.Complete, got.State)
	assert.Equal(t, agreed, got.Last)
	assert.False(t, got.Orphaned)

	t.Run("SameIdentityIsNoop", func(t *testing.T) {
		again, err := tbl.Finalize(1, agreed)
		require.NoError(t, err)
		assert.Equal(t, agreed, again.Last)
	})

	t.Run("DifferentIdentityMismatch", func(t *testing.T) {
		other := agreed
		other.Length = 41
		_, err := tbl.Finalize(1, other)
		assert.True(t, errors.Is(err, mdserrors.ErrRecoveryMismatch))
	})
}

func TestFinalize_WrongBlockOrStaleStamp(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	s, err := tbl.Open(1, 0)
	require.NoError(t, err)

	_, err = tbl.Finalize(1, block.Identity{ID: s.Last.ID + 100, GenStamp: s.Last.GenStamp})
	assert.True(t, errors.Is(err, mdserrors.ErrRecoveryMismatch))

	_, err = tbl.Finalize(1, block.Identity{ID: s.Last.ID, GenStamp: s.Last.GenStamp - 1})
	assert.True(t, errors.Is(err, mdserrors.ErrStaleGenStamp))

	_, err = tbl.Finalize(2, block.Identity{})
	assert.True(t, errors.Is(err, mdserrors.ErrNotFound))
}

func TestBeginRecovery_CompleteRejected(t *testing.T) {
	t.Parallel()
	tbl, _ := newTestTable()

	s, err := tbl.Open(1, 0)
	require.NoError(t, err)
	_, err = tbl.Finalize(1, s.Last)
	require.NoError(t, err)

	_, err = tbl.BeginRecovery(1)
	assert.True(t, errors.Is(err, mdserrors.ErrNoActiveSession))
}

// ============================================================================
// Orphan sweep
// ============================================================================

func TestOrphaned_HonorsGrace(t *testing.T) {
	t.Parallel()
	tbl, clock := newTestTable()

	for id := block.FileID(1); id <= 2; id++ {
		_, err := tbl.Open(id, 0)
		require.NoError(t, err)
	}
	_, err := tbl.AttemptClose("client-1", 1, fakeLeases{1: "client-1"}, fakeBindings{1: 9})
	require.Error(t, err)

	assert.Empty(t, slices.Collect(tbl.Orphaned(clock.Now(), time.Second)))

	clock.Advance(time.Second)
	assert.Equal(t, []block.FileID{1}, slices.Collect(tbl.Orphaned(clock.Now(), time.Second)))

	_, err = tbl.BeginRecovery(1)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(tbl.Orphaned(clock.Now(), time.Second)))
}
