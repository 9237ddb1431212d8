package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
	"github.com/marmos91/dittomds/pkg/mds/lease"
	"github.com/marmos91/dittomds/pkg/mds/replica"
	"github.com/marmos91/dittomds/pkg/mds/session"
)

// ============================================================================
// Test doubles
// ============================================================================

// metricValue reads a single counter or gauge.
func metricValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

type fakeNode struct {
	id        block.NodeID
	reportErr error
	commitErr error
	gate      chan struct{}

	reports atomic.Int32

	mu      sync.Mutex
	replica block.Identity
	commits []block.Identity
}

func newNode(id string, length int64) *fakeNode {
	return &fakeNode{id: block.NodeID(id), replica: block.Identity{Length: length}}
}

func (n *fakeNode) ID() block.NodeID { return n.id }

func (n *fakeNode) ReportReplica(ctx context.Context, id block.ID) (block.Report, error) {
	n.reports.Add(1)
	if n.gate != nil {
		select {
		case <-n.gate:
		case <-ctx.Done():
			return block.Report{}, ctx.Err()
		}
	}
	if n.reportErr != nil {
		return block.Report{}, n.reportErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return block.Report{Node: n.id, Block: n.replica, State: block.ReplicaBeingWritten}, nil
}

func (n *fakeNode) CommitReplica(ctx context.Context, id block.ID, length int64, gs block.GenStamp, finalize bool) (block.Report, error) {
	if n.commitErr != nil {
		return block.Report{}, n.commitErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replica = block.Identity{ID: id, GenStamp: gs, Length: length}
	n.commits = append(n.commits, n.replica)
	return block.Report{Node: n.id, Block: n.replica, State: block.ReplicaFinalized}, nil
}

type bindings struct {
	epoch uint64
	bound bool
}

func (b bindings) BindingEpoch(block.FileID) (uint64, bool) { return b.epoch, b.bound }

const holder block.HolderID = "client-1"

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	clock    *lease.ManualClock
	alloc    *block.Allocator
	leases   *lease.Registry
	sessions *session.Table
	tracker  *replica.Tracker
	coord    *Coordinator
}

func testRecoveryConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      16,
		MaxAttempts:    3,
		BackoffInitial: time.Second,
		BackoffMax:     5 * time.Second,
	}
}

func newFixture(t *testing.T, cfg Config, metrics *Metrics) *fixture {
	t.Helper()
	clock := lease.NewManualClock(t0)
	alloc := block.NewAllocator()
	f := &fixture{
		clock:    clock,
		alloc:    alloc,
		leases:   lease.NewRegistry(lease.Config{SoftLimit: time.Minute, HardLimit: time.Hour, SweepInterval: time.Second, Shards: 4}, lease.WithClock(clock)),
		sessions: session.NewTable(alloc, clock),
		tracker:  replica.NewTracker(replica.Config{ReportTimeout: 200 * time.Millisecond, CommitTimeout: 200 * time.Millisecond, Concurrency: 4}, nil),
	}
	f.coord = NewCoordinator(cfg, Dependencies{
		Sessions:  f.sessions,
		Leases:    f.leases,
		Tracker:   f.tracker,
		Allocator: alloc,
	}, clock, metrics)
	return f
}

// openFile leases and opens fileID, syncs length bytes and places the last
// block on nodes. Nodes without an explicit generation stamp get the block's.
func (f *fixture) openFile(t *testing.T, fileID block.FileID, length int64, nodes ...*fakeNode) session.Session {
	t.Helper()
	_, err := f.leases.Acquire(holder, fileID)
	require.NoError(t, err)
	s, err := f.sessions.Open(fileID, 0)
	require.NoError(t, err)
	s, err = f.sessions.RecordSync(fileID, length)
	require.NoError(t, err)

	ids := make([]block.NodeID, len(nodes))
	for i, n := range nodes {
		n.replica.ID = s.Last.ID
		if n.replica.GenStamp == 0 {
			n.replica.GenStamp = s.Last.GenStamp
		}
		f.tracker.Register(n)
		ids[i] = n.id
	}
	f.tracker.Expect(s.Last, ids)
	return s
}

// ============================================================================
// Agreement
// ============================================================================

func TestAgree(t *testing.T) {
	t.Parallel()
	last := block.Identity{ID: 7, GenStamp: 1000, Length: 128}

	tests := []struct {
		name    string
		reports []block.Report
		want    block.Identity
	}{
		{
			name:    "single replica",
			reports: []block.Report{{Block: block.Identity{ID: 7, GenStamp: 1000, Length: 64}}},
			want:    block.Identity{ID: 7, GenStamp: 1001, Length: 64},
		},
		{
			name: "minimum length wins",
			reports: []block.Report{
				{Block: block.Identity{ID: 7, GenStamp: 1000, Length: 100}},
				{Block: block.Identity{ID: 7, GenStamp: 1000, Length: 80}},
				{Block: block.Identity{ID: 7, GenStamp: 1000, Length: 90}},
			},
			want: block.Identity{ID: 7, GenStamp: 1001, Length: 80},
		},
		{
			name: "stamp exceeds a previous partial recovery",
			reports: []block.Report{
				{Block: block.Identity{ID: 7, GenStamp: 1004, Length: 50}},
				{Block: block.Identity{ID: 7, GenStamp: 1000, Length: 60}},
			},
			want: block.Identity{ID: 7, GenStamp: 1005, Length: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Agree(last, tt.reports))
		})
	}
}

func TestViable_DropsStaleAndForeignReplicas(t *testing.T) {
	t.Parallel()
	last := block.Identity{ID: 7, GenStamp: 1000}

	got := Viable(last, []block.Report{
		{Node: "a", Block: block.Identity{ID: 7, GenStamp: 999, Length: 10}},
		{Node: "b", Block: block.Identity{ID: 8, GenStamp: 1000, Length: 10}},
		{Node: "c", Block: block.Identity{ID: 7, GenStamp: 1000, Length: 10}},
		{Node: "d", Block: block.Identity{ID: 7, GenStamp: 1002, Length: 10}},
	})
	require.Len(t, got, 2)
	assert.Equal(t, block.NodeID("c"), got[0].Node)
	assert.Equal(t, block.NodeID("d"), got[1].Node)
}

// ============================================================================
// Recover
// ============================================================================

func TestRecover_FinalizesWithMinimumLength(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	f := newFixture(t, testRecoveryConfig(), metrics)

	n0, n1, n2 := newNode("dn-0", 100), newNode("dn-1", 80), newNode("dn-2", 90)
	s := f.openFile(t, 1, 100, n0, n1, n2)
	n1.replica.GenStamp = s.Last.GenStamp + 2

	res, err := f.coord.Recover(context.Background(), 1, TriggerAdmin)
	require.NoError(t, err)
	assert.Equal(t, Finalized, res.State)
	assert.Equal(t, 3, res.Reports)
	assert.Equal(t, block.Identity{ID: s.Last.ID, GenStamp: s.Last.GenStamp + 3, Length: 80}, res.Agreed)
	assert.Equal(t, []block.NodeID{"dn-0", "dn-1", "dn-2"}, res.Replicas)

	got, ok := f.sessions.Get(1)
	require.True(t, ok)
	assert.Equal(t, block.Complete, got.State)
	assert.Equal(t, res.Agreed, got.Last)
	assert.False(t, got.Recovering)

	_, held := f.leases.Get(1)
	assert.False(t, held, "lease is released after recovery")

	for _, n := range []*fakeNode{n0, n1, n2} {
		require.Len(t, n.commits, 1)
		assert.Equal(t, res.Agreed, n.commits[0])
	}

	assert.Greater(t, f.alloc.NewBlock().GenStamp, res.Agreed.GenStamp, "allocator never reuses an agreed stamp")
	assert.Equal(t, float64(1), metricValue(t, metrics.attempts.WithLabelValues(string(TriggerAdmin), Finalized.String())))
	assert.Zero(t, metricValue(t, metrics.inflight))
}

func TestRecover_SilentNodesDoNotVote(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)

	short := newNode("dn-0", 10)
	short.reportErr = errors.New("unreachable")
	s := f.openFile(t, 1, 64, short, newNode("dn-1", 64))

	res, err := f.coord.Recover(context.Background(), 1, TriggerHardExpiry)
	require.NoError(t, err)
	assert.Equal(t, int64(64), res.Agreed.Length)
	assert.Equal(t, s.Last.GenStamp+1, res.Agreed.GenStamp)
	assert.Equal(t, []block.NodeID{"dn-1"}, res.Replicas)
	assert.Equal(t, []block.NodeID{"dn-1"}, f.tracker.Candidates(s.Last.ID))
	assert.Empty(t, short.commits)
}

func TestRecover_IgnoresStaleReplicas(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)

	stale := newNode("dn-0", 5)
	stale.replica.GenStamp = 1
	f.openFile(t, 1, 64, stale, newNode("dn-1", 64))

	res, err := f.coord.Recover(context.Background(), 1, TriggerAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reports)
	assert.Equal(t, int64(64), res.Agreed.Length)
}

func TestRecover_NoViableReplica(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)

	gone := newNode("dn-0", 64)
	gone.reportErr = errors.New("disk failed")
	f.openFile(t, 1, 64, gone)

	res, err := f.coord.Recover(context.Background(), 1, TriggerAdmin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mdserrors.ErrNoViableReplica))
	assert.Equal(t, Failed, res.State)

	s, ok := f.sessions.Get(1)
	require.True(t, ok)
	assert.Equal(t, block.UnderConstruction, s.State, "not finalized with empty data")
	assert.False(t, s.Recovering)

	l, held := f.leases.Get(1)
	require.True(t, held)
	assert.Equal(t, holder, l.Holder)

	st, ok := f.coord.Status(1)
	require.True(t, ok)
	assert.Equal(t, 1, st.Failures)
	assert.False(t, st.InFlight)
	assert.Equal(t, "NoViableReplica: no replica reported block 1 (file: 1)", st.Last.Error)
}

func TestRecover_AllCommitsFail(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)

	n := newNode("dn-0", 64)
	n.commitErr = errors.New("read-only")
	f.openFile(t, 1, 64, n)

	res, err := f.coord.Recover(context.Background(), 1, TriggerAdmin)
	assert.True(t, errors.Is(err, mdserrors.ErrRecoveryFailed))
	assert.Equal(t, Failed, res.State)

	s, _ := f.sessions.Get(1)
	assert.Equal(t, block.UnderConstruction, s.State)
	_, held := f.leases.Get(1)
	assert.True(t, held)
}

func TestRecover_PartialCommitSucceeds(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)

	bad := newNode("dn-1", 64)
	bad.commitErr = errors.New("refused")
	s := f.openFile(t, 1, 64, newNode("dn-0", 64), bad)

	res, err := f.coord.Recover(context.Background(), 1, TriggerAdmin)
	require.NoError(t, err)
	assert.Equal(t, []block.NodeID{"dn-0"}, res.Replicas)
	assert.Equal(t, []block.NodeID{"dn-0"}, f.tracker.Candidates(s.Last.ID))
}

func TestRecover_AlreadyComplete(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)

	n := newNode("dn-0", 64)
	f.openFile(t, 1, 64, n)

	first, err := f.coord.Recover(context.Background(), 1, TriggerAdmin)
	require.NoError(t, err)

	second, err := f.coord.Recover(context.Background(), 1, TriggerHardExpiry)
	require.NoError(t, err)
	assert.Equal(t, Finalized, second.State)
	assert.Equal(t, first.Agreed, second.Agreed)
	assert.Equal(t, int32(1), n.reports.Load(), "no second protocol run")
}

func TestRecover_UnknownFile(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)

	_, err := f.leases.Acquire(holder, 9)
	require.NoError(t, err)

	_, err = f.coord.Recover(context.Background(), 9, TriggerHardExpiry)
	assert.True(t, mdserrors.IsNotFound(err))

	_, held := f.leases.Get(9)
	assert.False(t, held, "a lease without a session is dropped")
}

func TestRecover_SecondTriggerAttaches(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)
	f.tracker = replica.NewTracker(replica.Config{ReportTimeout: 5 * time.Second, CommitTimeout: time.Second, Concurrency: 2}, nil)
	f.coord.Tracker = f.tracker

	n := newNode("dn-0", 64)
	n.gate = make(chan struct{})
	f.openFile(t, 1, 64, n)

	type outcome struct {
		res Result
		err error
	}
	results := make(chan outcome, 2)
	run := func(trigger Trigger) {
		res, err := f.coord.Recover(context.Background(), 1, trigger)
		results <- outcome{res, err}
	}

	go run(TriggerAdmin)
	require.Eventually(t, func() bool { return n.reports.Load() == 1 }, time.Second, time.Millisecond)

	st, ok := f.coord.Status(1)
	require.True(t, ok)
	assert.True(t, st.InFlight)
	assert.False(t, f.coord.Due(1, f.clock.Now()))

	go run(TriggerHardExpiry)

	// Close from the old writer must not race the attempt.
	_, err := f.sessions.AttemptClose(holder, 1, f.leases, bindings{bound: true})
	assert.True(t, errors.Is(err, mdserrors.ErrCloseConflict))

	close(n.gate)
	a, b := <-results, <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, a.res.Agreed, b.res.Agreed)
	assert.Equal(t, Finalized, a.res.State)
	assert.Equal(t, Finalized, b.res.State)
	assert.Equal(t, int32(1), n.reports.Load(), "only one protocol run")
}

func TestRecover_WaiterCanGiveUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)
	f.tracker = replica.NewTracker(replica.Config{ReportTimeout: 5 * time.Second, CommitTimeout: time.Second, Concurrency: 2}, nil)
	f.coord.Tracker = f.tracker

	n := newNode("dn-0", 64)
	n.gate = make(chan struct{})
	f.openFile(t, 1, 64, n)

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Recover(context.Background(), 1, TriggerAdmin)
		done <- err
	}()
	require.Eventually(t, func() bool { return n.reports.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.coord.Recover(ctx, 1, TriggerAdmin)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(n.gate)
	require.NoError(t, <-done)
}

// ============================================================================
// Retry bookkeeping
// ============================================================================

func TestRecover_BackoffAndUnrecoverable(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	cfg := testRecoveryConfig()
	cfg.MaxAttempts = 2
	f := newFixture(t, cfg, metrics)
	f.openFile(t, 1, 64)

	_, err := f.coord.Recover(context.Background(), 1, TriggerHardExpiry)
	require.Error(t, err)

	now := f.clock.Now()
	assert.False(t, f.coord.Due(1, now), "backing off")
	st, _ := f.coord.Status(1)
	assert.True(t, st.NextAttempt.After(now))
	assert.False(t, st.Unrecoverable)

	f.clock.Advance(10 * time.Second)
	assert.True(t, f.coord.Due(1, f.clock.Now()))

	_, err = f.coord.Recover(context.Background(), 1, TriggerHardExpiry)
	require.Error(t, err)

	st, _ = f.coord.Status(1)
	assert.Equal(t, 2, st.Failures)
	assert.True(t, st.Unrecoverable)
	f.clock.Advance(time.Hour)
	assert.False(t, f.coord.Due(1, f.clock.Now()), "unrecoverable files are not swept")
	assert.Equal(t, float64(1), metricValue(t, metrics.unrecoverable))

	// An administrator can still recover once a replica comes back.
	s, _ := f.sessions.Get(1)
	n := newNode("dn-0", 64)
	n.replica.ID = s.Last.ID
	n.replica.GenStamp = s.Last.GenStamp
	f.tracker.Register(n)
	f.tracker.Expect(s.Last, []block.NodeID{"dn-0"})

	res, err := f.coord.Recover(context.Background(), 1, TriggerAdmin)
	require.NoError(t, err)
	assert.Equal(t, Finalized, res.State)

	st, _ = f.coord.Status(1)
	assert.Zero(t, st.Failures)
	assert.False(t, st.Unrecoverable)
	assert.Zero(t, metricValue(t, metrics.unrecoverable))
	assert.Len(t, f.coord.Statuses(), 1)
}

// ============================================================================
// AdoptFinalizedReplica
// ============================================================================

func TestAdoptFinalizedReplica_OrphanedSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)
	s := f.openFile(t, 1, 64)

	_, err := f.sessions.AttemptClose(holder, 1, f.leases, bindings{epoch: 1, bound: true})
	require.True(t, errors.Is(err, mdserrors.ErrCloseConflict))

	r := block.Report{Node: "dn-0", Block: s.Last, State: block.ReplicaFinalized}
	ok, err := f.coord.AdoptFinalizedReplica(1, r)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := f.sessions.Get(1)
	assert.Equal(t, block.Complete, got.State)
	assert.Equal(t, s.Last, got.Last)
	_, held := f.leases.Get(1)
	assert.False(t, held)

	st, ok := f.coord.Status(1)
	require.True(t, ok)
	assert.Equal(t, TriggerReplicaReport, st.Last.Trigger)
	assert.Equal(t, Finalized, st.Last.State)

	again, err := f.coord.AdoptFinalizedReplica(1, r)
	require.NoError(t, err)
	assert.False(t, again, "already complete")
}

func TestAdoptFinalizedReplica_LiveWriterIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)
	s := f.openFile(t, 1, 64)

	ok, err := f.coord.AdoptFinalizedReplica(1, block.Report{Node: "dn-0", Block: s.Last, State: block.ReplicaFinalized})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.coord.AdoptFinalizedReplica(1, block.Report{Node: "dn-0", Block: s.Last, State: block.ReplicaBeingWritten})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdoptFinalizedReplica_HardExpiredLease(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testRecoveryConfig(), nil)
	s := f.openFile(t, 1, 64)
	f.clock.Advance(2 * time.Hour)

	stale := s.Last
	stale.GenStamp--
	ok, err := f.coord.AdoptFinalizedReplica(1, block.Report{Node: "dn-0", Block: stale, State: block.ReplicaFinalized})
	require.NoError(t, err)
	assert.False(t, ok, "older stamp cannot finalize")

	ok, err = f.coord.AdoptFinalizedReplica(1, block.Report{Node: "dn-0", Block: s.Last, State: block.ReplicaFinalized})
	require.NoError(t, err)
	assert.True(t, ok)
}
