// Package mds is the metadata authority: the entry point that clients,
// administrators and storage nodes talk to.
//
// The Authority owns no state of its own. It wires the lease registry, the
// session table, the replica tracker and the recovery coordinator together
// and serializes every multi-step mutation of one file behind a per-file
// lock shared with the coordinator. Different files never contend.
//
// The namespace is consulted only through session.BindingView. Paths never
// reach this package; every operation is addressed by block.FileID.
package mds

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittomds/internal/keylock"
	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/internal/telemetry"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
	"github.com/marmos91/dittomds/pkg/mds/lease"
	"github.com/marmos91/dittomds/pkg/mds/recovery"
	"github.com/marmos91/dittomds/pkg/mds/replica"
	"github.com/marmos91/dittomds/pkg/mds/session"
)

// LocatedBlock is a block of a file together with where its replicas are.
type LocatedBlock struct {
	Block     block.Identity     `json:"block"`
	Offset    int64              `json:"offset"`
	State     block.State        `json:"state"`
	Locations []replica.Location `json:"locations"`
}

// Nodes returns the nodes of the block's locations in order.
func (lb LocatedBlock) Nodes() []block.NodeID {
	nodes := make([]block.NodeID, len(lb.Locations))
	for i, l := range lb.Locations {
		nodes[i] = l.Node
	}
	return nodes
}

// LeaseStatus is a lease as seen at a point in time.
type LeaseStatus struct {
	lease.Lease
	SoftExpired bool `json:"soft_expired"`
	HardExpired bool `json:"hard_expired"`
}

// Option configures an Authority.
type Option func(*options)

type options struct {
	clock    lease.Clock
	registry prometheus.Registerer
}

// WithClock sets the clock used for lease deadlines and sweeps.
func WithClock(c lease.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMetricsRegistry registers the authority's metrics with r.
func WithMetricsRegistry(r prometheus.Registerer) Option {
	return func(o *options) { o.registry = r }
}

// Authority is the metadata authority.
type Authority struct {
	cfg      Config
	clock    lease.Clock
	bindings session.BindingView

	locks       *keylock.Set[block.FileID]
	alloc       *block.Allocator
	leases      *lease.Registry
	sessions    *session.Table
	tracker     *replica.Tracker
	coordinator *recovery.Coordinator
	queue       *recovery.Queue
	sweeper     *recovery.Sweeper

	mu      sync.Mutex
	started bool
}

// New creates an authority that reads binding epochs from bindings.
func New(cfg Config, bindings session.BindingView, opts ...Option) *Authority {
	o := options{clock: lease.SystemClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Replication <= 0 {
		cfg.Replication = DefaultConfig().Replication
	}

	var (
		leaseMetrics    *lease.Metrics
		replicaMetrics  *replica.Metrics
		recoveryMetrics *recovery.Metrics
	)
	if o.registry != nil {
		leaseMetrics = lease.NewMetrics(o.registry)
		replicaMetrics = replica.NewMetrics(o.registry)
		recoveryMetrics = recovery.NewMetrics(o.registry)
	}

	a := &Authority{
		cfg:      cfg,
		clock:    o.clock,
		bindings: bindings,
		locks:    &keylock.Set[block.FileID]{},
		alloc:    block.NewAllocator(),
	}
	a.leases = lease.NewRegistry(cfg.Lease, lease.WithClock(o.clock), lease.WithMetrics(leaseMetrics))
	a.sessions = session.NewTable(a.alloc, o.clock)
	a.tracker = replica.NewTracker(cfg.Replica, replicaMetrics)
	a.coordinator = recovery.NewCoordinator(cfg.Recovery, recovery.Dependencies{
		Sessions:  a.sessions,
		Leases:    a.leases,
		Tracker:   a.tracker,
		Allocator: a.alloc,
		Locks:     a.locks,
	}, o.clock, recoveryMetrics)
	a.queue = recovery.NewQueue(a.coordinator, cfg.Recovery, recoveryMetrics)
	a.sweeper = recovery.NewSweeper(a.leases, a.sessions, a.coordinator, a.queue,
		cfg.Recovery.OrphanGrace, cfg.Lease.SweepInterval)
	return a
}

// Start launches the recovery workers and the sweep.
func (a *Authority) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true

	a.queue.Start(ctx)
	a.sweeper.Start()
	logger.Info("Metadata authority started",
		"soft_limit", a.cfg.Lease.SoftLimit,
		"hard_limit", a.cfg.Lease.HardLimit,
		"replication", a.cfg.Replication)
}

// Stop halts the sweep and waits up to timeout for running recoveries.
func (a *Authority) Stop(timeout time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	a.started = false

	a.sweeper.Stop()
	a.queue.Stop(timeout)
	logger.Info("Metadata authority stopped")
}

// ============================================================================
// Storage nodes
// ============================================================================

// RegisterNode adds a storage node to the cluster.
func (a *Authority) RegisterNode(n replica.StorageNode) {
	a.tracker.Register(n)
}

// UnregisterNode removes a storage node from the cluster.
func (a *Authority) UnregisterNode(id block.NodeID) {
	a.tracker.Unregister(id)
}

// Nodes returns the registered storage nodes.
func (a *Authority) Nodes() []block.NodeID {
	return a.tracker.Nodes()
}

// BlockReceived applies a replica report from a storage node.
//
// A FINALIZED report matching the committed last block completes the file.
// A FINALIZED report for the last block of a session whose writer is gone
// finalizes the file directly from that replica.
func (a *Authority) BlockReceived(ctx context.Context, r block.Report) error {
	if !a.tracker.Received(r) {
		logger.DebugCtx(ctx, "Ignoring stale replica report",
			logger.KeyNodeID, r.Node,
			logger.KeyBlockID, r.Block.ID,
			logger.KeyGenStamp, r.Block.GenStamp)
		return nil
	}
	if r.State != block.ReplicaFinalized {
		return nil
	}
	fileID, ok := a.sessions.FileOf(r.Block.ID)
	if !ok {
		return nil
	}

	unlock := a.locks.Lock(fileID)
	completed := a.sessions.Complete(fileID, r.Block)
	unlock()

	if completed {
		a.alloc.Observe(r.Block.GenStamp)
		logger.InfoCtx(ctx, "File complete",
			logger.KeyFileID, fileID,
			logger.KeyBlockID, r.Block.ID,
			logger.KeyNodeID, r.Node,
			logger.KeyLength, r.Block.Length)
		return nil
	}

	if _, err := a.coordinator.AdoptFinalizedReplica(fileID, r); err != nil {
		return fmt.Errorf("adopt replica of %s from %s: %w", r.Block.ID, r.Node, err)
	}
	return nil
}

// ============================================================================
// Client operations
// ============================================================================

// OpenForWrite grants holder the lease on fileID and allocates a new last
// block placed on the first Replication registered nodes.
//
// When another holder's lease is past its soft limit the call starts
// recovery and fails with AlreadyLeased; the caller retries once the file
// is complete.
func (a *Authority) OpenForWrite(ctx context.Context, holder block.HolderID, fileID block.FileID) (LocatedBlock, error) {
	ctx, span := telemetry.StartLeaseSpan(ctx, "open", uint64(fileID), telemetry.Holder(string(holder)))
	defer span.End()

	epoch, bound := a.bindings.BindingEpoch(fileID)
	if !bound {
		return LocatedBlock{}, mdserrors.NewNotFoundError(uint64(fileID), "file")
	}
	targets := a.pipeline()
	if len(targets) == 0 {
		return LocatedBlock{}, mdserrors.New(mdserrors.ErrNoViableReplica, uint64(fileID), "no storage nodes registered")
	}

	unlock := a.locks.Lock(fileID)
	defer unlock()

	now := a.clock.Now()
	prev, held := a.leases.Get(fileID)
	if s, ok := a.sessions.Get(fileID); ok && s.State != block.Complete &&
		held && prev.Holder != holder && prev.SoftExpired(now) {
		a.enqueue(fileID, recovery.TriggerSoftExpiry)
		return LocatedBlock{}, mdserrors.New(mdserrors.ErrAlreadyLeased, uint64(fileID),
			"lease of %s is past its soft limit, recovery started", prev.Holder)
	}

	if _, err := a.leases.Acquire(holder, fileID); err != nil {
		telemetry.RecordError(ctx, err)
		return LocatedBlock{}, err
	}
	s, err := a.sessions.Open(fileID, epoch)
	if err != nil {
		if !held || prev.Holder != holder {
			_ = a.leases.Release(holder, fileID)
		}
		telemetry.RecordError(ctx, err)
		return LocatedBlock{}, err
	}
	a.tracker.Expect(s.Last, targets)

	logger.InfoCtx(ctx, "File opened for write",
		logger.KeyFileID, fileID,
		logger.KeyHolder, holder,
		logger.KeyBlockID, s.Last.ID,
		logger.KeyEpoch, epoch)
	return a.locate(s.Last, s.Length()-s.Last.Length, s.State), nil
}

// Sync records that the last block of fileID has been durably written up
// to length and renews holder's lease.
func (a *Authority) Sync(ctx context.Context, holder block.HolderID, fileID block.FileID, length int64) error {
	unlock := a.locks.Lock(fileID)
	defer unlock()

	if _, err := a.leases.Renew(holder, fileID); err != nil {
		return err
	}
	s, err := a.sessions.RecordSync(fileID, length)
	if err != nil {
		return err
	}
	logger.DebugCtx(ctx, "Last block synced",
		logger.KeyFileID, fileID,
		logger.KeyBlockID, s.Last.ID,
		logger.KeyLength, length)
	return nil
}

// AddBlock seals the current last block and allocates the next one.
func (a *Authority) AddBlock(ctx context.Context, holder block.HolderID, fileID block.FileID) (LocatedBlock, error) {
	targets := a.pipeline()
	if len(targets) == 0 {
		return LocatedBlock{}, mdserrors.New(mdserrors.ErrNoViableReplica, uint64(fileID), "no storage nodes registered")
	}

	unlock := a.locks.Lock(fileID)
	defer unlock()

	if _, err := a.leases.Renew(holder, fileID); err != nil {
		return LocatedBlock{}, err
	}
	s, err := a.sessions.AddBlock(fileID)
	if err != nil {
		return LocatedBlock{}, err
	}
	a.tracker.Expect(s.Last, targets)

	logger.DebugCtx(ctx, "Block added",
		logger.KeyFileID, fileID,
		logger.KeyBlockID, s.Last.ID,
		logger.KeyGenStamp, s.Last.GenStamp)
	return a.locate(s.Last, s.Length()-s.Last.Length, s.State), nil
}

// Close commits the last block of fileID and releases holder's lease.
//
// Close fails with CloseConflict when the file was renamed or deleted since
// open, when holder lost the lease, or while a recovery is in flight. The
// lease is then kept and the session left for recovery.
func (a *Authority) Close(ctx context.Context, holder block.HolderID, fileID block.FileID) error {
	ctx, span := telemetry.StartLeaseSpan(ctx, "close", uint64(fileID), telemetry.Holder(string(holder)))
	defer span.End()

	unlock := a.locks.Lock(fileID)
	defer unlock()

	s, err := a.sessions.AttemptClose(holder, fileID, a.leases, a.bindings)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	if err := a.leases.Release(holder, fileID); err != nil {
		logger.WarnCtx(ctx, "Lease vanished during close", logger.KeyFileID, fileID, logger.KeyError, err)
	}

	// A replica may have finalized the block before the client closed.
	for _, loc := range a.tracker.Locations(s.Last.ID) {
		if loc.State == block.ReplicaFinalized && a.sessions.Complete(fileID, loc.Block) {
			break
		}
	}

	logger.InfoCtx(ctx, "File closed",
		logger.KeyFileID, fileID,
		logger.KeyHolder, holder,
		logger.KeyBlockID, s.Last.ID,
		logger.KeyLength, s.Last.Length)
	return nil
}

// RenewLease renews every lease of holder and returns how many it renewed.
func (a *Authority) RenewLease(holder block.HolderID) int {
	return a.leases.RenewAll(holder)
}

// BlockLocations returns every block of fileID in file order.
func (a *Authority) BlockLocations(fileID block.FileID) ([]LocatedBlock, error) {
	s, ok := a.sessions.Get(fileID)
	if !ok {
		return nil, mdserrors.NewNotFoundError(uint64(fileID), "write session")
	}

	out := make([]LocatedBlock, 0, len(s.Blocks)+1)
	var offset int64
	for _, b := range s.Blocks {
		out = append(out, a.locate(b, offset, block.Complete))
		offset += b.Length
	}
	return append(out, a.locate(s.Last, offset, s.State)), nil
}

// Session returns the write session of fileID.
func (a *Authority) Session(fileID block.FileID) (session.Session, bool) {
	return a.sessions.Get(fileID)
}

// ============================================================================
// Administrative operations
// ============================================================================

// TriggerRecovery runs recovery of fileID and waits for the outcome.
func (a *Authority) TriggerRecovery(ctx context.Context, fileID block.FileID) (recovery.Result, error) {
	return a.coordinator.Recover(ctx, fileID, recovery.TriggerAdmin)
}

// LeaseStatus returns the lease on fileID.
func (a *Authority) LeaseStatus(fileID block.FileID) (LeaseStatus, error) {
	l, ok := a.leases.Get(fileID)
	if !ok {
		return LeaseStatus{}, mdserrors.NewNotFoundError(uint64(fileID), "lease")
	}
	now := a.clock.Now()
	return LeaseStatus{Lease: l, SoftExpired: l.SoftExpired(now), HardExpired: l.HardExpired(now)}, nil
}

// RecoveryStatus returns the recovery history of every file that has had one.
func (a *Authority) RecoveryStatus() []recovery.FileStatus {
	return a.coordinator.Statuses()
}

// Sweep runs one sweep pass immediately and returns how many files it queued.
func (a *Authority) Sweep() int {
	return a.sweeper.SweepOnce(a.clock.Now())
}

// ============================================================================
// Helpers
// ============================================================================

// pipeline picks the nodes a new block is written to. Placement is the
// first Replication registered nodes in ID order.
func (a *Authority) pipeline() []block.NodeID {
	nodes := a.tracker.Nodes()
	if len(nodes) > a.cfg.Replication {
		nodes = nodes[:a.cfg.Replication]
	}
	return nodes
}

func (a *Authority) locate(b block.Identity, offset int64, state block.State) LocatedBlock {
	return LocatedBlock{Block: b, Offset: offset, State: state, Locations: a.tracker.Locations(b.ID)}
}

func (a *Authority) enqueue(fileID block.FileID, trigger recovery.Trigger) {
	if !a.coordinator.Due(fileID, a.clock.Now()) {
		return
	}
	if a.queue.Enqueue(recovery.Request{FileID: fileID, Trigger: trigger}) {
		logger.Info("Recovery requested", logger.KeyFileID, fileID, logger.KeyTrigger, trigger)
	}
}
