// Package recovery drives block recovery: the protocol that picks a final
// length and generation stamp for the last block of a file whose writer
// can no longer close it, and then finalizes the file.
//
// One attempt walks a fixed state machine:
//
//	STARTED            the session is flagged as recovering
//	REPORTS_COLLECTED  every candidate replica was asked for its state
//	AGREED             length = min reported, stamp = max(reported, session)+1
//	COMMITTED          at least one replica accepted the new stamp
//	FINALIZED          the session is COMPLETE and the lease released
//
// Any step may end in FAILED instead, which leaves the session under
// construction and the lease in place so the attempt can be retried.
//
// At most one attempt per block is in flight. A second trigger while an
// attempt runs attaches to it and receives the same result. The per-file
// lock is held only around session and lease mutations, never across a
// storage node call.
//
// This file implements the Coordinator. queue.go and sweeper.go implement
// the background machinery that feeds it.
package recovery

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/dittomds/internal/keylock"
	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/internal/telemetry"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
	"github.com/marmos91/dittomds/pkg/mds/lease"
	"github.com/marmos91/dittomds/pkg/mds/replica"
	"github.com/marmos91/dittomds/pkg/mds/session"
)

// Result describes one recovery attempt.
type Result struct {
	FileID   block.FileID   `json:"file_id"`
	Block    block.ID       `json:"block_id"`
	Trigger  Trigger        `json:"trigger"`
	State    State          `json:"state"`
	Reports  int            `json:"reports"`
	Agreed   block.Identity `json:"agreed"`
	Replicas []block.NodeID `json:"replicas,omitempty"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished,omitzero"`
	Error    string         `json:"error,omitempty"`

	err error
}

// Err returns the error that ended a failed attempt.
func (r Result) Err() error { return r.err }

// FileStatus is the recovery history of one file.
type FileStatus struct {
	FileID        block.FileID `json:"file_id"`
	InFlight      bool         `json:"in_flight"`
	Last          Result       `json:"last"`
	Failures      int          `json:"failures"`
	NextAttempt   time.Time    `json:"next_attempt,omitzero"`
	Unrecoverable bool         `json:"unrecoverable"`
}

type fileStatus struct {
	FileStatus
	backoff *backoff.ExponentialBackOff
}

type attempt struct {
	result  Result
	session session.Session
	done    chan struct{}
}

// Dependencies groups the components a Coordinator works on.
type Dependencies struct {
	Sessions  *session.Table
	Leases    *lease.Registry
	Tracker   *replica.Tracker
	Allocator *block.Allocator

	// Locks serializes work per file. It must be the same set the client
	// operations lock, so that close and finalize never interleave.
	Locks *keylock.Set[block.FileID]
}

// Coordinator runs recovery attempts.
type Coordinator struct {
	cfg Config
	Dependencies
	clock   lease.Clock
	metrics *Metrics

	mu       sync.Mutex
	inflight map[block.ID]*attempt
	status   map[block.FileID]*fileStatus
}

// NewCoordinator creates a coordinator. metrics may be nil.
func NewCoordinator(cfg Config, deps Dependencies, clock lease.Clock, metrics *Metrics) *Coordinator {
	if clock == nil {
		clock = lease.SystemClock()
	}
	if deps.Locks == nil {
		deps.Locks = &keylock.Set[block.FileID]{}
	}
	return &Coordinator{
		cfg:          cfg,
		Dependencies: deps,
		clock:        clock,
		metrics:      metrics,
		inflight:     make(map[block.ID]*attempt),
		status:       make(map[block.FileID]*fileStatus),
	}
}

// Recover runs a recovery attempt for fileID, or attaches to the attempt
// already in flight for its last block, and waits for the outcome.
//
// Recovering a file that is already COMPLETE succeeds immediately with a
// FINALIZED result. Canceling ctx stops the wait but not the attempt.
func (c *Coordinator) Recover(ctx context.Context, fileID block.FileID, trigger Trigger) (Result, error) {
	a, owner, res, err := c.begin(fileID, trigger)
	if a == nil {
		return res, err
	}

	if !owner {
		logger.DebugCtx(ctx, "Attaching to in-flight recovery",
			logger.KeyFileID, fileID,
			logger.KeyBlockID, a.session.Last.ID,
			logger.KeyTrigger, trigger)
		select {
		case <-a.done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		return a.result, a.result.err
	}

	c.run(context.WithoutCancel(ctx), a)
	return a.result, a.result.err
}

// begin registers a new attempt or finds the running one. A nil attempt
// means there is nothing to run and res/err are the final answer.
func (c *Coordinator) begin(fileID block.FileID, trigger Trigger) (a *attempt, owner bool, res Result, err error) {
	unlock := c.Locks.Lock(fileID)
	defer unlock()

	s, ok := c.Sessions.Get(fileID)
	if !ok {
		c.releaseLease(fileID)
		return nil, false, Result{}, mdserrors.NewNotFoundError(uint64(fileID), "write session")
	}
	if s.State == block.Complete {
		c.releaseLease(fileID)
		return nil, false, Result{
			FileID:  fileID,
			Block:   s.Last.ID,
			Trigger: trigger,
			State:   Finalized,
			Agreed:  s.Last,
		}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if running, ok := c.inflight[s.Last.ID]; ok {
		return running, false, Result{}, nil
	}

	s, err = c.Sessions.BeginRecovery(fileID)
	if err != nil {
		return nil, false, Result{}, err
	}

	a = &attempt{
		session: s,
		done:    make(chan struct{}),
		result: Result{
			FileID:  fileID,
			Block:   s.Last.ID,
			Trigger: trigger,
			State:   Started,
			Started: c.clock.Now(),
		},
	}
	c.inflight[s.Last.ID] = a
	c.statusFor(fileID).InFlight = true
	c.metrics.AddInFlight(1)
	return a, true, Result{}, nil
}

func (c *Coordinator) run(ctx context.Context, a *attempt) {
	fileID, blockID := a.result.FileID, a.result.Block
	start := time.Now()

	ctx, span := telemetry.StartRecoverySpan(ctx, string(a.result.Trigger), uint64(fileID), uint64(blockID))
	defer span.End()

	logger.InfoCtx(ctx, "Block recovery started",
		logger.KeyFileID, fileID,
		logger.KeyBlockID, blockID,
		logger.KeyGenStamp, a.session.Last.GenStamp,
		logger.KeyTrigger, a.result.Trigger)

	defer func() {
		c.finish(a, time.Since(start))
		telemetry.SetAttributes(ctx, telemetry.RecoveryState(a.result.State.String()))
		if a.result.err != nil {
			telemetry.RecordError(ctx, a.result.err)
		}
	}()

	reports := c.Tracker.CollectReports(ctx, blockID, c.Tracker.Candidates(blockID))
	viable := Viable(a.session.Last, reports)
	c.update(a, func(r *Result) {
		r.State = ReportsCollected
		r.Reports = len(viable)
	})
	telemetry.AddEvent(ctx, "reports.collected", telemetry.Replicas(len(viable)))

	if len(viable) == 0 {
		c.fail(a, mdserrors.NewNoViableReplicaError(uint64(fileID), uint64(blockID)))
		return
	}

	agreed := Agree(a.session.Last, viable)
	c.Allocator.Observe(agreed.GenStamp)
	c.update(a, func(r *Result) {
		r.State = Agreed
		r.Agreed = agreed
	})
	logger.DebugCtx(ctx, "Recovery agreed",
		logger.KeyFileID, fileID,
		logger.KeyBlockID, blockID,
		logger.KeyLength, agreed.Length,
		logger.KeyGenStamp, agreed.GenStamp,
		logger.KeyReplicas, len(viable))

	nodes := make([]block.NodeID, len(viable))
	for i, r := range viable {
		nodes[i] = r.Node
	}
	committed := replica.Succeeded(c.Tracker.CommitNewGenStamp(ctx, blockID, nodes, agreed.Length, agreed.GenStamp))
	if len(committed) == 0 {
		c.fail(a, mdserrors.NewRecoveryFailedError(uint64(fileID), uint64(blockID), "no replica accepted the new generation stamp"))
		return
	}
	c.update(a, func(r *Result) {
		r.State = Committed
		r.Replicas = committed
	})

	unlock := c.Locks.Lock(fileID)
	_, err := c.Sessions.Finalize(fileID, agreed)
	if err == nil {
		c.releaseLease(fileID)
		c.Tracker.Retain(blockID, committed)
	}
	unlock()

	if err != nil {
		c.fail(a, err)
		return
	}
	c.update(a, func(r *Result) { r.State = Finalized })

	logger.InfoCtx(ctx, "Block recovery finalized",
		logger.KeyFileID, fileID,
		logger.KeyBlockID, blockID,
		logger.KeyLength, agreed.Length,
		logger.KeyGenStamp, agreed.GenStamp,
		logger.KeyReplicas, len(committed))
}

// Viable filters reports down to replicas of last's block whose generation
// stamp is not older than last's. Older stamps belong to replicas that
// missed a previous pipeline or recovery and must not vote.
func Viable(last block.Identity, reports []block.Report) []block.Report {
	var out []block.Report
	for _, r := range reports {
		if r.Block.ID == last.ID && r.Block.GenStamp >= last.GenStamp {
			out = append(out, r)
		}
	}
	return out
}

// Agree computes the final identity of the block from viable reports:
// the minimum reported length and a generation stamp greater than every
// stamp seen, including the session's.
func Agree(last block.Identity, viable []block.Report) block.Identity {
	agreed := block.Identity{ID: last.ID, GenStamp: last.GenStamp, Length: viable[0].Block.Length}
	for _, r := range viable {
		agreed.Length = min(agreed.Length, r.Block.Length)
		agreed.GenStamp = max(agreed.GenStamp, r.Block.GenStamp)
	}
	agreed.GenStamp++
	return agreed
}

func (c *Coordinator) fail(a *attempt, err error) {
	unlock := c.Locks.Lock(a.result.FileID)
	c.Sessions.EndRecovery(a.result.FileID)
	unlock()

	c.update(a, func(r *Result) {
		r.State = Failed
		r.err = err
		r.Error = err.Error()
	})
	logger.Warn("Block recovery failed",
		logger.KeyFileID, a.result.FileID,
		logger.KeyBlockID, a.result.Block,
		logger.KeyError, err)
}

func (c *Coordinator) update(a *attempt, fn func(*Result)) {
	c.mu.Lock()
	fn(&a.result)
	c.mu.Unlock()
}

// finish records the outcome, detaches the attempt and wakes waiters.
func (c *Coordinator) finish(a *attempt, d time.Duration) {
	now := c.clock.Now()

	c.mu.Lock()
	a.result.Finished = now
	delete(c.inflight, a.result.Block)

	st := c.statusFor(a.result.FileID)
	st.InFlight = false
	st.Last = a.result
	if a.result.State == Finalized {
		c.resetLocked(st)
	} else {
		c.recordFailureLocked(st, now)
	}
	c.mu.Unlock()

	c.metrics.AddInFlight(-1)
	c.metrics.ObserveAttempt(a.result.Trigger, a.result.State, d)
	close(a.done)
}

func (c *Coordinator) statusFor(fileID block.FileID) *fileStatus {
	st, ok := c.status[fileID]
	if !ok {
		st = &fileStatus{FileStatus: FileStatus{FileID: fileID}}
		c.status[fileID] = st
	}
	return st
}

func (c *Coordinator) resetLocked(st *fileStatus) {
	if st.Unrecoverable {
		c.metrics.AddUnrecoverable(-1)
	}
	st.Failures = 0
	st.NextAttempt = time.Time{}
	st.Unrecoverable = false
	st.backoff = nil
}

func (c *Coordinator) recordFailureLocked(st *fileStatus, now time.Time) {
	st.Failures++
	if st.backoff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.cfg.BackoffInitial
		b.MaxInterval = c.cfg.BackoffMax
		b.MaxElapsedTime = 0
		b.Clock = c.clock
		b.Reset()
		st.backoff = b
	}
	delay := st.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.cfg.BackoffMax
	}
	st.NextAttempt = now.Add(delay)

	if !st.Unrecoverable && c.cfg.MaxAttempts > 0 && st.Failures >= c.cfg.MaxAttempts {
		st.Unrecoverable = true
		c.metrics.AddUnrecoverable(1)
		logger.Error("File is unrecoverable, giving up automatic recovery",
			logger.KeyFileID, st.FileID,
			logger.KeyAttempt, st.Failures,
			logger.KeyMaxAttempts, c.cfg.MaxAttempts,
			logger.KeyError, st.Last.Error)
	}
}

func (c *Coordinator) releaseLease(fileID block.FileID) {
	if l, ok := c.Leases.Get(fileID); ok {
		if err := c.Leases.Release(l.Holder, fileID); err != nil {
			logger.Debug("Lease already gone", logger.KeyFileID, fileID, logger.KeyError, err)
		}
	}
}

// AdoptFinalizedReplica finalizes a file directly from a finalized replica
// of its last block, without running the protocol.
//
// It applies only when the writer is gone (the session is orphaned or its
// lease is missing or hard-expired), no attempt is in flight, and the
// replica's generation stamp is at least the session's. It reports whether
// the file was finalized.
func (c *Coordinator) AdoptFinalizedReplica(fileID block.FileID, r block.Report) (bool, error) {
	if r.State != block.ReplicaFinalized {
		return false, nil
	}

	unlock := c.Locks.Lock(fileID)
	defer unlock()

	s, ok := c.Sessions.Get(fileID)
	if !ok || s.State != block.UnderConstruction || s.Recovering {
		return false, nil
	}
	if r.Block.ID != s.Last.ID || r.Block.GenStamp < s.Last.GenStamp {
		return false, nil
	}

	now := c.clock.Now()
	l, held := c.Leases.Get(fileID)
	if !s.Orphaned && held && !l.HardExpired(now) {
		return false, nil
	}

	if _, err := c.Sessions.Finalize(fileID, r.Block); err != nil {
		return false, err
	}
	c.releaseLease(fileID)
	c.Allocator.Observe(r.Block.GenStamp)

	c.mu.Lock()
	st := c.statusFor(fileID)
	st.Last = Result{
		FileID:   fileID,
		Block:    r.Block.ID,
		Trigger:  TriggerReplicaReport,
		State:    Finalized,
		Agreed:   r.Block,
		Replicas: []block.NodeID{r.Node},
		Started:  now,
		Finished: now,
	}
	c.resetLocked(st)
	c.mu.Unlock()

	logger.Info("Finalized from replica report",
		logger.KeyFileID, fileID,
		logger.KeyNodeID, r.Node,
		logger.KeyBlockID, r.Block.ID,
		logger.KeyGenStamp, r.Block.GenStamp,
		logger.KeyLength, r.Block.Length)
	return true, nil
}

// Due reports whether the sweep may start an attempt for fileID at now.
func (c *Coordinator) Due(fileID block.FileID, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.status[fileID]
	if !ok {
		return true
	}
	return !st.InFlight && !st.Unrecoverable && !now.Before(st.NextAttempt)
}

// Status returns the recovery history of fileID.
func (c *Coordinator) Status(fileID block.FileID) (FileStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.status[fileID]
	if !ok {
		return FileStatus{}, false
	}
	return c.snapshotLocked(st), true
}

// Statuses returns the recovery history of every file that has had an
// attempt, ordered by file.
func (c *Coordinator) Statuses() []FileStatus {
	c.mu.Lock()
	out := make([]FileStatus, 0, len(c.status))
	for _, st := range c.status {
		out = append(out, c.snapshotLocked(st))
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out
}

func (c *Coordinator) snapshotLocked(st *fileStatus) FileStatus {
	fs := st.FileStatus
	if fs.InFlight {
		for _, a := range c.inflight {
			if a.result.FileID == fs.FileID {
				fs.Last = a.result
			}
		}
	}
	fs.Last.Replicas = slices.Clone(fs.Last.Replicas)
	return fs
}
