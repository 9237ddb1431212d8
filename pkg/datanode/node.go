// Package datanode is a reference storage node. It keeps replica metadata
// for the blocks it holds and implements the two calls the authority makes
// during recovery: report a replica and commit it at a new generation
// stamp.
//
// Block contents are not stored; a replica is its identity, its state and
// the number of bytes the client pipeline has pushed to it.
package datanode

import (
	"context"
	"time"

	"github.com/marmos91/dittomds/internal/keylock"
	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/datanode/store"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
	"github.com/marmos91/dittomds/pkg/mds/replica"
)

// Operation labels for Metrics.
const (
	OpWrite  = "write"
	OpReport = "report"
	OpCommit = "commit"
)

// Reporter receives the node's incremental block reports. The authority
// implements it in-process; apiclient.Client implements it over HTTP.
type Reporter interface {
	BlockReceived(ctx context.Context, r block.Report) error
}

// Metrics records node activity. A nil Metrics disables recording.
type Metrics interface {
	ObserveOp(op string, err error, d time.Duration)
}

// Option configures a Node.
type Option func(*Node)

// WithReporter sets where block reports are sent.
func WithReporter(r Reporter) Option {
	return func(n *Node) { n.reporter = r }
}

// WithMetrics sets the node's metrics.
func WithMetrics(m Metrics) Option {
	return func(n *Node) { n.metrics = m }
}

// Node is a storage node.
type Node struct {
	id       block.NodeID
	store    store.ReplicaStore
	reporter Reporter
	metrics  Metrics
	locks    keylock.Set[block.ID]
}

var _ replica.StorageNode = (*Node)(nil)

// New creates a node that keeps its replicas in st.
func New(id block.NodeID, st store.ReplicaStore, opts ...Option) *Node {
	n := &Node{id: id, store: st}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ID returns the node's identity.
func (n *Node) ID() block.NodeID { return n.id }

func (n *Node) observe(op string, err error, start time.Time) {
	if n.metrics != nil {
		n.metrics.ObserveOp(op, err, time.Since(start))
	}
}

func (n *Node) report(r *store.Replica) block.Report {
	return block.Report{Node: n.id, Block: r.Block, State: r.State}
}

// Write appends size bytes to the replica of blockID, creating it on the
// first write. genStamp must match the replica's; a writer still using the
// stamp from before a recovery is fenced with StaleGenStamp.
func (n *Node) Write(ctx context.Context, blockID block.ID, genStamp block.GenStamp, size int64) (rep block.Report, err error) {
	defer func(start time.Time) { n.observe(OpWrite, err, start) }(time.Now())

	if size < 0 {
		return block.Report{}, mdserrors.NewInvalidArgumentError(0, "negative write size")
	}

	unlock := n.locks.Lock(blockID)
	defer unlock()

	r, err := n.store.GetReplica(ctx, blockID)
	switch {
	case mdserrors.IsNotFound(err):
		r = &store.Replica{
			Block: block.Identity{ID: blockID, GenStamp: genStamp},
			State: block.ReplicaBeingWritten,
		}
	case err != nil:
		return block.Report{}, err
	case r.Block.GenStamp != genStamp:
		return block.Report{}, mdserrors.NewStaleGenStampError(uint64(blockID), uint64(r.Block.GenStamp), uint64(genStamp))
	case r.State == block.ReplicaFinalized:
		return block.Report{}, mdserrors.New(mdserrors.ErrInvalidArgument, 0, "replica %s is finalized", blockID)
	}

	r.BytesOnDisk += size
	r.Block.Length = r.BytesOnDisk
	r.Updated = time.Now()
	if err := n.store.PutReplica(ctx, r); err != nil {
		return block.Report{}, err
	}
	return n.report(r), nil
}

// ReportReplica returns the node's current state for blockID.
func (n *Node) ReportReplica(ctx context.Context, blockID block.ID) (rep block.Report, err error) {
	defer func(start time.Time) { n.observe(OpReport, err, start) }(time.Now())

	r, err := n.store.GetReplica(ctx, blockID)
	if err != nil {
		return block.Report{}, err
	}
	return n.report(r), nil
}

// CommitReplica truncates the replica of blockID to length, stamps it with
// genStamp and, when finalize is set, seals it. The resulting report is
// sent to the node's Reporter.
//
// genStamp may not go backwards and length may not exceed the bytes on
// disk. A finalized replica accepts a commit only at its own length.
// Committing the current identity again is allowed.
func (n *Node) CommitReplica(ctx context.Context, blockID block.ID, length int64, genStamp block.GenStamp, finalize bool) (rep block.Report, err error) {
	defer func(start time.Time) { n.observe(OpCommit, err, start) }(time.Now())

	rep, err = n.commit(ctx, blockID, length, genStamp, finalize)
	if err != nil {
		return block.Report{}, err
	}

	logger.DebugCtx(ctx, "Replica committed",
		logger.KeyNodeID, n.id,
		logger.KeyBlockID, blockID,
		logger.KeyGenStamp, genStamp,
		logger.KeyLength, length,
		logger.KeyReplicaState, rep.State)

	if n.reporter != nil {
		if rerr := n.reporter.BlockReceived(ctx, rep); rerr != nil {
			logger.WarnCtx(ctx, "Block report not delivered",
				logger.KeyNodeID, n.id,
				logger.KeyBlockID, blockID,
				logger.KeyError, rerr)
		}
	}
	return rep, nil
}

func (n *Node) commit(ctx context.Context, blockID block.ID, length int64, genStamp block.GenStamp, finalize bool) (block.Report, error) {
	unlock := n.locks.Lock(blockID)
	defer unlock()

	r, err := n.store.GetReplica(ctx, blockID)
	if err != nil {
		return block.Report{}, err
	}
	switch {
	case genStamp < r.Block.GenStamp:
		return block.Report{}, mdserrors.NewStaleGenStampError(uint64(blockID), uint64(r.Block.GenStamp), uint64(genStamp))
	case length < 0 || length > r.BytesOnDisk:
		return block.Report{}, mdserrors.New(mdserrors.ErrInvalidArgument, 0,
			"cannot commit %s at length %d, %d bytes on disk", blockID, length, r.BytesOnDisk)
	case r.State == block.ReplicaFinalized && length != r.Block.Length:
		return block.Report{}, mdserrors.New(mdserrors.ErrInvalidArgument, 0,
			"replica %s is finalized at length %d", blockID, r.Block.Length)
	}

	r.Block.GenStamp = genStamp
	r.Block.Length = length
	r.BytesOnDisk = length
	if finalize {
		r.State = block.ReplicaFinalized
	}
	r.Updated = time.Now()
	if err := n.store.PutReplica(ctx, r); err != nil {
		return block.Report{}, err
	}
	return n.report(r), nil
}

// Replicas returns every replica the node holds.
func (n *Node) Replicas(ctx context.Context) ([]*store.Replica, error) {
	return n.store.ListReplicas(ctx)
}

// Close closes the node's store.
func (n *Node) Close() error {
	return n.store.Close()
}
