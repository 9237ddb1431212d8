// Package replica tracks where the replicas of each block live and talks
// to storage nodes on behalf of recovery.
//
// Fan-out calls (CollectReports, CommitNewGenStamp) run with bounded
// concurrency and a per-call timeout. They are best-effort: a node that
// fails or times out is left out of the result instead of failing the
// whole operation.
package replica

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/internal/telemetry"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
)

// Location is what the authority knows about one replica.
type Location struct {
	Node    block.NodeID       `json:"node"`
	Block   block.Identity     `json:"block"`
	State   block.ReplicaState `json:"state"`
	Updated time.Time          `json:"updated"`
}

// CommitResult is the outcome of committing one replica.
type CommitResult struct {
	Node   block.NodeID
	Report block.Report
	Err    error
}

// Succeeded returns the nodes that accepted the commit.
func Succeeded(results []CommitResult) []block.NodeID {
	var nodes []block.NodeID
	for _, r := range results {
		if r.Err == nil {
			nodes = append(nodes, r.Node)
		}
	}
	return nodes
}

// Tracker holds the node directory and the replica locations of every block.
type Tracker struct {
	cfg     Config
	metrics *Metrics

	mu        sync.RWMutex
	nodes     map[block.NodeID]StorageNode
	locations map[block.ID]map[block.NodeID]*Location
}

// NewTracker creates an empty tracker. metrics may be nil.
func NewTracker(cfg Config, metrics *Metrics) *Tracker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	return &Tracker{
		cfg:       cfg,
		metrics:   metrics,
		nodes:     make(map[block.NodeID]StorageNode),
		locations: make(map[block.ID]map[block.NodeID]*Location),
	}
}

// ============================================================================
// Node directory
// ============================================================================

// Register adds or replaces a storage node.
func (t *Tracker) Register(node StorageNode) {
	t.mu.Lock()
	t.nodes[node.ID()] = node
	t.mu.Unlock()
	logger.Info("Storage node registered", logger.KeyNodeID, node.ID())
}

// Unregister removes a storage node. Its replica locations are kept so a
// returning node is recognized.
func (t *Tracker) Unregister(id block.NodeID) {
	t.mu.Lock()
	delete(t.nodes, id)
	t.mu.Unlock()
}

// Node returns the registered node with the given ID.
func (t *Tracker) Node(id block.NodeID) (StorageNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Nodes returns the IDs of all registered nodes in sorted order.
func (t *Tracker) Nodes() []block.NodeID {
	t.mu.RLock()
	ids := make([]block.NodeID, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// ============================================================================
// Locations
// ============================================================================

// Expect records the pipeline targets of a freshly allocated block before
// any of them has reported.
func (t *Tracker) Expect(b block.Identity, nodes []block.NodeID) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	locs := t.locationsFor(b.ID)
	for _, n := range nodes {
		if _, ok := locs[n]; !ok {
			locs[n] = &Location{Node: n, Block: b, State: block.ReplicaBeingWritten, Updated: now}
		}
	}
}

// Received applies an incremental block report from a storage node.
// Reports with a generation stamp older than the one already recorded for
// that node are stale and ignored.
func (t *Tracker) Received(r block.Report) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	locs := t.locationsFor(r.Block.ID)
	if cur, ok := locs[r.Node]; ok && cur.Block.GenStamp > r.Block.GenStamp {
		return false
	}
	locs[r.Node] = &Location{Node: r.Node, Block: r.Block, State: r.State, Updated: time.Now()}
	return true
}

func (t *Tracker) locationsFor(id block.ID) map[block.NodeID]*Location {
	locs, ok := t.locations[id]
	if !ok {
		locs = make(map[block.NodeID]*Location)
		t.locations[id] = locs
	}
	return locs
}

// Locations returns the known replicas of blockID sorted by node.
func (t *Tracker) Locations(blockID block.ID) []Location {
	t.mu.RLock()
	locs := make([]Location, 0, len(t.locations[blockID]))
	for _, l := range t.locations[blockID] {
		locs = append(locs, *l)
	}
	t.mu.RUnlock()

	sort.Slice(locs, func(i, j int) bool { return locs[i].Node < locs[j].Node })
	return locs
}

// Candidates returns the nodes believed to hold a replica of blockID.
func (t *Tracker) Candidates(blockID block.ID) []block.NodeID {
	locs := t.Locations(blockID)
	nodes := make([]block.NodeID, len(locs))
	for i, l := range locs {
		nodes[i] = l.Node
	}
	return nodes
}

// Retain drops every location of blockID except those on keep.
func (t *Tracker) Retain(blockID block.ID, keep []block.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for n := range t.locations[blockID] {
		if !slices.Contains(keep, n) {
			delete(t.locations[blockID], n)
		}
	}
}

// ============================================================================
// Fan-out
// ============================================================================

// CollectReports asks every candidate for its replica of blockID.
//
// Calls run concurrently, bounded by Config.Concurrency, each under its own
// ReportTimeout. Nodes that are unknown, fail or time out are absent from
// the result. The result is sorted by node.
func (t *Tracker) CollectReports(ctx context.Context, blockID block.ID, candidates []block.NodeID) []block.Report {
	var (
		mu      sync.Mutex
		reports []block.Report
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)

	for _, id := range candidates {
		node, ok := t.Node(id)
		if !ok {
			logger.Debug("Skipping unregistered replica", logger.KeyNodeID, id, logger.KeyBlockID, blockID)
			continue
		}
		g.Go(func() error {
			start := time.Now()
			callCtx, cancel := context.WithTimeout(gctx, t.cfg.ReportTimeout)
			defer cancel()

			callCtx, span := telemetry.StartNodeSpan(callCtx, "report", string(id), uint64(blockID))
			defer span.End()

			r, err := node.ReportReplica(callCtx, blockID)
			t.metrics.ObserveCall(OpReport, outcomeOf(callCtx, err), time.Since(start))
			if err != nil {
				telemetry.RecordError(callCtx, err)
				logger.Warn("Replica did not report",
					logger.KeyNodeID, id,
					logger.KeyBlockID, blockID,
					logger.KeyError, err)
				return nil
			}
			r.Node = id

			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].Node < reports[j].Node })
	return reports
}

// CommitNewGenStamp asks every node to truncate its replica of blockID to
// length, stamp it with genStamp and finalize it.
//
// The returned slice has one entry per node, in the order given; a failure
// on one node never aborts the calls to the others. Successful commits
// update the recorded locations.
func (t *Tracker) CommitNewGenStamp(ctx context.Context, blockID block.ID, nodes []block.NodeID, length int64, genStamp block.GenStamp) []CommitResult {
	results := make([]CommitResult, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)

	for i, id := range nodes {
		results[i].Node = id
		node, ok := t.Node(id)
		if !ok {
			results[i].Err = mdserrors.NewNotFoundError(0, "storage node "+string(id))
			continue
		}
		g.Go(func() error {
			start := time.Now()
			callCtx, cancel := context.WithTimeout(gctx, t.cfg.CommitTimeout)
			defer cancel()

			callCtx, span := telemetry.StartNodeSpan(callCtx, "commit", string(id), uint64(blockID))
			defer span.End()

			r, err := node.CommitReplica(callCtx, blockID, length, genStamp, true)
			t.metrics.ObserveCall(OpCommit, outcomeOf(callCtx, err), time.Since(start))
			if err != nil {
				telemetry.RecordError(callCtx, err)
				logger.Warn("Replica rejected commit",
					logger.KeyNodeID, id,
					logger.KeyBlockID, blockID,
					logger.KeyGenStamp, genStamp,
					logger.KeyError, err)
				results[i].Err = err
				return nil
			}
			r.Node = id
			results[i].Report = r
			t.Received(r)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func outcomeOf(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case ctx.Err() != nil:
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
