package replica

import (
	"context"

	"github.com/marmos91/dittomds/pkg/mds/block"
)

// StorageNode is the authority's view of one storage node.
//
// Both calls are RPCs: they may block, fail or time out. The tracker never
// treats a failure as fatal; a node that does not answer is simply absent
// from the result.
type StorageNode interface {
	// ID returns the node's identity.
	ID() block.NodeID

	// ReportReplica returns the node's current state for blockID.
	ReportReplica(ctx context.Context, blockID block.ID) (block.Report, error)

	// CommitReplica truncates the node's replica to length, stamps it with
	// genStamp and, when finalize is set, seals it.
	CommitReplica(ctx context.Context, blockID block.ID, length int64, genStamp block.GenStamp, finalize bool) (block.Report, error)
}
