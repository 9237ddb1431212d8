// Package store defines the replica metadata store of a storage node.
//
// A store persists one Replica record per block. Implementations must be
// safe for concurrent use; the node serializes updates of a single block
// itself, so stores only need per-call atomicity.
package store

import (
	"context"
	"time"

	"github.com/marmos91/dittomds/pkg/mds/block"
)

// Replica is a storage node's record of one block.
type Replica struct {
	// Block is the replica's identity. For a replica being written, Length
	// equals BytesOnDisk.
	Block block.Identity `json:"block"`

	// State is RBW while the client pipeline writes, FINALIZED once sealed.
	State block.ReplicaState `json:"state"`

	// BytesOnDisk is how many bytes the node holds for the block.
	BytesOnDisk int64 `json:"bytes_on_disk"`

	// Updated is when the record last changed.
	Updated time.Time `json:"updated"`
}

// ReplicaStore persists replica records.
type ReplicaStore interface {
	// GetReplica returns the replica of id, or a NotFound error.
	GetReplica(ctx context.Context, id block.ID) (*Replica, error)

	// PutReplica creates or replaces the replica record.
	PutReplica(ctx context.Context, r *Replica) error

	// DeleteReplica removes the replica of id. Deleting a missing replica
	// is not an error.
	DeleteReplica(ctx context.Context, id block.ID) error

	// ListReplicas returns every replica ordered by block ID.
	ListReplicas(ctx context.Context) ([]*Replica, error)

	// Close releases the store's resources.
	Close() error
}
