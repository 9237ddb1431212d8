// Package block defines the identities shared by every component of the
// authority: files, lease holders, blocks, generation stamps and storage
// nodes, plus the replica report exchanged with storage nodes.
package block

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// FileID is the stable identity of a file. It never changes across renames
// or deletes of the path that names it.
type FileID uint64

func (id FileID) String() string { return strconv.FormatUint(uint64(id), 10) }

// HolderID names the client that owns a write lease.
type HolderID string

// NodeID names a storage node.
type NodeID string

// ID is the immutable identifier of a block.
type ID uint64

func (id ID) String() string { return "blk_" + strconv.FormatUint(uint64(id), 10) }

// GenStamp is a block generation stamp. Generation stamps are totally
// ordered and only ever increase for a given block.
type GenStamp uint64

// InitialGenStamp is the first generation stamp handed out by an Allocator.
const InitialGenStamp GenStamp = 1000

// Identity is the triple that names one version of a block.
type Identity struct {
	ID       ID       `json:"id"`
	GenStamp GenStamp `json:"gen_stamp"`
	Length   int64    `json:"length"`
}

func (b Identity) String() string {
	return fmt.Sprintf("%s_%d(len=%d)", b.ID, b.GenStamp, b.Length)
}

// State is the lifecycle state of a file's block as seen by the authority.
type State int

const (
	// UnderConstruction blocks accept writes and length changes.
	UnderConstruction State = iota
	// Committed blocks have a frozen length and wait for a replica to confirm it.
	Committed
	// Complete blocks are immutable.
	Complete
)

func (s State) String() string {
	switch s {
	case UnderConstruction:
		return "UNDER_CONSTRUCTION"
	case Committed:
		return "COMMITTED"
	case Complete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for c := UnderConstruction; c <= Complete; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown block state %q", b)
}

// ReplicaState is the state of a replica on a storage node.
type ReplicaState int

const (
	// ReplicaBeingWritten replicas may still grow.
	ReplicaBeingWritten ReplicaState = iota
	// ReplicaFinalized replicas are sealed at their length and generation stamp.
	ReplicaFinalized
)

func (s ReplicaState) String() string {
	if s == ReplicaFinalized {
		return "FINALIZED"
	}
	return "RBW"
}

// MarshalText encodes the replica state by name.
func (s ReplicaState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a replica state name.
func (s *ReplicaState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "FINALIZED":
		*s = ReplicaFinalized
	case "RBW":
		*s = ReplicaBeingWritten
	default:
		return fmt.Errorf("unknown replica state %q", b)
	}
	return nil
}

// Report is what a storage node says about its copy of a block.
type Report struct {
	Node  NodeID       `json:"node"`
	Block Identity     `json:"block"`
	State ReplicaState `json:"state"`
}

// Allocator hands out block IDs and generation stamps. Both counters are
// global to the authority.
type Allocator struct {
	nextID       atomic.Uint64
	nextGenStamp atomic.Uint64
}

// NewAllocator creates an allocator whose first generation stamp is
// InitialGenStamp.
func NewAllocator() *Allocator {
	a := &Allocator{}
	a.nextID.Store(1)
	a.nextGenStamp.Store(uint64(InitialGenStamp))
	return a
}

// NewBlock allocates a zero-length block with a fresh ID and generation stamp.
func (a *Allocator) NewBlock() Identity {
	return Identity{
		ID:       ID(a.nextID.Add(1) - 1),
		GenStamp: GenStamp(a.nextGenStamp.Add(1) - 1),
	}
}

// Observe raises the global generation stamp counter above gs so later
// allocations never reuse a stamp that recovery already assigned.
func (a *Allocator) Observe(gs GenStamp) {
	for {
		cur := a.nextGenStamp.Load()
		if uint64(gs) < cur {
			return
		}
		if a.nextGenStamp.CompareAndSwap(cur, uint64(gs)+1) {
			return
		}
	}
}
