// Package session tracks the write sessions of files: which block is the
// last one, how far it has been synced, and where it is in its lifecycle.
//
// A session is keyed by block.FileID and carries the namespace binding
// epoch observed when it was opened. A rename or delete bumps the epoch in
// the namespace; the session notices only when the writer tries to close.
//
// Lifecycle of the last block:
//
//	UNDER_CONSTRUCTION --close--> COMMITTED --replica confirms--> COMPLETE
//	UNDER_CONSTRUCTION --recovery finalize----------------------> COMPLETE
//
// The Table serializes access to its map but does not serialize multi-step
// operations on one file; callers hold a per-file lock for that.
package session

import (
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
	"github.com/marmos91/dittomds/pkg/mds/lease"
)

// Session is a snapshot of a file's write session.
type Session struct {
	FileID       block.FileID     `json:"file_id"`
	Blocks       []block.Identity `json:"blocks"`
	Last         block.Identity   `json:"last"`
	State        block.State      `json:"state"`
	BindingEpoch uint64           `json:"binding_epoch"`
	Opened       time.Time        `json:"opened"`
	Orphaned     bool             `json:"orphaned"`
	OrphanedAt   time.Time        `json:"orphaned_at,omitzero"`
	Recovering   bool             `json:"recovering"`
}

// Length returns the file length implied by the session.
func (s Session) Length() int64 {
	n := s.Last.Length
	for _, b := range s.Blocks {
		n += b.Length
	}
	return n
}

func (s *Session) clone() Session {
	c := *s
	c.Blocks = slices.Clone(s.Blocks)
	return c
}

// LeaseView answers who holds the lease on a file.
type LeaseView interface {
	Get(fileID block.FileID) (lease.Lease, bool)
}

// BindingView answers the current namespace binding epoch of a file.
// bound is false once the file no longer has any path.
type BindingView interface {
	BindingEpoch(fileID block.FileID) (epoch uint64, bound bool)
}

// Table holds all sessions.
type Table struct {
	alloc *block.Allocator
	clock lease.Clock

	mu       sync.RWMutex
	sessions map[block.FileID]*Session
	byBlock  map[block.ID]block.FileID
}

// NewTable creates an empty table that allocates blocks from alloc.
func NewTable(alloc *block.Allocator, clock lease.Clock) *Table {
	if clock == nil {
		clock = lease.SystemClock()
	}
	return &Table{
		alloc:    alloc,
		clock:    clock,
		sessions: make(map[block.FileID]*Session),
		byBlock:  make(map[block.ID]block.FileID),
	}
}

// Open starts a write session with a fresh last block.
//
// Opening a COMPLETE file appends: its last block joins Blocks and a new
// block is allocated. Opening a file whose session is still in progress
// fails with AlreadyLeased.
func (t *Table) Open(fileID block.FileID, epoch uint64) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	s, ok := t.sessions[fileID]
	switch {
	case !ok:
		s = &Session{FileID: fileID}
		t.sessions[fileID] = s
	case s.State != block.Complete:
		return Session{}, mdserrors.New(mdserrors.ErrAlreadyLeased, uint64(fileID),
			"write session in state %s", s.State)
	default:
		s.Blocks = append(s.Blocks, s.Last)
	}

	s.Last = t.alloc.NewBlock()
	t.byBlock[s.Last.ID] = fileID
	s.State = block.UnderConstruction
	s.BindingEpoch = epoch
	s.Opened = now
	s.Orphaned = false
	s.OrphanedAt = time.Time{}
	s.Recovering = false

	logger.Debug("Session opened",
		logger.KeyFileID, fileID,
		logger.KeyBlockID, s.Last.ID,
		logger.KeyGenStamp, s.Last.GenStamp,
		logger.KeyEpoch, epoch)
	return s.clone(), nil
}

// active returns the session if it accepts writer operations.
func (t *Table) active(fileID block.FileID) (*Session, error) {
	s, ok := t.sessions[fileID]
	switch {
	case !ok:
		return nil, mdserrors.NewNoActiveSessionError(uint64(fileID), "not open for write")
	case s.State != block.UnderConstruction:
		return nil, mdserrors.NewNoActiveSessionError(uint64(fileID), "last block is "+s.State.String())
	case s.Recovering:
		return nil, mdserrors.NewNoActiveSessionError(uint64(fileID), "recovery in progress")
	}
	return s, nil
}

// RecordSync advances the synced length of the last block.
func (t *Table) RecordSync(fileID block.FileID, length int64) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.active(fileID)
	if err != nil {
		return Session{}, err
	}
	if length < s.Last.Length {
		return Session{}, mdserrors.NewInvalidArgumentError(uint64(fileID), "synced length cannot shrink")
	}
	s.Last.Length = length
	return s.clone(), nil
}

// AddBlock seals the last block at its synced length and allocates the next one.
func (t *Table) AddBlock(fileID block.FileID) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.active(fileID)
	if err != nil {
		return Session{}, err
	}
	s.Blocks = append(s.Blocks, s.Last)
	s.Last = t.alloc.NewBlock()
	t.byBlock[s.Last.ID] = fileID
	return s.clone(), nil
}

// AttemptClose commits the last block if holder may still close the file.
//
// Close succeeds only while holder holds the lease, the namespace binding
// epoch is the one observed at open, and no recovery is in flight. On
// conflict the session is marked orphaned and stays UNDER_CONSTRUCTION;
// the lease is left untouched for recovery to release.
func (t *Table) AttemptClose(holder block.HolderID, fileID block.FileID, leases LeaseView, bindings BindingView) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[fileID]
	if !ok {
		return Session{}, mdserrors.NewNoActiveSessionError(uint64(fileID), "not open for write")
	}
	if s.State != block.UnderConstruction {
		return s.clone(), mdserrors.NewNoActiveSessionError(uint64(fileID), "already closed")
	}

	var reason string
	if l, held := leases.Get(fileID); !held || l.Holder != holder {
		reason = "lease not held by " + string(holder)
	} else if epoch, bound := bindings.BindingEpoch(fileID); !bound {
		reason = "file was deleted"
	} else if epoch != s.BindingEpoch {
		reason = "file was renamed or moved"
	} else if s.Recovering {
		reason = "recovery in progress"
	}

	if reason != "" {
		if !s.Orphaned {
			s.Orphaned = true
			s.OrphanedAt = t.clock.Now()
		}
		logger.Info("Close rejected, session orphaned",
			logger.KeyFileID, fileID,
			logger.KeyHolder, holder,
			logger.KeyBlockID, s.Last.ID,
			"reason", reason)
		return s.clone(), mdserrors.NewCloseConflictError(uint64(fileID), reason)
	}

	s.State = block.Committed
	return s.clone(), nil
}

// Complete moves a COMMITTED session to COMPLETE once a replica reports the
// last block finalized at the committed length. It reports whether the
// session completed.
func (t *Table) Complete(fileID block.FileID, reported block.Identity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[fileID]
	if !ok || s.State != block.Committed {
		return false
	}
	if reported.ID != s.Last.ID || reported.Length != s.Last.Length || reported.GenStamp < s.Last.GenStamp {
		return false
	}
	s.Last.GenStamp = reported.GenStamp
	s.State = block.Complete
	return true
}

// BeginRecovery flags the session as recovering and returns its snapshot.
func (t *Table) BeginRecovery(fileID block.FileID) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[fileID]
	if !ok {
		return Session{}, mdserrors.NewNotFoundError(uint64(fileID), "write session")
	}
	if s.State == block.Complete {
		return Session{}, mdserrors.NewNoActiveSessionError(uint64(fileID), "already complete")
	}
	s.Recovering = true
	return s.clone(), nil
}

// EndRecovery clears the recovering flag after a failed attempt.
func (t *Table) EndRecovery(fileID block.FileID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[fileID]; ok {
		s.Recovering = false
	}
}

// Finalize makes agreed the final identity of the last block.
//
// Finalizing twice with the same identity is a no-op. Finalizing a COMPLETE
// session with a different identity, or with a block that is not the last
// block, fails with RecoveryMismatch.
func (t *Table) Finalize(fileID block.FileID, agreed block.Identity) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[fileID]
	if !ok {
		return Session{}, mdserrors.NewNotFoundError(uint64(fileID), "write session")
	}
	if s.State == block.Complete {
		if s.Last == agreed {
			return s.clone(), nil
		}
		return Session{}, mdserrors.NewRecoveryMismatchError(uint64(fileID), s.Last.String(), agreed.String())
	}
	if agreed.ID != s.Last.ID {
		return Session{}, mdserrors.NewRecoveryMismatchError(uint64(fileID), s.Last.String(), agreed.String())
	}
	if agreed.GenStamp < s.Last.GenStamp {
		return Session{}, mdserrors.NewStaleGenStampError(uint64(agreed.ID), uint64(s.Last.GenStamp), uint64(agreed.GenStamp))
	}

	s.Last = agreed
	s.State = block.Complete
	s.Orphaned = false
	s.OrphanedAt = time.Time{}
	s.Recovering = false

	logger.Info("Last block finalized",
		logger.KeyFileID, fileID,
		logger.KeyBlockID, agreed.ID,
		logger.KeyGenStamp, agreed.GenStamp,
		logger.KeyLength, agreed.Length)
	return s.clone(), nil
}

// Get returns the session of fileID.
func (t *Table) Get(fileID block.FileID) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[fileID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// FileOf returns the file that owns blockID.
func (t *Table) FileOf(blockID block.ID) (block.FileID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.byBlock[blockID]
	return id, ok
}

// Orphaned yields files whose session was orphaned at least grace ago and
// is not already being recovered.
func (t *Table) Orphaned(now time.Time, grace time.Duration) iter.Seq[block.FileID] {
	return func(yield func(block.FileID) bool) {
		t.mu.RLock()
		var ids []block.FileID
		for id, s := range t.sessions {
			if s.Orphaned && !s.Recovering && s.State != block.Complete && !now.Before(s.OrphanedAt.Add(grace)) {
				ids = append(ids, id)
			}
		}
		t.mu.RUnlock()

		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}
