// Package lease implements the write-lease registry of the metadata authority.
//
// A lease grants one holder the exclusive right to write a file. Leases are
// keyed by block.FileID, never by path, so a rename or delete in the
// namespace leaves the lease exactly where it was.
//
// Every lease carries two deadlines. Past the soft expiry, another writer
// may ask for the file and force recovery. Past the hard expiry, the
// background sweep recovers the file on its own.
//
// Thread Safety:
// Registry is safe for concurrent use. The table is partitioned into shards
// by FileID and each shard has its own lock; there is no registry-wide lock.
package lease

import (
	"iter"
	"sync"
	"time"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
)

// Lease is a snapshot of one write lease.
type Lease struct {
	Holder     block.HolderID `json:"holder"`
	FileID     block.FileID   `json:"file_id"`
	Acquired   time.Time      `json:"acquired"`
	Renewed    time.Time      `json:"renewed"`
	SoftExpiry time.Time      `json:"soft_expiry"`
	HardExpiry time.Time      `json:"hard_expiry"`
}

// SoftExpired reports whether the soft limit has passed at now.
func (l Lease) SoftExpired(now time.Time) bool {
	return !now.Before(l.SoftExpiry)
}

// HardExpired reports whether the hard limit has passed at now.
func (l Lease) HardExpired(now time.Time) bool {
	return !now.Before(l.HardExpiry)
}

type shard struct {
	mu     sync.RWMutex
	leases map[block.FileID]*Lease
}

// Registry tracks the write leases of all files.
type Registry struct {
	cfg     Config
	clock   Clock
	metrics *Metrics
	shards  []*shard
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultConfig().Shards
	}
	r := &Registry{
		cfg:    cfg,
		clock:  SystemClock(),
		shards: make([]*shard, cfg.Shards),
	}
	for i := range r.shards {
		r.shards[i] = &shard{leases: make(map[block.FileID]*Lease)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) shardFor(id block.FileID) *shard {
	return r.shards[uint64(id)%uint64(len(r.shards))]
}

// Now returns the registry's notion of the current time.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// Config returns the lease limits in effect.
func (r *Registry) Config() Config {
	return r.cfg
}

func (r *Registry) extend(l *Lease, now time.Time) {
	l.Renewed = now
	l.SoftExpiry = now.Add(r.cfg.SoftLimit)
	l.HardExpiry = now.Add(r.cfg.HardLimit)
}

// Acquire grants holder the lease on fileID.
//
// If holder already owns the lease it is renewed. If another holder owns a
// lease that has not hard-expired, Acquire fails with AlreadyLeased. A
// hard-expired lease of another holder is taken over.
func (r *Registry) Acquire(holder block.HolderID, fileID block.FileID) (Lease, error) {
	now := r.clock.Now()
	s := r.shardFor(fileID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.leases[fileID]; ok {
		switch {
		case cur.Holder == holder:
			r.extend(cur, now)
			r.metrics.ObserveAcquire(StatusRenewed)
			return *cur, nil
		case !cur.HardExpired(now):
			r.metrics.ObserveAcquire(StatusDenied)
			return Lease{}, mdserrors.NewAlreadyLeasedError(uint64(fileID), string(cur.Holder))
		default:
			logger.Info("Taking over hard-expired lease",
				logger.KeyFileID, fileID,
				"previous_holder", cur.Holder,
				logger.KeyHolder, holder)
			r.metrics.ObserveRelease(ReasonTakeover)
			delete(s.leases, fileID)
			r.metrics.AddActive(-1)
		}
	}

	l := &Lease{Holder: holder, FileID: fileID, Acquired: now}
	r.extend(l, now)
	s.leases[fileID] = l

	r.metrics.ObserveAcquire(StatusGranted)
	r.metrics.AddActive(1)
	logger.Debug("Lease acquired", logger.KeyFileID, fileID, logger.KeyHolder, holder)
	return *l, nil
}

// Renew pushes both deadlines of holder's lease on fileID forward.
func (r *Registry) Renew(holder block.HolderID, fileID block.FileID) (Lease, error) {
	now := r.clock.Now()
	s := r.shardFor(fileID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[fileID]
	if !ok || cur.Holder != holder {
		return Lease{}, mdserrors.NewNotLeaseHolderError(uint64(fileID), string(holder))
	}
	r.extend(cur, now)
	r.metrics.ObserveRenew()
	return *cur, nil
}

// RenewAll renews every lease owned by holder and returns how many were
// renewed. This is the client heartbeat.
func (r *Registry) RenewAll(holder block.HolderID) int {
	now := r.clock.Now()
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for _, l := range s.leases {
			if l.Holder == holder {
				r.extend(l, now)
				n++
			}
		}
		s.mu.Unlock()
	}
	if n > 0 {
		r.metrics.ObserveRenew()
	}
	return n
}

// Release removes holder's lease on fileID.
func (r *Registry) Release(holder block.HolderID, fileID block.FileID) error {
	s := r.shardFor(fileID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[fileID]
	if !ok || cur.Holder != holder {
		return mdserrors.NewNotLeaseHolderError(uint64(fileID), string(holder))
	}
	delete(s.leases, fileID)
	r.metrics.ObserveRelease(ReasonExplicit)
	r.metrics.AddActive(-1)
	logger.Debug("Lease released", logger.KeyFileID, fileID, logger.KeyHolder, holder)
	return nil
}

// Get returns the lease on fileID, if any.
func (r *Registry) Get(fileID block.FileID) (Lease, bool) {
	s := r.shardFor(fileID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leases[fileID]
	if !ok {
		return Lease{}, false
	}
	return *l, true
}

// Len returns the number of leases held.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.leases)
		s.mu.RUnlock()
	}
	return n
}

// Expired yields the files whose lease has hard-expired at now.
//
// The sequence is lazy: shards are visited one at a time and no shard lock
// is held while the consumer runs, so the consumer is free to call back
// into the registry.
func (r *Registry) Expired(now time.Time) iter.Seq[block.FileID] {
	return func(yield func(block.FileID) bool) {
		var batch []block.FileID
		for _, s := range r.shards {
			batch = batch[:0]
			s.mu.RLock()
			for id, l := range s.leases {
				if l.HardExpired(now) {
					batch = append(batch, id)
				}
			}
			s.mu.RUnlock()

			for _, id := range batch {
				if !yield(id) {
					return
				}
			}
		}
	}
}
