package recovery

import (
	"sync"
	"time"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/mds/lease"
	"github.com/marmos91/dittomds/pkg/mds/session"
)

// DefaultSweepInterval is how often the sweep runs when none is configured.
const DefaultSweepInterval = 2 * time.Second

// Enqueuer accepts recovery requests. *Queue implements it.
type Enqueuer interface {
	Enqueue(req Request) bool
}

// Sweeper periodically looks for files that need recovery and hands them
// to the queue:
//   - files whose lease has hard-expired,
//   - files whose session was orphaned by a rejected close for longer than
//     the orphan grace period.
//
// Files that failed recently are skipped until their backoff expires, and
// files marked unrecoverable are skipped for good.
type Sweeper struct {
	leases      *lease.Registry
	sessions    *session.Table
	coordinator *Coordinator
	queue       Enqueuer
	grace       time.Duration
	interval    time.Duration

	stop    chan struct{}
	stopped chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper. interval 0 means DefaultSweepInterval.
func NewSweeper(leases *lease.Registry, sessions *session.Table, c *Coordinator, q Enqueuer, grace, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		leases:      leases,
		sessions:    sessions,
		coordinator: c,
		queue:       q,
		grace:       grace,
		interval:    interval,
	}
}

// Start begins the background sweep loop.
// Safe to call multiple times (subsequent calls are no-ops).
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
}

// Stop stops the sweep loop and blocks until it has exited.
// Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	<-s.stopped
}

// IsRunning returns true if the sweep loop is running.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) loop() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepOnce(s.leases.Now())
		}
	}
}

// SweepOnce runs one pass at now and returns how many requests it queued.
func (s *Sweeper) SweepOnce(now time.Time) int {
	queued := 0
	offer := func(req Request) {
		if !s.coordinator.Due(req.FileID, now) {
			return
		}
		if s.queue.Enqueue(req) {
			queued++
		}
	}

	for id := range s.leases.Expired(now) {
		offer(Request{FileID: id, Trigger: TriggerHardExpiry})
	}
	for id := range s.sessions.Orphaned(now, s.grace) {
		offer(Request{FileID: id, Trigger: TriggerCloseConflict})
	}

	if queued > 0 {
		logger.Debug("Recovery sweep queued files", "queued", queued)
	}
	return queued
}
