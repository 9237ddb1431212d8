package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

// Request asks for recovery of one file.
type Request struct {
	FileID  block.FileID
	Trigger Trigger
}

// Recoverer runs one recovery attempt. *Coordinator implements it.
type Recoverer interface {
	Recover(ctx context.Context, fileID block.FileID, trigger Trigger) (Result, error)
}

// Queue feeds recovery requests to a fixed pool of workers.
//
// Enqueue never blocks: when the queue is full the request is dropped and
// the next sweep offers it again. A file is queued at most once at a time.
type Queue struct {
	recoverer Recoverer
	metrics   *Metrics

	requests chan Request
	workers  int

	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu        sync.Mutex
	started   bool
	pending   map[block.FileID]struct{}
	completed int
	failed    int
}

// NewQueue creates a queue. It does nothing until Start is called.
func NewQueue(r Recoverer, cfg Config, metrics *Metrics) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Queue{
		recoverer: r,
		metrics:   metrics,
		requests:  make(chan Request, cfg.QueueSize),
		workers:   cfg.Workers,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		pending:   make(map[block.FileID]struct{}),
	}
}

// Start launches the workers. Calling Start twice has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	logger.Info("Starting recovery queue", "workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	go func() {
		q.wg.Wait()
		close(q.stoppedCh)
	}()
}

// Stop signals the workers and waits up to timeout for the running
// attempts to finish. Queued requests that did not start are discarded.
// Safe to call multiple times.
func (q *Queue) Stop(timeout time.Duration) {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	q.stopOnce.Do(func() { close(q.stopCh) })
	select {
	case <-q.stoppedCh:
		logger.Info("Recovery queue stopped")
	case <-time.After(timeout):
		logger.Warn("Recovery queue stop timed out", "pending", q.Pending())
	}
}

// Enqueue offers a request. It returns false if the file is already queued
// or the queue is full.
func (q *Queue) Enqueue(req Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[req.FileID]; ok {
		return false
	}
	select {
	case q.requests <- req:
		q.pending[req.FileID] = struct{}{}
		q.metrics.SetQueueDepth(len(q.pending))
		return true
	default:
		q.metrics.ObserveDropped()
		logger.Warn("Recovery queue full, dropping request",
			logger.KeyFileID, req.FileID,
			logger.KeyTrigger, req.Trigger)
		return false
	}
}

// Pending returns the number of queued or running requests.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns queue statistics.
func (q *Queue) Stats() (pending, completed, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), q.completed, q.failed
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case req := <-q.requests:
			q.process(ctx, req)
		}
	}
}

func (q *Queue) process(ctx context.Context, req Request) {
	lc := logger.NewLogContext("recover").WithFile(uint64(req.FileID))
	_, err := q.recoverer.Recover(logger.WithContext(ctx, lc), req.FileID, req.Trigger)

	q.mu.Lock()
	delete(q.pending, req.FileID)
	if err != nil {
		q.failed++
	} else {
		q.completed++
	}
	q.metrics.SetQueueDepth(len(q.pending))
	q.mu.Unlock()
}
