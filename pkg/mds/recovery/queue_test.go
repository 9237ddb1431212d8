package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittomds/pkg/mds/block"
)

type recordingRecoverer struct {
	mu      sync.Mutex
	calls   []Request
	fail    map[block.FileID]bool
	release chan struct{}
}

func (r *recordingRecoverer) Recover(ctx context.Context, fileID block.FileID, trigger Trigger) (Result, error) {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Request{FileID: fileID, Trigger: trigger})
	if r.fail[fileID] {
		return Result{State: Failed}, errors.New("boom")
	}
	return Result{State: Finalized}, nil
}

func (r *recordingRecoverer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestQueue_ProcessesRequests(t *testing.T) {
	t.Parallel()
	rec := &recordingRecoverer{fail: map[block.FileID]bool{2: true}}
	q := NewQueue(rec, Config{Workers: 2, QueueSize: 8}, nil)
	q.Start(context.Background())
	defer q.Stop(time.Second)

	assert.True(t, q.Enqueue(Request{FileID: 1, Trigger: TriggerHardExpiry}))
	assert.True(t, q.Enqueue(Request{FileID: 2, Trigger: TriggerCloseConflict}))

	require.Eventually(t, func() bool { return rec.count() == 2 && q.Pending() == 0 }, time.Second, time.Millisecond)

	pending, completed, failed := q.Stats()
	assert.Zero(t, pending)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)
}

func TestQueue_DeduplicatesAndDropsWhenFull(t *testing.T) {
	t.Parallel()
	rec := &recordingRecoverer{}
	q := NewQueue(rec, Config{Workers: 1, QueueSize: 1}, NewMetrics(nil))

	assert.True(t, q.Enqueue(Request{FileID: 1, Trigger: TriggerHardExpiry}))
	assert.False(t, q.Enqueue(Request{FileID: 1, Trigger: TriggerAdmin}), "already queued")
	assert.False(t, q.Enqueue(Request{FileID: 2, Trigger: TriggerAdmin}), "queue full")
	assert.Equal(t, 1, q.Pending())

	q.Start(context.Background())
	defer q.Stop(time.Second)
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)

	assert.True(t, q.Enqueue(Request{FileID: 1, Trigger: TriggerAdmin}), "requeue after completion")
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
}

func TestQueue_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	rec := &recordingRecoverer{release: make(chan struct{})}
	q := NewQueue(rec, Config{Workers: 1, QueueSize: 4}, nil)

	q.Stop(time.Millisecond) // not started

	q.Start(context.Background())
	q.Start(context.Background())
	require.True(t, q.Enqueue(Request{FileID: 1, Trigger: TriggerAdmin}))

	close(rec.release)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	q.Stop(time.Second)
	q.Stop(time.Second)
}
