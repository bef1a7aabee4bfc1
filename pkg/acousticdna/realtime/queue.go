package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueClosed is returned by Add once CompleteAdding has been called.
var ErrQueueClosed = errors.New("chunk queue closed for adding")

// ChunkQueue is a bounded hand-off between one capture goroutine and one
// query session. Producers block when it is full.
type ChunkQueue struct {
	ch        chan AudioChunk
	done      chan struct{}
	closeOnce sync.Once
	completed atomic.Bool
}

func NewChunkQueue(capacity int) *ChunkQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ChunkQueue{
		ch:   make(chan AudioChunk, capacity),
		done: make(chan struct{}),
	}
}

// Add blocks until the chunk is queued, the queue is completed or ctx ends.
func (q *ChunkQueue) Add(ctx context.Context, chunk AudioChunk) error {
	if q.completed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- chunk:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAdd queues the chunk only if there is room right now.
func (q *ChunkQueue) TryAdd(chunk AudioChunk) bool {
	if q.completed.Load() {
		return false
	}
	select {
	case q.ch <- chunk:
		return true
	default:
		return false
	}
}

// CompleteAdding marks that no more chunks will be added. Chunks already
// queued are still delivered.
func (q *ChunkQueue) CompleteAdding() {
	q.closeOnce.Do(func() {
		q.completed.Store(true)
		close(q.done)
	})
}

// TryTake waits up to timeout for a chunk.
func (q *ChunkQueue) TryTake(ctx context.Context, timeout time.Duration) (AudioChunk, bool) {
	// Fast path keeps draining after completion.
	select {
	case c := <-q.ch:
		return c, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c := <-q.ch:
		return c, true
	case <-q.done:
		select {
		case c := <-q.ch:
			return c, true
		default:
			return AudioChunk{}, false
		}
	case <-timer.C:
		return AudioChunk{}, false
	case <-ctx.Done():
		return AudioChunk{}, false
	}
}

// IsClosed reports that adding is complete and every chunk has been taken.
func (q *ChunkQueue) IsClosed() bool {
	return q.completed.Load() && len(q.ch) == 0
}

func (q *ChunkQueue) Len() int {
	return len(q.ch)
}

func (q *ChunkQueue) Cap() int {
	return cap(q.ch)
}
