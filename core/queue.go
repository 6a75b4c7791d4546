package core

import (
	"context"
	"sync"
)

// OperationQueue serializes operations per key. Operations submitted for the
// same key run one at a time in submission order; operations for different
// keys never contend. A failed or cancelled operation releases its slot like
// any other, so the queue never wedges.
type OperationQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
	depth map[string]int
}

func NewOperationQueue() *OperationQueue {
	return &OperationQueue{
		tails: map[string]chan struct{}{},
		depth: map[string]int{},
	}
}

// Do runs fn after every previously submitted operation for key has
// finished. The wait for predecessors honors ctx; fn itself receives the
// same ctx and handles its own cancellation.
func (q *OperationQueue) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if q == nil {
		return fn(ctx)
	}

	q.mu.Lock()
	predecessor := q.tails[key]
	done := make(chan struct{})
	q.tails[key] = done
	q.depth[key]++
	q.mu.Unlock()

	release := func() {
		close(done)
		q.mu.Lock()
		q.depth[key]--
		if q.depth[key] <= 0 {
			delete(q.depth, key)
			if q.tails[key] == done {
				delete(q.tails, key)
			}
		}
		q.mu.Unlock()
	}

	if predecessor != nil {
		select {
		case <-predecessor:
		case <-ctx.Done():
			// Still have to close done so successors are not orphaned.
			go func() {
				<-predecessor
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return fn(ctx)
}

// Pending reports how many operations are queued or running for key.
func (q *OperationQueue) Pending(key string) int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth[key]
}

// EnqueueOperation runs fn on q under key and carries a typed result out.
func EnqueueOperation[T any](ctx context.Context, q *OperationQueue, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := q.Do(ctx, key, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}
