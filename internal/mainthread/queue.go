// Package mainthread queues callbacks from background goroutines for
// execution on a single consumer goroutine.
//
// DCC scripting APIs are only safe to call from the host's main thread.
// Background readers (such as the host bridge) post work with Post or Call;
// the main thread drains the queue on a timer with Run, or explicitly with
// Drain from its own event loop.
//
//	q := mainthread.New(logger)
//	go q.Run(ctx, 50*time.Millisecond)
//	v, err := q.Call(ctx, func() (any, error) { return graph.Nodes(ctx) })
package mainthread

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ynput/openpype/internal/logging"
)

// DefaultInterval is the poll interval used when Run is given none.
const DefaultInterval = 50 * time.Millisecond

// Queue is a FIFO of callbacks with a single consumer. It is safe for
// concurrent producers.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	logger  *logging.Logger
}

// New creates an empty queue.
func New(logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Queue{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Post enqueues fn and returns immediately.
func (q *Queue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

type callResult struct {
	value any
	err   error
}

// Call posts fn and waits for its result. If ctx ends first, Call returns
// the context error; fn may still run later.
func (q *Queue) Call(ctx context.Context, fn func() (any, error)) (any, error) {
	done := make(chan callResult, 1)
	q.Post(func() {
		var res callResult
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("main thread callback panicked: %v", r)
			}
			done <- res
		}()
		res.value, res.err = fn()
	})

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of callbacks waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain runs every callback queued at the time of the call, in order, and
// returns how many ran. Callbacks posted while draining wait for the next
// pass.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range batch {
		q.safeCall(fn)
	}
	return len(batch)
}

// Run drains the queue every interval and whenever work is posted, until
// ctx is done. Run must only be called from the consumer goroutine.
func (q *Queue) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-q.wake:
		}
		if n := q.Drain(); n > 0 {
			q.logger.Debug("main thread queue drained", "callbacks", n)
		}
	}
}

func (q *Queue) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("main thread callback panicked", "panic", r)
		}
	}()
	fn()
}
