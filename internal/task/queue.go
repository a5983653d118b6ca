// Package task provides the background dispatch queue decoupling submission
// requests from job execution. Dispatch is non-blocking and each dispatched
// job is delivered to exactly one worker.
package task

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned when the dispatch buffer has no capacity left.
var ErrQueueFull = errors.New("background task queue is full")

// Job is one dispatched unit of background work. The worker reads the
// persisted parameter document from the workspace by token; the dispatch
// message stays small on purpose.
type Job struct {
	Token         string
	NotifyAddress string
}

// Handler executes one job. Errors are terminal for the job and already
// recorded as workspace markers by the handler itself; the queue only logs
// them.
type Handler func(ctx context.Context, job Job) error

// Queue is a buffered dispatch queue consumed by a fixed worker pool.
type Queue struct {
	jobs    chan Job
	handler Handler
	log     zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	closed  bool
}

// NewQueue creates a queue with the given buffer capacity.
func NewQueue(size int, handler Handler, log zerolog.Logger) *Queue {
	return &Queue{
		jobs:    make(chan Job, size),
		handler: handler,
		log:     log,
	}
}

// Start launches the worker pool. Workers drain the queue until Shutdown is
// called or ctx is cancelled.
func (q *Queue) Start(ctx context.Context, workers int) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.log.Info().Int("worker", id).Str("job_id", job.Token).Msg("Starting background job")
			if err := q.handler(ctx, job); err != nil {
				q.log.Error().Err(err).Str("job_id", job.Token).Msg("Background job failed")
			} else {
				q.log.Info().Str("job_id", job.Token).Msg("Background job finished")
			}
		}
	}
}

// Dispatch hands one job to the worker pool without blocking. Returns
// ErrQueueFull when the buffer is exhausted so the submitter can surface a
// retry-later message instead of hanging the request.
func (q *Queue) Dispatch(job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("background task queue is shut down")
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for in-flight work to finish.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.jobs)
	q.wg.Wait()
}
