package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexscholar/nexscholar/core"
)

const backlog = 1024

// Queue runs dispatched jobs on a fixed pool of workers.
type Queue struct {
	workers      int
	defaultDelay time.Duration
	logger       core.Logger

	jobs    chan core.Job
	done    chan struct{}
	pending sync.WaitGroup

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
	cancel context.CancelFunc
	group  *errgroup.Group
}

var _ core.JobDispatcher = (*Queue)(nil)

func New(conf *core.Config, logger core.Logger) *Queue {
	workers := conf.Queue.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		workers:      workers,
		defaultDelay: conf.Queue.DefaultDelay,
		logger:       logger,
		jobs:         make(chan core.Job, backlog),
		done:         make(chan struct{}),
		timers:       make(map[*time.Timer]struct{}),
	}
}

// Start launches the workers; they stop with `ctx` or Stop.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			q.work(ctx)
			return nil
		})
	}

	q.mu.Lock()
	q.cancel = cancel
	q.group = g
	q.mu.Unlock()
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.run(ctx, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, job core.Job) {
	defer q.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error(fmt.Sprintf("queue: job %s panicked: %v", job.Name, r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		q.logger.Error(fmt.Sprintf("queue: job %s failed: %v", job.Name, err), err)
		return
	}
	q.logger.Debug(fmt.Sprintf("queue: job %s done in %s", job.Name, time.Since(start)))
}

// Dispatch queues `job`; a zero delay falls back to the configured default.
// Jobs dispatched after Stop are dropped.
func (q *Queue) Dispatch(job core.Job, delay time.Duration) {
	if delay == 0 {
		delay = q.defaultDelay
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn(fmt.Sprintf("queue: dropping job %s, queue stopped", job.Name))
		return
	}
	q.pending.Add(1)

	if delay <= 0 {
		go q.enqueue(job)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		q.enqueue(job)
	})
	q.timers[timer] = struct{}{}
}

func (q *Queue) enqueue(job core.Job) {
	select {
	case <-q.done:
		q.pending.Done()
		return
	default:
	}
	select {
	case q.jobs <- job:
	case <-q.done:
		q.pending.Done()
	}
}

// Wait blocks until every dispatched job ran, including delayed ones, or `ctx` is done.
func (q *Queue) Wait(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drops the jobs that did not start yet and waits for the running ones.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for timer := range q.timers {
		if timer.Stop() {
			q.pending.Done()
		}
	}
	q.timers = nil
	close(q.done)
	cancel, group := q.cancel, q.group
	q.mu.Unlock()

	if cancel != nil {
		cancel()
		_ = group.Wait()
	}
	// drain what the workers left behind
	for {
		select {
		case <-q.jobs:
			q.pending.Done()
		default:
			return
		}
	}
}
