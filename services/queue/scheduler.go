package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexscholar/nexscholar/core"
)

type entry struct {
	name    string
	every   time.Duration
	run     func(ctx context.Context) error
	running atomic.Bool
}

// Scheduler runs named jobs periodically. A run is skipped while the previous run of the
// same job is still going.
type Scheduler struct {
	logger  core.Logger
	entries map[string]*entry
	order   []string
	runs    sync.WaitGroup
}

func NewScheduler(logger core.Logger) *Scheduler {
	return &Scheduler{logger: logger, entries: make(map[string]*entry)}
}

// Every registers `run` under `name`; registering a name twice replaces the job.
func (s *Scheduler) Every(name string, every time.Duration, run func(ctx context.Context) error) *Scheduler {
	if _, ok := s.entries[name]; !ok {
		s.order = append(s.order, name)
	}
	s.entries[name] = &entry{name: name, every: every, run: run}
	return s
}

func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.order...)
}

// Tick starts one run of `name` in the background and reports whether it did; it does not
// when the job is unknown or still running.
func (s *Scheduler) Tick(ctx context.Context, name string) bool {
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	if !e.running.CompareAndSwap(false, true) {
		s.logger.Info(fmt.Sprintf("scheduler: %s still running, skipping", name))
		return false
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer e.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(fmt.Sprintf("scheduler: %s panicked: %v", name, r))
			}
		}()

		start := time.Now()
		if err := e.run(ctx); err != nil {
			s.logger.Error(fmt.Sprintf("scheduler: %s failed: %v", name, err), err)
			return
		}
		s.logger.Info(fmt.Sprintf("scheduler: %s done in %s", name, time.Since(start)))
	}()
	return true
}

// Run ticks every job at its interval until `ctx` is done, then waits for the runs in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range s.order {
		e := s.entries[name]
		g.Go(func() error {
			ticker := time.NewTicker(e.every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.Tick(ctx, e.name)
				}
			}
		})
	}
	err := g.Wait()
	s.runs.Wait()
	return err
}
