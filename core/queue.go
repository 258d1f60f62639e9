package core

import (
	"context"
	"time"
)

// Job is a unit of background work run by a JobDispatcher.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// JobDispatcher runs jobs in the background, after `delay` when it is positive.
// Failed jobs are logged, never retried.
type JobDispatcher interface {
	Dispatch(job Job, delay time.Duration)
}
