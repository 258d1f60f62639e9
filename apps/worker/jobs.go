package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/scholar"
	"github.com/nexscholar/nexscholar/core/search"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/services/queue"
)

const (
	jobExpireRequests    = "supervision.expire"
	jobGenerateEmbedding = "embeddings.generate"
	jobSyncPrograms      = "embeddings.programs"
	jobScholarSync       = "scholar.sync"
)

type jobs struct {
	logger      core.Logger
	supervision *supervision.Service
	search      *search.Service // nil when not configured
	scholar     *scholar.Service
}

func (j jobs) register(s *queue.Scheduler) *queue.Scheduler {
	s.Every(jobExpireRequests, time.Hour, j.expireRequests)
	if j.search != nil {
		s.Every(jobGenerateEmbedding, time.Hour, j.generateEmbeddings)
		s.Every(jobSyncPrograms, 24*time.Hour, j.syncPrograms)
	}
	s.Every(jobScholarSync, 7*24*time.Hour, j.syncScholar)
	return s
}

func (j jobs) expireRequests(ctx context.Context) error {
	n, err := j.supervision.ExpireStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info(fmt.Sprintf("%d supervision request(s) expired", n))
	}
	return nil
}

func (j jobs) generateEmbeddings(ctx context.Context) error {
	report, err := j.search.GenerateMissing(ctx)
	if err != nil {
		return err
	}
	j.logger.Info(fmt.Sprintf("embeddings: %d processed, %d failed", report.Processed, report.Failed))
	return nil
}

func (j jobs) syncPrograms(ctx context.Context) error {
	report, err := j.search.SyncPrograms(ctx)
	if err != nil {
		return err
	}
	j.logger.Info(fmt.Sprintf("program embeddings: %d processed, %d failed", report.Processed, report.Failed))
	return nil
}

// syncScholar dispatches the profile jobs on the queue and waits for all of them.
func (j jobs) syncScholar(ctx context.Context) error {
	run, err := j.scholar.SyncAll(ctx)
	if err != nil {
		return err
	}
	report, err := run.Wait(ctx)
	if err != nil {
		return err
	}
	j.logger.Info(fmt.Sprintf("scholar: %d synced, %d failed", report.Succeeded, report.Failed))
	return nil
}
