package scholar

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
)

var ErrNoScholarURL = errors.New("this profile has no Google Scholar URL")

// Metrics are the all-time indices shown on a Google Scholar profile.
type Metrics struct {
	Citations int `json:"citations"`
	HIndex    int `json:"h_index"`
	I10Index  int `json:"i10_index"`
}

type (
	Fetcher interface {
		FetchMetrics(ctx context.Context, profileURL string) (Metrics, error)
	}

	Service struct {
		profiles   *profile.Service
		fetcher    Fetcher
		dispatcher core.JobDispatcher
		chunkSize  int
		delay      time.Duration
	}
)

func NewService(profiles *profile.Service, fetcher Fetcher, dispatcher core.JobDispatcher, conf *core.Config) *Service {
	return &Service{
		profiles:   profiles,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		chunkSize:  conf.Scholar.ChunkSize,
		delay:      conf.Scholar.RequestDelay,
	}
}

// SyncProfile fetches the Scholar metrics of one profile and stores them.
func (svc *Service) SyncProfile(ctx context.Context, profileID string) (Metrics, error) {
	p, err := svc.profiles.GetByID(ctx, profileID)
	if err != nil {
		return Metrics{}, err
	}
	if p.GoogleScholarURL == "" {
		return Metrics{}, core.NewValidationError(ErrNoScholarURL, core.FieldError{Field: "google_scholar_url", Error: ErrNoScholarURL.Error()})
	}

	m, err := svc.fetcher.FetchMetrics(ctx, p.GoogleScholarURL)
	if err != nil {
		return Metrics{}, errors.Wrapf(err, "fetching %s", p.GoogleScholarURL)
	}
	if err = svc.profiles.UpdateScholarMetrics(ctx, p.ID, m.Citations, m.HIndex, m.I10Index); err != nil {
		return Metrics{}, errors.Wrap(err, "saving metrics")
	}
	return m, nil
}

// Run follows a batch of sync jobs.
type Run struct {
	Dispatched int

	wg        sync.WaitGroup
	mu        sync.Mutex
	succeeded int
	failed    int
}

type Report struct {
	Dispatched int `json:"dispatched"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

func (r *Run) done(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
	} else {
		r.succeeded++
	}
}

func (r *Run) report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Report{Dispatched: r.Dispatched, Succeeded: r.succeeded, Failed: r.failed}
}

// Wait blocks until every job of the run finished or `ctx` is done, and reports the tallies.
func (r *Run) Wait(ctx context.Context) (Report, error) {
	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return r.report(), nil
	case <-ctx.Done():
		return r.report(), ctx.Err()
	}
}

// SyncAll queues one job per profile with a Scholar URL, chunks of ChunkSize jobs being
// dispatched RequestDelay apart. Failed jobs are logged by the dispatcher and tallied in the Run.
func (svc *Service) SyncAll(ctx context.Context) (*Run, error) {
	profiles, err := svc.profiles.ListScholarProfiles(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing profiles")
	}

	size := svc.chunkSize
	if size <= 0 {
		size = 1
	}
	run := &Run{Dispatched: len(profiles)}
	run.wg.Add(len(profiles))
	for i, p := range profiles {
		p := p
		delay := time.Duration(i/size) * svc.delay
		svc.dispatcher.Dispatch(core.Job{
			Name: "scholar.sync:" + p.ID,
			Run: func(ctx context.Context) error {
				defer run.wg.Done()
				_, err := svc.SyncProfile(ctx, p.ID)
				run.done(err)
				return errors.Wrapf(err, "profile %s", p.ID)
			},
		}, delay)
	}
	return run, nil
}
