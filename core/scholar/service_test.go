package scholar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/scholar"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
)

type fakeFetcher map[string]scholar.Metrics

func (f fakeFetcher) FetchMetrics(_ context.Context, profileURL string) (scholar.Metrics, error) {
	m, ok := f[profileURL]
	if !ok {
		return scholar.Metrics{}, errors.New("blocked")
	}
	return m, nil
}

// syncDispatcher runs jobs right away and records their delays.
type syncDispatcher struct {
	delays []time.Duration
}

func (d *syncDispatcher) Dispatch(job core.Job, delay time.Duration) {
	d.delays = append(d.delays, delay)
	_ = job.Run(context.Background())
}

func TestService_SyncAll(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewProfileRepository(inmemdb.Open())
	profiles := profile.NewService(nil, repo)
	conf := core.NewTestConfig()
	conf.Scholar.RequestDelay = time.Minute
	fetcher := fakeFetcher{
		"https://scholar.google.com/citations?user=a": {Citations: 10, HIndex: 2, I10Index: 1},
		"https://scholar.google.com/citations?user=b": {Citations: 500, HIndex: 12, I10Index: 14},
	}
	dispatcher := &syncDispatcher{}
	svc := scholar.NewService(profiles, fetcher, dispatcher, conf)

	mk := func(url string) profile.Profile {
		p, err := repo.CreateProfile(ctx, profile.Profile{Type: profile.TypeAcademician, GoogleScholarURL: url})
		require.NoError(t, err)
		return p
	}
	a := mk("https://scholar.google.com/citations?user=a")
	mk("https://scholar.google.com/citations?user=b")
	mk("https://scholar.google.com/citations?user=blocked")
	noURL := mk("")

	run, err := svc.SyncAll(ctx)
	require.NoError(t, err)
	report, err := run.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, scholar.Report{Dispatched: 3, Succeeded: 2, Failed: 1}, report)
	assert.Equal(t, []time.Duration{0, 0, time.Minute}, dispatcher.delays, "chunks of 2")

	got, err := profiles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Scholar.HIndex)
	assert.NotNil(t, got.Scholar.SyncedAt)

	_, err = svc.SyncProfile(ctx, noURL.ID)
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok)
}
