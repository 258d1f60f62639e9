package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/scholar"
	"github.com/nexscholar/nexscholar/core/search"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	"github.com/nexscholar/nexscholar/core/user"
	emailsvc "github.com/nexscholar/nexscholar/services/email"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	"github.com/nexscholar/nexscholar/services/queue"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
	testutil "github.com/nexscholar/nexscholar/tests"
)

type fakeFetcher struct{}

func (fakeFetcher) FetchMetrics(_ context.Context, _ string) (scholar.Metrics, error) {
	return scholar.Metrics{Citations: 42, HIndex: 3, I10Index: 1}, nil
}

type testWorker struct {
	jobs
	db    *inmemdb.DB
	queue *queue.Queue
}

func setup(t *testing.T, withSearch bool) *testWorker {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.Open()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(nil, inmemdb.NewUserRepository(db), mailSvc, conf)
	profileSvc := profile.NewService(nil, inmemdb.NewProfileRepository(db))
	taxSvc := taxonomy.NewService(nil, inmemdb.NewTaxonomyRepository(db), profileSvc)
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db), usrSvc, mailSvc, logger)

	q := queue.New(conf, logger)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		q.Stop()
		cancel()
	})

	w := &testWorker{
		jobs: jobs{
			logger:      logger,
			supervision: supervision.NewService(nil, inmemdb.NewSupervisionRepository(db), usrSvc, notifSvc, conf, logger),
			scholar:     scholar.NewService(profileSvc, fakeFetcher{}, q, conf),
		},
		db:    db,
		queue: q,
	}
	if withSearch {
		embedder := testutil.NewKeywordEmbedder("learning", "biology", "chemistry", "data", "network", "security", "finance", "education")
		w.search = search.NewService(embedder, inmemdb.NewVectorStore(), profileSvc, taxSvc, conf, logger).
			WithSleep(func(context.Context, time.Duration) error { return nil })
		require.NoError(t, w.search.EnsureCollections(context.Background()))
	}
	return w
}

func Test_jobs_register(t *testing.T) {
	w := setup(t, false)
	assert.Equal(t, []string{jobExpireRequests, jobScholarSync}, w.register(queue.NewScheduler(w.logger)).Jobs())

	w = setup(t, true)
	assert.Equal(t,
		[]string{jobExpireRequests, jobGenerateEmbedding, jobSyncPrograms, jobScholarSync},
		w.register(queue.NewScheduler(w.logger)).Jobs(),
	)
}

func Test_jobs_expireRequests(t *testing.T) {
	w := setup(t, false)
	ctx := context.Background()
	usrRepo := inmemdb.NewUserRepository(w.db)
	student := testutil.CreateUser(t, usrRepo, "Nur Aina", "nuraina", "aina@example.com", "", []string{user.RolePostgraduate}, true)
	acad := testutil.CreateUser(t, usrRepo, "Dr. Aisyah", "aisyah", "aisyah@example.com", "", []string{user.RoleAcademician}, true)

	repo := inmemdb.NewSupervisionRepository(w.db)
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	stale, err := repo.CreateRequest(ctx, supervision.Request{
		StudentID: student.ID, AcademicianID: acad.ID, ProposalTitle: "Federated learning",
		Status: supervision.RequestPending, CreatedAt: old, UpdatedAt: old,
	})
	require.NoError(t, err)
	fresh, err := repo.CreateRequest(ctx, supervision.Request{
		StudentID: student.ID, AcademicianID: acad.ID, ProposalTitle: "Edge AI",
		Status: supervision.RequestPending, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, w.expireRequests(ctx))

	got, err := w.supervision.GetRequest(ctx, student, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestAutoCancelled, got.Status)
	got, err = w.supervision.GetRequest(ctx, student, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestPending, got.Status)
}

func Test_jobs_syncScholar(t *testing.T) {
	w := setup(t, false)
	ctx := context.Background()
	repo := inmemdb.NewProfileRepository(w.db)
	p, err := repo.CreateProfile(ctx, profile.Profile{Type: profile.TypeAcademician, GoogleScholarURL: "https://scholar.google.com/citations?user=x"})
	require.NoError(t, err)

	require.NoError(t, w.syncScholar(ctx))

	got, err := repo.GetProfileByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Scholar.Citations)
}

func Test_jobs_generateEmbeddings(t *testing.T) {
	w := setup(t, true)
	ctx := context.Background()
	repo := inmemdb.NewProfileRepository(w.db)
	_, err := repo.CreateProfile(ctx, profile.Profile{Type: profile.TypePostgraduate, FullName: "Nur Aina", Bio: "machine learning"})
	require.NoError(t, err)

	require.NoError(t, w.generateEmbeddings(ctx))

	info, err := w.search.CollectionInfo(ctx, search.CollectionStudents)
	require.NoError(t, err)
	assert.Equal(t, 1, info.PointsCount)
	require.NoError(t, w.syncPrograms(ctx))
}
