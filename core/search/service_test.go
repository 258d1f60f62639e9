package search_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/search"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
	testutil "github.com/nexscholar/nexscholar/tests"
)

type fixture struct {
	svc      *search.Service
	store    *inmemdb.VectorStore
	embedder *testutil.KeywordEmbedder
	repo     profile.Repository
	taxSvc   *taxonomy.Service
	sleeps   []time.Duration
	um, ukm  taxonomy.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := inmemdb.Open()
	conf := core.NewTestConfig()
	conf.Search.ChunkDelay = time.Second

	f := &fixture{
		store:    inmemdb.NewVectorStore(),
		embedder: testutil.NewKeywordEmbedder("learning", "biology", "chemistry", "data", "network", "security", "finance", "education"),
		repo:     inmemdb.NewProfileRepository(db),
		taxSvc:   taxonomy.NewService(nil, inmemdb.NewTaxonomyRepository(db)),
	}
	profileSvc := profile.NewService(nil, f.repo)
	f.svc = search.NewService(f.embedder, f.store, profileSvc, f.taxSvc, conf, logsvc.NewDiscardLogger()).
		WithSleep(func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		})
	require.NoError(t, f.svc.EnsureCollections(ctx))

	f.um = f.node(t, taxonomy.KindUniversity, "Universiti Malaya", "")
	f.ukm = f.node(t, taxonomy.KindUniversity, "Universiti Kebangsaan Malaysia", "")
	return f
}

func (f *fixture) node(t *testing.T, kind taxonomy.Kind, name, parent string) taxonomy.Node {
	t.Helper()
	n, err := f.taxSvc.Create(context.Background(), taxonomy.NewNode{Kind: kind, Name: name, Slug: core.Slugify(name), ParentID: parent})
	require.NoError(t, err)
	return n
}

func (f *fixture) profile(t *testing.T, p profile.Profile) profile.Profile {
	t.Helper()
	p, err := f.repo.CreateProfile(context.Background(), p)
	require.NoError(t, err)
	return p
}

func profileIDs(hits []search.ProfileHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Profile.ID
	}
	return ids
}

func TestProfileDocument(t *testing.T) {
	p := profile.Profile{
		FullName:        "Dr. Aisyah",
		Position:        "Senior Lecturer",
		UniversityID:    "u",
		ResearchAreaIDs: []string{"ai", "gone"},
		SkillIDs:        []string{"go"},
		Bio:             "  Works on NLP. ",
	}
	doc := search.ProfileDocument(p, map[string]string{"u": "Universiti Malaya", "ai": "Artificial Intelligence", "go": "Go"})
	assert.Equal(t, "Name: Dr. Aisyah\n"+
		"Position: Senior Lecturer\n"+
		"University: Universiti Malaya\n"+
		"Research areas: Artificial Intelligence\n"+
		"Skills: Go\n"+
		"Bio: Works on NLP.", doc)
}

func TestService_Collections(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	require.NoError(t, f.svc.EnsureCollections(ctx), "existing collections are kept")
	info, err := f.svc.CollectionInfo(ctx, search.CollectionPrograms)
	require.NoError(t, err)
	assert.Equal(t, 8, info.VectorSize)

	assert.Error(t, f.svc.CreateCollection(ctx, "bogus"))
	require.NoError(t, f.svc.DeleteCollection(ctx, search.CollectionStudents))
	assert.True(t, core.IsNotFound(f.svc.DeleteCollection(ctx, search.CollectionStudents)))
	require.NoError(t, f.svc.RecreateCollection(ctx, search.CollectionStudents))
	require.NoError(t, f.svc.RecreateCollection(ctx, search.CollectionStudents))
	_, err = f.svc.CollectionInfo(ctx, search.CollectionStudents)
	assert.NoError(t, err)
}

func TestService_GenerateMissing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	dl := f.node(t, taxonomy.KindFieldOfResearch, "Computing", "")
	dl = f.node(t, taxonomy.KindResearchArea, "Deep Learning", dl.ID)

	acad1 := f.profile(t, profile.Profile{Type: profile.TypeAcademician, FullName: "Dr. Aisyah", UniversityID: f.um.ID,
		ResearchAreaIDs: []string{dl.ID}, Bio: "machine learning and data mining", AcceptingStudents: true})
	acad2 := f.profile(t, profile.Profile{Type: profile.TypeAcademician, FullName: "Dr. Kumar", UniversityID: f.ukm.ID,
		Bio: "network security", AcceptingStudents: true})
	acad3 := f.profile(t, profile.Profile{Type: profile.TypeAcademician, FullName: "Prof. Tan", UniversityID: f.um.ID,
		Bio: "learning analytics in education"})
	pg := f.profile(t, profile.Profile{Type: profile.TypePostgraduate, FullName: "Nurul", UniversityID: f.um.ID, Bio: "data science"})
	f.profile(t, profile.Profile{Type: profile.TypeUndergraduate, FullName: "Wei", Bio: "biology"})

	report, err := f.svc.GenerateMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, search.Report{Processed: 5, Succeeded: 5}, report)
	assert.Equal(t, 3, f.embedder.Calls, "one call per chunk")
	assert.Equal(t, []time.Duration{time.Second, time.Second}, f.sleeps)

	info, err := f.svc.CollectionInfo(ctx, search.CollectionAcademicians)
	require.NoError(t, err)
	assert.Equal(t, 3, info.PointsCount)
	info, err = f.svc.CollectionInfo(ctx, search.CollectionStudents)
	require.NoError(t, err)
	assert.Equal(t, 2, info.PointsCount)

	report, err = f.svc.GenerateMissing(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed, "synced profiles are skipped")

	t.Run("supervisors", func(t *testing.T) {
		hits, err := f.svc.SearchSupervisors(ctx, search.SupervisorQuery{Query: "learning"})
		require.NoError(t, err)
		assert.Equal(t, []string{acad1.ID, acad3.ID}, profileIDs(hits))
		assert.Greater(t, hits[0].Score, hits[1].Score)
		assert.Equal(t, "Dr. Aisyah", hits[0].Profile.FullName)

		hits, err = f.svc.SearchSupervisors(ctx, search.SupervisorQuery{Query: "learning", AcceptingOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{acad1.ID}, profileIDs(hits))

		hits, err = f.svc.SearchSupervisors(ctx, search.SupervisorQuery{Query: "security", UniversityID: f.ukm.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{acad2.ID}, profileIDs(hits))

		hits, err = f.svc.SearchSupervisors(ctx, search.SupervisorQuery{Query: "learning", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, hits, 1)

		hits, err = f.svc.SearchSupervisors(ctx, search.SupervisorQuery{Query: "chemistry"})
		require.NoError(t, err)
		assert.Empty(t, hits, "below the score threshold")

		_, err = f.svc.SearchSupervisors(ctx, search.SupervisorQuery{Query: "   "})
		_, ok := err.(*core.ValidationError)
		assert.True(t, ok)
	})

	t.Run("students", func(t *testing.T) {
		hits, err := f.svc.SearchStudents(ctx, search.StudentQuery{Query: "data"})
		require.NoError(t, err)
		assert.Equal(t, []string{pg.ID}, profileIDs(hits))

		hits, err = f.svc.SearchStudents(ctx, search.StudentQuery{Query: "data", Type: profile.TypeUndergraduate})
		require.NoError(t, err)
		assert.Empty(t, hits)

		_, err = f.svc.SearchStudents(ctx, search.StudentQuery{Query: "data", Type: profile.TypeAcademician})
		_, ok := err.(*core.ValidationError)
		assert.True(t, ok)
	})
}

func TestService_GenerateMissing_Failures(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.profile(t, profile.Profile{Type: profile.TypeAcademician, FullName: "A", Bio: "finance"})
	f.profile(t, profile.Profile{Type: profile.TypeAcademician, FullName: "B", Bio: "security"})
	f.profile(t, profile.Profile{Type: profile.TypePostgraduate, FullName: "C", Bio: "biology"})
	f.embedder.FailOn = "finance"

	report, err := f.svc.GenerateMissing(ctx, profile.TypeAcademician)
	require.NoError(t, err)
	assert.Equal(t, search.Report{Processed: 2, Failed: 2}, report, "the chunk fails as a whole")

	f.embedder.FailOn = ""
	report, err = f.svc.GenerateMissing(ctx, profile.TypeAcademician)
	require.NoError(t, err)
	assert.Equal(t, search.Report{Processed: 2, Succeeded: 2}, report, "failed profiles are retried")
}

func TestService_SyncProfile(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.profile(t, profile.Profile{Type: profile.TypeAcademician, FullName: "A", Bio: "network"})

	require.NoError(t, f.svc.SyncProfile(ctx, p.ID))
	got, err := f.repo.GetProfileByID(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.EmbeddingSyncedAt)

	assert.True(t, core.IsNotFound(f.svc.SyncProfile(ctx, "3f0a6a2e-0000-4000-8000-000000000000")))
}

func TestService_Programs(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	fsktm := f.node(t, taxonomy.KindFaculty, "Computer Science", f.um.ID)
	fob := f.node(t, taxonomy.KindFaculty, "Business", f.um.ID)
	mds := f.node(t, taxonomy.KindProgram, "Master of Data Science", fsktm.ID)
	f.node(t, taxonomy.KindProgram, "Master of Finance", fob.ID)

	report, err := f.svc.SyncPrograms(ctx)
	require.NoError(t, err)
	assert.Equal(t, search.Report{Processed: 2, Succeeded: 2}, report)

	hits, err := f.svc.SearchPrograms(ctx, search.ProgramQuery{Query: "data"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, mds.ID, hits[0].Program.ID)

	hits, err = f.svc.SearchPrograms(ctx, search.ProgramQuery{Query: "data", FacultyID: fob.ID})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
