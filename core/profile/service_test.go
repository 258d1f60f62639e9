package profile_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	"github.com/nexscholar/nexscholar/core/user"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
)

type fixture struct {
	svc      *profile.Service
	taxSvc   *taxonomy.Service
	validate *validator.Validate
	um       taxonomy.Node
	fsktm    taxonomy.Node
	ukm      taxonomy.Node
	ai       taxonomy.Node
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := inmemdb.Open()
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	f := fixture{
		svc:      profile.NewService(nil, inmemdb.NewProfileRepository(db)),
		taxSvc:   taxonomy.NewService(nil, inmemdb.NewTaxonomyRepository(db)),
		validate: validate,
	}
	f.taxSvc.AddReferenceCounter(f.svc)

	mk := func(kind taxonomy.Kind, name, parent string) taxonomy.Node {
		n, err := f.taxSvc.Create(ctx, taxonomy.NewNode{Kind: kind, Name: name, Slug: core.Slugify(name), ParentID: parent})
		require.NoError(t, err)
		return n
	}
	f.um = mk(taxonomy.KindUniversity, "Universiti Malaya", "")
	f.ukm = mk(taxonomy.KindUniversity, "Universiti Kebangsaan Malaysia", "")
	f.fsktm = mk(taxonomy.KindFaculty, "Computer Science", f.um.ID)
	cs := mk(taxonomy.KindFieldOfResearch, "Computing", "")
	f.ai = mk(taxonomy.KindResearchArea, "Artificial Intelligence", cs.ID)
	return f
}

func newUser(roles ...string) user.User {
	return user.User{ID: uuid.NewString(), Name: "Someone", Roles: roles, IsActive: true}
}

func TestService_Save(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	lecturer := newUser(user.RoleAcademician)

	sp := profile.SaveProfile{
		FullName:          "  Dr. Aisyah Rahman ",
		Phone:             "012-345 6789",
		UniversityID:      f.um.ID,
		FacultyID:         f.fsktm.ID,
		ResearchAreaIDs:   []string{f.ai.ID, f.ai.ID},
		AcceptingStudents: true,
	}
	require.NoError(t, sp.Validate(ctx, f.validate, f.taxSvc))
	p, err := f.svc.Save(ctx, lecturer, sp)
	require.NoError(t, err)
	assert.Equal(t, profile.TypeAcademician, p.Type)
	assert.Equal(t, "Dr. Aisyah Rahman", p.FullName)
	assert.Equal(t, "+60123456789", p.Phone)
	assert.Equal(t, []string{f.ai.ID}, p.ResearchAreaIDs)
	assert.True(t, p.AcceptingStudents)

	// saving again replaces the same row
	require.NoError(t, f.svc.MarkEmbeddingSynced(ctx, p.ID))
	sp.Bio = "Machine learning for healthcare."
	p2, err := f.svc.Save(ctx, lecturer, sp)
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, p.CreatedAt, p2.CreatedAt)
	assert.Nil(t, p2.EmbeddingSyncedAt, "a change must invalidate the embedding")

	// students never accept students
	student := newUser(user.RolePostgraduate)
	sp = profile.SaveProfile{FullName: "Lim Wei", AcceptingStudents: true}
	require.NoError(t, sp.Validate(ctx, f.validate, f.taxSvc))
	sp2, err := f.svc.Save(ctx, student, sp)
	require.NoError(t, err)
	assert.Equal(t, profile.TypePostgraduate, sp2.Type)
	assert.False(t, sp2.AcceptingStudents)

	// admins have no profile
	_, err = f.svc.Save(ctx, newUser(user.RoleAdmin), sp)
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok)

	// a referenced node cannot be deleted
	assert.True(t, core.IsTransition(f.taxSvc.Delete(ctx, f.ai.ID)))
}

func TestSaveProfile_Validate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tests := []struct {
		name      string
		sp        profile.SaveProfile
		wantField string
	}{
		{name: "invalid phone", sp: profile.SaveProfile{FullName: "A", Phone: "12345"}, wantField: "phone"},
		{name: "faculty without university", sp: profile.SaveProfile{FullName: "A", FacultyID: f.fsktm.ID}, wantField: "university_id"},
		{name: "faculty of another university", sp: profile.SaveProfile{FullName: "A", UniversityID: f.ukm.ID, FacultyID: f.fsktm.ID}, wantField: "faculty_id"},
		{name: "university is not a university", sp: profile.SaveProfile{FullName: "A", UniversityID: f.fsktm.ID}, wantField: "university_id"},
		{name: "unknown research area", sp: profile.SaveProfile{FullName: "A", ResearchAreaIDs: []string{uuid.NewString()}}, wantField: "research_area_ids"},
		{name: "skill is not a skill", sp: profile.SaveProfile{FullName: "A", SkillIDs: []string{f.ai.ID}}, wantField: "skill_ids"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sp.Validate(ctx, f.validate, f.taxSvc)
			vErr, ok := err.(*core.ValidationError)
			require.True(t, ok, "got %T: %v", err, err)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}

	t.Run("missing name", func(t *testing.T) {
		sp := profile.SaveProfile{FullName: "   "}
		_, ok := sp.Validate(ctx, f.validate, f.taxSvc).(validator.ValidationErrors)
		assert.True(t, ok)
	})
}

func TestService_NormalizePhones(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	repo := inmemdb.NewProfileRepository(db)
	svc := profile.NewService(nil, repo)

	phones := []string{"012-345 6789", "+60123456789", "12345", "(03) 7967 7022"}
	ids := make([]string, len(phones))
	for i, phone := range phones {
		p, err := repo.CreateProfile(ctx, profile.Profile{UserID: uuid.NewString(), Type: profile.TypeUndergraduate, FullName: "U", Phone: phone})
		require.NoError(t, err)
		ids[i] = p.ID
	}

	report, err := svc.NormalizePhones(ctx, true /* dryRun */)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, ids[2], report.Failures[0].ProfileID)

	p, err := svc.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "012-345 6789", p.Phone, "dry run must not write")

	report, err = svc.NormalizePhones(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)

	p, err = svc.GetByID(ctx, ids[3])
	require.NoError(t, err)
	assert.Equal(t, "+60379677022", p.Phone)

	report, err = svc.NormalizePhones(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 3, report.Unchanged)
}
