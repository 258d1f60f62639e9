package taxonomy_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
)

type refCounter map[string]int

func (rc refCounter) CountNodeReferences(_ context.Context, nodeID string, _ ...core.DBExecutor) (int, error) {
	return rc[nodeID], nil
}

func setup(t *testing.T, refs ...taxonomy.ReferenceCounter) (*taxonomy.Service, *validator.Validate) {
	t.Helper()
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return taxonomy.NewService(nil, inmemdb.NewTaxonomyRepository(inmemdb.Open()), refs...), validate
}

func create(t *testing.T, svc *taxonomy.Service, validate *validator.Validate, kind taxonomy.Kind, name, parentID string) taxonomy.Node {
	t.Helper()
	ctx := context.Background()
	nn := taxonomy.NewNode{Kind: kind, Name: name, ParentID: parentID}
	require.NoError(t, nn.Validate(ctx, validate, svc))
	node, err := svc.Create(ctx, nn)
	require.NoError(t, err)
	return node
}

func TestNewNode_Validate(t *testing.T) {
	ctx := context.Background()
	svc, validate := setup(t)
	um := create(t, svc, validate, taxonomy.KindUniversity, "Universiti Malaya", "")
	assert.Equal(t, "universiti-malaya", um.Slug)
	fsktm := create(t, svc, validate, taxonomy.KindFaculty, "Faculty of Computer Science", um.ID)

	tests := []struct {
		name      string
		nn        taxonomy.NewNode
		wantField string
	}{
		{name: "slug taken for kind", nn: taxonomy.NewNode{Kind: taxonomy.KindUniversity, Name: "Universiti  Malaya!"}, wantField: "slug"},
		{name: "root with parent", nn: taxonomy.NewNode{Kind: taxonomy.KindUniversity, Name: "UKM", ParentID: um.ID}, wantField: "parent_id"},
		{name: "missing parent", nn: taxonomy.NewNode{Kind: taxonomy.KindFaculty, Name: "Faculty of Law"}, wantField: "parent_id"},
		{name: "wrong parent kind", nn: taxonomy.NewNode{Kind: taxonomy.KindFaculty, Name: "Faculty of Law", ParentID: fsktm.ID}, wantField: "parent_id"},
		{name: "name without latin characters", nn: taxonomy.NewNode{Kind: taxonomy.KindFieldOfResearch, Name: "人工智能"}, wantField: "slug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nn.Validate(ctx, validate, svc)
			require.Error(t, err)
			vErr, ok := err.(*core.ValidationError)
			require.True(t, ok, "got %T: %v", err, err)
			require.NotEmpty(t, vErr.Fields)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}

	t.Run("same slug in another kind", func(t *testing.T) {
		nn := taxonomy.NewNode{Kind: taxonomy.KindFieldOfResearch, Name: "Universiti Malaya"}
		assert.NoError(t, nn.Validate(ctx, validate, svc))
	})
	t.Run("name without latin characters and explicit slug", func(t *testing.T) {
		nn := taxonomy.NewNode{Kind: taxonomy.KindFieldOfResearch, Name: "人工智能", Slug: "artificial-intelligence"}
		assert.NoError(t, nn.Validate(ctx, validate, svc))
	})
	t.Run("invalid slug", func(t *testing.T) {
		nn := taxonomy.NewNode{Kind: taxonomy.KindSkillsDomain, Name: "Data", Slug: "Data Science"}
		_, ok := nn.Validate(ctx, validate, svc).(validator.ValidationErrors)
		assert.True(t, ok)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	refs := refCounter{}
	svc, validate := setup(t, refs)

	um := create(t, svc, validate, taxonomy.KindUniversity, "Universiti Malaya", "")
	fac := create(t, svc, validate, taxonomy.KindFaculty, "Faculty of Engineering", um.ID)
	refs[fac.ID] = 1

	err := svc.Delete(ctx, um.ID)
	assert.True(t, core.IsTransition(err), "parent with children: %v", err)

	err = svc.Delete(ctx, fac.ID)
	assert.True(t, core.IsTransition(err), "referenced node: %v", err)

	delete(refs, fac.ID)
	require.NoError(t, svc.Delete(ctx, fac.ID))
	require.NoError(t, svc.Delete(ctx, um.ID))

	_, err = svc.GetByID(ctx, um.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Tree(t *testing.T) {
	ctx := context.Background()
	svc, validate := setup(t)

	upm := create(t, svc, validate, taxonomy.KindUniversity, "Universiti Putra Malaysia", "")
	um := create(t, svc, validate, taxonomy.KindUniversity, "Universiti Malaya", "")
	eng := create(t, svc, validate, taxonomy.KindFaculty, "Engineering", um.ID)
	create(t, svc, validate, taxonomy.KindProgram, "MSc Civil Engineering", eng.ID)
	create(t, svc, validate, taxonomy.KindFieldOfResearch, "Computer Science", "")

	tree, err := svc.Tree(ctx, taxonomy.KindUniversity)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, um.ID, tree[0].ID)
	assert.Equal(t, upm.ID, tree[1].ID)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, eng.ID, tree[0].Children[0].ID)
	require.Len(t, tree[0].Children[0].Children, 1)
	assert.Empty(t, tree[1].Children)

	_, err = svc.Tree(ctx, taxonomy.KindFaculty)
	assert.Error(t, err)
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()
	svc, validate := setup(t)
	create(t, svc, validate, taxonomy.KindSkillsDomain, "Programming", "")

	seed := `
- kind: skills_domain
  name: Programming
  children:
    - kind: skills_subdomain
      name: Backend
      children:
        - kind: skill
          name: Go
        - kind: skill
          name: PostgreSQL
- kind: field_of_research
  name: Computer Science
  slug: cs
`
	res, err := svc.Import(ctx, strings.NewReader(seed))
	require.NoError(t, err)
	assert.Equal(t, taxonomy.ImportResult{Created: 4, Skipped: 1}, res)

	// running it again creates nothing
	res, err = svc.Import(ctx, strings.NewReader(seed))
	require.NoError(t, err)
	assert.Equal(t, taxonomy.ImportResult{Created: 0, Skipped: 5}, res)

	skills, err := svc.Query(ctx, taxonomy.QueryFilter{Kinds: []taxonomy.Kind{taxonomy.KindSkill}})
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "Go", skills[0].Name)

	_, err = svc.Import(ctx, strings.NewReader("- kind: skill\n  name: Orphan\n"))
	assert.Error(t, err)
}

func TestService_Import_nonLatinNames(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	_, err := svc.Import(ctx, strings.NewReader("- kind: field_of_research\n  name: 機器學習\n"))
	require.Error(t, err)
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok, "got %T: %v", err, err)
	assert.Contains(t, err.Error(), taxonomy.ErrNoSlug.Error())

	seed := `
- kind: field_of_research
  name: 人工智能
  slug: artificial-intelligence
- kind: field_of_research
  name: 機器學習
  slug: machine-learning
`
	res, err := svc.Import(ctx, strings.NewReader(seed))
	require.NoError(t, err)
	assert.Equal(t, taxonomy.ImportResult{Created: 2}, res)

	nodes, err := svc.Query(ctx, taxonomy.QueryFilter{Kinds: []taxonomy.Kind{taxonomy.KindFieldOfResearch}})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	slugs := []string{nodes[0].Slug, nodes[1].Slug}
	assert.ElementsMatch(t, []string{"artificial-intelligence", "machine-learning"}, slugs)
}
