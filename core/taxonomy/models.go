package taxonomy

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nexscholar/nexscholar/core"
)

type Kind string

// Kinds
const (
	KindUniversity Kind = "university"
	KindFaculty    Kind = "faculty"
	KindProgram    Kind = "postgraduate_program"

	KindFieldOfResearch Kind = "field_of_research"
	KindResearchArea    Kind = "research_area"
	KindNicheDomain     Kind = "niche_domain"

	KindSkillsDomain    Kind = "skills_domain"
	KindSkillsSubdomain Kind = "skills_subdomain"
	KindSkill           Kind = "skill"
)

var (
	// parentKinds maps a kind to the kind its parent must have. Root kinds are absent.
	parentKinds = map[Kind]Kind{
		KindFaculty:         KindUniversity,
		KindProgram:         KindFaculty,
		KindResearchArea:    KindFieldOfResearch,
		KindNicheDomain:     KindResearchArea,
		KindSkillsSubdomain: KindSkillsDomain,
		KindSkill:           KindSkillsSubdomain,
	}

	AllKinds = []Kind{
		KindUniversity, KindFaculty, KindProgram,
		KindFieldOfResearch, KindResearchArea, KindNicheDomain,
		KindSkillsDomain, KindSkillsSubdomain, KindSkill,
	}
)

func (k Kind) IsValid() bool {
	for _, kind := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ParentKind returns the kind a parent of `k` must have; ok is false for root kinds.
func (k Kind) ParentKind() (Kind, bool) {
	pk, ok := parentKinds[k]
	return pk, ok
}

func (k Kind) IsRoot() bool {
	_, ok := parentKinds[k]
	return k.IsValid() && !ok
}

// ChildKinds returns the kinds whose parent is of kind `k`.
func (k Kind) ChildKinds() []Kind {
	var kinds []Kind
	for _, kind := range AllKinds {
		if parentKinds[kind] == k {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Node is an entry of one of the taxonomies: universities and their faculties & programs,
// the research taxonomy and the skills taxonomy.
type Node struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	ParentID    string    `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TreeNode struct {
	Node
	Children []TreeNode `json:"children"`
}

type NewNode struct {
	Kind        Kind   `json:"-"`
	ParentID    string `json:"parent_id" validate:"omitempty,uuid"`
	Name        string `json:"name" validate:"required,notblank,max=255"`
	Slug        string `json:"slug" validate:"omitempty,slug,max=255"`
	Description string `json:"description"`
}

func (nn *NewNode) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nn.Name = core.CleanString(nn.Name)
	nn.Slug = core.CleanString(nn.Slug, true /* lower */)
	nn.Description = core.CleanString(nn.Description)
	nn.ParentID = core.CleanString(nn.ParentID)
	if nn.Slug == "" {
		nn.Slug = core.Slugify(nn.Name)
	}

	if err := validate.Struct(nn); err != nil {
		return err
	}
	if nn.Slug == "" {
		return core.NewValidationError(ErrNoSlug, core.FieldError{Field: "slug", Error: ErrNoSlug.Error()})
	}
	if err := svc.checkParent(ctx, nn.Kind, nn.ParentID); err != nil {
		return err
	}
	return svc.CheckSlugUniqueness(ctx, nn.Kind, nn.Slug)
}

type UpdateNode struct {
	ParentID    *string `json:"parent_id" validate:"omitempty,uuid"`
	Name        string  `json:"name" validate:"omitempty,notblank,max=255"`
	Slug        string  `json:"slug" validate:"omitempty,slug,max=255"`
	Description *string `json:"description"`
}

func (un *UpdateNode) Validate(ctx context.Context, orig Node, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(un.Name); name != "" {
		un.Name = name
	} else {
		un.Name = orig.Name
	}
	if slug := core.CleanString(un.Slug, true /* lower */); slug != "" {
		un.Slug = slug
	} else {
		un.Slug = orig.Slug
	}
	if un.Description == nil {
		un.Description = &orig.Description
	}
	if un.ParentID == nil {
		un.ParentID = &orig.ParentID
	}

	if err := validate.Struct(un); err != nil {
		return err
	}
	if *un.ParentID == orig.ID {
		return core.NewValidationError(nil, core.FieldError{Field: "parent_id", Error: "a node cannot be its own parent"})
	}
	if err := svc.checkParent(ctx, orig.Kind, *un.ParentID); err != nil {
		return err
	}
	return svc.CheckSlugUniqueness(ctx, orig.Kind, un.Slug, orig.ID)
}

type QueryFilter struct {
	Kinds    []Kind `query:"-"`
	ParentID string `query:"parent_id"`
	Search   string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.ParentID = core.CleanString(qf.ParentID)
}
