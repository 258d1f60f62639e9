package taxonomy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("taxonomy node")
	ErrSlugExists  = errors.New("this slug is already taken")
	ErrHasChildren = errors.New("this entry still has children")
	ErrReferenced  = errors.New("this entry is still in use")
	ErrNoSlug      = errors.New("a slug is required when the name has no latin letters or digits")
)

type (
	Repository interface {
		CheckSlugUniqueness(ctx context.Context, kind Kind, slug, excludedID string, exec ...core.DBExecutor) error
		CreateNode(ctx context.Context, node Node, exec ...core.DBExecutor) (Node, error)
		GetNodeByID(ctx context.Context, id string, exec ...core.DBExecutor) (Node, error)
		GetNodesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]Node, error)
		GetNodeBySlug(ctx context.Context, kind Kind, slug string, exec ...core.DBExecutor) (Node, error)
		// FilterNodes returns the nodes matching the filter ordered by name.
		FilterNodes(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Node, error)
		CountChildren(ctx context.Context, id string, exec ...core.DBExecutor) (int, error)
		UpdateNode(ctx context.Context, node Node, exec ...core.DBExecutor) (Node, error)
		DeleteNode(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// ReferenceCounter counts the rows of another domain pointing at a taxonomy node.
	ReferenceCounter interface {
		CountNodeReferences(ctx context.Context, nodeID string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		db   core.DB
		repo Repository
		refs []ReferenceCounter
		now  func() time.Time
	}
)

func NewService(db core.DB, repo Repository, refs ...ReferenceCounter) *Service {
	return &Service{
		db:   db,
		repo: repo,
		refs: refs,
		now:  time.Now,
	}
}

// AddReferenceCounter registers a domain whose rows may point at taxonomy nodes.
func (svc *Service) AddReferenceCounter(ref ReferenceCounter) {
	svc.refs = append(svc.refs, ref)
}

func (svc *Service) CheckSlugUniqueness(ctx context.Context, kind Kind, slug string, excludedID ...string) error {
	var excl string
	if len(excludedID) > 0 {
		excl = excludedID[0]
	}
	if err := svc.repo.CheckSlugUniqueness(ctx, kind, slug, excl); err != nil {
		if errors.Cause(err) == ErrSlugExists {
			return core.NewValidationError(err, core.FieldError{Field: "slug", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) checkParent(ctx context.Context, kind Kind, parentID string) error {
	parentKind, needsParent := kind.ParentKind()
	if !needsParent {
		if parentID != "" {
			return core.NewValidationError(nil, core.FieldError{Field: "parent_id", Error: fmt.Sprintf("a %s cannot have a parent", kind)})
		}
		return nil
	}
	if parentID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "parent_id", Error: "this field is required"})
	}
	return svc.CheckKind(ctx, "parent_id", parentID, parentKind)
}

// CheckKind validates that `id` is a node of kind `kind`; `field` names the offending input.
func (svc *Service) CheckKind(ctx context.Context, field, id string, kind Kind) error {
	node, err := svc.repo.GetNodeByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(nil, core.FieldError{Field: field, Error: fmt.Sprintf("unknown %s", kind)})
		}
		return errors.Wrap(err, "finding node by ID")
	}
	if node.Kind != kind {
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: fmt.Sprintf("expected a %s, got a %s", kind, node.Kind)})
	}
	return nil
}

// CheckKinds validates that every id of `ids` is a node of kind `kind`.
func (svc *Service) CheckKinds(ctx context.Context, field string, ids []string, kind Kind) error {
	if len(ids) == 0 {
		return nil
	}
	nodes, err := svc.repo.GetNodesByID(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "finding nodes by ID")
	}
	found := make(map[string]Kind, len(nodes))
	for _, n := range nodes {
		found[n.ID] = n.Kind
	}
	for _, id := range ids {
		if k, ok := found[id]; !ok || k != kind {
			return core.NewValidationError(nil, core.FieldError{Field: field, Error: fmt.Sprintf("unknown %s: %s", kind, id)})
		}
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nn NewNode, exec ...core.DBExecutor) (Node, error) {
	now := svc.now().UTC()
	return svc.repo.CreateNode(ctx, Node{
		Kind:        nn.Kind,
		ParentID:    nn.ParentID,
		Name:        nn.Name,
		Slug:        nn.Slug,
		Description: nn.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, exec...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Node, error) {
	return svc.repo.GetNodeByID(ctx, id)
}

// GetByKindAndID returns the node `id`, reporting it missing when it is of another kind.
func (svc *Service) GetByKindAndID(ctx context.Context, kind Kind, id string) (Node, error) {
	node, err := svc.repo.GetNodeByID(ctx, id)
	if err != nil {
		return Node{}, err
	}
	if node.Kind != kind {
		return Node{}, ErrNotFound
	}
	return node, nil
}

func (svc *Service) GetManyByID(ctx context.Context, ids ...string) ([]Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return svc.repo.GetNodesByID(ctx, ids)
}

// Names maps the IDs of `ids` that exist to their node names.
func (svc *Service) Names(ctx context.Context, ids ...string) (map[string]string, error) {
	nodes, err := svc.GetManyByID(ctx, ids...)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(nodes))
	for _, n := range nodes {
		names[n.ID] = n.Name
	}
	return names, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Node, error) {
	filter.Clean()
	return svc.repo.FilterNodes(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, orig Node, un UpdateNode) (Node, error) {
	node := orig
	node.Name = un.Name
	node.Slug = un.Slug
	if un.Description != nil {
		node.Description = *un.Description
	}
	if un.ParentID != nil {
		node.ParentID = *un.ParentID
	}
	node.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateNode(ctx, node)
}

// Delete removes a node that has no children and that nothing references.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		children, err := svc.repo.CountChildren(ctx, id, exec)
		if err != nil {
			return errors.Wrap(err, "counting children")
		}
		if children > 0 {
			return core.NewTransitionError(ErrHasChildren.Error())
		}
		for _, ref := range svc.refs {
			n, err := ref.CountNodeReferences(ctx, id, exec)
			if err != nil {
				return errors.Wrap(err, "counting references")
			}
			if n > 0 {
				return core.NewTransitionError(ErrReferenced.Error())
			}
		}
		return svc.repo.DeleteNode(ctx, id, exec)
	})
}

// Tree returns every node descending from the nodes of root kind `kind`.
func (svc *Service) Tree(ctx context.Context, kind Kind) ([]TreeNode, error) {
	if !kind.IsRoot() {
		return nil, core.NewValidationError(errors.Errorf("%s is not a root taxonomy", kind))
	}

	kinds := []Kind{kind}
	for i := 0; i < len(kinds); i++ {
		kinds = append(kinds, kinds[i].ChildKinds()...)
	}
	nodes, err := svc.repo.FilterNodes(ctx, QueryFilter{Kinds: kinds})
	if err != nil {
		return nil, errors.Wrap(err, "filtering nodes")
	}

	byParent := make(map[string][]Node)
	for _, n := range nodes {
		byParent[n.ParentID] = append(byParent[n.ParentID], n)
	}
	var build func(parentID string) []TreeNode
	build = func(parentID string) []TreeNode {
		children := byParent[parentID]
		sort.SliceStable(children, func(i, j int) bool { return children[i].Name < children[j].Name })
		tree := make([]TreeNode, 0, len(children))
		for _, c := range children {
			tree = append(tree, TreeNode{Node: c, Children: build(c.ID)})
		}
		return tree
	}
	return build(""), nil
}
