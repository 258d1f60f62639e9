package inmemdb

import (
	"context"
	"strings"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/taxonomy"
)

type taxonomyRepository struct {
	db *table[taxonomy.Node]
}

var _ taxonomy.Repository = (*taxonomyRepository)(nil)

func NewTaxonomyRepository(db *DB) taxonomy.Repository {
	return &taxonomyRepository{db: db.taxonomy}
}

func (repo *taxonomyRepository) CheckSlugUniqueness(_ context.Context, kind taxonomy.Kind, slug, excludedID string, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, n := range repo.db.all() {
		if n.Kind == kind && n.Slug == slug && n.ID != excludedID {
			return taxonomy.ErrSlugExists
		}
	}
	return nil
}

func (repo *taxonomyRepository) CreateNode(_ context.Context, node taxonomy.Node, _ ...core.DBExecutor) (taxonomy.Node, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	node.ID = newID()
	repo.db.insert(node.ID, node)
	return node, nil
}

func (repo *taxonomyRepository) GetNodeByID(_ context.Context, id string, _ ...core.DBExecutor) (taxonomy.Node, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if n, ok := repo.db.rows[id]; ok {
		return n, nil
	}
	return taxonomy.Node{}, taxonomy.ErrNotFound
}

func (repo *taxonomyRepository) GetNodesByID(_ context.Context, ids []string, _ ...core.DBExecutor) ([]taxonomy.Node, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.db.filter(func(n taxonomy.Node) bool { return core.StringInSlice(n.ID, ids) }), nil
}

func (repo *taxonomyRepository) GetNodeBySlug(_ context.Context, kind taxonomy.Kind, slug string, _ ...core.DBExecutor) (taxonomy.Node, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, n := range repo.db.all() {
		if n.Kind == kind && n.Slug == slug {
			return n, nil
		}
	}
	return taxonomy.Node{}, taxonomy.ErrNotFound
}

func (repo *taxonomyRepository) FilterNodes(_ context.Context, filter taxonomy.QueryFilter, _ ...core.DBExecutor) ([]taxonomy.Node, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	nodes := repo.db.filter(func(n taxonomy.Node) bool {
		if len(filter.Kinds) > 0 {
			var ok bool
			for _, k := range filter.Kinds {
				if n.Kind == k {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		if filter.ParentID != "" && n.ParentID != filter.ParentID {
			return false
		}
		if search != "" && !strings.Contains(strings.ToLower(n.Name), search) && !strings.Contains(n.Slug, search) {
			return false
		}
		return true
	})
	sortRows(nodes, []orderField{{name: "name", asc: true}}, map[string]lessFunc[taxonomy.Node]{
		"name": func(a, b taxonomy.Node) int { return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) },
	})
	return nodes, nil
}

func (repo *taxonomyRepository) CountChildren(_ context.Context, id string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return len(repo.db.filter(func(n taxonomy.Node) bool { return n.ParentID == id })), nil
}

func (repo *taxonomyRepository) UpdateNode(_ context.Context, node taxonomy.Node, _ ...core.DBExecutor) (taxonomy.Node, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[node.ID]; !ok {
		return taxonomy.Node{}, taxonomy.ErrNotFound
	}
	repo.db.rows[node.ID] = node
	return node, nil
}

func (repo *taxonomyRepository) DeleteNode(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return taxonomy.ErrNotFound
	}
	repo.db.remove(id)
	return nil
}
