package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/taxonomy"
)

const nodeColumns = "id, kind, parent_id, name, slug, description, created_at, updated_at"

type nodeRow struct {
	ID          string      `db:"id"`
	Kind        string      `db:"kind"`
	ParentID    null.String `db:"parent_id"`
	Name        string      `db:"name"`
	Slug        string      `db:"slug"`
	Description string      `db:"description"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r nodeRow) toNode() taxonomy.Node {
	return taxonomy.Node{
		ID:          r.ID,
		Kind:        taxonomy.Kind(r.Kind),
		ParentID:    r.ParentID.String,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type taxonomyRepository struct {
	base
}

var _ taxonomy.Repository = (*taxonomyRepository)(nil)

func NewTaxonomyRepository(db *sqlx.DB) taxonomy.Repository {
	return &taxonomyRepository{base{db: db}}
}

func (repo *taxonomyRepository) CheckSlugUniqueness(ctx context.Context, kind taxonomy.Kind, slug, excludedID string, exec ...core.DBExecutor) error {
	var w where
	w.add("kind = ?", string(kind))
	w.add("slug = ?", slug)
	if id, ok := parseID(excludedID); ok {
		w.add("id <> ?", id)
	}
	var count int
	err := repo.conn(exec).GetContext(ctx, &count, "SELECT count(*) FROM taxonomy_nodes"+w.String(), w.args...)
	if err != nil {
		return errors.Wrap(err, "checking slug")
	}
	if count > 0 {
		return taxonomy.ErrSlugExists
	}
	return nil
}

func (repo *taxonomyRepository) CreateNode(ctx context.Context, node taxonomy.Node, exec ...core.DBExecutor) (taxonomy.Node, error) {
	node.ID = newID()
	_, err := repo.conn(exec).ExecContext(ctx, `
		INSERT INTO taxonomy_nodes (`+nodeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		node.ID, string(node.Kind), nullString(node.ParentID), node.Name, node.Slug, node.Description, node.CreatedAt, node.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return taxonomy.Node{}, taxonomy.ErrSlugExists
		}
		return taxonomy.Node{}, errors.Wrap(err, "inserting node")
	}
	return node, nil
}

func (repo *taxonomyRepository) GetNodeByID(ctx context.Context, id string, exec ...core.DBExecutor) (taxonomy.Node, error) {
	if _, err := uuidOrNotFound(id, taxonomy.ErrNotFound); err != nil {
		return taxonomy.Node{}, err
	}
	var row nodeRow
	if err := repo.conn(exec).GetContext(ctx, &row, "SELECT "+nodeColumns+" FROM taxonomy_nodes WHERE id = $1", id); err != nil {
		return taxonomy.Node{}, notFound(err, taxonomy.ErrNotFound)
	}
	return row.toNode(), nil
}

func (repo *taxonomyRepository) selectNodes(ctx context.Context, exec []core.DBExecutor, query string, args ...interface{}) ([]taxonomy.Node, error) {
	var rows []nodeRow
	if err := repo.conn(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting nodes")
	}
	nodes := make([]taxonomy.Node, len(rows))
	for i, r := range rows {
		nodes[i] = r.toNode()
	}
	return nodes, nil
}

func (repo *taxonomyRepository) GetNodesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]taxonomy.Node, error) {
	return repo.selectNodes(ctx, exec, "SELECT "+nodeColumns+" FROM taxonomy_nodes WHERE id = ANY($1::uuid[])", parseIDs(ids))
}

func (repo *taxonomyRepository) GetNodeBySlug(ctx context.Context, kind taxonomy.Kind, slug string, exec ...core.DBExecutor) (taxonomy.Node, error) {
	var row nodeRow
	err := repo.conn(exec).GetContext(ctx, &row,
		"SELECT "+nodeColumns+" FROM taxonomy_nodes WHERE kind = $1 AND slug = $2", string(kind), slug)
	if err != nil {
		return taxonomy.Node{}, notFound(err, taxonomy.ErrNotFound)
	}
	return row.toNode(), nil
}

func (repo *taxonomyRepository) FilterNodes(ctx context.Context, filter taxonomy.QueryFilter, exec ...core.DBExecutor) ([]taxonomy.Node, error) {
	var w where
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		w.add("kind = ANY(?)", pq.Array(kinds))
	}
	if filter.ParentID != "" {
		w.addID("parent_id", filter.ParentID)
	}
	if filter.Search != "" {
		w.add("(name ILIKE ? OR slug ILIKE ?)", like(filter.Search), like(filter.Search))
	}
	return repo.selectNodes(ctx, exec, "SELECT "+nodeColumns+" FROM taxonomy_nodes"+w.String()+" ORDER BY lower(name)", w.args...)
}

func (repo *taxonomyRepository) CountChildren(ctx context.Context, id string, exec ...core.DBExecutor) (int, error) {
	id, ok := parseID(id)
	if !ok {
		return 0, nil
	}
	var count int
	err := repo.conn(exec).GetContext(ctx, &count, "SELECT count(*) FROM taxonomy_nodes WHERE parent_id = $1", id)
	return count, errors.Wrap(err, "counting children")
}

func (repo *taxonomyRepository) UpdateNode(ctx context.Context, node taxonomy.Node, exec ...core.DBExecutor) (taxonomy.Node, error) {
	res, err := repo.conn(exec).ExecContext(ctx, `
		UPDATE taxonomy_nodes SET parent_id = $1, name = $2, slug = $3, description = $4, updated_at = $5
		WHERE id = $6`,
		nullString(node.ParentID), node.Name, node.Slug, node.Description, node.UpdatedAt, node.ID)
	if isUniqueViolation(err, "") {
		return taxonomy.Node{}, taxonomy.ErrSlugExists
	}
	if err = mustAffect(res, err, taxonomy.ErrNotFound); err != nil {
		return taxonomy.Node{}, err
	}
	return node, nil
}

func (repo *taxonomyRepository) DeleteNode(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "DELETE FROM taxonomy_nodes WHERE id = $1", id)
	return mustAffect(res, err, taxonomy.ErrNotFound)
}
