package taxonomy

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nexscholar/nexscholar/core"
)

// ImportEntry is one node of a taxonomy seed file; children inherit it as their parent.
type ImportEntry struct {
	Kind        Kind          `yaml:"kind"`
	Name        string        `yaml:"name"`
	Slug        string        `yaml:"slug"`
	Description string        `yaml:"description"`
	Children    []ImportEntry `yaml:"children"`
}

type ImportResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Import reads a YAML list of entries and creates the nodes whose slug does not exist yet for
// their kind. Everything is written in a single transaction.
func (svc *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var entries []ImportEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil && err != io.EOF {
		return ImportResult{}, errors.Wrap(err, "decoding taxonomy file")
	}

	var res ImportResult
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		for _, e := range entries {
			if err := svc.importEntry(ctx, e, "", &res, exec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

func (svc *Service) importEntry(ctx context.Context, e ImportEntry, parentID string, res *ImportResult, exec core.DBExecutor) error {
	if !e.Kind.IsValid() {
		return core.NewValidationError(errors.Errorf("unknown kind %q for %q", e.Kind, e.Name))
	}
	name := core.CleanString(e.Name)
	if name == "" {
		return core.NewValidationError(errors.Errorf("a %s without a name", e.Kind))
	}
	slug := core.CleanString(e.Slug, true /* lower */)
	if slug == "" {
		slug = core.Slugify(name)
	}
	if slug == "" {
		return core.NewValidationError(errors.Wrapf(ErrNoSlug, "%q", name))
	}
	pk, needsParent := e.Kind.ParentKind()
	if needsParent && parentID == "" {
		return core.NewValidationError(errors.Errorf("%q must be nested under a %s", name, pk))
	}
	if !needsParent && parentID != "" {
		return core.NewValidationError(errors.Errorf("%q is a %s and cannot be nested", name, e.Kind))
	}

	node, err := svc.repo.GetNodeBySlug(ctx, e.Kind, slug, exec)
	switch {
	case err == nil:
		res.Skipped++
	case core.IsNotFound(err):
		node, err = svc.Create(ctx, NewNode{
			Kind:        e.Kind,
			ParentID:    parentID,
			Name:        name,
			Slug:        slug,
			Description: core.CleanString(e.Description),
		}, exec)
		if err != nil {
			return errors.Wrapf(err, "creating %s %q", e.Kind, name)
		}
		res.Created++
	default:
		return errors.Wrap(err, "finding node by slug")
	}

	for _, child := range e.Children {
		if pk, _ := child.Kind.ParentKind(); pk != e.Kind {
			return core.NewValidationError(errors.Errorf("a %s cannot be nested under a %s", child.Kind, e.Kind))
		}
		if err = svc.importEntry(ctx, child, node.ID, res, exec); err != nil {
			return err
		}
	}
	return nil
}
