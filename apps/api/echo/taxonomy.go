package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core/taxonomy"
	"github.com/nexscholar/nexscholar/core/user"
)

type taxonomyApi struct {
	apiBase
	svc *taxonomy.Service
}

// registerTaxonomyAPI serves every taxonomy under /taxonomy/:kind, e.g. /taxonomy/university.
// Faculty admins manage the university taxonomy too.
func registerTaxonomyAPI(g *echo.Group, jwt echo.MiddlewareFunc, base apiBase, svc *taxonomy.Service) {
	api := taxonomyApi{apiBase: base, svc: svc}

	tg := g.Group("/taxonomy/:kind", jwt, kindMiddleware)
	tg.GET("", api.query)
	tg.GET("/tree", api.tree)
	tg.GET("/:id", api.retrieve)

	admin := adminMiddleware(user.RoleAdmin, user.RoleAdminFaculty)
	tg.POST("", api.create, admin)
	tg.PUT("/:id", api.update, admin)
	tg.DELETE("/:id", api.destroy, admin)
}

func kindMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		kind := taxonomy.Kind(ctx.Param("kind"))
		if !kind.IsValid() {
			return errHttpNotFound
		}
		ctx.Set("kind", kind)
		return next(ctx)
	}
}

func contextKind(ctx echo.Context) taxonomy.Kind {
	kind, _ := ctx.Get("kind").(taxonomy.Kind)
	return kind
}

func (api *taxonomyApi) query(ctx echo.Context) error {
	var filter taxonomy.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	filter.Kinds = []taxonomy.Kind{contextKind(ctx)}

	nodes, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying nodes")
	}
	return ctx.JSON(http.StatusOK, orEmpty(nodes))
}

func (api *taxonomyApi) tree(ctx echo.Context) error {
	tree, err := api.svc.Tree(ctx.Request().Context(), contextKind(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tree)
}

func (api *taxonomyApi) retrieve(ctx echo.Context) error {
	node, err := api.svc.GetByKindAndID(ctx.Request().Context(), contextKind(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding node")
	}
	return ctx.JSON(http.StatusOK, node)
}

func (api *taxonomyApi) create(ctx echo.Context) error {
	var data taxonomy.NewNode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNode")
	}
	data.Kind = contextKind(ctx)
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	node, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating node")
	}
	return ctx.JSON(http.StatusCreated, node)
}

func (api *taxonomyApi) update(ctx echo.Context) error {
	orig, err := api.svc.GetByKindAndID(ctx.Request().Context(), contextKind(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding node")
	}

	var data taxonomy.UpdateNode
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNode")
	}
	if err = data.Validate(ctx.Request().Context(), orig, api.validate, api.svc); err != nil {
		return err
	}

	node, err := api.svc.Update(ctx.Request().Context(), orig, data)
	if err != nil {
		return errors.Wrap(err, "updating node")
	}
	return ctx.JSON(http.StatusOK, node)
}

func (api *taxonomyApi) destroy(ctx echo.Context) error {
	node, err := api.svc.GetByKindAndID(ctx.Request().Context(), contextKind(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding node")
	}
	if err = api.svc.Delete(ctx.Request().Context(), node.ID); err != nil {
		return errors.Wrap(err, "deleting node")
	}
	return ctx.NoContent(http.StatusNoContent)
}
