package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/taxonomy"
)

type profileApi struct {
	apiBase
	svc    *profile.Service
	taxSvc *taxonomy.Service
}

func registerProfileAPI(g *echo.Group, jwt echo.MiddlewareFunc, base apiBase, svc *profile.Service, taxSvc *taxonomy.Service) {
	api := profileApi{apiBase: base, svc: svc, taxSvc: taxSvc}

	pg := g.Group("/profiles", jwt)
	pg.GET("", api.query)
	pg.GET("/me", api.retrieveOwn)
	pg.PUT("/me", api.save)
	pg.POST("/phones/normalize", api.normalizePhones, adminMiddleware())
	pg.GET("/:id", api.retrieve)
}

func (api *profileApi) query(ctx echo.Context) error {
	var filter profile.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}

	profiles, count, err := api.svc.Query(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	return ctx.JSON(http.StatusOK, newPage(profiles, count, page))
}

func (api *profileApi) retrieveOwn(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.GetByUserID(ctx.Request().Context(), actor.ID)
	if err != nil {
		return errors.Wrap(err, "finding profile by user ID")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding profile by ID")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *profileApi) save(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data profile.SaveProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveProfile")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.taxSvc); err != nil {
		return err
	}

	p, err := api.svc.Save(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

// normalizePhones rewrites stored phone numbers; `?dry_run=true` only reports.
func (api *profileApi) normalizePhones(ctx echo.Context) error {
	dryRun, _ := strconv.ParseBool(ctx.QueryParam("dry_run"))
	report, err := api.svc.NormalizePhones(ctx.Request().Context(), dryRun)
	if err != nil {
		return errors.Wrap(err, "normalizing phones")
	}
	return ctx.JSON(http.StatusOK, report)
}
