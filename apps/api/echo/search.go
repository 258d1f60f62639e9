package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core/search"
)

type searchApi struct {
	apiBase
	svc *search.Service
}

func registerSearchAPI(g *echo.Group, jwt echo.MiddlewareFunc, base apiBase, svc *search.Service) {
	api := searchApi{apiBase: base, svc: svc}

	sg := g.Group("/search", jwt, activeUserMiddleware(base))
	sg.GET("/supervisors", api.supervisors)
	sg.GET("/students", api.students)
	sg.GET("/programs", api.programs)
	sg.GET("/collections/:name", api.collectionInfo, adminMiddleware())
}

func (api *searchApi) supervisors(ctx echo.Context) error {
	var q search.SupervisorQuery
	if err := bindQuery(ctx, &q); err != nil {
		return err
	}
	hits, err := api.svc.SearchSupervisors(ctx.Request().Context(), q)
	if err != nil {
		return errors.Wrap(err, "searching supervisors")
	}
	return ctx.JSON(http.StatusOK, orEmpty(hits))
}

func (api *searchApi) students(ctx echo.Context) error {
	var q search.StudentQuery
	if err := bindQuery(ctx, &q); err != nil {
		return err
	}
	hits, err := api.svc.SearchStudents(ctx.Request().Context(), q)
	if err != nil {
		return errors.Wrap(err, "searching students")
	}
	return ctx.JSON(http.StatusOK, orEmpty(hits))
}

func (api *searchApi) programs(ctx echo.Context) error {
	var q search.ProgramQuery
	if err := bindQuery(ctx, &q); err != nil {
		return err
	}
	hits, err := api.svc.SearchPrograms(ctx.Request().Context(), q)
	if err != nil {
		return errors.Wrap(err, "searching programs")
	}
	return ctx.JSON(http.StatusOK, orEmpty(hits))
}

func (api *searchApi) collectionInfo(ctx echo.Context) error {
	info, err := api.svc.CollectionInfo(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return errors.Wrap(err, "getting collection info")
	}
	return ctx.JSON(http.StatusOK, info)
}
