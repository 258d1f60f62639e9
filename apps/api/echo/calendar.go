package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core/calendar"
)

type calendarApi struct {
	apiBase
	svc *calendar.Service
}

func registerCalendarAPI(g *echo.Group, jwt echo.MiddlewareFunc, base apiBase, svc *calendar.Service) {
	api := calendarApi{apiBase: base, svc: svc}

	cg := g.Group("/calendar/google")
	// the OAuth state identifies the user on callback
	cg.GET("/callback", api.callback)

	ag := cg.Group("", jwt)
	ag.GET("", api.status)
	ag.GET("/connect", api.connect)
	ag.DELETE("", api.disconnect)
}

type ConnectResponse struct {
	URL string `json:"url"`
}

func (api *calendarApi) connect(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	url, err := api.svc.ConnectURL(actor)
	if err != nil {
		return errors.Wrap(err, "building connect URL")
	}
	return ctx.JSON(http.StatusOK, ConnectResponse{URL: url})
}

func (api *calendarApi) callback(ctx echo.Context) error {
	if reason := ctx.QueryParam("error"); reason != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "calendar access was not granted: "+reason)
	}
	status, err := api.svc.Callback(ctx.Request().Context(), ctx.QueryParam("state"), ctx.QueryParam("code"))
	if err != nil {
		return errors.Wrap(err, "completing calendar connection")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *calendarApi) status(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	status, err := api.svc.Status(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "getting calendar status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *calendarApi) disconnect(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Disconnect(ctx.Request().Context(), actor); err != nil {
		return errors.Wrap(err, "disconnecting calendar")
	}
	return ctx.NoContent(http.StatusNoContent)
}
