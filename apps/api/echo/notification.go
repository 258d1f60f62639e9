package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core/notification"
)

type notificationApi struct {
	apiBase
	svc *notification.Service
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, base apiBase, svc *notification.Service) {
	api := notificationApi{apiBase: base, svc: svc}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.list)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/read-all", api.markAllRead)
	ng.GET("/:id", api.retrieve)
	ng.POST("/:id/read", api.markRead)
	ng.DELETE("/:id", api.destroy)
}

func (api *notificationApi) list(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var filter notification.QueryFilter
	if err = bindQuery(ctx, &filter); err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}

	list, count, err := api.svc.List(ctx.Request().Context(), actor.ID, filter, page)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, newPage(list, count, page))
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	count, err := api.svc.UnreadCount(ctx.Request().Context(), actor.ID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

func (api *notificationApi) retrieve(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.Get(ctx.Request().Context(), actor.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding notification")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkRead(ctx.Request().Context(), actor.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	count, err := api.svc.MarkAllRead(ctx.Request().Context(), actor.ID)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return ctx.NoContent(http.StatusNoContent)
}
