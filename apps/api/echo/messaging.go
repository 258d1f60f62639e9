package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core/messaging"
)

type messagingApi struct {
	apiBase
	svc *messaging.Service
}

func registerMessagingAPI(g *echo.Group, jwt echo.MiddlewareFunc, base apiBase, svc *messaging.Service) {
	api := messagingApi{apiBase: base, svc: svc}

	cg := g.Group("/conversations", jwt)
	cg.GET("", api.list)
	cg.POST("", api.start)
	cg.GET("/unread-count", api.unreadCount)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/messages", api.listMessages)
	cg.POST("/:id/messages", api.send)
	cg.POST("/:id/read", api.markRead)
}

func (api *messagingApi) list(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	convs, count, err := api.svc.ListConversations(ctx.Request().Context(), actor, page)
	if err != nil {
		return errors.Wrap(err, "listing conversations")
	}
	return ctx.JSON(http.StatusOK, newPage(convs, count, page))
}

// start returns the conversation with the participant, creating it on first contact.
func (api *messagingApi) start(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data messaging.StartConversation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartConversation")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	conv, err := api.svc.Start(ctx.Request().Context(), actor, data.ParticipantID)
	if err != nil {
		return errors.Wrap(err, "starting conversation")
	}
	return ctx.JSON(http.StatusOK, conv)
}

func (api *messagingApi) unreadCount(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	count, err := api.svc.UnreadCount(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "counting unread messages")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

func (api *messagingApi) retrieve(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	conv, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding conversation")
	}
	return ctx.JSON(http.StatusOK, conv)
}

func (api *messagingApi) listMessages(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	msgs, count, err := api.svc.ListMessages(ctx.Request().Context(), actor, ctx.Param("id"), page)
	if err != nil {
		return errors.Wrap(err, "listing messages")
	}
	return ctx.JSON(http.StatusOK, newPage(msgs, count, page))
}

func (api *messagingApi) send(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data messaging.NewMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messagingApi) markRead(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	count, err := api.svc.MarkRead(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking conversation read")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}
