package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core/supervision"
)

type supervisionApi struct {
	apiBase
	svc *supervision.Service
}

func registerSupervisionAPI(g *echo.Group, jwt echo.MiddlewareFunc, base apiBase, svc *supervision.Service) {
	api := supervisionApi{apiBase: base, svc: svc}

	sg := g.Group("/supervision", jwt)

	rg := sg.Group("/requests")
	rg.POST("", api.submit)
	rg.GET("", api.listRequests)
	rg.GET("/:id", api.retrieveRequest)
	rg.POST("/:id/cancel", api.cancelRequest)
	rg.POST("/:id/reject", api.rejectRequest)
	rg.POST("/:id/offer", api.offer)
	rg.POST("/:id/accept", api.acceptOffer)
	rg.POST("/:id/decline", api.declineOffer)

	relg := sg.Group("/relationships")
	relg.GET("", api.listRelationships)
	relg.GET("/:id", api.retrieveRelationship)
	relg.POST("/:id/unbind-requests", api.requestUnbind)
	relg.GET("/:id/unbind-requests", api.listUnbindRequests)
	relg.POST("/:id/cosupervisor-invitations", api.invite)
	relg.POST("/:id/meetings", api.scheduleMeeting)
	relg.GET("/:id/meetings", api.listMeetings)

	ug := sg.Group("/unbind-requests")
	ug.GET("/:id", api.retrieveUnbind)
	ug.POST("/:id/approve", api.approveUnbind)
	ug.POST("/:id/reject", api.rejectUnbind)
	ug.POST("/:id/cancel", api.cancelUnbind)

	ig := sg.Group("/cosupervisor-invitations")
	ig.GET("", api.listInvitations)
	ig.GET("/:id", api.retrieveInvitation)
	ig.POST("/:id/accept", api.respondToInvitation(true))
	ig.POST("/:id/decline", api.respondToInvitation(false))
	ig.POST("/:id/approve", api.decideInvitation(true))
	ig.POST("/:id/reject", api.decideInvitation(false))
	ig.POST("/:id/cancel", api.cancelInvitation)

	sg.DELETE("/meetings/:id", api.cancelMeeting)
}

// Requests

func (api *supervisionApi) submit(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data supervision.NewRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Submit(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "submitting request")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *supervisionApi) listRequests(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var filter supervision.RequestFilter
	if err = bindQuery(ctx, &filter); err != nil {
		return err
	}

	reqs, err := api.svc.ListRequests(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "listing requests")
	}
	return ctx.JSON(http.StatusOK, orEmpty(reqs))
}

func (api *supervisionApi) retrieveRequest(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	req, err := api.svc.GetRequest(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding request")
	}
	return ctx.JSON(http.StatusOK, req)
}

// bindReason reads the optional `{"reason": ...}` body of refusals and cancellations.
func (api *supervisionApi) bindReason(ctx echo.Context) (supervision.Reason, error) {
	var data supervision.Reason
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to Reason")
	}
	return data, data.Validate(api.validate)
}

func (api *supervisionApi) cancelRequest(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	reason, err := api.bindReason(ctx)
	if err != nil {
		return err
	}
	req, err := api.svc.Cancel(ctx.Request().Context(), actor, ctx.Param("id"), reason)
	if err != nil {
		return errors.Wrap(err, "cancelling request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *supervisionApi) rejectRequest(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	reason, err := api.bindReason(ctx)
	if err != nil {
		return err
	}
	req, err := api.svc.Reject(ctx.Request().Context(), actor, ctx.Param("id"), reason)
	if err != nil {
		return errors.Wrap(err, "rejecting request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *supervisionApi) offer(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data supervision.Offer
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Offer")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Offer(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "offering supervision")
	}
	return ctx.JSON(http.StatusOK, req)
}

type AcceptOfferResponse struct {
	Request      supervision.Request      `json:"request"`
	Relationship supervision.Relationship `json:"relationship"`
}

func (api *supervisionApi) acceptOffer(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	req, rel, err := api.svc.AcceptOffer(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "accepting offer")
	}
	return ctx.JSON(http.StatusOK, AcceptOfferResponse{Request: req, Relationship: rel})
}

func (api *supervisionApi) declineOffer(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	req, err := api.svc.DeclineOffer(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "declining offer")
	}
	return ctx.JSON(http.StatusOK, req)
}

// Relationships

func (api *supervisionApi) listRelationships(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var filter supervision.RelationshipFilter
	if err = bindQuery(ctx, &filter); err != nil {
		return err
	}

	rels, err := api.svc.ListRelationships(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "listing relationships")
	}
	return ctx.JSON(http.StatusOK, orEmpty(rels))
}

func (api *supervisionApi) retrieveRelationship(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	rel, err := api.svc.GetRelationship(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding relationship")
	}
	return ctx.JSON(http.StatusOK, rel)
}

// Unbind requests

func (api *supervisionApi) requestUnbind(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data supervision.NewUnbindRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUnbindRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ur, err := api.svc.RequestUnbind(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "requesting unbind")
	}
	return ctx.JSON(http.StatusCreated, ur)
}

func (api *supervisionApi) listUnbindRequests(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	urs, err := api.svc.ListUnbindRequests(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing unbind requests")
	}
	return ctx.JSON(http.StatusOK, orEmpty(urs))
}

func (api *supervisionApi) retrieveUnbind(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	ur, err := api.svc.GetUnbindRequest(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding unbind request")
	}
	return ctx.JSON(http.StatusOK, ur)
}

func (api *supervisionApi) approveUnbind(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	ur, err := api.svc.ApproveUnbind(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving unbind request")
	}
	return ctx.JSON(http.StatusOK, ur)
}

func (api *supervisionApi) rejectUnbind(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	reason, err := api.bindReason(ctx)
	if err != nil {
		return err
	}
	ur, err := api.svc.RejectUnbind(ctx.Request().Context(), actor, ctx.Param("id"), reason)
	if err != nil {
		return errors.Wrap(err, "rejecting unbind request")
	}
	return ctx.JSON(http.StatusOK, ur)
}

func (api *supervisionApi) cancelUnbind(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	ur, err := api.svc.CancelUnbind(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling unbind request")
	}
	return ctx.JSON(http.StatusOK, ur)
}

// Co-supervisor invitations

func (api *supervisionApi) invite(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data supervision.NewInvitation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvitation")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	inv, err := api.svc.InviteCoSupervisor(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "inviting co-supervisor")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *supervisionApi) listInvitations(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var filter supervision.InvitationFilter
	if err = bindQuery(ctx, &filter); err != nil {
		return err
	}

	invs, err := api.svc.ListInvitations(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "listing invitations")
	}
	return ctx.JSON(http.StatusOK, orEmpty(invs))
}

func (api *supervisionApi) retrieveInvitation(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	inv, err := api.svc.GetInvitation(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}

// respondToInvitation is the invitee's answer.
func (api *supervisionApi) respondToInvitation(accept bool) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := api.actor(ctx)
		if err != nil {
			return err
		}
		inv, err := api.svc.RespondToInvitation(ctx.Request().Context(), actor, ctx.Param("id"), accept)
		if err != nil {
			return errors.Wrap(err, "responding to invitation")
		}
		return ctx.JSON(http.StatusOK, inv)
	}
}

// decideInvitation is the approver's answer.
func (api *supervisionApi) decideInvitation(approve bool) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := api.actor(ctx)
		if err != nil {
			return err
		}
		inv, err := api.svc.DecideInvitation(ctx.Request().Context(), actor, ctx.Param("id"), approve)
		if err != nil {
			return errors.Wrap(err, "deciding invitation")
		}
		return ctx.JSON(http.StatusOK, inv)
	}
}

func (api *supervisionApi) cancelInvitation(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	inv, err := api.svc.CancelInvitation(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}

// Meetings

func (api *supervisionApi) scheduleMeeting(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	var data supervision.NewMeeting
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMeeting")
	}
	if err = data.Validate(api.validate, api.svc.Now()); err != nil {
		return err
	}

	m, err := api.svc.ScheduleMeeting(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "scheduling meeting")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *supervisionApi) listMeetings(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	meetings, err := api.svc.ListMeetings(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing meetings")
	}
	return ctx.JSON(http.StatusOK, orEmpty(meetings))
}

func (api *supervisionApi) cancelMeeting(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.CancelMeeting(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "cancelling meeting")
	}
	return ctx.NoContent(http.StatusNoContent)
}
