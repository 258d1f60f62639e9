package supervision

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
)

func unbindData(ur UnbindRequest) notification.Data {
	return notification.Data{"unbind_request_id": ur.ID, "relationship_id": ur.RelationshipID}
}

// RequestUnbind asks to end the active relationship `relID`. The counterpart has to approve,
// unless this is the initiator's last allowed attempt: the relationship is then ended at once.
func (svc *Service) RequestUnbind(ctx context.Context, actor user.User, relID string, nu NewUnbindRequest) (UnbindRequest, error) {
	var (
		ur  UnbindRequest
		out outbox
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		rel, err := svc.repo.GetRelationshipByID(ctx, relID, exec)
		if err != nil {
			return err
		}
		if !rel.IsParty(actor.ID) {
			return core.ErrPermissionDenied
		}
		if !rel.IsActive() {
			return core.NewTransitionError("this relationship has already ended")
		}

		pending, err := svc.repo.FilterUnbindRequests(ctx, UnbindFilter{RelationshipID: rel.ID, Status: UnbindPending}, exec)
		if err != nil {
			return errors.Wrap(err, "filtering unbind requests")
		}
		if len(pending) > 0 {
			return core.NewTransitionError("an unbind request is already pending for this relationship")
		}

		now := svc.now().UTC()
		previous, err := svc.repo.FilterUnbindRequests(ctx, UnbindFilter{RelationshipID: rel.ID, InitiatorID: actor.ID}, exec)
		if err != nil {
			return errors.Wrap(err, "filtering unbind requests")
		}
		attempt := 1
		if len(previous) > 0 {
			last := previous[0]
			if last.InCooldown(now) {
				return core.NewTransitionError(fmt.Sprintf("you can request to unbind again after %s", last.CooldownUntil.Format("2006-01-02 15:04 MST")))
			}
			attempt = last.AttemptCount + 1
		}

		role := InitiatorSupervisor
		if actor.ID == rel.StudentID {
			role = InitiatorStudent
		}
		ur = UnbindRequest{
			RelationshipID: rel.ID,
			InitiatorID:    actor.ID,
			InitiatorRole:  role,
			Reason:         nu.Reason,
			Status:         UnbindPending,
			AttemptCount:   attempt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		counterpart := rel.Counterpart(actor.ID)

		if attempt >= svc.conf.MaxUnbindAttempts {
			ur.Status = UnbindForceUnbound
			ur.RespondedAt = &now
			if ur, err = svc.repo.CreateUnbindRequest(ctx, ur, exec); err != nil {
				return errors.Wrap(err, "creating unbind request")
			}
			reason := fmt.Sprintf("force unbound after %d attempts: %s", attempt, nu.Reason)
			if _, err = svc.terminate(ctx, rel, reason, exec); err != nil {
				return err
			}
			out.add(counterpart, TopicForceUnbound, "Supervision ended",
				fmt.Sprintf("%s ended your supervision relationship after %d unbind requests.", actor.Name, attempt), unbindData(ur))
			return nil
		}

		if ur, err = svc.repo.CreateUnbindRequest(ctx, ur, exec); err != nil {
			return errors.Wrap(err, "creating unbind request")
		}
		out.add(counterpart, TopicUnbindRequested, "Unbind request",
			fmt.Sprintf("%s asked to end your supervision relationship: %s", actor.Name, nu.Reason), unbindData(ur))
		return nil
	})
	if err != nil {
		return UnbindRequest{}, err
	}
	svc.flush(ctx, out)
	return ur, nil
}

// respondUnbind loads the pending unbind request `id` and its relationship for the counterpart
// of its initiator, lets `fn` change them and saves the request, in one transaction.
func (svc *Service) respondUnbind(ctx context.Context, actor user.User, id string, initiatorOnly bool, fn func(ur *UnbindRequest, rel Relationship, exec core.DBExecutor, out *outbox) error) (UnbindRequest, error) {
	var (
		ur  UnbindRequest
		out outbox
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if ur, err = svc.repo.GetUnbindRequestByID(ctx, id, exec); err != nil {
			return err
		}
		rel, err := svc.repo.GetRelationshipByID(ctx, ur.RelationshipID, exec)
		if err != nil {
			return errors.Wrap(err, "finding relationship")
		}
		isInitiator := ur.InitiatorID == actor.ID
		if !rel.IsParty(actor.ID) || isInitiator != initiatorOnly {
			return core.ErrPermissionDenied
		}
		if ur.Status != UnbindPending {
			return core.NewTransitionError("this unbind request is no longer pending")
		}
		if err = fn(&ur, rel, exec, &out); err != nil {
			return err
		}
		ur.UpdatedAt = svc.now().UTC()
		ur, err = svc.repo.UpdateUnbindRequest(ctx, ur, exec)
		return errors.Wrap(err, "updating unbind request")
	})
	if err != nil {
		return UnbindRequest{}, err
	}
	svc.flush(ctx, out)
	return ur, nil
}

// ApproveUnbind ends the relationship; only the counterpart of the initiator may.
func (svc *Service) ApproveUnbind(ctx context.Context, actor user.User, id string) (UnbindRequest, error) {
	return svc.respondUnbind(ctx, actor, id, false, func(ur *UnbindRequest, rel Relationship, exec core.DBExecutor, out *outbox) error {
		now := svc.now().UTC()
		ur.Status = UnbindApproved
		ur.RespondedAt = &now
		if _, err := svc.terminate(ctx, rel, ur.Reason, exec); err != nil {
			return err
		}
		out.add(ur.InitiatorID, TopicUnbindApproved, "Unbind request approved",
			fmt.Sprintf("%s approved ending your supervision relationship.", actor.Name), unbindData(*ur))
		return nil
	})
}

// RejectUnbind keeps the relationship and starts the initiator's cooldown.
func (svc *Service) RejectUnbind(ctx context.Context, actor user.User, id string, reason Reason) (UnbindRequest, error) {
	return svc.respondUnbind(ctx, actor, id, false, func(ur *UnbindRequest, _ Relationship, _ core.DBExecutor, out *outbox) error {
		now := svc.now().UTC()
		cooldown := now.Add(svc.conf.UnbindCooldown)
		ur.Status = UnbindRejected
		ur.RejectionReason = reason.Reason
		ur.RespondedAt = &now
		ur.CooldownUntil = &cooldown
		out.add(ur.InitiatorID, TopicUnbindRejected, "Unbind request rejected",
			fmt.Sprintf("%s rejected ending your supervision relationship.", actor.Name), unbindData(*ur))
		return nil
	})
}

// CancelUnbind withdraws a pending unbind request; only its initiator may.
func (svc *Service) CancelUnbind(ctx context.Context, actor user.User, id string) (UnbindRequest, error) {
	return svc.respondUnbind(ctx, actor, id, true, func(ur *UnbindRequest, rel Relationship, _ core.DBExecutor, out *outbox) error {
		ur.Status = UnbindCancelled
		out.add(rel.Counterpart(actor.ID), TopicUnbindCancelled, "Unbind request withdrawn",
			fmt.Sprintf("%s withdrew the request to end your supervision relationship.", actor.Name), unbindData(*ur))
		return nil
	})
}

// ListUnbindRequests lists the unbind requests of a relationship `actor` is party to.
func (svc *Service) ListUnbindRequests(ctx context.Context, actor user.User, relID string) ([]UnbindRequest, error) {
	if _, err := svc.GetRelationship(ctx, actor, relID); err != nil {
		return nil, err
	}
	return svc.repo.FilterUnbindRequests(ctx, UnbindFilter{RelationshipID: relID})
}

func (svc *Service) GetUnbindRequest(ctx context.Context, actor user.User, id string) (UnbindRequest, error) {
	ur, err := svc.repo.GetUnbindRequestByID(ctx, id)
	if err != nil {
		return UnbindRequest{}, err
	}
	if _, err = svc.GetRelationship(ctx, actor, ur.RelationshipID); err != nil {
		return UnbindRequest{}, err
	}
	return ur, nil
}
