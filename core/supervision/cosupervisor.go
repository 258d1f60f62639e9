package supervision

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
)

func invitationData(inv CoSupervisorInvitation) notification.Data {
	return notification.Data{"invitation_id": inv.ID, "relationship_id": inv.RelationshipID}
}

// countCoSupervisors counts the active co-supervisors of a student plus the invitations still open.
func (svc *Service) countCoSupervisors(ctx context.Context, studentID string, exec core.DBExecutor) (int, error) {
	cos, err := svc.repo.FilterRelationships(ctx, RelationshipFilter{StudentID: studentID, Role: RoleCo, Status: RelationshipActive}, exec)
	if err != nil {
		return 0, errors.Wrap(err, "filtering relationships")
	}
	open, err := svc.repo.FilterInvitations(ctx, InvitationFilter{StudentID: studentID, OpenOnly: true}, exec)
	if err != nil {
		return 0, errors.Wrap(err, "filtering invitations")
	}
	return len(cos) + len(open), nil
}

// InviteCoSupervisor starts the two-stage co-supervisor invitation on the active main
// relationship `relID`. The student or the main supervisor may initiate; the invitee accepts
// first, then the other party of the main relationship approves.
func (svc *Service) InviteCoSupervisor(ctx context.Context, actor user.User, relID string, ni NewInvitation) (CoSupervisorInvitation, error) {
	invitee, err := svc.checkAcademician(ctx, "cosupervisor_id", ni.CosupervisorID)
	if err != nil {
		return CoSupervisorInvitation{}, err
	}

	var (
		inv CoSupervisorInvitation
		out outbox
	)
	err = core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		rel, err := svc.repo.GetRelationshipByID(ctx, relID, exec)
		if err != nil {
			return err
		}
		if !rel.IsParty(actor.ID) {
			return core.ErrPermissionDenied
		}
		if !rel.IsActive() || rel.Role != RoleMain {
			return core.NewTransitionError("co-supervisors can only join an active main supervision")
		}
		if invitee.ID == rel.AcademicianID {
			return core.NewValidationError(nil, core.FieldError{Field: "cosupervisor_id", Error: "the main supervisor cannot be a co-supervisor"})
		}

		if ok, err := svc.supervises(ctx, rel.StudentID, invitee.ID, exec); err != nil {
			return err
		} else if ok {
			return core.NewTransitionError("this academician already supervises the student")
		}

		open, err := svc.repo.FilterInvitations(ctx, InvitationFilter{StudentID: rel.StudentID, CosupervisorID: invitee.ID, OpenOnly: true}, exec)
		if err != nil {
			return errors.Wrap(err, "filtering invitations")
		}
		if len(open) > 0 {
			return core.NewTransitionError("this academician already has an open invitation")
		}

		count, err := svc.countCoSupervisors(ctx, rel.StudentID, exec)
		if err != nil {
			return err
		}
		if count >= svc.conf.MaxCoSupervisors {
			return core.NewTransitionError(fmt.Sprintf("a student cannot have more than %d co-supervisors", svc.conf.MaxCoSupervisors))
		}

		role := InitiatorMainSupervisor
		if actor.ID == rel.StudentID {
			role = InitiatorStudent
		}
		now := svc.now().UTC()
		inv, err = svc.repo.CreateInvitation(ctx, CoSupervisorInvitation{
			RelationshipID:     rel.ID,
			StudentID:          rel.StudentID,
			CosupervisorID:     invitee.ID,
			InitiatorID:        actor.ID,
			InitiatorRole:      role,
			ApproverID:         rel.Counterpart(actor.ID),
			Message:            ni.Message,
			CosupervisorStatus: InviteePending,
			ApproverStatus:     ApprovalPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating invitation")
		}
		out.add(invitee.ID, TopicInvitationReceived, "Co-supervision invitation",
			fmt.Sprintf("%s invited you to co-supervise a student.", actor.Name), invitationData(inv))
		return nil
	})
	if err != nil {
		return CoSupervisorInvitation{}, err
	}
	svc.flush(ctx, out)
	return inv, nil
}

// updateInvitation loads the open invitation `id`, lets `fn` change it and saves it, in one transaction.
func (svc *Service) updateInvitation(ctx context.Context, id string, fn func(inv *CoSupervisorInvitation, exec core.DBExecutor, out *outbox) error) (CoSupervisorInvitation, error) {
	var (
		inv CoSupervisorInvitation
		out outbox
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if inv, err = svc.repo.GetInvitationByID(ctx, id, exec); err != nil {
			return err
		}
		if err = fn(&inv, exec, &out); err != nil {
			return err
		}
		inv.UpdatedAt = svc.now().UTC()
		inv, err = svc.repo.UpdateInvitation(ctx, inv, exec)
		return errors.Wrap(err, "updating invitation")
	})
	if err != nil {
		return CoSupervisorInvitation{}, err
	}
	svc.flush(ctx, out)
	return inv, nil
}

// RespondToInvitation records the invitee's answer (stage 1).
func (svc *Service) RespondToInvitation(ctx context.Context, actor user.User, id string, accept bool) (CoSupervisorInvitation, error) {
	return svc.updateInvitation(ctx, id, func(inv *CoSupervisorInvitation, _ core.DBExecutor, out *outbox) error {
		if inv.CosupervisorID != actor.ID {
			return core.ErrPermissionDenied
		}
		if !inv.IsOpen() || inv.CosupervisorStatus != InviteePending {
			return core.NewTransitionError("this invitation no longer waits for your answer")
		}
		if !accept {
			inv.CosupervisorStatus = InviteeDeclined
			out.add(inv.InitiatorID, TopicInvitationDeclined, "Co-supervision invitation declined",
				fmt.Sprintf("%s declined to co-supervise.", actor.Name), invitationData(*inv))
			return nil
		}
		inv.CosupervisorStatus = InviteeAccepted
		out.add(inv.InitiatorID, TopicInvitationAccepted, "Co-supervision invitation accepted",
			fmt.Sprintf("%s accepted to co-supervise.", actor.Name), invitationData(*inv))
		out.add(inv.ApproverID, TopicInvitationAccepted, "Co-supervisor awaiting your approval",
			fmt.Sprintf("%s accepted to co-supervise and awaits your approval.", actor.Name), invitationData(*inv))
		return nil
	})
}

// DecideInvitation records the approver's decision (stage 2). Approval creates the
// co-supervision relationship and completes the invitation.
func (svc *Service) DecideInvitation(ctx context.Context, actor user.User, id string, approve bool) (CoSupervisorInvitation, error) {
	return svc.updateInvitation(ctx, id, func(inv *CoSupervisorInvitation, exec core.DBExecutor, out *outbox) error {
		if inv.ApproverID != actor.ID {
			return core.ErrPermissionDenied
		}
		if !inv.IsOpen() {
			return core.NewTransitionError("this invitation is closed")
		}
		if inv.CosupervisorStatus != InviteeAccepted {
			return core.NewTransitionError("the invited academician has not accepted yet")
		}

		if !approve {
			inv.ApproverStatus = ApprovalRejected
			for _, recipient := range []string{inv.CosupervisorID, inv.InitiatorID} {
				out.add(recipient, TopicInvitationRejected, "Co-supervision not approved",
					fmt.Sprintf("%s did not approve the co-supervision.", actor.Name), invitationData(*inv))
			}
			return nil
		}

		mainRel, err := svc.repo.GetRelationshipByID(ctx, inv.RelationshipID, exec)
		if err != nil {
			return errors.Wrap(err, "finding main relationship")
		}
		if !mainRel.IsActive() {
			return core.NewTransitionError("the main supervision has ended")
		}
		if ok, err := svc.supervises(ctx, inv.StudentID, inv.CosupervisorID, exec); err != nil {
			return err
		} else if ok {
			return core.NewTransitionError("this academician already supervises the student")
		}

		now := svc.now().UTC()
		inv.ApproverStatus = ApprovalApproved
		inv.CompletedAt = &now
		rel, err := svc.repo.CreateRelationship(ctx, Relationship{
			StudentID:     inv.StudentID,
			AcademicianID: inv.CosupervisorID,
			Role:          RoleCo,
			Status:        RelationshipActive,
			StartedAt:     now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating co-supervision")
		}

		data := invitationData(*inv)
		data["cosupervision_id"] = rel.ID
		recipients := []string{inv.CosupervisorID, inv.InitiatorID}
		if inv.StudentID != inv.InitiatorID && inv.StudentID != actor.ID {
			recipients = append(recipients, inv.StudentID)
		}
		for _, recipient := range recipients {
			out.add(recipient, TopicInvitationApproved, "Co-supervision started",
				"The co-supervision was approved and is now active.", data)
		}
		return nil
	})
}

// CancelInvitation withdraws an open invitation; only its initiator may.
func (svc *Service) CancelInvitation(ctx context.Context, actor user.User, id string) (CoSupervisorInvitation, error) {
	return svc.updateInvitation(ctx, id, func(inv *CoSupervisorInvitation, _ core.DBExecutor, out *outbox) error {
		if inv.InitiatorID != actor.ID {
			return core.ErrPermissionDenied
		}
		if !inv.IsOpen() {
			return core.NewTransitionError("this invitation is closed")
		}
		now := svc.now().UTC()
		inv.CancelledAt = &now
		out.add(inv.CosupervisorID, TopicInvitationCancelled, "Co-supervision invitation withdrawn",
			fmt.Sprintf("%s withdrew the co-supervision invitation.", actor.Name), invitationData(*inv))
		return nil
	})
}

func (svc *Service) GetInvitation(ctx context.Context, actor user.User, id string) (CoSupervisorInvitation, error) {
	inv, err := svc.repo.GetInvitationByID(ctx, id)
	if err != nil {
		return CoSupervisorInvitation{}, err
	}
	if !inv.IsParty(actor.ID) && !actor.IsAdmin() {
		return CoSupervisorInvitation{}, core.ErrPermissionDenied
	}
	return inv, nil
}

// ListInvitations lists the invitations `actor` takes part in; admins may list any.
func (svc *Service) ListInvitations(ctx context.Context, actor user.User, filter InvitationFilter) ([]CoSupervisorInvitation, error) {
	if !actor.IsAdmin() {
		filter.ParticipantID = actor.ID
	}
	return svc.repo.FilterInvitations(ctx, filter)
}
