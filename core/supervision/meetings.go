package supervision

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
)

// ScheduleMeeting plans a meeting on the active relationship `relID`. The other party is
// notified and, when the creator connected a calendar, the meeting is pushed to it.
func (svc *Service) ScheduleMeeting(ctx context.Context, actor user.User, relID string, nm NewMeeting) (Meeting, error) {
	rel, err := svc.repo.GetRelationshipByID(ctx, relID)
	if err != nil {
		return Meeting{}, err
	}
	if !rel.IsParty(actor.ID) {
		return Meeting{}, core.ErrPermissionDenied
	}
	if !rel.IsActive() {
		return Meeting{}, core.NewTransitionError("meetings can only be scheduled on an active supervision")
	}

	m, err := svc.repo.CreateMeeting(ctx, Meeting{
		RelationshipID: rel.ID,
		Title:          nm.Title,
		Agenda:         nm.Agenda,
		Location:       nm.Location,
		ScheduledFor:   nm.ScheduledFor.UTC(),
		CreatedBy:      actor.ID,
		CreatedAt:      svc.now().UTC(),
	})
	if err != nil {
		return Meeting{}, errors.Wrap(err, "creating meeting")
	}

	if svc.calendar != nil {
		eventID, err := svc.calendar.PushMeeting(ctx, actor.ID, m)
		switch {
		case err != nil:
			// the meeting stands without its calendar event
			svc.logger.Error(fmt.Sprintf("supervision.ScheduleMeeting: pushing to calendar: %v", err), err, actor)
		case eventID != "":
			if err = svc.repo.SetMeetingEventID(ctx, m.ID, eventID); err != nil {
				return Meeting{}, errors.Wrap(err, "setting calendar event ID")
			}
			m.CalendarEventID = eventID
		}
	}

	var out outbox
	out.add(rel.Counterpart(actor.ID), TopicMeetingScheduled, "New supervision meeting",
		fmt.Sprintf("%s scheduled %q on %s.", actor.Name, m.Title, m.ScheduledFor.Format("Mon 2 Jan 2006 15:04 MST")),
		notification.Data{"meeting_id": m.ID, "relationship_id": rel.ID})
	svc.flush(ctx, out)
	return m, nil
}

// ListMeetings lists the meetings of a relationship `actor` is party to.
func (svc *Service) ListMeetings(ctx context.Context, actor user.User, relID string) ([]Meeting, error) {
	if _, err := svc.GetRelationship(ctx, actor, relID); err != nil {
		return nil, err
	}
	return svc.repo.ListMeetings(ctx, relID)
}

// CancelMeeting deletes a meeting and its calendar event; only its creator may.
func (svc *Service) CancelMeeting(ctx context.Context, actor user.User, id string) error {
	m, err := svc.repo.GetMeetingByID(ctx, id)
	if err != nil {
		return err
	}
	if m.CreatedBy != actor.ID {
		return core.ErrPermissionDenied
	}
	rel, err := svc.repo.GetRelationshipByID(ctx, m.RelationshipID)
	if err != nil {
		return errors.Wrap(err, "finding relationship")
	}
	if err = svc.repo.DeleteMeeting(ctx, id); err != nil {
		return errors.Wrap(err, "deleting meeting")
	}

	if svc.calendar != nil && m.CalendarEventID != "" {
		if err = svc.calendar.RemoveMeeting(ctx, actor.ID, m.CalendarEventID); err != nil {
			svc.logger.Error(fmt.Sprintf("supervision.CancelMeeting: removing from calendar: %v", err), err, actor)
		}
	}

	var out outbox
	out.add(rel.Counterpart(actor.ID), TopicMeetingCancelled, "Supervision meeting cancelled",
		fmt.Sprintf("%s cancelled %q.", actor.Name, m.Title), notification.Data{"relationship_id": rel.ID})
	svc.flush(ctx, out)
	return nil
}
