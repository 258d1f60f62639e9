package supervision

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
)

var (
	// errors
	ErrRequestNotFound      = core.NewNotFoundError("supervision request")
	ErrRelationshipNotFound = core.NewNotFoundError("supervision relationship")
	ErrUnbindNotFound       = core.NewNotFoundError("unbind request")
	ErrInvitationNotFound   = core.NewNotFoundError("co-supervisor invitation")
	ErrMeetingNotFound      = core.NewNotFoundError("meeting")
)

// Notification topics
const (
	TopicRequestSubmitted     = "supervision.request.submitted"
	TopicRequestCancelled     = "supervision.request.cancelled"
	TopicRequestRejected      = "supervision.request.rejected"
	TopicRequestOffered       = "supervision.request.offered"
	TopicOfferAccepted        = "supervision.offer.accepted"
	TopicOfferDeclined        = "supervision.offer.declined"
	TopicRequestAutoCancelled = "supervision.request.auto_cancelled"
	TopicUnbindRequested      = "supervision.unbind.requested"
	TopicUnbindApproved       = "supervision.unbind.approved"
	TopicUnbindRejected       = "supervision.unbind.rejected"
	TopicUnbindCancelled      = "supervision.unbind.cancelled"
	TopicForceUnbound         = "supervision.unbind.forced"
	TopicInvitationReceived   = "supervision.cosupervisor.invited"
	TopicInvitationAccepted   = "supervision.cosupervisor.accepted"
	TopicInvitationDeclined   = "supervision.cosupervisor.declined"
	TopicInvitationApproved   = "supervision.cosupervisor.approved"
	TopicInvitationRejected   = "supervision.cosupervisor.rejected"
	TopicInvitationCancelled  = "supervision.cosupervisor.cancelled"
	TopicMeetingScheduled     = "supervision.meeting.scheduled"
	TopicMeetingCancelled     = "supervision.meeting.cancelled"
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, r Request, exec ...core.DBExecutor) (Request, error)
		GetRequestByID(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error)
		UpdateRequest(ctx context.Context, r Request, exec ...core.DBExecutor) (Request, error)
		// FilterRequests returns the matching requests, newest first.
		FilterRequests(ctx context.Context, filter RequestFilter, exec ...core.DBExecutor) ([]Request, error)

		CreateRelationship(ctx context.Context, rel Relationship, exec ...core.DBExecutor) (Relationship, error)
		GetRelationshipByID(ctx context.Context, id string, exec ...core.DBExecutor) (Relationship, error)
		UpdateRelationship(ctx context.Context, rel Relationship, exec ...core.DBExecutor) (Relationship, error)
		// FilterRelationships returns the matching relationships, most recently started first.
		FilterRelationships(ctx context.Context, filter RelationshipFilter, exec ...core.DBExecutor) ([]Relationship, error)

		CreateUnbindRequest(ctx context.Context, ur UnbindRequest, exec ...core.DBExecutor) (UnbindRequest, error)
		GetUnbindRequestByID(ctx context.Context, id string, exec ...core.DBExecutor) (UnbindRequest, error)
		UpdateUnbindRequest(ctx context.Context, ur UnbindRequest, exec ...core.DBExecutor) (UnbindRequest, error)
		// FilterUnbindRequests returns the matching unbind requests, newest first.
		FilterUnbindRequests(ctx context.Context, filter UnbindFilter, exec ...core.DBExecutor) ([]UnbindRequest, error)

		CreateInvitation(ctx context.Context, inv CoSupervisorInvitation, exec ...core.DBExecutor) (CoSupervisorInvitation, error)
		GetInvitationByID(ctx context.Context, id string, exec ...core.DBExecutor) (CoSupervisorInvitation, error)
		UpdateInvitation(ctx context.Context, inv CoSupervisorInvitation, exec ...core.DBExecutor) (CoSupervisorInvitation, error)
		// FilterInvitations returns the matching invitations, newest first.
		FilterInvitations(ctx context.Context, filter InvitationFilter, exec ...core.DBExecutor) ([]CoSupervisorInvitation, error)

		CreateMeeting(ctx context.Context, m Meeting, exec ...core.DBExecutor) (Meeting, error)
		GetMeetingByID(ctx context.Context, id string, exec ...core.DBExecutor) (Meeting, error)
		SetMeetingEventID(ctx context.Context, id, eventID string, exec ...core.DBExecutor) error
		// ListMeetings returns the meetings of a relationship in schedule order.
		ListMeetings(ctx context.Context, relationshipID string, exec ...core.DBExecutor) ([]Meeting, error)
		DeleteMeeting(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Notifier interface {
		Notify(ctx context.Context, nn notification.NewNotification, exec ...core.DBExecutor) (notification.Notification, error)
	}

	// CalendarPusher mirrors meetings in the external calendar of a user.
	// PushMeeting returns an empty event ID when the user has no calendar connected.
	CalendarPusher interface {
		PushMeeting(ctx context.Context, userID string, m Meeting) (string, error)
		RemoveMeeting(ctx context.Context, userID, eventID string) error
	}

	Service struct {
		db       core.DB
		repo     Repository
		users    UserGetter
		notifier Notifier
		calendar CalendarPusher
		conf     core.SupervisionConfig
		logger   core.Logger
		now      func() time.Time
	}
)

func NewService(db core.DB, repo Repository, users UserGetter, notifier Notifier, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		users:    users,
		notifier: notifier,
		conf:     conf.Supervision,
		logger:   logger,
		now:      time.Now,
	}
}

func (svc *Service) WithClock(now func() time.Time) *Service {
	svc.now = now
	return svc
}

// Now is the service clock; inputs checked against the current time use it.
func (svc *Service) Now() time.Time {
	return svc.now()
}

// WithCalendar enables pushing meetings to the creator's calendar.
func (svc *Service) WithCalendar(cal CalendarPusher) *Service {
	svc.calendar = cal
	return svc
}

// outbox collects the notifications of a transition; they are sent once its transaction committed.
type outbox []notification.NewNotification

func (o *outbox) add(recipientID, topic, title, body string, data notification.Data) {
	*o = append(*o, notification.NewNotification{
		RecipientID: recipientID,
		Topic:       topic,
		Title:       title,
		Body:        body,
		Data:        data,
		Email:       true,
	})
}

func (svc *Service) flush(ctx context.Context, o outbox) {
	if svc.notifier == nil {
		return
	}
	for _, nn := range o {
		if _, err := svc.notifier.Notify(ctx, nn); err != nil {
			svc.logger.Error(fmt.Sprintf("supervision.notify(%s): %v", nn.Topic, err), err)
		}
	}
}

func (svc *Service) getUser(ctx context.Context, id string) (user.User, error) {
	usr, err := svc.users.GetByID(ctx, id)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

// checkAcademician validates that `id` is an active academician; `field` names the offending input.
func (svc *Service) checkAcademician(ctx context.Context, field, id string) (user.User, error) {
	usr, err := svc.users.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, core.NewValidationError(nil, core.FieldError{Field: field, Error: "unknown academician"})
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive || !usr.IsAcademician() {
		return user.User{}, core.NewValidationError(nil, core.FieldError{Field: field, Error: "this user is not an academician"})
	}
	return usr, nil
}

func (svc *Service) activeMain(ctx context.Context, studentID string, exec core.DBExecutor) (Relationship, bool, error) {
	rels, err := svc.repo.FilterRelationships(ctx, RelationshipFilter{
		StudentID: studentID,
		Role:      RoleMain,
		Status:    RelationshipActive,
	}, exec)
	if err != nil {
		return Relationship{}, false, errors.Wrap(err, "filtering relationships")
	}
	if len(rels) == 0 {
		return Relationship{}, false, nil
	}
	return rels[0], true, nil
}

// supervises reports whether `academicianID` has an active relationship of any role with the student.
func (svc *Service) supervises(ctx context.Context, studentID, academicianID string, exec core.DBExecutor) (bool, error) {
	rels, err := svc.repo.FilterRelationships(ctx, RelationshipFilter{
		StudentID:     studentID,
		AcademicianID: academicianID,
		Status:        RelationshipActive,
	}, exec)
	if err != nil {
		return false, errors.Wrap(err, "filtering relationships")
	}
	return len(rels) > 0, nil
}

// ActiveMainSupervision returns the active main relationship of a student, if any.
func (svc *Service) ActiveMainSupervision(ctx context.Context, studentID string) (Relationship, error) {
	rel, ok, err := svc.activeMain(ctx, studentID, nil)
	if err != nil {
		return Relationship{}, err
	}
	if !ok {
		return Relationship{}, ErrRelationshipNotFound
	}
	return rel, nil
}

// terminate ends `rel` and cancels the co-supervisor invitations still open on it.
// Co-supervision relationships of the student are left untouched.
func (svc *Service) terminate(ctx context.Context, rel Relationship, reason string, exec core.DBExecutor) (Relationship, error) {
	now := svc.now().UTC()
	rel.Status = RelationshipTerminated
	rel.TerminatedAt = &now
	rel.TerminationReason = reason
	rel, err := svc.repo.UpdateRelationship(ctx, rel, exec)
	if err != nil {
		return Relationship{}, errors.Wrap(err, "updating relationship")
	}

	invs, err := svc.repo.FilterInvitations(ctx, InvitationFilter{RelationshipID: rel.ID, OpenOnly: true}, exec)
	if err != nil {
		return Relationship{}, errors.Wrap(err, "filtering invitations")
	}
	for _, inv := range invs {
		inv.CancelledAt = &now
		inv.UpdatedAt = now
		if _, err = svc.repo.UpdateInvitation(ctx, inv, exec); err != nil {
			return Relationship{}, errors.Wrap(err, "cancelling invitation")
		}
	}
	return rel, nil
}

// GetRelationship returns a relationship visible to `actor`: its parties and admins.
func (svc *Service) GetRelationship(ctx context.Context, actor user.User, id string) (Relationship, error) {
	rel, err := svc.repo.GetRelationshipByID(ctx, id)
	if err != nil {
		return Relationship{}, err
	}
	if !rel.IsParty(actor.ID) && !actor.IsAdmin() {
		return Relationship{}, core.ErrPermissionDenied
	}
	return rel, nil
}

// ListRelationships lists the relationships of `actor`; admins may list anybody's.
func (svc *Service) ListRelationships(ctx context.Context, actor user.User, filter RelationshipFilter) ([]Relationship, error) {
	if !actor.IsAdmin() {
		if actor.IsAcademician() {
			filter.AcademicianID = actor.ID
		} else {
			filter.StudentID = actor.ID
		}
	}
	return svc.repo.FilterRelationships(ctx, filter)
}
