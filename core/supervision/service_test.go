package supervision_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/user"
	emailsvc "github.com/nexscholar/nexscholar/services/email"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
	testutil "github.com/nexscholar/nexscholar/tests"
)

const day = 24 * time.Hour

type env struct {
	svc      *supervision.Service
	notifSvc *notification.Service
	clock    *testutil.Clock
	calendar *fakeCalendar

	student, student2, undergrad user.User
	acad1, acad2, acad3, acad4   user.User
}

type fakeCalendar struct {
	connected map[string]bool
	events    map[string]string // eventID: meeting title
	fail      bool
}

func (c *fakeCalendar) PushMeeting(_ context.Context, userID string, m supervision.Meeting) (string, error) {
	if c.fail {
		return "", fmt.Errorf("calendar unavailable")
	}
	if !c.connected[userID] {
		return "", nil
	}
	id := "evt-" + m.ID
	c.events[id] = m.Title
	return id, nil
}

func (c *fakeCalendar) RemoveMeeting(_ context.Context, _ string, eventID string) error {
	delete(c.events, eventID)
	return nil
}

func setup(t *testing.T, opts ...func(conf *core.Config)) *env {
	t.Helper()
	conf := core.NewTestConfig()
	for _, opt := range opts {
		opt(conf)
	}
	logger := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.Open()
	userRepo := inmemdb.NewUserRepository(db)
	mailer := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(nil, userRepo, mailer, conf)

	e := &env{
		clock:    testutil.NewClock(time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)),
		calendar: &fakeCalendar{connected: map[string]bool{}, events: map[string]string{}},
	}
	e.notifSvc = notification.NewService(inmemdb.NewNotificationRepository(db), usrSvc, mailer, logger).WithClock(e.clock.Now)
	e.svc = supervision.NewService(nil, inmemdb.NewSupervisionRepository(db), usrSvc, e.notifSvc, conf, logger).
		WithClock(e.clock.Now).
		WithCalendar(e.calendar)

	mk := func(name, uname string, role string) user.User {
		return testutil.CreateUser(t, userRepo, name, uname, uname+"@example.com", "", []string{role}, true)
	}
	e.student = mk("Nur Aina", "nuraina", user.RolePostgraduate)
	e.student2 = mk("Lim Wei", "limwei", user.RolePostgraduate)
	e.undergrad = mk("Ravi Kumar", "ravikumar", user.RoleUndergraduate)
	e.acad1 = mk("Dr. Aisyah Rahman", "aisyah", user.RoleAcademician)
	e.acad2 = mk("Prof. Tan Boon", "tanboon", user.RoleAcademician)
	e.acad3 = mk("Dr. Siti Hajar", "sitihajar", user.RoleAcademician)
	e.acad4 = mk("Dr. Wong Mei", "wongmei", user.RoleAcademician)
	return e
}

func (e *env) topics(t *testing.T, recipient user.User) []string {
	t.Helper()
	list, _, err := e.notifSvc.List(context.Background(), recipient.ID, notification.QueryFilter{}, core.Pagination{PerPage: 100})
	require.NoError(t, err)
	topics := make([]string, 0, len(list))
	for _, n := range list {
		topics = append(topics, n.Topic)
	}
	return topics
}

func (e *env) submit(t *testing.T, student, acad user.User) supervision.Request {
	t.Helper()
	req, err := e.svc.Submit(context.Background(), student, supervision.NewRequest{AcademicianID: acad.ID, ProposalTitle: "Federated learning for clinics"})
	require.NoError(t, err)
	return req
}

// supervise makes `acad` the main supervisor of `student`.
func (e *env) supervise(t *testing.T, student, acad user.User) supervision.Relationship {
	t.Helper()
	ctx := context.Background()
	req := e.submit(t, student, acad)
	_, err := e.svc.Offer(ctx, acad, req.ID, supervision.Offer{})
	require.NoError(t, err)
	_, rel, err := e.svc.AcceptOffer(ctx, student, req.ID)
	require.NoError(t, err)
	return rel
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.svc.Submit(ctx, e.undergrad, supervision.NewRequest{AcademicianID: e.acad1.ID, ProposalTitle: "x"})
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = e.svc.Submit(ctx, e.student, supervision.NewRequest{AcademicianID: e.student2.ID, ProposalTitle: "x"})
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok, "the target must be an academician")

	req := e.submit(t, e.student, e.acad1)
	assert.Equal(t, supervision.RequestPending, req.Status)
	assert.Equal(t, []string{supervision.TopicRequestSubmitted}, e.topics(t, e.acad1))

	_, err = e.svc.Submit(ctx, e.student, supervision.NewRequest{AcademicianID: e.acad1.ID, ProposalTitle: "Again"})
	assert.True(t, core.IsTransition(err), "a second open request to the same academician")

	_, err = e.svc.Submit(ctx, e.student2, supervision.NewRequest{AcademicianID: e.acad1.ID, ProposalTitle: "Other student"})
	assert.NoError(t, err, "another student may ask the same academician")
}

func TestService_Submit_MaxPending(t *testing.T) {
	ctx := context.Background()
	e := setup(t, func(conf *core.Config) { conf.Supervision.MaxPendingRequests = 2 })

	first := e.submit(t, e.student, e.acad1)
	e.submit(t, e.student, e.acad2)

	_, err := e.svc.Submit(ctx, e.student, supervision.NewRequest{AcademicianID: e.acad3.ID, ProposalTitle: "Third"})
	assert.True(t, core.IsTransition(err))
	assert.EqualError(t, err, "you cannot have more than 2 open requests")

	// a cancelled request frees its slot
	_, err = e.svc.Cancel(ctx, e.student, first.ID, supervision.Reason{})
	require.NoError(t, err)
	e.submit(t, e.student, e.acad3)
}

func TestService_OfferAndAccept(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	req1 := e.submit(t, e.student, e.acad1)
	req2 := e.submit(t, e.student, e.acad2)

	_, err := e.svc.Offer(ctx, e.acad2, req1.ID, supervision.Offer{})
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, _, err = e.svc.AcceptOffer(ctx, e.student, req1.ID)
	assert.True(t, core.IsTransition(err), "nothing offered yet")

	req1, err = e.svc.Offer(ctx, e.acad1, req1.ID, supervision.Offer{Message: "Welcome aboard"})
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestPendingStudentAcceptance, req1.Status)
	assert.Equal(t, supervision.RoleMain, req1.OfferedRole)
	assert.Contains(t, e.topics(t, e.student), supervision.TopicRequestOffered)

	_, _, err = e.svc.AcceptOffer(ctx, e.student2, req1.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)

	req1, rel, err := e.svc.AcceptOffer(ctx, e.student, req1.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestAccepted, req1.Status)
	assert.Equal(t, supervision.RelationshipActive, rel.Status)
	assert.Equal(t, supervision.RoleMain, rel.Role)
	assert.Equal(t, req1.ID, rel.RequestID)

	req2, err = e.svc.GetRequest(ctx, e.student, req2.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestAutoCancelled, req2.Status)
	assert.Contains(t, e.topics(t, e.acad2), supervision.TopicRequestAutoCancelled)
	assert.Contains(t, e.topics(t, e.acad1), supervision.TopicOfferAccepted)

	_, err = e.svc.Submit(ctx, e.student, supervision.NewRequest{AcademicianID: e.acad3.ID, ProposalTitle: "More"})
	assert.True(t, core.IsTransition(err), "a supervised student cannot request another main supervisor")

	mainRel, err := e.svc.ActiveMainSupervision(ctx, e.student.ID)
	require.NoError(t, err)
	assert.Equal(t, rel.ID, mainRel.ID)

	rels, err := e.svc.ListRelationships(ctx, e.acad1, supervision.RelationshipFilter{})
	require.NoError(t, err)
	require.Len(t, rels, 1)

	_, err = e.svc.GetRequest(ctx, e.acad3, req1.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)
}

func TestService_RejectDeclineCancel(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	req := e.submit(t, e.student, e.acad1)
	req, err := e.svc.Reject(ctx, e.acad1, req.ID, supervision.Reason{Reason: "No capacity this year"})
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestRejected, req.Status)
	assert.Equal(t, "No capacity this year", req.RejectionReason)
	assert.NotNil(t, req.DecidedAt)
	assert.Contains(t, e.topics(t, e.student), supervision.TopicRequestRejected)

	_, err = e.svc.Cancel(ctx, e.student, req.ID, supervision.Reason{})
	assert.True(t, core.IsTransition(err), "a rejected request cannot be cancelled")

	req = e.submit(t, e.student, e.acad2)
	_, err = e.svc.Offer(ctx, e.acad2, req.ID, supervision.Offer{})
	require.NoError(t, err)
	_, err = e.svc.Reject(ctx, e.acad2, req.ID, supervision.Reason{})
	assert.True(t, core.IsTransition(err), "an offered request cannot be rejected")

	req, err = e.svc.DeclineOffer(ctx, e.student, req.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestRejected, req.Status)
	assert.Equal(t, "declined by student", req.RejectionReason)
	assert.Contains(t, e.topics(t, e.acad2), supervision.TopicOfferDeclined)

	req = e.submit(t, e.student, e.acad3)
	_, err = e.svc.Cancel(ctx, e.acad3, req.ID, supervision.Reason{})
	assert.Equal(t, core.ErrPermissionDenied, err)
	req, err = e.svc.Cancel(ctx, e.student, req.ID, supervision.Reason{Reason: "Changed topic"})
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestCancelled, req.Status)
	assert.Equal(t, "Changed topic", req.CancelReason)

	list, err := e.svc.ListRequests(ctx, e.student, supervision.RequestFilter{Statuses: []supervision.RequestStatus{supervision.RequestRejected}})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestService_ExpireStale(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	pending := e.submit(t, e.student, e.acad1)
	offered := e.submit(t, e.student, e.acad2)
	_, err := e.svc.Offer(ctx, e.acad2, offered.ID, supervision.Offer{})
	require.NoError(t, err)

	e.clock.Advance(13 * day)
	count, err := e.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	e.clock.Advance(2 * day)
	count, err = e.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "offers expire after 14 days")

	offered, err = e.svc.GetRequest(ctx, e.student, offered.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestAutoCancelled, offered.Status)

	e.clock.Advance(16 * day)
	count, err = e.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "pending requests expire after 30 days")

	pending, err = e.svc.GetRequest(ctx, e.student, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RequestAutoCancelled, pending.Status)
	assert.Equal(t, "expired", pending.CancelReason)
}

func TestService_Unbind(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	rel := e.supervise(t, e.student, e.acad1)

	_, err := e.svc.RequestUnbind(ctx, e.acad2, rel.ID, supervision.NewUnbindRequest{Reason: "x"})
	assert.Equal(t, core.ErrPermissionDenied, err)

	ur, err := e.svc.RequestUnbind(ctx, e.student, rel.ID, supervision.NewUnbindRequest{Reason: "Moving abroad"})
	require.NoError(t, err)
	assert.Equal(t, supervision.UnbindPending, ur.Status)
	assert.Equal(t, supervision.InitiatorStudent, ur.InitiatorRole)
	assert.Equal(t, 1, ur.AttemptCount)
	assert.Contains(t, e.topics(t, e.acad1), supervision.TopicUnbindRequested)

	_, err = e.svc.RequestUnbind(ctx, e.acad1, rel.ID, supervision.NewUnbindRequest{Reason: "x"})
	assert.True(t, core.IsTransition(err), "only one pending unbind request per relationship")

	_, err = e.svc.ApproveUnbind(ctx, e.student, ur.ID)
	assert.Equal(t, core.ErrPermissionDenied, err, "the initiator cannot approve")
	_, err = e.svc.CancelUnbind(ctx, e.acad1, ur.ID)
	assert.Equal(t, core.ErrPermissionDenied, err, "only the initiator can cancel")

	ur, err = e.svc.RejectUnbind(ctx, e.acad1, ur.ID, supervision.Reason{Reason: "Let's talk first"})
	require.NoError(t, err)
	assert.Equal(t, supervision.UnbindRejected, ur.Status)
	require.NotNil(t, ur.CooldownUntil)
	assert.Equal(t, e.clock.Now().Add(7*day), *ur.CooldownUntil)

	e.clock.Advance(3 * day)
	_, err = e.svc.RequestUnbind(ctx, e.student, rel.ID, supervision.NewUnbindRequest{Reason: "Again"})
	assert.True(t, core.IsTransition(err), "cooldown")

	e.clock.Advance(5 * day)
	ur, err = e.svc.RequestUnbind(ctx, e.student, rel.ID, supervision.NewUnbindRequest{Reason: "Again"})
	require.NoError(t, err)
	assert.Equal(t, 2, ur.AttemptCount)
	_, err = e.svc.RejectUnbind(ctx, e.acad1, ur.ID, supervision.Reason{})
	require.NoError(t, err)

	e.clock.Advance(8 * day)
	ur, err = e.svc.RequestUnbind(ctx, e.student, rel.ID, supervision.NewUnbindRequest{Reason: "Third time"})
	require.NoError(t, err)
	assert.Equal(t, 3, ur.AttemptCount)
	assert.Equal(t, supervision.UnbindForceUnbound, ur.Status)
	assert.Contains(t, e.topics(t, e.acad1), supervision.TopicForceUnbound)

	rel, err = e.svc.GetRelationship(ctx, e.student, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RelationshipTerminated, rel.Status)
	assert.NotNil(t, rel.TerminatedAt)

	_, err = e.svc.RequestUnbind(ctx, e.student, rel.ID, supervision.NewUnbindRequest{Reason: "x"})
	assert.True(t, core.IsTransition(err))

	list, err := e.svc.ListUnbindRequests(ctx, e.acad1, rel.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestService_Unbind_ApproveAndCancel(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	rel := e.supervise(t, e.student, e.acad1)

	ur, err := e.svc.RequestUnbind(ctx, e.acad1, rel.ID, supervision.NewUnbindRequest{Reason: "Retiring"})
	require.NoError(t, err)
	assert.Equal(t, supervision.InitiatorSupervisor, ur.InitiatorRole)

	ur, err = e.svc.CancelUnbind(ctx, e.acad1, ur.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.UnbindCancelled, ur.Status)

	ur, err = e.svc.RequestUnbind(ctx, e.acad1, rel.ID, supervision.NewUnbindRequest{Reason: "Retiring"})
	require.NoError(t, err)
	assert.Equal(t, 2, ur.AttemptCount, "cancelled attempts count")

	ur, err = e.svc.ApproveUnbind(ctx, e.student, ur.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.UnbindApproved, ur.Status)
	assert.Contains(t, e.topics(t, e.acad1), supervision.TopicUnbindApproved)

	rel, err = e.svc.GetRelationship(ctx, e.acad1, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, supervision.RelationshipTerminated, rel.Status)
	assert.Equal(t, "Retiring", rel.TerminationReason)

	_, err = e.svc.ApproveUnbind(ctx, e.student, ur.ID)
	assert.True(t, core.IsTransition(err))

	// the student may look for a new main supervisor
	e.submit(t, e.student, e.acad2)
}

func TestService_CoSupervisor(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	rel := e.supervise(t, e.student, e.acad1)

	_, err := e.svc.InviteCoSupervisor(ctx, e.student, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad1.ID})
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok, "the main supervisor cannot be invited")

	_, err = e.svc.InviteCoSupervisor(ctx, e.acad3, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad2.ID})
	assert.Equal(t, core.ErrPermissionDenied, err)

	inv, err := e.svc.InviteCoSupervisor(ctx, e.student, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad2.ID, Message: "Your NLP expertise would help"})
	require.NoError(t, err)
	assert.Equal(t, supervision.InitiatorStudent, inv.InitiatorRole)
	assert.Equal(t, e.acad1.ID, inv.ApproverID)
	assert.Contains(t, e.topics(t, e.acad2), supervision.TopicInvitationReceived)

	_, err = e.svc.InviteCoSupervisor(ctx, e.acad1, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad2.ID})
	assert.True(t, core.IsTransition(err), "one open invitation per pair")

	_, err = e.svc.DecideInvitation(ctx, e.acad1, inv.ID, true)
	assert.True(t, core.IsTransition(err), "approval waits for the invitee")
	_, err = e.svc.RespondToInvitation(ctx, e.acad1, inv.ID, true)
	assert.Equal(t, core.ErrPermissionDenied, err)

	inv, err = e.svc.RespondToInvitation(ctx, e.acad2, inv.ID, true)
	require.NoError(t, err)
	assert.Equal(t, supervision.InviteeAccepted, inv.CosupervisorStatus)
	assert.Contains(t, e.topics(t, e.acad1), supervision.TopicInvitationAccepted)

	_, err = e.svc.DecideInvitation(ctx, e.student, inv.ID, true)
	assert.Equal(t, core.ErrPermissionDenied, err)
	inv, err = e.svc.DecideInvitation(ctx, e.acad1, inv.ID, true)
	require.NoError(t, err)
	assert.Equal(t, supervision.ApprovalApproved, inv.ApproverStatus)
	assert.NotNil(t, inv.CompletedAt)
	assert.False(t, inv.IsOpen())

	cos, err := e.svc.ListRelationships(ctx, e.acad2, supervision.RelationshipFilter{Role: supervision.RoleCo})
	require.NoError(t, err)
	require.Len(t, cos, 1)
	co := cos[0]
	assert.Equal(t, e.student.ID, co.StudentID)
	assert.True(t, co.IsActive())

	_, err = e.svc.InviteCoSupervisor(ctx, e.student, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad2.ID})
	assert.True(t, core.IsTransition(err), "already a co-supervisor")

	// the main supervisor invites: the student approves
	inv3, err := e.svc.InviteCoSupervisor(ctx, e.acad1, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad3.ID})
	require.NoError(t, err)
	assert.Equal(t, supervision.InitiatorMainSupervisor, inv3.InitiatorRole)
	assert.Equal(t, e.student.ID, inv3.ApproverID)

	_, err = e.svc.InviteCoSupervisor(ctx, e.student, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad4.ID})
	assert.True(t, core.IsTransition(err), "1 co-supervisor + 1 open invitation reach the limit")

	_, err = e.svc.CancelInvitation(ctx, e.student, inv3.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)

	invs, err := e.svc.ListInvitations(ctx, e.acad3, supervision.InvitationFilter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, invs, 1)

	// ending the main supervision keeps the co-supervision and closes open invitations
	ur, err := e.svc.RequestUnbind(ctx, e.student, rel.ID, supervision.NewUnbindRequest{Reason: "Change of field"})
	require.NoError(t, err)
	_, err = e.svc.ApproveUnbind(ctx, e.acad1, ur.ID)
	require.NoError(t, err)

	co, err = e.svc.GetRelationship(ctx, e.student, co.ID)
	require.NoError(t, err)
	assert.True(t, co.IsActive())

	inv3, err = e.svc.GetInvitation(ctx, e.acad3, inv3.ID)
	require.NoError(t, err)
	assert.NotNil(t, inv3.CancelledAt)
}

func TestService_Submit_CurrentCoSupervisor(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	rel := e.supervise(t, e.student, e.acad1)

	inv, err := e.svc.InviteCoSupervisor(ctx, e.student, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad2.ID})
	require.NoError(t, err)
	_, err = e.svc.RespondToInvitation(ctx, e.acad2, inv.ID, true)
	require.NoError(t, err)
	_, err = e.svc.DecideInvitation(ctx, e.acad1, inv.ID, true)
	require.NoError(t, err)

	ur, err := e.svc.RequestUnbind(ctx, e.acad1, rel.ID, supervision.NewUnbindRequest{Reason: "Sabbatical"})
	require.NoError(t, err)
	_, err = e.svc.ApproveUnbind(ctx, e.student, ur.ID)
	require.NoError(t, err)

	_, err = e.svc.Submit(ctx, e.student, supervision.NewRequest{AcademicianID: e.acad2.ID, ProposalTitle: "Federated learning for clinics"})
	assert.True(t, core.IsTransition(err), "the co-supervisor already supervises the student: %v", err)

	rels, err := e.svc.ListRelationships(ctx, e.student, supervision.RelationshipFilter{AcademicianID: e.acad2.ID, Status: supervision.RelationshipActive})
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	// any other academician is still fine
	e.submit(t, e.student, e.acad3)
}

func TestService_CoSupervisor_DeclineAndReject(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	rel := e.supervise(t, e.student, e.acad1)

	inv, err := e.svc.InviteCoSupervisor(ctx, e.student, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad2.ID})
	require.NoError(t, err)
	inv, err = e.svc.RespondToInvitation(ctx, e.acad2, inv.ID, false)
	require.NoError(t, err)
	assert.Equal(t, supervision.InviteeDeclined, inv.CosupervisorStatus)
	assert.Contains(t, e.topics(t, e.student), supervision.TopicInvitationDeclined)

	_, err = e.svc.RespondToInvitation(ctx, e.acad2, inv.ID, true)
	assert.True(t, core.IsTransition(err))

	inv, err = e.svc.InviteCoSupervisor(ctx, e.student, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad2.ID})
	require.NoError(t, err, "a declined invitation may be sent again")
	_, err = e.svc.RespondToInvitation(ctx, e.acad2, inv.ID, true)
	require.NoError(t, err)
	inv, err = e.svc.DecideInvitation(ctx, e.acad1, inv.ID, false)
	require.NoError(t, err)
	assert.Equal(t, supervision.ApprovalRejected, inv.ApproverStatus)
	assert.Contains(t, e.topics(t, e.acad2), supervision.TopicInvitationRejected)

	inv, err = e.svc.InviteCoSupervisor(ctx, e.student, rel.ID, supervision.NewInvitation{CosupervisorID: e.acad3.ID})
	require.NoError(t, err)
	inv, err = e.svc.CancelInvitation(ctx, e.student, inv.ID)
	require.NoError(t, err)
	assert.NotNil(t, inv.CancelledAt)
	assert.Contains(t, e.topics(t, e.acad3), supervision.TopicInvitationCancelled)
}

func TestService_Meetings(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	rel := e.supervise(t, e.student, e.acad1)
	e.calendar.connected[e.acad1.ID] = true

	when := e.clock.Now().Add(3 * day)
	m, err := e.svc.ScheduleMeeting(ctx, e.acad1, rel.ID, supervision.NewMeeting{Title: "Chapter 2 review", ScheduledFor: when})
	require.NoError(t, err)
	assert.Equal(t, "evt-"+m.ID, m.CalendarEventID)
	assert.Equal(t, "Chapter 2 review", e.calendar.events[m.CalendarEventID])
	assert.Contains(t, e.topics(t, e.student), supervision.TopicMeetingScheduled)

	// no calendar connected
	m2, err := e.svc.ScheduleMeeting(ctx, e.student, rel.ID, supervision.NewMeeting{Title: "Progress", ScheduledFor: when.Add(-day)})
	require.NoError(t, err)
	assert.Empty(t, m2.CalendarEventID)

	// a calendar failure does not lose the meeting
	e.calendar.fail = true
	_, err = e.svc.ScheduleMeeting(ctx, e.acad1, rel.ID, supervision.NewMeeting{Title: "Defense rehearsal", ScheduledFor: when.Add(day)})
	require.NoError(t, err)
	e.calendar.fail = false

	_, err = e.svc.ScheduleMeeting(ctx, e.acad2, rel.ID, supervision.NewMeeting{Title: "x", ScheduledFor: when})
	assert.Equal(t, core.ErrPermissionDenied, err)

	meetings, err := e.svc.ListMeetings(ctx, e.student, rel.ID)
	require.NoError(t, err)
	require.Len(t, meetings, 3)
	assert.Equal(t, m2.ID, meetings[0].ID, "in schedule order")

	assert.Equal(t, core.ErrPermissionDenied, e.svc.CancelMeeting(ctx, e.student, m.ID))
	require.NoError(t, e.svc.CancelMeeting(ctx, e.acad1, m.ID))
	assert.Empty(t, e.calendar.events)
	assert.Contains(t, e.topics(t, e.student), supervision.TopicMeetingCancelled)
}
