package tests

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/nexscholar/nexscholar/apps/api/echo"
	"github.com/nexscholar/nexscholar/core/calendar"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/user"
)

func Test_supervisionApi_requestFlow(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "Nur Aina", "nuraina", user.RolePostgraduate)
	undergrad := app.createUser(t, "Ravi Kumar", "ravikumar", user.RoleUndergraduate)
	acad := app.createUser(t, "Dr. Aisyah", "aisyah", user.RoleAcademician)
	outsider := app.createUser(t, "Prof. Tan", "tanboon", user.RoleAcademician)
	studentToken := getToken(t, app.conf, student)
	acadToken := getToken(t, app.conf, acad)

	newReq := supervision.NewRequest{AcademicianID: acad.ID, ProposalTitle: "Federated learning for clinics"}
	runTests(t, app, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/api/v1/supervision/requests",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "undergraduates cannot apply", method: http.MethodPost, path: "/api/v1/supervision/requests", token: getToken(t, app.conf, undergrad),
			body: marchallObj(t, newReq), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", method: http.MethodPost, path: "/api/v1/supervision/requests", token: studentToken,
			body:     marchallObj(t, supervision.NewRequest{}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, map[string]string{"academician_id": "this field is required", "proposal_title": "this field is required"}),
		},
	})

	var req supervision.Request
	app.do(t, http.MethodPost, "/api/v1/supervision/requests", studentToken, newReq, http.StatusCreated, &req)
	assert.Equal(t, supervision.RequestPending, req.Status)

	// one open request per academician
	app.do(t, http.MethodPost, "/api/v1/supervision/requests", studentToken, newReq, http.StatusUnprocessableEntity)

	// requests are private to their parties
	app.do(t, http.MethodGet, "/api/v1/supervision/requests/"+req.ID, getToken(t, app.conf, outsider), nil, http.StatusForbidden)

	var list []supervision.Request
	app.do(t, http.MethodGet, "/api/v1/supervision/requests", acadToken, nil, http.StatusOK, &list)
	require.Len(t, list, 1)
	assert.Equal(t, req.ID, list[0].ID)

	// the academician was notified
	var count echoapi.CountResponse
	app.do(t, http.MethodGet, "/api/v1/notifications/unread-count", acadToken, nil, http.StatusOK, &count)
	assert.Equal(t, 1, count.Count)

	var notifs echoapi.Page[notification.Notification]
	app.do(t, http.MethodGet, "/api/v1/notifications?unread=true", acadToken, nil, http.StatusOK, &notifs)
	require.Len(t, notifs.Results, 1)
	assert.Equal(t, supervision.TopicRequestSubmitted, notifs.Results[0].Topic)

	// notifications are private too
	app.do(t, http.MethodGet, "/api/v1/notifications/"+notifs.Results[0].ID, studentToken, nil, http.StatusNotFound)

	var read notification.Notification
	app.do(t, http.MethodPost, "/api/v1/notifications/"+notifs.Results[0].ID+"/read", acadToken, nil, http.StatusOK, &read)
	assert.NotNil(t, read.ReadAt)
	app.do(t, http.MethodGet, "/api/v1/notifications/unread-count", acadToken, nil, http.StatusOK, &count)
	assert.Equal(t, 0, count.Count)

	// the student cannot accept before an offer is made
	app.do(t, http.MethodPost, "/api/v1/supervision/requests/"+req.ID+"/accept", studentToken, nil, http.StatusUnprocessableEntity)
	// only the academician makes offers
	app.do(t, http.MethodPost, "/api/v1/supervision/requests/"+req.ID+"/offer", studentToken, supervision.Offer{}, http.StatusForbidden)

	app.do(t, http.MethodPost, "/api/v1/supervision/requests/"+req.ID+"/offer", acadToken, supervision.Offer{Message: "Welcome aboard"}, http.StatusOK, &req)
	assert.Equal(t, supervision.RequestPendingStudentAcceptance, req.Status)
	assert.Equal(t, supervision.RoleMain, req.OfferedRole)

	var accepted echoapi.AcceptOfferResponse
	app.do(t, http.MethodPost, "/api/v1/supervision/requests/"+req.ID+"/accept", studentToken, nil, http.StatusOK, &accepted)
	assert.Equal(t, supervision.RequestAccepted, accepted.Request.Status)
	assert.Equal(t, supervision.RelationshipActive, accepted.Relationship.Status)
	assert.Equal(t, student.ID, accepted.Relationship.StudentID)
	assert.Equal(t, acad.ID, accepted.Relationship.AcademicianID)

	var rels []supervision.Relationship
	app.do(t, http.MethodGet, "/api/v1/supervision/relationships", studentToken, nil, http.StatusOK, &rels)
	require.Len(t, rels, 1)
	assert.Equal(t, accepted.Relationship.ID, rels[0].ID)
}

func Test_supervisionApi_unbind(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "Nur Aina", "nuraina", user.RolePostgraduate)
	acad := app.createUser(t, "Dr. Aisyah", "aisyah", user.RoleAcademician)
	studentToken := getToken(t, app.conf, student)
	acadToken := getToken(t, app.conf, acad)
	rel := supervise(t, app, studentToken, acadToken, acad)
	relPath := "/api/v1/supervision/relationships/" + rel.ID

	app.do(t, http.MethodPost, relPath+"/unbind-requests", studentToken, supervision.NewUnbindRequest{}, http.StatusUnprocessableEntity)

	var ur supervision.UnbindRequest
	app.do(t, http.MethodPost, relPath+"/unbind-requests", studentToken, supervision.NewUnbindRequest{Reason: "Moving abroad"}, http.StatusCreated, &ur)
	assert.Equal(t, supervision.UnbindPending, ur.Status)
	assert.Equal(t, 1, ur.AttemptCount)

	// the initiator cannot approve their own request
	app.do(t, http.MethodPost, "/api/v1/supervision/unbind-requests/"+ur.ID+"/approve", studentToken, nil, http.StatusForbidden)

	app.do(t, http.MethodPost, "/api/v1/supervision/unbind-requests/"+ur.ID+"/reject", acadToken, supervision.Reason{Reason: "Let's talk"}, http.StatusOK, &ur)
	assert.Equal(t, supervision.UnbindRejected, ur.Status)
	require.NotNil(t, ur.CooldownUntil)

	// cooling down
	app.do(t, http.MethodPost, relPath+"/unbind-requests", studentToken, supervision.NewUnbindRequest{Reason: "Again"}, http.StatusUnprocessableEntity)

	// the academician's own request is not affected by the student's cooldown
	app.do(t, http.MethodPost, relPath+"/unbind-requests", acadToken, supervision.NewUnbindRequest{Reason: "Retiring"}, http.StatusCreated, &ur)
	app.do(t, http.MethodPost, "/api/v1/supervision/unbind-requests/"+ur.ID+"/approve", studentToken, nil, http.StatusOK, &ur)
	assert.Equal(t, supervision.UnbindApproved, ur.Status)

	var urs []supervision.UnbindRequest
	app.do(t, http.MethodGet, relPath+"/unbind-requests", studentToken, nil, http.StatusOK, &urs)
	assert.Len(t, urs, 2)

	app.do(t, http.MethodGet, relPath, studentToken, nil, http.StatusOK, &rel)
	assert.Equal(t, supervision.RelationshipTerminated, rel.Status)
	assert.Equal(t, "Retiring", rel.TerminationReason)
}

func Test_supervisionApi_cosupervisor(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "Nur Aina", "nuraina", user.RolePostgraduate)
	acad := app.createUser(t, "Dr. Aisyah", "aisyah", user.RoleAcademician)
	cosup := app.createUser(t, "Dr. Siti", "sitihajar", user.RoleAcademician)
	studentToken := getToken(t, app.conf, student)
	acadToken := getToken(t, app.conf, acad)
	cosupToken := getToken(t, app.conf, cosup)
	rel := supervise(t, app, studentToken, acadToken, acad)

	var inv supervision.CoSupervisorInvitation
	app.do(t, http.MethodPost, "/api/v1/supervision/relationships/"+rel.ID+"/cosupervisor-invitations", studentToken,
		supervision.NewInvitation{CosupervisorID: cosup.ID, Message: "Would you co-supervise?"}, http.StatusCreated, &inv)
	assert.Equal(t, supervision.InitiatorStudent, inv.InitiatorRole)
	assert.Equal(t, acad.ID, inv.ApproverID)

	var invs []supervision.CoSupervisorInvitation
	app.do(t, http.MethodGet, "/api/v1/supervision/cosupervisor-invitations", cosupToken, nil, http.StatusOK, &invs)
	require.Len(t, invs, 1)

	invPath := "/api/v1/supervision/cosupervisor-invitations/" + inv.ID
	// the approver decides, the invitee responds
	app.do(t, http.MethodPost, invPath+"/accept", acadToken, nil, http.StatusForbidden)
	app.do(t, http.MethodPost, invPath+"/approve", cosupToken, nil, http.StatusForbidden)

	app.do(t, http.MethodPost, invPath+"/accept", cosupToken, nil, http.StatusOK, &inv)
	assert.Equal(t, supervision.InviteeAccepted, inv.CosupervisorStatus)
	assert.Nil(t, inv.CompletedAt)

	app.do(t, http.MethodPost, invPath+"/approve", acadToken, nil, http.StatusOK, &inv)
	assert.Equal(t, supervision.ApprovalApproved, inv.ApproverStatus)
	assert.NotNil(t, inv.CompletedAt)

	var rels []supervision.Relationship
	app.do(t, http.MethodGet, "/api/v1/supervision/relationships", cosupToken, nil, http.StatusOK, &rels)
	require.Len(t, rels, 1)
	assert.Equal(t, supervision.RoleCo, rels[0].Role)
}

func Test_supervisionApi_meetingsAndCalendar(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "Nur Aina", "nuraina", user.RolePostgraduate)
	acad := app.createUser(t, "Dr. Aisyah", "aisyah", user.RoleAcademician)
	studentToken := getToken(t, app.conf, student)
	acadToken := getToken(t, app.conf, acad)
	rel := supervise(t, app, studentToken, acadToken, acad)

	var status calendar.Status
	app.do(t, http.MethodGet, "/api/v1/calendar/google", acadToken, nil, http.StatusOK, &status)
	assert.False(t, status.Connected)

	// connect the academician's calendar
	var connect echoapi.ConnectResponse
	app.do(t, http.MethodGet, "/api/v1/calendar/google/connect", acadToken, nil, http.StatusOK, &connect)
	assert.Contains(t, connect.URL, "https://accounts.example.com/auth")
	require.NotEmpty(t, app.provider.lastState)

	callback := func(state, code string) string {
		v := url.Values{"state": {state}, "code": {code}}
		return "/api/v1/calendar/google/callback?" + v.Encode()
	}
	app.do(t, http.MethodGet, callback("forged", "abc"), "", nil, http.StatusUnprocessableEntity)
	app.do(t, http.MethodGet, callback(app.provider.lastState, ""), "", nil, http.StatusUnprocessableEntity)
	app.do(t, http.MethodGet, "/api/v1/calendar/google/callback?error=access_denied", "", nil, http.StatusBadRequest)
	app.do(t, http.MethodGet, callback(app.provider.lastState, "abc"), "", nil, http.StatusOK, &status)
	assert.True(t, status.Connected)

	meetingsPath := "/api/v1/supervision/relationships/" + rel.ID + "/meetings"
	app.do(t, http.MethodPost, meetingsPath, acadToken,
		supervision.NewMeeting{Title: "Too late", ScheduledFor: time.Now().Add(-time.Hour)}, http.StatusUnprocessableEntity)

	var m supervision.Meeting
	app.do(t, http.MethodPost, meetingsPath, acadToken,
		supervision.NewMeeting{Title: "Chapter 2 review", ScheduledFor: time.Now().Add(72 * time.Hour)}, http.StatusCreated, &m)
	assert.NotEmpty(t, m.CalendarEventID)

	var meetings []supervision.Meeting
	app.do(t, http.MethodGet, meetingsPath, studentToken, nil, http.StatusOK, &meetings)
	require.Len(t, meetings, 1)
	assert.Equal(t, m.ID, meetings[0].ID)

	app.do(t, http.MethodDelete, "/api/v1/supervision/meetings/"+m.ID, studentToken, nil, http.StatusForbidden)
	app.do(t, http.MethodDelete, "/api/v1/supervision/meetings/"+m.ID, acadToken, nil, http.StatusNoContent)

	app.do(t, http.MethodDelete, "/api/v1/calendar/google", acadToken, nil, http.StatusNoContent)
	app.do(t, http.MethodGet, "/api/v1/calendar/google", acadToken, nil, http.StatusOK, &status)
	assert.False(t, status.Connected)
}

// supervise makes `acad` the main supervisor of the student owning `studentToken`.
func supervise(t *testing.T, app *testApp, studentToken, acadToken string, acad user.User) supervision.Relationship {
	t.Helper()
	var req supervision.Request
	app.do(t, http.MethodPost, "/api/v1/supervision/requests", studentToken,
		supervision.NewRequest{AcademicianID: acad.ID, ProposalTitle: "Federated learning for clinics"}, http.StatusCreated, &req)
	app.do(t, http.MethodPost, "/api/v1/supervision/requests/"+req.ID+"/offer", acadToken, supervision.Offer{}, http.StatusOK)
	var accepted echoapi.AcceptOfferResponse
	app.do(t, http.MethodPost, "/api/v1/supervision/requests/"+req.ID+"/accept", studentToken, nil, http.StatusOK, &accepted)
	return accepted.Relationship
}
