package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/supervision"
)

const (
	requestColumns = `id, student_id, academician_id, proposal_title, motivation, status, offered_role,
		offer_message, rejection_reason, cancel_reason, decided_at, created_at, updated_at`
	relationshipColumns = `id, student_id, academician_id, request_id, role, status, started_at,
		terminated_at, termination_reason`
	unbindColumns = `id, relationship_id, initiator_id, initiator_role, reason, status, attempt_count,
		cooldown_until, rejection_reason, responded_at, created_at, updated_at`
	invitationColumns = `id, relationship_id, student_id, cosupervisor_id, initiator_id, initiator_role,
		approver_id, message, cosupervisor_status, approver_status, completed_at, cancelled_at, created_at, updated_at`
	meetingColumns = `id, relationship_id, title, agenda, location, scheduled_for, created_by,
		calendar_event_id, created_at`
)

type requestRow struct {
	ID              string    `db:"id"`
	StudentID       string    `db:"student_id"`
	AcademicianID   string    `db:"academician_id"`
	ProposalTitle   string    `db:"proposal_title"`
	Motivation      string    `db:"motivation"`
	Status          string    `db:"status"`
	OfferedRole     string    `db:"offered_role"`
	OfferMessage    string    `db:"offer_message"`
	RejectionReason string    `db:"rejection_reason"`
	CancelReason    string    `db:"cancel_reason"`
	DecidedAt       null.Time `db:"decided_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func fromRequest(r supervision.Request) requestRow {
	return requestRow{
		ID:              r.ID,
		StudentID:       r.StudentID,
		AcademicianID:   r.AcademicianID,
		ProposalTitle:   r.ProposalTitle,
		Motivation:      r.Motivation,
		Status:          string(r.Status),
		OfferedRole:     string(r.OfferedRole),
		OfferMessage:    r.OfferMessage,
		RejectionReason: r.RejectionReason,
		CancelReason:    r.CancelReason,
		DecidedAt:       nullTime(r.DecidedAt),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r requestRow) toRequest() supervision.Request {
	return supervision.Request{
		ID:              r.ID,
		StudentID:       r.StudentID,
		AcademicianID:   r.AcademicianID,
		ProposalTitle:   r.ProposalTitle,
		Motivation:      r.Motivation,
		Status:          supervision.RequestStatus(r.Status),
		OfferedRole:     supervision.Role(r.OfferedRole),
		OfferMessage:    r.OfferMessage,
		RejectionReason: r.RejectionReason,
		CancelReason:    r.CancelReason,
		DecidedAt:       timePtr(r.DecidedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type relationshipRow struct {
	ID                string      `db:"id"`
	StudentID         string      `db:"student_id"`
	AcademicianID     string      `db:"academician_id"`
	RequestID         null.String `db:"request_id"`
	Role              string      `db:"role"`
	Status            string      `db:"status"`
	StartedAt         time.Time   `db:"started_at"`
	TerminatedAt      null.Time   `db:"terminated_at"`
	TerminationReason string      `db:"termination_reason"`
}

func fromRelationship(rel supervision.Relationship) relationshipRow {
	return relationshipRow{
		ID:                rel.ID,
		StudentID:         rel.StudentID,
		AcademicianID:     rel.AcademicianID,
		RequestID:         nullString(rel.RequestID),
		Role:              string(rel.Role),
		Status:            string(rel.Status),
		StartedAt:         rel.StartedAt,
		TerminatedAt:      nullTime(rel.TerminatedAt),
		TerminationReason: rel.TerminationReason,
	}
}

func (r relationshipRow) toRelationship() supervision.Relationship {
	return supervision.Relationship{
		ID:                r.ID,
		StudentID:         r.StudentID,
		AcademicianID:     r.AcademicianID,
		RequestID:         r.RequestID.String,
		Role:              supervision.Role(r.Role),
		Status:            supervision.RelationshipStatus(r.Status),
		StartedAt:         r.StartedAt.UTC(),
		TerminatedAt:      timePtr(r.TerminatedAt),
		TerminationReason: r.TerminationReason,
	}
}

type unbindRow struct {
	ID              string    `db:"id"`
	RelationshipID  string    `db:"relationship_id"`
	InitiatorID     string    `db:"initiator_id"`
	InitiatorRole   string    `db:"initiator_role"`
	Reason          string    `db:"reason"`
	Status          string    `db:"status"`
	AttemptCount    int       `db:"attempt_count"`
	CooldownUntil   null.Time `db:"cooldown_until"`
	RejectionReason string    `db:"rejection_reason"`
	RespondedAt     null.Time `db:"responded_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func fromUnbind(ur supervision.UnbindRequest) unbindRow {
	return unbindRow{
		ID:              ur.ID,
		RelationshipID:  ur.RelationshipID,
		InitiatorID:     ur.InitiatorID,
		InitiatorRole:   string(ur.InitiatorRole),
		Reason:          ur.Reason,
		Status:          string(ur.Status),
		AttemptCount:    ur.AttemptCount,
		CooldownUntil:   nullTime(ur.CooldownUntil),
		RejectionReason: ur.RejectionReason,
		RespondedAt:     nullTime(ur.RespondedAt),
		CreatedAt:       ur.CreatedAt,
		UpdatedAt:       ur.UpdatedAt,
	}
}

func (r unbindRow) toUnbind() supervision.UnbindRequest {
	return supervision.UnbindRequest{
		ID:              r.ID,
		RelationshipID:  r.RelationshipID,
		InitiatorID:     r.InitiatorID,
		InitiatorRole:   supervision.InitiatorRole(r.InitiatorRole),
		Reason:          r.Reason,
		Status:          supervision.UnbindStatus(r.Status),
		AttemptCount:    r.AttemptCount,
		CooldownUntil:   timePtr(r.CooldownUntil),
		RejectionReason: r.RejectionReason,
		RespondedAt:     timePtr(r.RespondedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type invitationRow struct {
	ID                 string    `db:"id"`
	RelationshipID     string    `db:"relationship_id"`
	StudentID          string    `db:"student_id"`
	CosupervisorID     string    `db:"cosupervisor_id"`
	InitiatorID        string    `db:"initiator_id"`
	InitiatorRole      string    `db:"initiator_role"`
	ApproverID         string    `db:"approver_id"`
	Message            string    `db:"message"`
	CosupervisorStatus string    `db:"cosupervisor_status"`
	ApproverStatus     string    `db:"approver_status"`
	CompletedAt        null.Time `db:"completed_at"`
	CancelledAt        null.Time `db:"cancelled_at"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func fromInvitation(inv supervision.CoSupervisorInvitation) invitationRow {
	return invitationRow{
		ID:                 inv.ID,
		RelationshipID:     inv.RelationshipID,
		StudentID:          inv.StudentID,
		CosupervisorID:     inv.CosupervisorID,
		InitiatorID:        inv.InitiatorID,
		InitiatorRole:      string(inv.InitiatorRole),
		ApproverID:         inv.ApproverID,
		Message:            inv.Message,
		CosupervisorStatus: string(inv.CosupervisorStatus),
		ApproverStatus:     string(inv.ApproverStatus),
		CompletedAt:        nullTime(inv.CompletedAt),
		CancelledAt:        nullTime(inv.CancelledAt),
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
	}
}

func (r invitationRow) toInvitation() supervision.CoSupervisorInvitation {
	return supervision.CoSupervisorInvitation{
		ID:                 r.ID,
		RelationshipID:     r.RelationshipID,
		StudentID:          r.StudentID,
		CosupervisorID:     r.CosupervisorID,
		InitiatorID:        r.InitiatorID,
		InitiatorRole:      supervision.InitiatorRole(r.InitiatorRole),
		ApproverID:         r.ApproverID,
		Message:            r.Message,
		CosupervisorStatus: supervision.InviteeStatus(r.CosupervisorStatus),
		ApproverStatus:     supervision.ApproverStatus(r.ApproverStatus),
		CompletedAt:        timePtr(r.CompletedAt),
		CancelledAt:        timePtr(r.CancelledAt),
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

type meetingRow struct {
	ID              string    `db:"id"`
	RelationshipID  string    `db:"relationship_id"`
	Title           string    `db:"title"`
	Agenda          string    `db:"agenda"`
	Location        string    `db:"location"`
	ScheduledFor    time.Time `db:"scheduled_for"`
	CreatedBy       string    `db:"created_by"`
	CalendarEventID string    `db:"calendar_event_id"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r meetingRow) toMeeting() supervision.Meeting {
	return supervision.Meeting{
		ID:              r.ID,
		RelationshipID:  r.RelationshipID,
		Title:           r.Title,
		Agenda:          r.Agenda,
		Location:        r.Location,
		ScheduledFor:    r.ScheduledFor.UTC(),
		CreatedBy:       r.CreatedBy,
		CalendarEventID: r.CalendarEventID,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type supervisionRepository struct {
	base
}

var _ supervision.Repository = (*supervisionRepository)(nil)

func NewSupervisionRepository(db *sqlx.DB) supervision.Repository {
	return &supervisionRepository{base{db: db}}
}

// Requests

func (repo *supervisionRepository) CreateRequest(ctx context.Context, r supervision.Request, exec ...core.DBExecutor) (supervision.Request, error) {
	r.ID = newID()
	if err := repo.insert(ctx, exec, "supervision_requests", requestColumns, fromRequest(r)); err != nil {
		return supervision.Request{}, err
	}
	return r, nil
}

func (repo *supervisionRepository) GetRequestByID(ctx context.Context, id string, exec ...core.DBExecutor) (supervision.Request, error) {
	var row requestRow
	if err := repo.getByID(ctx, exec, &row, "supervision_requests", requestColumns, id, supervision.ErrRequestNotFound); err != nil {
		return supervision.Request{}, err
	}
	return row.toRequest(), nil
}

func (repo *supervisionRepository) UpdateRequest(ctx context.Context, r supervision.Request, exec ...core.DBExecutor) (supervision.Request, error) {
	if err := repo.update(ctx, exec, "supervision_requests", requestColumns, fromRequest(r), supervision.ErrRequestNotFound); err != nil {
		return supervision.Request{}, err
	}
	return r, nil
}

func (repo *supervisionRepository) FilterRequests(ctx context.Context, filter supervision.RequestFilter, exec ...core.DBExecutor) ([]supervision.Request, error) {
	var w where
	if filter.StudentID != "" {
		w.addID("student_id", filter.StudentID)
	}
	if filter.AcademicianID != "" {
		w.addID("academician_id", filter.AcademicianID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	if !filter.CreatedBefore.IsZero() {
		w.add("created_at < ?", filter.CreatedBefore)
	}
	if !filter.DecidedBefore.IsZero() {
		w.add("decided_at < ?", filter.DecidedBefore)
	}

	var rows []requestRow
	query := "SELECT " + requestColumns + " FROM supervision_requests" + w.String() + " ORDER BY created_at DESC, id DESC"
	if err := repo.conn(exec).SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting requests")
	}
	requests := make([]supervision.Request, len(rows))
	for i, r := range rows {
		requests[i] = r.toRequest()
	}
	return requests, nil
}

// Relationships

func (repo *supervisionRepository) CreateRelationship(ctx context.Context, rel supervision.Relationship, exec ...core.DBExecutor) (supervision.Relationship, error) {
	rel.ID = newID()
	if err := repo.insert(ctx, exec, "supervision_relationships", relationshipColumns, fromRelationship(rel)); err != nil {
		return supervision.Relationship{}, err
	}
	return rel, nil
}

func (repo *supervisionRepository) GetRelationshipByID(ctx context.Context, id string, exec ...core.DBExecutor) (supervision.Relationship, error) {
	var row relationshipRow
	if err := repo.getByID(ctx, exec, &row, "supervision_relationships", relationshipColumns, id, supervision.ErrRelationshipNotFound); err != nil {
		return supervision.Relationship{}, err
	}
	return row.toRelationship(), nil
}

func (repo *supervisionRepository) UpdateRelationship(ctx context.Context, rel supervision.Relationship, exec ...core.DBExecutor) (supervision.Relationship, error) {
	if err := repo.update(ctx, exec, "supervision_relationships", relationshipColumns, fromRelationship(rel), supervision.ErrRelationshipNotFound); err != nil {
		return supervision.Relationship{}, err
	}
	return rel, nil
}

func (repo *supervisionRepository) FilterRelationships(ctx context.Context, filter supervision.RelationshipFilter, exec ...core.DBExecutor) ([]supervision.Relationship, error) {
	var w where
	if filter.StudentID != "" {
		w.addID("student_id", filter.StudentID)
	}
	if filter.AcademicianID != "" {
		w.addID("academician_id", filter.AcademicianID)
	}
	if filter.Role != "" {
		w.add("role = ?", string(filter.Role))
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}

	var rows []relationshipRow
	query := "SELECT " + relationshipColumns + " FROM supervision_relationships" + w.String() + " ORDER BY started_at DESC, id DESC"
	if err := repo.conn(exec).SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting relationships")
	}
	rels := make([]supervision.Relationship, len(rows))
	for i, r := range rows {
		rels[i] = r.toRelationship()
	}
	return rels, nil
}

// Unbind requests

func (repo *supervisionRepository) CreateUnbindRequest(ctx context.Context, ur supervision.UnbindRequest, exec ...core.DBExecutor) (supervision.UnbindRequest, error) {
	ur.ID = newID()
	if err := repo.insert(ctx, exec, "unbind_requests", unbindColumns, fromUnbind(ur)); err != nil {
		return supervision.UnbindRequest{}, err
	}
	return ur, nil
}

func (repo *supervisionRepository) GetUnbindRequestByID(ctx context.Context, id string, exec ...core.DBExecutor) (supervision.UnbindRequest, error) {
	var row unbindRow
	if err := repo.getByID(ctx, exec, &row, "unbind_requests", unbindColumns, id, supervision.ErrUnbindNotFound); err != nil {
		return supervision.UnbindRequest{}, err
	}
	return row.toUnbind(), nil
}

func (repo *supervisionRepository) UpdateUnbindRequest(ctx context.Context, ur supervision.UnbindRequest, exec ...core.DBExecutor) (supervision.UnbindRequest, error) {
	if err := repo.update(ctx, exec, "unbind_requests", unbindColumns, fromUnbind(ur), supervision.ErrUnbindNotFound); err != nil {
		return supervision.UnbindRequest{}, err
	}
	return ur, nil
}

func (repo *supervisionRepository) FilterUnbindRequests(ctx context.Context, filter supervision.UnbindFilter, exec ...core.DBExecutor) ([]supervision.UnbindRequest, error) {
	var w where
	if filter.RelationshipID != "" {
		w.addID("relationship_id", filter.RelationshipID)
	}
	if filter.InitiatorID != "" {
		w.addID("initiator_id", filter.InitiatorID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}

	var rows []unbindRow
	query := "SELECT " + unbindColumns + " FROM unbind_requests" + w.String() + " ORDER BY created_at DESC, id DESC"
	if err := repo.conn(exec).SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting unbind requests")
	}
	urs := make([]supervision.UnbindRequest, len(rows))
	for i, r := range rows {
		urs[i] = r.toUnbind()
	}
	return urs, nil
}

// Co-supervisor invitations

func (repo *supervisionRepository) CreateInvitation(ctx context.Context, inv supervision.CoSupervisorInvitation, exec ...core.DBExecutor) (supervision.CoSupervisorInvitation, error) {
	inv.ID = newID()
	if err := repo.insert(ctx, exec, "cosupervisor_invitations", invitationColumns, fromInvitation(inv)); err != nil {
		return supervision.CoSupervisorInvitation{}, err
	}
	return inv, nil
}

func (repo *supervisionRepository) GetInvitationByID(ctx context.Context, id string, exec ...core.DBExecutor) (supervision.CoSupervisorInvitation, error) {
	var row invitationRow
	if err := repo.getByID(ctx, exec, &row, "cosupervisor_invitations", invitationColumns, id, supervision.ErrInvitationNotFound); err != nil {
		return supervision.CoSupervisorInvitation{}, err
	}
	return row.toInvitation(), nil
}

func (repo *supervisionRepository) UpdateInvitation(ctx context.Context, inv supervision.CoSupervisorInvitation, exec ...core.DBExecutor) (supervision.CoSupervisorInvitation, error) {
	if err := repo.update(ctx, exec, "cosupervisor_invitations", invitationColumns, fromInvitation(inv), supervision.ErrInvitationNotFound); err != nil {
		return supervision.CoSupervisorInvitation{}, err
	}
	return inv, nil
}

func (repo *supervisionRepository) FilterInvitations(ctx context.Context, filter supervision.InvitationFilter, exec ...core.DBExecutor) ([]supervision.CoSupervisorInvitation, error) {
	var w where
	if filter.RelationshipID != "" {
		w.addID("relationship_id", filter.RelationshipID)
	}
	if filter.StudentID != "" {
		w.addID("student_id", filter.StudentID)
	}
	if filter.CosupervisorID != "" {
		w.addID("cosupervisor_id", filter.CosupervisorID)
	}
	if filter.ParticipantID != "" {
		if id, ok := parseID(filter.ParticipantID); ok {
			w.add("? IN (student_id, cosupervisor_id, initiator_id, approver_id)", id)
		} else {
			w.add("FALSE")
		}
	}
	if filter.OpenOnly {
		w.add("completed_at IS NULL AND cancelled_at IS NULL AND cosupervisor_status <> ? AND approver_status <> ?",
			string(supervision.InviteeDeclined), string(supervision.ApprovalRejected))
	}

	var rows []invitationRow
	query := "SELECT " + invitationColumns + " FROM cosupervisor_invitations" + w.String() + " ORDER BY created_at DESC, id DESC"
	if err := repo.conn(exec).SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting invitations")
	}
	invs := make([]supervision.CoSupervisorInvitation, len(rows))
	for i, r := range rows {
		invs[i] = r.toInvitation()
	}
	return invs, nil
}

// Meetings

func (repo *supervisionRepository) CreateMeeting(ctx context.Context, m supervision.Meeting, exec ...core.DBExecutor) (supervision.Meeting, error) {
	m.ID = newID()
	_, err := repo.conn(exec).ExecContext(ctx, `
		INSERT INTO supervision_meetings (`+meetingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.RelationshipID, m.Title, m.Agenda, m.Location, m.ScheduledFor, m.CreatedBy, m.CalendarEventID, m.CreatedAt)
	if err != nil {
		return supervision.Meeting{}, errors.Wrap(err, "inserting meeting")
	}
	return m, nil
}

func (repo *supervisionRepository) GetMeetingByID(ctx context.Context, id string, exec ...core.DBExecutor) (supervision.Meeting, error) {
	var row meetingRow
	if err := repo.getByID(ctx, exec, &row, "supervision_meetings", meetingColumns, id, supervision.ErrMeetingNotFound); err != nil {
		return supervision.Meeting{}, err
	}
	return row.toMeeting(), nil
}

func (repo *supervisionRepository) SetMeetingEventID(ctx context.Context, id, eventID string, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "UPDATE supervision_meetings SET calendar_event_id = $1 WHERE id = $2", eventID, id)
	return mustAffect(res, err, supervision.ErrMeetingNotFound)
}

func (repo *supervisionRepository) ListMeetings(ctx context.Context, relationshipID string, exec ...core.DBExecutor) ([]supervision.Meeting, error) {
	relationshipID, ok := parseID(relationshipID)
	if !ok {
		return nil, nil
	}
	var rows []meetingRow
	err := repo.conn(exec).SelectContext(ctx, &rows,
		"SELECT "+meetingColumns+" FROM supervision_meetings WHERE relationship_id = $1 ORDER BY scheduled_for", relationshipID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting meetings")
	}
	meetings := make([]supervision.Meeting, len(rows))
	for i, r := range rows {
		meetings[i] = r.toMeeting()
	}
	return meetings, nil
}

func (repo *supervisionRepository) DeleteMeeting(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "DELETE FROM supervision_meetings WHERE id = $1", id)
	return mustAffect(res, err, supervision.ErrMeetingNotFound)
}
