package supervision

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nexscholar/nexscholar/core"
)

type (
	RequestStatus      string
	Role               string
	RelationshipStatus string
	UnbindStatus       string
	InitiatorRole      string
	InviteeStatus      string
	ApproverStatus     string
)

// Request statuses
const (
	RequestPending                  RequestStatus = "pending"
	RequestPendingStudentAcceptance RequestStatus = "pending_student_acceptance"
	RequestAccepted                 RequestStatus = "accepted"
	RequestRejected                 RequestStatus = "rejected"
	RequestCancelled                RequestStatus = "cancelled"
	RequestAutoCancelled            RequestStatus = "auto_cancelled"
)

// Relationship roles & statuses
const (
	RoleMain Role = "main"
	RoleCo   Role = "co"

	RelationshipActive     RelationshipStatus = "active"
	RelationshipTerminated RelationshipStatus = "terminated"
)

// Unbind request statuses
const (
	UnbindPending      UnbindStatus = "pending"
	UnbindApproved     UnbindStatus = "approved"
	UnbindRejected     UnbindStatus = "rejected"
	UnbindCancelled    UnbindStatus = "cancelled"
	UnbindForceUnbound UnbindStatus = "force_unbound"
)

// Initiator roles
const (
	InitiatorStudent        InitiatorRole = "student"
	InitiatorSupervisor     InitiatorRole = "supervisor"
	InitiatorMainSupervisor InitiatorRole = "main_supervisor"
)

// Co-supervisor invitation stages
const (
	InviteePending  InviteeStatus = "pending"
	InviteeAccepted InviteeStatus = "accepted"
	InviteeDeclined InviteeStatus = "declined"

	ApprovalPending  ApproverStatus = "pending"
	ApprovalApproved ApproverStatus = "approved"
	ApprovalRejected ApproverStatus = "rejected"
)

const (
	reasonDeclinedByStudent = "declined by student"
	reasonOtherAccepted     = "the student accepted another offer"
	reasonExpired           = "expired"
)

var OpenRequestStatuses = []RequestStatus{RequestPending, RequestPendingStudentAcceptance}

func (s RequestStatus) IsOpen() bool {
	return s == RequestPending || s == RequestPendingStudentAcceptance
}

func (r Role) IsValid() bool {
	return r == RoleMain || r == RoleCo
}

type Request struct {
	ID              string        `json:"id"`
	StudentID       string        `json:"student_id"`
	AcademicianID   string        `json:"academician_id"`
	ProposalTitle   string        `json:"proposal_title"`
	Motivation      string        `json:"motivation"`
	Status          RequestStatus `json:"status"`
	OfferedRole     Role          `json:"offered_role,omitempty"`
	OfferMessage    string        `json:"offer_message"`
	RejectionReason string        `json:"rejection_reason"`
	CancelReason    string        `json:"cancel_reason"`
	DecidedAt       *time.Time    `json:"decided_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (r Request) IsParty(userID string) bool {
	return r.StudentID == userID || r.AcademicianID == userID
}

type Relationship struct {
	ID                string             `json:"id"`
	StudentID         string             `json:"student_id"`
	AcademicianID     string             `json:"academician_id"`
	RequestID         string             `json:"request_id,omitempty"`
	Role              Role               `json:"role"`
	Status            RelationshipStatus `json:"status"`
	StartedAt         time.Time          `json:"started_at"`
	TerminatedAt      *time.Time         `json:"terminated_at"`
	TerminationReason string             `json:"termination_reason"`
}

func (r Relationship) IsActive() bool {
	return r.Status == RelationshipActive
}

func (r Relationship) IsParty(userID string) bool {
	return r.StudentID == userID || r.AcademicianID == userID
}

// Counterpart returns the other party of the relationship.
func (r Relationship) Counterpart(userID string) string {
	if userID == r.StudentID {
		return r.AcademicianID
	}
	return r.StudentID
}

type UnbindRequest struct {
	ID              string        `json:"id"`
	RelationshipID  string        `json:"relationship_id"`
	InitiatorID     string        `json:"initiator_id"`
	InitiatorRole   InitiatorRole `json:"initiator_role"`
	Reason          string        `json:"reason"`
	Status          UnbindStatus  `json:"status"`
	AttemptCount    int           `json:"attempt_count"`
	CooldownUntil   *time.Time    `json:"cooldown_until"`
	RejectionReason string        `json:"rejection_reason"`
	RespondedAt     *time.Time    `json:"responded_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// InCooldown reports whether the initiator must still wait before asking again.
func (u UnbindRequest) InCooldown(now time.Time) bool {
	return u.Status == UnbindRejected && u.CooldownUntil != nil && now.Before(*u.CooldownUntil)
}

type CoSupervisorInvitation struct {
	ID                 string         `json:"id"`
	RelationshipID     string         `json:"relationship_id"`
	StudentID          string         `json:"student_id"`
	CosupervisorID     string         `json:"cosupervisor_id"`
	InitiatorID        string         `json:"initiator_id"`
	InitiatorRole      InitiatorRole  `json:"initiator_role"`
	ApproverID         string         `json:"approver_id"`
	Message            string         `json:"message"`
	CosupervisorStatus InviteeStatus  `json:"cosupervisor_status"`
	ApproverStatus     ApproverStatus `json:"approver_status"`
	CompletedAt        *time.Time     `json:"completed_at"`
	CancelledAt        *time.Time     `json:"cancelled_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsOpen reports whether the invitation still waits on the invitee or the approver.
func (inv CoSupervisorInvitation) IsOpen() bool {
	return inv.CompletedAt == nil && inv.CancelledAt == nil &&
		inv.CosupervisorStatus != InviteeDeclined && inv.ApproverStatus != ApprovalRejected
}

func (inv CoSupervisorInvitation) IsParty(userID string) bool {
	return inv.StudentID == userID || inv.CosupervisorID == userID || inv.InitiatorID == userID || inv.ApproverID == userID
}

type Meeting struct {
	ID              string    `json:"id"`
	RelationshipID  string    `json:"relationship_id"`
	Title           string    `json:"title"`
	Agenda          string    `json:"agenda"`
	Location        string    `json:"location"`
	ScheduledFor    time.Time `json:"scheduled_for"`
	CreatedBy       string    `json:"created_by"`
	CalendarEventID string    `json:"calendar_event_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Inputs

type NewRequest struct {
	AcademicianID string `json:"academician_id" validate:"required,uuid"`
	ProposalTitle string `json:"proposal_title" validate:"required,notblank,max=255"`
	Motivation    string `json:"motivation" validate:"max=5000"`
}

type Offer struct {
	Role    Role   `json:"role" validate:"omitempty,oneof=main co"`
	Message string `json:"message" validate:"max=5000"`
}

// Reason carries the optional explanation of a refusal or cancellation.
type Reason struct {
	Reason string `json:"reason" validate:"max=5000"`
}

type NewUnbindRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=5000"`
}

type NewInvitation struct {
	CosupervisorID string `json:"cosupervisor_id" validate:"required,uuid"`
	Message        string `json:"message" validate:"max=5000"`
}

type NewMeeting struct {
	Title        string    `json:"title" validate:"required,notblank,max=255"`
	Agenda       string    `json:"agenda" validate:"max=5000"`
	Location     string    `json:"location" validate:"max=255"`
	ScheduledFor time.Time `json:"scheduled_for" validate:"required"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.AcademicianID = core.CleanString(nr.AcademicianID)
	nr.ProposalTitle = core.CleanString(nr.ProposalTitle)
	nr.Motivation = core.CleanString(nr.Motivation)
	return validate.Struct(nr)
}

func (o *Offer) Validate(validate *validator.Validate) error {
	o.Message = core.CleanString(o.Message)
	if o.Role == "" {
		o.Role = RoleMain
	}
	return validate.Struct(o)
}

func (r *Reason) Validate(validate *validator.Validate) error {
	r.Reason = core.CleanString(r.Reason)
	return validate.Struct(r)
}

func (nu *NewUnbindRequest) Validate(validate *validator.Validate) error {
	nu.Reason = core.CleanString(nu.Reason)
	return validate.Struct(nu)
}

func (ni *NewInvitation) Validate(validate *validator.Validate) error {
	ni.CosupervisorID = core.CleanString(ni.CosupervisorID)
	ni.Message = core.CleanString(ni.Message)
	return validate.Struct(ni)
}

// Validate checks the meeting fields; a meeting cannot be scheduled in the past.
func (nm *NewMeeting) Validate(validate *validator.Validate, now time.Time) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Agenda = core.CleanString(nm.Agenda)
	nm.Location = core.CleanString(nm.Location)
	if err := validate.Struct(nm); err != nil {
		return err
	}
	if !nm.ScheduledFor.After(now) {
		return core.NewValidationError(nil, core.FieldError{Field: "scheduled_for", Error: "must be in the future"})
	}
	nm.ScheduledFor = nm.ScheduledFor.UTC()
	return nil
}

// Filters

type RequestFilter struct {
	StudentID     string          `query:"student_id"`
	AcademicianID string          `query:"academician_id"`
	Statuses      []RequestStatus `query:"status"`
	CreatedBefore time.Time       `query:"-"`
	DecidedBefore time.Time       `query:"-"`
}

type RelationshipFilter struct {
	StudentID     string             `query:"student_id"`
	AcademicianID string             `query:"academician_id"`
	Role          Role               `query:"role"`
	Status        RelationshipStatus `query:"status"`
}

type UnbindFilter struct {
	RelationshipID string       `query:"relationship_id"`
	InitiatorID    string       `query:"-"`
	Status         UnbindStatus `query:"status"`
}

type InvitationFilter struct {
	RelationshipID string `query:"relationship_id"`
	StudentID      string `query:"student_id"`
	CosupervisorID string `query:"-"`
	ParticipantID  string `query:"-"`
	OpenOnly       bool   `query:"open"`
}
