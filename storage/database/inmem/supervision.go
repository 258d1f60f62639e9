package inmemdb

import (
	"context"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/supervision"
)

type supervisionRepository struct {
	request      *table[supervision.Request]
	relationship *table[supervision.Relationship]
	unbind       *table[supervision.UnbindRequest]
	invitation   *table[supervision.CoSupervisorInvitation]
	meeting      *table[supervision.Meeting]
}

var _ supervision.Repository = (*supervisionRepository)(nil)

func NewSupervisionRepository(db *DB) supervision.Repository {
	return &supervisionRepository{
		request:      db.request,
		relationship: db.relationship,
		unbind:       db.unbind,
		invitation:   db.invitation,
		meeting:      db.meeting,
	}
}

// newestFirst reverses rows kept in insertion order.
func newestFirst[T any](rows []T) []T {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

// get returns the row `id` of `t` or `notFound`.
func get[T any](t *table[T], id string, notFound error) (T, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, notFound
	}
	return row, nil
}

// put replaces the existing row `id` of `t`.
func put[T any](t *table[T], id string, row T, notFound error) (T, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.rows[id]; !ok {
		var zero T
		return zero, notFound
	}
	t.rows[id] = row
	return row, nil
}

// Requests

func (repo *supervisionRepository) CreateRequest(_ context.Context, r supervision.Request, _ ...core.DBExecutor) (supervision.Request, error) {
	repo.request.mutex.Lock()
	defer repo.request.mutex.Unlock()

	r.ID = newID()
	repo.request.insert(r.ID, r)
	return r, nil
}

func (repo *supervisionRepository) GetRequestByID(_ context.Context, id string, _ ...core.DBExecutor) (supervision.Request, error) {
	return get(repo.request, id, supervision.ErrRequestNotFound)
}

func (repo *supervisionRepository) UpdateRequest(_ context.Context, r supervision.Request, _ ...core.DBExecutor) (supervision.Request, error) {
	return put(repo.request, r.ID, r, supervision.ErrRequestNotFound)
}

func (repo *supervisionRepository) FilterRequests(_ context.Context, filter supervision.RequestFilter, _ ...core.DBExecutor) ([]supervision.Request, error) {
	repo.request.mutex.RLock()
	defer repo.request.mutex.RUnlock()

	return newestFirst(repo.request.filter(func(r supervision.Request) bool {
		switch {
		case filter.StudentID != "" && r.StudentID != filter.StudentID,
			filter.AcademicianID != "" && r.AcademicianID != filter.AcademicianID,
			!filter.CreatedBefore.IsZero() && !r.CreatedAt.Before(filter.CreatedBefore),
			!filter.DecidedBefore.IsZero() && (r.DecidedAt == nil || !r.DecidedAt.Before(filter.DecidedBefore)):
			return false
		}
		if len(filter.Statuses) == 0 {
			return true
		}
		for _, s := range filter.Statuses {
			if r.Status == s {
				return true
			}
		}
		return false
	})), nil
}

// Relationships

func (repo *supervisionRepository) CreateRelationship(_ context.Context, rel supervision.Relationship, _ ...core.DBExecutor) (supervision.Relationship, error) {
	repo.relationship.mutex.Lock()
	defer repo.relationship.mutex.Unlock()

	rel.ID = newID()
	repo.relationship.insert(rel.ID, rel)
	return rel, nil
}

func (repo *supervisionRepository) GetRelationshipByID(_ context.Context, id string, _ ...core.DBExecutor) (supervision.Relationship, error) {
	return get(repo.relationship, id, supervision.ErrRelationshipNotFound)
}

func (repo *supervisionRepository) UpdateRelationship(_ context.Context, rel supervision.Relationship, _ ...core.DBExecutor) (supervision.Relationship, error) {
	return put(repo.relationship, rel.ID, rel, supervision.ErrRelationshipNotFound)
}

func (repo *supervisionRepository) FilterRelationships(_ context.Context, filter supervision.RelationshipFilter, _ ...core.DBExecutor) ([]supervision.Relationship, error) {
	repo.relationship.mutex.RLock()
	defer repo.relationship.mutex.RUnlock()

	return newestFirst(repo.relationship.filter(func(rel supervision.Relationship) bool {
		switch {
		case filter.StudentID != "" && rel.StudentID != filter.StudentID,
			filter.AcademicianID != "" && rel.AcademicianID != filter.AcademicianID,
			filter.Role != "" && rel.Role != filter.Role,
			filter.Status != "" && rel.Status != filter.Status:
			return false
		}
		return true
	})), nil
}

// Unbind requests

func (repo *supervisionRepository) CreateUnbindRequest(_ context.Context, ur supervision.UnbindRequest, _ ...core.DBExecutor) (supervision.UnbindRequest, error) {
	repo.unbind.mutex.Lock()
	defer repo.unbind.mutex.Unlock()

	ur.ID = newID()
	repo.unbind.insert(ur.ID, ur)
	return ur, nil
}

func (repo *supervisionRepository) GetUnbindRequestByID(_ context.Context, id string, _ ...core.DBExecutor) (supervision.UnbindRequest, error) {
	return get(repo.unbind, id, supervision.ErrUnbindNotFound)
}

func (repo *supervisionRepository) UpdateUnbindRequest(_ context.Context, ur supervision.UnbindRequest, _ ...core.DBExecutor) (supervision.UnbindRequest, error) {
	return put(repo.unbind, ur.ID, ur, supervision.ErrUnbindNotFound)
}

func (repo *supervisionRepository) FilterUnbindRequests(_ context.Context, filter supervision.UnbindFilter, _ ...core.DBExecutor) ([]supervision.UnbindRequest, error) {
	repo.unbind.mutex.RLock()
	defer repo.unbind.mutex.RUnlock()

	return newestFirst(repo.unbind.filter(func(ur supervision.UnbindRequest) bool {
		switch {
		case filter.RelationshipID != "" && ur.RelationshipID != filter.RelationshipID,
			filter.InitiatorID != "" && ur.InitiatorID != filter.InitiatorID,
			filter.Status != "" && ur.Status != filter.Status:
			return false
		}
		return true
	})), nil
}

// Co-supervisor invitations

func (repo *supervisionRepository) CreateInvitation(_ context.Context, inv supervision.CoSupervisorInvitation, _ ...core.DBExecutor) (supervision.CoSupervisorInvitation, error) {
	repo.invitation.mutex.Lock()
	defer repo.invitation.mutex.Unlock()

	inv.ID = newID()
	repo.invitation.insert(inv.ID, inv)
	return inv, nil
}

func (repo *supervisionRepository) GetInvitationByID(_ context.Context, id string, _ ...core.DBExecutor) (supervision.CoSupervisorInvitation, error) {
	return get(repo.invitation, id, supervision.ErrInvitationNotFound)
}

func (repo *supervisionRepository) UpdateInvitation(_ context.Context, inv supervision.CoSupervisorInvitation, _ ...core.DBExecutor) (supervision.CoSupervisorInvitation, error) {
	return put(repo.invitation, inv.ID, inv, supervision.ErrInvitationNotFound)
}

func (repo *supervisionRepository) FilterInvitations(_ context.Context, filter supervision.InvitationFilter, _ ...core.DBExecutor) ([]supervision.CoSupervisorInvitation, error) {
	repo.invitation.mutex.RLock()
	defer repo.invitation.mutex.RUnlock()

	return newestFirst(repo.invitation.filter(func(inv supervision.CoSupervisorInvitation) bool {
		switch {
		case filter.RelationshipID != "" && inv.RelationshipID != filter.RelationshipID,
			filter.StudentID != "" && inv.StudentID != filter.StudentID,
			filter.CosupervisorID != "" && inv.CosupervisorID != filter.CosupervisorID,
			filter.ParticipantID != "" && !inv.IsParty(filter.ParticipantID),
			filter.OpenOnly && !inv.IsOpen():
			return false
		}
		return true
	})), nil
}

// Meetings

func (repo *supervisionRepository) CreateMeeting(_ context.Context, m supervision.Meeting, _ ...core.DBExecutor) (supervision.Meeting, error) {
	repo.meeting.mutex.Lock()
	defer repo.meeting.mutex.Unlock()

	m.ID = newID()
	repo.meeting.insert(m.ID, m)
	return m, nil
}

func (repo *supervisionRepository) GetMeetingByID(_ context.Context, id string, _ ...core.DBExecutor) (supervision.Meeting, error) {
	return get(repo.meeting, id, supervision.ErrMeetingNotFound)
}

func (repo *supervisionRepository) SetMeetingEventID(_ context.Context, id, eventID string, _ ...core.DBExecutor) error {
	repo.meeting.mutex.Lock()
	defer repo.meeting.mutex.Unlock()

	m, ok := repo.meeting.rows[id]
	if !ok {
		return supervision.ErrMeetingNotFound
	}
	m.CalendarEventID = eventID
	repo.meeting.rows[id] = m
	return nil
}

func (repo *supervisionRepository) ListMeetings(_ context.Context, relationshipID string, _ ...core.DBExecutor) ([]supervision.Meeting, error) {
	repo.meeting.mutex.RLock()
	defer repo.meeting.mutex.RUnlock()

	meetings := repo.meeting.filter(func(m supervision.Meeting) bool { return m.RelationshipID == relationshipID })
	sortRows(meetings, []orderField{{name: "scheduled_for", asc: true}}, map[string]lessFunc[supervision.Meeting]{
		"scheduled_for": func(a, b supervision.Meeting) int { return a.ScheduledFor.Compare(b.ScheduledFor) },
	})
	return meetings, nil
}

func (repo *supervisionRepository) DeleteMeeting(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.meeting.mutex.Lock()
	defer repo.meeting.mutex.Unlock()

	if _, ok := repo.meeting.rows[id]; !ok {
		return supervision.ErrMeetingNotFound
	}
	repo.meeting.remove(id)
	return nil
}
