package supervision

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
)

func requestData(r Request) notification.Data {
	return notification.Data{"request_id": r.ID}
}

// Submit sends a supervision request from a postgraduate to an academician.
func (svc *Service) Submit(ctx context.Context, student user.User, nr NewRequest) (Request, error) {
	if !student.IsPostgraduate() {
		return Request{}, core.ErrPermissionDenied
	}
	academician, err := svc.checkAcademician(ctx, "academician_id", nr.AcademicianID)
	if err != nil {
		return Request{}, err
	}

	var (
		req Request
		out outbox
	)
	err = core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if _, ok, err := svc.activeMain(ctx, student.ID, exec); err != nil {
			return err
		} else if ok {
			return core.NewTransitionError("you already have a main supervisor")
		}
		if ok, err := svc.supervises(ctx, student.ID, academician.ID, exec); err != nil {
			return err
		} else if ok {
			return core.NewTransitionError("this academician already supervises you")
		}

		open, err := svc.repo.FilterRequests(ctx, RequestFilter{StudentID: student.ID, Statuses: OpenRequestStatuses}, exec)
		if err != nil {
			return errors.Wrap(err, "filtering requests")
		}
		for _, r := range open {
			if r.AcademicianID == academician.ID {
				return core.NewTransitionError("you already have an open request to this academician")
			}
		}
		if len(open) >= svc.conf.MaxPendingRequests {
			return core.NewTransitionError(fmt.Sprintf("you cannot have more than %d open requests", svc.conf.MaxPendingRequests))
		}

		now := svc.now().UTC()
		req, err = svc.repo.CreateRequest(ctx, Request{
			StudentID:     student.ID,
			AcademicianID: academician.ID,
			ProposalTitle: nr.ProposalTitle,
			Motivation:    nr.Motivation,
			Status:        RequestPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating request")
		}
		out.add(academician.ID, TopicRequestSubmitted, "New supervision request",
			fmt.Sprintf("%s asked you to supervise %q.", student.Name, req.ProposalTitle), requestData(req))
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	svc.flush(ctx, out)
	return req, nil
}

// GetRequest returns a request visible to `actor`: its parties and admins.
func (svc *Service) GetRequest(ctx context.Context, actor user.User, id string) (Request, error) {
	req, err := svc.repo.GetRequestByID(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !req.IsParty(actor.ID) && !actor.IsAdmin() {
		return Request{}, core.ErrPermissionDenied
	}
	return req, nil
}

// ListRequests lists the requests sent (students) or received (academicians) by `actor`.
// Admins may list anybody's.
func (svc *Service) ListRequests(ctx context.Context, actor user.User, filter RequestFilter) ([]Request, error) {
	if !actor.IsAdmin() {
		if actor.IsAcademician() {
			filter.AcademicianID = actor.ID
		} else {
			filter.StudentID = actor.ID
		}
	}
	return svc.repo.FilterRequests(ctx, filter)
}

// transition loads request `id`, lets `fn` change it and saves it, in one transaction.
func (svc *Service) transition(ctx context.Context, id string, fn func(req *Request, exec core.DBExecutor, out *outbox) error) (Request, error) {
	var (
		req Request
		out outbox
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if req, err = svc.repo.GetRequestByID(ctx, id, exec); err != nil {
			return err
		}
		if err = fn(&req, exec, &out); err != nil {
			return err
		}
		req.UpdatedAt = svc.now().UTC()
		req, err = svc.repo.UpdateRequest(ctx, req, exec)
		return errors.Wrap(err, "updating request")
	})
	if err != nil {
		return Request{}, err
	}
	svc.flush(ctx, out)
	return req, nil
}

// Cancel withdraws an open request; only its student may.
func (svc *Service) Cancel(ctx context.Context, actor user.User, id string, reason Reason) (Request, error) {
	return svc.transition(ctx, id, func(req *Request, _ core.DBExecutor, out *outbox) error {
		if req.StudentID != actor.ID {
			return core.ErrPermissionDenied
		}
		if !req.Status.IsOpen() {
			return core.NewTransitionError("only open requests can be cancelled")
		}
		req.Status = RequestCancelled
		req.CancelReason = reason.Reason
		out.add(req.AcademicianID, TopicRequestCancelled, "Supervision request withdrawn",
			fmt.Sprintf("%s withdrew the request %q.", actor.Name, req.ProposalTitle), requestData(*req))
		return nil
	})
}

// Reject refuses a pending request; only its academician may.
func (svc *Service) Reject(ctx context.Context, actor user.User, id string, reason Reason) (Request, error) {
	return svc.transition(ctx, id, func(req *Request, _ core.DBExecutor, out *outbox) error {
		if req.AcademicianID != actor.ID {
			return core.ErrPermissionDenied
		}
		if req.Status != RequestPending {
			return core.NewTransitionError("only pending requests can be rejected")
		}
		now := svc.now().UTC()
		req.Status = RequestRejected
		req.RejectionReason = reason.Reason
		req.DecidedAt = &now
		out.add(req.StudentID, TopicRequestRejected, "Supervision request declined",
			fmt.Sprintf("%s declined your request %q.", actor.Name, req.ProposalTitle), requestData(*req))
		return nil
	})
}

// Offer answers a pending request with a supervision offer the student must accept.
func (svc *Service) Offer(ctx context.Context, actor user.User, id string, offer Offer) (Request, error) {
	if offer.Role == "" {
		offer.Role = RoleMain
	}
	return svc.transition(ctx, id, func(req *Request, _ core.DBExecutor, out *outbox) error {
		if req.AcademicianID != actor.ID {
			return core.ErrPermissionDenied
		}
		if req.Status != RequestPending {
			return core.NewTransitionError("only pending requests can receive an offer")
		}
		now := svc.now().UTC()
		req.Status = RequestPendingStudentAcceptance
		req.OfferedRole = offer.Role
		req.OfferMessage = offer.Message
		req.DecidedAt = &now
		out.add(req.StudentID, TopicRequestOffered, "You received a supervision offer",
			fmt.Sprintf("%s offered to be your %s supervisor for %q.", actor.Name, offer.Role, req.ProposalTitle), requestData(*req))
		return nil
	})
}

// AcceptOffer starts the supervision offered on request `id`. Every other open request of the
// student is auto-cancelled.
func (svc *Service) AcceptOffer(ctx context.Context, actor user.User, id string) (Request, Relationship, error) {
	var rel Relationship
	req, err := svc.transition(ctx, id, func(req *Request, exec core.DBExecutor, out *outbox) error {
		if req.StudentID != actor.ID {
			return core.ErrPermissionDenied
		}
		if req.Status != RequestPendingStudentAcceptance {
			return core.NewTransitionError("there is no offer to accept on this request")
		}
		if _, ok, err := svc.activeMain(ctx, actor.ID, exec); err != nil {
			return err
		} else if ok {
			return core.NewTransitionError("you already have a main supervisor")
		}
		if ok, err := svc.supervises(ctx, actor.ID, req.AcademicianID, exec); err != nil {
			return err
		} else if ok {
			return core.NewTransitionError("this academician already supervises you")
		}

		now := svc.now().UTC()
		req.Status = RequestAccepted
		req.DecidedAt = &now

		var err error
		rel, err = svc.repo.CreateRelationship(ctx, Relationship{
			StudentID:     req.StudentID,
			AcademicianID: req.AcademicianID,
			RequestID:     req.ID,
			Role:          req.OfferedRole,
			Status:        RelationshipActive,
			StartedAt:     now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating relationship")
		}
		out.add(req.AcademicianID, TopicOfferAccepted, "Supervision offer accepted",
			fmt.Sprintf("%s accepted your offer for %q.", actor.Name, req.ProposalTitle),
			notification.Data{"request_id": req.ID, "relationship_id": rel.ID})

		others, err := svc.repo.FilterRequests(ctx, RequestFilter{StudentID: req.StudentID, Statuses: OpenRequestStatuses}, exec)
		if err != nil {
			return errors.Wrap(err, "filtering requests")
		}
		for _, other := range others {
			if other.ID == req.ID {
				continue
			}
			other.Status = RequestAutoCancelled
			other.CancelReason = reasonOtherAccepted
			other.UpdatedAt = now
			if _, err = svc.repo.UpdateRequest(ctx, other, exec); err != nil {
				return errors.Wrap(err, "auto-cancelling request")
			}
			out.add(other.AcademicianID, TopicRequestAutoCancelled, "Supervision request closed",
				fmt.Sprintf("%s accepted another supervision offer; the request %q was closed.", actor.Name, other.ProposalTitle),
				requestData(other))
		}
		return nil
	})
	if err != nil {
		return Request{}, Relationship{}, err
	}
	return req, rel, nil
}

// DeclineOffer turns the offer down; the request ends rejected.
func (svc *Service) DeclineOffer(ctx context.Context, actor user.User, id string) (Request, error) {
	return svc.transition(ctx, id, func(req *Request, _ core.DBExecutor, out *outbox) error {
		if req.StudentID != actor.ID {
			return core.ErrPermissionDenied
		}
		if req.Status != RequestPendingStudentAcceptance {
			return core.NewTransitionError("there is no offer to decline on this request")
		}
		now := svc.now().UTC()
		req.Status = RequestRejected
		req.RejectionReason = reasonDeclinedByStudent
		req.DecidedAt = &now
		out.add(req.AcademicianID, TopicOfferDeclined, "Supervision offer declined",
			fmt.Sprintf("%s declined your offer for %q.", actor.Name, req.ProposalTitle), requestData(*req))
		return nil
	})
}

// ExpireStale auto-cancels the pending requests and offers left unanswered for too long,
// and returns how many were closed.
func (svc *Service) ExpireStale(ctx context.Context) (int, error) {
	var (
		count int
		out   outbox
	)
	now := svc.now().UTC()
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		pending, err := svc.repo.FilterRequests(ctx, RequestFilter{
			Statuses:      []RequestStatus{RequestPending},
			CreatedBefore: now.Add(-svc.conf.RequestExpiry),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "filtering pending requests")
		}
		offered, err := svc.repo.FilterRequests(ctx, RequestFilter{
			Statuses:      []RequestStatus{RequestPendingStudentAcceptance},
			DecidedBefore: now.Add(-svc.conf.OfferExpiry),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "filtering offers")
		}

		for _, req := range append(pending, offered...) {
			req.Status = RequestAutoCancelled
			req.CancelReason = reasonExpired
			req.UpdatedAt = now
			if _, err = svc.repo.UpdateRequest(ctx, req, exec); err != nil {
				return errors.Wrap(err, "expiring request")
			}
			body := fmt.Sprintf("The supervision request %q expired.", req.ProposalTitle)
			out.add(req.StudentID, TopicRequestAutoCancelled, "Supervision request expired", body, requestData(req))
			out.add(req.AcademicianID, TopicRequestAutoCancelled, "Supervision request expired", body, requestData(req))
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	svc.flush(ctx, out)
	return count, nil
}
