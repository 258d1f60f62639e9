package notification

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/user"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("notification")
	ErrDuplicate = errors.New("notification already sent")
)

type (
	Repository interface {
		// CreateNotification returns ErrDuplicate when the recipient already has the dedupe key.
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		GetNotificationByID(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
		GetNotificationByDedupeKey(ctx context.Context, recipientID, key string, exec ...core.DBExecutor) (Notification, error)
		// FilterNotifications returns a page of the recipient's notifications, newest first, and the total.
		FilterNotifications(ctx context.Context, recipientID string, filter QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]Notification, int, error)
		CountUnread(ctx context.Context, recipientID string, exec ...core.DBExecutor) (int, error)
		MarkRead(ctx context.Context, id string, readAt time.Time, exec ...core.DBExecutor) error
		MarkAllRead(ctx context.Context, recipientID string, readAt time.Time, exec ...core.DBExecutor) (int, error)
		DeleteNotification(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// UserGetter finds the recipient of an email copy.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo    Repository
		users   UserGetter
		mailSvc core.EmailService
		logger  core.Logger
		now     func() time.Time
	}
)

func NewService(repo Repository, users UserGetter, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
		now:     time.Now,
	}
}

func (svc *Service) WithClock(now func() time.Time) *Service {
	svc.now = now
	return svc
}

// Notify stores a notification for its recipient and emails a copy when asked to.
// When the dedupe key was already used, the existing notification is returned and nothing is sent.
func (svc *Service) Notify(ctx context.Context, nn NewNotification, exec ...core.DBExecutor) (Notification, error) {
	if nn.DedupeKey != "" {
		n, err := svc.repo.GetNotificationByDedupeKey(ctx, nn.RecipientID, nn.DedupeKey, exec...)
		if err == nil {
			return n, nil
		}
		if !core.IsNotFound(err) {
			return Notification{}, errors.Wrap(err, "finding notification by dedupe key")
		}
	}

	data := nn.Data
	if data == nil {
		data = Data{}
	}
	n, err := svc.repo.CreateNotification(ctx, Notification{
		RecipientID: nn.RecipientID,
		Topic:       nn.Topic,
		Title:       nn.Title,
		Body:        nn.Body,
		Data:        data,
		DedupeKey:   nn.DedupeKey,
		CreatedAt:   svc.now().UTC(),
	}, exec...)
	if err != nil {
		if errors.Cause(err) == ErrDuplicate {
			return svc.repo.GetNotificationByDedupeKey(ctx, nn.RecipientID, nn.DedupeKey, exec...)
		}
		return Notification{}, errors.Wrap(err, "creating notification")
	}

	if nn.Email {
		svc.sendEmail(ctx, n)
	}
	return n, nil
}

func (svc *Service) sendEmail(ctx context.Context, n Notification) {
	if svc.users == nil || svc.mailSvc == nil {
		return
	}
	usr, err := svc.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		svc.logger.Error("notification.sendEmail: "+err.Error(), err)
		return
	}
	if !usr.IsActive || usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      n.Title,
		TemplateName: "notification",
		TemplateData: map[string]string{
			"Name":  usr.Name,
			"Title": n.Title,
			"Body":  n.Body,
		},
	})
}

// Get returns the notification `id` of `recipientID`; other recipients' notifications are not found.
func (svc *Service) Get(ctx context.Context, recipientID, id string) (Notification, error) {
	n, err := svc.repo.GetNotificationByID(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.RecipientID != recipientID {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

func (svc *Service) List(ctx context.Context, recipientID string, filter QueryFilter, page core.Pagination) ([]Notification, int, error) {
	page.Clean()
	return svc.repo.FilterNotifications(ctx, recipientID, filter, page)
}

func (svc *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return svc.repo.CountUnread(ctx, recipientID)
}

func (svc *Service) MarkRead(ctx context.Context, recipientID, id string) (Notification, error) {
	n, err := svc.Get(ctx, recipientID, id)
	if err != nil {
		return Notification{}, err
	}
	if n.IsRead() {
		return n, nil
	}
	now := svc.now().UTC()
	if err = svc.repo.MarkRead(ctx, id, now); err != nil {
		return Notification{}, errors.Wrap(err, "marking notification read")
	}
	n.ReadAt = &now
	return n, nil
}

// MarkAllRead marks every unread notification of the recipient read and returns how many changed.
func (svc *Service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return svc.repo.MarkAllRead(ctx, recipientID, svc.now().UTC())
}

func (svc *Service) Delete(ctx context.Context, recipientID, id string) error {
	if _, err := svc.Get(ctx, recipientID, id); err != nil {
		return err
	}
	return svc.repo.DeleteNotification(ctx, id)
}
