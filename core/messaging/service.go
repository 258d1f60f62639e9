package messaging

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
)

var (
	// errors
	ErrConversationNotFound = core.NewNotFoundError("conversation")
	ErrConversationExists   = errors.New("conversation already exists")
)

const (
	TopicMessageReceived = "messaging.message.received"

	previewLength = 100
)

type (
	Repository interface {
		// CreateConversation returns ErrConversationExists when the pair already talks.
		CreateConversation(ctx context.Context, c Conversation, exec ...core.DBExecutor) (Conversation, error)
		GetConversationByID(ctx context.Context, id string, exec ...core.DBExecutor) (Conversation, error)
		GetConversationByParticipants(ctx context.Context, participantIDs []string, exec ...core.DBExecutor) (Conversation, error)
		// ListConversations returns a page of the user's conversations, most recent activity first, and the total.
		ListConversations(ctx context.Context, userID string, page core.Pagination, exec ...core.DBExecutor) ([]Conversation, int, error)
		TouchConversation(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error

		CreateMessage(ctx context.Context, m Message, exec ...core.DBExecutor) (Message, error)
		// ListMessages returns a page of the conversation's messages, newest first, and the total.
		ListMessages(ctx context.Context, conversationID string, page core.Pagination, exec ...core.DBExecutor) ([]Message, int, error)
		// MarkConversationRead marks read the messages `readerID` received in the conversation.
		MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time, exec ...core.DBExecutor) (int, error)
		// CountUnread counts the unread messages received by the user, over all conversations.
		CountUnread(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Notifier interface {
		Notify(ctx context.Context, nn notification.NewNotification, exec ...core.DBExecutor) (notification.Notification, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		users    UserGetter
		notifier Notifier
		logger   core.Logger
		now      func() time.Time
	}
)

func NewService(db core.DB, repo Repository, users UserGetter, notifier Notifier, logger core.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		users:    users,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (svc *Service) WithClock(now func() time.Time) *Service {
	svc.now = now
	return svc
}

// Start returns the conversation between `actor` and `participantID`, creating it on first contact.
func (svc *Service) Start(ctx context.Context, actor user.User, participantID string) (Conversation, error) {
	if participantID == actor.ID {
		return Conversation{}, core.NewValidationError(nil, core.FieldError{Field: "participant_id", Error: "you cannot message yourself"})
	}
	other, err := svc.users.GetByID(ctx, participantID)
	if err != nil {
		if core.IsNotFound(err) {
			return Conversation{}, core.NewValidationError(nil, core.FieldError{Field: "participant_id", Error: "unknown user"})
		}
		return Conversation{}, errors.Wrap(err, "finding user by ID")
	}
	if !other.IsActive {
		return Conversation{}, core.NewValidationError(nil, core.FieldError{Field: "participant_id", Error: "unknown user"})
	}

	ids := Participants(actor.ID, other.ID)
	c, err := svc.repo.GetConversationByParticipants(ctx, ids)
	if err == nil || !core.IsNotFound(err) {
		return c, err
	}
	c, err = svc.repo.CreateConversation(ctx, Conversation{ParticipantIDs: ids, CreatedAt: svc.now().UTC()})
	if errors.Cause(err) == ErrConversationExists {
		// the other participant started it concurrently
		return svc.repo.GetConversationByParticipants(ctx, ids)
	}
	return c, errors.Wrap(err, "creating conversation")
}

// Get returns a conversation `actor` takes part in.
func (svc *Service) Get(ctx context.Context, actor user.User, id string) (Conversation, error) {
	c, err := svc.repo.GetConversationByID(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	if !c.IsParticipant(actor.ID) {
		return Conversation{}, core.ErrPermissionDenied
	}
	return c, nil
}

// Send posts a message in the conversation `id` and notifies the other participant.
func (svc *Service) Send(ctx context.Context, actor user.User, id string, nm NewMessage) (Message, error) {
	var (
		m Message
		c Conversation
	)
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if c, err = svc.repo.GetConversationByID(ctx, id, exec); err != nil {
			return err
		}
		if !c.IsParticipant(actor.ID) {
			return core.ErrPermissionDenied
		}
		now := svc.now().UTC()
		m, err = svc.repo.CreateMessage(ctx, Message{
			ConversationID: c.ID,
			SenderID:       actor.ID,
			Body:           nm.Body,
			CreatedAt:      now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating message")
		}
		return errors.Wrap(svc.repo.TouchConversation(ctx, c.ID, now, exec), "updating conversation")
	})
	if err != nil {
		return Message{}, err
	}

	if svc.notifier != nil {
		_, err = svc.notifier.Notify(ctx, notification.NewNotification{
			RecipientID: c.Counterpart(actor.ID),
			Topic:       TopicMessageReceived,
			Title:       fmt.Sprintf("New message from %s", actor.Name),
			Body:        preview(m.Body),
			Data:        notification.Data{"conversation_id": c.ID, "message_id": m.ID},
		})
		if err != nil {
			svc.logger.Error(fmt.Sprintf("messaging.Send: notifying: %v", err), err, actor)
		}
	}
	return m, nil
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	return string([]rune(body)[:previewLength]) + "…"
}

func (svc *Service) ListConversations(ctx context.Context, actor user.User, page core.Pagination) ([]Conversation, int, error) {
	page.Clean()
	return svc.repo.ListConversations(ctx, actor.ID, page)
}

func (svc *Service) ListMessages(ctx context.Context, actor user.User, id string, page core.Pagination) ([]Message, int, error) {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return nil, 0, err
	}
	page.Clean()
	return svc.repo.ListMessages(ctx, id, page)
}

// MarkRead marks the messages `actor` received in conversation `id` read and returns how many changed.
func (svc *Service) MarkRead(ctx context.Context, actor user.User, id string) (int, error) {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return 0, err
	}
	return svc.repo.MarkConversationRead(ctx, id, actor.ID, svc.now().UTC())
}

func (svc *Service) UnreadCount(ctx context.Context, actor user.User) (int, error) {
	return svc.repo.CountUnread(ctx, actor.ID)
}
