package inmemdb

import (
	"context"
	"time"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/messaging"
)

type messagingRepository struct {
	conversation *table[messaging.Conversation]
	message      *table[messaging.Message]
}

var _ messaging.Repository = (*messagingRepository)(nil)

func NewMessagingRepository(db *DB) messaging.Repository {
	return &messagingRepository{
		conversation: db.conversation,
		message:      db.message,
	}
}

func sameParticipants(a, b []string) bool {
	return len(a) == 2 && len(b) == 2 && a[0] == b[0] && a[1] == b[1]
}

func (repo *messagingRepository) CreateConversation(_ context.Context, c messaging.Conversation, _ ...core.DBExecutor) (messaging.Conversation, error) {
	repo.conversation.mutex.Lock()
	defer repo.conversation.mutex.Unlock()

	for _, row := range repo.conversation.rows {
		if sameParticipants(row.ParticipantIDs, c.ParticipantIDs) {
			return messaging.Conversation{}, messaging.ErrConversationExists
		}
	}
	c.ID = newID()
	repo.conversation.insert(c.ID, c)
	return c, nil
}

func (repo *messagingRepository) GetConversationByID(_ context.Context, id string, _ ...core.DBExecutor) (messaging.Conversation, error) {
	return get(repo.conversation, id, messaging.ErrConversationNotFound)
}

func (repo *messagingRepository) GetConversationByParticipants(_ context.Context, participantIDs []string, _ ...core.DBExecutor) (messaging.Conversation, error) {
	repo.conversation.mutex.RLock()
	defer repo.conversation.mutex.RUnlock()

	for _, c := range repo.conversation.rows {
		if sameParticipants(c.ParticipantIDs, participantIDs) {
			return c, nil
		}
	}
	return messaging.Conversation{}, messaging.ErrConversationNotFound
}

func (repo *messagingRepository) ListConversations(_ context.Context, userID string, page core.Pagination, _ ...core.DBExecutor) ([]messaging.Conversation, int, error) {
	repo.conversation.mutex.RLock()
	defer repo.conversation.mutex.RUnlock()

	rows := newestFirst(repo.conversation.filter(func(c messaging.Conversation) bool { return c.IsParticipant(userID) }))
	sortRows(rows, []orderField{{name: "activity"}}, map[string]lessFunc[messaging.Conversation]{
		"activity": func(a, b messaging.Conversation) int { return lastActivity(a).Compare(lastActivity(b)) },
	})
	return paginate(rows, page.Limit(), page.Offset()), len(rows), nil
}

func lastActivity(c messaging.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func (repo *messagingRepository) TouchConversation(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) error {
	repo.conversation.mutex.Lock()
	defer repo.conversation.mutex.Unlock()

	c, ok := repo.conversation.rows[id]
	if !ok {
		return messaging.ErrConversationNotFound
	}
	c.LastMessageAt = &at
	repo.conversation.rows[id] = c
	return nil
}

func (repo *messagingRepository) CreateMessage(_ context.Context, m messaging.Message, _ ...core.DBExecutor) (messaging.Message, error) {
	repo.message.mutex.Lock()
	defer repo.message.mutex.Unlock()

	m.ID = newID()
	repo.message.insert(m.ID, m)
	return m, nil
}

func (repo *messagingRepository) ListMessages(_ context.Context, conversationID string, page core.Pagination, _ ...core.DBExecutor) ([]messaging.Message, int, error) {
	repo.message.mutex.RLock()
	defer repo.message.mutex.RUnlock()

	rows := newestFirst(repo.message.filter(func(m messaging.Message) bool { return m.ConversationID == conversationID }))
	return paginate(rows, page.Limit(), page.Offset()), len(rows), nil
}

func (repo *messagingRepository) MarkConversationRead(_ context.Context, conversationID, readerID string, at time.Time, _ ...core.DBExecutor) (int, error) {
	repo.message.mutex.Lock()
	defer repo.message.mutex.Unlock()

	var count int
	for id, m := range repo.message.rows {
		if m.ConversationID == conversationID && m.SenderID != readerID && !m.IsRead() {
			m.ReadAt = &at
			repo.message.rows[id] = m
			count++
		}
	}
	return count, nil
}

func (repo *messagingRepository) CountUnread(_ context.Context, userID string, _ ...core.DBExecutor) (int, error) {
	repo.conversation.mutex.RLock()
	convIDs := make(map[string]bool)
	for _, c := range repo.conversation.rows {
		if c.IsParticipant(userID) {
			convIDs[c.ID] = true
		}
	}
	repo.conversation.mutex.RUnlock()

	repo.message.mutex.RLock()
	defer repo.message.mutex.RUnlock()

	return len(repo.message.filter(func(m messaging.Message) bool {
		return convIDs[m.ConversationID] && m.SenderID != userID && !m.IsRead()
	})), nil
}
