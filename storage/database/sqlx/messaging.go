package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/messaging"
)

const (
	conversationColumns = "id, participant_ids, last_message_at, created_at"
	messageColumns      = "id, conversation_id, sender_id, body, read_at, created_at"
)

type conversationRow struct {
	ID             string         `db:"id"`
	ParticipantIDs pq.StringArray `db:"participant_ids"`
	LastMessageAt  null.Time      `db:"last_message_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r conversationRow) toConversation() messaging.Conversation {
	return messaging.Conversation{
		ID:             r.ID,
		ParticipantIDs: orEmpty(r.ParticipantIDs),
		LastMessageAt:  timePtr(r.LastMessageAt),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type messageRow struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	SenderID       string    `db:"sender_id"`
	Body           string    `db:"body"`
	ReadAt         null.Time `db:"read_at"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r messageRow) toMessage() messaging.Message {
	return messaging.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Body:           r.Body,
		ReadAt:         timePtr(r.ReadAt),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type messagingRepository struct {
	base
}

var _ messaging.Repository = (*messagingRepository)(nil)

func NewMessagingRepository(db *sqlx.DB) messaging.Repository {
	return &messagingRepository{base{db: db}}
}

func (repo *messagingRepository) CreateConversation(ctx context.Context, c messaging.Conversation, exec ...core.DBExecutor) (messaging.Conversation, error) {
	c.ID = newID()
	_, err := repo.conn(exec).ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`) VALUES ($1, $2, $3, $4)`,
		c.ID, pq.Array(c.ParticipantIDs), nullTime(c.LastMessageAt), c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "conversations_pair_key") {
			return messaging.Conversation{}, messaging.ErrConversationExists
		}
		return messaging.Conversation{}, errors.Wrap(err, "inserting conversation")
	}
	return c, nil
}

func (repo *messagingRepository) GetConversationByID(ctx context.Context, id string, exec ...core.DBExecutor) (messaging.Conversation, error) {
	if _, err := uuidOrNotFound(id, messaging.ErrConversationNotFound); err != nil {
		return messaging.Conversation{}, err
	}
	var row conversationRow
	if err := repo.conn(exec).GetContext(ctx, &row, "SELECT "+conversationColumns+" FROM conversations WHERE id = $1", id); err != nil {
		return messaging.Conversation{}, notFound(err, messaging.ErrConversationNotFound)
	}
	return row.toConversation(), nil
}

func (repo *messagingRepository) GetConversationByParticipants(ctx context.Context, participantIDs []string, exec ...core.DBExecutor) (messaging.Conversation, error) {
	var row conversationRow
	err := repo.conn(exec).GetContext(ctx, &row,
		"SELECT "+conversationColumns+" FROM conversations WHERE participant_ids = $1::uuid[]", parseIDs(participantIDs))
	if err != nil {
		return messaging.Conversation{}, notFound(err, messaging.ErrConversationNotFound)
	}
	return row.toConversation(), nil
}

func (repo *messagingRepository) ListConversations(ctx context.Context, userID string, page core.Pagination, exec ...core.DBExecutor) ([]messaging.Conversation, int, error) {
	userID, ok := parseID(userID)
	if !ok {
		return nil, 0, nil
	}
	var total int
	err := repo.conn(exec).GetContext(ctx, &total,
		"SELECT count(*) FROM conversations WHERE participant_ids @> ARRAY[$1]::uuid[]", userID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting conversations")
	}
	var rows []conversationRow
	err = repo.conn(exec).SelectContext(ctx, &rows, `
		SELECT `+conversationColumns+` FROM conversations WHERE participant_ids @> ARRAY[$1]::uuid[]
		ORDER BY coalesce(last_message_at, created_at) DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, errors.Wrap(err, "selecting conversations")
	}
	convs := make([]messaging.Conversation, len(rows))
	for i, r := range rows {
		convs[i] = r.toConversation()
	}
	return convs, total, nil
}

func (repo *messagingRepository) TouchConversation(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "UPDATE conversations SET last_message_at = $1 WHERE id = $2", at, id)
	return mustAffect(res, err, messaging.ErrConversationNotFound)
}

func (repo *messagingRepository) CreateMessage(ctx context.Context, m messaging.Message, exec ...core.DBExecutor) (messaging.Message, error) {
	m.ID = newID()
	_, err := repo.conn(exec).ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ConversationID, m.SenderID, m.Body, nullTime(m.ReadAt), m.CreatedAt)
	if err != nil {
		return messaging.Message{}, errors.Wrap(err, "inserting message")
	}
	return m, nil
}

func (repo *messagingRepository) ListMessages(ctx context.Context, conversationID string, page core.Pagination, exec ...core.DBExecutor) ([]messaging.Message, int, error) {
	conversationID, ok := parseID(conversationID)
	if !ok {
		return nil, 0, nil
	}
	var total int
	err := repo.conn(exec).GetContext(ctx, &total, "SELECT count(*) FROM messages WHERE conversation_id = $1", conversationID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting messages")
	}
	var rows []messageRow
	err = repo.conn(exec).SelectContext(ctx, &rows, `
		SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		conversationID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, errors.Wrap(err, "selecting messages")
	}
	messages := make([]messaging.Message, len(rows))
	for i, r := range rows {
		messages[i] = r.toMessage()
	}
	return messages, total, nil
}

func (repo *messagingRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time, exec ...core.DBExecutor) (int, error) {
	conversationID, ok := parseID(conversationID)
	if !ok {
		return 0, nil
	}
	if readerID, ok = parseID(readerID); !ok {
		return 0, nil
	}
	res, err := repo.conn(exec).ExecContext(ctx, `
		UPDATE messages SET read_at = $1
		WHERE conversation_id = $2 AND sender_id <> $3 AND read_at IS NULL`,
		at, conversationID, readerID)
	if err != nil {
		return 0, errors.Wrap(err, "marking messages read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "rows affected")
}

func (repo *messagingRepository) CountUnread(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	userID, ok := parseID(userID)
	if !ok {
		return 0, nil
	}
	var count int
	err := repo.conn(exec).GetContext(ctx, &count, `
		SELECT count(*) FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.participant_ids @> ARRAY[$1]::uuid[] AND m.sender_id <> $1 AND m.read_at IS NULL`, userID)
	return count, errors.Wrap(err, "counting unread")
}
