package messaging

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nexscholar/nexscholar/core"
)

// Conversation is a 1:1 thread; ParticipantIDs holds both users, sorted.
type Conversation struct {
	ID             string     `json:"id"`
	ParticipantIDs []string   `json:"participant_ids"`
	LastMessageAt  *time.Time `json:"last_message_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (c Conversation) IsParticipant(userID string) bool {
	return core.StringInSlice(userID, c.ParticipantIDs)
}

// Counterpart returns the other participant.
func (c Conversation) Counterpart(userID string) string {
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (m Message) IsRead() bool {
	return m.ReadAt != nil
}

// Participants returns the pair of users `a` and `b` in the order conversations store them.
func Participants(a, b string) []string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids
}

type StartConversation struct {
	ParticipantID string `json:"participant_id" validate:"required,uuid"`
}

func (sc *StartConversation) Validate(validate *validator.Validate) error {
	sc.ParticipantID = core.CleanString(sc.ParticipantID)
	return validate.Struct(sc)
}

type NewMessage struct {
	Body string `json:"body" validate:"required,notblank,max=5000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Body = core.CleanString(nm.Body)
	return validate.Struct(nm)
}
