package inmemdb

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nexscholar/nexscholar/core/board"
	"github.com/nexscholar/nexscholar/core/calendar"
	"github.com/nexscholar/nexscholar/core/messaging"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	"github.com/nexscholar/nexscholar/core/user"
)

type (
	// DB keeps every table in memory; it backs the tests and the DEV mode without postgres.
	DB struct {
		user          *table[user.User]
		taxonomy      *table[taxonomy.Node]
		profile       *table[profile.Profile]
		request       *table[supervision.Request]
		relationship  *table[supervision.Relationship]
		unbind        *table[supervision.UnbindRequest]
		invitation    *table[supervision.CoSupervisorInvitation]
		meeting       *table[supervision.Meeting]
		notification  *table[notification.Notification]
		conversation  *table[messaging.Conversation]
		message       *table[messaging.Message]
		workspace     *table[board.Workspace]
		board         *table[board.Board]
		list          *table[board.List]
		task          *table[board.Task]
		calendarToken *table[calendar.Token]
	}

	table[T any] struct {
		rows  map[string]T
		order []string // insertion order
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:          newTable[user.User](),
		taxonomy:      newTable[taxonomy.Node](),
		profile:       newTable[profile.Profile](),
		request:       newTable[supervision.Request](),
		relationship:  newTable[supervision.Relationship](),
		unbind:        newTable[supervision.UnbindRequest](),
		invitation:    newTable[supervision.CoSupervisorInvitation](),
		meeting:       newTable[supervision.Meeting](),
		notification:  newTable[notification.Notification](),
		conversation:  newTable[messaging.Conversation](),
		message:       newTable[messaging.Message](),
		workspace:     newTable[board.Workspace](),
		board:         newTable[board.Board](),
		list:          newTable[board.List](),
		task:          newTable[board.Task](),
		calendarToken: newTable[calendar.Token](),
	}
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func newID() string {
	return uuid.NewString()
}

// insert must be called with the write lock held.
func (t *table[T]) insert(id string, row T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = row
}

// remove must be called with the write lock held.
func (t *table[T]) remove(ids ...string) {
	for _, id := range ids {
		delete(t.rows, id)
	}
	order := t.order[:0]
	for _, id := range t.order {
		if _, ok := t.rows[id]; ok {
			order = append(order, id)
		}
	}
	t.order = order
}

// all returns the rows in insertion order; must be called with a lock held.
func (t *table[T]) all() []T {
	rows := make([]T, 0, len(t.order))
	for _, id := range t.order {
		rows = append(rows, t.rows[id])
	}
	return rows
}

// filter returns the rows matching `keep` in insertion order; must be called with a lock held.
func (t *table[T]) filter(keep func(T) bool) []T {
	rows := make([]T, 0)
	for _, id := range t.order {
		if row := t.rows[id]; keep(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

// lessFunc compares two rows on one field: negative when a sorts first.
type lessFunc[T any] func(a, b T) int

// sortRows sorts in place following `fields`, in order; unknown fields are ignored.
func sortRows[T any](rows []T, fields []orderField, cmps map[string]lessFunc[T]) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, f := range fields {
			cmp, ok := cmps[f.name]
			if !ok {
				continue
			}
			c := cmp(rows[i], rows[j])
			if c == 0 {
				continue
			}
			if f.asc {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

type orderField struct {
	name string
	asc  bool
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
