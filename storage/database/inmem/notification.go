package inmemdb

import (
	"context"
	"time"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
)

type notificationRepository struct {
	db *table[notification.Notification]
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if n.DedupeKey != "" {
		for _, row := range repo.db.rows {
			if row.RecipientID == n.RecipientID && row.DedupeKey == n.DedupeKey {
				return notification.Notification{}, notification.ErrDuplicate
			}
		}
	}
	n.ID = newID()
	repo.db.insert(n.ID, n)
	return n, nil
}

func (repo *notificationRepository) GetNotificationByID(_ context.Context, id string, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if n, ok := repo.db.rows[id]; ok {
		return n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) GetNotificationByDedupeKey(_ context.Context, recipientID, key string, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, n := range repo.db.all() {
		if n.RecipientID == recipientID && n.DedupeKey == key {
			return n, nil
		}
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) FilterNotifications(_ context.Context, recipientID string, filter notification.QueryFilter, page core.Pagination, _ ...core.DBExecutor) ([]notification.Notification, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	// insertion order breaks ties
	rows := newestFirst(repo.db.filter(func(n notification.Notification) bool {
		return n.RecipientID == recipientID && !(filter.UnreadOnly && n.IsRead())
	}))
	sortRows(rows, []orderField{{name: "created_at"}}, map[string]lessFunc[notification.Notification]{
		"created_at": func(a, b notification.Notification) int { return a.CreatedAt.Compare(b.CreatedAt) },
	})
	return paginate(rows, page.Limit(), page.Offset()), len(rows), nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, recipientID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return len(repo.db.filter(func(n notification.Notification) bool {
		return n.RecipientID == recipientID && !n.IsRead()
	})), nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, id string, readAt time.Time, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n, ok := repo.db.rows[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.ReadAt = &readAt
	repo.db.rows[id] = n
	return nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, recipientID string, readAt time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for id, n := range repo.db.rows {
		if n.RecipientID == recipientID && !n.IsRead() {
			n.ReadAt = &readAt
			repo.db.rows[id] = n
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) DeleteNotification(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return notification.ErrNotFound
	}
	repo.db.remove(id)
	return nil
}
