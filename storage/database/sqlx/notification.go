package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
)

const notificationColumns = "id, recipient_id, topic, title, body, data, dedupe_key, read_at, created_at"

type notificationRow struct {
	ID          string    `db:"id"`
	RecipientID string    `db:"recipient_id"`
	Topic       string    `db:"topic"`
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	Data        []byte    `db:"data"`
	DedupeKey   string    `db:"dedupe_key"`
	ReadAt      null.Time `db:"read_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r notificationRow) toNotification() (notification.Notification, error) {
	data := notification.Data{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return notification.Notification{}, errors.Wrapf(err, "decoding data of notification %s", r.ID)
		}
	}
	return notification.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		Topic:       r.Topic,
		Title:       r.Title,
		Body:        r.Body,
		Data:        data,
		DedupeKey:   r.DedupeKey,
		ReadAt:      timePtr(r.ReadAt),
		CreatedAt:   r.CreatedAt.UTC(),
	}, nil
}

type notificationRepository struct {
	base
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{base{db: db}}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	if n.Data == nil {
		n.Data = notification.Data{}
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "encoding data")
	}
	n.ID = newID()
	_, err = repo.conn(exec).ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.RecipientID, n.Topic, n.Title, n.Body, data, n.DedupeKey, nullTime(n.ReadAt), n.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "notifications_dedupe_key") {
			return notification.Notification{}, notification.ErrDuplicate
		}
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) getOne(ctx context.Context, exec []core.DBExecutor, cond string, args ...interface{}) (notification.Notification, error) {
	var row notificationRow
	if err := repo.conn(exec).GetContext(ctx, &row, "SELECT "+notificationColumns+" FROM notifications WHERE "+cond, args...); err != nil {
		return notification.Notification{}, notFound(err, notification.ErrNotFound)
	}
	return row.toNotification()
}

func (repo *notificationRepository) GetNotificationByID(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	if _, err := uuidOrNotFound(id, notification.ErrNotFound); err != nil {
		return notification.Notification{}, err
	}
	return repo.getOne(ctx, exec, "id = $1", id)
}

func (repo *notificationRepository) GetNotificationByDedupeKey(ctx context.Context, recipientID, key string, exec ...core.DBExecutor) (notification.Notification, error) {
	recipientID, err := uuidOrNotFound(recipientID, notification.ErrNotFound)
	if err != nil {
		return notification.Notification{}, err
	}
	return repo.getOne(ctx, exec, "recipient_id = $1 AND dedupe_key = $2", recipientID, key)
}

func (repo *notificationRepository) FilterNotifications(ctx context.Context, recipientID string, filter notification.QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]notification.Notification, int, error) {
	var w where
	w.addID("recipient_id", recipientID)
	if filter.UnreadOnly {
		w.add("read_at IS NULL")
	}

	var total int
	if err := repo.conn(exec).GetContext(ctx, &total, "SELECT count(*) FROM notifications"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting notifications")
	}
	var rows []notificationRow
	query := "SELECT " + notificationColumns + " FROM notifications" + w.String() +
		" ORDER BY created_at DESC, id DESC LIMIT " + w.arg(page.Limit()) + " OFFSET " + w.arg(page.Offset())
	if err := repo.conn(exec).SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting notifications")
	}
	notifications := make([]notification.Notification, len(rows))
	for i, r := range rows {
		n, err := r.toNotification()
		if err != nil {
			return nil, 0, err
		}
		notifications[i] = n
	}
	return notifications, total, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, recipientID string, exec ...core.DBExecutor) (int, error) {
	recipientID, ok := parseID(recipientID)
	if !ok {
		return 0, nil
	}
	var count int
	err := repo.conn(exec).GetContext(ctx, &count,
		"SELECT count(*) FROM notifications WHERE recipient_id = $1 AND read_at IS NULL", recipientID)
	return count, errors.Wrap(err, "counting unread")
}

func (repo *notificationRepository) MarkRead(ctx context.Context, id string, readAt time.Time, exec ...core.DBExecutor) error {
	if _, err := uuidOrNotFound(id, notification.ErrNotFound); err != nil {
		return err
	}
	res, err := repo.conn(exec).ExecContext(ctx, "UPDATE notifications SET read_at = $1 WHERE id = $2", readAt, id)
	return mustAffect(res, err, notification.ErrNotFound)
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, recipientID string, readAt time.Time, exec ...core.DBExecutor) (int, error) {
	recipientID, ok := parseID(recipientID)
	if !ok {
		return 0, nil
	}
	res, err := repo.conn(exec).ExecContext(ctx,
		"UPDATE notifications SET read_at = $1 WHERE recipient_id = $2 AND read_at IS NULL", readAt, recipientID)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "rows affected")
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuidOrNotFound(id, notification.ErrNotFound); err != nil {
		return err
	}
	res, err := repo.conn(exec).ExecContext(ctx, "DELETE FROM notifications WHERE id = $1", id)
	return mustAffect(res, err, notification.ErrNotFound)
}
