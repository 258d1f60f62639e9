package inmemdb

import (
	"context"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/calendar"
)

type calendarRepository struct {
	db *table[calendar.Token]
}

var _ calendar.Repository = (*calendarRepository)(nil)

func NewCalendarRepository(db *DB) calendar.Repository {
	return &calendarRepository{db: db.calendarToken}
}

func tokenKey(userID, provider string) string {
	return provider + ":" + userID
}

func (repo *calendarRepository) SaveToken(_ context.Context, tok calendar.Token, _ ...core.DBExecutor) (calendar.Token, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := tokenKey(tok.UserID, tok.Provider)
	if existing, ok := repo.db.rows[key]; ok {
		tok.CreatedAt = existing.CreatedAt
	}
	repo.db.insert(key, tok)
	return tok, nil
}

func (repo *calendarRepository) GetToken(_ context.Context, userID, provider string, _ ...core.DBExecutor) (calendar.Token, error) {
	return get(repo.db, tokenKey(userID, provider), calendar.ErrNotConnected)
}

func (repo *calendarRepository) DeleteToken(_ context.Context, userID, provider string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := tokenKey(userID, provider)
	if _, ok := repo.db.rows[key]; !ok {
		return calendar.ErrNotConnected
	}
	repo.db.remove(key)
	return nil
}
