package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/calendar"
)

const tokenColumns = "user_id, provider, access_token, refresh_token, token_type, expiry, created_at, updated_at"

type tokenRow struct {
	UserID       string    `db:"user_id"`
	Provider     string    `db:"provider"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenType    string    `db:"token_type"`
	Expiry       null.Time `db:"expiry"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r tokenRow) toToken() calendar.Token {
	tok := calendar.Token{
		UserID:       r.UserID,
		Provider:     r.Provider,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.Expiry.Valid {
		tok.Expiry = r.Expiry.Time.UTC()
	}
	return tok
}

type calendarRepository struct {
	base
}

var _ calendar.Repository = (*calendarRepository)(nil)

func NewCalendarRepository(db *sqlx.DB) calendar.Repository {
	return &calendarRepository{base{db: db}}
}

// SaveToken upserts the token; a reconnection keeps the original created_at.
func (repo *calendarRepository) SaveToken(ctx context.Context, tok calendar.Token, exec ...core.DBExecutor) (calendar.Token, error) {
	expiry := null.NewTime(tok.Expiry, !tok.Expiry.IsZero())
	var row tokenRow
	err := repo.conn(exec).GetContext(ctx, &row, `
		INSERT INTO calendar_tokens (`+tokenColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			updated_at = EXCLUDED.updated_at
		RETURNING `+tokenColumns,
		tok.UserID, tok.Provider, tok.AccessToken, tok.RefreshToken, tok.TokenType, expiry, tok.CreatedAt, tok.UpdatedAt)
	if err != nil {
		return calendar.Token{}, errors.Wrap(err, "saving token")
	}
	return row.toToken(), nil
}

func (repo *calendarRepository) GetToken(ctx context.Context, userID, provider string, exec ...core.DBExecutor) (calendar.Token, error) {
	if _, err := uuidOrNotFound(userID, calendar.ErrNotConnected); err != nil {
		return calendar.Token{}, err
	}
	var row tokenRow
	err := repo.conn(exec).GetContext(ctx, &row,
		"SELECT "+tokenColumns+" FROM calendar_tokens WHERE user_id = $1 AND provider = $2", userID, provider)
	if err != nil {
		return calendar.Token{}, notFound(err, calendar.ErrNotConnected)
	}
	return row.toToken(), nil
}

func (repo *calendarRepository) DeleteToken(ctx context.Context, userID, provider string, exec ...core.DBExecutor) error {
	if _, err := uuidOrNotFound(userID, calendar.ErrNotConnected); err != nil {
		return err
	}
	res, err := repo.conn(exec).ExecContext(ctx, "DELETE FROM calendar_tokens WHERE user_id = $1 AND provider = $2", userID, provider)
	return mustAffect(res, err, calendar.ErrNotConnected)
}
