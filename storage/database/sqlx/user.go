package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/user"
)

const userColumns = "id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

var userOrderings = map[string]string{
	"name":       "lower(name)",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (r userRow) toUser() user.User {
	roles := []string(r.Roles)
	if roles == nil {
		roles = []string{}
	}
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        roles,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{base{db: db}}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	var taken []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	err := repo.conn(exec).SelectContext(ctx, &taken, `
		SELECT username, email FROM users
		WHERE ((username <> '' AND username = $1) OR (email <> '' AND email = $2)) AND NOT (id = ANY($3::uuid[]))`,
		username, email, parseIDs(excluded))
	if err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, t := range taken {
		if username != "" && t.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = newID()
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	var lastLogin null.Time
	if !usr.LastLogin.IsZero() {
		lastLogin = null.TimeFrom(usr.LastLogin)
	}
	_, err := repo.conn(exec).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.IsActive, pq.Array(usr.Roles), usr.PasswordHash,
		usr.CreatedAt, usr.UpdatedAt, lastLogin)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users_username_key"):
			return user.User{}, user.ErrUsernameExists
		case isUniqueViolation(err, "users_email_key"):
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getOne(ctx context.Context, exec []core.DBExecutor, cond string, args ...interface{}) (user.User, error) {
	var row userRow
	err := repo.conn(exec).GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE "+cond+" LIMIT 1", args...)
	if err != nil {
		return user.User{}, notFound(err, user.ErrNotFound)
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	if _, err := uuidOrNotFound(id, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return repo.getOne(ctx, exec, "id = $1", id)
}

func (repo *userRepository) GetUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]user.User, error) {
	return repo.selectUsers(ctx, exec, "SELECT "+userColumns+" FROM users WHERE id = ANY($1::uuid[]) ORDER BY created_at", parseIDs(ids))
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getOne(ctx, exec, "username <> '' AND username = $1", username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getOne(ctx, exec, "email <> '' AND email = $1", email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	if username == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.getOne(ctx, exec, "username = $1 OR email = $1", username)
}

func (repo *userRepository) selectUsers(ctx context.Context, exec []core.DBExecutor, query string, args ...interface{}) ([]user.User, error) {
	var rows []userRow
	if err := repo.conn(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, len(rows))
	for i, r := range rows {
		users[i] = r.toUser()
	}
	return users, nil
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var w where
	if filter.Search != "" {
		w.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", like(filter.Search), like(filter.Search), like(filter.Search))
	}
	if len(filter.Roles) > 0 {
		var exact, prefixes []string
		for _, role := range filter.Roles {
			exact = append(exact, role)
			if strings.HasSuffix(role, ":") {
				prefixes = append(prefixes, role+"%")
			}
		}
		w.add("EXISTS (SELECT 1 FROM unnest(roles) r WHERE r = ANY(?) OR r LIKE ANY(?))", pq.Array(exact), pq.Array(prefixes))
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		w.add("created_at <= ?", filter.CreatedTo)
	}
	return repo.selectUsers(ctx, exec, "SELECT "+userColumns+" FROM users"+w.String()+orderBy(ordering, userOrderings, "created_at DESC"), w.args...)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, exec ...core.DBExecutor) (user.User, error) {
	var w where
	sets := []string{
		"name = " + w.arg(usr.Name),
		"username = " + w.arg(usr.Username),
		"email = " + w.arg(usr.Email),
		"updated_at = " + w.arg(usr.UpdatedAt),
	}
	// only save set fields
	if usr.Roles != nil {
		sets = append(sets, "roles = "+w.arg(pq.Array(usr.Roles)))
	}
	if usr.PasswordHash != nil {
		sets = append(sets, "password_hash = "+w.arg(usr.PasswordHash))
	}
	if isActive != nil {
		sets = append(sets, "is_active = "+w.arg(*isActive))
	}
	w.add("id = ?", usr.ID)

	var row userRow
	err := repo.conn(exec).GetContext(ctx, &row,
		"UPDATE users SET "+strings.Join(sets, ", ")+w.String()+" RETURNING "+userColumns, w.args...)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users_username_key"):
			return user.User{}, user.ErrUsernameExists
		case isUniqueViolation(err, "users_email_key"):
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, notFound(err, user.ErrNotFound)
	}
	return row.toUser(), nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, lastLogin time.Time, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "UPDATE users SET last_login = $1 WHERE id = $2", lastLogin, id)
	return mustAffect(res, err, user.ErrNotFound)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	_, err := repo.conn(exec).ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1::uuid[])", parseIDs(ids))
	return errors.Wrap(err, "deleting users")
}
