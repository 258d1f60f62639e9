package inmemdb

import (
	"cmp"
	"context"
	"strings"
	"time"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/user"
)

var userOrderings = map[string]lessFunc[user.User]{
	"name":       func(a, b user.User) int { return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) },
	"username":   func(a, b user.User) int { return cmp.Compare(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return cmp.Compare(a.Email, b.Email) },
	"is_active":  func(a, b user.User) int { return boolCmp(a.IsActive, b.IsActive) },
	"created_at": func(a, b user.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updated_at": func(a, b user.User) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	"last_login": func(a, b user.User) int { return a.LastLogin.Compare(b.LastLogin) },
}

type userRepository struct {
	db *table[user.User]
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.all() {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = newID()
	repo.db.insert(usr.ID, usr)
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.rows[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.db.filter(func(u user.User) bool { return core.StringInSlice(u.ID, ids) }), nil
}

func (repo *userRepository) getBy(match func(user.User) bool) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.all() {
		if match(usr) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string, _ ...core.DBExecutor) (user.User, error) {
	return repo.getBy(func(u user.User) bool { return u.Username != "" && u.Username == username })
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string, _ ...core.DBExecutor) (user.User, error) {
	return repo.getBy(func(u user.User) bool { return u.Email != "" && u.Email == email })
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string, _ ...core.DBExecutor) (user.User, error) {
	return repo.getBy(func(u user.User) bool {
		return username != "" && (u.Username == username || u.Email == username)
	})
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := repo.db.filter(filter.Match)
	sortRows(users, toOrderFields(ordering), userOrderings)
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive *bool, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	origUsr, ok := repo.db.rows[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.Roles != nil {
		origUsr.Roles = usr.Roles
	}
	if usr.PasswordHash != nil {
		origUsr.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		origUsr.IsActive = *isActive
	}
	origUsr.Name = usr.Name
	origUsr.Username = usr.Username
	origUsr.Email = usr.Email
	origUsr.UpdatedAt = usr.UpdatedAt

	repo.db.rows[usr.ID] = origUsr
	return origUsr, nil
}

func (repo *userRepository) SetLastLogin(_ context.Context, id string, lastLogin time.Time, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.rows[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.LastLogin = lastLogin
	repo.db.rows[id] = usr
	return nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.remove(ids...)
	return nil
}

func toOrderFields(ordering []core.DBOrdering) []orderField {
	fields := make([]orderField, 0, len(ordering))
	for _, o := range ordering {
		fields = append(fields, orderField{name: o.Field, asc: o.Ascending})
	}
	return fields
}
