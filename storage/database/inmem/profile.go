package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
)

type profileRepository struct {
	db *table[profile.Profile]
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db.profile}
}

func (repo *profileRepository) CreateProfile(_ context.Context, p profile.Profile, _ ...core.DBExecutor) (profile.Profile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p.ID = newID()
	repo.db.insert(p.ID, p)
	return p, nil
}

func (repo *profileRepository) UpdateProfile(_ context.Context, p profile.Profile, _ ...core.DBExecutor) (profile.Profile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[p.ID]; !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	repo.db.rows[p.ID] = p
	return p, nil
}

func (repo *profileRepository) GetProfileByID(_ context.Context, id string, _ ...core.DBExecutor) (profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.rows[id]; ok {
		return p, nil
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) GetProfileByUserID(_ context.Context, userID string, _ ...core.DBExecutor) (profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, p := range repo.db.all() {
		if p.UserID == userID {
			return p, nil
		}
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) GetProfilesByUserID(_ context.Context, userIDs []string, _ ...core.DBExecutor) ([]profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.db.filter(func(p profile.Profile) bool { return core.StringInSlice(p.UserID, userIDs) }), nil
}

func (repo *profileRepository) FilterProfiles(_ context.Context, filter profile.QueryFilter, page core.Pagination, _ ...core.DBExecutor) ([]profile.Profile, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	profiles := repo.db.filter(func(p profile.Profile) bool {
		switch {
		case filter.Type != "" && p.Type != filter.Type,
			filter.UniversityID != "" && p.UniversityID != filter.UniversityID,
			filter.FacultyID != "" && p.FacultyID != filter.FacultyID,
			filter.ResearchAreaID != "" && !core.StringInSlice(filter.ResearchAreaID, p.ResearchAreaIDs),
			filter.AcceptingStudents != nil && p.AcceptingStudents != *filter.AcceptingStudents:
			return false
		}
		if search != "" {
			return strings.Contains(strings.ToLower(p.FullName), search) ||
				strings.Contains(strings.ToLower(p.Department), search) ||
				strings.Contains(strings.ToLower(p.Position), search)
		}
		return true
	})
	sortRows(profiles, []orderField{{name: "full_name", asc: true}}, map[string]lessFunc[profile.Profile]{
		"full_name": func(a, b profile.Profile) int {
			return strings.Compare(strings.ToLower(a.FullName), strings.ToLower(b.FullName))
		},
	})
	return paginate(profiles, page.Limit(), page.Offset()), len(profiles), nil
}

func (repo *profileRepository) ListMissingEmbeddings(_ context.Context, types []profile.Type, limit int, _ ...core.DBExecutor) ([]profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	profiles := repo.db.filter(func(p profile.Profile) bool {
		if p.EmbeddingSyncedAt != nil {
			return false
		}
		if len(types) == 0 {
			return true
		}
		for _, t := range types {
			if p.Type == t {
				return true
			}
		}
		return false
	})
	return paginate(profiles, limit, 0), nil
}

func (repo *profileRepository) ListWithScholarURL(_ context.Context, _ ...core.DBExecutor) ([]profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.db.filter(func(p profile.Profile) bool {
		return p.Type == profile.TypeAcademician && p.GoogleScholarURL != ""
	}), nil
}

func (repo *profileRepository) ListWithPhone(_ context.Context, _ ...core.DBExecutor) ([]profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.db.filter(func(p profile.Profile) bool { return p.Phone != "" }), nil
}

func (repo *profileRepository) update(id string, fn func(p *profile.Profile)) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.rows[id]
	if !ok {
		return profile.ErrNotFound
	}
	fn(&p)
	repo.db.rows[id] = p
	return nil
}

func (repo *profileRepository) SetEmbeddingSyncedAt(_ context.Context, id string, syncedAt *time.Time, _ ...core.DBExecutor) error {
	return repo.update(id, func(p *profile.Profile) { p.EmbeddingSyncedAt = syncedAt })
}

func (repo *profileRepository) SetScholarMetrics(_ context.Context, id string, metrics profile.ScholarMetrics, _ ...core.DBExecutor) error {
	return repo.update(id, func(p *profile.Profile) { p.Scholar = metrics })
}

func (repo *profileRepository) SetPhone(_ context.Context, id, phone string, _ ...core.DBExecutor) error {
	return repo.update(id, func(p *profile.Profile) { p.Phone = phone })
}

func (repo *profileRepository) CountNodeReferences(_ context.Context, nodeID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return len(repo.db.filter(func(p profile.Profile) bool {
		return core.StringInSlice(nodeID, p.References())
	})), nil
}
