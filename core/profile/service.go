package profile

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/user"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("profile")
	ErrNoProfileType = errors.New("this account cannot have a profile")
)

type (
	Repository interface {
		CreateProfile(ctx context.Context, p Profile, exec ...core.DBExecutor) (Profile, error)
		UpdateProfile(ctx context.Context, p Profile, exec ...core.DBExecutor) (Profile, error)
		GetProfileByID(ctx context.Context, id string, exec ...core.DBExecutor) (Profile, error)
		GetProfileByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (Profile, error)
		GetProfilesByUserID(ctx context.Context, userIDs []string, exec ...core.DBExecutor) ([]Profile, error)
		// FilterProfiles returns a page of the matching profiles ordered by name, and the total.
		FilterProfiles(ctx context.Context, filter QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]Profile, int, error)
		ListMissingEmbeddings(ctx context.Context, types []Type, limit int, exec ...core.DBExecutor) ([]Profile, error)
		ListWithScholarURL(ctx context.Context, exec ...core.DBExecutor) ([]Profile, error)
		ListWithPhone(ctx context.Context, exec ...core.DBExecutor) ([]Profile, error)
		SetEmbeddingSyncedAt(ctx context.Context, id string, syncedAt *time.Time, exec ...core.DBExecutor) error
		SetScholarMetrics(ctx context.Context, id string, metrics ScholarMetrics, exec ...core.DBExecutor) error
		SetPhone(ctx context.Context, id, phone string, exec ...core.DBExecutor) error
		CountNodeReferences(ctx context.Context, nodeID string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		db   core.DB
		repo Repository
		now  func() time.Time
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo, now: time.Now}
}

func (svc *Service) WithClock(now func() time.Time) *Service {
	svc.now = now
	return svc
}

// Save creates or replaces the profile of `usr`; its type follows the user's role.
// Any change makes the profile eligible for a new embedding.
func (svc *Service) Save(ctx context.Context, usr user.User, sp SaveProfile) (Profile, error) {
	typ, ok := TypeForUser(usr)
	if !ok {
		return Profile{}, core.NewValidationError(ErrNoProfileType)
	}

	now := svc.now().UTC()
	p := Profile{
		UserID:            usr.ID,
		Type:              typ,
		FullName:          sp.FullName,
		Phone:             sp.Phone,
		UniversityID:      sp.UniversityID,
		FacultyID:         sp.FacultyID,
		ProgramID:         sp.ProgramID,
		Position:          sp.Position,
		Department:        sp.Department,
		Bio:               sp.Bio,
		ResearchAreaIDs:   sp.ResearchAreaIDs,
		SkillIDs:          sp.SkillIDs,
		GoogleScholarURL:  sp.GoogleScholarURL,
		AcceptingStudents: sp.AcceptingStudents && typ == TypeAcademician,
		UpdatedAt:         now,
	}

	var saved Profile
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		orig, err := svc.repo.GetProfileByUserID(ctx, usr.ID, exec)
		switch {
		case err == nil:
			p.ID = orig.ID
			p.CreatedAt = orig.CreatedAt
			p.Scholar = orig.Scholar
			if p.GoogleScholarURL != orig.GoogleScholarURL {
				p.Scholar = ScholarMetrics{}
			}
			saved, err = svc.repo.UpdateProfile(ctx, p, exec)
		case core.IsNotFound(err):
			p.CreatedAt = now
			saved, err = svc.repo.CreateProfile(ctx, p, exec)
		}
		return err
	})
	if err != nil {
		return Profile{}, errors.Wrap(err, "saving profile")
	}
	return saved, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return svc.repo.GetProfileByID(ctx, id)
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	return svc.repo.GetProfileByUserID(ctx, userID)
}

// GetByUserIDs maps user IDs to their profiles; users without one are absent.
func (svc *Service) GetByUserIDs(ctx context.Context, userIDs ...string) (map[string]Profile, error) {
	profiles := make(map[string]Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	list, err := svc.repo.GetProfilesByUserID(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		profiles[p.UserID] = p
	}
	return profiles, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Profile, int, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.FilterProfiles(ctx, filter, page)
}

// ListMissingEmbeddings returns up to `limit` profiles of `types` never embedded since their last change.
func (svc *Service) ListMissingEmbeddings(ctx context.Context, limit int, types ...Type) ([]Profile, error) {
	return svc.repo.ListMissingEmbeddings(ctx, types, limit)
}

func (svc *Service) MarkEmbeddingSynced(ctx context.Context, id string) error {
	now := svc.now().UTC()
	return svc.repo.SetEmbeddingSyncedAt(ctx, id, &now)
}

func (svc *Service) ListScholarProfiles(ctx context.Context) ([]Profile, error) {
	return svc.repo.ListWithScholarURL(ctx)
}

func (svc *Service) UpdateScholarMetrics(ctx context.Context, id string, citations, hIndex, i10Index int) error {
	now := svc.now().UTC()
	return svc.repo.SetScholarMetrics(ctx, id, ScholarMetrics{
		Citations: citations,
		HIndex:    hIndex,
		I10Index:  i10Index,
		SyncedAt:  &now,
	})
}

// NormalizePhones rewrites every stored phone number to E.164. With dryRun nothing is written.
func (svc *Service) NormalizePhones(ctx context.Context, dryRun bool) (PhoneReport, error) {
	report := PhoneReport{Failures: []PhoneFailure{}}
	profiles, err := svc.repo.ListWithPhone(ctx)
	if err != nil {
		return report, errors.Wrap(err, "listing profiles with phone")
	}

	for _, p := range profiles {
		phone, err := NormalizePhone(p.Phone)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, PhoneFailure{ProfileID: p.ID, Phone: p.Phone, Reason: err.Error()})
			continue
		}
		if phone == p.Phone {
			report.Unchanged++
			continue
		}
		if !dryRun {
			if err = svc.repo.SetPhone(ctx, p.ID, phone); err != nil {
				return report, errors.Wrap(err, "setting phone")
			}
		}
		report.Updated++
	}
	return report, nil
}

// CountNodeReferences lets the taxonomy refuse deleting nodes profiles point at.
func (svc *Service) CountNodeReferences(ctx context.Context, nodeID string, exec ...core.DBExecutor) (int, error) {
	return svc.repo.CountNodeReferences(ctx, nodeID, exec...)
}
