package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
)

const profileColumns = `id, user_id, type, full_name, phone, university_id, faculty_id, program_id, position,
	department, bio, research_area_ids, skill_ids, google_scholar_url, accepting_students, scholar_citations,
	scholar_h_index, scholar_i10_index, scholar_synced_at, embedding_synced_at, created_at, updated_at`

type profileRow struct {
	ID                string         `db:"id"`
	UserID            string         `db:"user_id"`
	Type              string         `db:"type"`
	FullName          string         `db:"full_name"`
	Phone             string         `db:"phone"`
	UniversityID      null.String    `db:"university_id"`
	FacultyID         null.String    `db:"faculty_id"`
	ProgramID         null.String    `db:"program_id"`
	Position          string         `db:"position"`
	Department        string         `db:"department"`
	Bio               string         `db:"bio"`
	ResearchAreaIDs   pq.StringArray `db:"research_area_ids"`
	SkillIDs          pq.StringArray `db:"skill_ids"`
	GoogleScholarURL  string         `db:"google_scholar_url"`
	AcceptingStudents bool           `db:"accepting_students"`
	ScholarCitations  int            `db:"scholar_citations"`
	ScholarHIndex     int            `db:"scholar_h_index"`
	ScholarI10Index   int            `db:"scholar_i10_index"`
	ScholarSyncedAt   null.Time      `db:"scholar_synced_at"`
	EmbeddingSyncedAt null.Time      `db:"embedding_synced_at"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func orEmpty(ids pq.StringArray) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (r profileRow) toProfile() profile.Profile {
	return profile.Profile{
		ID:                r.ID,
		UserID:            r.UserID,
		Type:              profile.Type(r.Type),
		FullName:          r.FullName,
		Phone:             r.Phone,
		UniversityID:      r.UniversityID.String,
		FacultyID:         r.FacultyID.String,
		ProgramID:         r.ProgramID.String,
		Position:          r.Position,
		Department:        r.Department,
		Bio:               r.Bio,
		ResearchAreaIDs:   orEmpty(r.ResearchAreaIDs),
		SkillIDs:          orEmpty(r.SkillIDs),
		GoogleScholarURL:  r.GoogleScholarURL,
		AcceptingStudents: r.AcceptingStudents,
		Scholar: profile.ScholarMetrics{
			Citations: r.ScholarCitations,
			HIndex:    r.ScholarHIndex,
			I10Index:  r.ScholarI10Index,
			SyncedAt:  timePtr(r.ScholarSyncedAt),
		},
		EmbeddingSyncedAt: timePtr(r.EmbeddingSyncedAt),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func fromProfile(p profile.Profile) profileRow {
	return profileRow{
		ID:                p.ID,
		UserID:            p.UserID,
		Type:              string(p.Type),
		FullName:          p.FullName,
		Phone:             p.Phone,
		UniversityID:      nullString(p.UniversityID),
		FacultyID:         nullString(p.FacultyID),
		ProgramID:         nullString(p.ProgramID),
		Position:          p.Position,
		Department:        p.Department,
		Bio:               p.Bio,
		ResearchAreaIDs:   orEmpty(p.ResearchAreaIDs),
		SkillIDs:          orEmpty(p.SkillIDs),
		GoogleScholarURL:  p.GoogleScholarURL,
		AcceptingStudents: p.AcceptingStudents,
		ScholarCitations:  p.Scholar.Citations,
		ScholarHIndex:     p.Scholar.HIndex,
		ScholarI10Index:   p.Scholar.I10Index,
		ScholarSyncedAt:   nullTime(p.Scholar.SyncedAt),
		EmbeddingSyncedAt: nullTime(p.EmbeddingSyncedAt),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

type profileRepository struct {
	base
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *sqlx.DB) profile.Repository {
	return &profileRepository{base{db: db}}
}

func (repo *profileRepository) CreateProfile(ctx context.Context, p profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	p.ID = newID()
	_, err := repo.conn(exec).NamedExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`) VALUES (
			:id, :user_id, :type, :full_name, :phone, :university_id, :faculty_id, :program_id, :position,
			:department, :bio, :research_area_ids, :skill_ids, :google_scholar_url, :accepting_students,
			:scholar_citations, :scholar_h_index, :scholar_i10_index, :scholar_synced_at, :embedding_synced_at,
			:created_at, :updated_at)`, fromProfile(p))
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return p, nil
}

func (repo *profileRepository) UpdateProfile(ctx context.Context, p profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	res, err := repo.conn(exec).NamedExecContext(ctx, `
		UPDATE profiles SET type = :type, full_name = :full_name, phone = :phone, university_id = :university_id,
			faculty_id = :faculty_id, program_id = :program_id, position = :position, department = :department,
			bio = :bio, research_area_ids = :research_area_ids, skill_ids = :skill_ids,
			google_scholar_url = :google_scholar_url, accepting_students = :accepting_students,
			embedding_synced_at = :embedding_synced_at, updated_at = :updated_at
		WHERE id = :id`, fromProfile(p))
	if err = mustAffect(res, err, profile.ErrNotFound); err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}

func (repo *profileRepository) getOne(ctx context.Context, exec []core.DBExecutor, cond string, arg string) (profile.Profile, error) {
	if _, err := uuidOrNotFound(arg, profile.ErrNotFound); err != nil {
		return profile.Profile{}, err
	}
	var row profileRow
	if err := repo.conn(exec).GetContext(ctx, &row, "SELECT "+profileColumns+" FROM profiles WHERE "+cond, arg); err != nil {
		return profile.Profile{}, notFound(err, profile.ErrNotFound)
	}
	return row.toProfile(), nil
}

func (repo *profileRepository) GetProfileByID(ctx context.Context, id string, exec ...core.DBExecutor) (profile.Profile, error) {
	return repo.getOne(ctx, exec, "id = $1", id)
}

func (repo *profileRepository) GetProfileByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (profile.Profile, error) {
	return repo.getOne(ctx, exec, "user_id = $1", userID)
}

func (repo *profileRepository) selectProfiles(ctx context.Context, exec []core.DBExecutor, query string, args ...interface{}) ([]profile.Profile, error) {
	var rows []profileRow
	if err := repo.conn(exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting profiles")
	}
	profiles := make([]profile.Profile, len(rows))
	for i, r := range rows {
		profiles[i] = r.toProfile()
	}
	return profiles, nil
}

func (repo *profileRepository) GetProfilesByUserID(ctx context.Context, userIDs []string, exec ...core.DBExecutor) ([]profile.Profile, error) {
	return repo.selectProfiles(ctx, exec, "SELECT "+profileColumns+" FROM profiles WHERE user_id = ANY($1::uuid[])", parseIDs(userIDs))
}

func (repo *profileRepository) FilterProfiles(ctx context.Context, filter profile.QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]profile.Profile, int, error) {
	var w where
	if filter.Type != "" {
		w.add("type = ?", string(filter.Type))
	}
	if filter.UniversityID != "" {
		w.addID("university_id", filter.UniversityID)
	}
	if filter.FacultyID != "" {
		w.addID("faculty_id", filter.FacultyID)
	}
	if filter.ResearchAreaID != "" {
		if id, ok := parseID(filter.ResearchAreaID); ok {
			w.add("research_area_ids @> ARRAY[?]::uuid[]", id)
		} else {
			w.add("FALSE")
		}
	}
	if filter.AcceptingStudents != nil {
		w.add("accepting_students = ?", *filter.AcceptingStudents)
	}
	if filter.Search != "" {
		w.add("(full_name ILIKE ? OR department ILIKE ? OR position ILIKE ?)", like(filter.Search), like(filter.Search), like(filter.Search))
	}

	var total int
	if err := repo.conn(exec).GetContext(ctx, &total, "SELECT count(*) FROM profiles"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting profiles")
	}
	query := "SELECT " + profileColumns + " FROM profiles" + w.String() +
		" ORDER BY lower(full_name) LIMIT " + w.arg(page.Limit()) + " OFFSET " + w.arg(page.Offset())
	profiles, err := repo.selectProfiles(ctx, exec, query, w.args...)
	return profiles, total, err
}

func (repo *profileRepository) ListMissingEmbeddings(ctx context.Context, types []profile.Type, limit int, exec ...core.DBExecutor) ([]profile.Profile, error) {
	var w where
	w.add("embedding_synced_at IS NULL")
	if len(types) > 0 {
		ts := make([]string, len(types))
		for i, t := range types {
			ts[i] = string(t)
		}
		w.add("type = ANY(?)", pq.Array(ts))
	}
	query := "SELECT " + profileColumns + " FROM profiles" + w.String() + " ORDER BY created_at"
	if limit > 0 {
		query += " LIMIT " + w.arg(limit)
	}
	return repo.selectProfiles(ctx, exec, query, w.args...)
}

func (repo *profileRepository) ListWithScholarURL(ctx context.Context, exec ...core.DBExecutor) ([]profile.Profile, error) {
	return repo.selectProfiles(ctx, exec, "SELECT "+profileColumns+" FROM profiles WHERE type = $1 AND google_scholar_url <> '' ORDER BY created_at",
		string(profile.TypeAcademician))
}

func (repo *profileRepository) ListWithPhone(ctx context.Context, exec ...core.DBExecutor) ([]profile.Profile, error) {
	return repo.selectProfiles(ctx, exec, "SELECT "+profileColumns+" FROM profiles WHERE phone <> '' ORDER BY created_at")
}

func (repo *profileRepository) SetEmbeddingSyncedAt(ctx context.Context, id string, syncedAt *time.Time, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "UPDATE profiles SET embedding_synced_at = $1 WHERE id = $2", nullTime(syncedAt), id)
	return mustAffect(res, err, profile.ErrNotFound)
}

func (repo *profileRepository) SetScholarMetrics(ctx context.Context, id string, m profile.ScholarMetrics, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, `
		UPDATE profiles SET scholar_citations = $1, scholar_h_index = $2, scholar_i10_index = $3, scholar_synced_at = $4
		WHERE id = $5`,
		m.Citations, m.HIndex, m.I10Index, nullTime(m.SyncedAt), id)
	return mustAffect(res, err, profile.ErrNotFound)
}

func (repo *profileRepository) SetPhone(ctx context.Context, id, phone string, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "UPDATE profiles SET phone = $1 WHERE id = $2", phone, id)
	return mustAffect(res, err, profile.ErrNotFound)
}

func (repo *profileRepository) CountNodeReferences(ctx context.Context, nodeID string, exec ...core.DBExecutor) (int, error) {
	nodeID, ok := parseID(nodeID)
	if !ok {
		return 0, nil
	}
	var count int
	err := repo.conn(exec).GetContext(ctx, &count, `
		SELECT count(*) FROM profiles
		WHERE university_id = $1 OR faculty_id = $1 OR program_id = $1
			OR research_area_ids @> ARRAY[$1]::uuid[] OR skill_ids @> ARRAY[$1]::uuid[]`, nodeID)
	return count, errors.Wrap(err, "counting references")
}
