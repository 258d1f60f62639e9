package profile

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	"github.com/nexscholar/nexscholar/core/user"
)

type Type string

// Types
const (
	TypeAcademician   Type = "academician"
	TypePostgraduate  Type = "postgraduate"
	TypeUndergraduate Type = "undergraduate"
)

func (t Type) IsValid() bool {
	return t == TypeAcademician || t == TypePostgraduate || t == TypeUndergraduate
}

// TypeForUser derives the profile type from the roles of `usr`.
func TypeForUser(usr user.User) (Type, bool) {
	switch {
	case usr.IsAcademician():
		return TypeAcademician, true
	case usr.IsPostgraduate():
		return TypePostgraduate, true
	case usr.IsUndergraduate():
		return TypeUndergraduate, true
	}
	return "", false
}

// ScholarMetrics are the all-time citation indices of a Google Scholar profile.
type ScholarMetrics struct {
	Citations int        `json:"citations"`
	HIndex    int        `json:"h_index"`
	I10Index  int        `json:"i10_index"`
	SyncedAt  *time.Time `json:"synced_at"`
}

type Profile struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Type              Type           `json:"type"`
	FullName          string         `json:"full_name"`
	Phone             string         `json:"phone"`
	UniversityID      string         `json:"university_id,omitempty"`
	FacultyID         string         `json:"faculty_id,omitempty"`
	ProgramID         string         `json:"program_id,omitempty"`
	Position          string         `json:"position"`
	Department        string         `json:"department"`
	Bio               string         `json:"bio"`
	ResearchAreaIDs   []string       `json:"research_area_ids"`
	SkillIDs          []string       `json:"skill_ids"`
	GoogleScholarURL  string         `json:"google_scholar_url"`
	AcceptingStudents bool           `json:"accepting_students"`
	Scholar           ScholarMetrics `json:"scholar"`
	EmbeddingSyncedAt *time.Time     `json:"embedding_synced_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// References lists every taxonomy node the profile points at.
func (p Profile) References() []string {
	refs := make([]string, 0, 3+len(p.ResearchAreaIDs)+len(p.SkillIDs))
	for _, id := range []string{p.UniversityID, p.FacultyID, p.ProgramID} {
		if id != "" {
			refs = append(refs, id)
		}
	}
	refs = append(refs, p.ResearchAreaIDs...)
	return append(refs, p.SkillIDs...)
}

// SaveProfile holds the fields a user may set on their own profile.
type SaveProfile struct {
	FullName          string   `json:"full_name" validate:"required,notblank,max=255"`
	Phone             string   `json:"phone" validate:"max=32"`
	UniversityID      string   `json:"university_id" validate:"omitempty,uuid"`
	FacultyID         string   `json:"faculty_id" validate:"omitempty,uuid"`
	ProgramID         string   `json:"program_id" validate:"omitempty,uuid"`
	Position          string   `json:"position" validate:"max=255"`
	Department        string   `json:"department" validate:"max=255"`
	Bio               string   `json:"bio" validate:"max=5000"`
	ResearchAreaIDs   []string `json:"research_area_ids" validate:"max=20,dive,uuid"`
	SkillIDs          []string `json:"skill_ids" validate:"max=50,dive,uuid"`
	GoogleScholarURL  string   `json:"google_scholar_url" validate:"omitempty,url,max=500"`
	AcceptingStudents bool     `json:"accepting_students"`
}

func (sp *SaveProfile) Validate(ctx context.Context, validate *validator.Validate, taxSvc *taxonomy.Service) error {
	sp.FullName = core.CleanString(sp.FullName)
	sp.Position = core.CleanString(sp.Position)
	sp.Department = core.CleanString(sp.Department)
	sp.Bio = core.CleanString(sp.Bio)
	sp.GoogleScholarURL = core.CleanString(sp.GoogleScholarURL)
	sp.ResearchAreaIDs = dedupe(sp.ResearchAreaIDs)
	sp.SkillIDs = dedupe(sp.SkillIDs)

	if err := validate.Struct(sp); err != nil {
		return err
	}

	phone, err := NormalizePhone(sp.Phone)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "phone", Error: err.Error()})
	}
	sp.Phone = phone

	if sp.FacultyID != "" && sp.UniversityID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "university_id", Error: "this field is required"})
	}
	checks := []struct {
		field string
		id    string
		kind  taxonomy.Kind
	}{
		{"university_id", sp.UniversityID, taxonomy.KindUniversity},
		{"faculty_id", sp.FacultyID, taxonomy.KindFaculty},
		{"program_id", sp.ProgramID, taxonomy.KindProgram},
	}
	for _, c := range checks {
		if c.id == "" {
			continue
		}
		if err = taxSvc.CheckKind(ctx, c.field, c.id, c.kind); err != nil {
			return err
		}
	}
	if sp.FacultyID != "" {
		faculty, err := taxSvc.GetByID(ctx, sp.FacultyID)
		if err != nil {
			return err
		}
		if faculty.ParentID != sp.UniversityID {
			return core.NewValidationError(nil, core.FieldError{Field: "faculty_id", Error: "this faculty belongs to another university"})
		}
	}
	if err = taxSvc.CheckKinds(ctx, "research_area_ids", sp.ResearchAreaIDs, taxonomy.KindResearchArea); err != nil {
		return err
	}
	return taxSvc.CheckKinds(ctx, "skill_ids", sp.SkillIDs, taxonomy.KindSkill)
}

type QueryFilter struct {
	Type              Type   `query:"type"`
	UniversityID      string `query:"university_id"`
	FacultyID         string `query:"faculty_id"`
	ResearchAreaID    string `query:"research_area_id"`
	AcceptingStudents *bool  `query:"accepting_students"`
	Search            string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// PhoneFailure is a phone number normalization could not convert.
type PhoneFailure struct {
	ProfileID string `json:"profile_id"`
	Phone     string `json:"phone"`
	Reason    string `json:"reason"`
}

type PhoneReport struct {
	Updated   int            `json:"updated"`
	Unchanged int            `json:"unchanged"`
	Failed    int            `json:"failed"`
	Failures  []PhoneFailure `json:"failures"`
}

func dedupe(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = core.CleanString(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
