package search

import (
	"strings"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/taxonomy"
)

// Collections
const (
	CollectionAcademicians = "nexscholar_academicians"
	CollectionStudents     = "nexscholar_students"
	CollectionPrograms     = "nexscholar_programs"
)

var Collections = []string{CollectionAcademicians, CollectionStudents, CollectionPrograms}

func IsCollection(name string) bool {
	return core.StringInSlice(name, Collections)
}

// CollectionFor returns the collection profiles of type `t` are indexed in.
func CollectionFor(t profile.Type) string {
	if t == profile.TypeAcademician {
		return CollectionAcademicians
	}
	return CollectionStudents
}

// Point is a vector with its payload, identified by the profile or program ID.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// VectorQuery restricts a search to points whose payload matches every entry of Must.
type VectorQuery struct {
	Limit          int
	ScoreThreshold float64
	Must           map[string]interface{}
}

type CollectionInfo struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	PointsCount int    `json:"points_count"`
	VectorSize  int    `json:"vector_size"`
}

// Report tallies a batch run.
type Report struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (r *Report) add(other Report) {
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
}

type SupervisorQuery struct {
	Query        string `query:"q"`
	UniversityID string `query:"university_id"`
	// AcceptingOnly keeps academicians currently accepting students
	AcceptingOnly bool `query:"accepting"`
	Limit         int  `query:"limit"`
}

type StudentQuery struct {
	Query        string       `query:"q"`
	Type         profile.Type `query:"type"`
	UniversityID string       `query:"university_id"`
	Limit        int          `query:"limit"`
}

type ProgramQuery struct {
	Query     string `query:"q"`
	FacultyID string `query:"faculty_id"`
	Limit     int    `query:"limit"`
}

const (
	defaultLimit = 10
	maxLimit     = 50
)

func cleanQuery(q string, limit int) (string, int, error) {
	q = core.CleanString(q)
	if q == "" {
		return "", 0, core.NewValidationError(nil, core.FieldError{Field: "q", Error: "this field is required"})
	}
	if limit <= 0 {
		limit = defaultLimit
	} else if limit > maxLimit {
		limit = maxLimit
	}
	return q, limit, nil
}

type ProfileHit struct {
	Profile profile.Profile `json:"profile"`
	Score   float64         `json:"score"`
}

type ProgramHit struct {
	Program taxonomy.Node `json:"program"`
	Score   float64       `json:"score"`
}

// ProfileDocument is the text embedded for a profile; `names` resolves taxonomy IDs.
func ProfileDocument(p profile.Profile, names map[string]string) string {
	var b strings.Builder
	line := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\n")
		}
	}
	nameList := func(ids []string) string {
		list := make([]string, 0, len(ids))
		for _, id := range ids {
			if name, ok := names[id]; ok {
				list = append(list, name)
			}
		}
		return strings.Join(list, ", ")
	}

	line("Name", p.FullName)
	line("Position", p.Position)
	line("Department", p.Department)
	line("University", names[p.UniversityID])
	line("Faculty", names[p.FacultyID])
	line("Research areas", nameList(p.ResearchAreaIDs))
	line("Skills", nameList(p.SkillIDs))
	line("Bio", p.Bio)
	return strings.TrimSpace(b.String())
}

func ProgramDocument(program taxonomy.Node, faculty, university string) string {
	parts := []string{"Program: " + program.Name}
	if faculty != "" {
		parts = append(parts, "Faculty: "+faculty)
	}
	if university != "" {
		parts = append(parts, "University: "+university)
	}
	if d := strings.TrimSpace(program.Description); d != "" {
		parts = append(parts, "Description: "+d)
	}
	return strings.Join(parts, "\n")
}
