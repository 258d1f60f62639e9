package search

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/taxonomy"
)

var (
	// errors
	ErrCollectionNotFound = core.NewNotFoundError("collection")
	ErrUnknownCollection  = errors.New("unknown collection")
)

type (
	// Embedder turns texts into vectors, one per text, in order.
	Embedder interface {
		Embed(ctx context.Context, texts []string) ([][]float32, error)
	}

	VectorStore interface {
		CreateCollection(ctx context.Context, name string, vectorSize int) error
		// DeleteCollection returns ErrCollectionNotFound when there is nothing to delete.
		DeleteCollection(ctx context.Context, name string) error
		CollectionInfo(ctx context.Context, name string) (CollectionInfo, error)
		Upsert(ctx context.Context, collection string, points []Point) error
		DeletePoint(ctx context.Context, collection, id string) error
		Search(ctx context.Context, collection string, vector []float32, q VectorQuery) ([]ScoredPoint, error)
	}

	Service struct {
		embedder Embedder
		store    VectorStore
		profiles *profile.Service
		taxSvc   *taxonomy.Service
		conf     core.SearchConfig
		logger   core.Logger
		sleep    func(ctx context.Context, d time.Duration) error
	}
)

func NewService(
	embedder Embedder,
	store VectorStore,
	profiles *profile.Service,
	taxSvc *taxonomy.Service,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
		profiles: profiles,
		taxSvc:   taxSvc,
		conf:     conf.Search,
		logger:   logger,
		sleep:    sleep,
	}
}

// WithSleep replaces the pause taken between chunks.
func (svc *Service) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Service {
	svc.sleep = fn
	return svc
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func checkCollection(name string) error {
	if !IsCollection(name) {
		return core.NewValidationError(errors.Wrap(ErrUnknownCollection, name))
	}
	return nil
}

func (svc *Service) CreateCollection(ctx context.Context, name string) error {
	if err := checkCollection(name); err != nil {
		return err
	}
	return svc.store.CreateCollection(ctx, name, svc.conf.VectorSize)
}

func (svc *Service) DeleteCollection(ctx context.Context, name string) error {
	if err := checkCollection(name); err != nil {
		return err
	}
	return svc.store.DeleteCollection(ctx, name)
}

func (svc *Service) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	if err := checkCollection(name); err != nil {
		return CollectionInfo{}, err
	}
	return svc.store.CollectionInfo(ctx, name)
}

// RecreateCollection drops the collection (if any) and creates it empty. Points must be
// regenerated afterwards.
func (svc *Service) RecreateCollection(ctx context.Context, name string) error {
	if err := svc.DeleteCollection(ctx, name); err != nil && !core.IsNotFound(err) {
		return err
	}
	return svc.CreateCollection(ctx, name)
}

// EnsureCollections creates the collections that do not exist yet.
func (svc *Service) EnsureCollections(ctx context.Context) error {
	for _, name := range Collections {
		_, err := svc.store.CollectionInfo(ctx, name)
		if err == nil {
			continue
		}
		if !core.IsNotFound(err) {
			return errors.Wrapf(err, "getting collection %s", name)
		}
		if err = svc.store.CreateCollection(ctx, name, svc.conf.VectorSize); err != nil {
			return errors.Wrapf(err, "creating collection %s", name)
		}
		svc.logger.Info(fmt.Sprintf("search: created collection %s", name))
	}
	return nil
}

func (svc *Service) profileNames(ctx context.Context, profiles []profile.Profile) (map[string]string, error) {
	var ids []string
	for _, p := range profiles {
		ids = append(ids, p.References()...)
	}
	return svc.taxSvc.Names(ctx, ids...)
}

func profilePayload(p profile.Profile) map[string]interface{} {
	return map[string]interface{}{
		"profile_id":         p.ID,
		"user_id":            p.UserID,
		"type":               string(p.Type),
		"full_name":          p.FullName,
		"university_id":      p.UniversityID,
		"faculty_id":         p.FacultyID,
		"accepting_students": p.AcceptingStudents,
	}
}

// indexProfiles embeds the profiles in one call, stores them and marks them synced.
func (svc *Service) indexProfiles(ctx context.Context, profiles []profile.Profile) error {
	names, err := svc.profileNames(ctx, profiles)
	if err != nil {
		return errors.Wrap(err, "resolving taxonomy names")
	}
	docs := make([]string, len(profiles))
	for i, p := range profiles {
		docs[i] = ProfileDocument(p, names)
	}
	vectors, err := svc.embedder.Embed(ctx, docs)
	if err != nil {
		return errors.Wrap(err, "embedding profiles")
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding profiles: got %d vectors for %d documents", len(vectors), len(docs))
	}

	byCollection := make(map[string][]Point)
	for i, p := range profiles {
		coll := CollectionFor(p.Type)
		byCollection[coll] = append(byCollection[coll], Point{ID: p.ID, Vector: vectors[i], Payload: profilePayload(p)})
	}
	for coll, points := range byCollection {
		if err = svc.store.Upsert(ctx, coll, points); err != nil {
			return errors.Wrapf(err, "upserting into %s", coll)
		}
	}
	for _, p := range profiles {
		if err = svc.profiles.MarkEmbeddingSynced(ctx, p.ID); err != nil {
			return errors.Wrap(err, "marking profile synced")
		}
	}
	return nil
}

// SyncProfile (re)indexes one profile, whether or not it changed.
func (svc *Service) SyncProfile(ctx context.Context, profileID string) error {
	p, err := svc.profiles.GetByID(ctx, profileID)
	if err != nil {
		return err
	}
	return svc.indexProfiles(ctx, []profile.Profile{p})
}

// GenerateMissing indexes every profile of `types` (all types when empty) changed since its
// last embedding, ChunkSize at a time with ChunkDelay between chunks. A failed chunk is
// logged and counted; the run goes on with the next one.
func (svc *Service) GenerateMissing(ctx context.Context, types ...profile.Type) (Report, error) {
	var report Report
	profiles, err := svc.profiles.ListMissingEmbeddings(ctx, 0, types...)
	if err != nil {
		return report, errors.Wrap(err, "listing profiles")
	}

	size := svc.conf.ChunkSize
	if size <= 0 {
		size = len(profiles)
	}
	for start := 0; start < len(profiles); start += size {
		if start > 0 {
			if err = svc.sleep(ctx, svc.conf.ChunkDelay); err != nil {
				return report, err
			}
		}
		chunk := profiles[start:min(start+size, len(profiles))]
		report.Processed += len(chunk)
		if err = svc.indexProfiles(ctx, chunk); err != nil {
			report.Failed += len(chunk)
			svc.logger.Error(fmt.Sprintf("search.GenerateMissing: chunk at %d: %v", start, err), err)
			continue
		}
		report.Succeeded += len(chunk)
	}
	return report, nil
}

// SyncPrograms indexes every postgraduate program, ChunkSize at a time.
func (svc *Service) SyncPrograms(ctx context.Context) (Report, error) {
	var report Report
	programs, err := svc.taxSvc.Query(ctx, taxonomy.QueryFilter{Kinds: []taxonomy.Kind{taxonomy.KindProgram}})
	if err != nil {
		return report, errors.Wrap(err, "listing programs")
	}

	size := svc.conf.ChunkSize
	if size <= 0 {
		size = len(programs)
	}
	for start := 0; start < len(programs); start += size {
		if start > 0 {
			if err = svc.sleep(ctx, svc.conf.ChunkDelay); err != nil {
				return report, err
			}
		}
		chunk := programs[start:min(start+size, len(programs))]
		res := Report{Processed: len(chunk)}
		if err = svc.indexPrograms(ctx, chunk); err != nil {
			res.Failed = len(chunk)
			svc.logger.Error(fmt.Sprintf("search.SyncPrograms: chunk at %d: %v", start, err), err)
		} else {
			res.Succeeded = len(chunk)
		}
		report.add(res)
	}
	return report, nil
}

func (svc *Service) indexPrograms(ctx context.Context, programs []taxonomy.Node) error {
	facultyIDs := make([]string, 0, len(programs))
	for _, p := range programs {
		facultyIDs = append(facultyIDs, p.ParentID)
	}
	faculties, err := svc.taxSvc.GetManyByID(ctx, facultyIDs...)
	if err != nil {
		return errors.Wrap(err, "getting faculties")
	}
	facultyByID := make(map[string]taxonomy.Node, len(faculties))
	universityIDs := make([]string, 0, len(faculties))
	for _, f := range faculties {
		facultyByID[f.ID] = f
		universityIDs = append(universityIDs, f.ParentID)
	}
	universities, err := svc.taxSvc.Names(ctx, universityIDs...)
	if err != nil {
		return errors.Wrap(err, "getting universities")
	}

	docs := make([]string, len(programs))
	for i, p := range programs {
		faculty := facultyByID[p.ParentID]
		docs[i] = ProgramDocument(p, faculty.Name, universities[faculty.ParentID])
	}
	vectors, err := svc.embedder.Embed(ctx, docs)
	if err != nil {
		return errors.Wrap(err, "embedding programs")
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding programs: got %d vectors for %d documents", len(vectors), len(docs))
	}

	points := make([]Point, len(programs))
	for i, p := range programs {
		points[i] = Point{ID: p.ID, Vector: vectors[i], Payload: map[string]interface{}{
			"program_id":    p.ID,
			"name":          p.Name,
			"faculty_id":    p.ParentID,
			"university_id": facultyByID[p.ParentID].ParentID,
		}}
	}
	return errors.Wrap(svc.store.Upsert(ctx, CollectionPrograms, points), "upserting programs")
}

func (svc *Service) embedQuery(ctx context.Context, q string) ([]float32, error) {
	vectors, err := svc.embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, errors.Wrap(err, "embedding query")
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors", len(vectors))
	}
	return vectors[0], nil
}

// searchProfiles runs the vector search and replaces payloads with the stored profiles.
// Points whose profile disappeared are skipped.
func (svc *Service) searchProfiles(ctx context.Context, coll, q string, limit int, must map[string]interface{}) ([]ProfileHit, error) {
	vector, err := svc.embedQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	points, err := svc.store.Search(ctx, coll, vector, VectorQuery{
		Limit:          limit,
		ScoreThreshold: svc.conf.ScoreThreshold,
		Must:           must,
	})
	if err != nil {
		return nil, errors.Wrap(err, "searching vectors")
	}

	hits := make([]ProfileHit, 0, len(points))
	for _, pt := range points {
		p, err := svc.profiles.GetByID(ctx, pt.ID)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		hits = append(hits, ProfileHit{Profile: p, Score: pt.Score})
	}
	return hits, nil
}

// SearchSupervisors finds academicians whose profile is semantically close to the query.
func (svc *Service) SearchSupervisors(ctx context.Context, sq SupervisorQuery) ([]ProfileHit, error) {
	q, limit, err := cleanQuery(sq.Query, sq.Limit)
	if err != nil {
		return nil, err
	}
	must := map[string]interface{}{"type": string(profile.TypeAcademician)}
	if id := core.CleanString(sq.UniversityID); id != "" {
		must["university_id"] = id
	}
	if sq.AcceptingOnly {
		must["accepting_students"] = true
	}
	return svc.searchProfiles(ctx, CollectionAcademicians, q, limit, must)
}

// SearchStudents finds postgraduates and undergraduates, e.g. for academicians looking for
// research assistants.
func (svc *Service) SearchStudents(ctx context.Context, sq StudentQuery) ([]ProfileHit, error) {
	q, limit, err := cleanQuery(sq.Query, sq.Limit)
	if err != nil {
		return nil, err
	}
	must := map[string]interface{}{}
	switch sq.Type {
	case "":
	case profile.TypePostgraduate, profile.TypeUndergraduate:
		must["type"] = string(sq.Type)
	default:
		return nil, core.NewValidationError(nil, core.FieldError{Field: "type", Error: "must be postgraduate or undergraduate"})
	}
	if id := core.CleanString(sq.UniversityID); id != "" {
		must["university_id"] = id
	}
	return svc.searchProfiles(ctx, CollectionStudents, q, limit, must)
}

func (svc *Service) SearchPrograms(ctx context.Context, pq ProgramQuery) ([]ProgramHit, error) {
	q, limit, err := cleanQuery(pq.Query, pq.Limit)
	if err != nil {
		return nil, err
	}
	vector, err := svc.embedQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	must := map[string]interface{}{}
	if id := core.CleanString(pq.FacultyID); id != "" {
		must["faculty_id"] = id
	}
	points, err := svc.store.Search(ctx, CollectionPrograms, vector, VectorQuery{
		Limit:          limit,
		ScoreThreshold: svc.conf.ScoreThreshold,
		Must:           must,
	})
	if err != nil {
		return nil, errors.Wrap(err, "searching vectors")
	}

	ids := make([]string, len(points))
	for i, pt := range points {
		ids[i] = pt.ID
	}
	nodes, err := svc.taxSvc.GetManyByID(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]taxonomy.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	hits := make([]ProgramHit, 0, len(points))
	for _, pt := range points {
		if n, ok := byID[pt.ID]; ok {
			hits = append(hits, ProgramHit{Program: n, Score: pt.Score})
		}
	}
	return hits, nil
}
