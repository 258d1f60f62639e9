package inmemdb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/nexscholar/nexscholar/core/search"
)

type vectorCollection struct {
	size   int
	points *table[search.Point]
}

// VectorStore keeps collections in memory and scores points by cosine similarity.
type VectorStore struct {
	collections map[string]*vectorCollection
	mutex       sync.RWMutex
}

var _ search.VectorStore = (*VectorStore)(nil)

func NewVectorStore() *VectorStore {
	return &VectorStore{collections: make(map[string]*vectorCollection)}
}

func (vs *VectorStore) collection(name string) (*vectorCollection, error) {
	vs.mutex.RLock()
	defer vs.mutex.RUnlock()

	coll, ok := vs.collections[name]
	if !ok {
		return nil, search.ErrCollectionNotFound
	}
	return coll, nil
}

func (vs *VectorStore) CreateCollection(_ context.Context, name string, vectorSize int) error {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	if _, ok := vs.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	vs.collections[name] = &vectorCollection{size: vectorSize, points: newTable[search.Point]()}
	return nil
}

func (vs *VectorStore) DeleteCollection(_ context.Context, name string) error {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	if _, ok := vs.collections[name]; !ok {
		return search.ErrCollectionNotFound
	}
	delete(vs.collections, name)
	return nil
}

func (vs *VectorStore) CollectionInfo(_ context.Context, name string) (search.CollectionInfo, error) {
	coll, err := vs.collection(name)
	if err != nil {
		return search.CollectionInfo{}, err
	}
	coll.points.mutex.RLock()
	defer coll.points.mutex.RUnlock()

	return search.CollectionInfo{Name: name, Status: "green", PointsCount: len(coll.points.rows), VectorSize: coll.size}, nil
}

func (vs *VectorStore) Upsert(_ context.Context, collection string, points []search.Point) error {
	coll, err := vs.collection(collection)
	if err != nil {
		return err
	}
	coll.points.mutex.Lock()
	defer coll.points.mutex.Unlock()

	for _, p := range points {
		if len(p.Vector) != coll.size {
			return fmt.Errorf("point %s: expected dim %d, got %d", p.ID, coll.size, len(p.Vector))
		}
	}
	for _, p := range points {
		coll.points.insert(p.ID, p)
	}
	return nil
}

func (vs *VectorStore) DeletePoint(_ context.Context, collection, id string) error {
	coll, err := vs.collection(collection)
	if err != nil {
		return err
	}
	coll.points.mutex.Lock()
	defer coll.points.mutex.Unlock()

	coll.points.remove(id)
	return nil
}

func (vs *VectorStore) Search(_ context.Context, collection string, vector []float32, q search.VectorQuery) ([]search.ScoredPoint, error) {
	coll, err := vs.collection(collection)
	if err != nil {
		return nil, err
	}
	coll.points.mutex.RLock()
	defer coll.points.mutex.RUnlock()

	matches := coll.points.filter(func(p search.Point) bool {
		for k, v := range q.Must {
			if p.Payload[k] != v {
				return false
			}
		}
		return true
	})

	scored := make([]search.ScoredPoint, 0, len(matches))
	for _, p := range matches {
		score := cosine(vector, p.Vector)
		if score < q.ScoreThreshold {
			continue
		}
		scored = append(scored, search.ScoredPoint{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return paginate(scored, q.Limit, 0), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
