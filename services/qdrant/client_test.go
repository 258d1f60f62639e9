package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/search"
)

// fakeQdrant answers the few endpoints the client uses, the way Qdrant does.
type fakeQdrant struct {
	collections map[string]map[string]point
	lastSearch  map[string]interface{}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("api-key") != "secret" {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":{"error":"Invalid api-key"}}`))
		return
	}
	reply := func(result interface{}) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": result, "status": "ok", "time": 0.001})
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/collections/"), "/")
	name := parts[0]
	coll, exists := f.collections[name]

	switch {
	case len(parts) == 1 && r.Method == http.MethodPut:
		if exists {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"status":{"error":"Collection ` + name + ` already exists!"}}`))
			return
		}
		f.collections[name] = map[string]point{}
		reply(true)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		delete(f.collections, name)
		reply(exists)
	case !exists:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection ` + name + ` doesn't exist!"}}`))
	case len(parts) == 1 && r.Method == http.MethodGet:
		reply(map[string]interface{}{
			"status":       "green",
			"points_count": len(coll),
			"config":       map[string]interface{}{"params": map[string]interface{}{"vectors": map[string]interface{}{"size": 8, "distance": "Cosine"}}},
		})
	case parts[len(parts)-1] == "points" && r.Method == http.MethodPut:
		var body struct {
			Points []point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			coll[p.ID] = p
		}
		reply(map[string]interface{}{"status": "completed"})
	case parts[len(parts)-1] == "delete":
		var body struct {
			Points []string `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.Points {
			delete(coll, id)
		}
		reply(map[string]interface{}{"status": "completed"})
	case parts[len(parts)-1] == "search":
		f.lastSearch = map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		var res []map[string]interface{}
		for _, p := range coll {
			res = append(res, map[string]interface{}{"id": p.ID, "version": 1, "score": 0.87, "payload": p.Payload})
		}
		reply(res)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{collections: map[string]map[string]point{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	conf := core.NewTestConfig()
	conf.Search.QdrantURL = srv.URL + "/"
	conf.Search.QdrantAPIKey = "secret"
	return NewClient(conf), fake
}

func TestClient_Collections(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	_, err := c.CollectionInfo(ctx, search.CollectionAcademicians)
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, c.CreateCollection(ctx, search.CollectionAcademicians, 8))
	err = c.CreateCollection(ctx, search.CollectionAcademicians, 8)
	require.Error(t, err)
	apiErr, ok := err.(APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "already exists")

	info, err := c.CollectionInfo(ctx, search.CollectionAcademicians)
	require.NoError(t, err)
	assert.Equal(t, search.CollectionInfo{Name: search.CollectionAcademicians, Status: "green", VectorSize: 8}, info)

	require.NoError(t, c.DeleteCollection(ctx, search.CollectionAcademicians))
	assert.True(t, core.IsNotFound(c.DeleteCollection(ctx, search.CollectionAcademicians)))
}

func TestClient_Points(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)
	require.NoError(t, c.CreateCollection(ctx, search.CollectionStudents, 8))

	id := "1b4e28ba-2fa1-11d2-883f-0016d3cca427"
	require.NoError(t, c.Upsert(ctx, search.CollectionStudents, []search.Point{
		{ID: id, Vector: []float32{1, 0, 0, 0, 0, 0, 0, 0}, Payload: map[string]interface{}{"type": "postgraduate"}},
	}))
	require.NoError(t, c.Upsert(ctx, search.CollectionStudents, nil))

	hits, err := c.Search(ctx, search.CollectionStudents, []float32{1, 0, 0, 0, 0, 0, 0, 0}, search.VectorQuery{
		Limit:          5,
		ScoreThreshold: 0.3,
		Must:           map[string]interface{}{"type": "postgraduate"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
	assert.Equal(t, 0.87, hits[0].Score)
	assert.Equal(t, "postgraduate", hits[0].Payload["type"])

	assert.EqualValues(t, 5, fake.lastSearch["limit"])
	assert.Equal(t, 0.3, fake.lastSearch["score_threshold"])
	assert.Equal(t, true, fake.lastSearch["with_payload"])
	assert.Equal(t, map[string]interface{}{
		"must": []interface{}{map[string]interface{}{"key": "type", "match": map[string]interface{}{"value": "postgraduate"}}},
	}, fake.lastSearch["filter"])

	require.NoError(t, c.DeletePoint(ctx, search.CollectionStudents, id))
	assert.Empty(t, fake.collections[search.CollectionStudents])

	_, err = c.Search(ctx, "missing", []float32{1}, search.VectorQuery{Limit: 1})
	assert.True(t, core.IsNotFound(err))
}

func TestClient_APIKey(t *testing.T) {
	c, _ := newTestClient(t)
	c.apiKey = "wrong"
	err := c.CreateCollection(context.Background(), search.CollectionPrograms, 8)
	require.Error(t, err)
	assert.Equal(t, "qdrant: 403 Invalid api-key", err.Error())
}
