package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/search"
)

// Client talks to the Qdrant REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *rest.Client
}

var _ search.VectorStore = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(conf.Search.QdrantURL, "/"),
		apiKey:  conf.Search.QdrantAPIKey,
		http:    &rest.Client{HTTPClient: &http.Client{Timeout: 30 * time.Second}},
	}
}

// APIError is a non-2xx answer of Qdrant.
type APIError struct {
	StatusCode int
	Message    string
}

func (err APIError) Error() string {
	return fmt.Sprintf("qdrant: %d %s", err.StatusCode, err.Message)
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status interface{}     `json:"status"`
}

func (c *Client) do(ctx context.Context, method rest.Method, path string, query map[string]string, body, result interface{}) error {
	req := rest.Request{
		Method:      method,
		BaseURL:     c.baseURL + path,
		Headers:     map[string]string{"Content-Type": "application/json"},
		QueryParams: query,
	}
	if c.apiKey != "" {
		req.Headers["api-key"] = c.apiKey
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		req.Body = b
	}

	resp, err := c.http.SendWithContext(ctx, req)
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	if resp.StatusCode == http.StatusNotFound {
		return search.ErrCollectionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if result == nil {
		return nil
	}
	var env envelope
	if err = json.Unmarshal([]byte(resp.Body), &env); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return errors.Wrap(json.Unmarshal(env.Result, result), "decoding result")
}

func errorMessage(body string) string {
	var env struct {
		Status struct {
			Error string `json:"error"`
		} `json:"status"`
	}
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Status.Error != "" {
		return env.Status.Error
	}
	return body
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (c *Client) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{"size": vectorSize, "distance": "Cosine"},
	}
	return c.do(ctx, rest.Put, collectionPath(name), nil, body, nil)
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	var deleted bool
	if err := c.do(ctx, rest.Delete, collectionPath(name), nil, nil, &deleted); err != nil {
		return err
	}
	if !deleted {
		return search.ErrCollectionNotFound
	}
	return nil
}

func (c *Client) CollectionInfo(ctx context.Context, name string) (search.CollectionInfo, error) {
	var res struct {
		Status      string `json:"status"`
		PointsCount int    `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := c.do(ctx, rest.Get, collectionPath(name), nil, nil, &res); err != nil {
		return search.CollectionInfo{}, err
	}
	return search.CollectionInfo{
		Name:        name,
		Status:      res.Status,
		PointsCount: res.PointsCount,
		VectorSize:  res.Config.Params.Vectors.Size,
	}, nil
}

type point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector,omitempty"`
	Score   float64                `json:"score,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

var wait = map[string]string{"wait": "true"}

func (c *Client) Upsert(ctx context.Context, collection string, points []search.Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []point `json:"points"`
	}{Points: make([]point, len(points))}
	for i, p := range points {
		body.Points[i] = point{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	return c.do(ctx, rest.Put, collectionPath(collection)+"/points", wait, body, nil)
}

func (c *Client) DeletePoint(ctx context.Context, collection, id string) error {
	body := map[string]interface{}{"points": []string{id}}
	return c.do(ctx, rest.Post, collectionPath(collection)+"/points/delete", wait, body, nil)
}

type condition struct {
	Key   string `json:"key"`
	Match struct {
		Value interface{} `json:"value"`
	} `json:"match"`
}

type searchRequest struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	ScoreThreshold float64   `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
	Filter         *struct {
		Must []condition `json:"must"`
	} `json:"filter,omitempty"`
}

func (c *Client) Search(ctx context.Context, collection string, vector []float32, q search.VectorQuery) ([]search.ScoredPoint, error) {
	req := searchRequest{Vector: vector, Limit: q.Limit, ScoreThreshold: q.ScoreThreshold, WithPayload: true}
	if len(q.Must) > 0 {
		req.Filter = &struct {
			Must []condition `json:"must"`
		}{}
		for k, v := range q.Must {
			cond := condition{Key: k}
			cond.Match.Value = v
			req.Filter.Must = append(req.Filter.Must, cond)
		}
	}

	var res []point
	if err := c.do(ctx, rest.Post, collectionPath(collection)+"/points/search", nil, req, &res); err != nil {
		return nil, err
	}
	scored := make([]search.ScoredPoint, len(res))
	for i, p := range res {
		scored[i] = search.ScoredPoint{ID: p.ID, Score: p.Score, Payload: p.Payload}
	}
	return scored, nil
}
