package gcal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/calendar"
)

type fakeGoogle struct {
	refreshes int
	events    map[string]map[string]interface{}
}

func (f *fakeGoogle) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			assert.Equal(t, "the-code", r.Form.Get("code"))
			_, _ = io.WriteString(w, `{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`)
		case "refresh_token":
			f.refreshes++
			assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))
			_, _ = io.WriteString(w, `{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/api/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		id := "evt-" + r.Header.Get("Authorization")[len("Bearer "):]
		f.events[id] = body
		_, _ = io.WriteString(w, `{"id":"`+id+`","status":"confirmed"}`)
	})
	mux.HandleFunc("/api/calendars/primary/events/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		id := r.URL.Path[len("/api/calendars/primary/events/"):]
		if _, ok := f.events[id]; !ok {
			w.WriteHeader(http.StatusGone)
			return
		}
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestGoogle(t *testing.T) (*Google, *fakeGoogle) {
	t.Helper()
	fake := &fakeGoogle{events: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	conf := core.NewTestConfig()
	conf.Google = core.GoogleConfig{ClientID: "client", ClientSecret: "secret", RedirectURL: "http://localhost/callback"}
	return NewGoogle(conf).WithEndpoints(srv.URL+"/oauth", srv.URL+"/api"), fake
}

func TestGoogle_AuthCodeURL(t *testing.T) {
	g, _ := newTestGoogle(t)

	u, err := url.Parse(g.AuthCodeURL("some-state"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/oauth/auth", u.Path)
	assert.Equal(t, "some-state", q.Get("state"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, eventsScope, q.Get("scope"))
}

func TestGoogle_Events(t *testing.T) {
	ctx := context.Background()
	g, fake := newTestGoogle(t)

	tok, err := g.Exchange(ctx, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.True(t, tok.Expiry.After(time.Now()))

	start := time.Date(2024, 7, 1, 9, 0, 0, 0, time.FixedZone("MYT", 8*3600))
	id, renewed, err := g.CreateEvent(ctx, tok, calendar.Event{
		Summary: "Chapter 2 review", Location: "Room 3", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-at-1", id)
	assert.Equal(t, "at-1", renewed.AccessToken)
	assert.Zero(t, fake.refreshes)
	assert.Equal(t, "Chapter 2 review", fake.events[id]["summary"])
	assert.Equal(t, map[string]interface{}{"dateTime": "2024-07-01T01:00:00Z", "timeZone": "UTC"}, fake.events[id]["start"])

	// an expired token is renewed before the call
	tok.Expiry = time.Now().Add(-time.Hour)
	id2, renewed, err := g.CreateEvent(ctx, tok, calendar.Event{Summary: "Progress", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.refreshes)
	assert.Equal(t, "at-2", renewed.AccessToken)
	assert.Equal(t, "evt-at-2", id2)

	_, err = g.DeleteEvent(ctx, renewed, id)
	require.NoError(t, err)
	assert.NotContains(t, fake.events, id)
	_, err = g.DeleteEvent(ctx, renewed, id)
	assert.NoError(t, err, "deleting twice")
}
