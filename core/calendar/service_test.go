package calendar_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/calendar"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/user"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
	testutil "github.com/nexscholar/nexscholar/tests"
)

type fakeProvider struct {
	renewTo string
	events  map[string]calendar.Event
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (calendar.Token, error) {
	return calendar.Token{AccessToken: "at-" + code, RefreshToken: "rt", TokenType: "Bearer"}, nil
}

func (p *fakeProvider) renew(tok calendar.Token) calendar.Token {
	if p.renewTo != "" {
		tok.AccessToken = p.renewTo
		tok.RefreshToken = ""
	}
	return tok
}

func (p *fakeProvider) CreateEvent(_ context.Context, tok calendar.Token, ev calendar.Event) (string, calendar.Token, error) {
	id := "evt-" + ev.Summary
	p.events[id] = ev
	return id, p.renew(tok), nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, tok calendar.Token, eventID string) (calendar.Token, error) {
	delete(p.events, eventID)
	return p.renew(tok), nil
}

func stateOf(t *testing.T, connectURL string) string {
	t.Helper()
	u, err := url.Parse(connectURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestService_Connect(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewCalendarRepository(inmemdb.Open())
	clock := testutil.NewClock(time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC))
	provider := &fakeProvider{events: map[string]calendar.Event{}}
	svc := calendar.NewService(repo, provider, core.NewTestConfig(), logsvc.NewDiscardLogger()).WithClock(clock.Now)
	usr := user.User{ID: "0d3c5b8e-7a0b-4bb2-9bfc-3a1d0b2a6c10", Name: "Dr. Aisyah"}

	status, err := svc.Status(ctx, usr)
	require.NoError(t, err)
	assert.False(t, status.Connected)

	connectURL, err := svc.ConnectURL(usr)
	require.NoError(t, err)
	state := stateOf(t, connectURL)
	require.NotEmpty(t, state)

	_, err = svc.Callback(ctx, "forged", "abc")
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok)

	status, err = svc.Callback(ctx, state, "abc")
	require.NoError(t, err)
	assert.True(t, status.Connected)
	tok, err := repo.GetToken(ctx, usr.ID, calendar.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "at-abc", tok.AccessToken)

	// states expire
	connectURL, err = svc.ConnectURL(usr)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = svc.Callback(ctx, stateOf(t, connectURL), "late")
	_, ok = err.(*core.ValidationError)
	assert.True(t, ok)

	require.NoError(t, svc.Disconnect(ctx, usr))
	status, err = svc.Status(ctx, usr)
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.True(t, core.IsNotFound(svc.Disconnect(ctx, usr)))
}

func TestService_PushMeeting(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewCalendarRepository(inmemdb.Open())
	provider := &fakeProvider{events: map[string]calendar.Event{}}
	svc := calendar.NewService(repo, provider, core.NewTestConfig(), logsvc.NewDiscardLogger())
	when := time.Date(2024, 7, 3, 2, 0, 0, 0, time.UTC)
	m := supervision.Meeting{ID: "m1", Title: "Chapter 2 review", Agenda: "Figures", ScheduledFor: when}

	id, err := svc.PushMeeting(ctx, "nobody", m)
	require.NoError(t, err)
	assert.Empty(t, id, "no calendar connected")

	_, err = repo.SaveToken(ctx, calendar.Token{UserID: "u1", Provider: calendar.ProviderGoogle, AccessToken: "at-1", RefreshToken: "rt-1"})
	require.NoError(t, err)

	provider.renewTo = "at-2"
	id, err = svc.PushMeeting(ctx, "u1", m)
	require.NoError(t, err)
	assert.Equal(t, "evt-Chapter 2 review", id)
	assert.Equal(t, when.Add(time.Hour), provider.events[id].End)
	assert.Equal(t, "Figures", provider.events[id].Description)

	tok, err := repo.GetToken(ctx, "u1", calendar.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok.AccessToken, "renewed tokens are kept")
	assert.Equal(t, "rt-1", tok.RefreshToken)

	require.NoError(t, svc.RemoveMeeting(ctx, "u1", id))
	assert.Empty(t, provider.events)
	require.NoError(t, svc.RemoveMeeting(ctx, "nobody", id))
}
