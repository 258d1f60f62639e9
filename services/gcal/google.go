package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"golang.org/x/oauth2"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/calendar"
)

const (
	authURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	tokenURL = "https://oauth2.googleapis.com/token"
	apiURL   = "https://www.googleapis.com/calendar/v3"

	eventsScope = "https://www.googleapis.com/auth/calendar.events"
)

// Google implements calendar.Provider over the Google Calendar REST API, on the
// user's primary calendar.
type Google struct {
	oauth  *oauth2.Config
	apiURL string
}

var _ calendar.Provider = (*Google)(nil)

func NewGoogle(conf *core.Config) *Google {
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     conf.Google.ClientID,
			ClientSecret: conf.Google.ClientSecret,
			RedirectURL:  conf.Google.RedirectURL,
			Scopes:       []string{eventsScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		apiURL: apiURL,
	}
}

// WithEndpoints points the provider at other OAuth and API servers.
func (g *Google) WithEndpoints(oauthBaseURL, apiBaseURL string) *Google {
	g.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:  oauthBaseURL + "/auth",
		TokenURL: oauthBaseURL + "/token",
	}
	g.apiURL = apiBaseURL
	return g
}

// AuthCodeURL asks for offline access so that a refresh token comes back on first consent.
func (g *Google) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (g *Google) Exchange(ctx context.Context, code string) (calendar.Token, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return calendar.Token{}, errors.Wrap(err, "exchanging code")
	}
	return fromOAuth(tok), nil
}

func fromOAuth(tok *oauth2.Token) calendar.Token {
	return calendar.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

func toOAuth(tok calendar.Token) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

// client returns an HTTP client authorized with `tok`, renewing it first when it expired.
func (g *Google) client(ctx context.Context, tok calendar.Token) (*rest.Client, calendar.Token, error) {
	current, err := g.oauth.TokenSource(ctx, toOAuth(tok)).Token()
	if err != nil {
		return nil, calendar.Token{}, errors.Wrap(err, "refreshing token")
	}
	renewed := fromOAuth(current)
	return &rest.Client{HTTPClient: oauth2.NewClient(ctx, oauth2.StaticTokenSource(current))}, renewed, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type eventBody struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

func (g *Google) CreateEvent(ctx context.Context, tok calendar.Token, ev calendar.Event) (string, calendar.Token, error) {
	cli, renewed, err := g.client(ctx, tok)
	if err != nil {
		return "", calendar.Token{}, err
	}

	body, err := json.Marshal(eventBody{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       eventTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         eventTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	})
	if err != nil {
		return "", renewed, errors.Wrap(err, "encoding event")
	}
	resp, err := cli.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: g.apiURL + "/calendars/primary/events",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return "", renewed, errors.Wrap(err, "sending request")
	}
	if resp.StatusCode != http.StatusOK {
		return "", renewed, fmt.Errorf("google calendar: creating event: %d %s", resp.StatusCode, resp.Body)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err = json.Unmarshal([]byte(resp.Body), &created); err != nil {
		return "", renewed, errors.Wrap(err, "decoding response")
	}
	return created.ID, renewed, nil
}

// DeleteEvent deletes an event; an event already gone is not an error.
func (g *Google) DeleteEvent(ctx context.Context, tok calendar.Token, eventID string) (calendar.Token, error) {
	cli, renewed, err := g.client(ctx, tok)
	if err != nil {
		return calendar.Token{}, err
	}
	resp, err := cli.SendWithContext(ctx, rest.Request{
		Method:  rest.Delete,
		BaseURL: g.apiURL + "/calendars/primary/events/" + url.PathEscape(eventID),
	})
	if err != nil {
		return renewed, errors.Wrap(err, "sending request")
	}
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound, http.StatusGone:
		return renewed, nil
	default:
		return renewed, fmt.Errorf("google calendar: deleting event: %d %s", resp.StatusCode, resp.Body)
	}
}
