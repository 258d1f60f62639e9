package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/nexscholar/nexscholar/apps/api/echo"
	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/board"
	"github.com/nexscholar/nexscholar/core/calendar"
	"github.com/nexscholar/nexscholar/core/messaging"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/search"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	"github.com/nexscholar/nexscholar/core/user"
	emailsvc "github.com/nexscholar/nexscholar/services/email"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
	testutil "github.com/nexscholar/nexscholar/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	*echoapi.Server
	conf *core.Config

	usrRepo  user.Repository
	usrSvc   *user.Service
	taxSvc   *taxonomy.Service
	searchSv *search.Service
	provider *fakeProvider
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(conf, logger)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	profileRepo := inmemdb.NewProfileRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(nil, usrRepo, mailSvc, conf)
	profileSvc := profile.NewService(nil, profileRepo)
	taxSvc := taxonomy.NewService(nil, inmemdb.NewTaxonomyRepository(db), profileSvc)
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db), usrSvc, mailSvc, logger)
	provider := &fakeProvider{}
	calSvc := calendar.NewService(inmemdb.NewCalendarRepository(db), provider, conf, logger)
	supSvc := supervision.NewService(nil, inmemdb.NewSupervisionRepository(db), usrSvc, notifSvc, conf, logger).
		WithCalendar(calSvc)
	embedder := testutil.NewKeywordEmbedder("learning", "biology", "chemistry", "data", "network", "security", "finance", "education")
	searchSvc := search.NewService(embedder, inmemdb.NewVectorStore(), profileSvc, taxSvc, conf, logger).
		WithSleep(func(context.Context, time.Duration) error { return nil })
	require.NoError(t, searchSvc.EnsureCollections(context.Background()))

	// set up server
	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
		UserSvc:         usrSvc,
		ProfileSvc:      profileSvc,
		TaxonomySvc:     taxSvc,
		SupervisionSvc:  supSvc,
		NotificationSvc: notifSvc,
		MessagingSvc:    messaging.NewService(nil, inmemdb.NewMessagingRepository(db), usrSvc, notifSvc, logger),
		BoardSvc:        board.NewService(nil, inmemdb.NewBoardRepository(db), usrSvc, notifSvc, logger),
		SearchSvc:       searchSvc,
		CalendarSvc:     calSvc,
	})
	t.Cleanup(func() { _ = srv.Close() })

	return &testApp{
		Server:   srv,
		conf:     conf,
		usrRepo:  usrRepo,
		usrSvc:   usrSvc,
		taxSvc:   taxSvc,
		searchSv: searchSvc,
		provider: provider,
	}
}

// fakeProvider stands in for Google Calendar.
type fakeProvider struct {
	lastState string
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	p.lastState = state
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (calendar.Token, error) {
	return calendar.Token{AccessToken: "at-" + code, RefreshToken: "rt", TokenType: "Bearer"}, nil
}

func (p *fakeProvider) CreateEvent(_ context.Context, tok calendar.Token, ev calendar.Event) (string, calendar.Token, error) {
	return "evt-" + ev.Summary, tok, nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, tok calendar.Token, _ string) (calendar.Token, error) {
	return tok, nil
}

func (app *testApp) createUser(t *testing.T, name, uname string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, app.usrRepo, name, uname, uname+"@example.com", "", roles, true)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves a request and decodes a successful JSON response into `dest`.
func (app *testApp) do(t *testing.T, method, path, token string, body interface{}, wantCode int, dest ...interface{}) {
	t.Helper()
	var data []byte
	if body != nil {
		data = marchallObj(t, body)
	}
	req, rec := newAuthRequest(method, path, token, data)
	app.ServeHTTP(rec, req)
	require.Equal(t, wantCode, rec.Code, "%s %s: %s", method, path, rec.Body.String())
	if len(dest) > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest[0]))
	}
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
