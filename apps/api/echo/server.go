package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc         *user.Service
		ProfileSvc      *profile.Service
		TaxonomySvc     *taxonomy.Service
		SupervisionSvc  *supervision.Service
		NotificationSvc *notification.Service
		MessagingSvc    *messaging.Service
		BoardSvc        *board.Service
		SearchSvc       *search.Service
		CalendarSvc     *calendar.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf, deps.UserSvc),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/api/v1")
	jwt := s.auth.middleware()
	base := apiBase{auth: s.auth, validate: s.deps.Validate}

	registerUserAPI(v1, jwt, base, s.deps.UserSvc)
	registerProfileAPI(v1, jwt, base, s.deps.ProfileSvc, s.deps.TaxonomySvc)
	registerTaxonomyAPI(v1, jwt, base, s.deps.TaxonomySvc)
	registerSupervisionAPI(v1, jwt, base, s.deps.SupervisionSvc)
	registerNotificationAPI(v1, jwt, base, s.deps.NotificationSvc)
	registerMessagingAPI(v1, jwt, base, s.deps.MessagingSvc)
	registerBoardAPI(v1, jwt, base, s.deps.BoardSvc)
	if s.deps.SearchSvc != nil {
		registerSearchAPI(v1, jwt, base, s.deps.SearchSvc)
	}
	if s.deps.CalendarSvc != nil {
		registerCalendarAPI(v1, jwt, base, s.deps.CalendarSvc)
	}
}

// Start blocks until the server stops; a listening failure is reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
