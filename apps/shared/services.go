// Package shared builds the dependencies the api, admin and worker apps have in common.
package shared

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/board"
	"github.com/nexscholar/nexscholar/core/calendar"
	"github.com/nexscholar/nexscholar/core/messaging"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/scholar"
	"github.com/nexscholar/nexscholar/core/search"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	"github.com/nexscholar/nexscholar/core/user"
	emailsvc "github.com/nexscholar/nexscholar/services/email"
	"github.com/nexscholar/nexscholar/services/embeddings"
	"github.com/nexscholar/nexscholar/services/gcal"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	"github.com/nexscholar/nexscholar/services/qdrant"
	"github.com/nexscholar/nexscholar/services/queue"
	scholarsvc "github.com/nexscholar/nexscholar/services/scholar"
	"github.com/nexscholar/nexscholar/storage/database"
	sqlxrepos "github.com/nexscholar/nexscholar/storage/database/sqlx"
)

// Services holds the domain services. Search and Calendar are nil when their
// provider is not configured.
type Services struct {
	Conf   *core.Config
	Logger core.Logger
	Mail   core.EmailService
	Queue  *queue.Queue

	Users         *user.Service
	Profiles      *profile.Service
	Taxonomy      *taxonomy.Service
	Notifications *notification.Service
	Supervision   *supervision.Service
	Messaging     *messaging.Service
	Boards        *board.Service
	Scholar       *scholar.Service
	Search        *search.Service
	Calendar      *calendar.Service
}

// NewLogger returns a rollbar logger writing to stdout with the given prefix ("API", "DB", ...).
// Reporting to rollbar is disabled in debug mode.
func NewLogger(prefix string, conf *core.Config) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	return logger
}

func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// SetUpDB creates the database when missing, opens it and applies pending migrations.
func SetUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(ctx, db, "up"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return db, nil
}

func NewServices(conf *core.Config, logger core.Logger, db *sqlx.DB, mailSvc core.EmailService) *Services {
	q := queue.New(conf, logger)

	usrSvc := user.NewService(db, sqlxrepos.NewUserRepository(db), mailSvc, conf)
	profileSvc := profile.NewService(db, sqlxrepos.NewProfileRepository(db))
	taxSvc := taxonomy.NewService(db, sqlxrepos.NewTaxonomyRepository(db), profileSvc)
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), usrSvc, mailSvc, logger)
	supSvc := supervision.NewService(db, sqlxrepos.NewSupervisionRepository(db), usrSvc, notifSvc, conf, logger)

	svcs := &Services{
		Conf:          conf,
		Logger:        logger,
		Mail:          mailSvc,
		Queue:         q,
		Users:         usrSvc,
		Profiles:      profileSvc,
		Taxonomy:      taxSvc,
		Notifications: notifSvc,
		Supervision:   supSvc,
		Messaging:     messaging.NewService(db, sqlxrepos.NewMessagingRepository(db), usrSvc, notifSvc, logger),
		Boards:        board.NewService(db, sqlxrepos.NewBoardRepository(db), usrSvc, notifSvc, logger),
		Scholar:       scholar.NewService(profileSvc, scholarsvc.NewFetcher(), q, conf),
	}

	if conf.Search.OpenAIKey != "" {
		svcs.Search = search.NewService(embeddings.NewOpenAI(conf), qdrant.NewClient(conf), profileSvc, taxSvc, conf, logger)
	} else {
		logger.Info("search disabled: no OpenAI key configured")
	}

	if conf.Google.ClientID != "" {
		svcs.Calendar = calendar.NewService(sqlxrepos.NewCalendarRepository(db), gcal.NewGoogle(conf), conf, logger)
		supSvc.WithCalendar(svcs.Calendar)
	} else {
		logger.Info("calendar sync disabled: no Google client configured")
	}

	return svcs
}
