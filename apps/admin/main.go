package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nexscholar/nexscholar/apps/shared"
	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/storage/database"
	sqlxrepos "github.com/nexscholar/nexscholar/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger("ADMIN", conf)

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	core.ParseEmailTemplates(conf, logger)
	svcs := shared.NewServices(conf, logger, db, shared.NewEmailService(conf, logger))

	cli := commandLine{
		db:          db,
		usrRepo:     sqlxrepos.NewUserRepository(db),
		profiles:    svcs.Profiles,
		taxonomy:    svcs.Taxonomy,
		supervision: svcs.Supervision,
		scholar:     svcs.Scholar,
		search:      svcs.Search,
		queue:       svcs.Queue,
		out:         os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}
