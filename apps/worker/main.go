package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nexscholar/nexscholar/apps/shared"
	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/services/queue"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger("WORKER", conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := shared.SetUpDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	core.ParseEmailTemplates(conf, logger)
	svcs := shared.NewServices(conf, logger, db, shared.NewEmailService(conf, logger))
	if svcs.Search != nil {
		if err = svcs.Search.EnsureCollections(ctx); err != nil {
			logger.Fatal(fmt.Sprintf("creating vector collections: %v", err), err)
		}
	}

	logger.Info(fmt.Sprintf("Worker starting : version %q", conf.Build))
	defer logger.Info("Worker stopped")

	svcs.Queue.Start(ctx)
	scheduler := jobs{
		logger:      logger,
		supervision: svcs.Supervision,
		search:      svcs.Search,
		scholar:     svcs.Scholar,
	}.register(queue.NewScheduler(logger))
	logger.Info(fmt.Sprintf("scheduled jobs: %v", scheduler.Jobs()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		svcs.Queue.Stop()
		return nil
	})
	if err = g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("worker error: %v", err), err)
	}
}
