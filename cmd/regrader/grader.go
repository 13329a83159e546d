package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/datastore"
	"github.com/fushar/regrader/db"
	"github.com/fushar/regrader/eval/box"
	"github.com/fushar/regrader/eval/grader"
	"github.com/fushar/regrader/integrations/otel"
	"github.com/fushar/regrader/integrations/prometheus"
	"github.com/fushar/regrader/internal/config"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func Grader(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "Starting regrader", slog.String("version", regrader.Version))
	if config.Common.Debug {
		slog.WarnContext(ctx, "Debug mode activated, expect worse performance")
	}

	shutdownTracing, err := otel.Setup(ctx, config.Otel)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.WarnContext(ctx, "Couldn't flush traces", slog.Any("err", err))
		}
	}()

	if err := os.MkdirAll(config.Common.LogDir, 0755); err != nil {
		return fmt.Errorf("could not create log dir: %w", err)
	}
	logger, logFile := regrader.NewGraderLogger(config.Common.Debug, config.Common.LogDir, os.Stdout)
	defer func() {
		if err := logFile.Close(); err != nil {
			slog.WarnContext(ctx, "Error closing grader.log", slog.Any("err", err))
		}
	}()

	database, err := db.New(ctx, config.Database.DSN, config.Database.MaxConns)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.InfoContext(ctx, "Connected to DB")

	fsys := afero.NewOsFs()
	manager, err := datastore.NewManager(fsys, config.Storage)
	if err != nil {
		return err
	}

	handler, err := grader.NewHandler(grader.Options{
		Store:   database,
		Storage: manager,
		Sandbox: box.New(config.Grader.BoxPath, config.Grader.SyscallFlags, fsys, logger),
		Runner:  box.HostRunner{},
		Conf:    config.Grader,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Start(gctx)
	})
	g.Go(func() error {
		return prometheus.InitMetrics(gctx, config.Metrics)
	})
	return g.Wait()
}
