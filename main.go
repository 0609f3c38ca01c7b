package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/duelhall/mambot/mambot"
	"github.com/duelhall/mambot/mambot/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	rolloverNow := flag.Bool("rollover-now", false, "run a rollover check on startup")
	flag.Parse()

	cfg, err := mambot.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))
	slog.Info("Starting MamBot economy core",
		slog.String("version", version),
		slog.String("commit", commit))

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancelSetup()

	a := mambot.New(*cfg, version, commit)
	startTime := time.Now()
	if err := a.Setup(setupCtx); err != nil {
		slog.Error("Setup failed",
			slog.Any("error", err),
			slog.Duration("attempted_for", time.Since(startTime)))
		os.Exit(-1)
	}
	defer a.Close()
	slog.Info("Setup complete", slog.Duration("took", time.Since(startTime)))

	if *rolloverNow {
		if err := a.Scheduler.CheckAndRun(setupCtx); err != nil {
			slog.Error("Startup rollover failed", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.RunRolloverLoop(ctx) })
	g.Go(func() error { return a.RunTradeExpiryLoop(ctx) })

	slog.Info("Economy core is running. Press CTRL-C to exit.")
	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("Background loop failed", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Shutting down...")
}
