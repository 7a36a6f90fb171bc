// Command worker dispatches a single campaign in the foreground and exits
// when the run ends. With REDIS_URL set it shares the run lease with the
// API servers, so it never overlaps a run they started.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/app"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/config"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/worker"
)

func main() {
	campaignID := flag.Int64("campaign", 0, "ID of the campaign to dispatch")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if *campaignID <= 0 {
		logger.Error("missing -campaign flag")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, false, logger)
	if err != nil {
		logger.Error("failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("dispatching campaign", slog.Int64("campaign_id", *campaignID))

	// A signal cancels ctx; the run then stores status paused and returns
	err = a.Dispatcher.Start(ctx, *campaignID)
	switch {
	case errors.Is(err, worker.ErrAlreadyRunning):
		logger.Error("another campaign run is active", slog.Int64("campaign_id", *campaignID))
		os.Exit(3)
	case err != nil:
		logger.Error("campaign run failed",
			slog.Int64("campaign_id", *campaignID),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("campaign run finished",
		slog.Int64("campaign_id", *campaignID),
		slog.Any("stats", a.Dispatcher.Status().Stats),
	)
}
