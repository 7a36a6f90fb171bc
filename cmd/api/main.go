package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/app"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/config"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting campaign dispatcher API",
		slog.String("env", cfg.Env),
		slog.String("transport", cfg.WhatsApp.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, true, logger)
	if err != nil {
		logger.Error("failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	campaignHandler := handler.NewCampaignHandler(a.Campaigns, logger)
	dispatcherHandler := handler.NewDispatcherHandler(a.Campaigns, logger)
	healthHandler := handler.NewHealthHandler(a.Checks, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.RecoveryMiddleware(logger))
	r.Use(handler.LoggingMiddleware(logger))
	r.Use(handler.CORSMiddleware)

	r.Get("/health", healthHandler.Health)
	r.Get("/ws", a.Hub.ServeHTTP)

	r.Route("/dispatcher", func(r chi.Router) {
		r.Get("/", dispatcherHandler.Status)
		r.Post("/clear", dispatcherHandler.Clear)
	})

	r.Route("/campaigns", campaignHandler.Routes)

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", slog.String("addr", addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)

	case <-ctx.Done():
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// The run stores its final status before the connections close
		if err := a.Dispatcher.Stop(shutdownCtx); err != nil {
			logger.Error("dispatcher stop failed", slog.String("error", err.Error()))
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Info("server stopped gracefully")
	}
}
