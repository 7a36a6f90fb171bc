// Package app wires the dispatcher and its dependencies from configuration.
// Both the API server and the one-shot runner start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/config"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/db"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/handler"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/lock"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/notify"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/repository"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/service"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/whatsapp"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/worker"
)

// App holds the long-lived components of one process
type App struct {
	Config     *config.Config
	DB         *db.DB
	Redis      *redis.Client
	Hub        *notify.Hub
	Dispatcher *worker.Dispatcher
	Campaigns  service.CampaignService

	// Checks feeds GET /health; nil entries are optional services left unconfigured
	Checks map[string]handler.HealthChecker

	logger  *slog.Logger
	closers []func() error
}

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL
func NewLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// New connects every configured dependency and builds the dispatcher.
// withHub adds the websocket hub to the progress notifiers.
func New(ctx context.Context, cfg *config.Config, withHub bool, logger *slog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Checks: make(map[string]handler.HealthChecker),
		logger: logger,
	}

	if err := a.build(ctx, withHub); err != nil {
		_ = a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) build(ctx context.Context, withHub bool) error {
	cfg := a.Config

	if cfg.Database.RunMigrations {
		if err := db.Migrate(cfg.Database.URL()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.logger.Info("database migrations applied")
	}

	database, err := db.New(db.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = database
	a.closers = append(a.closers, database.Close)
	a.Checks["database"] = database
	a.logger.Info("connected to database")

	transport, err := a.transport(ctx)
	if err != nil {
		return err
	}

	var notifiers notify.Multi
	if withHub {
		a.Hub = notify.NewHub(a.logger)
		a.closers = append(a.closers, func() error { a.Hub.Close(); return nil })
		notifiers = append(notifiers, a.Hub)
	}

	var lease worker.Lease
	a.Checks["redis"] = nil
	if cfg.Redis.URL != "" {
		client, err := db.NewRedis(cfg.Redis.URL, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)

		publisher := notify.NewRedisPublisher(client, "", a.logger)
		notifiers = append(notifiers, publisher)
		a.Checks["redis"] = publisher

		lease = lock.NewRedisLease(client, cfg.Redis.LeaseKey, cfg.Redis.LeaseTTL)
		a.logger.Info("connected to Redis", slog.String("lease_key", cfg.Redis.LeaseKey))
	}

	a.Checks["amqp"] = nil
	if cfg.AMQP.URL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		notifiers = append(notifiers, publisher)
		a.Checks["amqp"] = publisher
		a.logger.Info("connected to AMQP broker", slog.String("exchange", cfg.AMQP.Exchange))
	}

	campaignRepo := repository.NewCampaignRepository(database.DB)
	templateRepo := repository.NewTemplateRepository(database.DB)
	recipientRepo := repository.NewRecipientRepository(database.DB)
	deliveryRepo := repository.NewDeliveryRepository(database.DB)
	templateSvc := service.NewTemplateService()

	deps := worker.Dependencies{
		Campaigns:  campaignRepo,
		Templates:  templateRepo,
		Recipients: recipientRepo,
		Deliveries: deliveryRepo,
		Transport:  transport,
		Renderer:   templateSvc,
		Notifier:   notifiers,
		Lease:      lease,
	}

	a.Dispatcher = worker.NewDispatcher(deps, Limits(cfg.Dispatch), a.logger)
	a.Campaigns = service.NewCampaignService(
		campaignRepo,
		templateRepo,
		recipientRepo,
		deliveryRepo,
		templateSvc,
		a.Dispatcher,
		a.logger,
	)

	return nil
}

func (a *App) transport(ctx context.Context) (worker.Transport, error) {
	cfg := a.Config

	if cfg.WhatsApp.Mode == "mock" {
		a.logger.Warn("using mock WhatsApp transport, no messages will be delivered",
			slog.Float64("success_rate", cfg.WhatsApp.MockSuccessRate),
		)
		a.Checks["transport"] = nil
		return worker.NewMockTransport(cfg.WhatsApp.MockSuccessRate), nil
	}

	client, err := whatsapp.New(ctx, whatsapp.Config{
		DSN:      cfg.Database.DSN(),
		LogLevel: cfg.WhatsApp.LogLevel,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	a.Checks["transport"] = client

	return client, nil
}

// Close releases every connection opened by New, newest first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Limits maps the DISPATCH_* settings onto the dispatcher limits
func Limits(cfg config.DispatchConfig) worker.Limits {
	return worker.Limits{
		IntervalMin:           cfg.IntervalMin,
		IntervalMax:           cfg.IntervalMax,
		HourlyCap:             cfg.HourlyCap,
		PauseMessageThreshold: cfg.PauseMessageThreshold,
		PauseDuration:         cfg.PauseDuration,
		RestDuration:          cfg.RestDuration,
		MaxErrorRate:          cfg.MaxErrorRate,
		MinErrorSamples:       cfg.MinErrorSamples,
		FailureCooldown:       cfg.FailureCooldown,
		CriticalCooldown:      cfg.CriticalCooldown,
		SendTimeout:           cfg.SendTimeout,
		MaxAttempts:           cfg.MaxAttempts,
	}
}
