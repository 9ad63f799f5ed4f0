package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apihttp "github.com/spec-kit/helpdesk-bot/internal/api/http"
	"github.com/spec-kit/helpdesk-bot/internal/bot"
	"github.com/spec-kit/helpdesk-bot/internal/chat"
	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/guidance"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/scheduler"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	"github.com/spec-kit/helpdesk-bot/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	loc := cfg.Escalation.Location()

	ticketStore, err := openStore(ctx, cfg, loc, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.Error(err))
	}
	defer ticketStore.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, escalation timers will not survive restarts", zap.Error(err))
		}
		defer redisClient.Close()
	}

	telegram := chat.NewTelegram(cfg.Telegram, logger)
	generator := guidance.NewOpenAI(cfg.OpenAI)
	dispatcher := events.NewInMemoryDispatcher()
	sched := scheduler.New(redisClient, logger)

	escalation := service.NewEscalationService(service.EscalationDependencies{
		Store:      ticketStore,
		Roster:     cfg.Escalation.Engineers,
		Scheduler:  sched,
		Dispatcher: dispatcher,
		Window:     cfg.Escalation.Window(),
		Logger:     logger,
		Metrics:    metrics,
	})
	notifier := service.NewNotificationService(
		telegram, cfg.Telegram.ManagerChatID, cfg.Escalation.Engineers, logger, metrics)
	notifier.RegisterHandlers(dispatcher)

	intake := service.NewIntakeService(service.IntakeDependencies{
		Store:      ticketStore,
		Generator:  generator,
		Sender:     telegram,
		Escalation: escalation,
		Logger:     logger,
		Metrics:    metrics,
	})
	reports := service.NewReportService(ticketStore, cfg.Escalation.Engineers, loc)

	if err := sched.Restore(ctx, func(ticketID int64) {
		escalation.AutoAssign(context.Background(), ticketID)
	}); err != nil {
		logger.Warn("failed to restore escalation timers", zap.Error(err))
	}

	router := bot.NewRouter(bot.Dependencies{
		Client:        telegram,
		Intake:        intake,
		Escalation:    escalation,
		Reports:       reports,
		Store:         ticketStore,
		ManagerChatID: cfg.Telegram.ManagerChatID,
		Logger:        logger,
		Metrics:       metrics,
	})
	go router.Run(ctx)

	app := apihttp.NewApp(apihttp.Dependencies{
		Config:  cfg,
		Store:   ticketStore,
		Redis:   redisClient,
		Logger:  logger,
		Metrics: metrics,
	})
	go func() {
		logger.Info("ops server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Error("ops server stopped", zap.Error(err))
		}
	}()

	logger.Info("helpdesk bot started",
		zap.String("env", cfg.App.Env),
		zap.Int("engineers", len(cfg.Escalation.Engineers)),
		zap.String("timezone", cfg.Escalation.Timezone))

	waitForShutdown(logger)
	cancel()
	if err := app.Shutdown(); err != nil {
		logger.Error("ops server shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openStore selects Postgres when a DSN is configured, SQLite
// otherwise.
func openStore(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zap.Logger) (store.TicketStore, error) {
	if cfg.Postgres.DSN != "" {
		logger.Info("using postgres ticket store")
		return store.NewPostgresStore(ctx, cfg.Postgres, loc, logger)
	}
	logger.Info("using sqlite ticket store", zap.String("path", cfg.Sqlite.Path))
	return store.NewSqliteStore(cfg.Sqlite.Path, loc)
}

func waitForShutdown(logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))
}
