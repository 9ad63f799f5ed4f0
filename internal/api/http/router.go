package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/store"
)

// Dependencies bundles what the ops surface needs.
type Dependencies struct {
	Config  *config.Config
	Store   store.TicketStore
	Redis   *redis.Client
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewApp builds the read-only ops HTTP application: health probes and
// ticket/report lookups. All workflow mutation stays in the chat
// surface.
func NewApp(deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      deps.Config.App.Name,
		ErrorHandler: ErrorHandler(deps.Logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(Recover(deps.Logger))
	app.Use(observability.RequestLogger(deps.Logger, deps.Metrics))

	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Redis, deps.Config.App.Version)
	ticketsHandler := handlers.NewTicketsHandler(deps.Store, deps.Config.Escalation.Location())

	app.Get("/health/live", healthHandler.Live)
	app.Get("/health/ready", healthHandler.Ready)
	app.Get("/tickets/:id", ticketsHandler.GetTicket)
	app.Get("/reports/summary", ticketsHandler.GetSummary)

	return app
}
