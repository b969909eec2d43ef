// Package app wires configuration, storage, services, background workers
// and the HTTP server into one runnable process.
package app

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/service-desk/internal/api/http"
	"github.com/spec-kit/service-desk/internal/api/http/handlers"
	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/lifecycle"
	"github.com/spec-kit/service-desk/internal/observability"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/internal/subscription"
	"github.com/spec-kit/service-desk/internal/worker"
)

// Options are the already opened collaborators of the process.
type Options struct {
	Config  *config.Config
	Backend *repository.Backend
	// Redis is optional. When set, events are relayed between instances.
	Redis  *persistence.Redis
	Clock  clock.Clock
	Logger *zap.Logger
	// GitHub overrides the provider built from Config.OAuth.
	GitHub service.IdentityProvider
}

// App is a wired API process.
type App struct {
	Server  *fiber.App
	Hub     *subscription.Hub
	Metrics *observability.Metrics
	Auth    *service.AuthService
	Tickets *service.TicketService

	workers *worker.Group
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// New assembles the process and starts its background workers. They run
// until Shutdown is called or ctx ends.
func New(ctx context.Context, opts Options) *App {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	backend := opts.Backend

	var (
		dispatcher = events.NewInMemoryDispatcher()
		relay      *events.RedisDispatcher
	)
	if client := opts.Redis.ClientHandle(); client != nil {
		relay = events.NewRedisDispatcher(dispatcher, client, cfg.Redis.Channel, logger)
		dispatcher = relay
	}

	github := opts.GitHub
	if github == nil && cfg.OAuth.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.OAuth.GitHubClientID, cfg.OAuth.GitHubClientSecret, cfg.OAuth.GitHubRedirectURL)
	}

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:          backend.Users,
		PasswordResetRepo: backend.Resets,
		GitHub:            github,
		Clock:             clk,
		Logger:            logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: backend.Tickets,
		Lifecycle:  lifecycle.New(clk),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	hub := subscription.NewHub(backend.Tickets, logger)

	metrics := observability.NewMetrics()
	metrics.RegisterGauge("stream_subscribers", func() int64 { return int64(hub.Subscribers()) })

	workerCtx, cancel := context.WithCancel(ctx)
	workers := worker.NewGroup(logger)
	worker.StartNotificationWorker(notificationService)
	worker.StartSubscriptionWorker(workerCtx, workers, hub, dispatcher)
	worker.StartEventRelay(workerCtx, workers, relay)

	deps := map[string]handlers.Pinger{"store": backend.Tickets}
	if opts.Redis != nil {
		deps["redis"] = opts.Redis
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		AppName:        cfg.App.Name,
		RequestTimeout: cfg.App.RequestTimeout(),
		Logger:         logger,
		Metrics:        metrics,
	}, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps, metrics),
		Users:          handlers.NewUsersHandler(authService, cfg.App.Env == "development"),
		OAuth:          handlers.NewOAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Stream:         handlers.NewStreamHandler(hub, cfg.Stream.KeepAlive()),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), backend.Users),
	})

	return &App{
		Server:  server,
		Hub:     hub,
		Metrics: metrics,
		Auth:    authService,
		Tickets: ticketService,
		workers: workers,
		cancel:  cancel,
		logger:  logger,
	}
}

// Listen serves HTTP on addr until Shutdown.
func (a *App) Listen(addr string) error {
	a.logger.Info("listening", zap.String("addr", addr))
	return a.Server.Listen(addr)
}

// Shutdown stops accepting requests, closes open streams and waits for the
// background workers.
func (a *App) Shutdown() error {
	a.cancel()
	err := a.Server.Shutdown()
	a.workers.Wait()
	return err
}
