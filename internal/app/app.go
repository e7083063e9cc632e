package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/billie-coop/ollamagate/internal/config"
	"github.com/billie-coop/ollamagate/internal/events"
	"github.com/billie-coop/ollamagate/internal/llm"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
	"github.com/billie-coop/ollamagate/internal/origin"
)

// App holds all the core services and business logic
type App struct {
	// Persistent state
	Config *config.Store

	// Core services
	Origins *origin.Manager
	Client  *llm.OllamaClient
	Queue   *queue.Manager
	Service *Service

	// Queue depth observers
	Status *events.Broker[queue.Snapshot]

	logger *zap.Logger
}

// New wires the services around store. Extra client options (a custom
// http.Client, a pinned base URL) are applied after the store-backed resolver.
func New(ctx context.Context, store *config.Store, logger *zap.Logger, clientOpts ...llm.ClientOption) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := &App{
		Config: store,
		Status: events.NewBroker[queue.Snapshot](logger.Named("status")),
		logger: logger,
	}

	opts := append([]llm.ClientOption{
		llm.WithBaseURLFunc(store.BaseURL),
		llm.WithLogger(logger.Named("ollama")),
	}, clientOpts...)
	app.Client = llm.NewOllamaClient(opts...)

	app.Origins = origin.NewManager(store, logger.Named("origins"))
	app.Queue = queue.NewManager(ctx, store, app.Status, logger.Named("queue"))
	app.Service = NewService(app.Origins, app.Client, app.Queue, logger.Named("service"))

	return app
}

// Reload applies a configuration that changed on disk. Only the limits need
// pushing; the endpoint and allow-list are read from the store on every request.
func (a *App) Reload(ctx context.Context, cfg config.Config) {
	if cfg.Limits == nil {
		return
	}
	limits := cfg.Limits.Clamp()
	if limits == a.Queue.Limits() {
		return
	}
	a.logger.Info("Config file changed, applying limits",
		zap.Int("heavy", limits.Heavy),
		zap.Int("light", limits.Light))
	if err := a.Queue.Reconfigure(ctx, limits); err != nil {
		a.logger.Warn("Failed to apply reloaded limits", zap.Error(err))
	}
}

// Shutdown drops queued work, waits for running requests and closes observers.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Queue.Stop(ctx)
	a.Status.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
