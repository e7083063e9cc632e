package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/billie-coop/ollamagate/internal/llm"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
	"github.com/billie-coop/ollamagate/internal/origin"
)

// Admin operations come from the trusted local surface and are not origin-gated.

// Settings is what the monitor shows besides queue counts.
type Settings struct {
	Endpoint       string           `json:"endpoint"`
	AllowedOrigins origin.AllowList `json:"allowedOrigins"`
	Limits         queue.Limits     `json:"limits"`
}

// Settings returns the current endpoint, allow-list and limits.
func (a *App) Settings(ctx context.Context) (Settings, error) {
	list, err := a.Origins.List(ctx)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Endpoint:       a.Config.BaseURL(ctx),
		AllowedOrigins: list,
		Limits:         a.Queue.Limits(),
	}, nil
}

// SetEndpoint validates and stores the Ollama base URL.
func (a *App) SetEndpoint(ctx context.Context, endpoint string) error {
	if err := a.Config.SetBaseURL(ctx, endpoint); err != nil {
		return err
	}
	a.logger.Info("Ollama endpoint changed", zap.String("endpoint", a.Config.BaseURL(ctx)))
	return nil
}

// SetLimits replaces both concurrency limits. Waiting work may start immediately.
func (a *App) SetLimits(ctx context.Context, limits queue.Limits) (queue.Limits, error) {
	if err := a.Queue.Reconfigure(ctx, limits); err != nil {
		return a.Queue.Limits(), err
	}
	return a.Queue.Limits(), nil
}

// ClearQueue rejects every waiting request. Running requests are unaffected.
func (a *App) ClearQueue() int {
	return a.Queue.Clear()
}

// QueueStatus returns pending and running counts with the limits in force.
func (a *App) QueueStatus() queue.Status {
	return a.Queue.Status()
}

// Models lists the models installed in Ollama, smallest first.
// Listing goes through the light lane like any other request.
func (a *App) Models(ctx context.Context) ([]llm.Model, error) {
	var models []llm.Model
	fut := a.Queue.Submit(ctx, queue.Light, func(ctx context.Context) error {
		var err error
		models, err = a.Client.ListModels(ctx)
		return err
	}, queue.WithType("fetchModels"))

	if err := fut.Wait(ctx); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	llm.SortModels(models)
	return models, nil
}
