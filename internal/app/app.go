package app

import (
	"context"
	"fmt"

	"cardiorisk/internal/config"
	"cardiorisk/internal/logger"
	"cardiorisk/internal/predict"
	"cardiorisk/internal/store"
	webhttp "cardiorisk/internal/transport/http/web"

	"golang.org/x/sync/errgroup"
)

// App wires the loaded artifacts to the HTTP server.
type App struct {
	cfg     *config.Config
	http    *webhttp.Server
	service *predict.Service
	audit   store.PredictionLog
	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.http == nil {
		return fmt.Errorf("http server not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("listening on %s", a.http.Addr())
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close releases the audit log.
func (a *App) Close() error {
	if a == nil || a.audit == nil {
		return nil
	}
	return a.audit.Close()
}

// Service exposes the prediction service (for tests and tooling).
func (a *App) Service() *predict.Service {
	if a == nil {
		return nil
	}
	return a.service
}

// Server exposes the HTTP server.
func (a *App) Server() *webhttp.Server {
	if a == nil {
		return nil
	}
	return a.http
}
