// Package app wires the hedging daemon together: configuration in,
// running services out.
package app

import (
	"context"
	"fmt"

	"hedgerd/internal/config"
	"hedgerd/internal/hedger"
	"hedgerd/internal/logger"
	"hedgerd/internal/profile"
	"hedgerd/internal/store/hedgelog"
	hedgehttp "hedgerd/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns the assembled services. Build with NewApp, drive with Run.
type App struct {
	cfg        *config.Config
	controller *hedger.Controller
	server     *hedgehttp.Server
	profiles   *profile.Loader
	store      *hedgelog.Store
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Run serves until ctx is cancelled, then stops every hedger and
// releases resources.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.profiles != nil {
		reconciler := profile.NewReconciler(a.controller)
		a.profiles.Subscribe(reconciler.Apply)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	logger.Infof("hedgerd up: http=%s profiles=%s", a.server.Addr(), a.cfg.Hedge.ProfilesPath)
	return group.Wait()
}

// Close stops all hedgers and closes the profile watcher and store.
// Safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.controller != nil {
		a.controller.StopAll()
	}
	if a.profiles != nil {
		_ = a.profiles.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// Controller exposes the hedge controller for harnesses.
func (a *App) Controller() *hedger.Controller {
	if a == nil {
		return nil
	}
	return a.controller
}
