package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"teamrelay/internal/config"
)

// Run We assemble the container, start it, wait for the signal or a feed failure and stop
func Run(cfg *config.Config) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(sigCtx, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	// nothing is opened before the config is known to be complete
	if err := cfg.Validate(); err != nil {
		return err
	}

	lg := newLogger(&cfg.Logging)
	lg.Info("Successfully initialize logger")

	ctxBuild, cancelBuild := context.WithTimeout(ctx, 30*time.Second)
	defer cancelBuild()

	container, cleanup, err := Build(ctxBuild, cfg, lg)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := container.Start(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		lg.Info("Shutdown signal received")
	case runErr = <-errCh:
		lg.Errorf("Relay stopped, error=%v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err = container.Stop(shutdownCtx); err != nil {
		lg.Errorf("Failed to stop app: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
