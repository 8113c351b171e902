package app

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Listener is the long-running change feed consumer
type Listener interface {
	Start(ctx context.Context) error
}

type App struct {
	log      logger.Logger
	httpSrv  HTTPServer
	listener Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApp(log logger.Logger, httpSrv HTTPServer, listener Listener) *App {
	return &App{log: log, httpSrv: httpSrv, listener: listener}
}

// Start runs the HTTP server and the listener; the channel receives the first fatal error
func (a *App) Start(ctx context.Context) <-chan error {
	a.log.Debug("App started begin...")

	errCh := make(chan error, 2)
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.httpSrv.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		defer a.wg.Done()
		if err := a.listener.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	a.log.Info("App started")
	return errCh
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.log.Info("App stopped")
	return nil
}
