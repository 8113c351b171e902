package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"teamrelay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHTTP struct {
	stop     chan struct{}
	startErr error
	shutdown atomic.Bool
}

func newFakeHTTP() *fakeHTTP { return &fakeHTTP{stop: make(chan struct{})} }

func (f *fakeHTTP) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	<-f.stop
	return nil
}

func (f *fakeHTTP) Shutdown(context.Context) error {
	if f.shutdown.CompareAndSwap(false, true) {
		close(f.stop)
	}
	return nil
}

type listenerFunc func(ctx context.Context) error

func (f listenerFunc) Start(ctx context.Context) error { return f(ctx) }

func waitForCtx(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestApp_ShutdownStopsListener(t *testing.T) {
	srv := newFakeHTTP()
	a := NewApp(testutil.Logger(), srv, listenerFunc(waitForCtx))

	errCh := a.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))

	assert.True(t, srv.shutdown.Load())
	select {
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}

func TestApp_ListenerFailureReported(t *testing.T) {
	feedErr := errors.New("change feed subscription: subscription closed")
	a := NewApp(testutil.Logger(), newFakeHTTP(), listenerFunc(func(context.Context) error { return feedErr }))

	errCh := a.Start(context.Background())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, feedErr)
	case <-time.After(time.Second):
		t.Fatal("listener error not reported")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, a.Shutdown(ctx))
}

func TestApp_HTTPFailureReported(t *testing.T) {
	srv := newFakeHTTP()
	srv.startErr = errors.New("listen tcp :8080: bind: address already in use")
	a := NewApp(testutil.Logger(), srv, listenerFunc(waitForCtx))

	errCh := a.Start(context.Background())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, srv.startErr)
		assert.Contains(t, err.Error(), "http server")
	case <-time.After(time.Second):
		t.Fatal("http error not reported")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, a.Shutdown(ctx))
}

func TestApp_ShutdownTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	// ignores ctx on purpose
	a := NewApp(testutil.Logger(), newFakeHTTP(), listenerFunc(func(context.Context) error {
		<-block
		return nil
	}))
	a.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Shutdown(ctx), context.DeadlineExceeded)
}
