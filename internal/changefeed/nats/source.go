package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"teamrelay/internal/changefeed"
	"teamrelay/internal/domain"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"
)

// Source reads change events published as JSON on one subject.
// nats delivers messages of one subscription sequentially, so order is kept
type Source struct {
	log     logger.Logger
	nc      *nats.Conn
	subject string

	started    atomic.Bool
	ready      atomic.Bool
	subscribed chan struct{}
	once       sync.Once
}

func NewSource(log logger.Logger, nc *nats.Conn, subject string) (*Source, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if subject == "" {
		return nil, errors.New("change subject is required")
	}

	return &Source{
		log:        log,
		nc:         nc,
		subject:    subject,
		subscribed: make(chan struct{}),
	}, nil
}

func (s *Source) Subscribe(ctx context.Context, f changefeed.Filter, h changefeed.Handler) error {
	if !s.started.CompareAndSwap(false, true) {
		return changefeed.ErrAlreadySubscribed
	}

	closed := make(chan struct{})
	var closeOnce sync.Once
	s.nc.SetClosedHandler(func(_ *nats.Conn) {
		closeOnce.Do(func() { close(closed) })
	})

	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var ev domain.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			s.log.Warnf("Skip malformed change event on %s: %v", msg.Subject, err)
			return
		}
		if !f.Match(&ev) {
			return
		}
		h(ctx, &ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", s.subject, err)
	}
	defer func() {
		s.ready.Store(false)
		_ = sub.Unsubscribe()
	}()

	if err = s.nc.Flush(); err != nil {
		return fmt.Errorf("failed to flush subscription %s: %w", s.subject, err)
	}

	s.ready.Store(true)
	s.once.Do(func() { close(s.subscribed) })
	s.log.Infof("Subscribed to change events, subject=%s table=%s.%s event=%s", s.subject, f.Schema, f.Table, f.Event)

	select {
	case <-ctx.Done():
		return nil
	case <-closed:
		return changefeed.ErrSubscriptionClosed
	}
}

func (s *Source) Ready() bool {
	return s.ready.Load()
}

// Subscribed closed once the subscription is registered on the server
func (s *Source) Subscribed() <-chan struct{} {
	return s.subscribed
}
