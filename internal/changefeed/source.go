// Package changefeed subscribes to row-level change events of one table.
//
// A Source delivers events to its Handler synchronously, one at a time, in the
// order the feed produced them. There is no reconnect: when the subscription
// drops, Subscribe returns an error and delivery stops.
package changefeed

import (
	"context"
	"errors"

	"teamrelay/internal/domain"
)

var (
	ErrSubscriptionClosed = errors.New("change feed subscription closed")
	ErrAlreadySubscribed  = errors.New("change feed already subscribed")
)

// Filter selects which changes the subscription receives
type Filter struct {
	Event  string // INSERT|UPDATE|DELETE|*
	Schema string
	Table  string
}

func (f Filter) Match(ev *domain.ChangeEvent) bool {
	if ev == nil {
		return false
	}
	if f.Event != "" && f.Event != "*" && f.Event != ev.Type {
		return false
	}
	if f.Schema != "" && f.Schema != ev.Schema {
		return false
	}
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	return true
}

type Handler func(ctx context.Context, ev *domain.ChangeEvent)

type Source interface {
	// Subscribe blocks until ctx is done (returns nil) or the subscription fails
	Subscribe(ctx context.Context, f Filter, h Handler) error
	// Ready true while subscribed
	Ready() bool
}
