package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"teamrelay/internal/changefeed"
	"teamrelay/internal/domain"
	"teamrelay/internal/metrics"

	"gitlab.com/nevasik7/alerting/logger"
)

var ErrAlreadyListening = errors.New("relay is already listening")

// Healthy is implemented by dependencies that can be probed for readiness
type Healthy interface {
	Health(ctx context.Context) error
}

// Relay binds the change feed to the notifier.
// It is the only point of orchestration: change event -> filter -> notify
type Relay struct {
	log      logger.Logger
	source   changefeed.Source
	notifier *Notifier
	filter   changefeed.Filter
	deps     map[string]Healthy

	listening atomic.Bool
}

func NewRelay(log logger.Logger, source changefeed.Source, notifier *Notifier, filter changefeed.Filter) *Relay {
	if source == nil || notifier == nil {
		panic("relay dependencies cannot be nil")
	}
	if filter.Event == "" {
		filter.Event = domain.EventUpdate
	}

	return &Relay{
		log:      log,
		source:   source,
		notifier: notifier,
		filter:   filter,
		deps:     make(map[string]Healthy),
	}
}

// AddDependency registers a dependency checked by CheckDependency
func (r *Relay) AddDependency(name string, h Healthy) {
	if h != nil {
		r.deps[name] = h
	}
}

// Start opens the single subscription and blocks until ctx is done or the feed fails
func (r *Relay) Start(ctx context.Context) error {
	if !r.listening.CompareAndSwap(false, true) {
		return ErrAlreadyListening
	}

	r.log.Infof("Listening for %s approval changes...", r.filter.Table)

	if err := r.source.Subscribe(ctx, r.filter, r.HandleChange); err != nil {
		return fmt.Errorf("change feed subscription: %w", err)
	}
	return nil
}

// HandleChange is called synchronously for every event, in feed order
func (r *Relay) HandleChange(ctx context.Context, ev *domain.ChangeEvent) {
	if !r.filter.Match(ev) {
		metrics.ChangeEvents.WithLabelValues("ignored").Inc()
		return
	}

	newRow, oldRow, err := ev.Teams()
	if err != nil {
		metrics.ChangeEvents.WithLabelValues("invalid").Inc()
		r.log.Warnf("Skip change event on %s.%s: %v", ev.Schema, ev.Table, err)
		return
	}

	if !becameApproved(&newRow, &oldRow) {
		metrics.ChangeEvents.WithLabelValues("ignored").Inc()
		return
	}

	recipient := strings.TrimSpace(newRow.ContactPerson)
	if recipient == "" || newRow.Name == "" {
		metrics.ChangeEvents.WithLabelValues("invalid").Inc()
		r.log.Warnf("Approved team without contact_person or name, skip (name=%q)", newRow.Name)
		return
	}

	result := "notified"
	if r.notifier.Notify(ctx, recipient, newRow.Name) == domain.StatusSuppressed {
		result = "suppressed"
	}
	metrics.ChangeEvents.WithLabelValues(result).Inc()
}

// old row only carries the column with REPLICA IDENTITY FULL; without it every approved update counts
func becameApproved(newRow, oldRow *domain.TeamRow) bool {
	if !newRow.Approved() {
		return false
	}
	return !oldRow.Approved()
}

func (r *Relay) Ready() bool {
	return r.listening.Load() && r.source.Ready()
}

// DependencyError lists every failing dependency by name
type DependencyError struct {
	Failing map[string]string
}

func (e *DependencyError) Error() string {
	names := make([]string, 0, len(e.Failing))
	for name := range e.Failing {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Failing[name]))
	}
	return "dependency check failed: " + strings.Join(parts, "; ")
}

func (e *DependencyError) FailingDependencies() map[string]string {
	return e.Failing
}

// CheckDependency returns a *DependencyError when the subscription or any registered dependency is down
func (r *Relay) CheckDependency(ctx context.Context) error {
	failing := make(map[string]string)

	if !r.Ready() {
		failing["change feed"] = "subscription not ready"
	}

	for name, dep := range r.deps {
		if err := dep.Health(ctx); err != nil {
			failing[name] = err.Error()
		}
	}

	if len(failing) > 0 {
		return &DependencyError{Failing: failing}
	}

	r.log.Debugf("All dependency check passed")
	return nil
}
