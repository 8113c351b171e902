package service

import (
	"context"
	"time"

	"teamrelay/internal/dedupe"
	"teamrelay/internal/domain"
	"teamrelay/internal/mailer"
	"teamrelay/internal/metrics"
	"teamrelay/internal/pubsub"

	"gitlab.com/nevasik7/alerting/logger"
)

// Renderer turns (recipient, team) into a ready message
type Renderer interface {
	Render(recipient, teamName string) (mailer.Message, error)
}

// Journal stores notification records (clickhouse writer)
type Journal interface {
	Record(ctx context.Context, rec domain.NotificationRecord) error
}

// Notifier sends one approval email per (recipient, team) inside the dedup window.
// Send failures are logged and swallowed; nothing is retried
type Notifier struct {
	log       logger.Logger
	deduper   dedupe.Deduper
	renderer  Renderer
	transport mailer.Transport

	// optional sinks
	broadcaster   pubsub.Broadcaster
	notifySubject string
	journal       Journal

	now func() time.Time
}

type NotifierOption func(*Notifier)

func WithBroadcaster(b pubsub.Broadcaster, subject string) NotifierOption {
	return func(n *Notifier) {
		if b != nil && subject != "" {
			n.broadcaster = b
			n.notifySubject = subject
		}
	}
}

func WithJournal(j Journal) NotifierOption {
	return func(n *Notifier) {
		n.journal = j
	}
}

func WithNow(now func() time.Time) NotifierOption {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

func NewNotifier(
	log logger.Logger,
	deduper dedupe.Deduper,
	renderer Renderer,
	transport mailer.Transport,
	opts ...NotifierOption,
) *Notifier {
	if deduper == nil || renderer == nil || transport == nil {
		panic("notifier dependencies cannot be nil")
	}

	n := &Notifier{
		log:       log,
		deduper:   deduper,
		renderer:  renderer,
		transport: transport,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify never returns an error; the status is informational
func (n *Notifier) Notify(ctx context.Context, recipient, teamName string) domain.Status {
	key := domain.MakeDedupKey(recipient, teamName)

	seen, err := n.deduper.Seen(ctx, key)
	if err != nil {
		// fail open
		n.log.Errorf("Dedup check failed for %s, sending anyway: %v", key, err)
	}
	if seen {
		n.log.Infof("Suppressed duplicate notification to %s for team %s", recipient, teamName)
		n.finish(ctx, domain.NewNotificationRecord(recipient, teamName, domain.StatusSuppressed, n.now()))
		return domain.StatusSuppressed
	}

	rec := domain.NewNotificationRecord(recipient, teamName, domain.StatusSent, n.now())

	msg, err := n.renderer.Render(recipient, teamName)
	if err == nil {
		// a started send runs to completion, bounded by the transport timeout only
		start := time.Now()
		err = n.transport.Send(context.WithoutCancel(ctx), msg)
		metrics.SendDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		n.log.Errorf("Error sending email to %s for team %s: %v", recipient, teamName, err)
		rec.Status = domain.StatusFailed
		rec.Error = err.Error()
	} else {
		n.log.Infof("Email sent to %s for team %s", recipient, teamName)
	}

	n.finish(ctx, rec)
	return rec.Status
}

// finish counts and fans out the record; sink errors are not critical
func (n *Notifier) finish(ctx context.Context, rec domain.NotificationRecord) {
	metrics.Notifications.WithLabelValues(string(rec.Status)).Inc()

	if n.broadcaster != nil {
		if err := n.broadcaster.Publish(ctx, n.notifySubject, rec); err != nil {
			n.log.Errorf("Failed to publish notification record %s: %v", rec.ID, err)
		}
	}

	if n.journal != nil {
		if err := n.journal.Record(ctx, rec); err != nil {
			n.log.Errorf("Failed to journal notification record %s: %v", rec.ID, err)
		}
	}
}
