package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// change events by filter result: notified|suppressed|ignored|invalid
	ChangeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamrelay",
		Name:      "change_events_total",
		Help:      "Change events received from the change feed, by filter result.",
	}, []string{"result"})

	// notify attempts by status: sent|failed|suppressed
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamrelay",
		Name:      "notifications_total",
		Help:      "Notification attempts by outcome.",
	}, []string{"status"})

	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "teamrelay",
		Name:      "mail_send_seconds",
		Help:      "Duration of outbound mail transport calls.",
		Buckets:   prometheus.DefBuckets,
	})

	// journal rows by result: written|failed|dropped
	JournalRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamrelay",
		Name:      "journal_rows_total",
		Help:      "Notification records handed to the clickhouse journal.",
	}, []string{"result"})

	SubscriptionUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "teamrelay",
		Name:      "subscription_up",
		Help:      "1 while the change feed subscription is joined.",
	})
)

func Handler() http.Handler {
	h := promhttp.Handler()
	return h
}
