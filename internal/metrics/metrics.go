// Package metrics exposes Prometheus counters for the delivery pipeline.
// They mirror the persisted stats record but reset with the process, which is
// fine for rate-style dashboards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Sent           prometheus.Counter
	Failed         prometheus.Counter
	Broadcasts     prometheus.Counter
	Autoposts      prometheus.Counter
	Deletes        prometheus.Counter
	DeleteFailures prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sent: f.NewCounter(prometheus.CounterOpts{
			Name: "adzbot_messages_sent_total",
			Help: "Messages successfully sent to channels.",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "adzbot_messages_failed_total",
			Help: "Per-channel send failures.",
		}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "adzbot_broadcasts_total",
			Help: "Manual broadcast deliveries.",
		}),
		Autoposts: f.NewCounter(prometheus.CounterOpts{
			Name: "adzbot_autoposts_total",
			Help: "Scheduled autopost deliveries.",
		}),
		Deletes: f.NewCounter(prometheus.CounterOpts{
			Name: "adzbot_deletes_total",
			Help: "Messages deleted by the sweeper.",
		}),
		DeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "adzbot_delete_failures_total",
			Help: "Delete attempts that failed (records are still dropped).",
		}),
	}
}

// Nop returns metrics bound to a throwaway registry, for tests and for
// callers that don't serve /metrics.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
