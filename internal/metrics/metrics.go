// ABOUTME: Prometheus collectors for authorization and subscription gate decisions.
// ABOUTME: Registered on the default registry, exposed by /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessDenied counts guard denials by capability.
	AccessDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patron",
		Name:      "access_denied_total",
		Help:      "Permission guard denials by capability.",
	}, []string{"capability"})

	// ProfileLookupDegraded counts role lookups that fell back to defaults.
	// The reason label is "schema" for un-migrated role columns and
	// "error" for any other store failure.
	ProfileLookupDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patron",
		Name:      "profile_lookup_degraded_total",
		Help:      "Role lookups that failed and were replaced with defaults.",
	}, []string{"reason"})

	// WriteBlocked counts mutations refused by the subscription gate.
	WriteBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "patron",
		Name:      "subscription_write_blocked_total",
		Help:      "Mutations refused because the organization subscription does not allow writes.",
	})

	// JobsProcessed counts background jobs by queue and outcome.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patron",
		Name:      "jobs_processed_total",
		Help:      "Background jobs executed by the worker pool.",
	}, []string{"queue", "outcome"})
)
