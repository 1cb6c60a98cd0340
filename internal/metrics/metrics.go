// Package metrics registers the Prometheus collectors for login, session
// and data isolation activity with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tenant_auth"

// LoginsTotal counts login outcomes.
// Labels:
//   - login_type: PASSWORD, IAM, OAUTH2
//   - outcome: success or the failure reason code
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts by login type and outcome.",
	},
	[]string{"login_type", "outcome"},
)

// TokenValidationsTotal counts token validations.
// Label:
//   - result: valid, expired, invalid
var TokenValidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_validations_total",
		Help:      "Total number of bearer token validations by result.",
	},
	[]string{"result"},
)

// SessionsEndedTotal counts sessions removed from the registry.
// Label:
//   - reason: evicted, expired, logout
var SessionsEndedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_ended_total",
		Help:      "Total number of sessions removed from the registry by reason.",
	},
	[]string{"reason"},
)

// SessionsActive tracks the number of sessions currently held in the registry.
var SessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of active sessions across all accounts.",
	},
)

// IsolationDecisionsTotal counts tenant scoping decisions.
// Labels:
//   - kind: select, insert, update, delete
//   - decision: scoped, exempt, system, rejected
var IsolationDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "isolation_decisions_total",
		Help:      "Total number of data access statements by tenant scoping decision.",
	},
	[]string{"kind", "decision"},
)

// StatementDuration observes data access statement latency.
// Labels:
//   - kind: select, insert, update, delete
//   - outcome: ok, error
var StatementDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "statement_duration_seconds",
		Help:      "Latency of tenant scoped data access statements.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"kind", "outcome"},
)

// EventsDroppedTotal counts asynchronous event deliveries dropped because the queue was full.
var EventsDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Total number of auth events dropped before reaching async subscribers.",
	},
	[]string{"type"},
)
