// Package metrics exposes Prometheus metrics for the moderation core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics
var (
	GatewayEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_gateway_events_total",
		Help: "Total number of gateway events processed",
	}, []string{"type"})

	GatewayConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_gateway_connection_state",
		Help: "Gateway connection state (1=connected, 0=disconnected)",
	})

	GatewayErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_gateway_errors_total",
		Help: "Total number of gateway processing errors",
	})

	GatewayHandlersInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_gateway_handlers_inflight",
		Help: "Number of gateway event handlers currently running",
	})
)

// Enforcement metrics
var (
	EnforcementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_enforcements_total",
		Help: "Blacklist enforcement outcomes",
	}, []string{"outcome"})

	SpamOffensesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_spam_offenses_total",
		Help: "Invite-spam offenses by handling branch",
	}, []string{"branch"})

	PropagationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_propagation_total",
		Help: "Per-server propagation call outcomes",
	}, []string{"mode", "outcome"})
)

// Business metrics (gauges updated periodically by collector)
var (
	BlacklistSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_blacklist_size",
		Help: "Number of users on the shared blacklist",
	})

	ConnectedServers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_connected_servers",
		Help: "Number of currently connected servers",
	})

	SuspiciousUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_suspicious_users",
		Help: "Number of users with an open suspicion record",
	})
)
