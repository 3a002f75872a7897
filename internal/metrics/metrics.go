// Package metrics exposes Prometheus counters for the credit ledger and the
// webhook reconciliation path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook outcomes.
const (
	WebhookRejected = "rejected"
	WebhookIgnored  = "ignored"
	WebhookApplied  = "applied"
	WebhookFailed   = "failed"
)

// Plan sync sources.
const (
	PlanSyncRead    = "read"
	PlanSyncWebhook = "webhook"
)

// Directory lookup outcomes.
const (
	LookupFailed = "failed"
	LookupOK     = "ok"
)

// CreditsMetrics records ledger and reconciliation events.
type CreditsMetrics interface {
	IncCreditsConsumed(action string, credits int)
	IncInsufficientCredits(action string)
	IncPlanSync(source string, tier string)
	IncPlanLookup(outcome string)
	IncWebhook(eventType string, outcome string)
}

type creditsMetrics struct {
	creditsConsumed     *prometheus.CounterVec
	insufficientCredits *prometheus.CounterVec
	planSyncs           *prometheus.CounterVec
	planLookups         *prometheus.CounterVec
	webhooks            *prometheus.CounterVec
}

// NewCreditsMetrics registers the credits-service collectors on registry.
func NewCreditsMetrics(registry *prometheus.Registry) CreditsMetrics {
	factory := promauto.With(registry)
	return &creditsMetrics{
		creditsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_consumed_total",
				Help: "Credits debited from user ledgers",
			},
			[]string{"action"},
		),
		insufficientCredits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_insufficient_total",
				Help: "Debits rejected because the period limit would be exceeded",
			},
			[]string{"action"},
		),
		planSyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_plan_syncs_total",
				Help: "Credit limit overwrites by source and resulting tier",
			},
			[]string{"source", "tier"},
		),
		planLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_plan_lookups_total",
				Help: "Directory plan lookups by outcome",
			},
			[]string{"outcome"},
		),
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_webhooks_total",
				Help: "Subscription webhooks by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
	}
}

func (m *creditsMetrics) IncCreditsConsumed(action string, credits int) {
	m.creditsConsumed.WithLabelValues(action).Add(float64(credits))
}

func (m *creditsMetrics) IncInsufficientCredits(action string) {
	m.insufficientCredits.WithLabelValues(action).Inc()
}

func (m *creditsMetrics) IncPlanSync(source string, tier string) {
	m.planSyncs.WithLabelValues(source, tier).Inc()
}

func (m *creditsMetrics) IncPlanLookup(outcome string) {
	m.planLookups.WithLabelValues(outcome).Inc()
}

func (m *creditsMetrics) IncWebhook(eventType string, outcome string) {
	m.webhooks.WithLabelValues(eventType, outcome).Inc()
}

type noopMetrics struct{}

// Noop returns a CreditsMetrics that records nothing.
func Noop() CreditsMetrics { return noopMetrics{} }

func (noopMetrics) IncCreditsConsumed(string, int) {}
func (noopMetrics) IncInsufficientCredits(string) {}
func (noopMetrics) IncPlanSync(string, string) {}
func (noopMetrics) IncPlanLookup(string) {}
func (noopMetrics) IncWebhook(string, string) {}
