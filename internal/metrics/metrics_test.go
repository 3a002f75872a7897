package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCreditsMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewCreditsMetrics(registry).(*creditsMetrics)

	m.IncCreditsConsumed("project.create", 10)
	m.IncCreditsConsumed("project.create", 10)
	m.IncCreditsConsumed("message.send", 5)
	m.IncInsufficientCredits("message.send")
	m.IncPlanSync(PlanSyncWebhook, "pro")
	m.IncWebhook("user.updated", WebhookApplied)
	m.IncWebhook("ping", WebhookIgnored)

	if got := testutil.ToFloat64(m.creditsConsumed.WithLabelValues("project.create")); got != 20 {
		t.Fatalf("expected 20 project credits, got %v", got)
	}
	if got := testutil.ToFloat64(m.creditsConsumed.WithLabelValues("message.send")); got != 5 {
		t.Fatalf("expected 5 message credits, got %v", got)
	}
	if got := testutil.ToFloat64(m.insufficientCredits.WithLabelValues("message.send")); got != 1 {
		t.Fatalf("expected one insufficient credit event, got %v", got)
	}
	if got := testutil.ToFloat64(m.planSyncs.WithLabelValues(PlanSyncWebhook, "pro")); got != 1 {
		t.Fatalf("expected one webhook plan sync, got %v", got)
	}
	if got := testutil.CollectAndCount(m.webhooks); got != 2 {
		t.Fatalf("expected two webhook series, got %d", got)
	}
}

func TestNoopMetrics(t *testing.T) {
	m := Noop()
	m.IncCreditsConsumed("project.create", 10)
	m.IncPlanLookup(LookupFailed)
}
