package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/buildbuddy/credits-service/internal/domain"
	"github.com/buildbuddy/credits-service/internal/metrics"
)

// LimitUpdater overwrites the current period's credit limit for a user.
type LimitUpdater interface {
	UpdateCreditLimit(ctx context.Context, userID string, tier domain.PlanTier) (*domain.UsageRecord, error)
}

// ReconcileResult describes what a verified webhook did to the ledger.
type ReconcileResult struct {
	Handled bool
	UserID  string
	Signal  string
	Tier    domain.PlanTier
}

// Reconciler applies verified subscription lifecycle events to the credit ledger.
type Reconciler struct {
	usage   LimitUpdater
	logger  *slog.Logger
	metrics metrics.CreditsMetrics
}

// NewReconciler creates a reconciler that pushes plan changes into usage.
func NewReconciler(usage LimitUpdater, logger *slog.Logger, m metrics.CreditsMetrics) *Reconciler {
	return &Reconciler{usage: usage, logger: logger, metrics: m}
}

// Reconcile extracts the subject and plan signal from a verified event and syncs the
// subject's credit limit. Events outside the allow-list are ignored without error.
func (r *Reconciler) Reconcile(ctx context.Context, event domain.ClerkWebhookEvent) (ReconcileResult, error) {
	label := webhookLabel(event.Type)
	if !domain.ReconcilableEvents[event.Type] {
		r.metrics.IncWebhook(label, metrics.WebhookIgnored)
		r.logger.Info("ignoring webhook event", "event_type", event.Type)
		return ReconcileResult{}, nil
	}

	userID := subjectOf(event)
	if userID == "" {
		r.metrics.IncWebhook(label, metrics.WebhookFailed)
		return ReconcileResult{}, domain.ErrMissingSubject
	}

	signal := firstNonEmpty(event.Data, planSignalExtractors)
	tier := ClassifyPlanSignal(signal)

	if _, err := r.usage.UpdateCreditLimit(ctx, userID, tier); err != nil {
		r.metrics.IncWebhook(label, metrics.WebhookFailed)
		return ReconcileResult{}, fmt.Errorf("reconcile %s for user %s: %w", event.Type, userID, err)
	}

	r.metrics.IncWebhook(label, metrics.WebhookApplied)
	r.logger.Info("reconciled plan from webhook",
		"event_type", event.Type,
		"user_id", userID,
		"plan_signal", signal,
		"tier", tier,
		"credits_limit", tier.CreditLimit(),
	)
	return ReconcileResult{Handled: true, UserID: userID, Signal: signal, Tier: tier}, nil
}

// webhookLabel bounds the metric label to the allow-list; anything else is "other".
func webhookLabel(eventType string) string {
	if domain.ReconcilableEvents[eventType] {
		return eventType
	}
	return "other"
}

// ClassifyPlanSignal maps any signal containing "pro" (case-insensitive) to the pro tier.
func ClassifyPlanSignal(signal string) domain.PlanTier {
	if strings.Contains(strings.ToLower(signal), string(domain.PlanPro)) {
		return domain.PlanPro
	}
	return domain.PlanFree
}

type fieldExtractor func(data map[string]interface{}) string

// subjectExtractors locate the user id; billing and membership events nest it.
var subjectExtractors = []fieldExtractor{
	func(data map[string]interface{}) string { return stringAt(data, "payer", "user_id") },
	func(data map[string]interface{}) string { return stringAt(data, "public_user_data", "user_id") },
	func(data map[string]interface{}) string { return stringAt(data, "user_id") },
}

// subjectOf returns the event's user id. data.id names the user only on user.* events;
// on billing and membership events it is the subscription or membership id.
func subjectOf(event domain.ClerkWebhookEvent) string {
	if userID := firstNonEmpty(event.Data, subjectExtractors); userID != "" {
		return userID
	}
	if strings.HasPrefix(event.Type, "user.") {
		return stringAt(event.Data, "id")
	}
	return ""
}

// planSignalExtractors are tried in order; the first non-empty signal wins.
var planSignalExtractors = []fieldExtractor{
	planFromPublicMetadata,
	planFromPrivateMetadata,
	planFromTopLevelField,
	planFromActiveSubscription,
}

func planFromPublicMetadata(data map[string]interface{}) string {
	return stringAt(data, "public_metadata", domain.SubscriptionPlanKey)
}

func planFromPrivateMetadata(data map[string]interface{}) string {
	return stringAt(data, "private_metadata", domain.SubscriptionPlanKey)
}

func planFromTopLevelField(data map[string]interface{}) string {
	if plan := stringAt(data, "plan"); plan != "" {
		return plan
	}
	if plan := stringAt(data, "plan", "name"); plan != "" {
		return plan
	}
	return stringAt(data, "plan", "slug")
}

func planFromActiveSubscription(data map[string]interface{}) string {
	for _, key := range []string{"subscriptions", "items"} {
		entries, ok := data[key].([]interface{})
		if !ok {
			continue
		}
		for _, entry := range entries {
			sub, ok := entry.(map[string]interface{})
			if !ok || !strings.EqualFold(stringAt(sub, "status"), "active") {
				continue
			}
			if plan := planFromTopLevelField(sub); plan != "" {
				return plan
			}
		}
	}
	return ""
}

func firstNonEmpty(data map[string]interface{}, extractors []fieldExtractor) string {
	if data == nil {
		return ""
	}
	for _, extract := range extractors {
		if value := extract(data); value != "" {
			return value
		}
	}
	return ""
}

// stringAt walks nested objects and returns the trimmed string at path, or "".
func stringAt(data map[string]interface{}, path ...string) string {
	var current interface{} = data
	for _, key := range path {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = obj[key]
	}
	value, ok := current.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
