/**
 * @description
 * This file contains the credit ledger business logic. The UsageService owns the
 * credit lifecycle: resolving the current billing period, keeping the cached
 * credit limit in line with the user's plan, checking balances and debiting.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buildbuddy/credits-service/internal/domain"
	"github.com/buildbuddy/credits-service/internal/metrics"
	"github.com/buildbuddy/credits-service/internal/store"
)

// Actions that debit credits.
const (
	ActionCreateProject = "project.create"
	ActionSendMessage   = "message.send"
	ActionUnspecified   = "unspecified"
)

// LedgerStore defines the credit ledger operations the usage service needs.
type LedgerStore interface {
	FindUsageForPeriod(ctx context.Context, userID string, periodStart time.Time) (*domain.UsageRecord, error)
	CreateUsage(ctx context.Context, usage *domain.UsageRecord) (*domain.UsageRecord, error)
	IncrementCreditsUsed(ctx context.Context, usageID string, cost int) (*domain.UsageRecord, error)
	UpdateCreditsLimit(ctx context.Context, usageID string, limit int) (*domain.UsageRecord, error)
}

// TierResolver resolves a user's current plan tier.
type TierResolver interface {
	ResolvePlan(ctx context.Context, userID string) domain.PlanTier
}

// UsageService provides the business logic for credit metering.
type UsageService struct {
	ledger  LedgerStore
	plans   TierResolver
	logger  *slog.Logger
	metrics metrics.CreditsMetrics
	now     func() time.Time
}

// NewUsageService creates a new usage service.
func NewUsageService(ledger LedgerStore, plans TierResolver, logger *slog.Logger, m metrics.CreditsMetrics) *UsageService {
	return &UsageService{
		ledger:  ledger,
		plans:   plans,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// SetClock overrides the time source used to resolve the billing period.
func (s *UsageService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetCurrentUsage resolves the current period's record, creating it with the user's plan
// limit when absent and re-syncing the cached limit with the plan when present.
func (s *UsageService) GetCurrentUsage(ctx context.Context, userID string) (*domain.UsageRecord, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	tier := s.plans.ResolvePlan(ctx, userID)
	usage, err := s.currentRecord(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	return s.syncLimitFromPlan(ctx, usage, tier, metrics.PlanSyncRead)
}

// CheckCredits reports whether the user can afford cost in the current period.
func (s *UsageService) CheckCredits(ctx context.Context, userID string, cost int) (bool, error) {
	usage, err := s.GetCurrentUsage(ctx, userID)
	if err != nil {
		return false, err
	}
	return usage.CanAfford(cost), nil
}

// ConsumeCredits debits cost from the user's current period. The increment is guarded in
// the store, so a debit that loses a race against another one is rejected rather than
// overshooting the limit.
func (s *UsageService) ConsumeCredits(ctx context.Context, userID string, cost int) (*domain.UsageRecord, error) {
	return s.ConsumeCreditsFor(ctx, userID, ActionUnspecified, cost)
}

// ConsumeCreditsFor is ConsumeCredits with the triggering action recorded in metrics.
func (s *UsageService) ConsumeCreditsFor(ctx context.Context, userID string, action string, cost int) (*domain.UsageRecord, error) {
	if cost <= 0 {
		return nil, domain.ErrInvalidCost
	}

	usage, err := s.GetCurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !usage.CanAfford(cost) {
		s.metrics.IncInsufficientCredits(action)
		return nil, &domain.InsufficientCreditsError{Required: cost, Remaining: usage.CreditsRemaining()}
	}

	updated, err := s.ledger.IncrementCreditsUsed(ctx, usage.ID, cost)
	if err != nil {
		if !errors.Is(err, store.ErrCreditLimitExceeded) {
			return nil, fmt.Errorf("debit credits for user %s: %w", userID, err)
		}
		s.metrics.IncInsufficientCredits(action)
		remaining := 0
		if fresh, findErr := s.ledger.FindUsageForPeriod(ctx, userID, usage.PeriodStart); findErr == nil {
			remaining = fresh.CreditsRemaining()
		}
		s.logger.Info("concurrent debit rejected by ledger guard", "user_id", userID, "cost", cost, "remaining", remaining)
		return nil, &domain.InsufficientCreditsError{Required: cost, Remaining: remaining}
	}

	s.metrics.IncCreditsConsumed(action, cost)
	return updated, nil
}

// UpdateCreditLimit overwrites the current period's limit with the tier's value. It is
// driven by the webhook path, so the directory is not consulted.
func (s *UsageService) UpdateCreditLimit(ctx context.Context, userID string, tier domain.PlanTier) (*domain.UsageRecord, error) {
	if userID == "" {
		return nil, domain.ErrMissingSubject
	}

	usage, err := s.currentRecord(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	return s.syncLimitFromPlan(ctx, usage, tier, metrics.PlanSyncWebhook)
}

// GetUserUsageStats returns the display projection, or nil for an unauthenticated caller.
func (s *UsageService) GetUserUsageStats(ctx context.Context, userID string) (*domain.UsageStats, error) {
	if userID == "" {
		return nil, nil
	}

	usage, err := s.GetCurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.NewUsageStats(usage), nil
}

// currentRecord finds the record for the current period or creates it with tier's limit.
// A concurrent create for the same period resolves to the row that won.
func (s *UsageService) currentRecord(ctx context.Context, userID string, tier domain.PlanTier) (*domain.UsageRecord, error) {
	periodStart, periodEnd := domain.BillingPeriod(s.now())

	usage, err := s.ledger.FindUsageForPeriod(ctx, userID, periodStart)
	if err == nil {
		return usage, nil
	}
	if !errors.Is(err, store.ErrUsageNotFound) {
		return nil, fmt.Errorf("find usage for user %s: %w", userID, err)
	}

	usage, err = s.ledger.CreateUsage(ctx, &domain.UsageRecord{
		UserID:       userID,
		CreditsUsed:  0,
		CreditsLimit: tier.CreditLimit(),
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("create usage for user %s: %w", userID, err)
	}
	s.logger.Info("created usage record", "user_id", userID, "tier", tier, "credits_limit", usage.CreditsLimit, "period_start", periodStart)
	return usage, nil
}

// syncLimitFromPlan is the single place the cached credit limit is overwritten.
// CreditsUsed is never touched: plan changes apply immediately without pro-rating.
func (s *UsageService) syncLimitFromPlan(ctx context.Context, usage *domain.UsageRecord, tier domain.PlanTier, source string) (*domain.UsageRecord, error) {
	limit := tier.CreditLimit()
	if usage.CreditsLimit == limit {
		return usage, nil
	}

	updated, err := s.ledger.UpdateCreditsLimit(ctx, usage.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("update credit limit for user %s: %w", usage.UserID, err)
	}
	s.metrics.IncPlanSync(source, string(tier))
	s.logger.Info("synced credit limit from plan",
		"user_id", usage.UserID,
		"source", source,
		"tier", tier,
		"previous_limit", usage.CreditsLimit,
		"credits_limit", updated.CreditsLimit,
	)
	return updated, nil
}
