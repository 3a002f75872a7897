/**
 * @description
 * This file defines the credit ledger domain models for the credits-service.
 * It includes the UsageRecord struct that maps to the `usage` table, the plan
 * tiers with their fixed credit limits, the per-action credit costs, and the
 * calendar-month billing period helper.
 */
package domain

import (
	"math"
	"time"
)

// PlanTier is the entitlement level that determines a user's credit limit.
type PlanTier string

const (
	PlanFree PlanTier = "free"
	PlanPro  PlanTier = "pro"
)

// PlanLimits maps each tier to the number of credits granted per billing period.
var PlanLimits = map[PlanTier]int{
	PlanFree: 50,
	PlanPro:  100,
}

// CreditLimit returns the tier's credit limit, falling back to the free tier for unknown values.
func (t PlanTier) CreditLimit() int {
	if limit, ok := PlanLimits[t]; ok {
		return limit
	}
	return PlanLimits[PlanFree]
}

// ParsePlanTier accepts only the exact tier names.
func ParsePlanTier(raw string) (PlanTier, bool) {
	switch PlanTier(raw) {
	case PlanFree, PlanPro:
		return PlanTier(raw), true
	}
	return "", false
}

// Credit costs charged by the action gateways.
const (
	CreditCostCreateProject = 10
	CreditCostSendMessage   = 5
)

// UsageRecord is the credit ledger row for one user and one billing period.
type UsageRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreditsUsed  int       `json:"credits_used"`
	CreditsLimit int       `json:"credits_limit"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreditsRemaining never goes negative, even after a plan downgrade.
func (u *UsageRecord) CreditsRemaining() int {
	remaining := u.CreditsLimit - u.CreditsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanAfford reports whether a debit of cost fits within the limit.
func (u *UsageRecord) CanAfford(cost int) bool {
	return u.CreditsUsed+cost <= u.CreditsLimit
}

// UsageStats is the read-only projection shown on the usage card.
type UsageStats struct {
	CreditsUsed      int       `json:"creditsUsed"`
	CreditsLimit     int       `json:"creditsLimit"`
	CreditsRemaining int       `json:"creditsRemaining"`
	PercentageUsed   int       `json:"percentageUsed"`
	PeriodStart      time.Time `json:"periodStart"`
	PeriodEnd        time.Time `json:"periodEnd"`
}

// NewUsageStats builds the display projection for a record.
func NewUsageStats(u *UsageRecord) *UsageStats {
	percentage := 0
	if u.CreditsLimit > 0 {
		percentage = int(math.Round(float64(u.CreditsUsed) / float64(u.CreditsLimit) * 100))
	}
	return &UsageStats{
		CreditsUsed:      u.CreditsUsed,
		CreditsLimit:     u.CreditsLimit,
		CreditsRemaining: u.CreditsRemaining(),
		PercentageUsed:   percentage,
		PeriodStart:      u.PeriodStart,
		PeriodEnd:        u.PeriodEnd,
	}
}

// BillingPeriod returns the calendar month containing now, in UTC:
// [first day 00:00:00, last day 23:59:59].
func BillingPeriod(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}
