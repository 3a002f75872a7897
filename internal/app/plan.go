package app

import (
	"context"
	"log/slog"

	"github.com/buildbuddy/credits-service/internal/domain"
	"github.com/buildbuddy/credits-service/internal/metrics"
	"github.com/buildbuddy/credits-service/pkg/clerkclient"
)

// Directory is the external identity directory holding subscription metadata.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*clerkclient.User, error)
}

// PlanResolver derives a user's plan tier from directory metadata.
type PlanResolver struct {
	directory Directory
	logger    *slog.Logger
	metrics   metrics.CreditsMetrics
}

// NewPlanResolver creates a plan resolver backed by the given directory.
func NewPlanResolver(directory Directory, logger *slog.Logger, m metrics.CreditsMetrics) *PlanResolver {
	return &PlanResolver{directory: directory, logger: logger, metrics: m}
}

// ResolvePlan returns pro only when public_metadata.subscription_plan is exactly "pro".
// Lookup failures fall back to the free tier and are logged, never returned.
func (p *PlanResolver) ResolvePlan(ctx context.Context, userID string) domain.PlanTier {
	user, err := p.directory.GetUser(ctx, userID)
	if err != nil {
		p.metrics.IncPlanLookup(metrics.LookupFailed)
		p.logger.Warn("plan lookup failed, defaulting to free tier", "user_id", userID, "error", err)
		return domain.PlanFree
	}
	p.metrics.IncPlanLookup(metrics.LookupOK)

	if user == nil || user.PublicMetadata == nil {
		return domain.PlanFree
	}
	if plan, ok := user.PublicMetadata[domain.SubscriptionPlanKey].(string); ok && plan == string(domain.PlanPro) {
		return domain.PlanPro
	}
	return domain.PlanFree
}
