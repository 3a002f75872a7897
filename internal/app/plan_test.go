package app

import (
	"context"
	"errors"
	"testing"

	"github.com/buildbuddy/credits-service/internal/domain"
	"github.com/buildbuddy/credits-service/internal/metrics"
	"github.com/buildbuddy/credits-service/pkg/clerkclient"
)

type stubDirectory struct {
	user *clerkclient.User
	err  error

	getCalls    int
	updated     map[string]interface{}
	updateErr   error
	updatedUser string
}

func (s *stubDirectory) GetUser(_ context.Context, userID string) (*clerkclient.User, error) {
	s.getCalls++
	if s.err != nil {
		return nil, s.err
	}
	if s.user == nil {
		return &clerkclient.User{ID: userID}, nil
	}
	return s.user, nil
}

func (s *stubDirectory) UpdatePublicMetadata(_ context.Context, userID string, metadata map[string]interface{}) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updatedUser = userID
	s.updated = metadata
	return nil
}

func TestResolvePlan(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]interface{}
		err      error
		want     domain.PlanTier
	}{
		{name: "pro", metadata: map[string]interface{}{"subscription_plan": "pro"}, want: domain.PlanPro},
		{name: "free", metadata: map[string]interface{}{"subscription_plan": "free"}, want: domain.PlanFree},
		{name: "missing key", metadata: map[string]interface{}{}, want: domain.PlanFree},
		{name: "case sensitive", metadata: map[string]interface{}{"subscription_plan": "Pro"}, want: domain.PlanFree},
		{name: "non-string value", metadata: map[string]interface{}{"subscription_plan": true}, want: domain.PlanFree},
		{name: "substring is not enough", metadata: map[string]interface{}{"subscription_plan": "pro_monthly"}, want: domain.PlanFree},
		{name: "lookup failure", err: errors.New("directory timeout"), want: domain.PlanFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directory := &stubDirectory{
				user: &clerkclient.User{ID: "user_1", PublicMetadata: tt.metadata},
				err:  tt.err,
			}
			resolver := NewPlanResolver(directory, discardLogger(), metrics.Noop())

			if got := resolver.ResolvePlan(context.Background(), "user_1"); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLookupFailureFallsBackThroughUsage(t *testing.T) {
	ledger := newMemoryLedger()
	resolver := NewPlanResolver(&stubDirectory{err: errors.New("unreachable")}, discardLogger(), metrics.Noop())
	svc := NewUsageService(ledger, resolver, discardLogger(), metrics.Noop())

	usage, err := svc.GetCurrentUsage(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
	if usage.CreditsLimit != 50 {
		t.Fatalf("expected the free limit, got %d", usage.CreditsLimit)
	}
}
