package app

import (
	"context"
	"fmt"

	"github.com/buildbuddy/credits-service/internal/domain"
	"github.com/buildbuddy/credits-service/pkg/clerkclient"
)

// MetadataDirectory reads and writes user metadata in the identity directory.
type MetadataDirectory interface {
	Directory
	UpdatePublicMetadata(ctx context.Context, userID string, metadata map[string]interface{}) error
}

// UsageReader resolves the caller's current-period record.
type UsageReader interface {
	GetCurrentUsage(ctx context.Context, userID string) (*domain.UsageRecord, error)
}

// CreditSync is the response of a manual credit sync.
type CreditSync struct {
	Success  bool             `json:"success"`
	Usage    CreditBalance    `json:"usage"`
	Metadata MetadataSnapshot `json:"metadata"`
}

// CreditBalance is the short usage projection returned by a sync.
type CreditBalance struct {
	CreditsUsed      int `json:"creditsUsed"`
	CreditsLimit     int `json:"creditsLimit"`
	CreditsRemaining int `json:"creditsRemaining"`
}

// MetadataSnapshot echoes the directory metadata the sync was based on.
type MetadataSnapshot struct {
	Public  map[string]interface{} `json:"public"`
	Private map[string]interface{} `json:"private"`
}

// SubscriptionService exposes the user-initiated subscription operations.
type SubscriptionService struct {
	directory MetadataDirectory
	usage     UsageReader
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(directory MetadataDirectory, usage UsageReader) *SubscriptionService {
	return &SubscriptionService{directory: directory, usage: usage}
}

// SyncCredits re-reads the directory user and the current usage, letting the self-healing
// read path correct the cached limit.
func (s *SubscriptionService) SyncCredits(ctx context.Context, userID string) (*CreditSync, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load directory user %s: %w", userID, err)
	}

	usage, err := s.usage.GetCurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &CreditSync{
		Success: true,
		Usage: CreditBalance{
			CreditsUsed:      usage.CreditsUsed,
			CreditsLimit:     usage.CreditsLimit,
			CreditsRemaining: usage.CreditsRemaining(),
		},
		Metadata: metadataSnapshot(user),
	}, nil
}

// UpdateSubscription records the chosen plan in the directory. The ledger follows through
// the user.updated webhook or the next read.
func (s *SubscriptionService) UpdateSubscription(ctx context.Context, userID string, plan string) (domain.PlanTier, error) {
	if userID == "" {
		return "", domain.ErrUnauthorized
	}

	tier, ok := domain.ParsePlanTier(plan)
	if !ok {
		return "", &domain.ValidationError{Field: "plan", Message: "Invalid plan"}
	}

	err := s.directory.UpdatePublicMetadata(ctx, userID, map[string]interface{}{
		domain.SubscriptionPlanKey: string(tier),
	})
	if err != nil {
		return "", fmt.Errorf("update subscription metadata for user %s: %w", userID, err)
	}
	return tier, nil
}

func metadataSnapshot(user *clerkclient.User) MetadataSnapshot {
	snapshot := MetadataSnapshot{
		Public:  map[string]interface{}{},
		Private: map[string]interface{}{},
	}
	if user == nil {
		return snapshot
	}
	if user.PublicMetadata != nil {
		snapshot.Public = user.PublicMetadata
	}
	if user.PrivateMetadata != nil {
		snapshot.Private = user.PrivateMetadata
	}
	return snapshot
}
