/**
 * @description
 * This file models the inbound Clerk webhook envelope. The `data` object is kept
 * as a generic map because the plan signal can live in several places depending
 * on the event type (user metadata, a top-level plan field or an embedded
 * subscriptions list).
 */
package domain

// ClerkWebhookEvent is the top-level structure of a webhook payload from Clerk.
type ClerkWebhookEvent struct {
	Type      string                 `json:"type"` // e.g., "user.updated"
	Object    string                 `json:"object"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Event types that carry a plan signal.
const (
	EventUserCreated                   = "user.created"
	EventUserUpdated                   = "user.updated"
	EventSubscriptionCreated           = "subscription.created"
	EventSubscriptionUpdated           = "subscription.updated"
	EventOrganizationMembershipUpdated = "organizationMembership.updated"
)

// ReconcilableEvents is the allow-list of event types that trigger a limit sync.
var ReconcilableEvents = map[string]bool{
	EventUserCreated:                   true,
	EventUserUpdated:                   true,
	EventSubscriptionCreated:           true,
	EventSubscriptionUpdated:           true,
	EventOrganizationMembershipUpdated: true,
}

// SubscriptionPlanKey is the metadata field holding the user's plan name.
const SubscriptionPlanKey = "subscription_plan"
