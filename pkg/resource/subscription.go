package resource

import (
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
)

// SubscriptionStatus mirrors the billing provider's state for a plan
// subscription, kept as a durable local record's "billing
// providers are external collaborators whose contracts only are specified".
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "Active"
	SubscriptionPastDue  SubscriptionStatus = "PastDue"
	SubscriptionCanceled SubscriptionStatus = "Canceled"
)

// Subscription binds an org to a billing plan at an external provider.
type Subscription struct {
	ID          id.SubscriptionID
	OrgID       id.OrgID
	PlanKey     string
	ExternalRef string // the billing provider's own subscription id
	Status      SubscriptionStatus
	DeletedAt   *time.Time
	CreatedAt   time.Time
}
