// Package models defines subscription status and profile fields.
package models

import "time"

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusInactive SubscriptionStatus = "inactive"
)

// Entitled reports whether the status grants Pro access.
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

type Provider string

const (
	ProviderStripe     Provider = "stripe"
	ProviderRevenueCat Provider = "revenuecat"
)

type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// Subscription is the single entitlement record per user. Both billing
// providers write to it; SourceUpdatedAt orders their writes.
type Subscription struct {
	UserID               string             `db:"user_id"`
	Status               SubscriptionStatus `db:"status"`
	Provider             Provider           `db:"provider"`
	PriceID              string             `db:"price_id"`
	StripeCustomerID     string             `db:"stripe_customer_id"`
	StripeSubscriptionID string             `db:"stripe_subscription_id"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end"`
	SourceUpdatedAt      time.Time          `db:"source_updated_at"`
	UpdatedAt            time.Time          `db:"updated_at"`
}

func (s *Subscription) Plan() Plan {
	if s != nil && s.Status.Entitled() {
		return PlanPro
	}
	return PlanFree
}

// Profile links an authenticated user to billing identifiers.
type Profile struct {
	UserID           string    `db:"user_id"`
	Email            string    `db:"email"`
	StripeCustomerID string    `db:"stripe_customer_id"`
	LastSeenAt       time.Time `db:"last_seen_at"`
}
