// Package entitlement answers whether a user is on the paid tier and keeps the
// subscription projection current from Stripe webhooks and RevenueCat polls.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrRemoteUnavailable marks a retryable failure of the remote entitlement service.
	ErrRemoteUnavailable = errors.New("entitlement: remote service unavailable")
	// ErrNotConfigured is returned when a provider secret is missing.
	ErrNotConfigured = errors.New("entitlement: provider not configured")
)

// Store is the durable side of the resolver.
type Store interface {
	GetSubscription(ctx context.Context, userID string) (models.Subscription, bool, error)
	// UpsertSubscription writes sub unless the stored row has a newer SourceUpdatedAt.
	// It reports whether the row was written.
	UpsertSubscription(ctx context.Context, sub models.Subscription) (bool, error)
	UserIDByCustomer(ctx context.Context, customerID string) (string, error)
	LinkCustomer(ctx context.Context, userID, customerID string) error
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	RecordEvent(ctx context.Context, eventID, eventType string) error
}

// Remote fetches the current entitlement for a user from an on-demand source.
type Remote interface {
	FetchEntitlement(ctx context.Context, userID string) (RemoteEntitlement, error)
}

// RemoteEntitlement is the slice of a remote subscriber record the resolver needs.
type RemoteEntitlement struct {
	Present   bool
	ExpiresAt *time.Time
}

// Active reports whether the entitlement is present and not expired at now.
func (r RemoteEntitlement) Active(now time.Time) bool {
	if !r.Present {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

type Resolver struct {
	store  Store
	remote Remote
	subs   SubscriptionFetcher
	now    func() time.Time
}

// New builds a resolver. remote and subs may be nil when the matching
// provider is not configured.
func New(store Store, remote Remote, subs SubscriptionFetcher) *Resolver {
	return &Resolver{store: store, remote: remote, subs: subs, now: time.Now}
}

// WithClock replaces the time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// IsPro reports whether userID currently holds an active or trialing subscription.
// An empty id or a missing record is not an error.
func (r *Resolver) IsPro(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	sub, ok, err := r.store.GetSubscription(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("entitlement: lookup %s: %w", userID, err)
	}
	return ok && sub.Status.Entitled(), nil
}

// Status returns the stored subscription record for userID, if any.
func (r *Resolver) Status(ctx context.Context, userID string) (models.Subscription, bool, error) {
	if userID == "" {
		return models.Subscription{}, false, nil
	}
	return r.store.GetSubscription(ctx, userID)
}

// ReconcileFromRemote polls the remote entitlement source and projects the
// result onto the local record. An inactive remote result only downgrades
// rows RevenueCat owns; an entitled row from Stripe is returned unchanged.
func (r *Resolver) ReconcileFromRemote(ctx context.Context, userID string) (models.Subscription, error) {
	if r.remote == nil {
		return models.Subscription{}, ErrNotConfigured
	}
	ent, err := r.remote.FetchEntitlement(ctx, userID)
	if err != nil {
		return models.Subscription{}, err
	}

	now := r.now()
	if !ent.Active(now) {
		// RevenueCat only knows about store purchases, so its absence says
		// nothing about an entitlement another provider granted
		cur, ok, err := r.store.GetSubscription(ctx, userID)
		if err != nil {
			return models.Subscription{}, fmt.Errorf("entitlement: lookup %s: %w", userID, err)
		}
		if ok && cur.Status.Entitled() && cur.Provider != models.ProviderRevenueCat {
			log.WithFields(log.Fields{"user_id": userID, "provider": cur.Provider}).
				Info("revenuecat reports no entitlement, keeping subscription from other provider")
			return cur, nil
		}
	}

	sub := models.Subscription{
		UserID:           userID,
		Status:           models.StatusInactive,
		Provider:         models.ProviderRevenueCat,
		CurrentPeriodEnd: ent.ExpiresAt,
		SourceUpdatedAt:  now,
	}
	if ent.Active(now) {
		sub.Status = models.StatusActive
	}

	applied, err := r.store.UpsertSubscription(ctx, sub)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("entitlement: upsert %s: %w", userID, err)
	}
	if !applied {
		log.WithField("user_id", userID).Info("revenuecat result older than stored subscription, keeping stored row")
	}
	return sub, nil
}
