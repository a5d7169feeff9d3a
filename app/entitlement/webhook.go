package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
)

// SubscriptionFetcher loads a subscription from Stripe by id.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// ApplyWebhookEvent projects a verified Stripe event onto the subscription
// record. Re-applying an event leaves the record unchanged.
func (r *Resolver) ApplyWebhookEvent(ctx context.Context, event stripe.Event) error {
	if event.ID != "" {
		done, err := r.store.EventProcessed(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("entitlement: event lookup %s: %w", event.ID, err)
		}
		if done {
			log.WithField("event_id", event.ID).Debug("stripe event already processed")
			return nil
		}
	}

	if event.Data == nil {
		return fmt.Errorf("entitlement: event %s has no data", event.ID)
	}
	sourceTime := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		sourceTime = r.now().UTC()
	}

	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = r.applyCheckoutCompleted(ctx, event.Data.Raw, sourceTime)
	case "customer.subscription.created", "customer.subscription.updated":
		err = r.applySubscription(ctx, event.Data.Raw, sourceTime, false)
	case "customer.subscription.deleted":
		err = r.applySubscription(ctx, event.Data.Raw, sourceTime, true)
	default:
		// other event types are acknowledged but ignored
	}
	if err != nil {
		return err
	}

	if event.ID != "" {
		if err := r.store.RecordEvent(ctx, event.ID, string(event.Type)); err != nil {
			return fmt.Errorf("entitlement: record event %s: %w", event.ID, err)
		}
	}
	return nil
}

func (r *Resolver) applyCheckoutCompleted(ctx context.Context, raw json.RawMessage, sourceTime time.Time) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return fmt.Errorf("entitlement: decode checkout session: %w", err)
	}

	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["user_id"]
	}
	if userID == "" {
		log.WithField("session_id", sess.ID).Warn("checkout session without user reference")
		return nil
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	if customerID != "" {
		if err := r.store.LinkCustomer(ctx, userID, customerID); err != nil {
			return fmt.Errorf("entitlement: link customer %s: %w", customerID, err)
		}
	}

	if sess.Subscription == nil || sess.Subscription.ID == "" {
		return nil
	}
	if r.subs == nil {
		log.WithField("session_id", sess.ID).Warn("stripe not configured, subscription left for its own event")
		return nil
	}
	sub, err := r.subs.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("entitlement: fetch subscription %s: %w", sess.Subscription.ID, err)
	}
	return r.upsertStripe(ctx, userID, sub, sourceTime, false)
}

func (r *Resolver) applySubscription(ctx context.Context, raw json.RawMessage, sourceTime time.Time, deleted bool) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("entitlement: decode subscription: %w", err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	userID := ""
	if customerID != "" {
		id, err := r.store.UserIDByCustomer(ctx, customerID)
		if err != nil {
			return fmt.Errorf("entitlement: resolve customer %s: %w", customerID, err)
		}
		userID = id
	}
	if userID == "" {
		userID = sub.Metadata["user_id"]
	}
	if userID == "" {
		log.WithFields(log.Fields{"customer_id": customerID, "subscription_id": sub.ID}).
			Warn("subscription event for unknown customer")
		return nil
	}
	return r.upsertStripe(ctx, userID, &sub, sourceTime, deleted)
}

func (r *Resolver) upsertStripe(ctx context.Context, userID string, sub *stripe.Subscription, sourceTime time.Time, deleted bool) error {
	rec := FromStripeSubscription(userID, sub, sourceTime)
	if deleted {
		rec.Status = models.StatusCanceled
	}
	applied, err := r.store.UpsertSubscription(ctx, rec)
	if err != nil {
		return fmt.Errorf("entitlement: upsert %s: %w", userID, err)
	}
	if !applied {
		log.WithFields(log.Fields{"user_id": userID, "subscription_id": sub.ID}).
			Info("stale stripe event, newer subscription state already stored")
	}
	return nil
}

// FromStripeSubscription maps a Stripe subscription to the local record.
// Provider specific statuses such as past_due are kept verbatim.
func FromStripeSubscription(userID string, sub *stripe.Subscription, sourceTime time.Time) models.Subscription {
	rec := models.Subscription{
		UserID:               userID,
		Status:               models.SubscriptionStatus(sub.Status),
		Provider:             models.ProviderStripe,
		StripeSubscriptionID: sub.ID,
		SourceUpdatedAt:      sourceTime,
	}
	if rec.Status == "" {
		rec.Status = models.StatusInactive
	}
	if sub.Customer != nil {
		rec.StripeCustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		rec.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		rec.CurrentPeriodEnd = &end
	}
	return rec
}
