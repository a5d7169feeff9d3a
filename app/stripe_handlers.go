package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jdiaz1993/quickcalories/app/entitlement"
	"github.com/jdiaz1993/quickcalories/app/models"
	"github.com/jdiaz1993/quickcalories/auth"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CreateCheckoutSession starts a Stripe Checkout Session for the authenticated user.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	if s.Billing == nil || s.cfg.Stripe.PriceID == "" {
		respondError(c, errBillingNotConfigured)
		return
	}
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	ctx := c.Request.Context()
	customerID := ""
	if s.Profiles != nil {
		id, err := s.ensureStripeCustomer(ctx, claims.Subject, claims.Email)
		if err != nil {
			log.WithFields(log.Fields{"user_id": claims.Subject, "err": err}).Error("ensureStripeCustomer failed")
			respondError(c, err)
			return
		}
		customerID = id
	}

	url, err := s.Billing.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     claims.Subject,
		CustomerID: customerID,
		PriceID:    s.cfg.Stripe.PriceID,
		SuccessURL: s.appURL() + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.appURL() + "/pricing",
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if url == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe did not return a checkout URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

type portalRequest struct {
	SessionID string `json:"session_id"`
	Customer  string `json:"customer"`
}

// CreatePortalSession opens the Stripe billing portal. An authenticated caller
// with a stored customer always gets that customer; otherwise it comes from
// the body, then from a checkout session id.
func (s *Server) CreatePortalSession(c *gin.Context) {
	if s.Billing == nil {
		respondError(c, errBillingNotConfigured)
		return
	}
	var req portalRequest
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxJSONBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, badRequest(msgInvalidJSON))
		return
	}

	ctx := c.Request.Context()
	customerID := ""
	if uid := userID(c); uid != "" && s.Profiles != nil {
		id, err := s.Profiles.CustomerIDByUser(ctx, uid)
		if err != nil {
			respondError(c, err)
			return
		}
		customerID = id
	}
	if customerID == "" {
		customerID = strings.TrimSpace(req.Customer)
	}
	if sessionID := strings.TrimSpace(req.SessionID); customerID == "" && sessionID != "" {
		sess, err := s.Billing.GetCheckoutSession(ctx, sessionID)
		if err != nil {
			respondError(c, err)
			return
		}
		if sess.Customer != nil {
			customerID = sess.Customer.ID
		}
	}
	if customerID == "" {
		respondError(c, badRequest("Missing session_id or customer."))
		return
	}

	url, err := s.Billing.CreatePortalSession(ctx, customerID, s.appURL()+"/account")
	if err != nil {
		respondError(c, err)
		return
	}
	if url == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe did not return a portal URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// VerifySession confirms a checkout session was paid for a subscription.
// Every response carries "ok".
func (s *Server) VerifySession(c *gin.Context) {
	fail := func(status int, msg string) {
		c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
	}
	if s.Billing == nil {
		status, msg := statusFor(errBillingNotConfigured)
		fail(status, msg)
		return
	}
	var req portalRequest
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxJSONBody)).Decode(&req); err != nil {
		fail(http.StatusBadRequest, msgInvalidJSON)
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		fail(http.StatusBadRequest, "Missing session_id")
		return
	}

	sess, err := s.Billing.GetCheckoutSession(c.Request.Context(), sessionID)
	if err != nil {
		status, msg := statusFor(err)
		log.WithFields(log.Fields{"session_id": sessionID, "err": err}).Warn("verify session lookup failed")
		fail(status, msg)
		return
	}

	switch {
	case sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid:
		fail(http.StatusForbidden, "Not paid")
		return
	case sess.Mode != stripe.CheckoutSessionModeSubscription:
		fail(http.StatusForbidden, "Not a subscription session")
		return
	case sess.Subscription == nil:
		fail(http.StatusForbidden, "No subscription on session")
		return
	case sess.Status != "" && sess.Status != stripe.CheckoutSessionStatusComplete:
		fail(http.StatusForbidden, "Session not complete")
		return
	}
	if sess.Customer == nil || sess.Customer.ID == "" || sess.Subscription.ID == "" {
		fail(http.StatusInternalServerError, "Missing customer or subscription id")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"customer":     sess.Customer.ID,
		"subscription": sess.Subscription.ID,
	})
}

// StripeWebhook verifies the Stripe signature and hands the event to the
// dispatcher. Once verified the event is always acknowledged with 200.
func (s *Server) StripeWebhook(c *gin.Context) {
	endpointSecret := s.cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		respondError(c, errWebhookNotConfigured)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxJSONBody))
	if err != nil {
		log.WithError(err).Warn("stripe webhook read failed")
		respondError(c, badRequest("Invalid body"))
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		respondError(c, badRequest("Missing stripe-signature"))
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		sigHeader,
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.WithError(err).Info("stripe webhook signature failed")
		respondError(c, badRequest(err.Error()))
		return
	}

	fields := log.Fields{"event_id": event.ID, "event_type": event.Type}
	if s.Dispatcher == nil {
		log.WithFields(fields).Error("no webhook dispatcher configured, dropping event")
	} else if err := s.Dispatcher.Dispatch(c.Request.Context(), event); err != nil {
		s.Metrics.ObserveWebhook(string(event.Type), err)
		log.WithFields(fields).WithError(err).Error("stripe event dispatch failed")
	} else {
		log.WithFields(fields).Debug("stripe event dispatched")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// ProStatus reconciles the caller's entitlement from RevenueCat and returns it.
func (s *Server) ProStatus(c *gin.Context) {
	if s.Entitlements == nil {
		respondError(c, errNoDatabase)
		return
	}
	sub, err := s.Entitlements.ReconcileFromRemote(c.Request.Context(), userID(c))
	if err != nil {
		if errors.Is(err, entitlement.ErrRemoteUnavailable) {
			s.Metrics.upstream("revenuecat")
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"isPro":              sub.Status.Entitled(),
		"current_period_end": formatPeriodEnd(sub.CurrentPeriodEnd),
		"provider":           sub.Provider,
	})
}

// ProStatusPing is the unauthenticated GET on the pro-status route.
func (s *Server) ProStatusPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func formatPeriodEnd(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// subscriptionView is the caller-facing shape of a stored subscription.
func subscriptionView(sub models.Subscription) gin.H {
	return gin.H{
		"status":             sub.Status,
		"provider":           sub.Provider,
		"price_id":           sub.PriceID,
		"current_period_end": formatPeriodEnd(sub.CurrentPeriodEnd),
	}
}
