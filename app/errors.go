package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/jdiaz1993/quickcalories/app/barcode"
	"github.com/jdiaz1993/quickcalories/app/entitlement"
	"github.com/jdiaz1993/quickcalories/app/estimator"
	"github.com/jdiaz1993/quickcalories/app/history"
	"github.com/jdiaz1993/quickcalories/app/ledger"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
)

var (
	errNoDatabase           = errors.New("database not configured")
	errBillingNotConfigured = errors.New("stripe not configured")
	errWebhookNotConfigured = errors.New("stripe webhook secret not configured")
	errNoUsage              = errors.New("usage ledger not configured")
)

// httpError is a failure with a caller-facing status and message.
type httpError struct {
	Status  int
	Message string
}

func (e *httpError) Error() string { return e.Message }

func badRequest(msg string) error {
	return &httpError{Status: http.StatusBadRequest, Message: msg}
}

// statusFor maps an error onto the API taxonomy. The returned message is
// safe to show to callers.
func statusFor(err error) (int, string) {
	var (
		he  *httpError
		up  *estimator.UpstreamError
		rc  *entitlement.RemoteError
		ser *stripe.Error
	)
	switch {
	case errors.As(err, &he):
		return he.Status, he.Message

	case errors.Is(err, estimator.ErrNotConfigured):
		return http.StatusInternalServerError, "OpenAI API key not configured"
	case errors.As(err, &up):
		return up.HTTPStatus(), up.Message
	case errors.Is(err, estimator.ErrNoContent):
		return http.StatusBadGateway, "Invalid response from OpenAI"
	case errors.Is(err, estimator.ErrNotJSON):
		return http.StatusBadGateway, "OpenAI response was not valid JSON"
	case errors.Is(err, estimator.ErrInvalidResponse):
		return http.StatusBadGateway, "OpenAI response missing required estimate fields"

	case errors.Is(err, barcode.ErrInvalidCode):
		return http.StatusBadRequest, "Barcode must be 8-14 digits"
	case errors.Is(err, barcode.ErrNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, barcode.ErrUpstream):
		return http.StatusBadGateway, "Open Food Facts lookup failed"

	case errors.Is(err, history.ErrInvalidID):
		return http.StatusBadRequest, "Invalid estimate id"
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, "Estimate not found"

	case errors.Is(err, entitlement.ErrNotConfigured):
		return http.StatusInternalServerError, "RevenueCat not configured"
	case errors.As(err, &rc):
		// the provider body is logged by respondError, never returned
		return http.StatusBadGateway, "RevenueCat request failed"
	case errors.Is(err, entitlement.ErrRemoteUnavailable):
		return http.StatusBadGateway, "Invalid response from RevenueCat"

	case errors.Is(err, errBillingNotConfigured):
		return http.StatusInternalServerError, "Stripe environment variables are not configured"
	case errors.Is(err, errWebhookNotConfigured):
		return http.StatusInternalServerError, "STRIPE_WEBHOOK_SECRET is not set"
	case errors.As(err, &ser):
		status := ser.HTTPStatusCode
		if status < 400 || status >= 600 {
			status = http.StatusInternalServerError
		}
		if ser.Msg == "" {
			return status, "Stripe error"
		}
		return status, ser.Msg

	case errors.Is(err, errNoDatabase):
		return http.StatusInternalServerError, "Database not configured"
	case errors.Is(err, ledger.ErrStore):
		return http.StatusInternalServerError, "Usage tracking unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, "Upstream request timed out"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// respondError writes {"error": msg} and logs server-side failures.
func respondError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	entry := log.WithFields(log.Fields{
		"path":   c.FullPath(),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.WithError(err).Debug("request rejected")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
