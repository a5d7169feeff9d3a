package app

import (
	"context"
	"strings"

	"github.com/jdiaz1993/quickcalories/auth"
)

// UpsertUserFromClaims records the authenticated user's profile. It is the
// OnAuthenticated hook of the auth middleware.
func (s *Server) UpsertUserFromClaims(ctx context.Context, claims *auth.Claims) error {
	if s.Profiles == nil {
		return nil
	}
	if claims == nil || claims.Subject == "" {
		return nil
	}
	email := claims.Email
	if email == "" {
		email = readStringClaim(claims.Raw, "email")
	}
	return s.Profiles.UpsertProfile(ctx, claims.Subject, email)
}

func readStringClaim(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	val, ok := raw[key]
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// ensureStripeCustomer returns the user's Stripe customer, creating and
// linking one on first use.
func (s *Server) ensureStripeCustomer(ctx context.Context, userID, email string) (string, error) {
	if s.Profiles == nil {
		return "", errNoDatabase
	}
	customerID, err := s.Profiles.CustomerIDByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if customerID != "" {
		return customerID, nil
	}

	customerID, err = s.Billing.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}
	if err := s.Profiles.LinkCustomer(ctx, userID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}
