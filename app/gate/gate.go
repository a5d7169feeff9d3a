// Package gate decides whether an estimate request may reach the inference provider.
package gate

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ReasonLimitReached is the denial message shown to free callers.
const ReasonLimitReached = "Daily free limit reached"

// Entitlements reports paid-tier status for a user.
type Entitlements interface {
	IsPro(ctx context.Context, userID string) (bool, error)
}

// Usage consumes one unit from a device's daily allowance.
type Usage interface {
	TryConsume(ctx context.Context, deviceID string, limit int) (bool, error)
}

type Decision struct {
	Allowed bool
	IsPro   bool
	Reason  string
}

type Gate struct {
	ents  Entitlements
	usage Usage
	limit int
}

func New(ents Entitlements, usage Usage, limit int) *Gate {
	return &Gate{ents: ents, usage: usage, limit: limit}
}

func (g *Gate) Limit() int { return g.limit }

// Authorize checks entitlement before touching the ledger, so Pro callers
// never consume free units. An entitlement lookup failure falls back to the
// free path; a ledger failure is returned.
func (g *Gate) Authorize(ctx context.Context, userID, deviceID string) (Decision, error) {
	if userID != "" && g.ents != nil {
		pro, err := g.ents.IsPro(ctx, userID)
		if err != nil {
			log.WithFields(log.Fields{"user_id": userID, "err": err}).Warn("entitlement lookup failed, applying free limit")
		} else if pro {
			return Decision{Allowed: true, IsPro: true}, nil
		}
	}

	ok, err := g.usage.TryConsume(ctx, deviceID, g.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("gate: %w", err)
	}
	if !ok {
		return Decision{Allowed: false, Reason: ReasonLimitReached}, nil
	}
	return Decision{Allowed: true}, nil
}
