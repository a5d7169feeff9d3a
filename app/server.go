// Package app wires the QuickCalories HTTP API for both local and Lambda execution.
package app

import (
	"context"
	"time"

	"github.com/jdiaz1993/quickcalories/app/config"
	"github.com/jdiaz1993/quickcalories/app/estimator"
	"github.com/jdiaz1993/quickcalories/app/events"
	"github.com/jdiaz1993/quickcalories/app/gate"
	"github.com/jdiaz1993/quickcalories/app/history"
	"github.com/jdiaz1993/quickcalories/app/models"
	"github.com/jdiaz1993/quickcalories/auth"
)

// EntitlementService answers Pro questions for the handlers.
type EntitlementService interface {
	IsPro(ctx context.Context, userID string) (bool, error)
	Status(ctx context.Context, userID string) (models.Subscription, bool, error)
	ReconcileFromRemote(ctx context.Context, userID string) (models.Subscription, error)
}

// EstimateStore is the per-user history persistence.
type EstimateStore interface {
	Insert(ctx context.Context, rec models.EstimateRecord) (models.EstimateRecord, error)
	List(ctx context.Context, userID string, f history.Filter) ([]models.EstimateRecord, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
	DayTotals(ctx context.Context, userID string, from, to time.Time) (models.Macros, int, error)
	GetGoal(ctx context.Context, userID string) (models.Goal, bool, error)
	PutGoal(ctx context.Context, g models.Goal) (models.Goal, error)
}

// ProfileStore links users to their Stripe customer.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, userID, email string) error
	GetProfile(ctx context.Context, userID string) (models.Profile, bool, error)
	CustomerIDByUser(ctx context.Context, userID string) (string, error)
	LinkCustomer(ctx context.Context, userID, customerID string) error
}

type BarcodeLookup interface {
	Lookup(ctx context.Context, code string) (models.BarcodeResult, error)
}

// UsageCounter reads a device's free-tier bucket without consuming it.
type UsageCounter interface {
	Used(ctx context.Context, deviceID string) (int, error)
}

// Deps are the collaborators behind the handlers. Nil members disable the
// endpoints that need them; those endpoints answer 500 "not configured".
type Deps struct {
	Gate         *gate.Gate
	Usage        UsageCounter
	Entitlements EntitlementService
	Estimator    estimator.Provider
	Barcode      BarcodeLookup
	History      EstimateStore
	Profiles     ProfileStore
	Billing      BillingGateway
	Dispatcher   events.Dispatcher
	Verifier     *auth.Verifier
	Metrics      *Metrics
}

// Server holds the handlers and the configuration they read.
type Server struct {
	Deps
	cfg *config.Config
	loc *time.Location
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Server{Deps: deps, cfg: cfg, loc: loc}, nil
}
