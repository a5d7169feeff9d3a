package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jdiaz1993/quickcalories/app/config"
	"github.com/jdiaz1993/quickcalories/app/gate"
	"github.com/jdiaz1993/quickcalories/app/history"
	"github.com/jdiaz1993/quickcalories/app/ledger"
	"github.com/jdiaz1993/quickcalories/app/models"
	"github.com/jdiaz1993/quickcalories/auth"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

const (
	testJWTSecret     = "test-secret-at-least-32-bytes-long!!"
	testWebhookSecret = "whsec_test_secret"
	testDevice        = "device-1"
)

type fakeEstimator struct {
	mu    sync.Mutex
	est   models.Estimate
	photo models.PhotoEstimate
	err   error
	calls int
	last  models.EstimateRequest
}

func (f *fakeEstimator) Estimate(_ context.Context, req models.EstimateRequest) (models.Estimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return f.est, f.err
}

func (f *fakeEstimator) EstimatePhoto(context.Context, []byte, string) (models.PhotoEstimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.photo, f.err
}

type fakeEntitlements struct {
	pro          map[string]bool
	sub          models.Subscription
	found        bool
	reconciled   models.Subscription
	reconcileErr error
}

func (f *fakeEntitlements) IsPro(_ context.Context, userID string) (bool, error) {
	return f.pro[userID], nil
}

func (f *fakeEntitlements) Status(context.Context, string) (models.Subscription, bool, error) {
	return f.sub, f.found, nil
}

func (f *fakeEntitlements) ReconcileFromRemote(context.Context, string) (models.Subscription, error) {
	return f.reconciled, f.reconcileErr
}

type fakeHistory struct {
	mu        sync.Mutex
	records   []models.EstimateRecord
	insertErr error
	goal      *models.Goal
	lastList  history.Filter
}

func (f *fakeHistory) Insert(_ context.Context, rec models.EstimateRecord) (models.EstimateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return models.EstimateRecord{}, f.insertErr
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now()
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeHistory) List(_ context.Context, userID string, filter history.Filter) ([]models.EstimateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = filter
	var out []models.EstimateRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeHistory) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == id && r.UserID == userID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return history.ErrNotFound
}

func (f *fakeHistory) DeleteAll(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []models.EstimateRecord
	var n int64
	for _, r := range f.records {
		if r.UserID == userID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.records = kept
	return n, nil
}

func (f *fakeHistory) DayTotals(_ context.Context, userID string, from, to time.Time) (models.Macros, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var m models.Macros
	n := 0
	for _, r := range f.records {
		if r.UserID == userID && !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			m = m.Add(r.Macros())
			n++
		}
	}
	return m, n, nil
}

func (f *fakeHistory) GetGoal(context.Context, string) (models.Goal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.goal == nil {
		return models.Goal{}, false, nil
	}
	return *f.goal, true, nil
}

func (f *fakeHistory) PutGoal(_ context.Context, g models.Goal) (models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g.UpdatedAt = time.Now()
	f.goal = &g
	return g, nil
}

type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]models.Profile
	customers map[string]string
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[string]models.Profile{}, customers: map[string]string{}}
}

func (f *fakeProfiles) UpsertProfile(_ context.Context, userID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[userID] = models.Profile{UserID: userID, Email: email, LastSeenAt: time.Now()}
	return nil
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (models.Profile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	return p, ok, nil
}

func (f *fakeProfiles) CustomerIDByUser(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers[userID], nil
}

func (f *fakeProfiles) LinkCustomer(_ context.Context, userID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[userID] = customerID
	return nil
}

type fakeBilling struct {
	mu             sync.Mutex
	session        *stripe.CheckoutSession
	sessionErr     error
	checkouts      []CheckoutRequest
	portalCustomer string
	created        int
}

func (f *fakeBilling) CreateCustomer(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return "cus_new", nil
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	return "https://checkout.stripe.test/c/1", nil
}

func (f *fakeBilling) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portalCustomer = customerID
	return "https://billing.stripe.test/p/1", nil
}

func (f *fakeBilling) GetCheckoutSession(context.Context, string) (*stripe.CheckoutSession, error) {
	return f.session, f.sessionErr
}

func (f *fakeBilling) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	return &stripe.Subscription{ID: id}, nil
}

type fakeBarcode struct {
	res   models.BarcodeResult
	err   error
	codes []string
}

func (f *fakeBarcode) Lookup(_ context.Context, code string) (models.BarcodeResult, error) {
	f.codes = append(f.codes, code)
	return f.res, f.err
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []stripe.Event
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev stripe.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// testEnv is a router wired to in-memory fakes.
type testEnv struct {
	router     *gin.Engine
	server     *Server
	ledger     *ledger.Ledger
	estimator  *fakeEstimator
	ents       *fakeEntitlements
	history    *fakeHistory
	profiles   *fakeProfiles
	billing    *fakeBilling
	barcode    *fakeBarcode
	dispatcher *fakeDispatcher
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test", AllowedOrigins: "*"},
		Stripe: config.StripeConfig{
			PriceID:       "price_pro",
			WebhookSecret: testWebhookSecret,
			AppURL:        "https://app.test/",
		},
		Usage: config.UsageConfig{
			FreeDailyLimit: 5,
			DeviceIDMaxLen: 128,
			Timezone:       "UTC",
			MemoryCapacity: 100,
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

// newTestEnv builds the router; mutate may adjust deps before wiring, for
// example to nil out a provider.
func newTestEnv(t *testing.T, mutate func(cfg *config.Config, d *Deps)) *testEnv {
	t.Helper()
	t.Setenv("AUTH_DISABLED", "false")
	gin.SetMode(gin.TestMode)

	mem, err := ledger.NewMemoryStore(100)
	require.NoError(t, err)
	env := &testEnv{
		ledger: ledger.New(mem, time.UTC),
		estimator: &fakeEstimator{est: models.Estimate{
			Macros:     models.Macros{Calories: 650, ProteinG: 30, CarbsG: 70, FatG: 25},
			Confidence: models.ConfidenceMedium,
			Notes:      "typical slice",
		}},
		ents:       &fakeEntitlements{pro: map[string]bool{}},
		history:    &fakeHistory{},
		profiles:   newFakeProfiles(),
		billing:    &fakeBilling{},
		barcode:    &fakeBarcode{},
		dispatcher: &fakeDispatcher{},
	}
	verifier, err := auth.NewVerifier(auth.Options{Secret: testJWTSecret})
	require.NoError(t, err)

	cfg := testConfig()
	deps := Deps{
		Usage:        env.ledger,
		Entitlements: env.ents,
		Estimator:    env.estimator,
		Barcode:      env.barcode,
		History:      env.history,
		Profiles:     env.profiles,
		Billing:      env.billing,
		Dispatcher:   env.dispatcher,
		Verifier:     verifier,
		Metrics:      NewMetrics(),
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}
	deps.Gate = gate.New(env.ents, env.ledger, cfg.Usage.FreeDailyLimit)

	env.server, err = NewServer(cfg, deps)
	require.NoError(t, err)
	env.router = NewRouter(env.server)
	return env
}

func testToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@example.com",
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

type reqOpt func(*http.Request)

func withToken(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withDevice(id string) reqOpt {
	return func(r *http.Request) { r.Header.Set("X-Device-Id", id) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (e *testEnv) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
