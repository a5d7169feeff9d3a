package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jdiaz1993/quickcalories/app/barcode"
	"github.com/jdiaz1993/quickcalories/app/config"
	"github.com/jdiaz1993/quickcalories/app/entitlement"
	"github.com/jdiaz1993/quickcalories/app/estimator"
	"github.com/jdiaz1993/quickcalories/app/events"
	"github.com/jdiaz1993/quickcalories/app/gate"
	"github.com/jdiaz1993/quickcalories/app/history"
	"github.com/jdiaz1993/quickcalories/app/ledger"
	"github.com/jdiaz1993/quickcalories/auth"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	webhookQueueSize = 256
	webhookTimeout   = 30 * time.Second
)

// Runtime is a fully wired service plus the resources it owns.
type Runtime struct {
	Config   *config.Config
	Server   *Server
	Router   *gin.Engine
	DB       *sql.DB
	Redis    *redis.Client
	Ledger   *ledger.Ledger
	Memory   *ledger.MemoryStore // nil when usage lives in Redis
	Billing  *entitlement.PostgresStore
	Resolver *entitlement.Resolver

	async *events.AsyncDispatcher
}

// Build connects every configured collaborator and returns the wired service.
// Missing optional providers leave their endpoints answering "not configured".
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg}

	rt.DB, err = OpenDB(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	if rt.DB != nil && cfg.DB.AutoMigrate {
		if err := Migrate(ctx, rt.DB); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}

	store, err := rt.usageStore(ctx, cfg)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.Ledger = ledger.New(store, loc)

	metrics := NewMetrics()
	deps := Deps{
		Usage:   rt.Ledger,
		Metrics: metrics,
		Barcode: barcode.NewClient(cfg.OpenFoodFacts.BaseURL, cfg.OpenFoodFacts.Timeout,
			cfg.OpenFoodFacts.CacheTTL, cfg.OpenFoodFacts.CacheSize),
	}

	var subs entitlement.SubscriptionFetcher
	if cfg.Stripe.SecretKey != "" {
		gw := NewStripeGateway(cfg.Stripe.SecretKey)
		deps.Billing = gw
		subs = gw
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, billing endpoints disabled")
	}

	var ents gate.Entitlements
	if rt.DB != nil {
		rt.Billing = entitlement.NewPostgresStore(rt.DB)
		remote := entitlement.NewRevenueCat(cfg.RevenueCat.BaseURL, cfg.RevenueCat.SecretKey,
			cfg.RevenueCat.EntitlementID, cfg.RevenueCat.Timeout)
		rt.Resolver = entitlement.New(rt.Billing, remote, subs)

		ents = rt.Resolver
		deps.Entitlements = rt.Resolver
		deps.Profiles = rt.Billing
		deps.History = history.NewStore(rt.DB)

		deps.Dispatcher, err = rt.dispatcher(ctx, cfg, metrics)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}
	deps.Gate = gate.New(ents, rt.Ledger, cfg.Usage.FreeDailyLimit)

	provider, err := estimator.NewOpenAI(cfg.OpenAI)
	switch {
	case errors.Is(err, estimator.ErrNotConfigured):
		log.Warn("OPENAI_API_KEY not set, estimate endpoints will answer 500")
	case err != nil:
		rt.Close(ctx)
		return nil, err
	default:
		deps.Estimator = provider
	}

	deps.Verifier, err = newVerifier(cfg.Auth)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Server, err = NewServer(cfg, deps)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.Router = NewRouter(rt.Server)
	return rt, nil
}

func (rt *Runtime) usageStore(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	if cfg.Usage.Store == "redis" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rt.Redis = client
		log.Info("usage ledger backed by Redis")
		return ledger.NewRedisStore(client, ""), nil
	}

	mem, err := ledger.NewMemoryStore(cfg.Usage.MemoryCapacity)
	if err != nil {
		return nil, err
	}
	rt.Memory = mem
	log.WithField("capacity", cfg.Usage.MemoryCapacity).Info("usage ledger kept in memory")
	return mem, nil
}

// dispatcher publishes to SQS when a queue is configured and otherwise
// applies events on an in-process worker pool.
func (rt *Runtime) dispatcher(ctx context.Context, cfg *config.Config, metrics *Metrics) (events.Dispatcher, error) {
	if cfg.Queue.WebhookQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config for SQS: %w", err)
		}
		log.WithField("queue", cfg.Queue.WebhookQueueURL).Info("webhook events go to SQS")
		return events.NewSQSDispatcher(sqs.NewFromConfig(awsCfg), cfg.Queue.WebhookQueueURL), nil
	}

	workers := GetWorkerCount(cfg.Queue.Workers)
	rt.async = events.NewAsyncDispatcher(rt.Resolver, workers, webhookQueueSize, webhookTimeout, metrics.ObserveWebhook)
	log.WithField("workers", workers).Info("webhook events applied in-process")
	return rt.async, nil
}

func newVerifier(cfg config.AuthConfig) (*auth.Verifier, error) {
	if cfg.Issuer == "" && cfg.JWKSURL == "" && cfg.JWTSecret == "" {
		if !auth.AuthDisabled() {
			log.Warn("no AUTH_ISSUER, AUTH_JWKS_URL or AUTH_JWT_SECRET set, authenticated routes will answer 401")
		}
		return nil, nil
	}
	v, err := auth.NewVerifier(auth.Options{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		JWKSURL:  cfg.JWKSURL,
		Secret:   cfg.JWTSecret,
	})
	if err != nil && auth.AuthDisabled() {
		log.WithError(err).Warn("auth verifier unavailable, continuing with AUTH_DISABLED")
		return nil, nil
	}
	return v, err
}

// Close drains in-flight webhook work and releases connections.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.async != nil {
		if err := rt.async.Close(ctx); err != nil {
			log.WithError(err).Warn("webhook dispatcher did not drain")
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			log.WithError(err).Warn("redis close failed")
		}
	}
	if rt.DB != nil {
		if err := rt.DB.Close(); err != nil {
			log.WithError(err).Warn("db close failed")
		}
	}
}
