package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jdiaz1993/quickcalories/app"
	"github.com/jdiaz1993/quickcalories/app/config"
	"github.com/jdiaz1993/quickcalories/app/entitlement"
	"github.com/jdiaz1993/quickcalories/app/events"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	log "github.com/sirupsen/logrus"
)

const applyTimeout = 2 * time.Minute

func main() {
	baseCtx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	app.InitLogging(cfg.Logs)

	queueURL := cfg.Queue.WebhookQueueURL
	if queueURL == "" {
		log.Fatal("WEBHOOK_QUEUE_URL environment variable is required")
	}

	db, err := app.OpenDB(baseCtx, cfg.DB)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if db == nil {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	defer db.Close()

	var subs entitlement.SubscriptionFetcher
	if cfg.Stripe.SecretKey != "" {
		subs = app.NewStripeGateway(cfg.Stripe.SecretKey)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, checkout events without an expanded subscription will fail")
	}
	resolver := entitlement.New(entitlement.NewPostgresStore(db), nil, subs)

	// AWS config & SQS client
	awsCfg, err := awsconfig.LoadDefaultConfig(baseCtx)
	if err != nil {
		log.Fatalf("failed to load AWS config: %v", err)
	}
	metrics := app.NewMetrics()
	consumer := events.NewConsumer(sqs.NewFromConfig(awsCfg), queueURL, resolver, applyTimeout, metrics.ObserveWebhook)

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		// SQS trigger: Lambda deletes the batch on success and redelivers
		// the records reported as failed
		lambda.Start(func(ctx context.Context, ev lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
			return handleBatch(ctx, consumer, ev), nil
		})
		return
	}

	ctx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("webhook worker stopped: %v", err)
	}
	log.Info("webhook worker stopped")
}

func handleBatch(ctx context.Context, consumer *events.Consumer, ev lambdaevents.SQSEvent) lambdaevents.SQSEventResponse {
	var resp lambdaevents.SQSEventResponse
	for _, record := range ev.Records {
		err := consumer.Apply(ctx, record.Body)
		if err == nil || errors.Is(err, events.ErrUndecodable) {
			continue
		}
		resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.SQSBatchItemFailure{
			ItemIdentifier: record.MessageId,
		})
	}
	return resp
}
