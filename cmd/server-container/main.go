package main

import (
	"context"

	"github.com/jdiaz1993/quickcalories/app"
	"github.com/jdiaz1993/quickcalories/app/config"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	log "github.com/sirupsen/logrus"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start)
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// Lambda ships stdout to CloudWatch, which indexes JSON lines
	cfg.Logs.Style = "json"
	app.InitLogging(cfg.Logs)
	if cfg.Queue.WebhookQueueURL == "" {
		// the container may freeze between invocations with events still queued
		log.Warn("WEBHOOK_QUEUE_URL not set, webhook events are applied in-process")
	}

	rt, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to initialize service: %v", err)
	}

	// Wrap Gin router with Lambda adapter
	ginLambda = ginadapter.New(rt.Router)
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
