// Package main implements the Lambda that runs generation jobs dispatched
// through EventBridge.
package main

import (
	"context"
	"log"

	"branchpost/infrastructure/config"
	"branchpost/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

var worker *Worker

func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, _, err := di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependency container: %v", err)
	}

	worker = NewWorker(container.Runner, container.Logger)
}

func handle(ctx context.Context, event events.CloudWatchEvent) error {
	return worker.Handle(ctx, event)
}

func main() {
	lambda.Start(handle)
}
