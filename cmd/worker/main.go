package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/doris-payments/internal/aws"
	"github.com/imrishuroy/doris-payments/internal/config"
	"github.com/imrishuroy/doris-payments/internal/enrollments"
	"github.com/imrishuroy/doris-payments/internal/metrics"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("load_config_failed", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		logger.Error("init_aws_clients_failed", "error", err)
		os.Exit(1)
	}

	p := NewProcessor(
		enrollments.NewStore(clients.DynamoDB, cfg.EnrollmentsTable),
		aws.NewPublisher(clients.SQS, cfg.EnrollmentQueueURL),
		metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, logger),
		logger,
	)

	// RUN_LOCAL feeds one synthetic pending -> paid change for the order in LOCAL_ORDER_NO.
	if cfg.RunLocal {
		if err := p.Handle(ctx, localEvent()); err != nil {
			logger.Error("local_handler_error", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}

func localEvent() events.DynamoDBEvent {
	orderNo := os.Getenv("LOCAL_ORDER_NO")
	if orderNo == "" {
		orderNo = "DORIS1700000000"
	}
	email := os.Getenv("LOCAL_EMAIL")
	if email == "" {
		email = "student@example.com"
	}
	return events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{{
			EventID:   "local-1",
			EventName: string(events.DynamoDBOperationTypeModify),
			Change: events.DynamoDBStreamRecord{
				OldImage: map[string]events.DynamoDBAttributeValue{
					"order_no": events.NewStringAttribute(orderNo),
					"status":   events.NewStringAttribute("pending"),
				},
				NewImage: map[string]events.DynamoDBAttributeValue{
					"order_no":     events.NewStringAttribute(orderNo),
					"status":       events.NewStringAttribute("paid"),
					"email":        events.NewStringAttribute(email),
					"course_slugs": events.NewStringSetAttribute([]string{"go-101"}),
				},
			},
		}},
	}
}
