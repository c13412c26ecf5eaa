package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/doris-payments/internal/aws"
	"github.com/imrishuroy/doris-payments/internal/config"
	"github.com/imrishuroy/doris-payments/internal/courses"
	"github.com/imrishuroy/doris-payments/internal/handlers"
	"github.com/imrishuroy/doris-payments/internal/metrics"
	"github.com/imrishuroy/doris-payments/internal/notifylog"
	"github.com/imrishuroy/doris-payments/internal/orders"
	"github.com/imrishuroy/doris-payments/internal/payments"
	"github.com/imrishuroy/doris-payments/internal/payuni"
	"github.com/imrishuroy/doris-payments/internal/storage"
)

// notificationRetention is how long the notification audit trail is kept.
const notificationRetention = 90 * 24 * time.Hour

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("load_config_failed", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	if err := cfg.ValidateAPI(); err != nil {
		logger.Error("invalid_config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		logger.Error("init_aws_clients_failed", "error", err)
		os.Exit(1)
	}

	gateway, err := payuni.New(cfg.Payuni())
	if err != nil {
		logger.Error("init_payuni_failed", "error", err)
		os.Exit(1)
	}

	repo, err := orderRepository(ctx, cfg, clients)
	if err != nil {
		logger.Error("init_order_store_failed", "store", cfg.OrderStore, "error", err)
		os.Exit(1)
	}

	catalog := courses.NewStore(clients.DynamoDB, cfg.CoursesTable)
	svc := payments.NewService(payments.Config{
		Gateway:     gateway,
		Orders:      repo,
		Catalog:     catalog,
		Log:         notifylog.NewStore(clients.DynamoDB, cfg.NotificationsTable, notificationRetention),
		Metrics:     metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, logger),
		Logger:      logger,
		OrderPrefix: cfg.OrderPrefix,
		NotifyURL:   cfg.NotifyURL(),
		ReturnURL:   cfg.ReturnURL(),
		BackURL:     cfg.BackURL(),
	})

	hc := handlers.HandlerConfig{
		Payments:    svc,
		Orders:      repo,
		Courses:     catalog,
		AdminToken:  cfg.AdminToken,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	}
	if cfg.UploadBucket != "" {
		hc.Presigner = storage.NewPresigner(clients.S3Presign, cfg.UploadBucket, cfg.UploadPrefix, cfg.UploadPublicBaseURL)
	}

	if !cfg.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handlers.NewRouter(hc)

	if cfg.RunLocal {
		logger.Info("running local server", "addr", cfg.HTTPAddr, "gateway", gateway.GatewayURL())
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logger.Error("local_server_failed", "error", err)
			os.Exit(1)
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// orderRepository picks the order store. cmd/worker grants enrollments from the DynamoDB
// orders stream only; the sql store has no such feed.
func orderRepository(ctx context.Context, cfg *config.Config, clients *aws.AWSClients) (orders.Repository, error) {
	if cfg.OrderStore != "sql" {
		return orders.NewStore(clients.DynamoDB, cfg.OrdersTable), nil
	}
	db, err := orders.OpenSQL(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	store := orders.NewSQLStore(db)
	if err := store.AutoMigrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
