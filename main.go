package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/common/logger"
	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/database"
	"checkout-service/gateways"
	"checkout-service/kafka"
	"checkout-service/middleware"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/repository"
	"checkout-service/routes"
	"checkout-service/services"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("[CheckoutService] failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)

	var cwWriter io.Writer
	if cfg.CloudWatchEnabled && awsErr == nil {
		if w, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, cfg.ServiceName); err == nil {
			cwWriter = w
		} else {
			log.Printf("[CheckoutService] CloudWatch logs disabled: %v", err)
		}
	}

	zapLogger, err := logger.Initialize(cfg.Env, cwWriter)
	if err != nil {
		log.Fatalf("[CheckoutService] failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zapLogger = zapLogger.With(zap.String("service", cfg.ServiceName))

	if awsErr != nil {
		zapLogger.Warn("AWS config unavailable; SNS, SQS and CloudWatch are disabled", zap.Error(awsErr))
	}

	db, err := database.ConnectPostgres(zapLogger, cfg.DSN())
	if err != nil {
		zapLogger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Migration failed", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(zapLogger, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	var metrics aws_pkg.MetricsRecorder
	if awsErr == nil {
		metrics = aws_pkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
	}

	publisher, closeEvents := newEventPublisher(cfg, awsCfg, awsErr, zapLogger)
	defer closeEvents()

	pricing, err := services.NewPricing(cfg.Pricing)
	if err != nil {
		zapLogger.Fatal("Invalid pricing config", zap.Error(err))
	}

	orderRepo := repository.NewGormOrderRepository(db)
	productRepo := repository.NewGormProductRepository(db)
	cartRepo := repository.NewRedisCartRepository(redisClient, cfg.CartTTL)
	paymentLock := repository.NewRedisPaymentLock(redisClient, cfg.PaymentLock)

	orderService := services.NewOrderService(orderRepo, productRepo, cartRepo, pricing, publisher, metrics, zapLogger,
		services.OrderServiceOptions{
			OrderNumberMaxAttempts:    cfg.OrderNumberMaxAttempts,
			DefaultCancellationReason: cfg.DefaultCancellationReason,
		})
	paymentService := services.NewPaymentService(orderRepo, newGatewayRegistry(cfg, zapLogger), paymentLock,
		publisher, metrics, zapLogger, cfg.IsProduction())

	if cfg.PaymentCallbackQueueURL != "" && awsErr == nil {
		consumer := services.NewCallbackConsumer(
			aws_pkg.NewSQSConsumer(awsCfg, cfg.PaymentCallbackQueueURL), paymentService, zapLogger)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("Payment callback consumer stopped", zap.Error(err))
			}
		}()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(ctx, cfg, zapLogger, metrics)
	auth := middleware.AuthMiddleware(cfg.JWTSecret, cfg.TrustGatewayHeaders)
	routes.RegisterOrderRoutes(router, controllers.NewOrderController(orderService, zapLogger), auth)
	routes.RegisterPaymentRoutes(router, controllers.NewPaymentController(paymentService, zapLogger), auth)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLogger.Info("Checkout service listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Shutdown error", zap.Error(err))
	}
	zapLogger.Info("Server shutdown complete")
}

// newGatewayRegistry registers only the providers with credentials.
func newGatewayRegistry(cfg *config.Config, logger *zap.Logger) *gateways.Registry {
	var gws []gateways.PaymentGateway
	if cfg.PhonePe.Enabled() {
		gws = append(gws, gateways.NewPhonePeGateway(cfg.PhonePe, cfg.Gateway, logger))
	}
	if cfg.Razorpay.Enabled() {
		gws = append(gws, gateways.NewRazorpayGateway(cfg.Razorpay, cfg.Gateway, logger))
	}
	if cfg.Stripe.Enabled() {
		gws = append(gws, gateways.NewStripeGateway(cfg.Stripe, cfg.Gateway, logger))
	}
	for _, gw := range gws {
		logger.Info("Payment gateway enabled", zap.String("gateway", gw.Name()))
	}
	return gateways.NewRegistry(cfg.CardGateway, gws...)
}

// newEventPublisher wires SNS and Kafka when configured.
func newEventPublisher(cfg *config.Config, awsCfg sdkaws.Config, awsErr error, logger *zap.Logger) (services.EventPublisher, func()) {
	var sns aws_pkg.SNSPublisher
	if awsErr == nil && cfg.OrderSNSTopicARN != "" {
		sns = aws_pkg.NewSNSClient(awsCfg)
	}

	var sender services.OrderEventSender
	closeFn := func() {}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		producer := kafka.NewOrderEventProducer(brokers, cfg.KafkaTopic, logger)
		sender = producer
		closeFn = func() {
			if err := producer.Close(); err != nil {
				logger.Warn("Failed to close Kafka producer", zap.Error(err))
			}
		}
	}
	return services.NewDomainEventPublisher(sns, cfg.OrderSNSTopicARN, sender, logger), closeFn
}
