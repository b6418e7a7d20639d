package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/common/logger"
	"github.com/MahoCommerce/maho-sub002/common/middleware"
	"github.com/MahoCommerce/maho-sub002/config"
	"github.com/MahoCommerce/maho-sub002/controllers"
	"github.com/MahoCommerce/maho-sub002/database"
	"github.com/MahoCommerce/maho-sub002/ledger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/money"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"github.com/MahoCommerce/maho-sub002/pkg/dynamodb"
	"github.com/MahoCommerce/maho-sub002/pkg/kafka"
	"github.com/MahoCommerce/maho-sub002/reports"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/MahoCommerce/maho-sub002/routes"
	"github.com/MahoCommerce/maho-sub002/services"
	"github.com/MahoCommerce/maho-sub002/state"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	ctx := context.Background()

	log := logger.Initialize(os.Getenv("APP_ENV"))
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(ctx, log)
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatal("Failed to load AWS config", zap.Error(err))
	}

	if cfg.CloudWatchEnabled {
		cwLogs, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, "sales-service")
		if err != nil {
			log.Warn("CloudWatch Logs unavailable, logging to stdout only", zap.Error(err))
		} else {
			log = logger.InitializeWithWriter(cfg.AppEnv, cwLogs)
		}
	}
	zap.ReplaceGlobals(log)

	// Storage
	var store repository.Transactor
	var db *gorm.DB
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err = database.ConnectPostgres(cfg.DSN(), log, models.AllModels()...)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		store = repository.NewGormStore(db)
	default:
		log.Warn("Using in-memory store, data is lost on restart")
		store = repository.NewMemoryStore()
	}

	// Locks and idempotency
	var locks repository.SessionLock = repository.NewMemorySessionLock()
	var cache repository.IdempotencyCache = repository.NewMemoryIdempotencyCache()
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		locks = repository.NewRedisSessionLock(rdb)
		cache = repository.NewRedisIdempotencyCache(rdb)
		log.Info("Connected to Redis")
	}

	// Post-commit side effects
	var sinks []services.EventSink
	var producer *kafka.Producer
	switch cfg.EventBus {
	case config.BusSNS:
		sinks = append(sinks, services.NewSNSSink(aws_pkg.NewSNSClient(awsCfg), cfg.SalesTopicARN))
	case config.BusKafka:
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		sinks = append(sinks, services.NewKafkaSink(producer))
	}

	var archiver aws_pkg.Archiver
	if cfg.ArchiveBucket != "" {
		archiver = aws_pkg.NewS3Archiver(awsCfg, cfg.ArchiveBucket, "sales")
	}
	metrics := aws_pkg.NewMetricsClient(awsCfg, "Sales", cfg.CloudWatchEnabled)
	events := services.NewEventPublisher(log, metrics, archiver, sinks...)

	// Services
	machine := state.NewMachine(state.DefaultRegistry())
	rates := money.NewStaticRateProvider(cfg.CurrencyRates)

	var stock ledger.StockChecker
	if cfg.InventoryServiceURL != "" {
		stock = services.NewInventoryClient(cfg.InventoryServiceURL)
	}

	quoteService := services.NewQuoteService(store, locks, cfg.PriceIncludesTax, log)
	orderService := services.NewOrderService(store, machine, locks, rates, stock, events, log)
	invoiceService := services.NewInvoiceService(store, machine, cache, events, log)
	shipmentService := services.NewShipmentService(store, machine, cache, events, log)
	creditmemoService := services.NewCreditmemoService(store, machine, cache, events, log)
	paymentService := services.NewPaymentService(store, machine, events, log)
	reportService := services.NewReportService(store, log)

	// Consumers
	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	if cfg.PaymentQueueURL != "" {
		consumer := services.NewPaymentEventConsumer(aws_pkg.NewSQSConsumer(awsCfg, cfg.PaymentQueueURL, log), paymentService, log)
		go func() {
			if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("payment event consumer stopped", zap.Error(err))
			}
		}()
	}
	if cfg.ReportQueueURL != "" {
		projector := reports.NewDynamoProjector(dynamodb.NewClientFromConfig(awsCfg), cfg.ReportTable, log)
		consumer := services.NewReportEventConsumer(aws_pkg.NewSQSConsumer(awsCfg, cfg.ReportQueueURL, log), projector, log)
		go func() {
			if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("report event consumer stopped", zap.Error(err))
			}
		}()
	}

	// HTTP
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.SecurityHeaders(),
		middleware.RateLimitMiddleware(cfg.RateLimitPerMinute),
		apperrors.ErrorMiddleware(log),
	)

	routes.RegisterRoutes(r, routes.Controllers{
		Quotes:    controllers.NewQuoteController(quoteService, orderService, log),
		Orders:    controllers.NewOrderController(orderService, log),
		Documents: controllers.NewDocumentController(invoiceService, shipmentService, creditmemoService),
		Payments:  controllers.NewPaymentController(paymentService),
		Reports:   controllers.NewReportController(reportService),
	}, []byte(cfg.JWTSecret))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Sales service started", zap.String("port", cfg.Port), zap.String("store", cfg.Driver), zap.String("event_bus", cfg.EventBus))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	consumerCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("Kafka producer close error", zap.Error(err))
		}
	}
	if db != nil {
		if err := database.Close(db); err != nil {
			log.Error("Database close error", zap.Error(err))
		}
	}

	log.Info("Sales service stopped gracefully")
}
