package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/MahoCommerce/maho-sub002/money"
	aws_pkg "github.com/MahoCommerce/maho-sub002/pkg/aws"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	BusSNS   = "sns"
	BusKafka = "kafka"
	BusNone  = "none"
)

type Config struct {
	Port    string
	AppEnv  string
	Driver  string
	Version string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL  string
	JWTSecret string

	EventBus        string
	SalesTopicARN   string
	KafkaBrokers    []string
	KafkaTopic      string
	PaymentQueueURL string
	ReportQueueURL  string
	ReportTable     string
	ArchiveBucket   string

	CloudWatchEnabled  bool
	CloudWatchLogGroup string

	InventoryServiceURL string
	CurrencyRates       map[string]decimal.Decimal
	PriceIncludesTax    bool
	RateLimitPerMinute  int
}

// SecretGetter reads a JSON secret as a flat map.
type SecretGetter interface {
	GetSecretJSON(ctx context.Context, name string) (map[string]string, error)
}

// Load reads .env when present and then the process environment. With
// AWS_USE_SECRETS=true database credentials and the JWT secret come from
// Secrets Manager.
func Load(ctx context.Context, logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		applySecrets(ctx, cfg, aws_pkg.NewSecretsClient(awsCfg), logger)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	rates, err := money.ParseRateTable(os.Getenv("CURRENCY_RATES"))
	if err != nil {
		return nil, fmt.Errorf("CURRENCY_RATES: %w", err)
	}
	perMinute, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "600"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE: %w", err)
	}

	var brokers []string
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return &Config{
		Port:    getEnv("PORT", "8090"),
		AppEnv:  getEnv("APP_ENV", "development"),
		Driver:  getEnv("STORE_DRIVER", DriverPostgres),
		Version: getEnv("APP_VERSION", "dev"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		RedisURL:  os.Getenv("REDIS_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		EventBus:        getEnv("EVENT_BUS", BusNone),
		SalesTopicARN:   os.Getenv("SALES_SNS_TOPIC_ARN"),
		KafkaBrokers:    brokers,
		KafkaTopic:      getEnv("KAFKA_TOPIC", "sales.events"),
		PaymentQueueURL: os.Getenv("PAYMENT_EVENTS_QUEUE_URL"),
		ReportQueueURL:  os.Getenv("REPORT_EVENTS_QUEUE_URL"),
		ReportTable:     getEnv("REPORT_TABLE", "sales_daily"),
		ArchiveBucket:   os.Getenv("ARCHIVE_BUCKET"),

		CloudWatchEnabled:  os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup: getEnv("CLOUDWATCH_LOG_GROUP", "/sales-service"),

		InventoryServiceURL: os.Getenv("INVENTORY_SERVICE_URL"),
		CurrencyRates:       rates,
		PriceIncludesTax:    os.Getenv("PRICE_INCLUDES_TAX") == "true",
		RateLimitPerMinute:  perMinute,
	}, nil
}

// applySecrets overrides credentials with the values found in Secrets
// Manager. Missing secrets keep the environment values.
func applySecrets(ctx context.Context, cfg *Config, sm SecretGetter, logger *zap.Logger) {
	db, err := sm.GetSecretJSON(ctx, "sales/DB_CREDENTIALS")
	if err != nil {
		logger.Warn("DB credentials secret unavailable", zap.Error(err))
	}
	for key, dst := range map[string]*string{
		"POSTGRES_USER":     &cfg.PostgresUser,
		"POSTGRES_PASSWORD": &cfg.PostgresPassword,
		"POSTGRES_DB":       &cfg.PostgresDB,
		"POSTGRES_HOST":     &cfg.PostgresHost,
		"POSTGRES_PORT":     &cfg.PostgresPort,
	} {
		if v := db[key]; v != "" {
			*dst = v
		}
	}

	jwtSecret, err := sm.GetSecretJSON(ctx, "sales/JWT_SECRET")
	if err != nil {
		logger.Warn("JWT secret unavailable", zap.Error(err))
	}
	if v := jwtSecret["JWT_SECRET"]; v != "" {
		cfg.JWTSecret = v
	}
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Driver {
	case DriverPostgres:
		if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" {
			return fmt.Errorf("database config incomplete")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Driver)
	}
	switch c.EventBus {
	case BusSNS:
		if c.SalesTopicARN == "" {
			return fmt.Errorf("SALES_SNS_TOPIC_ARN is required for the sns event bus")
		}
	case BusKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka event bus")
		}
	case BusNone:
	default:
		return fmt.Errorf("unknown EVENT_BUS %q", c.EventBus)
	}
	return nil
}

// DSN is the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
