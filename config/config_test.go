package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSecrets map[string]map[string]string

func (f fakeSecrets) GetSecretJSON(_ context.Context, name string) (map[string]string, error) {
	if v, ok := f[name]; ok {
		return v, nil
	}
	return nil, errors.New("secret not found")
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("CURRENCY_RATES", "USD:EUR=0.5, usd:jpy=150")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	for _, key := range []string{"PORT", "STORE_DRIVER", "EVENT_BUS", "RATE_LIMIT_PER_MINUTE"} {
		t.Setenv(key, "")
	}

	cfg, err := fromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, BusNone, cfg.EventBus)
	assert.Equal(t, 600, cfg.RateLimitPerMinute)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "0.5", cfg.CurrencyRates["USD:EUR"].String())
	assert.Equal(t, "150", cfg.CurrencyRates["USD:JPY"].String())
}

func TestFromEnv_BadValues(t *testing.T) {
	t.Setenv("CURRENCY_RATES", "USD=1")
	_, err := fromEnv()
	assert.ErrorContains(t, err, "CURRENCY_RATES")

	t.Setenv("CURRENCY_RATES", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "lots")
	_, err = fromEnv()
	assert.ErrorContains(t, err, "RATE_LIMIT_PER_MINUTE")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Driver:           DriverPostgres,
			EventBus:         BusNone,
			JWTSecret:        "secret",
			PostgresUser:     "sales",
			PostgresPassword: "pw",
			PostgresDB:       "sales",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "memory driver needs no database", mutate: func(c *Config) { c.Driver = DriverMemory; c.PostgresDB = "" }},
		{name: "missing jwt secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "JWT_SECRET"},
		{name: "incomplete database", mutate: func(c *Config) { c.PostgresPassword = "" }, wantErr: "database config incomplete"},
		{name: "unknown driver", mutate: func(c *Config) { c.Driver = "mysql" }, wantErr: "STORE_DRIVER"},
		{name: "sns without topic", mutate: func(c *Config) { c.EventBus = BusSNS }, wantErr: "SALES_SNS_TOPIC_ARN"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.EventBus = BusKafka }, wantErr: "KAFKA_BROKERS"},
		{name: "unknown bus", mutate: func(c *Config) { c.EventBus = "rabbit" }, wantErr: "EVENT_BUS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{PostgresUser: "env-user", PostgresHost: "localhost", JWTSecret: "env-secret"}
	sm := fakeSecrets{
		"sales/DB_CREDENTIALS": {"POSTGRES_USER": "vault-user", "POSTGRES_PASSWORD": "vault-pw"},
	}

	applySecrets(context.Background(), cfg, sm, zap.NewNop())

	assert.Equal(t, "vault-user", cfg.PostgresUser)
	assert.Equal(t, "vault-pw", cfg.PostgresPassword)
	assert.Equal(t, "localhost", cfg.PostgresHost)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresUser: "u", PostgresPassword: "p", PostgresDB: "sales",
		PostgresPort: "5432", PostgresSSLMode: "disable", PostgresTimeZone: "UTC",
	}
	assert.Equal(t, "host=db user=u password=p dbname=sales port=5432 sslmode=disable TimeZone=UTC", cfg.DSN())
}
