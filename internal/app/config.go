package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"

	envPrefix         = "STOREFRONT"
	envProduction     = "production"
	devAccessSecret   = "storefront-dev-access-secret"
	devRefreshSecret  = "storefront-dev-refresh-secret"
	defaultKafkaTopic = "storefront.order.events"
	defaultDLQTopic   = "storefront.dlq"
)

// Config — настройки процесса. Значения читаются из переменных окружения
// с префиксом STOREFRONT_ (например, STOREFRONT_HTTP_ADDR).
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	GRPCAddr    string `envconfig:"GRPC_ADDR" default:":50051"`
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER" default:"memory"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`
	RedisAddr           string `envconfig:"REDIS_ADDR"`

	KafkaBrokers  string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string `envconfig:"KAFKA_TOPIC" default:"storefront.order.events"`
	KafkaDLQTopic string `envconfig:"KAFKA_DLQ_TOPIC" default:"storefront.dlq"`

	OutboxPollInterval   time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize      int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxAttempts    int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"5"`
	OutboxRetryBaseDelay time.Duration `envconfig:"OUTBOX_RETRY_BASE_DELAY" default:"200ms"`

	IdempotencyTTL              time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL" default:"1m"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE" default:"500"`

	JWTSecret        string        `envconfig:"JWT_SECRET"`
	JWTRefreshSecret string        `envconfig:"JWT_REFRESH_SECRET"`
	JWTExpire        time.Duration `envconfig:"JWT_EXPIRE" default:"168h"`
	JWTRefreshExpire time.Duration `envconfig:"JWT_REFRESH_EXPIRE" default:"720h"`
	BcryptCost       int           `envconfig:"BCRYPT_COST" default:"12"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"100"`

	StrictTransitions     bool            `envconfig:"STRICT_TRANSITIONS" default:"true"`
	FreeShippingThreshold decimal.Decimal `envconfig:"FREE_SHIPPING_THRESHOLD" default:"999"`
	FlatShippingFee       decimal.Decimal `envconfig:"FLAT_SHIPPING_FEE" default:"50"`

	OTELEndpoint string `envconfig:"OTEL_ENDPOINT"`

	SeedAdminEmail    string `envconfig:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `envconfig:"SEED_ADMIN_PASSWORD"`
}

// DefaultConfig возвращает те же значения, что LoadConfig при пустом окружении.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		GRPCAddr:                    ":50051",
		Env:                         "development",
		LogLevel:                    "info",
		LogFormat:                   "text",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		KafkaTopic:                  defaultKafkaTopic,
		KafkaDLQTopic:               defaultDLQTopic,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           5,
		OutboxRetryBaseDelay:        200 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		JWTExpire:                   7 * 24 * time.Hour,
		JWTRefreshExpire:            30 * 24 * time.Hour,
		BcryptCost:                  12,
		RateLimitRPS:                10,
		RateLimitBurst:              100,
		StrictTransitions:           true,
		FreeShippingThreshold:       decimal.NewFromInt(999),
		FlatShippingFee:             decimal.NewFromInt(50),
	}
}

// LoadConfig читает необязательный .env и переменные окружения.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production сообщает, что процесс запущен в production-окружении.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, envProduction)
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("postgres storage driver requires STOREFRONT_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	if c.Production() && (c.JWTSecret == "" || c.JWTRefreshSecret == "") {
		return errors.New("STOREFRONT_JWT_SECRET and STOREFRONT_JWT_REFRESH_SECRET are required in production")
	}
	if c.JWTSecret != "" && c.JWTSecret == c.JWTRefreshSecret {
		return errors.New("access and refresh tokens must use different secrets")
	}
	if c.FlatShippingFee.IsNegative() || c.FreeShippingThreshold.IsNegative() {
		return errors.New("shipping pricing must be non-negative")
	}
	return nil
}

// KafkaBrokerList разбирает список брокеров через запятую.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// jwtSecrets подставляет фиксированные секреты вне production.
func (c Config) jwtSecrets(logger *log.Entry) (access, refresh string) {
	access, refresh = c.JWTSecret, c.JWTRefreshSecret
	if access == "" {
		logger.Warn("STOREFRONT_JWT_SECRET is empty, using development secret")
		access = devAccessSecret
	}
	if refresh == "" {
		logger.Warn("STOREFRONT_JWT_REFRESH_SECRET is empty, using development secret")
		refresh = devRefreshSecret
	}
	return access, refresh
}

// configureLogging настраивает стандартный logrus-логгер.
func configureLogging(cfg Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}
	return nil
}
