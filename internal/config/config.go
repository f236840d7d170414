package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBConfig struct {
		Host            string `env:"ORDERPAY_DB_HOST"`
		Port            int    `env:"ORDERPAY_DB_PORT"`
		User            string `env:"ORDERPAY_DB_USER"`
		Password        string `env:"ORDERPAY_DB_PASSWORD"`
		Name            string `env:"ORDERPAY_DB_NAME"`
		MaxOpenConns    int    `env:"ORDERPAY_DB_MAX_OPEN_CONNS"`
		ConnectAttempts int    `env:"ORDERPAY_DB_CONNECT_ATTEMPTS"`
	}

	HTTPAddr string `env:"HTTP_ADDR"`
	LogLevel string `env:"LOG_LEVEL"`

	KafkaBrokerURL          string `env:"KAFKA_BROKER_URL"`
	KafkaNotificationsTopic string `env:"KAFKA_NOTIFICATIONS_TOPIC"`
	KafkaFulfilmentTopic    string `env:"KAFKA_FULFILMENT_TOPIC"`
	KafkaConsumerGroup      string `env:"KAFKA_CONSUMER_GROUP"`

	NotifyTransport   string `env:"NOTIFY_TRANSPORT"`
	NATSURL           string `env:"NATS_URL"`
	NATSNotifySubject string `env:"NATS_NOTIFY_SUBJECT"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS"`

	OrderLockTimeout time.Duration `env:"ORDER_LOCK_TIMEOUT"`

	CatalogServiceURL string        `env:"CATALOG_SERVICE_URL"`
	CatalogTimeout    time.Duration `env:"CATALOG_TIMEOUT"`

	JWTSecret         string `env:"JWT_SECRET"`
	WebhookRatePerSec int    `env:"WEBHOOK_RATE_PER_SEC"`
	WebhookRateBurst  int    `env:"WEBHOOK_RATE_BURST"`

	PayHere PayHereConfig
}

type PayHereConfig struct {
	MerchantID string `env:"PAYHERE_MERCHANT_ID"`
	AppID      string `env:"PAYHERE_APP_ID"`
	AppSecret  string `env:"PAYHERE_APP_SECRET"`
	Currency   string `env:"PAYHERE_CURRENCY"`
	ReturnURL  string `env:"PAYHERE_RETURN_URL"`
	CancelURL  string `env:"PAYHERE_CANCEL_URL"`
	NotifyURL  string `env:"PAYHERE_NOTIFY_URL"`
	Sandbox    bool   `env:"PAYHERE_SANDBOX"`
}

const (
	NotifyTransportKafka = "kafka"
	NotifyTransportNATS  = "nats"
)

// LoadConfig reads the environment, after merging a .env file from the working directory when one
// exists. Variables already set in the environment win over the file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	cfg.DBConfig.Host = getEnvOrDefault("ORDERPAY_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("ORDERPAY_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("ORDERPAY_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("ORDERPAY_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("ORDERPAY_DB_NAME", "orderpay_db")
	cfg.DBConfig.MaxOpenConns = getEnvAsInt("ORDERPAY_DB_MAX_OPEN_CONNS", 20)
	cfg.DBConfig.ConnectAttempts = getEnvAsInt("ORDERPAY_DB_CONNECT_ATTEMPTS", 10)

	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaNotificationsTopic = getEnvOrDefault("KAFKA_NOTIFICATIONS_TOPIC", "order_notifications")
	cfg.KafkaFulfilmentTopic = getEnvOrDefault("KAFKA_FULFILMENT_TOPIC", "order_fulfilment_events")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "orderpay-service-group")

	cfg.NotifyTransport = strings.ToLower(getEnvOrDefault("NOTIFY_TRANSPORT", NotifyTransportKafka))
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")
	cfg.NATSNotifySubject = getEnvOrDefault("NATS_NOTIFY_SUBJECT", "orders.notifications")

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 50)
	cfg.OutboxMaxAttempts = getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10)

	cfg.OrderLockTimeout = getEnvAsDuration("ORDER_LOCK_TIMEOUT", 5*time.Second)

	cfg.CatalogServiceURL = getEnvOrDefault("CATALOG_SERVICE_URL", "http://localhost:8081")
	cfg.CatalogTimeout = getEnvAsDuration("CATALOG_TIMEOUT", 3*time.Second)

	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", "")
	cfg.WebhookRatePerSec = getEnvAsInt("WEBHOOK_RATE_PER_SEC", 5)
	cfg.WebhookRateBurst = getEnvAsInt("WEBHOOK_RATE_BURST", 10)

	cfg.PayHere.MerchantID = getEnvOrDefault("PAYHERE_MERCHANT_ID", "")
	cfg.PayHere.AppID = getEnvOrDefault("PAYHERE_APP_ID", "")
	cfg.PayHere.AppSecret = getEnvOrDefault("PAYHERE_APP_SECRET", "")
	cfg.PayHere.Currency = getEnvOrDefault("PAYHERE_CURRENCY", "LKR")
	cfg.PayHere.ReturnURL = getEnvOrDefault("PAYHERE_RETURN_URL", "")
	cfg.PayHere.CancelURL = getEnvOrDefault("PAYHERE_CANCEL_URL", "")
	cfg.PayHere.NotifyURL = getEnvOrDefault("PAYHERE_NOTIFY_URL", "")
	cfg.PayHere.Sandbox = getEnvAsBool("PAYHERE_SANDBOX", true)

	return cfg, nil
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.PayHere.MerchantID == "" {
		errs = append(errs, errors.New("PAYHERE_MERCHANT_ID is required"))
	}
	if c.PayHere.AppSecret == "" {
		errs = append(errs, errors.New("PAYHERE_APP_SECRET is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.OrderLockTimeout <= 0 {
		errs = append(errs, errors.New("ORDER_LOCK_TIMEOUT must be positive"))
	}
	switch c.NotifyTransport {
	case NotifyTransportKafka, NotifyTransportNATS:
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_TRANSPORT must be %q or %q, got %q", NotifyTransportKafka, NotifyTransportNATS, c.NotifyTransport))
	}
	return errors.Join(errs...)
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvOrDefault(key, strconv.FormatBool(defaultValue))
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
