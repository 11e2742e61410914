// Package config loads relay settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"payment-relay/pkg/broker"
	"payment-relay/pkg/store"
)

// ErrConfig matches every *ConfigError via errors.Is.
var ErrConfig = errors.New("invalid configuration")

// ConfigError lists every setting that is missing or invalid.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

var defaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"http://front:80",
}

type Config struct {
	Host        string
	Port        int
	MetricsAddr string

	UseSimulateDirect bool

	BrokerKind   string
	MQTTBroker   string
	MQTTPort     int
	MQTTTLS      bool
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string
	NATSURL      string
	KafkaBrokers []string
	KafkaGroupID string

	TopicRequests  string
	TopicResponses string
	MaxRetries     int
	RetryDelay     time.Duration

	StoreDriver     string
	DatabaseURL     string
	StoreTimeout    time.Duration
	ProcessingDelay time.Duration

	FrontendURL string
	CORSOrigins []string

	VaultAddr       string
	VaultToken      string
	VaultMount      string
	VaultSecretPath string

	ReconcileSchedule string
	ReconcileAfter    time.Duration

	LogLevel  string
	LogFormat string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8000)
	v.SetDefault("METRICS_ADDR", ":2112")
	v.SetDefault("USE_SIMULATE_DIRECT", false)
	v.SetDefault("BROKER_KIND", broker.KindMQTT)
	v.SetDefault("MQTT_BROKER", "localhost")
	v.SetDefault("MQTT_PORT", 1883)
	v.SetDefault("MQTT_TLS", false)
	v.SetDefault("MQTT_CLIENT_ID", "payment-relay")
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_ID", "payment-relay")
	v.SetDefault("MQTT_TOPIC_REQ", "payments/requests")
	v.SetDefault("MQTT_TOPIC_RESP", "payments/responses")
	v.SetDefault("MQTT_MAX_RETRIES", 10)
	v.SetDefault("MQTT_RETRY_DELAY", 2)
	v.SetDefault("STORE_DRIVER", store.DriverPostgres)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("PROCESSING_DELAY", "200ms")
	v.SetDefault("CORS_ORIGINS", strings.Join(defaultCORSOrigins, ","))
	v.SetDefault("VAULT_MOUNT", "secret")
	v.SetDefault("RECONCILE_AFTER", "1m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads envFiles (missing files are ignored) into the process
// environment, then builds and validates the configuration.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Host:        v.GetString("HOST"),
		Port:        v.GetInt("PORT"),
		MetricsAddr: v.GetString("METRICS_ADDR"),

		UseSimulateDirect: v.GetBool("USE_SIMULATE_DIRECT"),

		BrokerKind:   strings.ToLower(v.GetString("BROKER_KIND")),
		MQTTBroker:   v.GetString("MQTT_BROKER"),
		MQTTPort:     v.GetInt("MQTT_PORT"),
		MQTTTLS:      v.GetBool("MQTT_TLS"),
		MQTTUsername: v.GetString("MQTT_USERNAME"),
		MQTTPassword: v.GetString("MQTT_PASSWORD"),
		MQTTClientID: v.GetString("MQTT_CLIENT_ID"),
		NATSURL:      v.GetString("NATS_URL"),
		KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
		KafkaGroupID: v.GetString("KAFKA_GROUP_ID"),

		TopicRequests:  v.GetString("MQTT_TOPIC_REQ"),
		TopicResponses: v.GetString("MQTT_TOPIC_RESP"),
		MaxRetries:     v.GetInt("MQTT_MAX_RETRIES"),
		RetryDelay:     time.Duration(v.GetInt("MQTT_RETRY_DELAY")) * time.Second,

		StoreDriver:     strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		StoreTimeout:    v.GetDuration("STORE_TIMEOUT"),
		ProcessingDelay: v.GetDuration("PROCESSING_DELAY"),

		FrontendURL: v.GetString("FRONTEND_URL"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),

		VaultAddr:       v.GetString("VAULT_ADDR"),
		VaultToken:      v.GetString("VAULT_TOKEN"),
		VaultMount:      v.GetString("VAULT_MOUNT"),
		VaultSecretPath: v.GetString("VAULT_SECRET_PATH"),

		ReconcileSchedule: v.GetString("RECONCILE_SCHEDULE"),
		ReconcileAfter:    v.GetDuration("RECONCILE_AFTER"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("PORT %d out of range", c.Port)
	}

	switch c.StoreDriver {
	case store.DriverPostgres, store.DriverSQLite:
		if c.DatabaseURL == "" && c.VaultSecretPath == "" {
			add("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case store.DriverMemory:
	default:
		add("STORE_DRIVER %q is not one of postgres, sqlite, memory", c.StoreDriver)
	}
	if c.StoreTimeout <= 0 {
		add("STORE_TIMEOUT must be positive")
	}
	if c.ProcessingDelay < 0 {
		add("PROCESSING_DELAY must not be negative")
	}

	if !c.UseSimulateDirect {
		switch c.BrokerKind {
		case broker.KindMQTT:
			if c.MQTTBroker == "" {
				add("MQTT_BROKER is required")
			}
			if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
				add("MQTT_PORT %d out of range", c.MQTTPort)
			}
		case broker.KindNATS:
			if c.NATSURL == "" {
				add("NATS_URL is required")
			}
		case broker.KindKafka:
			if len(c.KafkaBrokers) == 0 {
				add("KAFKA_BROKERS is required")
			}
		default:
			add("BROKER_KIND %q is not one of mqtt, nats, kafka", c.BrokerKind)
		}
		if c.TopicRequests == "" || c.TopicResponses == "" {
			add("MQTT_TOPIC_REQ and MQTT_TOPIC_RESP are required")
		}
		if c.MaxRetries <= 0 {
			add("MQTT_MAX_RETRIES must be positive")
		}
		if c.RetryDelay < 0 {
			add("MQTT_RETRY_DELAY must not be negative")
		}
	}

	if c.ReconcileSchedule != "" && c.ReconcileAfter <= c.ProcessingDelay {
		add("RECONCILE_AFTER must exceed PROCESSING_DELAY")
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// AllowedOrigins returns the CORS origins including FRONTEND_URL when set.
func (c Config) AllowedOrigins() []string {
	origins := append([]string(nil), c.CORSOrigins...)
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	return origins
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Broker returns the transport settings for the configured broker kind.
func (c Config) Broker() broker.Config {
	return broker.Config{
		Kind: c.BrokerKind,
		MQTT: broker.MQTTConfig{
			Host:     c.MQTTBroker,
			Port:     c.MQTTPort,
			ClientID: c.MQTTClientID,
			Username: c.MQTTUsername,
			Password: c.MQTTPassword,
			TLS:      c.MQTTTLS,
		},
		NATS: broker.NATSConfig{
			URL:      c.NATSURL,
			Name:     c.MQTTClientID,
			Username: c.MQTTUsername,
			Password: c.MQTTPassword,
		},
		Kafka: broker.KafkaConfig{
			Brokers: c.KafkaBrokers,
			GroupID: c.KafkaGroupID,
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
