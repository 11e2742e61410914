package config

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
}

func TestLoadDefaults(t *testing.T) {
	memoryEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.Equal(t, "mqtt", cfg.BrokerKind)
	assert.Equal(t, "payments/requests", cfg.TopicRequests)
	assert.Equal(t, "payments/responses", cfg.TopicResponses)
	assert.Equal(t, 10, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.ProcessingDelay)
	assert.False(t, cfg.UseSimulateDirect)
	assert.Equal(t, "tcp://localhost:1883", cfg.Broker().Describe())
}

func TestLoadFromEnvironment(t *testing.T) {
	memoryEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("BROKER_KIND", "NATS")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("MQTT_RETRY_DELAY", "5")
	t.Setenv("PROCESSING_DELAY", "0s")
	t.Setenv("USE_SIMULATE_DIRECT", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("FRONTEND_URL", "https://payments.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "nats", cfg.BrokerKind)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Zero(t, cfg.ProcessingDelay)
	assert.True(t, cfg.UseSimulateDirect)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "https://payments.example", cfg.AllowedOrigins()[len(cfg.AllowedOrigins())-1])
}

func TestLoadEnvFile(t *testing.T) {
	memoryEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RELAY_TEST_ONLY=1\nMQTT_CLIENT_ID=from-file\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("RELAY_TEST_ONLY")
		_ = os.Unsetenv("MQTT_CLIENT_ID")
	})

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.MQTTClientID)
}

func TestValidate(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BROKER_KIND", "carrier-pigeon")
	t.Setenv("MQTT_MAX_RETRIES", "0")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Problems, 3)
}

func TestValidate_DirectModeSkipsBroker(t *testing.T) {
	memoryEnv(t)
	t.Setenv("USE_SIMULATE_DIRECT", "true")
	t.Setenv("BROKER_KIND", "unknown")

	_, err := Load()
	assert.NoError(t, err)
}

func TestValidate_ReconcileAfterMustExceedDelay(t *testing.T) {
	memoryEnv(t)
	t.Setenv("RECONCILE_SCHEDULE", "@every 1m")
	t.Setenv("RECONCILE_AFTER", "100ms")

	_, err := Load()
	assert.ErrorIs(t, err, ErrConfig)
}

func fakeVault(t *testing.T, data map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/payment-relay" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"request_id":     "1",
			"lease_id":       "",
			"renewable":      false,
			"lease_duration": 0,
			"data": map[string]any{
				"data": data,
				"metadata": map[string]any{
					"created_time":    "2024-01-01T00:00:00Z",
					"custom_metadata": nil,
					"deletion_time":   "",
					"destroyed":       false,
					"version":         1,
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveSecrets(t *testing.T) {
	srv := fakeVault(t, map[string]any{
		"database_url":  "postgres://relay:secret@db/payments",
		"mqtt_password": "broker-secret",
	})

	cfg := Config{
		StoreDriver:     "postgres",
		MQTTUsername:    "env-user",
		MQTTPassword:    "env-pass",
		VaultAddr:       srv.URL,
		VaultToken:      "test-token",
		VaultMount:      "secret",
		VaultSecretPath: "payment-relay",
	}

	got, err := ResolveSecrets(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "postgres://relay:secret@db/payments", got.DatabaseURL)
	assert.Equal(t, "env-user", got.MQTTUsername)
	assert.Equal(t, "broker-secret", got.MQTTPassword)
}

func TestResolveSecrets_MissingSecret(t *testing.T) {
	srv := fakeVault(t, nil)
	cfg := Config{
		StoreDriver:     "postgres",
		VaultAddr:       srv.URL,
		VaultToken:      "test-token",
		VaultMount:      "secret",
		VaultSecretPath: "does-not-exist",
	}

	_, err := ResolveSecrets(context.Background(), cfg)
	assert.Error(t, err)
}

func TestResolveSecrets_Disabled(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://local"}
	got, err := ResolveSecrets(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
