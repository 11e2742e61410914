package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"payment-relay/pkg/store"
)

// Keys read from the Vault KV v2 secret.
const (
	secretDatabaseURL  = "database_url"
	secretMQTTUsername = "mqtt_username"
	secretMQTTPassword = "mqtt_password"
)

// ResolveSecrets overrides credentials with values from Vault when VAULT_ADDR
// and VAULT_SECRET_PATH are set. Keys absent from the secret leave the
// environment values in place.
func ResolveSecrets(ctx context.Context, cfg Config) (Config, error) {
	if cfg.VaultAddr == "" || cfg.VaultSecretPath == "" {
		return cfg, nil
	}

	vaultCfg := api.DefaultConfig()
	if vaultCfg.Error != nil {
		return cfg, fmt.Errorf("failed to build Vault config: %w", vaultCfg.Error)
	}
	vaultCfg.Address = cfg.VaultAddr

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.VaultToken != "" {
		client.SetToken(cfg.VaultToken)
	}

	secret, err := client.KVv2(cfg.VaultMount).Get(ctx, cfg.VaultSecretPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read Vault secret %s/%s: %w", cfg.VaultMount, cfg.VaultSecretPath, err)
	}

	override := func(dst *string, key string) {
		if v, ok := secret.Data[key].(string); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.DatabaseURL, secretDatabaseURL)
	override(&cfg.MQTTUsername, secretMQTTUsername)
	override(&cfg.MQTTPassword, secretMQTTPassword)

	if cfg.DatabaseURL == "" && cfg.StoreDriver != store.DriverMemory {
		return cfg, &ConfigError{Problems: []string{
			fmt.Sprintf("DATABASE_URL missing from environment and Vault secret %s", cfg.VaultSecretPath),
		}}
	}
	return cfg, nil
}
