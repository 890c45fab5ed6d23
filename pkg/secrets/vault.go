package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"lighttavern/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

const (
	defaultSecretsPath = "secret/data/lighttavern"
	secretCacheTTL     = 5 * time.Minute
)

// VaultManager resolves secrets from HashiCorp Vault with an environment
// variable fallback, so development works without a Vault deployment.
// Resolved values are cached and flushed on a fixed interval.
type VaultManager struct {
	client      *vault.Client
	secretsPath string
	enabled     bool
	log         *logger.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewVaultManager builds a manager from VAULT_* environment variables.
// With VAULT_ENABLED unset or truthy, VAULT_ADDR and VAULT_TOKEN are
// required; otherwise the manager serves environment variables only.
func NewVaultManager(log *logger.Logger) (*VaultManager, error) {
	enabled := true
	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		enabled = v == "true" || v == "1" || v == "yes"
	}

	manager := &VaultManager{
		secretsPath: os.Getenv("VAULT_SECRETS_PATH"),
		enabled:     enabled,
		log:         log,
		cache:       make(map[string]string),
	}
	if manager.secretsPath == "" {
		manager.secretsPath = defaultSecretsPath
	}

	if !enabled {
		return manager, nil
	}

	addr := os.Getenv("VAULT_ADDR")
	token := os.Getenv("VAULT_TOKEN")
	if addr == "" {
		return nil, ErrNoVaultAddress
	}
	if token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = addr
	vaultConfig.Timeout = 10 * time.Second
	vaultConfig.MaxRetries = 3

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		client.SetNamespace(ns)
	}

	manager.client = client
	go manager.flushCache()

	return manager, nil
}

// GetSecret resolves a secret by key, consulting the cache, then Vault,
// then the environment (key uppercased, - and . mapped to _).
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	cached, found := m.cache[key]
	m.mu.RUnlock()
	if found {
		return cached, nil
	}

	if !m.enabled {
		return m.getFromEnvironment(key)
	}

	value, err := m.getFromVault(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("Secret not found in Vault, falling back to environment", "key", key)
			return m.getFromEnvironment(key)
		}
		return "", err
	}

	m.cacheSecret(key, value)
	return value, nil
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		m.log.Warn("Failed to get secret, using default value",
			"key", key,
			"error", err.Error(),
		)
		return defaultValue
	}
	return value
}

func (m *VaultManager) getFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2("secret").Get(ctx, m.secretsPath)
	if err != nil {
		m.log.Error("Failed to read secret from Vault",
			"path", m.secretsPath,
			"error", err.Error(),
		)
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", ErrSecretNotFound
	}

	value, ok := data[key].(string)
	if !ok {
		return "", ErrSecretNotFound
	}

	return value, nil
}

func (m *VaultManager) getFromEnvironment(key string) (string, error) {
	replacer := strings.NewReplacer("-", "_", ".", "_")
	envKey := strings.ToUpper(replacer.Replace(key))

	value := os.Getenv(envKey)
	if value == "" {
		return "", ErrSecretNotFound
	}

	m.cacheSecret(key, value)
	return value, nil
}

func (m *VaultManager) cacheSecret(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
}

// flushCache clears cached secrets periodically so rotations take effect.
func (m *VaultManager) flushCache() {
	ticker := time.NewTicker(secretCacheTTL)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		m.cache = make(map[string]string)
		m.mu.Unlock()

		m.log.Debug("Secret cache cleared")
	}
}
