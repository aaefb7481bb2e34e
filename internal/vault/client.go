// Package vault reads secrets from HashiCorp Vault's KV v2 engine. It backs
// the document store's URL-signing key; when Vault is disabled the key comes
// from the environment instead.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// Client wraps the HashiCorp Vault API for KV reads
type Client struct {
	client  *api.Client
	kvMount string
}

// Config holds Vault configuration
type Config struct {
	Address string
	Token   string
	KVMount string
}

// NewClient creates a new Vault client
func NewClient(cfg *Config) (*Client, error) {
	config := api.DefaultConfig()
	config.Address = cfg.Address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client:  client,
		kvMount: cfg.KVMount,
	}, nil
}

// ReadSecret reads one field of a KV v2 secret
func (c *Client) ReadSecret(ctx context.Context, path, field string) (string, error) {
	secret, err := c.client.KVv2(c.kvMount).Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", path, err)
	}

	value, ok := secret.Data[field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("secret %s has no %s field", path, field)
	}

	return value, nil
}

// WriteSecret writes one field of a KV v2 secret
func (c *Client) WriteSecret(ctx context.Context, path, field, value string) error {
	_, err := c.client.KVv2(c.kvMount).Put(ctx, path, map[string]interface{}{
		field: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write secret %s: %w", path, err)
	}
	return nil
}

// Health checks connectivity to the Vault server
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
