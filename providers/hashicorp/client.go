package hashicorp

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"
	"github.com/hengadev/encxorm"
)

// newClient creates a Vault client from cfg, falling back to the standard
// Vault environment variables for anything left empty.
//
// Environment Variables:
//   - VAULT_ADDR: Vault server address, used when cfg.Address is empty
//   - VAULT_NAMESPACE: Vault namespace for HCP Vault (optional)
//   - VAULT_TOKEN: Vault token, used when cfg.Token is empty
//   - VAULT_ROLE_ID / VAULT_SECRET_ID: AppRole credentials, used when no token is set
//
// Authentication Priority:
//  1. cfg.Token, then VAULT_TOKEN
//  2. AppRole login with VAULT_ROLE_ID and VAULT_SECRET_ID
//  3. Otherwise, returns error (no authentication method available)
func newClient(ctx context.Context, cfg encxorm.VaultConfig) (*api.Client, error) {
	config := api.DefaultConfig()

	addr := cfg.Address
	if addr == "" {
		addr = os.Getenv("VAULT_ADDR")
	}
	if addr == "" {
		return nil, fmt.Errorf("%w: vault address is required (set vault.address or VAULT_ADDR)", encxorm.ErrInvalidConfiguration)
	}
	config.Address = addr

	// Configure HTTP transport with proxy support
	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if namespace := os.Getenv("VAULT_NAMESPACE"); namespace != "" {
		client.SetNamespace(namespace)
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token != "" {
		client.SetToken(token)
		return client, nil
	}

	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID != "" && secretID != "" {
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to login with AppRole: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("no auth info returned from AppRole login")
		}
		client.SetToken(resp.Auth.ClientToken)
		return client, nil
	}

	return nil, fmt.Errorf("%w: no Vault authentication method configured (set VAULT_TOKEN or VAULT_ROLE_ID+VAULT_SECRET_ID)",
		encxorm.ErrInvalidConfiguration)
}
