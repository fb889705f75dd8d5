// Package hashicorp provides a HashiCorp Vault Transit encryptor for
// encxorm.
//
// The Transit engine performs encryption as a service: keys never leave
// Vault, and every value is sent to Vault to be encrypted or decrypted.
// Ciphertext has the form "vault:v1:<base64>", which cannot contain the
// encxorm marker characters.
//
// # Setup
//
// Before using this provider, you need:
//
//  1. A Vault server (self-hosted or HCP Vault)
//  2. Token or AppRole authentication
//  3. The Transit engine enabled, by default at "transit/"
//
// Enable the engine and create a key:
//
//	vault secrets enable transit
//	vault write -f transit/keys/encxorm
//
// or call TransitEncryptor.CreateKey once.
//
// # Vault Policy
//
//	path "transit/encrypt/encxorm" {
//	  capabilities = ["update"]
//	}
//	path "transit/decrypt/encxorm" {
//	  capabilities = ["update"]
//	}
//	path "transit/keys/encxorm" {
//	  capabilities = ["create", "update"]
//	}
//
// # Environment Variables
//
// Values from encxorm.VaultConfig take precedence over these:
//
//   - VAULT_ADDR: Vault server address (required when address is not configured)
//   - VAULT_NAMESPACE: Vault namespace (optional, Enterprise/HCP)
//   - VAULT_TOKEN: token authentication
//   - VAULT_ROLE_ID, VAULT_SECRET_ID: AppRole authentication, used when no token is set
//
// # Usage
//
//	registry := encxorm.NewRegistry()
//	err := hashicorp.Register(registry, encxorm.VaultConfig{KeyName: "encxorm"})
//	...
//	m, _ := encxorm.NewMigrator(source, encxorm.WithRegistry(registry))
//	result, err := m.Migrate(ctx, encxorm.WithMigrationEncryptor(hashicorp.EncryptorName))
//
// Every call is a network round trip to Vault, so bulk migrations are
// slower than with the key-file encryptors.
package hashicorp
