package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"crm-sync/internal/config"
	"crm-sync/internal/salesforce"
	"crm-sync/pkg/log"
)

var ErrMissingCredential = errors.New("credential secret is missing a required key")

// NewProvider returns the credentials source selected by the configuration.
func NewProvider(cfg *config.Salesforce) (salesforce.CredentialsProvider, error) {
	switch cfg.CredentialsSource {
	case config.CredentialsSourceVault:
		return NewVaultProvider(cfg)
	default:
		return NewStaticProvider(cfg), nil
	}
}

// StaticProvider serves credentials taken verbatim from the configuration.
type StaticProvider struct {
	creds salesforce.Credentials
}

func NewStaticProvider(cfg *config.Salesforce) *StaticProvider {
	return &StaticProvider{creds: fromConfig(cfg)}
}

func (p *StaticProvider) Credentials(context.Context) (salesforce.Credentials, error) {
	return p.creds, nil
}

// VaultProvider reads the credentials from a KV v2 secret on every call, so a rotated
// password is picked up at the next login. Keys absent from the secret fall back to the
// configuration.
type VaultProvider struct {
	client   *api.Client
	mount    string
	path     string
	fallback salesforce.Credentials
	logger   zerolog.Logger
}

func NewVaultProvider(cfg *config.Salesforce) (*VaultProvider, error) {
	vaultCfg := api.DefaultConfig()
	if cfg.Vault.Address != "" {
		vaultCfg.Address = cfg.Vault.Address
	}
	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Vault.Token != "" {
		client.SetToken(cfg.Vault.Token)
	}

	return &VaultProvider{
		client:   client,
		mount:    cfg.Vault.Mount,
		path:     cfg.Vault.Path,
		fallback: fromConfig(cfg),
		logger: log.Logger.With().
			Str("component", "vault_credentials").
			Str("mount", cfg.Vault.Mount).
			Str("path", cfg.Vault.Path).
			Logger(),
	}, nil
}

func (p *VaultProvider) Credentials(ctx context.Context) (salesforce.Credentials, error) {
	secret, err := p.client.KVv2(p.mount).Get(ctx, p.path)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to read credentials from vault")
		return salesforce.Credentials{}, fmt.Errorf("failed to read %s/%s from vault: %w", p.mount, p.path, err)
	}

	creds := p.fallback
	overlay(&creds.Username, secret.Data, "username")
	overlay(&creds.Password, secret.Data, "password")
	overlay(&creds.SecurityToken, secret.Data, "security_token")
	overlay(&creds.ClientID, secret.Data, "client_id")
	overlay(&creds.ClientSecret, secret.Data, "client_secret")

	if creds.Username == "" || creds.Password == "" {
		return salesforce.Credentials{}, fmt.Errorf("%w: username and password are required", ErrMissingCredential)
	}

	version := 0
	if secret.VersionMetadata != nil {
		version = secret.VersionMetadata.Version
	}
	p.logger.Debug().Int("version", version).Msg("Loaded credentials from vault")
	return creds, nil
}

func overlay(target *string, data map[string]interface{}, key string) {
	if value, ok := data[key].(string); ok && value != "" {
		*target = value
	}
}

func fromConfig(cfg *config.Salesforce) salesforce.Credentials {
	return salesforce.Credentials{
		Username:      cfg.Username,
		Password:      cfg.Password,
		SecurityToken: cfg.SecurityToken,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		AccessToken:   cfg.AccessToken,
		InstanceURL:   cfg.InstanceURL,
	}
}
