package credentials

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"crm-sync/internal/salesforce"
	"crm-sync/testutil"
)

type VaultProviderTestSuite struct {
	suite.Suite
	ctx         context.Context
	vaultHelper *testutil.VaultHelper
}

func TestVaultProviderSuite(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		t.Skip("Skipping integration tests")
	}
	suite.Run(t, new(VaultProviderTestSuite))
}

func (suite *VaultProviderTestSuite) SetupSuite() {
	suite.ctx = context.Background()

	var err error
	suite.vaultHelper, err = testutil.NewVaultContainer(suite.T(), suite.ctx)
	suite.Require().NoError(err, "Failed to create Vault test container")
}

func (suite *VaultProviderTestSuite) TearDownSuite() {
	if suite.vaultHelper != nil {
		suite.Require().NoError(suite.vaultHelper.Terminate(suite.ctx))
	}
}

func (suite *VaultProviderTestSuite) TestNewProvider_OverlaysSecretOnConfig() {
	_, err := suite.vaultHelper.WriteSecret(suite.ctx, "secret", "crm/salesforce", map[string]string{
		"username":       "integration@example.com",
		"password":       "s3cret",
		"security_token": "tok",
		"client_id":      "vault-client",
		"client_secret":  "vault-client-secret",
	})
	suite.Require().NoError(err)

	cfg := vaultConfig(suite.vaultHelper.Address, suite.vaultHelper.Token)
	cfg.InstanceURL = "https://example.my.salesforce.com"

	provider, err := NewProvider(cfg)
	suite.Require().NoError(err)

	creds, err := provider.Credentials(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(salesforce.Credentials{
		Username:      "integration@example.com",
		Password:      "s3cret",
		SecurityToken: "tok",
		ClientID:      "vault-client",
		ClientSecret:  "vault-client-secret",
		InstanceURL:   "https://example.my.salesforce.com",
	}, creds)
}

func (suite *VaultProviderTestSuite) TestNewProvider_PicksUpRotatedPassword() {
	write := func(password string) {
		_, err := suite.vaultHelper.WriteSecret(suite.ctx, "secret", "crm/rotation", map[string]string{
			"username": "rotating@example.com",
			"password": password,
		})
		suite.Require().NoError(err)
	}

	cfg := vaultConfig(suite.vaultHelper.Address, suite.vaultHelper.Token)
	cfg.Vault.Path = "crm/rotation"
	provider, err := NewProvider(cfg)
	suite.Require().NoError(err)

	write("first")
	creds, err := provider.Credentials(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal("first", creds.Password)
	suite.Equal("config-client", creds.ClientID)

	write("second")
	creds, err = provider.Credentials(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal("second", creds.Password)
}

func (suite *VaultProviderTestSuite) TestNewProvider_MissingPasswordInSecret() {
	_, err := suite.vaultHelper.WriteSecret(suite.ctx, "secret", "crm/partial", map[string]string{
		"username": "partial@example.com",
	})
	suite.Require().NoError(err)

	cfg := vaultConfig(suite.vaultHelper.Address, suite.vaultHelper.Token)
	cfg.Vault.Path = "crm/partial"
	provider, err := NewProvider(cfg)
	suite.Require().NoError(err)

	_, err = provider.Credentials(suite.ctx)
	suite.ErrorIs(err, ErrMissingCredential)
}
