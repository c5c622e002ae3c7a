package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	CredentialsSourceConfig = "config"
	CredentialsSourceVault  = "vault"

	WatermarkMirrorMax = "mirror_max"
	WatermarkRunStart  = "run_start"
)

var ErrIntervalNotSet = errors.New("interval must be set to a positive number of seconds to run the daemon")

// Config represents the configuration for crm-sync.
type Config struct {
	ID             string     `mapstructure:"id"               json:"id"               validate:"required"`
	LogLevel       string     `mapstructure:"log_level"        json:"log_level"        validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	LogFile        string     `mapstructure:"log_file"         json:"log_file"`
	Interval       int        `mapstructure:"interval"         json:"interval"         validate:"omitempty,gt=0"`
	Concurrency    int        `mapstructure:"concurrency"      json:"concurrency"      validate:"gt=0"`
	Tables         []string   `mapstructure:"tables"           json:"tables"           validate:"unique,dive,required"`
	TablesToIgnore []string   `mapstructure:"tables_to_ignore" json:"tables_to_ignore" validate:"dive,required"`
	MappingDir     string     `mapstructure:"mapping_dir"      json:"mapping_dir"      validate:"required"`
	Postgres       Postgres   `mapstructure:"postgres"         json:"postgres"`
	Salesforce     Salesforce `mapstructure:"salesforce"       json:"salesforce"`
	Sync           Sync       `mapstructure:"sync"             json:"sync"`
}

type Postgres struct {
	Address        string `mapstructure:"address"         json:"address"         validate:"required,hostname_rfc1123|ip"`
	Port           int    `mapstructure:"port"            json:"port"            validate:"required,gt=0,lt=65536"`
	Username       string `mapstructure:"username"        json:"username"        validate:"required"`
	Password       string `mapstructure:"password"        json:"password"        validate:"required"`
	DBName         string `mapstructure:"db_name"         json:"db_name"         validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode"        json:"ssl_mode"        validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConnections int    `mapstructure:"max_connections" json:"max_connections" validate:"gt=0"`
	// Schema holding the mirror tables. Empty means the connection's search_path.
	Schema     string `mapstructure:"schema"      json:"schema"`
	QuoteNames bool   `mapstructure:"quote_names" json:"quote_names"`
}

type Salesforce struct {
	LoginURL          string           `mapstructure:"login_url"          json:"login_url"          validate:"required,url"`
	APIVersion        string           `mapstructure:"api_version"        json:"api_version"        validate:"required"`
	InstanceURL       string           `mapstructure:"instance_url"       json:"instance_url"       validate:"omitempty,url"`
	AccessToken       string           `mapstructure:"access_token"       json:"access_token"`
	ClientID          string           `mapstructure:"client_id"          json:"client_id"`
	ClientSecret      string           `mapstructure:"client_secret"      json:"client_secret"`
	Username          string           `mapstructure:"username"           json:"username"`
	Password          string           `mapstructure:"password"           json:"password"`
	SecurityToken     string           `mapstructure:"security_token"     json:"security_token"`
	Timeout           time.Duration    `mapstructure:"timeout"            json:"timeout"            validate:"gt=0"`
	CredentialsSource string           `mapstructure:"credentials_source" json:"credentials_source" validate:"oneof=config vault"`
	Vault             VaultCredentials `mapstructure:"vault"              json:"vault"`
}

// VaultCredentials locates a KV v2 secret holding the Salesforce credentials.
type VaultCredentials struct {
	Address string `mapstructure:"address" json:"address"`
	Token   string `mapstructure:"token"   json:"token"`
	Mount   string `mapstructure:"mount"   json:"mount"`
	Path    string `mapstructure:"path"    json:"path"`
}

type Sync struct {
	WatermarkStrategy      string        `mapstructure:"watermark_strategy"       json:"watermark_strategy"       validate:"oneof=mirror_max run_start"`
	SafetyMargin           time.Duration `mapstructure:"safety_margin"            json:"safety_margin"            validate:"gte=0"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" json:"max_consecutive_failures" validate:"gte=0"`
	SpoolDir               string        `mapstructure:"spool_dir"                json:"spool_dir"`
}

//nolint:mnd
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("concurrency", 1)
	viper.SetDefault("mapping_dir", "mapping")
	viper.SetDefault("postgres.ssl_mode", "disable")
	viper.SetDefault("postgres.max_connections", 10)
	viper.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	viper.SetDefault("salesforce.api_version", "59.0")
	viper.SetDefault("salesforce.timeout", 2*time.Minute)
	viper.SetDefault("salesforce.credentials_source", CredentialsSourceConfig)
	viper.SetDefault("salesforce.vault.mount", "secret")
	viper.SetDefault("sync.watermark_strategy", WatermarkMirrorMax)
	viper.SetDefault("sync.max_consecutive_failures", 3)
}

// NewConfig builds the configuration from whatever viper has loaded (file, env, flags)
// and validates it.
func NewConfig() (*Config, error) {
	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the configured file (if any) before building the configuration.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return NewConfig()
}

func (c *Config) validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(salesforceStructLevelValidation, Salesforce{})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, formatFieldError(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, ", "))
}

func salesforceStructLevelValidation(sl validator.StructLevel) {
	sf, ok := sl.Current().Interface().(Salesforce)
	if !ok {
		return
	}

	switch sf.CredentialsSource {
	case CredentialsSourceVault:
		if sf.Vault.Address == "" {
			sl.ReportError(sf.Vault.Address, "Vault.Address", "Address", "required_with_vault", "")
		}
		if sf.Vault.Token == "" {
			sl.ReportError(sf.Vault.Token, "Vault.Token", "Token", "required_with_vault", "")
		}
		if sf.Vault.Path == "" {
			sl.ReportError(sf.Vault.Path, "Vault.Path", "Path", "required_with_vault", "")
		}
	case CredentialsSourceConfig:
		if sf.AccessToken != "" && sf.InstanceURL != "" {
			return
		}
		if sf.Username == "" {
			sl.ReportError(sf.Username, "Username", "Username", "required_without_token", "")
		}
		if sf.Password == "" {
			sl.ReportError(sf.Password, "Password", "Password", "required_without_token", "")
		}
		if sf.ClientID == "" {
			sl.ReportError(sf.ClientID, "ClientID", "ClientID", "required_without_token", "")
		}
	}
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without_token":
		return field + " is required unless access_token and instance_url are set"
	case "required_with_vault":
		return field + " is required when credentials_source is vault"
	case "hostname_rfc1123|ip":
		return field + " must be a valid hostname or IP address"
	case "url":
		return field + " must be a valid URL"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "unique":
		return field + " must contain unique items"
	default:
		return fmt.Sprintf("%s failed on the '%s' tag", field, fe.Tag())
	}
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	const mask = "xxxxx"
	redact := func(s string) string {
		if s == "" {
			return s
		}
		return mask
	}

	c.Postgres.Password = redact(c.Postgres.Password)
	c.Salesforce.AccessToken = redact(c.Salesforce.AccessToken)
	c.Salesforce.ClientSecret = redact(c.Salesforce.ClientSecret)
	c.Salesforce.Password = redact(c.Salesforce.Password)
	c.Salesforce.SecurityToken = redact(c.Salesforce.SecurityToken)
	c.Salesforce.Vault.Token = redact(c.Salesforce.Vault.Token)
	c.Tables = append([]string(nil), c.Tables...)
	c.TablesToIgnore = append([]string(nil), c.TablesToIgnore...)
	return c
}

// IntervalDuration returns the daemon interval as a duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// DaemonInterval returns the interval between daemon passes. Only the daemon needs one.
func (c *Config) DaemonInterval() (time.Duration, error) {
	if c.Interval <= 0 {
		return 0, ErrIntervalNotSet
	}
	return c.IntervalDuration(), nil
}
