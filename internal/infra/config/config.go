package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	apperrors "github.com/vitudev/secretboot/internal/errors"
)

// Backend selects the decryption backend for the encrypted config blob.
const (
	BackendVault  = "vault"
	BackendAWSKMS = "awskms"
	BackendLocal  = "local"
)

// Source types for the encrypted config blob.
const (
	SourceFile = "file"
	SourceS3   = "s3"
)

type Config struct {
	// StepTimeout bounds each bootstrap step (login, fetch, decrypt, write).
	StepTimeout time.Duration `mapstructure:"step_timeout" validate:"required"`

	JWT     JWTConfig     `mapstructure:"jwt"`
	Vault   VaultConfig   `mapstructure:"vault"`
	Decrypt DecryptConfig `mapstructure:"decrypt"`
	Source  SourceConfig  `mapstructure:"source"`
	Output  OutputConfig  `mapstructure:"output"`
	AWS     AWSConfig     `mapstructure:"aws"`
	Local   LocalConfig   `mapstructure:"local"`
}

type JWTConfig struct {
	// Path to the projected service-account token. The platform rotates the
	// file; it is read fresh on every run.
	Path string `mapstructure:"path" validate:"required"`
}

type VaultConfig struct {
	Addr         string        `mapstructure:"addr"          validate:"omitempty,url"`
	Role         string        `mapstructure:"role"          validate:"required"`
	AuthMount    string        `mapstructure:"auth_mount"    validate:"required"`
	TransitMount string        `mapstructure:"transit_mount" validate:"required"`
	TransitKey   string        `mapstructure:"transit_key"   validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout"       validate:"required"`
}

type DecryptConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=vault awskms local"`
}

type SourceConfig struct {
	Type   string `mapstructure:"type" validate:"required,oneof=file s3"`
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
	Key    string `mapstructure:"key"`
}

type OutputConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type AWSConfig struct {
	Region    string `mapstructure:"region"`
	KMSKeyARN string `mapstructure:"kms_key_arn"`
}

type LocalConfig struct {
	// MasterKey is a base64-encoded 32-byte AES key. Dev and test only.
	MasterKey string `mapstructure:"master_key"`
}

// Load reads configuration from an optional YAML file and the environment.
// Keys map to env vars with "." replaced by "_", so the deployment contract
// stays JWT_PATH and VAULT_ADDR.
func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("secretboot")
		vip.AddConfigPath("/etc/secretboot")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.AutomaticEnv()
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	vip.SetDefault("step_timeout", "30s")
	vip.SetDefault("jwt.path", "/var/run/secrets/kubernetes.io/serviceaccount/token")
	vip.SetDefault("vault.addr", "")
	vip.SetDefault("vault.role", "sops")
	vip.SetDefault("vault.auth_mount", "kubernetes")
	vip.SetDefault("vault.transit_mount", "sops")
	vip.SetDefault("vault.transit_key", "vitubot")
	vip.SetDefault("vault.timeout", "10s")
	vip.SetDefault("decrypt.backend", BackendVault)
	vip.SetDefault("source.type", SourceFile)
	vip.SetDefault("source.path", "/vitubot/config.enc")
	vip.SetDefault("source.bucket", "")
	vip.SetDefault("source.key", "")
	vip.SetDefault("output.path", "/vitubot/config")
	vip.SetDefault("aws.region", "")
	vip.SetDefault("aws.kms_key_arn", "")
	vip.SetDefault("local.master_key", "")

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config file: %w", apperrors.ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", apperrors.ErrConfiguration, err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: config validation failed: %w", apperrors.ErrConfiguration, err)
	}

	if err := cfg.validateCrossFields(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateCrossFields enforces per-backend and per-source requirements that
// struct tags cannot express across nested structs.
func (c *Config) validateCrossFields() error {
	switch c.Decrypt.Backend {
	case BackendVault:
		if c.Vault.Addr == "" {
			return fmt.Errorf("%w: VAULT_ADDR is required for the vault backend", apperrors.ErrConfiguration)
		}
	case BackendAWSKMS:
		if c.AWS.Region == "" {
			return fmt.Errorf("%w: AWS_REGION is required for the awskms backend", apperrors.ErrConfiguration)
		}
		if c.AWS.KMSKeyARN == "" {
			return fmt.Errorf("%w: AWS_KMS_KEY_ARN is required for the awskms backend", apperrors.ErrConfiguration)
		}
	case BackendLocal:
		if c.Local.MasterKey == "" {
			return fmt.Errorf("%w: LOCAL_MASTER_KEY is required for the local backend", apperrors.ErrConfiguration)
		}
	}

	switch c.Source.Type {
	case SourceFile:
		if c.Source.Path == "" {
			return fmt.Errorf("%w: SOURCE_PATH is required for the file source", apperrors.ErrConfiguration)
		}
	case SourceS3:
		if c.Source.Bucket == "" || c.Source.Key == "" {
			return fmt.Errorf("%w: SOURCE_BUCKET and SOURCE_KEY are required for the s3 source", apperrors.ErrConfiguration)
		}
		if c.AWS.Region == "" {
			return fmt.Errorf("%w: AWS_REGION is required for the s3 source", apperrors.ErrConfiguration)
		}
	}

	return nil
}
