// Package wiring builds the bootstrap dependency graph from configuration.
package wiring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/vitudev/secretboot/internal/blob"
	"github.com/vitudev/secretboot/internal/bootstrap"
	apperrors "github.com/vitudev/secretboot/internal/errors"
	infraaws "github.com/vitudev/secretboot/internal/infra/aws"
	infraconfig "github.com/vitudev/secretboot/internal/infra/config"
	"github.com/vitudev/secretboot/internal/infra/localkms"
	"github.com/vitudev/secretboot/internal/infra/vault"
	"github.com/vitudev/secretboot/internal/source"
)

// CryptoBackend is the full surface a backend offers: the bootstrap uses
// Login and Decrypt, the out-of-band encryption workflow uses Encrypt.
type CryptoBackend interface {
	bootstrap.Authenticator
	bootstrap.Decryptor
	Encrypt(ctx context.Context, plaintext []byte) (*blob.Envelope, error)
}

// BuildRunner wires a ready-to-run bootstrap from config.
func BuildRunner(ctx context.Context, cfg *infraconfig.Config, logger *slog.Logger) (*bootstrap.Runner, error) {
	backend, err := BuildBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	src, err := buildSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	classifier := apperrors.NewErrorClassifier(logger)

	return bootstrap.NewRunner(backend, src, backend, cfg.Output.Path, cfg.StepTimeout, classifier, logger), nil
}

// BuildBackend selects the decryption backend named by the config.
func BuildBackend(ctx context.Context, cfg *infraconfig.Config, logger *slog.Logger) (CryptoBackend, error) {
	switch cfg.Decrypt.Backend {
	case infraconfig.BackendVault:
		client, err := vault.NewClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case infraconfig.BackendAWSKMS:
		awsCfg, err := loadAWSConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		return infraaws.NewKMSAdapter(awsCfg, cfg.AWS.KMSKeyARN), nil
	case infraconfig.BackendLocal:
		svc, err := localkms.NewService(cfg.Local.MasterKey)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("%w: unknown decrypt backend %q", apperrors.ErrConfiguration, cfg.Decrypt.Backend)
	}
}

func buildSource(ctx context.Context, cfg *infraconfig.Config, logger *slog.Logger) (source.BlobSource, error) {
	switch cfg.Source.Type {
	case infraconfig.SourceFile:
		return source.NewFileSource(cfg.Source.Path), nil
	case infraconfig.SourceS3:
		awsCfg, err := loadAWSConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		return infraaws.NewS3Source(awsCfg, cfg.Source.Bucket, cfg.Source.Key, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", apperrors.ErrConfiguration, cfg.Source.Type)
	}
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: failed to load aws config: %w", apperrors.ErrConfiguration, err)
	}
	return awsCfg, nil
}
