// Package aws holds the AWS-backed adapters: KMS decryption for blobs
// encrypted under a KMS master key, and S3 retrieval of the encrypted blob.
package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/vitudev/secretboot/internal/blob"
	apperrors "github.com/vitudev/secretboot/internal/errors"
	"github.com/vitudev/secretboot/internal/infra/config"
)

// KMSAdapter decrypts config blobs whose envelope names the awskms backend.
type KMSAdapter struct {
	client    *kms.Client
	masterKey string
}

func NewKMSAdapter(cfg aws.Config, masterKeyARN string) *KMSAdapter {
	return &KMSAdapter{
		client:    kms.NewFromConfig(cfg),
		masterKey: masterKeyARN,
	}
}

// Login is a no-op for KMS: the SDK credential chain authenticates each call.
func (a *KMSAdapter) Login(ctx context.Context) error {
	return nil
}

// Decrypt sends the envelope ciphertext to KMS Decrypt.
func (a *KMSAdapter) Decrypt(ctx context.Context, env *blob.Envelope) ([]byte, error) {
	if env.Backend != config.BackendAWSKMS {
		return nil, fmt.Errorf("%w: envelope was encrypted with backend %q, not awskms", apperrors.ErrDecryption, env.Backend)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope ciphertext is not valid base64: %w", apperrors.ErrDecryption, err)
	}

	keyID := env.Key
	if keyID == "" {
		keyID = a.masterKey
	}

	result, err := a.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: ciphertext,
		KeyId:          &keyID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: kms decrypt with key %q: %w", apperrors.ErrDecryption, keyID, err)
	}

	return result.Plaintext, nil
}

// Encrypt wraps the plaintext under the configured KMS master key.
func (a *KMSAdapter) Encrypt(ctx context.Context, plaintext []byte) (*blob.Envelope, error) {
	result, err := a.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     &a.masterKey,
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: kms encrypt with key %q: %w", apperrors.ErrDecryption, a.masterKey, err)
	}

	return &blob.Envelope{
		Version:    blob.EnvelopeVersion,
		Backend:    config.BackendAWSKMS,
		Key:        a.masterKey,
		Ciphertext: base64.StdEncoding.EncodeToString(result.CiphertextBlob),
		CreatedAt:  time.Now().UTC(),
	}, nil
}
