// Package localkms is an AES-256-GCM decryption backend keyed by a local
// master key. It exists for development and for offline round-trip tests
// where neither Vault nor AWS is available.
package localkms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/vitudev/secretboot/internal/blob"
	apperrors "github.com/vitudev/secretboot/internal/errors"
	"github.com/vitudev/secretboot/internal/infra/config"
)

type Service struct {
	masterKey []byte
}

// NewService decodes the base64 master key. The key must be 32 bytes.
func NewService(masterKey string) (*Service, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode master key: %w", apperrors.ErrConfiguration, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: master key must be 32 bytes, got %d", apperrors.ErrConfiguration, len(key))
	}
	return &Service{masterKey: key}, nil
}

// Login is a no-op: the master key is the credential.
func (s *Service) Login(ctx context.Context) error {
	return nil
}

// Decrypt opens a nonce-prefixed GCM ciphertext.
func (s *Service) Decrypt(ctx context.Context, env *blob.Envelope) ([]byte, error) {
	if env.Backend != config.BackendLocal {
		return nil, fmt.Errorf("%w: envelope was encrypted with backend %q, not local", apperrors.ErrDecryption, env.Backend)
	}

	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope ciphertext is not valid base64: %w", apperrors.ErrDecryption, err)
	}

	gcm, err := s.newGCM()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext shorter than the GCM nonce", apperrors.ErrDecryption)
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDecryption, err)
	}

	return plaintext, nil
}

// Encrypt seals the plaintext with a fresh nonce, prefixing it to the
// ciphertext.
func (s *Service) Encrypt(ctx context.Context, plaintext []byte) (*blob.Envelope, error) {
	gcm, err := s.newGCM()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	return &blob.Envelope{
		Version:    blob.EnvelopeVersion,
		Backend:    config.BackendLocal,
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (s *Service) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDecryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDecryption, err)
	}
	return gcm, nil
}
