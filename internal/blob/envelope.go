// Package blob defines the on-disk envelope for the encrypted config blob.
// The envelope carries the ciphertext plus the metadata needed to find the
// key that encrypted it. It is produced out-of-band by `secretboot encrypt`
// and never mutated by the bootstrap.
package blob

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/vitudev/secretboot/internal/errors"
)

// EnvelopeVersion is the only envelope format this build understands.
const EnvelopeVersion = 1

type Envelope struct {
	Version int `json:"version"`

	// Backend names the decryption backend the ciphertext belongs to:
	// vault, awskms or local.
	Backend string `json:"backend"`

	// Key identifies the encryption key within the backend: a transit key
	// name for vault, a key ARN for awskms, empty for local.
	Key string `json:"key,omitempty"`

	// Ciphertext is the backend-native ciphertext. Vault transit emits its
	// own "vault:v1:..." format; the other backends use standard base64.
	Ciphertext string `json:"ciphertext"`

	CreatedAt time.Time `json:"created_at"`
}

// Parse decodes and validates an envelope.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %w", apperrors.ErrDecryption, err)
	}

	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", apperrors.ErrDecryption, env.Version)
	}
	if env.Backend == "" {
		return nil, fmt.Errorf("%w: envelope is missing the backend field", apperrors.ErrDecryption)
	}
	if env.Ciphertext == "" {
		return nil, fmt.Errorf("%w: envelope is missing the ciphertext field", apperrors.ErrDecryption)
	}

	return &env, nil
}

// Encode serializes an envelope for storage.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return append(data, '\n'), nil
}
