// Package vault implements the Vault side of the bootstrap: the Kubernetes
// auth login and transit encrypt/decrypt against the configured mount.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	hashivault "github.com/hashicorp/vault/api"
	kubeauth "github.com/hashicorp/vault/api/auth/kubernetes"

	"github.com/vitudev/secretboot/internal/blob"
	apperrors "github.com/vitudev/secretboot/internal/errors"
	"github.com/vitudev/secretboot/internal/infra/config"
	"github.com/vitudev/secretboot/pkg/memory"
)

// Transit API field names.
const (
	fieldCiphertext = "ciphertext"
	fieldPlaintext  = "plaintext"
)

type Client struct {
	v      *hashivault.Client
	logger *slog.Logger

	jwtPath   string
	role      string
	authMount string

	transitMount string
	transitKey   string

	timeout time.Duration
}

// NewClient builds an unauthenticated Vault client. No network traffic
// happens until Login.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	vaultCfg := hashivault.DefaultConfig()
	vaultCfg.Address = cfg.Vault.Addr

	v, err := hashivault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create vault client: %w", apperrors.ErrConfiguration, err)
	}

	return &Client{
		v:            v,
		logger:       logger,
		jwtPath:      cfg.JWT.Path,
		role:         cfg.Vault.Role,
		authMount:    cfg.Vault.AuthMount,
		transitMount: cfg.Vault.TransitMount,
		transitKey:   cfg.Vault.TransitKey,
		timeout:      cfg.Vault.Timeout,
	}, nil
}

// Login exchanges the service-account JWT for a Vault token. The JWT file is
// read fully before any request is issued; a missing or unreadable file
// aborts without touching the network. The obtained token lives only on the
// in-memory client and is used once, never renewed.
func (c *Client) Login(ctx context.Context) error {
	jwt, err := os.ReadFile(c.jwtPath)
	if err != nil {
		return fmt.Errorf("%w: cannot read service-account token at %s: %w", apperrors.ErrConfiguration, c.jwtPath, err)
	}
	defer memory.Wipe(jwt)

	if len(jwt) == 0 {
		return fmt.Errorf("%w: service-account token at %s is empty", apperrors.ErrConfiguration, c.jwtPath)
	}

	k8sAuth, err := kubeauth.NewKubernetesAuth(
		c.role,
		kubeauth.WithServiceAccountToken(string(jwt)),
		kubeauth.WithMountPath(c.authMount),
	)
	if err != nil {
		return fmt.Errorf("%w: unable to initialize kubernetes auth method: %w", apperrors.ErrConfiguration, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	authInfo, err := c.v.Auth().Login(ctx, k8sAuth)
	if err != nil {
		return fmt.Errorf("vault login: %w", classifyLoginError(err))
	}
	if authInfo == nil || authInfo.Auth == nil || authInfo.Auth.ClientToken == "" {
		// The original shell pipeline silently carried an empty token into
		// the decrypt step. Treat it as a hard authentication failure.
		return fmt.Errorf("%w: login returned no client token", apperrors.ErrAuthentication)
	}

	c.v.SetToken(authInfo.Auth.ClientToken)

	c.logger.InfoContext(ctx, "vault login succeeded",
		"role", c.role,
		"auth_mount", c.authMount,
		"lease_duration", authInfo.Auth.LeaseDuration,
	)

	return nil
}

// Decrypt sends the envelope ciphertext to the transit decrypt endpoint and
// returns the plaintext. Requires a prior successful Login.
func (c *Client) Decrypt(ctx context.Context, env *blob.Envelope) ([]byte, error) {
	if c.v.Token() == "" {
		return nil, fmt.Errorf("%w: no vault token held, login must succeed first", apperrors.ErrAuthentication)
	}
	if env.Backend != config.BackendVault {
		return nil, fmt.Errorf("%w: envelope was encrypted with backend %q, not vault", apperrors.ErrDecryption, env.Backend)
	}

	key := env.Key
	if key == "" {
		key = c.transitKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path := fmt.Sprintf("%s/decrypt/%s", c.transitMount, key)
	resp, err := c.v.Logical().WriteWithContext(ctx, path, map[string]any{
		fieldCiphertext: env.Ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("transit decrypt with key %q: %w", key, classifyTransitError(err))
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: transit decrypt returned no data", apperrors.ErrDecryption)
	}

	encoded, ok := resp.Data[fieldPlaintext].(string)
	if !ok || encoded == "" {
		return nil, fmt.Errorf("%w: transit decrypt response is missing the plaintext field", apperrors.ErrDecryption)
	}

	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: transit plaintext is not valid base64: %w", apperrors.ErrDecryption, err)
	}

	return plaintext, nil
}

// Encrypt produces an envelope for the out-of-band encryption workflow.
func (c *Client) Encrypt(ctx context.Context, plaintext []byte) (*blob.Envelope, error) {
	if c.v.Token() == "" {
		return nil, fmt.Errorf("%w: no vault token held, login must succeed first", apperrors.ErrAuthentication)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path := fmt.Sprintf("%s/encrypt/%s", c.transitMount, c.transitKey)
	resp, err := c.v.Logical().WriteWithContext(ctx, path, map[string]any{
		fieldPlaintext: base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("transit encrypt with key %q: %w", c.transitKey, classifyTransitError(err))
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: transit encrypt returned no data", apperrors.ErrDecryption)
	}

	ciphertext, ok := resp.Data[fieldCiphertext].(string)
	if !ok || ciphertext == "" {
		return nil, fmt.Errorf("%w: transit encrypt response is missing the ciphertext field", apperrors.ErrDecryption)
	}

	return &blob.Envelope{
		Version:    blob.EnvelopeVersion,
		Backend:    config.BackendVault,
		Key:        c.transitKey,
		Ciphertext: ciphertext,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// classifyLoginError distinguishes a Vault rejection from an unreachable
// Vault: an HTTP response means Vault answered and said no.
func classifyLoginError(err error) error {
	var respErr *hashivault.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("%w: %w", apperrors.ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrTransport, err)
}

// classifyTransitError maps transit call failures: an HTTP response means a
// bad token, revoked key or malformed ciphertext; anything else is the
// network.
func classifyTransitError(err error) error {
	var respErr *hashivault.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("%w: %w", apperrors.ErrDecryption, err)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrTransport, err)
}
