package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/mochaeng/payment-sandbox/internal/webhook"
	"github.com/zoobzio/clockz"
)

const (
	publicTokenPrefix = "pk_test_"
	secretTokenPrefix = "sk_test_"
)

// CredentialService issues sandbox API keys, one credential per owner.
type CredentialService struct {
	store  store.CredentialStore
	clock  clockz.Clock
	logger *slog.Logger
}

func (c *CredentialService) GetOrCreate(ctx context.Context, ownerID string) (*models.Credential, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, errs.Invalid("owner", "is required")
	}

	if existing, err := c.store.GetCredential(ctx, ownerID); err == nil {
		return existing, nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	publicToken, secretToken, err := newTokenPair()
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	cred := &models.Credential{
		ID:          "cred_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		OwnerID:     ownerID,
		PublicToken: publicToken,
		SecretToken: secretToken,
		Active:      true,
		RateLimits:  models.DefaultRateLimits,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, created, err := c.store.CreateCredential(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	if created {
		c.logger.Info("credential issued", "owner_id", ownerID, "credential_id", stored.ID)
	}
	return stored, nil
}

func (c *CredentialService) Get(ctx context.Context, ownerID string) (*models.Credential, error) {
	return c.store.GetCredential(ctx, ownerID)
}

// Validate resolves a public token to its credential. Unknown, rotated and
// inactive tokens all yield ErrUnauthorized.
func (c *CredentialService) Validate(ctx context.Context, publicToken string) (*models.Credential, error) {
	if !strings.HasPrefix(publicToken, publicTokenPrefix) {
		return nil, errs.ErrUnauthorized
	}

	ownerID, err := c.store.OwnerByPublicToken(ctx, publicToken)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	cred, err := c.store.UpdateCredential(ctx, ownerID, func(cred *models.Credential) error {
		if !cred.Active || cred.PublicToken != publicToken {
			return errs.ErrUnauthorized
		}
		cred.UsageCount++
		cred.LastUsedAt = &now
		return nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	return cred, err
}

// Regenerate replaces the token pair. The previous public token stops
// validating as soon as this returns.
func (c *CredentialService) Regenerate(ctx context.Context, ownerID string) (*models.Credential, error) {
	publicToken, secretToken, err := newTokenPair()
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	cred, err := c.store.UpdateCredential(ctx, ownerID, func(cred *models.Credential) error {
		cred.PublicToken = publicToken
		cred.SecretToken = secretToken
		cred.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("credential regenerated", "owner_id", ownerID, "credential_id", cred.ID)
	return cred, nil
}

func (c *CredentialService) Deactivate(ctx context.Context, ownerID string) (*models.Credential, error) {
	now := c.clock.Now()
	cred, err := c.store.UpdateCredential(ctx, ownerID, func(cred *models.Credential) error {
		cred.Active = false
		cred.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("credential deactivated", "owner_id", ownerID)
	return cred, nil
}

// SetWebhook stores the per-credential webhook URL and issues a fresh signing
// secret for it. An empty URL clears both.
func (c *CredentialService) SetWebhook(ctx context.Context, ownerID, url string) (*models.Credential, error) {
	var secret string
	if url != "" {
		if err := validateWebhookURL(url); err != nil {
			return nil, err
		}
		var err error
		if secret, err = webhook.GenerateSecret(); err != nil {
			return nil, err
		}
	}

	now := c.clock.Now()
	return c.store.UpdateCredential(ctx, ownerID, func(cred *models.Credential) error {
		cred.WebhookURL = url
		cred.WebhookSecret = secret
		cred.UpdatedAt = now
		return nil
	})
}

func newTokenPair() (string, string, error) {
	public, err := randomHex(24)
	if err != nil {
		return "", "", err
	}
	secret, err := randomHex(32)
	if err != nil {
		return "", "", err
	}
	return publicTokenPrefix + public, secretTokenPrefix + secret, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
