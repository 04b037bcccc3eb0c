// Package store persists sessions, credentials and webhook subscriptions.
//
// Every mutation goes through a single-document update function. The update
// only commits if the function returns nil and no concurrent writer touched the
// document in between, which is what makes the pending to processing session
// transition a compare-and-swap.
package store

import (
	"context"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/models"
)

type SessionStore interface {
	CreateSession(ctx context.Context, session *models.CheckoutSession) error
	GetSession(ctx context.Context, id string) (*models.CheckoutSession, error)
	ListSessions(ctx context.Context, ownerID string) ([]*models.CheckoutSession, error)
	// UpdateSession applies fn to the current document and commits the result
	// atomically. If fn returns an error nothing is written.
	UpdateSession(ctx context.Context, id string, fn func(*models.CheckoutSession) error) (*models.CheckoutSession, error)
	// DuePendingSessions returns ids of pending sessions whose expiry is at or
	// before now.
	DuePendingSessions(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type CredentialStore interface {
	// CreateCredential stores cred unless the owner already has one, in which
	// case the existing credential is returned with created=false.
	CreateCredential(ctx context.Context, cred *models.Credential) (existing *models.Credential, created bool, err error)
	GetCredential(ctx context.Context, ownerID string) (*models.Credential, error)
	OwnerByPublicToken(ctx context.Context, publicToken string) (string, error)
	// UpdateCredential keeps the public-token index in step with the document
	// in the same commit.
	UpdateCredential(ctx context.Context, ownerID string, fn func(*models.Credential) error) (*models.Credential, error)
}

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error
	GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, ownerID string) ([]*models.WebhookSubscription, error)
	UpdateSubscription(ctx context.Context, id string, fn func(*models.WebhookSubscription) error) (*models.WebhookSubscription, error)
	IncrementAttempts(ctx context.Context, id string) error
	RecordOutcome(ctx context.Context, id string, delivered bool, at time.Time) error
}

type Store interface {
	SessionStore
	CredentialStore
	SubscriptionStore
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
