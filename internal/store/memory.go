package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
)

// MemoryStore keeps every document in process memory. It backs the sandbox
// when no REDIS_URL is configured and is the store used by unit tests.
type MemoryStore struct {
	mu            sync.Mutex
	sessions      map[string]*models.CheckoutSession
	credentials   map[string]*models.Credential
	tokens        map[string]string
	subscriptions map[string]*models.WebhookSubscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[string]*models.CheckoutSession),
		credentials:   make(map[string]*models.Credential),
		tokens:        make(map[string]string),
		subscriptions: make(map[string]*models.WebhookSubscription),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateSession(_ context.Context, session *models.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, errs.NotFound("session", id)
	}
	return session.Clone(), nil
}

func (m *MemoryStore) ListSessions(_ context.Context, ownerID string) ([]*models.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sessions []*models.CheckoutSession
	for _, session := range m.sessions {
		if session.OwnerID == ownerID {
			sessions = append(sessions, session.Clone())
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, id string, fn func(*models.CheckoutSession) error) (*models.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[id]
	if !ok {
		return nil, errs.NotFound("session", id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) DuePendingSessions(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, session := range m.sessions {
		if session.Status == constants.StatusPending && !session.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemoryStore) CreateCredential(_ context.Context, cred *models.Credential) (*models.Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.credentials[cred.OwnerID]; ok {
		return existing.Clone(), false, nil
	}
	m.credentials[cred.OwnerID] = cred.Clone()
	m.tokens[cred.PublicToken] = cred.OwnerID
	return cred.Clone(), true, nil
}

func (m *MemoryStore) GetCredential(_ context.Context, ownerID string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[ownerID]
	if !ok {
		return nil, errs.NotFound("credential", ownerID)
	}
	return cred.Clone(), nil
}

func (m *MemoryStore) OwnerByPublicToken(_ context.Context, publicToken string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.tokens[publicToken]
	if !ok {
		return "", errs.NotFound("credential token", publicToken)
	}
	return owner, nil
}

func (m *MemoryStore) UpdateCredential(_ context.Context, ownerID string, fn func(*models.Credential) error) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.credentials[ownerID]
	if !ok {
		return nil, errs.NotFound("credential", ownerID)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.PublicToken != current.PublicToken {
		delete(m.tokens, current.PublicToken)
		m.tokens[next.PublicToken] = ownerID
	}
	m.credentials[ownerID] = next
	return next.Clone(), nil
}

func (m *MemoryStore) CreateSubscription(_ context.Context, sub *models.WebhookSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (m *MemoryStore) GetSubscription(_ context.Context, id string) (*models.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, errs.NotFound("webhook", id)
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) ListSubscriptions(_ context.Context, ownerID string) ([]*models.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var subs []*models.WebhookSubscription
	for _, sub := range m.subscriptions {
		if sub.OwnerID == ownerID {
			subs = append(subs, sub.Clone())
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func (m *MemoryStore) UpdateSubscription(_ context.Context, id string, fn func(*models.WebhookSubscription) error) (*models.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.subscriptions[id]
	if !ok {
		return nil, errs.NotFound("webhook", id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Stats = current.Stats
	m.subscriptions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) IncrementAttempts(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[id]
	if !ok {
		return errs.NotFound("webhook", id)
	}
	sub.Stats.TotalAttempts++
	return nil
}

func (m *MemoryStore) RecordOutcome(_ context.Context, id string, delivered bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[id]
	if !ok {
		return errs.NotFound("webhook", id)
	}
	if delivered {
		sub.Stats.SuccessfulDeliveries++
		sub.Stats.LastSuccessAt = &at
	} else {
		sub.Stats.FailedDeliveries++
		sub.Stats.LastFailureAt = &at
	}
	return nil
}
