package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/simulator"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/zoobzio/clockz"
)

const maxExpiryMinutes = 24 * 60

// SessionService owns the checkout session lifecycle:
//
//	pending -> processing -> completed | failed
//	pending -> cancelled | expired
//	completed -> refunded
//
// Every transition is a guarded single-document update. Notifiable transitions
// enqueue exactly one event after the update commits.
type SessionService struct {
	store      store.SessionStore
	notifier   Notifier
	clock      clockz.Clock
	logger     *slog.Logger
	baseURL    string
	defaultTTL time.Duration
}

func (s *SessionService) CheckoutURL(id string) string {
	return strings.TrimRight(s.baseURL, "/") + "/checkout/" + id
}

func (s *SessionService) Create(ctx context.Context, cred *models.Credential, req models.CreateSessionRequest) (*models.CreateSessionResponse, error) {
	if req.Amount <= 0 {
		return nil, errs.Invalid("amount", "must be positive")
	}
	if !req.Currency.Valid() {
		return nil, errs.Invalid("currency", "unsupported currency "+string(req.Currency))
	}
	if req.CustomerEmail != "" && !simulator.ValidEmail(req.CustomerEmail) {
		return nil, errs.Invalid("customerEmail", "malformed email address")
	}
	if req.ExpiresMinutes < 0 || req.ExpiresMinutes > maxExpiryMinutes {
		return nil, errs.Invalid("expiresInMinutes", fmt.Sprintf("must be between 1 and %d", maxExpiryMinutes))
	}

	var config models.PaymentConfig
	if req.PaymentConfig != nil {
		config = *req.PaymentConfig
		for _, m := range config.AllowedMethods {
			if !m.Valid() {
				return nil, errs.Invalid("paymentConfig.allowedMethods", "unsupported payment method "+string(m))
			}
		}
	}

	ttl := s.defaultTTL
	if req.ExpiresMinutes > 0 {
		ttl = time.Duration(req.ExpiresMinutes) * time.Minute
	}

	now := s.clock.Now()
	session := &models.CheckoutSession{
		ID:            "cs_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		OwnerID:       cred.OwnerID,
		CredentialID:  cred.ID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		PaymentConfig: config,
		Metadata:      req.Metadata,
		Status:        constants.StatusPending,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created", "session_id", session.ID, "owner_id", session.OwnerID, "amount", session.Amount, "currency", session.Currency)

	return &models.CreateSessionResponse{
		ID:          session.ID,
		CheckoutURL: s.CheckoutURL(session.ID),
		Status:      session.Status,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// Get returns the session, expiring it first if it is pending past its expiry.
func (s *SessionService) Get(ctx context.Context, id string) (*models.CheckoutSession, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if !session.PastExpiry(s.clock.Now()) {
		return session, nil
	}

	expired, err := s.Expire(ctx, id)
	if errors.Is(err, errs.ErrStateConflict) {
		// another writer moved it first
		return s.store.GetSession(ctx, id)
	}
	return expired, err
}

// GetOwned is Get restricted to sessions of ownerID.
func (s *SessionService) GetOwned(ctx context.Context, ownerID, id string) (*models.CheckoutSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, errs.NotFound("session", id)
	}
	return session, nil
}

func (s *SessionService) List(ctx context.Context, ownerID string) ([]*models.CheckoutSession, error) {
	sessions, err := s.store.ListSessions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i, session := range sessions {
		if session.PastExpiry(now) {
			if expired, err := s.Get(ctx, session.ID); err == nil {
				sessions[i] = expired
			}
		}
	}
	return sessions, nil
}

// Claim moves a pending session to processing. Concurrent claims on one
// session resolve to exactly one winner; the rest get a StateConflictError.
// A session past its expiry is expired instead and an ExpiryError returned.
func (s *SessionService) Claim(ctx context.Context, id string, req models.PaymentRequest) (*models.CheckoutSession, error) {
	now := s.clock.Now()

	claimed, err := s.store.UpdateSession(ctx, id, func(cs *models.CheckoutSession) error {
		if cs.Status != constants.StatusPending {
			return &errs.StateConflictError{SessionID: cs.ID, From: cs.Status, To: constants.StatusProcessing}
		}
		if !now.Before(cs.ExpiresAt) {
			return &errs.ExpiryError{SessionID: cs.ID, ExpiredAt: cs.ExpiresAt}
		}

		cs.Status = constants.StatusProcessing
		cs.ProcessingAt = &now
		cs.PaymentMethod = req.Method
		if cs.CustomerEmail == "" {
			cs.CustomerEmail = req.CustomerEmail
		}
		if cs.CustomerName == "" {
			cs.CustomerName = req.CustomerName
		}
		return nil
	})

	var expiry *errs.ExpiryError
	if errors.As(err, &expiry) {
		if _, expErr := s.Expire(ctx, id); expErr != nil && !errors.Is(expErr, errs.ErrStateConflict) {
			s.logger.Error("failed to expire session", "session_id", id, "error", expErr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("session claimed", "session_id", id, "payment_method", req.Method)
	return claimed, nil
}

func (s *SessionService) Complete(ctx context.Context, id, transactionID string) (*models.CheckoutSession, error) {
	return s.transition(ctx, id, constants.StatusCompleted, func(cs *models.CheckoutSession, now time.Time) error {
		cs.CompletedAt = &now
		cs.TransactionID = transactionID
		return nil
	})
}

func (s *SessionService) Fail(ctx context.Context, id, reason string) (*models.CheckoutSession, error) {
	return s.transition(ctx, id, constants.StatusFailed, func(cs *models.CheckoutSession, now time.Time) error {
		cs.FailedAt = &now
		cs.FailureReason = reason
		return nil
	})
}

func (s *SessionService) Cancel(ctx context.Context, ownerID, id, reason string) (*models.CheckoutSession, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.Invalid("reason", "is required")
	}

	return s.transition(ctx, id, constants.StatusCancelled, func(cs *models.CheckoutSession, now time.Time) error {
		if cs.OwnerID != ownerID {
			return errs.NotFound("session", id)
		}
		cs.CancelledAt = &now
		cs.CancelReason = reason
		return nil
	})
}

// Refund moves a completed session to refunded. A zero amount refunds in full.
func (s *SessionService) Refund(ctx context.Context, ownerID, id string, amount int64) (*models.CheckoutSession, error) {
	if amount < 0 {
		return nil, errs.Invalid("amount", "must not be negative")
	}

	return s.transition(ctx, id, constants.StatusRefunded, func(cs *models.CheckoutSession, now time.Time) error {
		if cs.OwnerID != ownerID {
			return errs.NotFound("session", id)
		}
		refund := amount
		if refund == 0 {
			refund = cs.Amount
		}
		if refund > cs.Amount {
			return errs.Invalid("amount", fmt.Sprintf("exceeds the original amount of %d", cs.Amount))
		}
		cs.RefundedAt = &now
		cs.RefundAmount = refund
		return nil
	})
}

// Expire moves a pending session past its expiry to expired.
func (s *SessionService) Expire(ctx context.Context, id string) (*models.CheckoutSession, error) {
	return s.transition(ctx, id, constants.StatusExpired, func(cs *models.CheckoutSession, now time.Time) error {
		if !cs.PastExpiry(now) {
			return &errs.StateConflictError{SessionID: cs.ID, From: cs.Status, To: constants.StatusExpired}
		}
		cs.ExpiredAt = &now
		return nil
	})
}

func (s *SessionService) transition(
	ctx context.Context,
	id string,
	to constants.SessionStatus,
	apply func(cs *models.CheckoutSession, now time.Time) error,
) (*models.CheckoutSession, error) {
	now := s.clock.Now()

	updated, err := s.store.UpdateSession(ctx, id, func(cs *models.CheckoutSession) error {
		if !cs.Status.CanTransition(to) {
			return &errs.StateConflictError{SessionID: cs.ID, From: cs.Status, To: to}
		}
		if err := apply(cs, now); err != nil {
			return err
		}
		cs.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session transitioned", "session_id", id, "status", to)
	s.notify(ctx, updated, now)
	return updated, nil
}

func (s *SessionService) notify(ctx context.Context, session *models.CheckoutSession, now time.Time) {
	ev, ok := models.SessionEvent(session, now)
	if !ok || s.notifier == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, ev); err != nil {
		s.logger.Error("failed to enqueue webhook event", "session_id", session.ID, "event", ev.Type, "error", err)
	}
}
