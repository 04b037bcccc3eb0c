package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/simulator"
	"github.com/zoobzio/clockz"
)

type PaymentService struct {
	sessions  *SessionService
	simulator *simulator.Simulator
	clock     clockz.Clock
	logger    *slog.Logger
}

// Submit runs one payment attempt against a checkout session.
//
// Validation failures return before the session is touched. Once the session
// is claimed it always ends completed or failed, even if ctx is cancelled
// while the simulated gateway is still waiting.
func (p *PaymentService) Submit(ctx context.Context, sessionID string, req models.PaymentRequest) (*models.PaymentResult, error) {
	session, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case constants.StatusPending:
	case constants.StatusExpired:
		return nil, &errs.ExpiryError{SessionID: session.ID, ExpiredAt: session.ExpiresAt}
	default:
		return nil, &errs.StateConflictError{SessionID: session.ID, From: session.Status, To: constants.StatusProcessing}
	}

	attempt := simulator.Attempt{
		Amount:   session.Amount,
		Currency: session.Currency,
		Config:   session.PaymentConfig,
		Request:  req,
	}
	if req.CustomerEmail == "" {
		attempt.Request.CustomerEmail = session.CustomerEmail
	}
	if err := simulator.Validate(attempt, p.clock.Now()); err != nil {
		return nil, err
	}

	if _, err := p.sessions.Claim(ctx, session.ID, attempt.Request); err != nil {
		return nil, err
	}

	approval, simErr := p.simulator.Simulate(ctx, attempt)

	// finalize even if the caller went away
	final := context.WithoutCancel(ctx)

	if simErr == nil {
		completed, err := p.sessions.Complete(final, session.ID, approval.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("failed to complete session: %w", err)
		}
		p.logger.Info("payment approved", "session_id", session.ID, "transaction_id", approval.TransactionID, "latency", approval.Latency)

		gateway := approval.Gateway
		return &models.PaymentResult{
			Success:       true,
			TransactionID: approval.TransactionID,
			Status:        completed.Status,
			Message:       "Payment successful",
			RedirectURL:   p.redirectURL(session.ID, "success"),
			Gateway:       &gateway,
		}, nil
	}

	reason := constants.FailureTimeout
	var decline *errs.DeclineError
	if errors.As(simErr, &decline) {
		reason = decline.Scenario
	} else {
		p.logger.Warn("payment interrupted", "session_id", session.ID, "error", simErr)
	}

	if _, err := p.sessions.Fail(final, session.ID, string(reason)); err != nil {
		return nil, fmt.Errorf("failed to fail session: %w", err)
	}
	p.logger.Info("payment declined", "session_id", session.ID, "reason", reason)

	if decline == nil {
		return nil, simErr
	}
	return nil, decline
}

// DeclineResult renders a decline as the payment result body returned with it.
func (p *PaymentService) DeclineResult(sessionID string, decline *errs.DeclineError) *models.PaymentResult {
	return &models.PaymentResult{
		Success:     false,
		Status:      constants.StatusFailed,
		Message:     decline.Message,
		RedirectURL: p.redirectURL(sessionID, "failed"),
		FailureType: decline.Scenario,
	}
}

func (p *PaymentService) redirectURL(sessionID, outcome string) string {
	return p.sessions.CheckoutURL(sessionID) + "/" + outcome
}
