package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/mochaeng/payment-sandbox/internal/webhook"
	"github.com/zoobzio/clockz"
)

const (
	maxRetryAttempts = 10
	maxBaseDelay     = 10 * time.Minute
	maxMultiplier    = 10
)

// WebhookService manages an owner's webhook subscriptions. Delivery itself is
// the dispatcher's job; this service only publishes events to it.
type WebhookService struct {
	store         store.SubscriptionStore
	notifier      Notifier
	deliverer     Deliverer
	clock         clockz.Clock
	defaultPolicy models.RetryPolicy
}

func (w *WebhookService) Create(ctx context.Context, ownerID string, req models.CreateWebhookRequest) (*models.WebhookSecretResponse, error) {
	if err := validateWebhookURL(req.URL); err != nil {
		return nil, err
	}
	if err := validateEvents(req.Events); err != nil {
		return nil, err
	}

	policy := w.defaultPolicy
	if req.RetryPolicy != nil {
		if err := validateRetryPolicy(*req.RetryPolicy); err != nil {
			return nil, err
		}
		policy = req.RetryPolicy.Normalize()
	}

	secret, err := webhook.GenerateSecret()
	if err != nil {
		return nil, err
	}

	now := w.clock.Now()
	sub := &models.WebhookSubscription{
		ID:          "wh_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		OwnerID:     ownerID,
		URL:         req.URL,
		Secret:      secret,
		Events:      dedupeEvents(req.Events),
		Active:      true,
		RetryPolicy: policy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}

	return &models.WebhookSecretResponse{WebhookView: sub.View(), Secret: secret}, nil
}

func (w *WebhookService) Get(ctx context.Context, ownerID, id string) (*models.WebhookSubscription, error) {
	sub, err := w.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != ownerID {
		return nil, errs.NotFound("webhook", id)
	}
	return sub, nil
}

func (w *WebhookService) List(ctx context.Context, ownerID string) ([]models.WebhookView, error) {
	subs, err := w.store.ListSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	views := make([]models.WebhookView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, sub.View())
	}
	return views, nil
}

func (w *WebhookService) Update(ctx context.Context, ownerID, id string, req models.UpdateWebhookRequest) (*models.WebhookSubscription, error) {
	if req.URL != nil {
		if err := validateWebhookURL(*req.URL); err != nil {
			return nil, err
		}
	}
	if req.Events != nil {
		if err := validateEvents(req.Events); err != nil {
			return nil, err
		}
	}
	if req.RetryPolicy != nil {
		if err := validateRetryPolicy(*req.RetryPolicy); err != nil {
			return nil, err
		}
	}

	now := w.clock.Now()
	return w.update(ctx, ownerID, id, func(sub *models.WebhookSubscription) {
		if req.URL != nil {
			sub.URL = *req.URL
		}
		if req.Events != nil {
			sub.Events = dedupeEvents(req.Events)
		}
		if req.RetryPolicy != nil {
			sub.RetryPolicy = req.RetryPolicy.Normalize()
		}
		if req.Active != nil {
			sub.Active = *req.Active
		}
		sub.UpdatedAt = now
	})
}

func (w *WebhookService) Deactivate(ctx context.Context, ownerID, id string) (*models.WebhookSubscription, error) {
	now := w.clock.Now()
	return w.update(ctx, ownerID, id, func(sub *models.WebhookSubscription) {
		sub.Active = false
		sub.UpdatedAt = now
	})
}

func (w *WebhookService) RegenerateSecret(ctx context.Context, ownerID, id string) (*models.WebhookSecretResponse, error) {
	secret, err := webhook.GenerateSecret()
	if err != nil {
		return nil, err
	}

	now := w.clock.Now()
	sub, err := w.update(ctx, ownerID, id, func(sub *models.WebhookSubscription) {
		sub.Secret = secret
		sub.UpdatedAt = now
	})
	if err != nil {
		return nil, err
	}
	return &models.WebhookSecretResponse{WebhookView: sub.View(), Secret: secret}, nil
}

// Test sends a single webhook.test ping to the subscription and reports the
// outcome. It does not retry.
func (w *WebhookService) Test(ctx context.Context, ownerID, id string) (models.DeliveryReport, error) {
	sub, err := w.Get(ctx, ownerID, id)
	if err != nil {
		return models.DeliveryReport{}, err
	}

	ev, err := models.NewEvent(constants.EventWebhookTest, ownerID, models.PingEventData{
		WebhookID: sub.ID,
		Message:   "This is a test webhook from the payment sandbox",
	}, w.clock.Now())
	if err != nil {
		return models.DeliveryReport{}, err
	}

	return w.deliverer.Deliver(ctx, sub, ev), nil
}

// Publish hands an externally produced event, such as a billing subscription
// event, to the dispatcher.
func (w *WebhookService) Publish(ctx context.Context, eventType constants.EventType, ownerID string, data models.EventData) error {
	ev, err := models.NewEvent(eventType, ownerID, data, w.clock.Now())
	if err != nil {
		return errs.Invalid("event", err.Error())
	}
	return w.notifier.Enqueue(ctx, ev)
}

func (w *WebhookService) update(ctx context.Context, ownerID, id string, apply func(*models.WebhookSubscription)) (*models.WebhookSubscription, error) {
	return w.store.UpdateSubscription(ctx, id, func(sub *models.WebhookSubscription) error {
		if sub.OwnerID != ownerID {
			return errs.NotFound("webhook", id)
		}
		apply(sub)
		return nil
	})
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errs.Invalid("url", "must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errs.Invalid("url", "scheme must be http or https")
	}
	return nil
}

func validateEvents(events []constants.EventType) error {
	if len(events) == 0 {
		return errs.Invalid("events", "at least one event is required")
	}
	for _, e := range events {
		if !e.Valid() {
			return errs.Invalid("events", "unknown event type "+string(e))
		}
	}
	return nil
}

func validateRetryPolicy(p models.RetryPolicy) error {
	switch {
	case p.MaxAttempts < 0 || p.MaxAttempts > maxRetryAttempts:
		return errs.Invalid("retryPolicy.maxAttempts", fmt.Sprintf("must be between 1 and %d", maxRetryAttempts))
	case p.BaseDelay < 0 || p.BaseDelay > maxBaseDelay:
		return errs.Invalid("retryPolicy.baseDelayMs", fmt.Sprintf("must be at most %d", maxBaseDelay.Milliseconds()))
	case p.BackoffMultiplier != 0 && (p.BackoffMultiplier < 1 || p.BackoffMultiplier > maxMultiplier):
		return errs.Invalid("retryPolicy.backoffMultiplier", fmt.Sprintf("must be between 1 and %d", maxMultiplier))
	}
	return nil
}

func dedupeEvents(events []constants.EventType) []constants.EventType {
	seen := make(map[constants.EventType]bool, len(events))
	out := make([]constants.EventType, 0, len(events))
	for _, e := range events {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
