package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/simulator"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/zoobzio/clockz"
)

// Notifier receives events after the state change that produced them has
// committed. Implementations must not block on delivery.
type Notifier interface {
	Enqueue(ctx context.Context, ev models.Event) error
}

// Deliverer performs a synchronous delivery to one subscription.
type Deliverer interface {
	Deliver(ctx context.Context, sub *models.WebhookSubscription, ev models.Event) models.DeliveryReport
}

type Service struct {
	Credentials *CredentialService
	Sessions    *SessionService
	Payments    *PaymentService
	Webhooks    *WebhookService
	Summary     *SummaryService
	Sweeper     *ExpirySweeper
}

type Deps struct {
	Store     store.Store
	Simulator *simulator.Simulator
	Notifier  Notifier
	Deliverer Deliverer
	Clock     clockz.Clock
	Logger    *slog.Logger

	BaseURL            string
	SessionTTL         time.Duration
	SweepInterval      time.Duration
	DefaultRetryPolicy models.RetryPolicy
}

func NewServices(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clockz.RealClock
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = 30 * time.Minute
	}
	if deps.SweepInterval <= 0 {
		deps.SweepInterval = time.Minute
	}

	sessions := &SessionService{
		store:      deps.Store,
		notifier:   deps.Notifier,
		clock:      deps.Clock,
		logger:     deps.Logger.With("component", "sessions"),
		baseURL:    deps.BaseURL,
		defaultTTL: deps.SessionTTL,
	}

	return &Service{
		Credentials: &CredentialService{
			store:  deps.Store,
			clock:  deps.Clock,
			logger: deps.Logger.With("component", "credentials"),
		},
		Sessions: sessions,
		Payments: &PaymentService{
			sessions:  sessions,
			simulator: deps.Simulator,
			clock:     deps.Clock,
			logger:    deps.Logger.With("component", "payments"),
		},
		Webhooks: &WebhookService{
			store:         deps.Store,
			notifier:      deps.Notifier,
			deliverer:     deps.Deliverer,
			clock:         deps.Clock,
			defaultPolicy: deps.DefaultRetryPolicy.Normalize(),
		},
		Summary: &SummaryService{
			store: deps.Store,
		},
		Sweeper: &ExpirySweeper{
			sessions: sessions,
			store:    deps.Store,
			clock:    deps.Clock,
			interval: deps.SweepInterval,
			batch:    100,
			logger:   deps.Logger.With("component", "expiry_sweeper"),
		},
	}
}
