package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/simulator"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Enqueue(ctx context.Context, ev models.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockNotifier) enqueued(eventType constants.EventType) int {
	n := 0
	for _, call := range m.Calls {
		if call.Method == "Enqueue" && call.Arguments.Get(1).(models.Event).Type == eventType {
			n++
		}
	}
	return n
}

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, sub *models.WebhookSubscription, ev models.Event) models.DeliveryReport {
	args := m.Called(ctx, sub, ev)
	return args.Get(0).(models.DeliveryReport)
}

type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

const (
	approve = fixedRandom(0.99)
	decline = fixedRandom(0.0)
)

type fixture struct {
	store     *store.MemoryStore
	clock     *clockz.FakeClock
	notifier  *mockNotifier
	deliverer *mockDeliverer
	svc       *Service
	cred      *models.Credential
}

type fixtureOption func(*simulator.Config)

func withLatency(latency map[constants.PaymentMethod]simulator.LatencyRange) fixtureOption {
	return func(cfg *simulator.Config) { cfg.Latency = latency }
}

func newFixture(t *testing.T, random simulator.Random, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		store:     store.NewMemoryStore(),
		clock:     clockz.NewFakeClock(),
		notifier:  &mockNotifier{},
		deliverer: &mockDeliverer{},
	}
	f.notifier.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Maybe()

	simCfg := simulator.Config{Clock: f.clock, Random: random}
	for _, opt := range opts {
		opt(&simCfg)
	}
	sim, err := simulator.New(simCfg)
	require.NoError(t, err)

	f.svc = NewServices(Deps{
		Store:              f.store,
		Simulator:          sim,
		Notifier:           f.notifier,
		Deliverer:          f.deliverer,
		Clock:              f.clock,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		BaseURL:            "http://sandbox.test",
		SessionTTL:         30 * time.Minute,
		SweepInterval:      time.Minute,
		DefaultRetryPolicy: models.DefaultRetryPolicy,
	})

	f.cred, err = f.svc.Credentials.GetOrCreate(context.Background(), "merchant-1")
	require.NoError(t, err)
	return f
}

func (f *fixture) createSession(t *testing.T, req models.CreateSessionRequest) string {
	t.Helper()
	if req.Currency == "" {
		req.Currency = constants.CurrencyNGN
	}
	resp, err := f.svc.Sessions.Create(context.Background(), f.cred, req)
	require.NoError(t, err)
	return resp.ID
}

func validCard() *models.CardDetails {
	return &models.CardDetails{
		Number:      "4242 4242 4242 4242",
		CVV:         "123",
		ExpiryMonth: 12,
		ExpiryYear:  time.Now().Year() + 3,
	}
}

func cardPayment() models.PaymentRequest {
	return models.PaymentRequest{
		Method:        constants.MethodCard,
		CustomerEmail: "buyer@example.com",
		Card:          validCard(),
	}
}
