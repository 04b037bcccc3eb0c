package simulator

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

type lockedRandom struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRandom) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func newSimulator(t *testing.T, cfg Config) *Simulator {
	t.Helper()
	sim, err := New(cfg)
	require.NoError(t, err)
	return sim
}

func TestDecide_WalksTableInOrder(t *testing.T) {
	tests := []struct {
		draw     float64
		declined bool
		scenario constants.FailureType
	}{
		{draw: 0.0, declined: true, scenario: constants.FailureCardDeclined},
		{draw: 0.049, declined: true, scenario: constants.FailureCardDeclined},
		{draw: 0.06, declined: true, scenario: constants.FailureInsufficientFunds},
		{draw: 0.14, declined: true, scenario: constants.FailureExpiredCard},
		{draw: 0.16, declined: true, scenario: constants.FailureInvalidCVV},
		{draw: 0.185, declined: true, scenario: constants.FailureNetworkError},
		{draw: 0.195, declined: true, scenario: constants.FailureTimeout},
		{draw: 0.204, declined: true, scenario: constants.FailureFraudDetection},
		{draw: 0.21, declined: false},
		{draw: 0.999, declined: false},
	}

	for _, tt := range tests {
		sim := newSimulator(t, Config{Random: fixedRandom(tt.draw)})
		scenario, declined := sim.Decide()
		assert.Equal(t, tt.declined, declined, "draw %v", tt.draw)
		assert.Equal(t, tt.scenario, scenario.Type, "draw %v", tt.draw)
	}
}

func TestDecide_DeclineRateConverges(t *testing.T) {
	sim := newSimulator(t, Config{Random: &lockedRandom{r: rand.New(rand.NewPCG(42, 1024))}})

	const attempts = 100_000
	declines := 0
	for i := 0; i < attempts; i++ {
		if _, declined := sim.Decide(); declined {
			declines++
		}
	}

	rate := float64(declines) / attempts
	assert.InDelta(t, 0.205, rate, 0.01)
}

func TestSimulate_ValidationBeforeDecision(t *testing.T) {
	sim := newSimulator(t, Config{Random: fixedRandom(0.0)})

	attempt := validCardAttempt()
	attempt.Request.Card.Number = "4532015112830367"

	_, err := sim.Simulate(context.Background(), attempt)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.NotErrorIs(t, err, errs.ErrDeclined)
}

func TestSimulate_Decline(t *testing.T) {
	sim := newSimulator(t, Config{Random: fixedRandom(0.07)})

	_, err := sim.Simulate(context.Background(), validCardAttempt())

	var decline *errs.DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, constants.FailureInsufficientFunds, decline.Scenario)
	assert.Equal(t, 402, decline.StatusCode)
	assert.NotErrorIs(t, err, errs.ErrValidation)
}

func TestSimulate_Approval(t *testing.T) {
	sim := newSimulator(t, Config{Random: fixedRandom(0.5)})

	first, err := sim.Simulate(context.Background(), validCardAttempt())
	require.NoError(t, err)
	second, err := sim.Simulate(context.Background(), validCardAttempt())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.TransactionID, "txn_"))
	assert.NotEqual(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, "1000.00", first.Gateway.Amount)
	assert.Equal(t, constants.MethodCard, first.Gateway.Channel)
	assert.Len(t, first.Gateway.AuthorizationCode, len("AUTH_")+6)
}

func TestSimulate_WaitsMethodLatency(t *testing.T) {
	clock := clockz.NewFakeClock()
	sim := newSimulator(t, Config{
		Random:  fixedRandom(0.5),
		Clock:   clock,
		Latency: DefaultLatency(),
	})

	attempt := validCardAttempt()
	attempt.Request.Card.ExpiryYear = 2099

	type result struct {
		approval *Approval
		err      error
	}
	done := make(chan result, 1)
	go func() {
		approval, err := sim.Simulate(context.Background(), attempt)
		done <- result{approval, err}
	}()

	select {
	case <-done:
		t.Fatal("simulate returned before the latency elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	var got result
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		select {
		case got = <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, got.err)
	assert.Equal(t, 2*time.Second, got.approval.Latency)
}

func TestSimulate_ContextCancelledDuringLatency(t *testing.T) {
	clock := clockz.NewFakeClock()
	sim := newSimulator(t, Config{
		Random:  fixedRandom(0.5),
		Clock:   clock,
		Latency: DefaultLatency(),
	})

	attempt := validCardAttempt()
	attempt.Request.Card.ExpiryYear = 2099

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Simulate(ctx, attempt)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{Scenarios: []models.FailureScenario{
		{Type: constants.FailureCardDeclined, Weight: 0.7},
		{Type: constants.FailureTimeout, Weight: 0.4},
	}})
	assert.Error(t, err)

	_, err = New(Config{Latency: map[constants.PaymentMethod]LatencyRange{
		constants.MethodCard: {Min: 2 * time.Second, Max: time.Second},
	}})
	assert.Error(t, err)
}

func TestNew_CopiesScenarioTable(t *testing.T) {
	table := DefaultScenarios()
	sim := newSimulator(t, Config{Scenarios: table, Random: fixedRandom(0.01)})

	table[0].Weight = 0

	scenario, declined := sim.Decide()
	assert.True(t, declined)
	assert.Equal(t, constants.FailureCardDeclined, scenario.Type)
}

func TestLoadScenarios(t *testing.T) {
	doc := `
- type: card_declined
  weight: 0.5
  message: Declined for testing
  statusCode: 402
- type: timeout
  weight: 0.25
  message: Timed out
  statusCode: 504
`
	scenarios, err := LoadScenarios(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, constants.FailureTimeout, scenarios[1].Type)
	assert.Equal(t, 504, scenarios[1].StatusCode)

	sim := newSimulator(t, Config{Scenarios: scenarios, Random: fixedRandom(0.6)})
	scenario, declined := sim.Decide()
	assert.True(t, declined)
	assert.Equal(t, constants.FailureTimeout, scenario.Type)

	_, err = LoadScenarios(strings.NewReader("- type: x\n  weight: 2\n"))
	assert.Error(t, err)
}

func TestDisplayAmount(t *testing.T) {
	assert.Equal(t, "1000.00", DisplayAmount(100000, constants.CurrencyNGN))
	assert.Equal(t, "0.05", DisplayAmount(5, constants.CurrencyUSD))
}
