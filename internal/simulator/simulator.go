// Package simulator decides the outcome of sandbox payment attempts.
//
// An attempt is first validated; malformed input yields an
// *errs.ValidationError and nothing else happens. A valid attempt waits a
// method-dependent latency on the injected clock, then one uniform draw is
// matched against the failure table. A match yields an *errs.DeclineError, no
// match an Approval.
package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/shopspring/decimal"
	"github.com/zoobzio/clockz"
)

// Random yields uniform values in [0,1).
type Random interface {
	Float64() float64
}

// systemRandom draws from the math/rand/v2 global ChaCha8 source, which is
// seeded from the operating system and safe for concurrent use.
type systemRandom struct{}

func (systemRandom) Float64() float64 { return rand.Float64() }

type Config struct {
	Scenarios []models.FailureScenario
	// Latency per method. Methods missing from the map, or a nil map, do not
	// wait at all.
	Latency map[constants.PaymentMethod]LatencyRange
	Clock   clockz.Clock
	Random  Random
	NodeID  int64
}

type Simulator struct {
	scenarios []models.FailureScenario
	latency   map[constants.PaymentMethod]LatencyRange
	clock     clockz.Clock
	random    Random
	node      *snowflake.Node
}

type Approval struct {
	TransactionID string
	Gateway       models.GatewayResponse
	Latency       time.Duration
}

func New(cfg Config) (*Simulator, error) {
	scenarios := cfg.Scenarios
	if scenarios == nil {
		scenarios = DefaultScenarios()
	}
	if err := ValidateScenarios(scenarios); err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create id node: %w", err)
	}

	latency := make(map[constants.PaymentMethod]LatencyRange, len(cfg.Latency))
	for method, r := range cfg.Latency {
		if r.Max < r.Min {
			return nil, fmt.Errorf("latency for %s has max below min", method)
		}
		latency[method] = r
	}

	s := &Simulator{
		scenarios: append([]models.FailureScenario(nil), scenarios...),
		latency:   latency,
		clock:     cfg.Clock,
		random:    cfg.Random,
		node:      node,
	}
	if s.clock == nil {
		s.clock = clockz.RealClock
	}
	if s.random == nil {
		s.random = systemRandom{}
	}
	return s, nil
}

func (s *Simulator) Scenarios() []models.FailureScenario {
	return append([]models.FailureScenario(nil), s.scenarios...)
}

// Decide draws once and returns the matching failure scenario, if any.
func (s *Simulator) Decide() (models.FailureScenario, bool) {
	return pick(s.scenarios, s.random.Float64())
}

// Simulate validates the attempt, waits the simulated gateway latency and
// decides the outcome. The returned error is *errs.ValidationError,
// *errs.DeclineError, or the context error if ctx ends during the wait.
func (s *Simulator) Simulate(ctx context.Context, a Attempt) (*Approval, error) {
	if err := Validate(a, s.clock.Now()); err != nil {
		return nil, err
	}

	waited, err := s.wait(ctx, a.Request.Method)
	if err != nil {
		return nil, err
	}

	if scenario, declined := s.Decide(); declined {
		return nil, &errs.DeclineError{
			Scenario:   scenario.Type,
			Message:    scenario.Message,
			StatusCode: scenario.StatusCode,
		}
	}

	id := s.node.Generate()
	return &Approval{
		TransactionID: "txn_" + id.String(),
		Gateway: models.GatewayResponse{
			Reference:         "ref_" + id.Base58(),
			AuthorizationCode: s.authorizationCode(),
			Amount:            DisplayAmount(a.Amount, a.Currency),
			Currency:          a.Currency,
			Channel:           a.Request.Method,
			ProcessorResponse: "Approved",
			PaidAt:            s.clock.Now().UTC(),
		},
		Latency: waited,
	}, nil
}

func (s *Simulator) wait(ctx context.Context, method constants.PaymentMethod) (time.Duration, error) {
	r, ok := s.latency[method]
	if !ok || r.Max <= 0 {
		return 0, nil
	}

	delay := r.Min + time.Duration(s.random.Float64()*float64(r.Max-r.Min))
	select {
	case <-s.clock.After(delay):
		return delay, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

const authAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (s *Simulator) authorizationCode() string {
	var b strings.Builder
	b.WriteString("AUTH_")
	for i := 0; i < 6; i++ {
		b.WriteByte(authAlphabet[int(s.random.Float64()*float64(len(authAlphabet)))])
	}
	return b.String()
}

// DisplayAmount renders minor units in major units, e.g. 100000 NGN -> "1000.00".
func DisplayAmount(minor int64, currency constants.Currency) string {
	exp := currency.Exponent()
	return decimal.New(minor, -exp).StringFixed(exp)
}
