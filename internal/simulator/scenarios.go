package simulator

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultScenarios returns the stock failure table. Order matters: draws are
// matched against cumulative weights in this order.
func DefaultScenarios() []models.FailureScenario {
	return []models.FailureScenario{
		{Type: constants.FailureCardDeclined, Weight: 0.05, Message: "Your card was declined", StatusCode: http.StatusPaymentRequired},
		{Type: constants.FailureInsufficientFunds, Weight: 0.08, Message: "Insufficient funds", StatusCode: http.StatusPaymentRequired},
		{Type: constants.FailureExpiredCard, Weight: 0.02, Message: "Your card has expired", StatusCode: http.StatusPaymentRequired},
		{Type: constants.FailureInvalidCVV, Weight: 0.03, Message: "Invalid security code", StatusCode: http.StatusPaymentRequired},
		{Type: constants.FailureNetworkError, Weight: 0.01, Message: "Network error, please try again", StatusCode: http.StatusServiceUnavailable},
		{Type: constants.FailureTimeout, Weight: 0.01, Message: "The request timed out", StatusCode: http.StatusGatewayTimeout},
		{Type: constants.FailureFraudDetection, Weight: 0.005, Message: "Transaction flagged as potentially fraudulent", StatusCode: http.StatusForbidden},
	}
}

type LatencyRange struct {
	Min time.Duration
	Max time.Duration
}

func DefaultLatency() map[constants.PaymentMethod]LatencyRange {
	return map[constants.PaymentMethod]LatencyRange{
		constants.MethodCard:         {Min: 1 * time.Second, Max: 3 * time.Second},
		constants.MethodBankTransfer: {Min: 2 * time.Second, Max: 5 * time.Second},
		constants.MethodMobileMoney:  {Min: 1500 * time.Millisecond, Max: 4 * time.Second},
		constants.MethodCrypto:       {Min: 3 * time.Second, Max: 10 * time.Second},
		constants.MethodWallet:       {Min: 800 * time.Millisecond, Max: 2500 * time.Millisecond},
	}
}

// ValidateScenarios checks that weights are non-negative and sum to at most 1.
func ValidateScenarios(scenarios []models.FailureScenario) error {
	total := 0.0
	for _, s := range scenarios {
		if s.Type == "" {
			return fmt.Errorf("scenario without type")
		}
		if s.Weight < 0 {
			return fmt.Errorf("scenario %s has negative weight", s.Type)
		}
		total += s.Weight
	}
	if total > 1 {
		return fmt.Errorf("scenario weights sum to %.4f, above 1", total)
	}
	return nil
}

// LoadScenarios reads an ordered scenario list from YAML:
//
//   - type: card_declined
//     weight: 0.05
//     message: Your card was declined
//     statusCode: 402
func LoadScenarios(r io.Reader) ([]models.FailureScenario, error) {
	var scenarios []models.FailureScenario
	if err := yaml.NewDecoder(r).Decode(&scenarios); err != nil {
		return nil, fmt.Errorf("failed to decode scenarios: %w", err)
	}
	if err := ValidateScenarios(scenarios); err != nil {
		return nil, err
	}
	return scenarios, nil
}

// pick walks the table accumulating weights and returns the first scenario
// whose band contains draw.
func pick(scenarios []models.FailureScenario, draw float64) (models.FailureScenario, bool) {
	cumulative := 0.0
	for _, s := range scenarios {
		cumulative += s.Weight
		if draw < cumulative {
			return s, true
		}
	}
	return models.FailureScenario{}, false
}
