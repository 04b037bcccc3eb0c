package simulator

import (
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLuhn(t *testing.T) {
	assert.True(t, Luhn("4532015112830366"))
	assert.False(t, Luhn("4532015112830367"))
	assert.True(t, Luhn("4242424242424242"))
	assert.True(t, Luhn("5555555555554444"))
	assert.False(t, Luhn(""))
	assert.False(t, Luhn("4242a24242424242"))
}

// luhnCheckDigit computes the digit that makes payload+digit pass.
func luhnCheckDigit(payload string) int {
	for d := 0; d < 10; d++ {
		if Luhn(payload + strconv.Itoa(d)) {
			return d
		}
	}
	return -1
}

func TestLuhn_ExactlyOneCheckDigitPerPayload(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))

	for length := 13; length <= 19; length++ {
		for i := 0; i < 200; i++ {
			payload := make([]byte, length-1)
			for j := range payload {
				payload[j] = byte('0' + r.IntN(10))
			}

			valid := 0
			for d := 0; d < 10; d++ {
				if Luhn(string(payload) + strconv.Itoa(d)) {
					valid++
				}
			}
			require.Equal(t, 1, valid, "payload %s", payload)

			check := luhnCheckDigit(string(payload))
			wrong := (check + 1 + r.IntN(9)) % 10
			assert.False(t, Luhn(string(payload)+strconv.Itoa(wrong)))
		}
	}
}

func TestCardExpired(t *testing.T) {
	now := time.Date(2026, time.March, 31, 23, 59, 59, 0, time.UTC)

	assert.False(t, CardExpired(3, 2026, now), "valid through the end of its month")
	assert.True(t, CardExpired(2, 2026, now))
	assert.False(t, CardExpired(12, 27, now), "two digit years")
	assert.True(t, CardExpired(3, 2026, now.Add(time.Second)))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("dev@example.com"))
	assert.False(t, ValidEmail("dev@"))
	assert.False(t, ValidEmail("not-an-email"))
	assert.False(t, ValidEmail("Dev <dev@example.com>"))
	assert.False(t, ValidEmail("dev@localhost"))
}

func validCardAttempt() Attempt {
	return Attempt{
		Amount:   100000,
		Currency: constants.CurrencyNGN,
		Request: models.PaymentRequest{
			Method:        constants.MethodCard,
			CustomerEmail: "dev@example.com",
			Card: &models.CardDetails{
				Number:      "4532 0151 1283 0366",
				CVV:         "123",
				ExpiryMonth: 12,
				ExpiryYear:  2030,
			},
		},
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*Attempt)
		field  string
	}{
		{name: "valid card", mutate: func(*Attempt) {}},
		{name: "zero amount", mutate: func(a *Attempt) { a.Amount = 0 }, field: "amount"},
		{name: "unknown currency", mutate: func(a *Attempt) { a.Currency = "JPY" }, field: "currency"},
		{name: "unknown method", mutate: func(a *Attempt) { a.Request.Method = "cheque" }, field: "paymentMethod"},
		{name: "method not allowed", mutate: func(a *Attempt) {
			a.Config.AllowedMethods = []constants.PaymentMethod{constants.MethodBankTransfer}
		}, field: "paymentMethod"},
		{name: "bad email", mutate: func(a *Attempt) { a.Request.CustomerEmail = "nope" }, field: "customerEmail"},
		{name: "missing card", mutate: func(a *Attempt) { a.Request.Card = nil }, field: "card"},
		{name: "luhn failure", mutate: func(a *Attempt) { a.Request.Card.Number = "4532015112830367" }, field: "card.number"},
		{name: "short number", mutate: func(a *Attempt) { a.Request.Card.Number = "42424242" }, field: "card.number"},
		{name: "short cvv", mutate: func(a *Attempt) { a.Request.Card.CVV = "12" }, field: "card.cvv"},
		{name: "long cvv", mutate: func(a *Attempt) { a.Request.Card.CVV = "12345" }, field: "card.cvv"},
		{name: "four digit cvv", mutate: func(a *Attempt) { a.Request.Card.CVV = "1234" }},
		{name: "bad month", mutate: func(a *Attempt) { a.Request.Card.ExpiryMonth = 13 }, field: "card.expiryMonth"},
		{name: "expired", mutate: func(a *Attempt) {
			a.Request.Card.ExpiryMonth = 9
			a.Request.Card.ExpiryYear = 2026
		}, field: "card.expiry"},
		{name: "expires this month", mutate: func(a *Attempt) {
			a.Request.Card.ExpiryMonth = 10
			a.Request.Card.ExpiryYear = 2026
		}},
		{name: "mobile money phone", mutate: func(a *Attempt) {
			a.Request.Method = constants.MethodMobileMoney
			a.Request.PhoneNumber = "+254700000000"
		}},
		{name: "mobile money bad phone", mutate: func(a *Attempt) {
			a.Request.Method = constants.MethodMobileMoney
			a.Request.PhoneNumber = "12ab"
		}, field: "phoneNumber"},
		{name: "bank transfer", mutate: func(a *Attempt) {
			a.Request.Method = constants.MethodBankTransfer
			a.Request.Card = nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempt := validCardAttempt()
			tt.mutate(&attempt)

			err := Validate(attempt, now)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var verr *errs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}
