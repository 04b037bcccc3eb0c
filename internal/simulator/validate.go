package simulator

import (
	"net/mail"
	"strings"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/errs"
	"github.com/mochaeng/payment-sandbox/internal/models"
)

// Attempt is one payment submission against a session.
type Attempt struct {
	Amount   int64
	Currency constants.Currency
	Config   models.PaymentConfig
	Request  models.PaymentRequest
}

// Luhn reports whether number passes the Luhn checksum. Every second digit
// from the right is doubled, with 9 subtracted when the result exceeds 9.
func Luhn(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// NormalizeCardNumber strips the spaces and dashes customers type.
func NormalizeCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

// ValidEmail accepts a bare address such as dev@example.com.
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// CardExpired reports whether month/year lies before the month of now. A card
// stays valid through the last instant of its expiry month.
func CardExpired(month, year int, now time.Time) bool {
	if year < 100 {
		year += 2000
	}
	endOfMonth := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, now.Location())
	return !now.Before(endOfMonth)
}

// Validate rejects malformed attempts before any outcome is decided.
func Validate(a Attempt, now time.Time) error {
	if a.Amount <= 0 {
		return errs.Invalid("amount", "must be positive")
	}
	if !a.Currency.Valid() {
		return errs.Invalid("currency", "unsupported currency "+string(a.Currency))
	}

	req := a.Request
	if !req.Method.Valid() {
		return errs.Invalid("paymentMethod", "unsupported payment method "+string(req.Method))
	}
	if !a.Config.Allows(req.Method) {
		return errs.Invalid("paymentMethod", string(req.Method)+" is not enabled for this session")
	}
	if !ValidEmail(req.CustomerEmail) {
		return errs.Invalid("customerEmail", "malformed email address")
	}

	switch req.Method {
	case constants.MethodCard:
		return validateCard(req.Card, now)
	case constants.MethodMobileMoney:
		return validatePhone(req.PhoneNumber)
	}
	return nil
}

func validateCard(card *models.CardDetails, now time.Time) error {
	if card == nil {
		return errs.Invalid("card", "card details are required")
	}

	number := NormalizeCardNumber(card.Number)
	if len(number) < 13 || len(number) > 19 {
		return errs.Invalid("card.number", "must be 13 to 19 digits")
	}
	if !Luhn(number) {
		return errs.Invalid("card.number", "failed checksum")
	}

	if len(card.CVV) < 3 || len(card.CVV) > 4 || !digitsOnly(card.CVV) {
		return errs.Invalid("card.cvv", "must be 3 or 4 digits")
	}

	if card.ExpiryMonth < 1 || card.ExpiryMonth > 12 {
		return errs.Invalid("card.expiryMonth", "must be between 1 and 12")
	}
	if card.ExpiryYear <= 0 {
		return errs.Invalid("card.expiryYear", "is required")
	}
	if CardExpired(card.ExpiryMonth, card.ExpiryYear, now) {
		return errs.Invalid("card.expiry", "card has expired")
	}
	return nil
}

func validatePhone(phone string) error {
	phone = strings.TrimPrefix(phone, "+")
	if len(phone) < 7 || len(phone) > 15 || !digitsOnly(phone) {
		return errs.Invalid("phoneNumber", "must be 7 to 15 digits")
	}
	return nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
