package constants

type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyGHS Currency = "GHS"
	CurrencyKES Currency = "KES"
	CurrencyZAR Currency = "ZAR"
)

var currencies = map[Currency]int32{
	CurrencyNGN: 2,
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyGHS: 2,
	CurrencyKES: 2,
	CurrencyZAR: 2,
}

func (c Currency) Valid() bool {
	_, ok := currencies[c]
	return ok
}

// Exponent is the number of minor-unit digits of the currency.
func (c Currency) Exponent() int32 {
	return currencies[c]
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCrypto       PaymentMethod = "crypto"
	MethodWallet       PaymentMethod = "wallet"
)

var AllMethods = []PaymentMethod{
	MethodCard,
	MethodBankTransfer,
	MethodMobileMoney,
	MethodCrypto,
	MethodWallet,
}

func (m PaymentMethod) Valid() bool {
	for _, known := range AllMethods {
		if m == known {
			return true
		}
	}
	return false
}

type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusCancelled  SessionStatus = "cancelled"
	StatusExpired    SessionStatus = "expired"
	StatusRefunded   SessionStatus = "refunded"
)

var transitions = map[SessionStatus][]SessionStatus{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusExpired},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded},
}

// CanTransition reports whether the state graph has an edge from s to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible. Completed
// sessions are terminal for payment purposes but may still be refunded.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

type EventType string

const (
	EventSessionCompleted      EventType = "checkout.session.completed"
	EventSessionFailed         EventType = "checkout.session.failed"
	EventSessionCancelled      EventType = "checkout.session.cancelled"
	EventSessionExpired        EventType = "checkout.session.expired"
	EventChargeRefunded        EventType = "charge.refunded"
	EventSubscriptionCreated   EventType = "subscription.created"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventWebhookTest           EventType = "webhook.test"
)

type EventFamily string

const (
	FamilySession      EventFamily = "session"
	FamilyRefund       EventFamily = "refund"
	FamilySubscription EventFamily = "subscription"
	FamilyPing         EventFamily = "ping"
)

var eventFamilies = map[EventType]EventFamily{
	EventSessionCompleted:      FamilySession,
	EventSessionFailed:         FamilySession,
	EventSessionCancelled:      FamilySession,
	EventSessionExpired:        FamilySession,
	EventChargeRefunded:        FamilyRefund,
	EventSubscriptionCreated:   FamilySubscription,
	EventSubscriptionCancelled: FamilySubscription,
	EventWebhookTest:           FamilyPing,
}

func (e EventType) Valid() bool {
	_, ok := eventFamilies[e]
	return ok
}

func (e EventType) Family() EventFamily {
	return eventFamilies[e]
}

// SessionEventFor maps a notifiable session status to its event.
func SessionEventFor(status SessionStatus) (EventType, bool) {
	switch status {
	case StatusCompleted:
		return EventSessionCompleted, true
	case StatusFailed:
		return EventSessionFailed, true
	case StatusCancelled:
		return EventSessionCancelled, true
	case StatusExpired:
		return EventSessionExpired, true
	case StatusRefunded:
		return EventChargeRefunded, true
	}
	return "", false
}

type FailureType string

const (
	FailureCardDeclined      FailureType = "card_declined"
	FailureInsufficientFunds FailureType = "insufficient_funds"
	FailureExpiredCard       FailureType = "expired_card"
	FailureInvalidCVV        FailureType = "invalid_cvv"
	FailureNetworkError      FailureType = "network_error"
	FailureTimeout           FailureType = "timeout"
	FailureFraudDetection    FailureType = "fraud_detection"
)
