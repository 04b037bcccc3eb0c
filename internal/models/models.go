package models

import (
	"encoding/json"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
)

type PaymentConfig struct {
	AllowedMethods []constants.PaymentMethod `json:"allowedMethods"`
	AutoCapture    bool                      `json:"autoCapture"`
}

// Allows reports whether method may be used. An empty list allows every
// supported method.
func (c PaymentConfig) Allows(method constants.PaymentMethod) bool {
	if len(c.AllowedMethods) == 0 {
		return method.Valid()
	}
	for _, m := range c.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

type CheckoutSession struct {
	ID            string                  `json:"id"`
	OwnerID       string                  `json:"ownerId"`
	CredentialID  string                  `json:"credentialId"`
	Amount        int64                   `json:"amount"`
	Currency      constants.Currency      `json:"currency"`
	Description   string                  `json:"description"`
	CustomerEmail string                  `json:"customerEmail,omitempty"`
	CustomerName  string                  `json:"customerName,omitempty"`
	PaymentConfig PaymentConfig           `json:"paymentConfig"`
	Metadata      map[string]string       `json:"metadata,omitempty"`
	Status        constants.SessionStatus `json:"status"`
	ExpiresAt     time.Time               `json:"expiresAt"`

	PaymentMethod constants.PaymentMethod `json:"paymentMethod,omitempty"`
	TransactionID string                  `json:"transactionId,omitempty"`
	FailureReason string                  `json:"failureReason,omitempty"`
	CancelReason  string                  `json:"cancelReason,omitempty"`
	RefundAmount  int64                   `json:"refundAmount,omitempty"`

	CreatedAt    time.Time  `json:"createdAt"`
	ProcessingAt *time.Time `json:"processingAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	FailedAt     *time.Time `json:"failedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	ExpiredAt    *time.Time `json:"expiredAt,omitempty"`
	RefundedAt   *time.Time `json:"refundedAt,omitempty"`
}

func (s *CheckoutSession) Clone() *CheckoutSession {
	c := *s
	c.PaymentConfig.AllowedMethods = append([]constants.PaymentMethod(nil), s.PaymentConfig.AllowedMethods...)
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// PastExpiry reports whether a pending session has reached its expiry and
// can no longer be claimed for processing.
func (s *CheckoutSession) PastExpiry(now time.Time) bool {
	return s.Status == constants.StatusPending && !now.Before(s.ExpiresAt)
}

type RateLimits struct {
	PerMinute int `json:"perMinute"`
	PerHour   int `json:"perHour"`
	PerDay    int `json:"perDay"`
}

var DefaultRateLimits = RateLimits{PerMinute: 100, PerHour: 1000, PerDay: 10000}

type Credential struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"ownerId"`
	PublicToken   string     `json:"publicToken"`
	SecretToken   string     `json:"secretToken"`
	Active        bool       `json:"active"`
	UsageCount    int64      `json:"usageCount"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	RateLimits    RateLimits `json:"rateLimits"`
	WebhookURL    string     `json:"webhookUrl,omitempty"`
	WebhookSecret string     `json:"webhookSecret,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (c *Credential) Clone() *Credential {
	cp := *c
	return &cp
}

type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

type retryPolicyJSON struct {
	MaxAttempts       int     `json:"maxAttempts"`
	BaseDelayMs       int64   `json:"baseDelayMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
}

func (p RetryPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(retryPolicyJSON{
		MaxAttempts:       p.MaxAttempts,
		BaseDelayMs:       p.BaseDelay.Milliseconds(),
		BackoffMultiplier: p.BackoffMultiplier,
	})
}

func (p *RetryPolicy) UnmarshalJSON(data []byte) error {
	var raw retryPolicyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.MaxAttempts = raw.MaxAttempts
	p.BaseDelay = time.Duration(raw.BaseDelayMs) * time.Millisecond
	p.BackoffMultiplier = raw.BackoffMultiplier
	return nil
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, BackoffMultiplier: 2}

// Delay returns the wait before the attempt following attempt n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		delay *= p.BackoffMultiplier
	}
	return time.Duration(delay)
}

// Normalize fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = DefaultRetryPolicy.BackoffMultiplier
	}
	return p
}

type DeliveryStats struct {
	TotalAttempts        int64      `json:"totalAttempts"`
	SuccessfulDeliveries int64      `json:"successfulDeliveries"`
	FailedDeliveries     int64      `json:"failedDeliveries"`
	LastSuccessAt        *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt        *time.Time `json:"lastFailureAt,omitempty"`
}

type WebhookSubscription struct {
	ID          string                `json:"id"`
	OwnerID     string                `json:"ownerId"`
	URL         string                `json:"url"`
	Secret      string                `json:"secret"`
	Events      []constants.EventType `json:"events"`
	Active      bool                  `json:"active"`
	RetryPolicy RetryPolicy           `json:"retryPolicy"`
	Stats       DeliveryStats         `json:"stats"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

func (w *WebhookSubscription) Clone() *WebhookSubscription {
	c := *w
	c.Events = append([]constants.EventType(nil), w.Events...)
	return &c
}

func (w *WebhookSubscription) Wants(event constants.EventType) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

type FailureScenario struct {
	Type       constants.FailureType `json:"type" yaml:"type"`
	Weight     float64               `json:"weight" yaml:"weight"`
	Message    string                `json:"message" yaml:"message"`
	StatusCode int                   `json:"statusCode" yaml:"statusCode"`
}
