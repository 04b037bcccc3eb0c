package models

import (
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
)

type CreateSessionRequest struct {
	Amount         int64              `json:"amount"`
	Currency       constants.Currency `json:"currency"`
	Description    string             `json:"description"`
	CustomerEmail  string             `json:"customerEmail,omitempty"`
	CustomerName   string             `json:"customerName,omitempty"`
	PaymentConfig  *PaymentConfig     `json:"paymentConfig,omitempty"`
	ExpiresMinutes int                `json:"expiresInMinutes,omitempty"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
}

type CreateSessionResponse struct {
	ID          string                  `json:"id"`
	CheckoutURL string                  `json:"checkoutUrl"`
	Status      constants.SessionStatus `json:"status"`
	ExpiresAt   time.Time               `json:"expiresAt"`
}

type CardDetails struct {
	Number      string `json:"number"`
	CVV         string `json:"cvv"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	HolderName  string `json:"holderName,omitempty"`
}

type PaymentRequest struct {
	Method        constants.PaymentMethod `json:"paymentMethod"`
	CustomerEmail string                  `json:"customerEmail"`
	CustomerName  string                  `json:"customerName,omitempty"`
	Card          *CardDetails            `json:"card,omitempty"`
	PhoneNumber   string                  `json:"phoneNumber,omitempty"`
	BankCode      string                  `json:"bankCode,omitempty"`
	WalletAddress string                  `json:"walletAddress,omitempty"`
}

// GatewayResponse mimics the processor envelope a real gateway returns.
type GatewayResponse struct {
	Reference         string                  `json:"reference"`
	AuthorizationCode string                  `json:"authorizationCode"`
	Amount            string                  `json:"amount"`
	Currency          constants.Currency      `json:"currency"`
	Channel           constants.PaymentMethod `json:"channel"`
	ProcessorResponse string                  `json:"processorResponse"`
	PaidAt            time.Time               `json:"paidAt"`
}

type PaymentResult struct {
	Success       bool                    `json:"success"`
	TransactionID string                  `json:"transactionId,omitempty"`
	Status        constants.SessionStatus `json:"status"`
	Message       string                  `json:"message"`
	RedirectURL   string                  `json:"redirectUrl,omitempty"`
	Gateway       *GatewayResponse        `json:"gatewayResponse,omitempty"`
	FailureType   constants.FailureType   `json:"failureType,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RefundRequest struct {
	Amount int64 `json:"amount"`
}

type CreateWebhookRequest struct {
	URL         string                `json:"url"`
	Events      []constants.EventType `json:"events"`
	RetryPolicy *RetryPolicy          `json:"retryPolicy,omitempty"`
}

type UpdateWebhookRequest struct {
	URL         *string               `json:"url,omitempty"`
	Events      []constants.EventType `json:"events,omitempty"`
	RetryPolicy *RetryPolicy          `json:"retryPolicy,omitempty"`
	Active      *bool                 `json:"active,omitempty"`
}

// WebhookView is the read representation of a subscription; it never carries
// the signing secret.
type WebhookView struct {
	ID          string                `json:"id"`
	URL         string                `json:"url"`
	Events      []constants.EventType `json:"events"`
	Active      bool                  `json:"active"`
	RetryPolicy RetryPolicy           `json:"retryPolicy"`
	Stats       DeliveryStats         `json:"stats"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

func (w *WebhookSubscription) View() WebhookView {
	return WebhookView{
		ID:          w.ID,
		URL:         w.URL,
		Events:      w.Events,
		Active:      w.Active,
		RetryPolicy: w.RetryPolicy,
		Stats:       w.Stats,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

type WebhookSecretResponse struct {
	WebhookView
	Secret string `json:"secret"`
}

type DeliveryReport struct {
	DeliveryID string `json:"deliveryId"`
	Attempts   int    `json:"attempts"`
	Delivered  bool   `json:"delivered"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

type VerifySignatureRequest struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	Secret    string `json:"secret"`
}

type CurrencyVolume struct {
	Completed int64 `json:"completed"`
	Refunded  int64 `json:"refunded"`
}

// SessionSummary aggregates an owner's sessions for reporting collaborators.
type SessionSummary struct {
	TotalSessions int64                                  `json:"totalSessions"`
	ByStatus      map[constants.SessionStatus]int64      `json:"byStatus"`
	Volume        map[constants.Currency]*CurrencyVolume `json:"volume"`
	SuccessRate   float64                                `json:"successRate"`
}
