package models

import (
	"fmt"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
)

// EventData is the payload schema of one event family.
type EventData interface {
	Family() constants.EventFamily
}

type SessionEventData struct {
	SessionID     string                  `json:"sessionId"`
	Status        constants.SessionStatus `json:"status"`
	Amount        int64                   `json:"amount"`
	Currency      constants.Currency      `json:"currency"`
	Description   string                  `json:"description"`
	CustomerEmail string                  `json:"customerEmail,omitempty"`
	CustomerName  string                  `json:"customerName,omitempty"`
	PaymentMethod constants.PaymentMethod `json:"paymentMethod,omitempty"`
	TransactionID string                  `json:"transactionId,omitempty"`
	FailureReason string                  `json:"failureReason,omitempty"`
	CancelReason  string                  `json:"cancelReason,omitempty"`
	Metadata      map[string]string       `json:"metadata,omitempty"`
}

func (SessionEventData) Family() constants.EventFamily { return constants.FamilySession }

type RefundEventData struct {
	SessionID     string             `json:"sessionId"`
	TransactionID string             `json:"transactionId"`
	Amount        int64              `json:"amount"`
	RefundAmount  int64              `json:"refundAmount"`
	Currency      constants.Currency `json:"currency"`
	RefundedAt    time.Time          `json:"refundedAt"`
}

func (RefundEventData) Family() constants.EventFamily { return constants.FamilyRefund }

// SubscriptionEventData is published by the billing collaborator, which owns
// subscription records.
type SubscriptionEventData struct {
	SubscriptionID string             `json:"subscriptionId"`
	CustomerEmail  string             `json:"customerEmail"`
	PlanID         string             `json:"planId"`
	Amount         int64              `json:"amount"`
	Currency       constants.Currency `json:"currency"`
	Interval       string             `json:"interval"`
	Status         string             `json:"status"`
}

func (SubscriptionEventData) Family() constants.EventFamily { return constants.FamilySubscription }

type PingEventData struct {
	WebhookID string `json:"webhookId"`
	Message   string `json:"message"`
}

func (PingEventData) Family() constants.EventFamily { return constants.FamilyPing }

type Event struct {
	Type       constants.EventType
	OwnerID    string
	Data       EventData
	OccurredAt time.Time
}

// NewEvent builds an event, rejecting data whose family does not match the
// event type.
func NewEvent(eventType constants.EventType, ownerID string, data EventData, at time.Time) (Event, error) {
	if !eventType.Valid() {
		return Event{}, fmt.Errorf("unknown event type %q", eventType)
	}
	if data == nil || data.Family() != eventType.Family() {
		return Event{}, fmt.Errorf("event %s requires %s data", eventType, eventType.Family())
	}
	return Event{Type: eventType, OwnerID: ownerID, Data: data, OccurredAt: at}, nil
}

// SessionEvent derives the notification for a session's current status.
func SessionEvent(session *CheckoutSession, at time.Time) (Event, bool) {
	eventType, ok := constants.SessionEventFor(session.Status)
	if !ok {
		return Event{}, false
	}

	if eventType == constants.EventChargeRefunded {
		refundedAt := at
		if session.RefundedAt != nil {
			refundedAt = *session.RefundedAt
		}
		return Event{
			Type:    eventType,
			OwnerID: session.OwnerID,
			Data: RefundEventData{
				SessionID:     session.ID,
				TransactionID: session.TransactionID,
				Amount:        session.Amount,
				RefundAmount:  session.RefundAmount,
				Currency:      session.Currency,
				RefundedAt:    refundedAt,
			},
			OccurredAt: at,
		}, true
	}

	return Event{
		Type:    eventType,
		OwnerID: session.OwnerID,
		Data: SessionEventData{
			SessionID:     session.ID,
			Status:        session.Status,
			Amount:        session.Amount,
			Currency:      session.Currency,
			Description:   session.Description,
			CustomerEmail: session.CustomerEmail,
			CustomerName:  session.CustomerName,
			PaymentMethod: session.PaymentMethod,
			TransactionID: session.TransactionID,
			FailureReason: session.FailureReason,
			CancelReason:  session.CancelReason,
			Metadata:      session.Metadata,
		},
		OccurredAt: at,
	}, true
}

// WebhookEnvelope is the JSON body posted to subscribers.
type WebhookEnvelope struct {
	Event     constants.EventType `json:"event"`
	Data      EventData           `json:"data"`
	Timestamp time.Time           `json:"timestamp"`
	ID        string              `json:"id"`
}
