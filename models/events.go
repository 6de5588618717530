package models

import "time"

const (
	EventOrderPlaced                = "order_placed"
	EventOrderStatusChanged         = "order_status_changed"
	EventOrderCancellationRequested = "order_cancellation_requested"
	EventPaymentInitiated           = "payment_initiated"
	EventPaymentSucceeded           = "payment_succeeded"
	EventPaymentFailed              = "payment_failed"
)

// OrderEvent is published to SNS and Kafka after a state change is committed.
type OrderEvent struct {
	EventType     string    `json:"event_type"`
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Gateway       string    `json:"gateway,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Amount        int       `json:"amount"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewOrderEvent snapshots the order fields every event carries.
func NewOrderEvent(eventType string, o *Order, now time.Time) OrderEvent {
	return OrderEvent{
		EventType:     eventType,
		OrderID:       o.ID.String(),
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID.String(),
		Status:        o.Status,
		PaymentStatus: o.PaymentDetails.Status,
		PaymentMethod: o.PaymentDetails.Method,
		Gateway:       o.PaymentDetails.Gateway,
		TransactionID: o.PaymentDetails.TransactionID,
		Amount:        o.TotalAmount,
		Timestamp:     now,
	}
}

// CallbackMessage is what the payment callback queue carries. Gateways post to
// an HTTPS endpoint that relays into SNS/SQS.
type CallbackMessage struct {
	Gateway       string `json:"gateway"`
	TransactionID string `json:"transactionId"`
}
