package gateways

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/models"
)

// Gateway names as stored in payment_gateway and used in routes.
const (
	NamePhonePe  = "phonepe"
	NameRazorpay = "razorpay"
	NameStripe   = "stripe"
)

// ErrInvalidSignature is returned when a client- or webhook-supplied
// signature does not match the one computed with our secret.
var ErrInvalidSignature = errors.New("invalid payment signature")

type Customer struct {
	Name  string
	Email string
	Phone string
}

// InitiateRequest carries what every provider needs to open a payment.
// Amount is in whole rupees; providers convert to paise.
type InitiateRequest struct {
	OrderID       string
	OrderNumber   string
	UserID        string
	TransactionID string
	Amount        int
	Customer      Customer
}

// InitiateResult is a provider's answer to a successful call. Declined is
// set when the provider answered but refused the payment.
type InitiateResult struct {
	GatewayOrderID string
	Declined       bool
	Message        string
	// Payload is handed to the client to continue checkout.
	Payload map[string]interface{}
}

// VerifyRequest identifies a payment to check. Each provider reads the
// fields it needs.
type VerifyRequest struct {
	TransactionID    string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type VerifyResult struct {
	Paid             bool
	GatewayPaymentID string
	State            string
}

// PaymentGateway defines the interface all payment provider integrations must implement.
type PaymentGateway interface {
	Name() string

	// Supports reports whether the provider can take payments for the method.
	Supports(method string) bool

	// Initiate opens a payment with the provider.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)

	// Verify asks the provider whether the payment was captured.
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

// Error is a failed provider call. Retryable marks transport failures,
// timeouts, 429 and 5xx responses.
type Error struct {
	Gateway    string
	StatusCode int
	Retryable  bool
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Gateway, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s API error: %s", e.Gateway, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Registry holds the configured gateways and picks one for a payment method.
type Registry struct {
	gateways    map[string]PaymentGateway
	cardGateway string
}

// NewRegistry registers the non-nil gateways. cardGateway names the provider
// that takes Card payments when no gateway is requested explicitly.
func NewRegistry(cardGateway string, gws ...PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[string]PaymentGateway), cardGateway: cardGateway}
	for _, gw := range gws {
		if gw != nil {
			r.gateways[gw.Name()] = gw
		}
	}
	return r
}

func (r *Registry) Get(name string) (PaymentGateway, bool) {
	gw, ok := r.gateways[name]
	return gw, ok
}

// ForMethod returns the default gateway for a payment method. COD has none.
func (r *Registry) ForMethod(method string) (PaymentGateway, bool) {
	switch method {
	case models.PaymentMethodPhonePe, models.PaymentMethodUPI:
		return r.Get(NamePhonePe)
	case models.PaymentMethodCard:
		if r.cardGateway == NameStripe {
			return r.Get(NameStripe)
		}
		return r.Get(NameRazorpay)
	case models.PaymentMethodNetBanking, models.PaymentMethodWallet:
		return r.Get(NameRazorpay)
	}
	return nil, false
}

// ToPaise converts whole rupees to the provider's minor unit.
func ToPaise(amount int) int64 {
	return int64(amount) * 100
}
