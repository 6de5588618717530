package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"checkout-service/config"
	"checkout-service/models"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

// StripeGateway takes Card payments through PaymentIntents.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// WebhookEvent is the part of a Stripe event the reconciler needs.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	LatestChargeID  string
	Succeeded       bool
	Failed          bool
}

func NewStripeGateway(cfg config.StripeConfig, httpCfg config.GatewayHTTPConfig, logger *zap.Logger) *StripeGateway {
	return newStripeGateway(cfg, httpCfg, logger, "")
}

// newStripeGateway points the API backend at backendURL when set.
func newStripeGateway(cfg config.StripeConfig, httpCfg config.GatewayHTTPConfig, logger *zap.Logger, backendURL string) *StripeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := httpCfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(int64(httpCfg.MaxRetries)),
		LeveledLogger:     logger.Named("stripe").Sugar(),
	}
	if backendURL != "" {
		backendCfg.URL = stripe.String(backendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeGateway{api: api, webhookSecret: cfg.WebhookSecret}
}

func (s *StripeGateway) Name() string { return NameStripe }

func (s *StripeGateway) Supports(method string) bool {
	return method == models.PaymentMethodCard
}

// Initiate creates a PaymentIntent; the client confirms it with the secret.
func (s *StripeGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToPaise(req.Amount)),
		Currency: stripe.String(string(stripe.CurrencyINR)),
	}
	params.Context = ctx
	params.AddMetadata("orderId", req.OrderID)
	params.AddMetadata("orderNumber", req.OrderNumber)
	params.AddMetadata("transactionId", req.TransactionID)
	params.SetIdempotencyKey(req.TransactionID)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return &InitiateResult{Declined: true, Message: stripeErr.Msg}, nil
		}
		return nil, s.wrap(err)
	}

	return &InitiateResult{
		GatewayOrderID: pi.ID,
		Payload: map[string]interface{}{
			"clientSecret":    pi.ClientSecret,
			"paymentIntentId": pi.ID,
			"amount":          pi.Amount,
			"currency":        pi.Currency,
			"orderId":         req.OrderID,
			"transactionId":   req.TransactionID,
		},
	}, nil
}

// Verify fetches the PaymentIntent named by GatewayOrderID.
func (s *StripeGateway) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(req.GatewayOrderID, params)
	if err != nil {
		return nil, s.wrap(err)
	}

	paymentID := pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		paymentID = pi.LatestCharge.ID
	}
	return &VerifyResult{
		Paid:             pi.Status == stripe.PaymentIntentStatusSucceeded,
		GatewayPaymentID: paymentID,
		State:            string(pi.Status),
	}, nil
}

// ParseWebhook checks the Stripe-Signature header and decodes payment intent
// events. Other event types come back with neither Succeeded nor Failed set.
func (s *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.PaymentIntentID = pi.ID
		if pi.LatestCharge != nil {
			out.LatestChargeID = pi.LatestCharge.ID
		}
		out.Succeeded = event.Type == "payment_intent.succeeded"
		out.Failed = !out.Succeeded
	}
	return out, nil
}

func (s *StripeGateway) wrap(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &Error{
			Gateway:    NameStripe,
			StatusCode: stripeErr.HTTPStatusCode,
			Retryable:  stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= 500,
			Message:    stripeErr.Msg,
			Err:        err,
		}
	}
	return &Error{Gateway: NameStripe, Retryable: true, Err: err}
}
