package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"checkout-service/config"
	"checkout-service/models"

	"go.uber.org/zap"
)

const razorpayCaptured = "captured"

// RazorpayGateway implements PaymentGateway with the Razorpay orders API.
type RazorpayGateway struct {
	cfg    config.RazorpayConfig
	client *restClient
}

func NewRazorpayGateway(cfg config.RazorpayConfig, httpCfg config.GatewayHTTPConfig, logger *zap.Logger) *RazorpayGateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RazorpayGateway{
		cfg:    cfg,
		client: newRestClient(NameRazorpay, httpCfg, logger),
	}
}

type razorpayOrderRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	PaymentCapture int               `json:"payment_capture"`
	Notes          map[string]string `json:"notes"`
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

func (r *RazorpayGateway) Name() string { return NameRazorpay }

func (r *RazorpayGateway) Supports(method string) bool {
	switch method {
	case models.PaymentMethodCard, models.PaymentMethodNetBanking, models.PaymentMethodWallet, models.PaymentMethodUPI:
		return true
	}
	return false
}

// Initiate creates a Razorpay order with auto-capture. The browser checkout
// completes the payment and then calls verify.
func (r *RazorpayGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:         ToPaise(req.Amount),
		Currency:       "INR",
		Receipt:        req.TransactionID,
		PaymentCapture: 1,
		Notes: map[string]string{
			"orderId": req.OrderID,
			"userId":  req.UserID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("razorpay marshal order: %w", err)
	}

	var order razorpayOrder
	if err := r.client.do(ctx, http.MethodPost, r.cfg.BaseURL+"/v1/orders", body, r.authHeader(), &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return &InitiateResult{Declined: true, Message: "razorpay returned no order id"}, nil
	}

	return &InitiateResult{
		GatewayOrderID: order.ID,
		Payload: map[string]interface{}{
			"razorpayOrderId": order.ID,
			"amount":          order.Amount,
			"currency":        order.Currency,
			"keyId":           r.cfg.KeyID,
			"orderId":         req.OrderID,
			"orderNumber":     req.OrderNumber,
			"transactionId":   req.TransactionID,
			"customerDetails": map[string]string{
				"name":  req.Customer.Name,
				"email": req.Customer.Email,
				"phone": req.Customer.Phone,
			},
		},
	}, nil
}

// Verify checks the checkout signature, then fetches the payment and reports
// it paid only when captured against the expected order.
func (r *RazorpayGateway) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if !r.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		return nil, ErrInvalidSignature
	}

	var payment razorpayPayment
	if err := r.client.do(ctx, http.MethodGet, r.cfg.BaseURL+"/v1/payments/"+req.GatewayPaymentID, nil, r.authHeader(), &payment); err != nil {
		return nil, err
	}

	paid := payment.Status == razorpayCaptured
	if payment.OrderID != "" && payment.OrderID != req.GatewayOrderID {
		paid = false
	}
	return &VerifyResult{
		Paid:             paid,
		GatewayPaymentID: payment.ID,
		State:            payment.Status,
	}, nil
}

// VerifySignature compares hex(HMAC-SHA256(orderID|paymentID, keySecret))
// with the supplied signature in constant time.
func (r *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := r.Sign(orderID + "|" + paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (r *RazorpayGateway) Sign(message string) string {
	mac := hmac.New(sha256.New, []byte(r.cfg.KeySecret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *RazorpayGateway) authHeader() map[string]string {
	creds := base64.StdEncoding.EncodeToString([]byte(r.cfg.KeyID + ":" + r.cfg.KeySecret))
	return map[string]string{"Authorization": "Basic " + creds}
}
