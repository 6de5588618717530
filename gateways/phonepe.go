package gateways

import (
	"context"
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

const (
	phonePePayPath   = "/pg/v1/pay"
	phonePeStateDone = "COMPLETED"
)

// PhonePeGateway implements PaymentGateway against the PhonePe PG v1 API.
type PhonePeGateway struct {
	cfg    config.PhonePeConfig
	client *restClient
}

func NewPhonePeGateway(cfg config.PhonePeConfig, httpCfg config.GatewayHTTPConfig, logger *zap.Logger) *PhonePeGateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PhonePeGateway{
		cfg:    cfg,
		client: newRestClient(NamePhonePe, httpCfg, logger),
	}
}

// ---- PhonePe API request/response structs ----

type phonePeInstrument struct {
	Type string `json:"type"`
}

type phonePePayRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber"`
	PaymentInstrument     phonePeInstrument `json:"paymentInstrument"`
}

type phonePePayResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

type phonePeStatusResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		State                 string `json:"state"`
		Amount                int64  `json:"amount"`
	} `json:"data"`
}

// ---- PaymentGateway implementation ----

func (p *PhonePeGateway) Name() string { return NamePhonePe }

func (p *PhonePeGateway) Supports(method string) bool {
	return method == models.PaymentMethodPhonePe || method == models.PaymentMethodUPI
}

// Initiate creates a PAY_PAGE payment and returns the redirect URL.
func (p *PhonePeGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	payload := phonePePayRequest{
		MerchantID:            p.cfg.MerchantID,
		MerchantTransactionID: req.TransactionID,
		MerchantUserID:        req.UserID,
		Amount:                ToPaise(req.Amount),
		RedirectURL:           p.cfg.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           p.cfg.CallbackURL,
		MobileNumber:          req.Customer.Phone,
		PaymentInstrument:     phonePeInstrument{Type: "PAY_PAGE"},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("phonepe marshal payload: %w", err)
	}

	encoded, checksum := p.Checksum(raw, phonePePayPath)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, fmt.Errorf("phonepe marshal request: %w", err)
	}

	var resp phonePePayResponse
	if err := p.client.do(ctx, http.MethodPost, p.cfg.BaseURL+phonePePayPath, body,
		map[string]string{"X-VERIFY": checksum}, &resp); err != nil {
		return nil, err
	}

	if !resp.Success || resp.Data.InstrumentResponse.RedirectInfo.URL == "" {
		return &InitiateResult{Declined: true, Message: resp.Message}, nil
	}

	return &InitiateResult{
		GatewayOrderID: req.TransactionID,
		Payload: map[string]interface{}{
			"paymentUrl":    resp.Data.InstrumentResponse.RedirectInfo.URL,
			"transactionId": req.TransactionID,
			"orderId":       req.OrderID,
		},
	}, nil
}

// Verify checks the transaction status. Only state COMPLETED counts as paid.
func (p *PhonePeGateway) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	path := fmt.Sprintf("/pg/v1/status/%s/%s", p.cfg.MerchantID, req.TransactionID)
	_, checksum := p.Checksum(nil, path)

	var resp phonePeStatusResponse
	if err := p.client.do(ctx, http.MethodGet, p.cfg.BaseURL+path, nil, map[string]string{
		"X-VERIFY":      checksum,
		"X-MERCHANT-ID": p.cfg.MerchantID,
	}, &resp); err != nil {
		return nil, err
	}

	return &VerifyResult{
		Paid:             resp.Success && resp.Data.State == phonePeStateDone,
		GatewayPaymentID: resp.Data.TransactionID,
		State:            resp.Data.State,
	}, nil
}

// Checksum base64-encodes payload and returns it with the X-VERIFY header
// value sha256hex(base64 + endpoint + saltKey) + "###" + saltIndex.
func (p *PhonePeGateway) Checksum(payload []byte, endpoint string) (string, string) {
	encoded := ""
	if len(payload) > 0 {
		encoded = base64.StdEncoding.EncodeToString(payload)
	}
	sum := sha256.Sum256([]byte(encoded + endpoint + p.cfg.SaltKey))
	return encoded, hex.EncodeToString(sum[:]) + "###" + p.cfg.SaltIndex
}
