package controllers

import (
	"context"
	"io"
	"net/http"

	apperrors "checkout-service/common/errors"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBytes = 64 << 10

// PaymentAPI is the payment service as the HTTP layer sees it.
type PaymentAPI interface {
	Initiate(ctx context.Context, userID, orderID, gatewayName string) (*services.InitiationResult, *services.ServiceError)
	GetPaymentStatus(ctx context.Context, userID, orderID string) (*models.PaymentStatusView, *services.ServiceError)
	HandlePhonePeCallback(ctx context.Context, transactionID string) (*models.PaymentStatusView, *services.ServiceError)
	VerifyRazorpay(ctx context.Context, userID string, req *models.RazorpayVerifyRequest) (*models.PaymentStatusView, *services.ServiceError)
	VerifyStripe(ctx context.Context, userID string, req *models.StripeVerifyRequest) (*models.PaymentStatusView, *services.ServiceError)
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *services.ServiceError
}

type PaymentController struct {
	Payments PaymentAPI
	Logger   *zap.Logger
}

func NewPaymentController(payments PaymentAPI, logger *zap.Logger) *PaymentController {
	return &PaymentController{Payments: payments, Logger: logger}
}

// Initiate picks the gateway from the order's payment method.
func (pc *PaymentController) Initiate(c *gin.Context) {
	pc.initiate(c, "")
}

// InitiateWith returns a handler pinned to one gateway.
func (pc *PaymentController) InitiateWith(gateway string) gin.HandlerFunc {
	return func(c *gin.Context) {
		pc.initiate(c, gateway)
	}
}

func (pc *PaymentController) initiate(c *gin.Context, gateway string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID := c.Param("orderId")

	res, serr := pc.Payments.Initiate(c.Request.Context(), userID, orderID, gateway)
	if serr != nil {
		_ = c.Error(serr)
		return
	}

	if res.PaymentStatus == models.PaymentStatusFailed {
		c.JSON(http.StatusOK, gin.H{
			"success":    false,
			"statusCode": http.StatusOK,
			"message":    res.Message,
			"data":       gin.H{"orderId": orderID, "gateway": res.Gateway, "paymentStatus": res.PaymentStatus},
		})
		return
	}
	respond(c, http.StatusOK, "Payment initiated successfully", res.Data)
}

func (pc *PaymentController) GetPaymentStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, serr := pc.Payments.GetPaymentStatus(c.Request.Context(), userID, c.Param("orderId"))
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	respond(c, http.StatusOK, "Payment status fetched", view)
}

// PhonePeCallback is called by PhonePe (or the relay) without user auth;
// the status is always re-read from PhonePe, never trusted from the body.
func (pc *PaymentController) PhonePeCallback(c *gin.Context) {
	var req models.PhonePeCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	view, serr := pc.Payments.HandlePhonePeCallback(c.Request.Context(), req.TransactionID)
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	respond(c, http.StatusOK, "Payment status updated", gin.H{
		"orderId":       view.OrderID,
		"orderNumber":   view.OrderNumber,
		"paymentStatus": view.PaymentStatus,
		"status":        view.Status,
	})
}

func (pc *PaymentController) VerifyRazorpay(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.RazorpayVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	view, serr := pc.Payments.VerifyRazorpay(c.Request.Context(), userID, &req)
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	respond(c, http.StatusOK, "Payment verified successfully", view)
}

func (pc *PaymentController) VerifyStripe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.StripeVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	view, serr := pc.Payments.VerifyStripe(c.Request.Context(), userID, &req)
	if serr != nil {
		_ = c.Error(serr)
		return
	}
	respond(c, http.StatusOK, "Payment verified successfully", view)
}

// StripeWebhook needs the raw body for signature verification.
func (pc *PaymentController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		_ = c.Error(apperrors.Validation("Unable to read webhook body", nil))
		return
	}
	if serr := pc.Payments.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); serr != nil {
		_ = c.Error(serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
