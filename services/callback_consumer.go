package services

import (
	"context"
	"encoding/json"
	"strings"

	apperrors "checkout-service/common/errors"
	"checkout-service/gateways"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"

	"go.uber.org/zap"
)

// CallbackPoller is satisfied by aws_pkg.SQSConsumer.
type CallbackPoller interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

// PhonePeCallbackHandler is the part of PaymentService the consumer drives.
type PhonePeCallbackHandler interface {
	HandlePhonePeCallback(ctx context.Context, transactionID string) (*models.PaymentStatusView, *ServiceError)
}

// CallbackConsumer reconciles gateway callbacks relayed through SNS/SQS.
type CallbackConsumer struct {
	poller   CallbackPoller
	payments PhonePeCallbackHandler
	logger   *zap.Logger
}

func NewCallbackConsumer(poller CallbackPoller, payments PhonePeCallbackHandler, logger *zap.Logger) *CallbackConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackConsumer{poller: poller, payments: payments, logger: logger}
}

// Start blocks until ctx is cancelled.
func (c *CallbackConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting payment callback consumer")
	return c.poller.StartPolling(ctx, c.HandleMessage)
}

// HandleMessage returns nil for messages that can never succeed so SQS
// deletes them; any other error leaves the message for redelivery.
func (c *CallbackConsumer) HandleMessage(ctx context.Context, body string) error {
	payload := body

	// SNS-to-SQS deliveries wrap the original message in an envelope
	var envelope struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		payload = envelope.Message
	}

	var msg models.CallbackMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		c.logger.Warn("Dropping malformed callback message", zap.Error(err))
		return nil
	}
	if !strings.EqualFold(msg.Gateway, gateways.NamePhonePe) || msg.TransactionID == "" {
		c.logger.Warn("Dropping unsupported callback message",
			zap.String("gateway", msg.Gateway), zap.String("transaction_id", msg.TransactionID))
		return nil
	}

	view, serr := c.payments.HandlePhonePeCallback(ctx, msg.TransactionID)
	if serr != nil {
		switch serr.Code {
		case apperrors.CodeOrderNotFound, apperrors.CodeValidation, apperrors.CodePaymentPrecondition:
			c.logger.Warn("Dropping callback that cannot be applied",
				zap.String("transaction_id", msg.TransactionID), zap.String("code", serr.Code))
			return nil
		}
		c.logger.Error("Callback processing failed, will retry",
			zap.String("transaction_id", msg.TransactionID), zap.Error(serr))
		return serr
	}

	c.logger.Info("Payment callback processed",
		zap.String("transaction_id", msg.TransactionID),
		zap.String("order_id", view.OrderID),
		zap.String("payment_status", view.PaymentStatus))
	return nil
}
