package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "checkout-service/common/errors"
	"checkout-service/gateways"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	declinedMessage = "Payment was declined. Please try again or choose a different payment method."
	gatewayMessage  = "Payment initiation failed. Please try again."
)

var errPaymentClosed = errors.New("order is no longer awaiting payment")

// WebhookParser is implemented by gateways that push signed events.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*gateways.WebhookEvent, error)
}

// SignatureVerifier is implemented by gateways whose client-side checkout
// returns an HMAC over the gateway identifiers.
type SignatureVerifier interface {
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// InitiationResult is what the client needs to continue checkout with the
// chosen provider. Data is nil when the provider declined.
type InitiationResult struct {
	Gateway       string                 `json:"gateway"`
	PaymentStatus string                 `json:"paymentStatus"`
	Message       string                 `json:"message,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

type PaymentService struct {
	orders     repository.OrderRepository
	gateways   *gateways.Registry
	lock       repository.PaymentLocker
	events     EventPublisher
	metrics    businessMetrics
	logger     *zap.Logger
	production bool
	now        func() time.Time
}

func NewPaymentService(
	orders repository.OrderRepository,
	registry *gateways.Registry,
	lock repository.PaymentLocker,
	events EventPublisher,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
	production bool,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &PaymentService{
		orders:     orders,
		gateways:   registry,
		lock:       lock,
		events:     events,
		metrics:    businessMetrics{recorder: metrics, logger: logger},
		logger:     logger,
		production: production,
		now:        time.Now,
	}
}

// Initiate opens a payment for a pending order. gatewayName may be empty, in
// which case the order's payment method picks the provider.
func (s *PaymentService) Initiate(ctx context.Context, userID, orderID, gatewayName string) (*InitiationResult, *ServiceError) {
	uid, oid, serr := parseIDs(userID, orderID)
	if serr != nil {
		return nil, serr
	}
	order, err := s.orders.FindByIDAndUserID(ctx, oid, uid)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Order not found")
		}
		return nil, internalError("Failed to fetch order", err)
	}

	if serr := checkPayable(order); serr != nil {
		return nil, serr
	}

	gw, serr := s.selectGateway(order.PaymentDetails.Method, gatewayName)
	if serr != nil {
		return nil, serr
	}
	if gw.Name() == gateways.NamePhonePe && !models.IsIndianMobile(order.ShippingAddress.Phone) {
		return nil, validationError("A valid 10-digit mobile number is required for PhonePe", []models.FieldError{
			{Field: "phone", Message: "Please enter a valid 10-digit mobile number"},
		})
	}

	release, ok, err := s.lock.Acquire(ctx, order.ID.String())
	if err != nil {
		return nil, internalError("Failed to start payment", err)
	}
	if !ok {
		return nil, apperrors.Conflict("Payment initiation already in progress for this order")
	}
	defer release()

	now := s.now()
	txnID := fmt.Sprintf("TXN_%s_%d", order.OrderNumber, now.UnixMilli())
	dims := map[string]string{"Gateway": gw.Name()}

	res, err := gw.Initiate(ctx, gateways.InitiateRequest{
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		UserID:        userID,
		TransactionID: txnID,
		Amount:        order.TotalAmount,
		Customer: gateways.Customer{
			Name:  order.ShippingAddress.FullName,
			Email: order.ShippingAddress.Email,
			Phone: order.ShippingAddress.Phone,
		},
	})
	s.metrics.latency(aws_pkg.MetricGatewayLatency, s.now().Sub(now), dims)

	if err != nil {
		s.logger.Error("Payment initiation failed",
			zap.String("order_id", orderID), zap.String("gateway", gw.Name()), zap.Error(err))
		s.markInitiationFailed(ctx, order.ID, gw.Name(), txnID)
		se := newError(http.StatusInternalServerError, apperrors.CodeGatewayError, gatewayMessage, err)
		if !s.production {
			se.WithDetails(map[string]string{"gateway": gw.Name(), "error": err.Error()})
		}
		return nil, se
	}

	if res.Declined {
		s.logger.Warn("Payment declined by provider",
			zap.String("order_id", orderID), zap.String("gateway", gw.Name()), zap.String("reason", res.Message))
		s.markInitiationFailed(ctx, order.ID, gw.Name(), txnID)
		return &InitiationResult{
			Gateway:       gw.Name(),
			PaymentStatus: models.PaymentStatusFailed,
			Message:       declinedMessage,
		}, nil
	}

	updated, err := s.orders.Mutate(ctx, order.ID, func(o *models.Order) (bool, error) {
		if o.Status != models.OrderStatusPending || o.PaymentDetails.Status == models.PaymentStatusCompleted {
			return false, errPaymentClosed
		}
		o.PaymentDetails.Gateway = gw.Name()
		o.PaymentDetails.TransactionID = txnID
		o.PaymentDetails.GatewayOrderID = res.GatewayOrderID
		o.PaymentDetails.GatewayPaymentID = ""
		o.PaymentDetails.Status = models.PaymentStatusProcessing
		return true, nil
	})
	if err != nil {
		if errors.Is(err, errPaymentClosed) {
			return nil, preconditionFailed("Order is no longer awaiting payment")
		}
		return nil, internalError("Failed to record payment", err)
	}

	s.events.Publish(ctx, models.NewOrderEvent(models.EventPaymentInitiated, updated, s.now()))
	s.metrics.count(aws_pkg.MetricPaymentInitiated, dims)
	s.logger.Info("Payment initiated",
		zap.String("order_id", orderID),
		zap.String("gateway", gw.Name()),
		zap.String("transaction_id", txnID))

	return &InitiationResult{
		Gateway:       gw.Name(),
		PaymentStatus: models.PaymentStatusProcessing,
		Data:          res.Payload,
	}, nil
}

func checkPayable(o *models.Order) *ServiceError {
	if o.PaymentDetails.Method == models.PaymentMethodCOD {
		return preconditionFailed("Cash on delivery orders are not paid online")
	}
	if o.PaymentDetails.Status == models.PaymentStatusCompleted {
		return preconditionFailed("Order is already paid")
	}
	if o.Status != models.OrderStatusPending {
		return preconditionFailed("Order is not awaiting payment")
	}
	return nil
}

func (s *PaymentService) selectGateway(method, name string) (gateways.PaymentGateway, *ServiceError) {
	if name == "" {
		gw, ok := s.gateways.ForMethod(method)
		if !ok {
			return nil, preconditionFailed(fmt.Sprintf("No payment gateway is available for %s", method))
		}
		return gw, nil
	}
	gw, ok := s.gateways.Get(name)
	if !ok {
		return nil, preconditionFailed(fmt.Sprintf("Payment gateway %s is not available", name))
	}
	if !gw.Supports(method) {
		return nil, preconditionFailed(fmt.Sprintf("Payment gateway %s does not support %s", name, method))
	}
	return gw, nil
}

// markInitiationFailed records a failed attempt; the order stays pending so
// the customer can retry.
func (s *PaymentService) markInitiationFailed(ctx context.Context, orderID uuid.UUID, gateway, txnID string) {
	order, err := s.orders.Mutate(ctx, orderID, func(o *models.Order) (bool, error) {
		if o.PaymentDetails.Status == models.PaymentStatusCompleted {
			return false, nil
		}
		o.PaymentDetails.Gateway = gateway
		o.PaymentDetails.TransactionID = txnID
		o.PaymentDetails.Status = models.PaymentStatusFailed
		return true, nil
	})
	if err != nil {
		s.logger.Error("Failed to record payment failure", zap.String("order_id", orderID.String()), zap.Error(err))
		return
	}
	s.events.Publish(ctx, models.NewOrderEvent(models.EventPaymentFailed, order, s.now()))
	s.metrics.count(aws_pkg.MetricPaymentFailed, map[string]string{"Gateway": gateway})
}

// verification is a provider's verdict on one payment.
type verification struct {
	gateway          string
	paid             bool
	gatewayPaymentID string
}

// applyVerification settles the payment. A completed payment is never
// touched again, so duplicate callbacks are no-ops.
func (s *PaymentService) applyVerification(ctx context.Context, orderID uuid.UUID, v verification) (*models.Order, *ServiceError) {
	var outcome string
	order, err := s.orders.Mutate(ctx, orderID, func(o *models.Order) (bool, error) {
		if o.PaymentDetails.Status == models.PaymentStatusCompleted {
			return false, nil
		}
		now := s.now()
		if v.paid {
			o.PaymentDetails.Status = models.PaymentStatusCompleted
			if v.gatewayPaymentID != "" {
				o.PaymentDetails.GatewayPaymentID = v.gatewayPaymentID
			}
			o.PaymentDetails.PaidAt = &now
			if o.Status == models.OrderStatusPending {
				o.ApplyStatus(models.OrderStatusConfirmed, "", now)
			}
			outcome = models.PaymentStatusCompleted
			return true, nil
		}
		if o.PaymentDetails.Status == models.PaymentStatusFailed {
			return false, nil
		}
		o.PaymentDetails.Status = models.PaymentStatusFailed
		outcome = models.PaymentStatusFailed
		return true, nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, orderNotFound()
		}
		return nil, internalError("Failed to update payment", err)
	}

	dims := map[string]string{"Gateway": v.gateway}
	switch outcome {
	case models.PaymentStatusCompleted:
		s.events.Publish(ctx, models.NewOrderEvent(models.EventPaymentSucceeded, order, s.now()))
		s.metrics.count(aws_pkg.MetricPaymentSucceeded, dims)
		s.logger.Info("Payment completed",
			zap.String("order_id", order.ID.String()), zap.String("gateway", v.gateway))
	case models.PaymentStatusFailed:
		s.events.Publish(ctx, models.NewOrderEvent(models.EventPaymentFailed, order, s.now()))
		s.metrics.count(aws_pkg.MetricPaymentFailed, dims)
		s.logger.Warn("Payment failed",
			zap.String("order_id", order.ID.String()), zap.String("gateway", v.gateway))
	default:
		s.logger.Debug("Payment verification was a no-op", zap.String("order_id", order.ID.String()))
	}
	return order, nil
}

// HandlePhonePeCallback reconciles a PhonePe payment by asking PhonePe for
// its status. Any state other than COMPLETED fails the payment and leaves the
// order pending for a retry.
func (s *PaymentService) HandlePhonePeCallback(ctx context.Context, transactionID string) (*models.PaymentStatusView, *ServiceError) {
	if transactionID == "" {
		return nil, validationError("transactionId is required", []models.FieldError{
			{Field: "transactionId", Message: "transactionId is required"},
		})
	}
	order, err := s.orders.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, orderNotFound()
		}
		return nil, internalError("Failed to fetch order", err)
	}
	s.metrics.count(aws_pkg.MetricCallbacksProcessed, map[string]string{"Gateway": gateways.NamePhonePe})

	if order.PaymentDetails.Status == models.PaymentStatusCompleted {
		return models.NewPaymentStatusView(order), nil
	}

	gw, ok := s.gateways.Get(gateways.NamePhonePe)
	if !ok {
		return nil, preconditionFailed("PhonePe is not configured")
	}
	res, err := gw.Verify(ctx, gateways.VerifyRequest{TransactionID: transactionID})
	if err != nil {
		s.logger.Error("PhonePe status check failed", zap.String("transaction_id", transactionID), zap.Error(err))
		return nil, newError(http.StatusInternalServerError, apperrors.CodeGatewayError, "Failed to verify payment", err)
	}
	updated, serr := s.applyVerification(ctx, order.ID, verification{
		gateway:          gateways.NamePhonePe,
		paid:             res.Paid,
		gatewayPaymentID: res.GatewayPaymentID,
	})
	if serr != nil {
		return nil, serr
	}
	return models.NewPaymentStatusView(updated), nil
}

// VerifyRazorpay checks the client-supplied checkout signature, then the
// payment's capture state.
func (s *PaymentService) VerifyRazorpay(ctx context.Context, userID string, req *models.RazorpayVerifyRequest) (*models.PaymentStatusView, *ServiceError) {
	var missing []models.FieldError
	for _, f := range []struct{ name, val string }{
		{"razorpay_order_id", req.RazorpayOrderID},
		{"razorpay_payment_id", req.RazorpayPaymentID},
		{"razorpay_signature", req.RazorpaySignature},
		{"orderId", req.OrderID},
	} {
		if f.val == "" {
			missing = append(missing, models.FieldError{Field: f.name, Message: f.name + " is required"})
		}
	}
	if len(missing) > 0 {
		return nil, validationError("Missing payment verification fields", missing)
	}

	gw, ok := s.gateways.Get(gateways.NameRazorpay)
	if !ok {
		return nil, preconditionFailed("Razorpay is not configured")
	}
	// The signature is checked before the order is looked up, so a tampered
	// payload is rejected the same way whatever orderId it names.
	if sv, ok := gw.(SignatureVerifier); ok &&
		!sv.VerifySignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		return nil, s.invalidSignature(req.OrderID)
	}

	order, serr := s.ownedOrderForGatewayOrder(ctx, userID, req.OrderID, req.RazorpayOrderID)
	if serr != nil {
		return nil, serr
	}

	res, err := gw.Verify(ctx, gateways.VerifyRequest{
		GatewayOrderID:   req.RazorpayOrderID,
		GatewayPaymentID: req.RazorpayPaymentID,
		Signature:        req.RazorpaySignature,
	})
	if errors.Is(err, gateways.ErrInvalidSignature) {
		return nil, s.invalidSignature(req.OrderID)
	}
	if err != nil {
		return nil, newError(http.StatusInternalServerError, apperrors.CodeGatewayError, "Failed to verify payment", err)
	}

	return s.settleClientVerification(ctx, order.ID, gateways.NameRazorpay, res)
}

func (s *PaymentService) invalidSignature(orderID string) *ServiceError {
	s.logger.Warn("Razorpay signature mismatch", zap.String("order_id", orderID))
	return newError(http.StatusBadRequest, apperrors.CodeInvalidSignature, "Invalid payment signature", nil)
}

// VerifyStripe confirms a PaymentIntent the client reports as finished.
func (s *PaymentService) VerifyStripe(ctx context.Context, userID string, req *models.StripeVerifyRequest) (*models.PaymentStatusView, *ServiceError) {
	order, serr := s.ownedOrderForGatewayOrder(ctx, userID, req.OrderID, req.PaymentIntentID)
	if serr != nil {
		return nil, serr
	}
	gw, ok := s.gateways.Get(gateways.NameStripe)
	if !ok {
		return nil, preconditionFailed("Stripe is not configured")
	}

	res, err := gw.Verify(ctx, gateways.VerifyRequest{GatewayOrderID: req.PaymentIntentID})
	if err != nil {
		return nil, newError(http.StatusInternalServerError, apperrors.CodeGatewayError, "Failed to verify payment", err)
	}
	return s.settleClientVerification(ctx, order.ID, gateways.NameStripe, res)
}

func (s *PaymentService) settleClientVerification(ctx context.Context, orderID uuid.UUID, gateway string, res *gateways.VerifyResult) (*models.PaymentStatusView, *ServiceError) {
	updated, serr := s.applyVerification(ctx, orderID, verification{
		gateway:          gateway,
		paid:             res.Paid,
		gatewayPaymentID: res.GatewayPaymentID,
	})
	if serr != nil {
		return nil, serr
	}
	if updated.PaymentDetails.Status != models.PaymentStatusCompleted {
		return nil, newError(http.StatusBadRequest, apperrors.CodePaymentFailed, "Payment was not completed", nil).
			WithDetails(map[string]string{"state": res.State})
	}
	return models.NewPaymentStatusView(updated), nil
}

func (s *PaymentService) ownedOrderForGatewayOrder(ctx context.Context, userID, orderID, gatewayOrderID string) (*models.Order, *ServiceError) {
	uid, oid, serr := parseIDs(userID, orderID)
	if serr != nil {
		return nil, serr
	}
	order, err := s.orders.FindByIDAndUserID(ctx, oid, uid)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Order not found")
		}
		return nil, internalError("Failed to fetch order", err)
	}
	if order.PaymentDetails.GatewayOrderID != gatewayOrderID {
		return nil, notFound("Order not found")
	}
	return order, nil
}

// HandleStripeWebhook reconciles payment_intent.succeeded and
// payment_intent.payment_failed events. Other events are acknowledged.
func (s *PaymentService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *ServiceError {
	gw, ok := s.gateways.Get(gateways.NameStripe)
	if !ok {
		return preconditionFailed("Stripe is not configured")
	}
	parser, ok := gw.(WebhookParser)
	if !ok {
		return internalError("Stripe gateway cannot parse webhooks", nil)
	}

	ev, err := parser.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn("Rejected Stripe webhook", zap.Error(err))
		if errors.Is(err, gateways.ErrInvalidSignature) {
			return newError(http.StatusBadRequest, apperrors.CodeInvalidSignature, "Invalid webhook signature", nil)
		}
		return validationError("Invalid webhook payload", nil)
	}
	s.metrics.count(aws_pkg.MetricCallbacksProcessed, map[string]string{"Gateway": gateways.NameStripe})
	if !ev.Succeeded && !ev.Failed {
		s.logger.Debug("Ignoring Stripe event", zap.String("event_type", ev.Type))
		return nil
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, ev.PaymentIntentID)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn("No order for Stripe payment intent",
				zap.String("payment_intent", ev.PaymentIntentID), zap.String("event_id", ev.ID))
			return nil
		}
		return internalError("Failed to fetch order", err)
	}

	paymentID := ev.LatestChargeID
	if paymentID == "" {
		paymentID = ev.PaymentIntentID
	}
	_, serr := s.applyVerification(ctx, order.ID, verification{
		gateway:          gateways.NameStripe,
		paid:             ev.Succeeded,
		gatewayPaymentID: paymentID,
	})
	return serr
}

// GetPaymentStatus returns the payment state of an order the caller owns.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, userID, orderID string) (*models.PaymentStatusView, *ServiceError) {
	uid, oid, serr := parseIDs(userID, orderID)
	if serr != nil {
		return nil, serr
	}
	order, err := s.orders.FindByIDAndUserID(ctx, oid, uid)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Order not found")
		}
		return nil, internalError("Failed to fetch order", err)
	}
	return models.NewPaymentStatusView(order), nil
}
