package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "checkout-service/common/errors"
	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubOrders struct {
	placeReq  *models.PlaceOrderRequest
	cancelArg string
	page      int
	limit     int
	err       *services.ServiceError
}

func (s *stubOrders) PlaceOrder(ctx context.Context, userID string, req *models.PlaceOrderRequest) (*models.Order, *services.ServiceError) {
	s.placeReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: uuid.New(), OrderNumber: "ONS123456ABCDEF", TotalAmount: 1070, Status: models.OrderStatusPending}, nil
}

func (s *stubOrders) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, *services.ServiceError) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{OrderNumber: "ONS1"}, nil
}

func (s *stubOrders) ListUserOrders(ctx context.Context, userID string, page, limit int, status string) (*services.OrderList, *services.ServiceError) {
	s.page, s.limit = page, limit
	return &services.OrderList{Orders: []models.Order{}, Pagination: models.NewPagination(page, limit, 0)}, nil
}

func (s *stubOrders) ListAllOrders(ctx context.Context, page, limit int, status string) (*services.OrderList, *services.ServiceError) {
	return &services.OrderList{Orders: []models.Order{}, Pagination: models.NewPagination(page, limit, 0)}, nil
}

func (s *stubOrders) UpdateOrderStatus(ctx context.Context, orderID string, req *models.UpdateOrderStatusRequest) (*models.Order, *services.ServiceError) {
	return &models.Order{Status: req.Status}, nil
}

func (s *stubOrders) RequestCancellation(ctx context.Context, userID, orderID, reason string) (*models.Order, *services.ServiceError) {
	s.cancelArg = reason
	return &models.Order{Status: models.OrderStatusCancellationRequested, CancellationReason: reason}, nil
}

type stubPayments struct {
	gateway    string
	initResult *services.InitiationResult
	webhookErr *services.ServiceError
	signature  string
}

func (s *stubPayments) Initiate(ctx context.Context, userID, orderID, gatewayName string) (*services.InitiationResult, *services.ServiceError) {
	s.gateway = gatewayName
	return s.initResult, nil
}

func (s *stubPayments) GetPaymentStatus(ctx context.Context, userID, orderID string) (*models.PaymentStatusView, *services.ServiceError) {
	return &models.PaymentStatusView{OrderID: orderID, PaymentStatus: models.PaymentStatusPending}, nil
}

func (s *stubPayments) HandlePhonePeCallback(ctx context.Context, transactionID string) (*models.PaymentStatusView, *services.ServiceError) {
	return &models.PaymentStatusView{OrderID: "o-1", OrderNumber: "ONS1", PaymentStatus: models.PaymentStatusCompleted, Status: models.OrderStatusConfirmed}, nil
}

func (s *stubPayments) VerifyRazorpay(ctx context.Context, userID string, req *models.RazorpayVerifyRequest) (*models.PaymentStatusView, *services.ServiceError) {
	return &models.PaymentStatusView{PaymentStatus: models.PaymentStatusCompleted}, nil
}

func (s *stubPayments) VerifyStripe(ctx context.Context, userID string, req *models.StripeVerifyRequest) (*models.PaymentStatusView, *services.ServiceError) {
	return &models.PaymentStatusView{PaymentStatus: models.PaymentStatusCompleted}, nil
}

func (s *stubPayments) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *services.ServiceError {
	s.signature = signature
	return s.webhookErr
}

// withUser stands in for the auth middleware.
func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserContextKey, userID)
		c.Next()
	}
}

func newTestEngine() *gin.Engine {
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware(true))
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPlaceOrder_Created(t *testing.T) {
	stub := &stubOrders{}
	oc := NewOrderController(stub, zap.NewNop())
	r := newTestEngine()
	r.POST("/orders/place", withUser("u-1"), oc.PlaceOrder)

	w := doJSON(r, http.MethodPost, "/orders/place", gin.H{
		"shippingAddress": gin.H{"fullName": "Asha", "state": "Kerala"},
		"paymentMethod":   "UPI",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "UPI", stub.placeReq.PaymentMethod)
	assert.Equal(t, "Kerala", stub.placeReq.ShippingAddress.State)

	var body struct {
		Success bool         `json:"success"`
		Order   models.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1070, body.Order.TotalAmount)
}

func TestPlaceOrder_ServiceErrorRendered(t *testing.T) {
	stub := &stubOrders{err: apperrors.New(http.StatusBadRequest, apperrors.CodeOutOfStock, "Insufficient stock for Tee in size M", nil).
		WithDetails(models.StockShortage{Product: "Tee", Size: "M", Requested: 3, Available: 1})}
	oc := NewOrderController(stub, zap.NewNop())
	r := newTestEngine()
	r.POST("/orders/place", withUser("u-1"), oc.PlaceOrder)

	w := doJSON(r, http.MethodPost, "/orders/place", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env apperrors.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, apperrors.CodeOutOfStock, env.Code)
	assert.Empty(t, env.Stack)
	assert.NotNil(t, env.Errors)
}

func TestPlaceOrder_MalformedBody(t *testing.T) {
	oc := NewOrderController(&stubOrders{}, zap.NewNop())
	r := newTestEngine()
	r.POST("/orders/place", withUser("u-1"), oc.PlaceOrder)

	req := httptest.NewRequest(http.MethodPost, "/orders/place", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeValidation)
}

func TestGetOrders_PassesPaging(t *testing.T) {
	stub := &stubOrders{}
	oc := NewOrderController(stub, zap.NewNop())
	r := newTestEngine()
	r.GET("/orders", withUser("u-1"), oc.GetOrders)

	w := doJSON(r, http.MethodGet, "/orders?page=3&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, stub.page)
	assert.Equal(t, 5, stub.limit)
	assert.Contains(t, w.Body.String(), `"pagination"`)
}

func TestGetOrderByID_NotFound(t *testing.T) {
	oc := NewOrderController(&stubOrders{err: apperrors.NotFound("Order not found")}, zap.NewNop())
	r := newTestEngine()
	r.GET("/orders/:id", withUser("u-1"), oc.GetOrderByID)

	w := doJSON(r, http.MethodGet, "/orders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelOrder_OptionalBody(t *testing.T) {
	stub := &stubOrders{}
	oc := NewOrderController(stub, zap.NewNop())
	r := newTestEngine()
	r.POST("/orders/:id/cancel", withUser("u-1"), oc.CancelOrder)

	w := doJSON(r, http.MethodPost, "/orders/o-1/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, stub.cancelArg)

	w = doJSON(r, http.MethodPost, "/orders/o-1/cancel", gin.H{"reason": "ordered twice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ordered twice", stub.cancelArg)
}

func TestUpdateOrderStatus_RequiresStatus(t *testing.T) {
	oc := NewOrderController(&stubOrders{}, zap.NewNop())
	r := newTestEngine()
	r.PUT("/orders/:id/status", oc.UpdateOrderStatus)

	w := doJSON(r, http.MethodPut, "/orders/o-1/status", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPut, "/orders/o-1/status", gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitiate_GatewayPinnedRoute(t *testing.T) {
	stub := &stubPayments{initResult: &services.InitiationResult{
		Gateway:       "razorpay",
		PaymentStatus: models.PaymentStatusProcessing,
		Data:          map[string]interface{}{"razorpayOrderId": "order_RZP1"},
	}}
	pc := NewPaymentController(stub, zap.NewNop())
	r := newTestEngine()
	r.POST("/payments/razorpay/initiate/:orderId", withUser("u-1"), pc.InitiateWith("razorpay"))

	w := doJSON(r, http.MethodPost, "/payments/razorpay/initiate/o-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "razorpay", stub.gateway)
	assert.Contains(t, w.Body.String(), `"razorpayOrderId":"order_RZP1"`)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestInitiate_DeclineIs200WithFailedStatus(t *testing.T) {
	stub := &stubPayments{initResult: &services.InitiationResult{
		Gateway: "phonepe", PaymentStatus: models.PaymentStatusFailed, Message: "Payment was declined",
	}}
	pc := NewPaymentController(stub, zap.NewNop())
	r := newTestEngine()
	r.POST("/payments/initiate/:orderId", withUser("u-1"), pc.Initiate)

	w := doJSON(r, http.MethodPost, "/payments/initiate/o-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, stub.gateway)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Contains(t, w.Body.String(), `"paymentStatus":"failed"`)
}

func TestPhonePeCallback(t *testing.T) {
	pc := NewPaymentController(&stubPayments{}, zap.NewNop())
	r := newTestEngine()
	r.POST("/payments/phonepe/callback", pc.PhonePeCallback)

	w := doJSON(r, http.MethodPost, "/payments/phonepe/callback", gin.H{"transactionId": "TXN_1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"paymentStatus":"completed"`)
	assert.Contains(t, w.Body.String(), `"orderNumber":"ONS1"`)

	w = doJSON(r, http.MethodPost, "/payments/phonepe/callback", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhook_PassesRawBodyAndSignature(t *testing.T) {
	stub := &stubPayments{}
	pc := NewPaymentController(stub, zap.NewNop())
	r := newTestEngine()
	r.POST("/payments/stripe/webhook", pc.StripeWebhook)

	req := httptest.NewRequest(http.MethodPost, "/payments/stripe/webhook", bytes.NewBufferString(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t=1,v1=abc", stub.signature)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	stub.webhookErr = apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidSignature, "Invalid webhook signature", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments/stripe/webhook", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeInvalidSignature)
}

func TestHealthCheck(t *testing.T) {
	r := newTestEngine()
	r.GET("/health", HealthCheck("checkout-service"))

	w := doJSON(r, http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"ok","service":"checkout-service"}`, w.Body.String())
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	oc := NewOrderController(&stubOrders{}, zap.NewNop())
	r := newTestEngine()
	r.GET("/orders", oc.GetOrders)

	w := doJSON(r, http.MethodGet, "/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
