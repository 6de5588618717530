package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "checkout-service/common/errors"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

var (
	errNotOrderOwner = errors.New("order belongs to another user")
	errNotCancelable = errors.New("order can no longer be cancelled")
)

// OrderList is one page of orders.
type OrderList struct {
	Orders     []models.Order    `json:"orders"`
	Pagination models.Pagination `json:"pagination"`
}

// OrderServiceOptions carries the tunables taken from config.Config.
type OrderServiceOptions struct {
	OrderNumberMaxAttempts    int
	DefaultCancellationReason string
}

type OrderService struct {
	orders   repository.OrderRepository
	products repository.ProductRepository
	carts    repository.CartRepository
	pricing  *Pricing
	events   EventPublisher
	metrics  businessMetrics
	validate *validator.Validate
	logger   *zap.Logger
	opts     OrderServiceOptions
	now      func() time.Time
}

func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	carts repository.CartRepository,
	pricing *Pricing,
	events EventPublisher,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
	opts OrderServiceOptions,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	if opts.OrderNumberMaxAttempts < 1 {
		opts.OrderNumberMaxAttempts = 3
	}
	if opts.DefaultCancellationReason == "" {
		opts.DefaultCancellationReason = "Cancelled by customer"
	}
	return &OrderService{
		orders:   orders,
		products: products,
		carts:    carts,
		pricing:  pricing,
		events:   events,
		metrics:  businessMetrics{recorder: metrics, logger: logger},
		validate: models.NewValidator(),
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// PlaceOrder turns the caller's cart into a pending order. The order row and
// the stock decrement commit together or not at all.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, req *models.PlaceOrderRequest) (*models.Order, *ServiceError) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, apperrors.Unauthorized("Invalid user id")
	}

	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodPhonePe
	}
	if err := s.validate.Struct(req.ShippingAddress); err != nil {
		return nil, validationError("Invalid shipping address", fieldErrors(err))
	}
	if !models.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, validationError("Invalid payment method", []models.FieldError{
			{Field: "paymentMethod", Message: fmt.Sprintf("%q is not a supported payment method", req.PaymentMethod)},
		})
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, internalError("Failed to load cart", err)
	}
	if cart.IsEmpty() {
		s.metrics.count(aws_pkg.MetricOrdersRejected, map[string]string{"Reason": apperrors.CodeEmptyCart})
		return nil, newError(http.StatusBadRequest, apperrors.CodeEmptyCart, "Cart is empty", nil)
	}

	items, lines, serr := s.buildItems(ctx, cart)
	if serr != nil {
		if serr.Code == apperrors.CodeOutOfStock {
			s.metrics.count(aws_pkg.MetricOrdersRejected, map[string]string{"Reason": apperrors.CodeOutOfStock})
		}
		return nil, serr
	}

	subtotal := 0
	for _, it := range items {
		subtotal += it.ItemSubtotal
	}
	quote := s.pricing.Quote(subtotal)

	var order *models.Order
	for attempt := 1; ; attempt++ {
		order = &models.Order{
			OrderNumber:     models.NewOrderNumber(s.now()),
			UserID:          uid,
			Items:           append([]models.OrderItem(nil), items...),
			ItemsSubtotal:   quote.ItemsSubtotal,
			ShippingCharges: quote.ShippingCharges,
			TaxAmount:       quote.TaxAmount,
			DiscountAmount:  quote.DiscountAmount,
			TotalAmount:     quote.TotalAmount,
			ShippingAddress: req.ShippingAddress,
			PaymentDetails: models.PaymentDetails{
				Method: req.PaymentMethod,
				Status: models.PaymentStatusPending,
			},
			Status: models.OrderStatusPending,
		}

		err = s.orders.CreateWithStock(ctx, order, lines)
		if err == nil {
			break
		}

		var stockErr *repository.StockError
		switch {
		case errors.As(err, &stockErr):
			s.metrics.count(aws_pkg.MetricOrdersRejected, map[string]string{"Reason": apperrors.CodeOutOfStock})
			return nil, s.stockShortage(ctx, stockErr)
		case errors.Is(err, repository.ErrDuplicateOrderNumber) && attempt < s.opts.OrderNumberMaxAttempts:
			s.logger.Warn("Order number collision, retrying",
				zap.String("order_number", order.OrderNumber), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, repository.ErrDuplicateOrderNumber):
			return nil, internalError("Failed to generate a unique order number", err)
		default:
			s.logger.Error("Failed to create order", zap.String("user_id", userID), zap.Error(err))
			return nil, internalError("Failed to create order", err)
		}
	}

	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger.Warn("Failed to clear cart after order",
			zap.String("user_id", userID), zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	s.events.Publish(ctx, models.NewOrderEvent(models.EventOrderPlaced, order, s.now()))
	dims := map[string]string{"PaymentMethod": order.PaymentDetails.Method}
	s.metrics.count(aws_pkg.MetricOrdersPlaced, dims)
	s.metrics.value(aws_pkg.MetricOrderValue, float64(order.TotalAmount), dims)

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID),
		zap.Int("total_amount", order.TotalAmount))
	return order, nil
}

// buildItems snapshots every cart line against the current catalog and
// checks stock per (product, size) bucket.
func (s *OrderService) buildItems(ctx context.Context, cart *models.Cart) ([]models.OrderItem, []repository.StockLine, *ServiceError) {
	type bucket struct {
		id   uuid.UUID
		size string
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	seenIDs := make(map[uuid.UUID]bool)
	requested := make(map[bucket]int)
	var buckets []bucket
	for _, ci := range cart.Items {
		id, err := uuid.Parse(ci.ProductID)
		if err != nil {
			return nil, nil, notFound(fmt.Sprintf("Product not found: %s", ci.ProductID))
		}
		if !models.IsValidSize(ci.Size) {
			return nil, nil, validationError("Invalid cart item size", []models.FieldError{
				{Field: "size", Message: fmt.Sprintf("%q is not a valid size for product %s", ci.Size, ci.ProductID)},
			})
		}
		if ci.Quantity < 1 {
			return nil, nil, validationError("Invalid cart item quantity", []models.FieldError{
				{Field: "quantity", Message: fmt.Sprintf("quantity for product %s must be at least 1", ci.ProductID)},
			})
		}
		if !seenIDs[id] {
			seenIDs[id] = true
			ids = append(ids, id)
		}
		b := bucket{id: id, size: ci.Size}
		if _, seen := requested[b]; !seen {
			buckets = append(buckets, b)
		}
		requested[b] += ci.Quantity
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, internalError("Failed to load products", err)
	}

	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		id := uuid.MustParse(ci.ProductID)
		p, ok := products[id]
		if !ok {
			return nil, nil, notFound(fmt.Sprintf("Product not found: %s", ci.ProductID))
		}
		want := requested[bucket{id: id, size: ci.Size}]
		if stock, ok := p.SizeStock(ci.Size); !ok || stock < want {
			return nil, nil, outOfStock(p.Name, ci.Size, want, stock)
		}
		items = append(items, models.OrderItem{
			ProductID:         p.ID,
			ProductName:       p.Name,
			MainImageURL:      p.MainImageURL,
			MainImagePublicID: p.MainImagePublicID,
			ClothingType:      p.ClothingType,
			Quantity:          ci.Quantity,
			Size:              ci.Size,
			Color:             p.PrimaryColor(),
			PriceAtOrder:      p.Price,
			ItemSubtotal:      p.Price * ci.Quantity,
		})
	}

	lines := make([]repository.StockLine, 0, len(buckets))
	for _, b := range buckets {
		lines = append(lines, repository.StockLine{ProductID: b.id, Size: b.size, Quantity: requested[b]})
	}
	return items, lines, nil
}

// stockShortage reports a bucket that ran out between the check and the
// decrement, re-reading the current stock for the error details.
func (s *OrderService) stockShortage(ctx context.Context, se *repository.StockError) *ServiceError {
	name, available := se.ProductID.String(), 0
	products, err := s.products.FindByIDs(ctx, []uuid.UUID{se.ProductID})
	if err == nil {
		if p, ok := products[se.ProductID]; ok {
			name = p.Name
			available, _ = p.SizeStock(se.Size)
		}
	}
	return outOfStock(name, se.Size, se.Requested, available)
}

func outOfStock(name, size string, requested, available int) *ServiceError {
	return newError(http.StatusBadRequest, apperrors.CodeOutOfStock,
		fmt.Sprintf("Insufficient stock for %s in size %s", name, size), nil).
		WithDetails(models.StockShortage{Product: name, Size: size, Requested: requested, Available: available})
}

// GetOrder returns the order only when it belongs to userID.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, *ServiceError) {
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
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string, page, limit int, status string) (*OrderList, *ServiceError) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, apperrors.Unauthorized("Invalid user id")
	}
	page, limit, serr := normalizeListArgs(page, limit, status)
	if serr != nil {
		return nil, serr
	}
	orders, total, err := s.orders.FindByUserID(ctx, uid, status, page, limit)
	if err != nil {
		return nil, internalError("Failed to fetch orders", err)
	}
	return &OrderList{Orders: orders, Pagination: models.NewPagination(page, limit, total)}, nil
}

// ListAllOrders is the admin view across users.
func (s *OrderService) ListAllOrders(ctx context.Context, page, limit int, status string) (*OrderList, *ServiceError) {
	page, limit, serr := normalizeListArgs(page, limit, status)
	if serr != nil {
		return nil, serr
	}
	orders, total, err := s.orders.FindAll(ctx, status, page, limit)
	if err != nil {
		return nil, internalError("Failed to fetch orders", err)
	}
	return &OrderList{Orders: orders, Pagination: models.NewPagination(page, limit, total)}, nil
}

func normalizeListArgs(page, limit int, status string) (int, int, *ServiceError) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if status != "" && status != "all" && !models.IsValidOrderStatus(status) {
		return 0, 0, validationError("Invalid status filter", []models.FieldError{
			{Field: "status", Message: fmt.Sprintf("%q is not a valid order status", status)},
		})
	}
	return page, limit, nil
}

// UpdateOrderStatus is the admin transition. Any valid status may be set;
// the matching lifecycle timestamp is stamped.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, req *models.UpdateOrderStatusRequest) (*models.Order, *ServiceError) {
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return nil, notFound("Order not found")
	}
	if !models.IsValidOrderStatus(req.Status) {
		return nil, validationError("Invalid status", []models.FieldError{
			{Field: "status", Message: fmt.Sprintf("%q is not a valid order status", req.Status)},
		})
	}

	order, err := s.orders.Mutate(ctx, oid, func(o *models.Order) (bool, error) {
		o.ApplyStatus(req.Status, req.TrackingNumber, s.now())
		return true, nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Order not found")
		}
		return nil, internalError("Failed to update order status", err)
	}

	s.events.Publish(ctx, models.NewOrderEvent(models.EventOrderStatusChanged, order, s.now()))
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID), zap.String("status", req.Status))
	return order, nil
}

// RequestCancellation moves an order the caller owns to cancellation_requested.
func (s *OrderService) RequestCancellation(ctx context.Context, userID, orderID, reason string) (*models.Order, *ServiceError) {
	uid, oid, serr := parseIDs(userID, orderID)
	if serr != nil {
		return nil, serr
	}
	if reason == "" {
		reason = s.opts.DefaultCancellationReason
	}

	order, err := s.orders.Mutate(ctx, oid, func(o *models.Order) (bool, error) {
		if o.UserID != uid {
			return false, errNotOrderOwner
		}
		if !o.CanRequestCancellation() {
			return false, errNotCancelable
		}
		o.Status = models.OrderStatusCancellationRequested
		o.CancellationReason = reason
		return true, nil
	})
	switch {
	case err == nil:
	case repository.IsNotFound(err), errors.Is(err, errNotOrderOwner):
		return nil, notFound("Order not found")
	case errors.Is(err, errNotCancelable):
		return nil, validationError("Order cannot be cancelled in its current state", nil)
	default:
		return nil, internalError("Failed to cancel order", err)
	}

	event := models.NewOrderEvent(models.EventOrderCancellationRequested, order, s.now())
	event.Reason = reason
	s.events.Publish(ctx, event)
	return order, nil
}

func parseIDs(userID, orderID string) (uuid.UUID, uuid.UUID, *ServiceError) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, apperrors.Unauthorized("Invalid user id")
	}
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return uuid.Nil, uuid.Nil, notFound("Order not found")
	}
	return uid, oid, nil
}
