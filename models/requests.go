package models

import "time"

type PlaceOrderRequest struct {
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
}

type UpdateOrderStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"trackingNumber"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type PhonePeCallbackRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
}

type RazorpayVerifyRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	OrderID           string `json:"orderId"`
}

type StripeVerifyRequest struct {
	OrderID         string `json:"orderId" binding:"required"`
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
}

// FieldError is one entry of a validation error's details.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// StockShortage is the detail attached to an OUT_OF_STOCK error.
type StockShortage struct {
	Product   string `json:"product"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalOrders int64 `json:"totalOrders"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// NewPagination derives page flags from the total row count.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalOrders: total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// PaymentStatusView is what status and reconciliation endpoints return.
type PaymentStatusView struct {
	OrderID       string     `json:"orderId"`
	OrderNumber   string     `json:"orderNumber"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"paymentStatus"`
	PaymentMethod string     `json:"paymentMethod"`
	Gateway       string     `json:"gateway,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

func NewPaymentStatusView(o *Order) *PaymentStatusView {
	return &PaymentStatusView{
		OrderID:       o.ID.String(),
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentDetails.Status,
		PaymentMethod: o.PaymentDetails.Method,
		Gateway:       o.PaymentDetails.Gateway,
		TransactionID: o.PaymentDetails.TransactionID,
		PaidAt:        o.PaymentDetails.PaidAt,
	}
}
