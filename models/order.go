package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order statuses.
const (
	OrderStatusPending               = "pending"
	OrderStatusConfirmed             = "confirmed"
	OrderStatusProcessing            = "processing"
	OrderStatusShipped               = "shipped"
	OrderStatusOutForDelivery        = "out_for_delivery"
	OrderStatusDelivered             = "delivered"
	OrderStatusCancelled             = "cancelled"
	OrderStatusCancellationRequested = "cancellation_requested"
	OrderStatusReturned              = "returned"
	OrderStatusRefunded              = "refunded"
)

var orderStatuses = map[string]bool{
	OrderStatusPending:               true,
	OrderStatusConfirmed:             true,
	OrderStatusProcessing:            true,
	OrderStatusShipped:               true,
	OrderStatusOutForDelivery:        true,
	OrderStatusDelivered:             true,
	OrderStatusCancelled:             true,
	OrderStatusCancellationRequested: true,
	OrderStatusReturned:              true,
	OrderStatusRefunded:              true,
}

// IsValidOrderStatus reports whether s is one of the order status values.
func IsValidOrderStatus(s string) bool {
	return orderStatuses[s]
}

// Payment statuses.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// Payment methods accepted at checkout.
const (
	PaymentMethodPhonePe    = "PhonePe"
	PaymentMethodUPI        = "UPI"
	PaymentMethodCard       = "Card"
	PaymentMethodNetBanking = "Net Banking"
	PaymentMethodCOD        = "COD"
	PaymentMethodWallet     = "Wallet"
)

var paymentMethods = map[string]bool{
	PaymentMethodPhonePe:    true,
	PaymentMethodUPI:        true,
	PaymentMethodCard:       true,
	PaymentMethodNetBanking: true,
	PaymentMethodCOD:        true,
	PaymentMethodWallet:     true,
}

func IsValidPaymentMethod(m string) bool {
	return paymentMethods[m]
}

// ShippingAddress is embedded in orders with the "shipping_" column prefix.
type ShippingAddress struct {
	FullName string `json:"fullName" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address1 string `json:"address1" validate:"required"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state" validate:"required,indian_state"`
	Pincode  string `json:"pincode" validate:"required,pincode"`
}

// PaymentDetails is embedded in orders with the "payment_" column prefix.
// Only the payment initiator and reconciler write it.
type PaymentDetails struct {
	Method           string     `gorm:"type:varchar(20);not null" json:"method"`
	Status           string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Gateway          string     `gorm:"type:varchar(20)" json:"gateway,omitempty"`
	TransactionID    string     `gorm:"type:varchar(64);index" json:"transactionId,omitempty"`
	GatewayOrderID   string     `gorm:"type:varchar(128);index" json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string     `gorm:"type:varchar(128)" json:"gatewayPaymentId,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	RefundedAt       *time.Time `json:"refundedAt,omitempty"`
	RefundAmount     int        `json:"refundAmount,omitempty"`
}

type Order struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber        string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"orderNumber"`
	UserID             uuid.UUID       `gorm:"type:uuid;not null;index" json:"userId"`
	Items              []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	ItemsSubtotal      int             `gorm:"not null" json:"itemsSubtotal"`
	ShippingCharges    int             `gorm:"not null" json:"shippingCharges"`
	TaxAmount          int             `gorm:"not null;default:0" json:"taxAmount"`
	DiscountAmount     int             `gorm:"not null;default:0" json:"discountAmount"`
	TotalAmount        int             `gorm:"not null" json:"totalAmount"`
	ShippingAddress    ShippingAddress `gorm:"embedded;embeddedPrefix:shipping_" json:"shippingAddress"`
	PaymentDetails     PaymentDetails  `gorm:"embedded;embeddedPrefix:payment_" json:"paymentDetails"`
	Status             string          `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	TrackingNumber     string          `gorm:"type:varchar(64)" json:"trackingNumber,omitempty"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	ConfirmedAt        *time.Time      `json:"confirmedAt,omitempty"`
	ShippedAt          *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt        *time.Time      `json:"deliveredAt,omitempty"`
	ActualDeliveryDate *time.Time      `json:"actualDeliveryDate,omitempty"`
	CancelledAt        *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// OrderItem snapshots what the product looked like at purchase time so later
// catalog edits don't change past orders.
type OrderItem struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID           uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	ProductID         uuid.UUID `gorm:"type:uuid;not null" json:"productId"`
	ProductName       string    `gorm:"not null" json:"productName"`
	MainImageURL      string    `json:"mainImageUrl,omitempty"`
	MainImagePublicID string    `json:"mainImagePublicId,omitempty"`
	ClothingType      string    `json:"clothingType,omitempty"`
	Quantity          int       `gorm:"not null;check:quantity >= 1" json:"quantity"`
	Size              string    `gorm:"type:varchar(16);not null" json:"size"`
	Color             string    `json:"color,omitempty"`
	PriceAtOrder      int       `gorm:"not null" json:"priceAtOrder"`
	ItemSubtotal      int       `gorm:"not null" json:"itemSubtotal"`
}

// Recalculate derives the monetary totals. Item subtotals are recomputed only
// when items are loaded; otherwise the stored subtotal is trusted.
func (o *Order) Recalculate() {
	if len(o.Items) > 0 {
		subtotal := 0
		for i := range o.Items {
			o.Items[i].ItemSubtotal = o.Items[i].PriceAtOrder * o.Items[i].Quantity
			subtotal += o.Items[i].ItemSubtotal
		}
		o.ItemsSubtotal = subtotal
	}
	o.TotalAmount = o.ItemsSubtotal + o.ShippingCharges + o.TaxAmount - o.DiscountAmount
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.OrderNumber == "" {
		o.OrderNumber = NewOrderNumber(time.Now())
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	return nil
}

// BeforeSave keeps totalAmount consistent on every write.
func (o *Order) BeforeSave(tx *gorm.DB) error {
	o.Recalculate()
	return nil
}

// CanRequestCancellation is true while the order has not left the warehouse.
func (o *Order) CanRequestCancellation() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing:
		return true
	}
	return false
}

// ApplyStatus moves the order to status and stamps the matching lifecycle time.
// Transitions are not restricted here; callers validate the status value.
func (o *Order) ApplyStatus(status, trackingNumber string, now time.Time) {
	o.Status = status
	switch status {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &now
	case OrderStatusShipped:
		o.ShippedAt = &now
		if trackingNumber != "" {
			o.TrackingNumber = trackingNumber
		}
	case OrderStatusDelivered:
		o.DeliveredAt = &now
		o.ActualDeliveryDate = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	}
}
