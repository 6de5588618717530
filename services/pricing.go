package services

import (
	"fmt"

	"checkout-service/config"

	"github.com/shopspring/decimal"
)

// Quote is the monetary breakdown of an order, in whole rupees.
type Quote struct {
	ItemsSubtotal   int
	ShippingCharges int
	TaxAmount       int
	DiscountAmount  int
	TotalAmount     int
}

// Pricing applies the configured shipping rule and tax rate.
type Pricing struct {
	freeShippingThreshold int
	flatShippingFee       int
	taxRate               decimal.Decimal
}

func NewPricing(cfg config.PricingConfig) (*Pricing, error) {
	rate, err := decimal.NewFromString(cfg.TaxRatePercent)
	if err != nil {
		return nil, fmt.Errorf("invalid tax rate %q: %w", cfg.TaxRatePercent, err)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("tax rate must not be negative")
	}
	return &Pricing{
		freeShippingThreshold: cfg.FreeShippingThreshold,
		flatShippingFee:       cfg.FlatShippingFee,
		taxRate:               rate,
	}, nil
}

// Quote prices a subtotal. Tax is rounded half up to the rupee.
func (p *Pricing) Quote(itemsSubtotal int) Quote {
	shipping := p.flatShippingFee
	if itemsSubtotal >= p.freeShippingThreshold {
		shipping = 0
	}

	// decimal.Round rounds half away from zero, which is half up for non-negative amounts
	tax := decimal.NewFromInt(int64(itemsSubtotal)).
		Mul(p.taxRate).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	q := Quote{
		ItemsSubtotal:   itemsSubtotal,
		ShippingCharges: shipping,
		TaxAmount:       int(tax),
	}
	q.TotalAmount = q.ItemsSubtotal + q.ShippingCharges + q.TaxAmount - q.DiscountAmount
	return q
}
