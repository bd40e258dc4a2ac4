package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
)

const (
	DefaultFreeShippingThresholdCents int64 = 5_000_000
	DefaultShippingCostCents          int64 = 1_000_000
	DefaultTaxRate                          = "0.19"
	// DefaultAmountTolerance is the accepted gap, in cents, between claimed and computed totals.
	DefaultAmountTolerance int64 = 100
)

// PriceCalculatorConfig overrides pricing constants. Zero values select the defaults.
type PriceCalculatorConfig struct {
	FreeShippingThresholdCents int64
	ShippingCostCents          int64
	TaxRate                    string
}

// PriceCalculator derives order totals from catalog prices.
type PriceCalculator struct {
	freeShippingThreshold int64
	shippingCost          int64
	taxRate               decimal.Decimal
}

// AmountValidation reports how a client-claimed total compares with the computed one.
// Difference is calculated minus claimed.
type AmountValidation struct {
	Valid      bool
	Calculated int64
	Claimed    int64
	Difference int64
	Breakdown  domain.PriceBreakdown
}

// NewPriceCalculator validates the configuration and applies defaults.
func NewPriceCalculator(cfg PriceCalculatorConfig) (*PriceCalculator, error) {
	threshold := cfg.FreeShippingThresholdCents
	if threshold == 0 {
		threshold = DefaultFreeShippingThresholdCents
	}
	shipping := cfg.ShippingCostCents
	if shipping == 0 {
		shipping = DefaultShippingCostCents
	}
	if threshold < 0 || shipping < 0 {
		return nil, errors.New("price calculator: threshold and shipping must not be negative")
	}
	rateText := strings.TrimSpace(cfg.TaxRate)
	if rateText == "" {
		rateText = DefaultTaxRate
	}
	rate, err := decimal.NewFromString(rateText)
	if err != nil {
		return nil, fmt.Errorf("price calculator: invalid tax rate %q: %w", rateText, err)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("price calculator: tax rate %s must not be negative", rate)
	}
	return &PriceCalculator{freeShippingThreshold: threshold, shippingCost: shipping, taxRate: rate}, nil
}

// MustPriceCalculator is NewPriceCalculator with the defaults.
func MustPriceCalculator() *PriceCalculator {
	calc, err := NewPriceCalculator(PriceCalculatorConfig{})
	if err != nil {
		panic(err)
	}
	return calc
}

// Calculate prices the lines. An empty list still carries the flat shipping cost.
func (c *PriceCalculator) Calculate(lines []domain.PriceLine) domain.PriceBreakdown {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPriceCents * line.Quantity
	}
	shipping := c.shippingCost
	if subtotal >= c.freeShippingThreshold {
		shipping = 0
	}
	tax := decimal.NewFromInt(subtotal).Mul(c.taxRate).Floor().IntPart()
	return domain.PriceBreakdown{
		SubtotalCents: subtotal,
		ShippingCents: shipping,
		TaxCents:      tax,
		TotalCents:    subtotal + shipping + tax,
	}
}

// ValidateAmount compares the claimed total against Calculate. A negative tolerance selects
// DefaultAmountTolerance.
func (c *PriceCalculator) ValidateAmount(lines []domain.PriceLine, claimedCents, toleranceCents int64) AmountValidation {
	if toleranceCents < 0 {
		toleranceCents = DefaultAmountTolerance
	}
	breakdown := c.Calculate(lines)
	diff := breakdown.TotalCents - claimedCents
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	return AmountValidation{
		Valid:      abs <= toleranceCents,
		Calculated: breakdown.TotalCents,
		Claimed:    claimedCents,
		Difference: diff,
		Breakdown:  breakdown,
	}
}
