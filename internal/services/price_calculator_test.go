package services

import (
	"testing"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
)

func TestPriceCalculatorScenarios(t *testing.T) {
	calc := MustPriceCalculator()
	tests := []struct {
		name  string
		lines []domain.PriceLine
		want  domain.PriceBreakdown
	}{
		{
			name:  "free shipping above threshold",
			lines: []domain.PriceLine{{UnitPriceCents: 3_000_000, Quantity: 2}},
			want:  domain.PriceBreakdown{SubtotalCents: 6_000_000, ShippingCents: 0, TaxCents: 1_140_000, TotalCents: 7_140_000},
		},
		{
			name:  "flat shipping below threshold",
			lines: []domain.PriceLine{{UnitPriceCents: 1_000_000, Quantity: 3}},
			want:  domain.PriceBreakdown{SubtotalCents: 3_000_000, ShippingCents: 1_000_000, TaxCents: 570_000, TotalCents: 4_570_000},
		},
		{
			name:  "empty list still charges shipping",
			lines: nil,
			want:  domain.PriceBreakdown{ShippingCents: 1_000_000, TotalCents: 1_000_000},
		},
		{
			name:  "threshold is inclusive",
			lines: []domain.PriceLine{{UnitPriceCents: 5_000_000, Quantity: 1}},
			want:  domain.PriceBreakdown{SubtotalCents: 5_000_000, TaxCents: 950_000, TotalCents: 5_950_000},
		},
		{
			name:  "tax is floored",
			lines: []domain.PriceLine{{UnitPriceCents: 99, Quantity: 1}},
			want:  domain.PriceBreakdown{SubtotalCents: 99, ShippingCents: 1_000_000, TaxCents: 18, TotalCents: 1_000_117},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := calc.Calculate(tc.lines); got != tc.want {
				t.Fatalf("Calculate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestValidateAmountTolerance(t *testing.T) {
	calc := MustPriceCalculator()
	lines := []domain.PriceLine{{UnitPriceCents: 3_000_000, Quantity: 2}}

	cases := []struct {
		claimed   int64
		tolerance int64
		valid     bool
		diff      int64
	}{
		{claimed: 7_140_000, tolerance: 100, valid: true, diff: 0},
		{claimed: 7_140_100, tolerance: 100, valid: true, diff: -100},
		{claimed: 7_139_900, tolerance: 100, valid: true, diff: 100},
		{claimed: 7_140_101, tolerance: 100, valid: false, diff: -101},
		{claimed: 7_139_899, tolerance: -1, valid: false, diff: 101},
		{claimed: 7_140_050, tolerance: 0, valid: false, diff: -50},
	}
	for _, tc := range cases {
		got := calc.ValidateAmount(lines, tc.claimed, tc.tolerance)
		if got.Valid != tc.valid || got.Difference != tc.diff || got.Calculated != 7_140_000 || got.Claimed != tc.claimed {
			t.Fatalf("ValidateAmount(%d, %d) = %+v", tc.claimed, tc.tolerance, got)
		}
	}
}

func TestNewPriceCalculatorConfig(t *testing.T) {
	calc, err := NewPriceCalculator(PriceCalculatorConfig{FreeShippingThresholdCents: 100, ShippingCostCents: 50, TaxRate: "0.10"})
	if err != nil {
		t.Fatalf("NewPriceCalculator: %v", err)
	}
	got := calc.Calculate([]domain.PriceLine{{UnitPriceCents: 99, Quantity: 1}})
	want := domain.PriceBreakdown{SubtotalCents: 99, ShippingCents: 50, TaxCents: 9, TotalCents: 158}
	if got != want {
		t.Fatalf("Calculate() = %+v, want %+v", got, want)
	}

	if _, err := NewPriceCalculator(PriceCalculatorConfig{TaxRate: "abc"}); err == nil {
		t.Fatalf("expected invalid tax rate error")
	}
	if _, err := NewPriceCalculator(PriceCalculatorConfig{TaxRate: "-0.1"}); err == nil {
		t.Fatalf("expected negative tax rate error")
	}
}
