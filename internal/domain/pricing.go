package domain

// PriceBreakdown captures the monetary results of pricing a set of line items, in minor units.
type PriceBreakdown struct {
	SubtotalCents int64
	ShippingCents int64
	TaxCents      int64
	TotalCents    int64
}

// PriceLine is the minimal input the calculator needs for one line item.
type PriceLine struct {
	UnitPriceCents int64
	Quantity       int64
}

// PriceLinesFromItems projects order items onto calculator inputs.
func PriceLinesFromItems(items []OrderItem) []PriceLine {
	lines := make([]PriceLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, PriceLine{UnitPriceCents: item.UnitPriceCents, Quantity: item.Quantity})
	}
	return lines
}
