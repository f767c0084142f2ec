package order

// PricingPolicy controls the shipping fee computation. All amounts are in
// minor currency units.
type PricingPolicy struct {
	// FlatShippingFee is charged when the item subtotal is below
	// FreeShippingThreshold.
	FlatShippingFee int64
	// FreeShippingThreshold is the subtotal at which shipping becomes free.
	FreeShippingThreshold int64
}

// DefaultPricingPolicy is the standard store policy: a flat 50 fee waived at
// a 5000 subtotal.
var DefaultPricingPolicy = PricingPolicy{
	FlatShippingFee:       50,
	FreeShippingThreshold: 5000,
}

// Quote is the computed price breakdown for an order.
type Quote struct {
	ItemsPrice    int64
	ShippingPrice int64
	TotalPrice    int64
}

// Price computes the quote for quantity units at unitPrice under the given
// policy. It is pure and deterministic; it fails only on non-positive input.
func Price(policy PricingPolicy, unitPrice int64, quantity int) (Quote, error) {
	if unitPrice <= 0 || quantity <= 0 {
		return Quote{}, ErrInvalidAmount
	}

	items := unitPrice * int64(quantity)

	var shipping int64
	if items < policy.FreeShippingThreshold {
		shipping = policy.FlatShippingFee
	}

	return Quote{
		ItemsPrice:    items,
		ShippingPrice: shipping,
		TotalPrice:    items + shipping,
	}, nil
}
