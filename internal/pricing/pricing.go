// Package pricing computes checkout totals from a cart snapshot.
// It is pure: no I/O, no clock, fully determined by its inputs and policy.
package pricing

import (
	"github.com/dukerupert/vellum/internal/domain"
)

// Policy holds the literal pricing rules. All amounts are integer paise.
type Policy struct {
	// FreeShippingThresholdPaise waives the shipping fee when the item
	// subtotal reaches it.
	FreeShippingThresholdPaise int64

	// ShippingFeePaise is the flat fee charged below the threshold.
	ShippingFeePaise int64

	// BulkDiscountPaise is subtracted once when total quantity reaches
	// BulkQuantity.
	BulkDiscountPaise int64
	BulkQuantity      int32

	// AddOnPricesPaise maps add-on names to their fixed prices.
	AddOnPricesPaise map[string]int64
}

// DefaultPolicy returns the store's standing pricing rules:
// free shipping from 499.00, flat 49.00 fee below, 100.00 off for 10+ items.
func DefaultPolicy() Policy {
	return Policy{
		FreeShippingThresholdPaise: 49900,
		ShippingFeePaise:           4900,
		BulkDiscountPaise:          10000,
		BulkQuantity:               10,
		AddOnPricesPaise:           domain.AddOnPricesPaise,
	}
}

// Result is the derived, immutable pricing breakdown for a cart.
type Result struct {
	SubtotalPaise int64
	AddOnPaise    int64
	ShippingPaise int64
	DiscountPaise int64
	TotalPaise    int64
	ItemCount     int32
}

// Compute derives the pricing breakdown for the given cart lines and selected
// add-ons. It fails with EINVALID if any quantity is below 1 or any price is
// negative; the cart API should never persist such a line, so hitting this
// indicates corrupted input.
func Compute(items []domain.CartItem, addons []string, policy Policy) (Result, error) {
	var res Result

	for _, item := range items {
		if item.Quantity < 1 {
			return Result{}, domain.Errorf(domain.EINVALID, "pricing.compute",
				"invalid quantity %d for %s", item.Quantity, item.Key())
		}
		if item.UnitPricePaise < 0 {
			return Result{}, domain.Errorf(domain.EINVALID, "pricing.compute",
				"negative price for %s", item.Key())
		}
		res.SubtotalPaise += item.UnitPricePaise * int64(item.Quantity)
		res.ItemCount += item.Quantity
	}

	for _, name := range addons {
		price, ok := policy.AddOnPricesPaise[name]
		if !ok {
			return Result{}, domain.Errorf(domain.EINVALID, "pricing.compute",
				"unknown add-on %q", name)
		}
		res.AddOnPaise += price
	}

	if res.SubtotalPaise < policy.FreeShippingThresholdPaise {
		res.ShippingPaise = policy.ShippingFeePaise
	}
	if res.ItemCount >= policy.BulkQuantity {
		res.DiscountPaise = policy.BulkDiscountPaise
	}

	res.TotalPaise = res.SubtotalPaise + res.ShippingPaise + res.AddOnPaise - res.DiscountPaise
	if res.TotalPaise < 0 {
		res.TotalPaise = 0
	}

	return res, nil
}
