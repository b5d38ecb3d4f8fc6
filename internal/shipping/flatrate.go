package shipping

import (
	"context"
)

// FlatRateProvider returns predefined flat-rate shipping options.
// Used as the quoting fallback when the carrier API is unreachable so
// checkout can always show the customer a price.
type FlatRateProvider struct {
	rates []FlatRate
}

// FlatRate defines a single flat-rate shipping option.
type FlatRate struct {
	CourierCode   string
	CourierName   string
	CostPaise     int64
	EstimatedDays int32
}

// DefaultFlatRates is the standing fallback pair: a standard and an express
// option at fixed prices.
func DefaultFlatRates() []FlatRate {
	return []FlatRate{
		{CourierCode: "standard", CourierName: "Standard Delivery", CostPaise: 4900, EstimatedDays: 7},
		{CourierCode: "express", CourierName: "Express Delivery", CostPaise: 9900, EstimatedDays: 3},
	}
}

// NewFlatRateProvider creates a new flat-rate shipping provider.
func NewFlatRateProvider(rates []FlatRate) Provider {
	return &FlatRateProvider{rates: rates}
}

// GetRates converts flat rates to Rate objects.
func (p *FlatRateProvider) GetRates(ctx context.Context, params RateParams) ([]Rate, error) {
	if params.DeliveryPincode == "" {
		return nil, ErrDestinationRequired
	}

	result := make([]Rate, len(p.rates))
	for i, fr := range p.rates {
		result[i] = Rate{
			CourierCode:   fr.CourierCode,
			CourierName:   fr.CourierName,
			CostPaise:     fr.CostPaise,
			EstimatedDays: fr.EstimatedDays,
		}
	}
	return result, nil
}

// CreateOrder is not supported for flat-rate provider.
func (p *FlatRateProvider) CreateOrder(ctx context.Context, params OrderParams) (*CarrierOrder, error) {
	return nil, ErrNotImplemented
}

// TrackOrder is not supported for flat-rate provider.
func (p *FlatRateProvider) TrackOrder(ctx context.Context, carrierOrderID string) (*TrackingInfo, error) {
	return nil, ErrNotImplemented
}
