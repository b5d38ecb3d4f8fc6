// Package shipping integrates carrier APIs behind a Provider interface.
// The primary implementation talks to a Shiprocket-style aggregator; a
// flat-rate provider serves as the quoting fallback when the carrier is
// unreachable.
package shipping

import (
	"context"
	"time"
)

// Provider defines the interface for carrier operations.
type Provider interface {
	// GetRates returns available courier options for a shipment.
	GetRates(ctx context.Context, params RateParams) ([]Rate, error)

	// CreateOrder registers a shipment with the carrier and returns its
	// reference. Called at most once per paid order.
	CreateOrder(ctx context.Context, params OrderParams) (*CarrierOrder, error)

	// TrackOrder gets tracking information for a carrier order.
	TrackOrder(ctx context.Context, carrierOrderID string) (*TrackingInfo, error)
}

// RateParams contains parameters for quoting a shipment.
type RateParams struct {
	PickupPincode   string
	DeliveryPincode string
	Package         Package
	// CODAmountPaise is zero for prepaid shipments.
	CODAmountPaise int64
}

// Package represents a physical parcel to be shipped.
type Package struct {
	WeightGrams int32
	LengthCm    int32
	WidthCm     int32
	HeightCm    int32
}

// Rate represents one courier option for a shipment.
type Rate struct {
	CourierCode   string
	CourierName   string
	CostPaise     int64
	EstimatedDays int32
	ETD           string
}

// OrderParams contains everything the carrier needs to register a shipment.
type OrderParams struct {
	// OrderRef is our order ID; it becomes the carrier's channel order id so
	// carrier webhooks can be correlated back.
	OrderRef  string
	OrderDate time.Time

	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	AddressLine   string
	City          string
	State         string
	Pincode       string

	Items         []OrderItem
	SubtotalPaise int64
	Package       Package
}

// OrderItem is one line of a carrier order manifest.
type OrderItem struct {
	Name       string
	SKU        string
	Units      int32
	PricePaise int64
	HSN        string
}

// CarrierOrder is the carrier's reference for a registered shipment.
type CarrierOrder struct {
	OrderID    string
	ShipmentID string
	Status     string
}

// TrackingInfo contains shipment tracking information.
type TrackingInfo struct {
	Status string
	Events []TrackingEvent
}

// TrackingEvent represents a single tracking scan.
type TrackingEvent struct {
	Timestamp   time.Time
	Status      string
	Location    string
	Description string
}
