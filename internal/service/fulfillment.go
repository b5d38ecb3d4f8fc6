package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/shipping"
	"github.com/dukerupert/vellum/internal/telemetry"
)

// carrierTimeout bounds every carrier call so a hung API cannot stall the
// payment callback handler.
const carrierTimeout = 20 * time.Second

// bookHSN is the harmonized tariff code for printed books.
const bookHSN = "4901"

// Fulfiller registers paid orders with the carrier and applies carrier
// webhook updates to the order lifecycle.
type Fulfiller struct {
	orders        OrderStore
	carrier       shipping.Provider
	pickupPincode string
	logger        *slog.Logger
}

func NewFulfiller(orders OrderStore, carrier shipping.Provider, pickupPincode string, logger *slog.Logger) *Fulfiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fulfiller{orders: orders, carrier: carrier, pickupPincode: pickupPincode, logger: logger}
}

// PackageFor derives parcel metrics from the order lines with a fixed
// heuristic: 500 g and 5 cm of height per line on a 20x15 cm footprint, with
// a 2 cm slim parcel for a single line.
func PackageFor(items []domain.OrderItem) shipping.Package {
	lines := int32(len(items))
	height := 5 * lines
	if lines <= 1 {
		height = 2
	}
	return shipping.Package{
		WeightGrams: 500 * lines,
		LengthCm:    20,
		WidthCm:     15,
		HeightCm:    height,
	}
}

// CreateShipment registers the order with the carrier and marks it shipped.
// It is called after payment confirmation; the caller must treat any error as
// a degraded-but-paid order, never as grounds to undo the confirmation.
func (f *Fulfiller) CreateShipment(ctx context.Context, order *domain.Order, items []domain.OrderItem) error {
	const op = "fulfillment.create_shipment"

	ctx, cancel := context.WithTimeout(ctx, carrierTimeout)
	defer cancel()

	lines := make([]shipping.OrderItem, 0, len(items))
	for _, it := range items {
		sku := fmt.Sprintf("BOOK-%d", it.ItemID)
		hsn := bookHSN
		if it.ItemType == domain.ItemTypeAddOn {
			sku = "ADDON-" + it.Title
			hsn = ""
		}
		lines = append(lines, shipping.OrderItem{
			Name:       it.Title,
			SKU:        sku,
			Units:      it.Quantity,
			PricePaise: it.UnitPricePaise,
			HSN:        hsn,
		})
	}

	carrierOrder, err := f.carrier.CreateOrder(ctx, shipping.OrderParams{
		OrderRef:      order.ID.String(),
		OrderDate:     order.CreatedAt,
		CustomerName:  order.FullName,
		CustomerEmail: order.Email,
		CustomerPhone: order.PhoneNumber,
		AddressLine:   order.Address,
		City:          order.City,
		State:         order.State,
		Pincode:       order.PinCode,
		Items:         lines,
		SubtotalPaise: order.SubtotalPaise,
		Package:       PackageFor(items),
	})
	if err != nil {
		return domain.Unavailable(err, op, "carrier order creation failed")
	}

	if err := f.orders.MarkShipped(ctx, order.ID, carrierOrder.OrderID); err != nil {
		// The carrier accepted the shipment but the transition lost a race.
		// A same-id retry is fine; anything else needs eyes on it.
		return err
	}

	order.Status = domain.OrderShipped
	order.CarrierOrderID = carrierOrder.OrderID

	if telemetry.Business != nil {
		telemetry.Business.OrdersShipped.WithLabelValues().Inc()
	}
	f.logger.Info("order shipped",
		"order_id", order.ID,
		"carrier_order_id", carrierOrder.OrderID,
	)
	return nil
}

// Track returns carrier tracking for an order.
func (f *Fulfiller) Track(ctx context.Context, orderID uuid.UUID) (*shipping.TrackingInfo, error) {
	const op = "fulfillment.track"

	order, err := f.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CarrierOrderID == "" {
		return nil, domain.Errorf(domain.ENOTFOUND, op, "order has no shipment yet")
	}

	ctx, cancel := context.WithTimeout(ctx, carrierTimeout)
	defer cancel()

	info, err := f.carrier.TrackOrder(ctx, order.CarrierOrderID)
	if err != nil {
		return nil, domain.Unavailable(err, op, "carrier tracking unavailable")
	}
	return info, nil
}

// CarrierUpdate is one inbound shipment-status webhook, already
// token-authenticated by the handler.
type CarrierUpdate struct {
	OrderID        uuid.UUID
	CarrierOrderID string
	Status         string
}

// ApplyCarrierUpdate maps a carrier status onto the order state machine.
// Replays and out-of-order updates surface as ErrInvalidTransition, which the
// webhook handler acknowledges without treating as failure.
func (f *Fulfiller) ApplyCarrierUpdate(ctx context.Context, update CarrierUpdate) error {
	const op = "fulfillment.carrier_update"

	switch update.Status {
	case "shipped", "picked_up", "in_transit":
		return f.orders.MarkShipped(ctx, update.OrderID, update.CarrierOrderID)
	case "delivered":
		return f.orders.MarkDelivered(ctx, update.OrderID)
	case "cancelled", "rto_delivered":
		return f.orders.Cancel(ctx, update.OrderID)
	default:
		f.logger.Info("ignoring carrier status", "status", update.Status, "order_id", update.OrderID)
		return nil
	}
}
