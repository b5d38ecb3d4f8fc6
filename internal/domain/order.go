package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
// Transitions are guarded by the current stored state, never blind overwrites:
//
//	pending_payment -> processing -> shipped -> delivered
//	pending_payment -> cancelled
//	processing      -> cancelled
//
// delivered and cancelled are terminal.
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderProcessing     OrderStatus = "processing"
	OrderShipped        OrderStatus = "shipped"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingPayment, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// CanTransition reports whether the state machine permits s -> next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderPendingPayment:
		return next == OrderProcessing || next == OrderCancelled
	case OrderProcessing:
		return next == OrderShipped || next == OrderCancelled
	case OrderShipped:
		return next == OrderDelivered
	}
	return false
}

// Order is one purchase attempt. It is created in pending_payment before any
// money has changed hands; contact and address fields stay blank until the
// payment callback is verified.
type Order struct {
	ID             uuid.UUID
	Status         OrderStatus
	FullName       string
	Email          string
	VerifiedEmail  string
	PhoneNumber    string
	Address        string
	City           string
	State          string
	PinCode        string
	DeliveryType   string
	PaymentMethod  string
	PaymentID      string
	CarrierOrderID string
	TxnID          string

	SubtotalPaise int64
	ShippingPaise int64
	DiscountPaise int64
	AddonPaise    int64
	TotalPaise    int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is a priced line snapshotted from the cart at order creation.
// Items are owned by their order and cascade-deleted with it.
type OrderItem struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	ItemType       string
	ItemID         int64
	Title          string
	UnitPricePaise int64
	Quantity       int32
	ImageURL       string
}

// ContactDetails carries the trusted customer fields applied to an order at
// payment confirmation. The phone number was OTP-verified before checkout;
// the remaining fields come from the verified gateway callback.
type ContactDetails struct {
	FullName      string
	Email         string
	VerifiedEmail string
	PhoneNumber   string
	Address       string
	City          string
	State         string
	PinCode       string
	DeliveryType  string
	PaymentMethod string
}

// Order-related domain errors.
var (
	ErrOrderNotFound = &Error{Code: ENOTFOUND, Message: "Order not found"}

	// ErrInvalidTransition is the replay/race guard: the stored status did not
	// match the expected source state of a transition. Webhook handlers must
	// still acknowledge receipt when they observe it.
	ErrInvalidTransition = &Error{Code: ECONFLICT, Message: "Order is not in a state that permits this transition"}

	// ErrCarrierMismatch means markShipped was retried with a different
	// carrier reference than the one already recorded.
	ErrCarrierMismatch = &Error{Code: ECONFLICT, Message: "Order already shipped with a different carrier reference"}
)
