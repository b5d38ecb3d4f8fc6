// Package service implements the checkout path: cart operations, the payment
// handoff, verified-callback processing, shipment orchestration and the
// carrier webhook. Services depend on narrow store interfaces so tests can
// run against in-memory fakes.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/vellum/internal/domain"
)

// OrderStore is the persistence surface for orders.
type OrderStore interface {
	CreatePending(ctx context.Context, order *domain.Order, items []domain.OrderItem) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByTxnID(ctx context.Context, txnID string) (*domain.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, details domain.ContactDetails, paymentID string) error
	MarkShipped(ctx context.Context, id uuid.UUID, carrierOrderID string) error
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	CancelPending(ctx context.Context, id uuid.UUID) (cancelled bool, err error)
	DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionStore is the persistence surface for sessions and carts.
type SessionStore interface {
	GetOrCreate(ctx context.Context, token string) (*domain.Session, error)
	AddItem(ctx context.Context, sessionID uuid.UUID, item domain.CartItem) error
	UpdateQuantity(ctx context.Context, sessionID uuid.UUID, itemType string, itemID int64, quantity int32) error
	RemoveItem(ctx context.Context, sessionID uuid.UUID, itemType string, itemID int64) error
	ListItems(ctx context.Context, sessionID uuid.UUID) ([]domain.CartItem, error)
	SetAddons(ctx context.Context, sessionID uuid.UUID, names []string) error
	ListAddons(ctx context.Context, sessionID uuid.UUID) ([]string, error)
	ClearCart(ctx context.Context, sessionID uuid.UUID) error
}
