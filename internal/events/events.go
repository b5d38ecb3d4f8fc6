// Package events publishes order lifecycle events for downstream consumers
// (inventory, analytics). Publishing is best effort: a broker outage never
// fails the operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dukerupert/vellum/internal/domain"
)

// Subjects for order lifecycle events.
const (
	SubjectOrderConfirmed = "orders.confirmed"
	SubjectOrderShipped   = "orders.shipped"
	SubjectOrderCancelled = "orders.cancelled"
)

// OrderEvent is the wire payload for all order subjects.
type OrderEvent struct {
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	TotalPaise     int64     `json:"total_paise"`
	ItemCount      int32     `json:"item_count"`
	CarrierOrderID string    `json:"carrier_order_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher emits order events.
type Publisher interface {
	PublishOrder(ctx context.Context, subject string, order *domain.Order, itemCount int32)
}

// NATSPublisher publishes events to a NATS broker.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect dials the broker with sane reconnect behavior.
func Connect(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Name("vellum-checkout"),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// PublishOrder emits one order event. Failures are logged and dropped.
func (p *NATSPublisher) PublishOrder(_ context.Context, subject string, order *domain.Order, itemCount int32) {
	evt := OrderEvent{
		OrderID:        order.ID.String(),
		Status:         string(order.Status),
		TotalPaise:     order.TotalPaise,
		ItemCount:      itemCount,
		CarrierOrderID: order.CarrierOrderID,
		OccurredAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("failed to encode order event", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("failed to publish order event", "subject", subject, "error", err)
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("failed to drain nats connection", "error", err)
	}
}

// NopPublisher drops all events. Used when the broker is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrder(context.Context, string, *domain.Order, int32) {}
