// Package notify fans out customer and operator notifications after order
// state changes. Delivery is best effort by contract: a notification failure
// is logged and swallowed, it never rolls back or fails the state change that
// triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/email"
	"github.com/dukerupert/vellum/internal/sms"
	"github.com/dukerupert/vellum/internal/telemetry"
)

// Notifier sends transactional notifications over email and WhatsApp.
// Both senders are optional; missing channels are skipped.
type Notifier struct {
	email         email.Sender
	whatsapp      sms.Sender
	storeName     string
	operatorEmail string
	logger        *slog.Logger
}

// Config wires the notifier's dependencies.
type Config struct {
	Email         email.Sender
	WhatsApp      sms.Sender
	StoreName     string
	OperatorEmail string
	Logger        *slog.Logger
}

func New(cfg Config) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		email:         cfg.Email,
		whatsapp:      cfg.WhatsApp,
		storeName:     cfg.StoreName,
		operatorEmail: cfg.OperatorEmail,
		logger:        logger,
	}
}

// OrderConfirmed sends the customer receipt and tells the operator a paid
// order is waiting.
func (n *Notifier) OrderConfirmed(ctx context.Context, order *domain.Order, items []domain.OrderItem) {
	if n.email != nil && order.Email != "" {
		n.sendEmail(ctx, "confirmation", email.OrderConfirmation(n.storeName, order, items))
	}
	if n.whatsapp != nil && order.PhoneNumber != "" {
		msg := fmt.Sprintf("%s: payment received for order %s. Total %s. We'll message you when it ships.",
			n.storeName, order.ID, formatRupees(order.TotalPaise))
		n.sendWhatsApp(ctx, "confirmation", order.PhoneNumber, msg)
	}
	if n.email != nil && n.operatorEmail != "" {
		body := fmt.Sprintf("Order %s paid: %s, %d items, deliver to %s %s.",
			order.ID, formatRupees(order.TotalPaise), len(items), order.City, order.PinCode)
		n.sendEmail(ctx, "operator_alert", email.OperatorAlert(n.operatorEmail, "New paid order", body))
	}
}

// OrderShipped sends the dispatch notice.
func (n *Notifier) OrderShipped(ctx context.Context, order *domain.Order) {
	if n.email != nil && order.Email != "" {
		n.sendEmail(ctx, "shipped", email.OrderShipped(n.storeName, order))
	}
	if n.whatsapp != nil && order.PhoneNumber != "" {
		msg := fmt.Sprintf("%s: your order %s is on its way! Shipment reference %s.",
			n.storeName, order.ID, order.CarrierOrderID)
		n.sendWhatsApp(ctx, "shipped", order.PhoneNumber, msg)
	}
}

// ShipmentFailed alerts the operator that a paid order could not be handed to
// the carrier and needs manual dispatch.
func (n *Notifier) ShipmentFailed(ctx context.Context, order *domain.Order, cause error) {
	if n.email == nil || n.operatorEmail == "" {
		return
	}
	body := fmt.Sprintf("Order %s is paid but carrier registration failed: %v\nDispatch it manually or retry.", order.ID, cause)
	n.sendEmail(ctx, "operator_alert", email.OperatorAlert(n.operatorEmail, "Shipment needs attention", body))
}

func (n *Notifier) sendEmail(ctx context.Context, kind string, msg *email.Email) {
	err := n.withRetry(ctx, func(ctx context.Context) error {
		_, err := n.email.Send(ctx, msg)
		return err
	})
	n.record(kind, "email", err)
}

func (n *Notifier) sendWhatsApp(ctx context.Context, kind, phone, msg string) {
	err := n.withRetry(ctx, func(ctx context.Context) error {
		return n.whatsapp.Send(ctx, phone, msg)
	})
	n.record(kind, "whatsapp", err)
}

// withRetry retries transient delivery failures a couple of times before
// giving up for good.
func (n *Notifier) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (n *Notifier) record(kind, channel string, err error) {
	if err != nil {
		n.logger.Warn("notification delivery failed",
			"kind", kind, "channel", channel, "error", err)
		if telemetry.Business != nil {
			telemetry.Business.NotificationFailed.WithLabelValues(kind, channel).Inc()
		}
		return
	}
	if telemetry.Business != nil {
		telemetry.Business.NotificationSent.WithLabelValues(kind, channel).Inc()
	}
}

func formatRupees(paise int64) string {
	return fmt.Sprintf("Rs. %d.%02d", paise/100, paise%100)
}
