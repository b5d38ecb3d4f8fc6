package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability
// of the checkout path.
type BusinessMetrics struct {
	// Cart
	CartItemsAdded *prometheus.CounterVec
	CartUpdated    *prometheus.CounterVec
	CartValue      *prometheus.HistogramVec

	// Verification
	CodesIssued     *prometheus.CounterVec
	CodesVerified   *prometheus.CounterVec
	CodesFailed     *prometheus.CounterVec
	CodeDeliveryErr *prometheus.CounterVec

	// Checkout funnel
	CheckoutStarted  *prometheus.CounterVec
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec

	// Orders
	OrdersConfirmed *prometheus.CounterVec
	OrderValue      *prometheus.HistogramVec
	OrderItemCount  *prometheus.HistogramVec
	OrdersShipped   *prometheus.CounterVec
	ShipmentFailed  *prometheus.CounterVec
	OrdersSwept     *prometheus.CounterVec

	// Webhooks
	WebhookReceived *prometheus.CounterVec
	WebhookRejected *prometheus.CounterVec
	WebhookReplayed *prometheus.CounterVec
	WebhookLatency  *prometheus.HistogramVec

	// Shipping quotes
	QuoteRequests  *prometheus.CounterVec
	QuoteFallbacks *prometheus.CounterVec

	// Notifications
	NotificationSent   *prometheus.CounterVec
	NotificationFailed *prometheus.CounterVec

	// Revenue
	RevenueCollected *prometheus.CounterVec
}

// NewBusinessMetrics creates and registers all business metrics
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "vellum"
	}

	subsystem := "business"

	m := &BusinessMetrics{
		CartItemsAdded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_items_added_total",
				Help:      "Total items added to carts (quantity-aware)",
			},
			[]string{"item_type"},
		),
		CartUpdated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_updated_total",
				Help:      "Total cart update operations",
			},
			[]string{"action"}, // action: add, remove, update_quantity, addons
		),
		CartValue: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_value_paise",
				Help:      "Cart value at checkout start",
				Buckets:   []float64{10000, 25000, 49900, 75000, 100000, 150000, 250000, 500000},
			},
			[]string{},
		),

		CodesIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "verification_codes_issued_total",
				Help:      "Total verification codes issued",
			},
			[]string{"channel"}, // channel: sms, whatsapp, email
		),
		CodesVerified: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "verification_codes_verified_total",
				Help:      "Total codes successfully verified",
			},
			[]string{"channel"},
		),
		CodesFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "verification_codes_failed_total",
				Help:      "Total failed verification attempts",
			},
			[]string{"channel", "reason"}, // reason: mismatch, expired, replay
		),
		CodeDeliveryErr: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "verification_delivery_failures_total",
				Help:      "Total code delivery failures",
			},
			[]string{"channel"},
		),

		CheckoutStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_started_total",
				Help:      "Total payment handoffs built",
			},
			[]string{},
		),
		PaymentSucceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_succeeded_total",
				Help:      "Total verified success callbacks",
			},
			[]string{},
		),
		PaymentFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_failed_total",
				Help:      "Total verified failure callbacks",
			},
			[]string{"status"},
		),

		OrdersConfirmed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_confirmed_total",
				Help:      "Total orders moved to processing",
			},
			[]string{},
		),
		OrderValue: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value_paise",
				Help:      "Confirmed order value distribution",
				Buckets:   []float64{10000, 25000, 49900, 75000, 100000, 150000, 250000, 500000},
			},
			[]string{},
		),
		OrderItemCount: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_item_count",
				Help:      "Number of items per confirmed order",
				Buckets:   []float64{1, 2, 3, 5, 10, 15, 20},
			},
			[]string{},
		),
		OrdersShipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_shipped_total",
				Help:      "Total orders handed to the carrier",
			},
			[]string{},
		),
		ShipmentFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shipment_failures_total",
				Help:      "Total carrier registration failures (order stays processing)",
			},
			[]string{},
		),
		OrdersSwept: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_swept_total",
				Help:      "Total abandoned pending orders reclaimed",
			},
			[]string{},
		),

		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total webhooks received",
			},
			[]string{"source"}, // source: payment, carrier
		),
		WebhookRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_rejected_total",
				Help:      "Total webhooks rejected for bad signatures or tokens",
			},
			[]string{"source"},
		),
		WebhookReplayed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_replayed_total",
				Help:      "Total duplicate webhooks acknowledged without effect",
			},
			[]string{"source"},
		),
		WebhookLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processing_seconds",
				Help:      "Webhook processing duration",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),

		QuoteRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shipping_quotes_total",
				Help:      "Total shipping quote requests",
			},
			[]string{},
		),
		QuoteFallbacks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shipping_quote_fallbacks_total",
				Help:      "Total quotes served from flat rates because the carrier was down",
			},
			[]string{},
		),

		NotificationSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "notifications_sent_total",
				Help:      "Total notifications delivered",
			},
			[]string{"kind", "channel"}, // kind: confirmation, shipped, operator_alert
		),
		NotificationFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "notifications_failed_total",
				Help:      "Total notification delivery failures (swallowed)",
			},
			[]string{"kind", "channel"},
		),

		RevenueCollected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "revenue_collected_paise",
				Help:      "Total revenue collected in paise",
			},
			[]string{},
		),
	}

	return m
}

// Global instance for easy access from handlers
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}
