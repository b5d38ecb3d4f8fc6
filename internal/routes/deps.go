// Package routes wires handlers onto the router. Registration is grouped by
// surface: the storefront API the browser talks to, and the webhook endpoints
// external services post to.
package routes

import (
	"github.com/dukerupert/vellum/internal/handler"
	"github.com/dukerupert/vellum/internal/handler/webhook"
	"github.com/dukerupert/vellum/internal/middleware"
)

// StorefrontDeps contains dependencies for the customer-facing API routes.
type StorefrontDeps struct {
	Cart     *handler.CartHandler
	Verify   *handler.VerifyHandler
	Checkout *handler.CheckoutHandler

	// SendLimiter throttles the endpoints that cost an SMS or email per hit.
	SendLimiter *middleware.RateLimiter
}

// WebhookDeps contains dependencies for inbound webhook routes.
type WebhookDeps struct {
	Payment *webhook.PaymentHandler
	Carrier *webhook.CarrierHandler
}
