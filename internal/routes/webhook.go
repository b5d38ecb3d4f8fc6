package routes

import (
	"github.com/dukerupert/vellum/internal/router"
)

// RegisterWebhookRoutes registers the inbound webhook routes.
//
// Note: webhook routes do NOT use session middleware. The payment handler
// verifies the gateway signature on every post and the carrier handler checks
// the shared webhook token.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	r.Post("/webhooks/payment", deps.Payment.Handle)
	r.Post("/webhooks/carrier", deps.Carrier.Handle)
}
