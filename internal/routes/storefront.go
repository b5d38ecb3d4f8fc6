package routes

import (
	"github.com/dukerupert/vellum/internal/router"
)

// RegisterStorefrontRoutes registers the customer-facing checkout API.
// Sessions are cookie-based and minted lazily by the handlers themselves, so
// no auth middleware sits in front of these routes.
func RegisterStorefrontRoutes(r *router.Router, deps StorefrontDeps) {
	// Shopping cart
	r.Get("/cart", deps.Cart.View)
	r.Post("/cart/items", deps.Cart.Add)
	r.Patch("/cart/items/{key}", deps.Cart.UpdateQuantity)
	r.Delete("/cart/items/{key}", deps.Cart.Remove)
	r.Put("/cart/addons", deps.Cart.SetAddons)

	// Contact verification. Send and resend each dispatch a real message, so
	// they sit behind the strict per-client limiter; check does not.
	if deps.SendLimiter != nil {
		sender := r.Group(deps.SendLimiter.Middleware)
		sender.Post("/verify/send", deps.Verify.Send)
		sender.Post("/verify/resend", deps.Verify.Resend)
	} else {
		r.Post("/verify/send", deps.Verify.Send)
		r.Post("/verify/resend", deps.Verify.Resend)
	}
	r.Post("/verify/check", deps.Verify.Check)

	// Checkout flow
	r.Get("/shipping/quote", deps.Checkout.Quote)
	r.Post("/checkout/payment", deps.Checkout.StartPayment)

	// Order status
	r.Get("/orders/{id}", deps.Checkout.GetOrder)
	r.Get("/orders/{id}/tracking", deps.Checkout.Track)
}
