// Package webhook implements the inbound endpoints external services post to:
// the payment gateway return and the carrier shipment updates. Neither sits
// behind session auth; each authenticates its own payload.
package webhook

import (
	"net/http"
	"time"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/handler"
	"github.com/dukerupert/vellum/internal/service"
	"github.com/dukerupert/vellum/internal/telemetry"
)

// PaymentHandler receives the gateway's signed return post.
type PaymentHandler struct {
	checkout *service.CheckoutService
	baseURL  string
}

func NewPaymentHandler(checkout *service.CheckoutService, baseURL string) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, baseURL: baseURL}
}

// Handle processes POST /webhooks/payment. The customer's browser arrives
// here from the gateway, so on top of acknowledging we redirect to the order
// page. Replayed deliveries are acknowledged with the same redirect; only
// unverifiable posts are refused.
func (h *PaymentHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues("payment").Inc()
		defer func() {
			telemetry.Business.WebhookLatency.WithLabelValues("payment").Observe(time.Since(start).Seconds())
		}()
	}

	if err := r.ParseForm(); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.payment", "malformed form payload"))
		return
	}

	outcome, err := h.checkout.HandleCallback(r.Context(), r.PostForm)
	if err != nil {
		if telemetry.Business != nil && domain.IsCode(err, domain.EUNAUTHORIZED) {
			telemetry.Business.WebhookRejected.WithLabelValues("payment").Inc()
		}
		handler.ErrorResponse(w, r, err)
		return
	}

	// Browser flow: land the customer on their order. Failed payments go
	// back to checkout with the order reference for a retry prompt.
	if outcome.Confirmed || outcome.Replayed {
		http.Redirect(w, r, h.baseURL+"/orders/"+outcome.OrderID.String(), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.baseURL+"/checkout?payment=failed", http.StatusSeeOther)
}
